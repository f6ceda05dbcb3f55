package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/chain"
	"github.com/ignatzorin/escrow-backend/internal/locker"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// EscrowService — оркестратор публикации, финансирования и высвобождения
// средств. Каждый money-moving вызов проходит проверки кошелька, сети и
// баланса, затем обращается к Ledger и приводит локальную запись к
// наблюдённому on-chain состоянию через sync. Локальный статус никогда не
// является финальным авторитетом по движению средств.
type EscrowService struct {
	contracts ContractRepository
	ledger    chain.Ledger
	locks     *locker.KeyedMutex
	notifier  Notifier
}

func NewEscrowService(contracts ContractRepository, ledger chain.Ledger, locks *locker.KeyedMutex, notifier Notifier) *EscrowService {
	return &EscrowService{contracts: contracts, ledger: ledger, locks: locks, notifier: notifier}
}

// Publish регистрирует контракт on-chain и переводит его в registered.
// Guard: фрилансер согласился с условиями. При сбое адаптера локальный
// статус остаётся created, вызов безопасно повторить: регистрация
// идемпотентна по построению.
func (s *EscrowService) Publish(ctx context.Context, contractID, clientID uuid.UUID, wallet string) (*models.Contract, error) {
	unlock := s.locks.Lock(contractID.String())
	defer unlock()

	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.ClientID != clientID {
		return nil, apperror.ErrForbidden
	}
	if contract.Status != models.ContractStatusCreated {
		return nil, apperror.New(apperror.ErrCodeInvalidTransition,
			"контракт уже опубликован или закрыт")
	}
	if !contract.FreelancerAccepted {
		return nil, apperror.New(apperror.ErrCodeNotAccepted,
			"фрилансер ещё не принял условия контракта")
	}
	if err := requireWallet(contract, wallet); err != nil {
		return nil, err
	}

	onchainID, err := s.ledger.Register(ctx, contract.ContractID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeChainUnavailable,
			"не удалось зарегистрировать эскроу, повторите попытку")
	}

	if err := s.contracts.SetOnchain(ctx, contract.ID, onchainID, models.ContractStatusRegistered, contract.Version); err != nil {
		return nil, err
	}

	s.notifier.Notify(contract.FreelancerID, models.EventContractPublished, contract)
	return s.contracts.GetByID(ctx, contractID)
}

// Fund вносит в эскроу полную сумму контракта. Проверки в фиксированном
// порядке: кошелёк, сеть, баланс. Перед отправкой транзакции состояние
// сверяется с ledger: если депозит уже прошёл (ретрай после таймаута),
// транзакция не отправляется повторно.
func (s *EscrowService) Fund(ctx context.Context, contractID, clientID uuid.UUID, wallet string, activeChainID int64) (*models.Contract, error) {
	unlock := s.locks.Lock(contractID.String())
	defer unlock()

	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.ClientID != clientID {
		return nil, apperror.ErrForbidden
	}
	if err := requireMoneyMovable(contract); err != nil {
		return nil, err
	}
	if contract.Status != models.ContractStatusRegistered {
		return nil, apperror.New(apperror.ErrCodeInvalidTransition,
			"финансировать можно только опубликованный контракт")
	}
	if err := requireWallet(contract, wallet); err != nil {
		return nil, err
	}
	if err := s.requireNetwork(activeChainID); err != nil {
		return nil, err
	}

	state, err := s.observe(ctx, contract)
	if err != nil {
		return nil, err
	}
	if state.FundedAmount.GreaterThanOrEqual(contract.TotalAmount) {
		// Депозит уже подтверждён on-chain, достаточно сверить запись.
		return s.apply(ctx, contract, state)
	}

	balance, err := s.ledger.BalanceOf(ctx, wallet)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeChainUnavailable,
			"не удалось проверить баланс кошелька")
	}
	if balance.LessThan(contract.TotalAmount) {
		return nil, apperror.New(apperror.ErrCodeInsufficientFunds,
			"на кошельке недостаточно средств для финансирования эскроу").
			WithDetail("required_amount", contract.TotalAmount).
			WithDetail("wallet_balance", balance)
	}

	if _, err := s.ledger.Deposit(ctx, *contract.OnchainID, contract.TotalAmount); err != nil {
		if chain.IsInsufficientFunds(err) {
			return nil, apperror.Wrap(err, apperror.ErrCodeInsufficientFunds,
				"на кошельке недостаточно средств для финансирования эскроу").
				WithDetail("required_amount", contract.TotalAmount)
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeChainUnavailable,
			"транзакция финансирования не подтверждена, выполните sync перед повтором")
	}

	updated, err := s.syncLocked(ctx, contract)
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(contract.FreelancerID, models.EventContractFunded, updated)
	return updated, nil
}

// Release высвобождает средства по вехе. Порядок высвобождения не
// навязывается: принимается любой ещё не высвобожденный индекс, а
// завершение контракта определяется только фактом "все вехи высвобождены".
func (s *EscrowService) Release(ctx context.Context, contractID uuid.UUID, milestoneIndex int, clientID uuid.UUID, wallet string, activeChainID int64) (*models.Contract, error) {
	unlock := s.locks.Lock(contractID.String())
	defer unlock()

	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.ClientID != clientID {
		return nil, apperror.ErrForbidden
	}
	if err := requireMoneyMovable(contract); err != nil {
		return nil, err
	}
	if contract.Status != models.ContractStatusFunded {
		return nil, apperror.New(apperror.ErrCodeInvalidTransition,
			"высвобождение доступно только для профинансированного контракта")
	}
	if err := requireWallet(contract, wallet); err != nil {
		return nil, err
	}
	if err := s.requireNetwork(activeChainID); err != nil {
		return nil, err
	}
	if milestoneIndex < 0 || milestoneIndex >= len(contract.Milestones) {
		return nil, apperror.New(apperror.ErrCodeInvalidMilestone, "веха с таким индексом не существует").
			WithDetail("milestone_index", milestoneIndex)
	}
	if contract.Milestones[milestoneIndex].Released() {
		return nil, alreadyReleased(milestoneIndex)
	}

	// Сверяемся с ledger перед отправкой: ретрай после таймаута не должен
	// высвободить веху второй раз.
	state, err := s.observe(ctx, contract)
	if err != nil {
		return nil, err
	}
	if state.Released(milestoneIndex) {
		if _, err := s.apply(ctx, contract, state); err != nil {
			return nil, err
		}
		return nil, alreadyReleased(milestoneIndex)
	}

	if _, err := s.ledger.ReleaseMilestone(ctx, *contract.OnchainID, milestoneIndex); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeChainUnavailable,
			"транзакция высвобождения не подтверждена, выполните sync перед повтором")
	}

	updated, err := s.syncLocked(ctx, contract)
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(contract.FreelancerID, models.EventMilestoneReleased, map[string]any{
		"contract_id":     contract.ID,
		"milestone_index": milestoneIndex,
	})
	if updated.Status == models.ContractStatusCompleted {
		s.notifier.Notify(contract.ClientID, models.EventContractCompleted, updated)
		s.notifier.Notify(contract.FreelancerID, models.EventContractCompleted, updated)
	}
	return updated, nil
}

// Sync приводит локальную запись к on-chain состоянию. Идемпотентна:
// повторный вызов без on-chain изменений даёт тот же результат, и её
// безопасно вызывать из другого процесса, чем тот, что отправил транзакцию.
func (s *EscrowService) Sync(ctx context.Context, contractID uuid.UUID) (*models.Contract, error) {
	unlock := s.locks.Lock(contractID.String())
	defer unlock()

	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	return s.syncLocked(ctx, contract)
}

func (s *EscrowService) syncLocked(ctx context.Context, contract *models.Contract) (*models.Contract, error) {
	if contract.OnchainID == nil {
		// До регистрации сверять нечего.
		return contract, nil
	}
	state, err := s.observe(ctx, contract)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, contract, state)
}

func (s *EscrowService) observe(ctx context.Context, contract *models.Contract) (*chain.EscrowState, error) {
	state, err := s.ledger.ObserveState(ctx, *contract.OnchainID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeChainUnavailable,
			"не удалось прочитать состояние эскроу")
	}
	return state, nil
}

func (s *EscrowService) apply(ctx context.Context, contract *models.Contract, state *chain.EscrowState) (*models.Contract, error) {
	status, milestoneStatuses := ReconcileChainState(contract, state)
	if err := s.contracts.ApplyChainState(ctx, contract.ID, status, milestoneStatuses); err != nil {
		return nil, err
	}
	return s.contracts.GetByID(ctx, contract.ID)
}

// ReconcileChainState вычисляет статусы контракта и вех по наблюдённому
// on-chain состоянию. Единственный писатель chain-derived правды.
// Workflow-исходы (спор, отмена, арбитраж) on-chain состоянием не
// перезаписываются.
func ReconcileChainState(c *models.Contract, state *chain.EscrowState) (string, []string) {
	milestoneStatuses := make([]string, len(c.Milestones))
	allReleased := len(c.Milestones) > 0
	for i, m := range c.Milestones {
		switch {
		case state.Released(i) && m.Released():
			// Не понижаем approved/completed до paid: это рабочие
			// подстатусы уже высвобожденной вехи.
			milestoneStatuses[i] = m.Status
		case state.Released(i):
			milestoneStatuses[i] = models.MilestoneStatusPaid
		default:
			milestoneStatuses[i] = models.MilestoneStatusPending
			allReleased = false
		}
	}

	if c.Status == models.ContractStatusDisputed || models.IsTerminalStatus(c.Status) {
		return c.Status, milestoneStatuses
	}

	switch {
	case allReleased:
		return models.ContractStatusCompleted, milestoneStatuses
	case c.TotalAmount.IsPositive() && state.FundedAmount.GreaterThanOrEqual(c.TotalAmount):
		return models.ContractStatusFunded, milestoneStatuses
	default:
		return models.ContractStatusRegistered, milestoneStatuses
	}
}

// requireMoneyMovable отклоняет движение средств по завершённым,
// отменённым, возвращённым и спорным контрактам.
func requireMoneyMovable(c *models.Contract) error {
	if c.Status == models.ContractStatusDisputed || models.IsTerminalStatus(c.Status) {
		return apperror.New(apperror.ErrCodeContractTerminal,
			"движение средств по контракту заблокировано").
			WithDetail("status", c.Status)
	}
	return nil
}

// requireWallet сверяет действующий кошелёк с зарегистрированным кошельком
// клиента. Несовпадение фатально для вызова и не исправляется автоматически.
func requireWallet(c *models.Contract, wallet string) error {
	if !models.WalletMatches(c.ClientWallet, wallet) {
		return apperror.New(apperror.ErrCodeWalletMismatch,
			"кошелёк не совпадает с зарегистрированным кошельком клиента").
			WithDetail("required_wallet", c.ClientWallet)
	}
	return nil
}

func (s *EscrowService) requireNetwork(activeChainID int64) error {
	if required := s.ledger.RequiredChainID(); activeChainID != required {
		return apperror.New(apperror.ErrCodeWrongNetwork,
			"кошелёк подключён к другой сети, переключите сеть и повторите").
			WithDetail("required_network", required).
			WithDetail("active_network", activeChainID)
	}
	return nil
}

func alreadyReleased(index int) *apperror.AppError {
	return apperror.New(apperror.ErrCodeAlreadyReleased, "средства по вехе уже высвобождены").
		WithDetail("milestone_index", index)
}
