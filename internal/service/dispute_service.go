package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/locker"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository"
)

// DisputeRepository описывает взаимодействие сервиса с хранилищем споров.
// Open и Resolve атомарны: запись спора и смена статуса контракта либо
// применяются вместе, либо не применяются вовсе.
type DisputeRepository interface {
	Open(ctx context.Context, d *models.Dispute, contractVersion int) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetUnresolvedByContract(ctx context.Context, contractID uuid.UUID) (*models.Dispute, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error)
	ListAll(ctx context.Context, status string, limit, offset int) ([]models.Dispute, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	Resolve(ctx context.Context, d *models.Dispute, contractStatus string, contractVersion int) error
}

// RaiseDisputeInput — заявление стороны о споре.
type RaiseDisputeInput struct {
	ContractID  uuid.UUID
	RaisedBy    uuid.UUID
	Reason      string
	Description string
}

// ResolveDisputeInput — решение администратора.
type ResolveDisputeInput struct {
	Type   string
	Amount decimal.NullDecimal
	Notes  string
}

// DisputeService — арбитраж споров. Открытие спора замораживает движение
// средств (контракт переходит в disputed), решение администратора
// терминально закрывает контракт.
type DisputeService struct {
	disputes  DisputeRepository
	contracts ContractRepository
	locks     *locker.KeyedMutex
	notifier  Notifier
}

func NewDisputeService(disputes DisputeRepository, contracts ContractRepository, locks *locker.KeyedMutex, notifier Notifier) *DisputeService {
	return &DisputeService{disputes: disputes, contracts: contracts, locks: locks, notifier: notifier}
}

// Raise открывает спор. Guard статусный: контракт не в терминальном
// статусе и не в disputed — это же правило исключает второй открытый спор,
// так как первый уже перевёл контракт в disputed.
func (s *DisputeService) Raise(ctx context.Context, input RaiseDisputeInput) (*models.Dispute, error) {
	if _, ok := models.ValidDisputeReasons[input.Reason]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный код причины спора")
	}
	if strings.TrimSpace(input.Description) == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "описание спора не может быть пустым")
	}

	unlock := s.locks.Lock(input.ContractID.String())
	defer unlock()

	contract, err := s.contracts.GetByID(ctx, input.ContractID)
	if err != nil {
		return nil, err
	}

	role := contract.RoleOf(input.RaisedBy)
	if role == "" {
		return nil, apperror.ErrForbidden
	}
	if models.IsTerminalStatus(contract.Status) {
		return nil, apperror.New(apperror.ErrCodeContractTerminal,
			"по завершённому контракту спор открыть нельзя")
	}
	if contract.Status == models.ContractStatusDisputed {
		return nil, apperror.New(apperror.ErrCodeConflict, "по контракту уже открыт спор")
	}
	// Статусный guard ловит открытый спор в штатном случае; прямая проверка
	// по таблице споров страхует от рассинхронизации записей.
	if _, err := s.disputes.GetUnresolvedByContract(ctx, contract.ID); err == nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "по контракту уже открыт спор")
	} else if err != repository.ErrDisputeNotFound {
		return nil, err
	}

	against := contract.FreelancerID
	if role == models.RoleFreelancer {
		against = contract.ClientID
	}

	dispute := &models.Dispute{
		ContractID:   contract.ID,
		RaisedBy:     input.RaisedBy,
		RaisedByRole: role,
		Against:      against,
		Reason:       input.Reason,
		Description:  input.Description,
		Status:       models.DisputeStatusOpen,
		Priority:     models.PriorityForReason(input.Reason),
	}
	// Одна транзакция: перевод контракта в disputed (CAS по версии) и запись
	// спора. При конкурентном изменении контракта не произойдёт ничего.
	if err := s.disputes.Open(ctx, dispute, contract.Version); err != nil {
		return nil, err
	}

	s.notifier.Notify(against, models.EventDisputeRaised, dispute)
	return dispute, nil
}

// Review берёт спор в рассмотрение администратором. Контракт уже в
// disputed, его статус не меняется.
func (s *DisputeService) Review(ctx context.Context, disputeID, adminID uuid.UUID) (*models.Dispute, error) {
	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Status != models.DisputeStatusOpen {
		return nil, apperror.New(apperror.ErrCodeInvalidTransition,
			"в рассмотрение можно взять только открытый спор")
	}

	if err := s.disputes.SetStatus(ctx, disputeID, models.DisputeStatusUnderReview); err != nil {
		return nil, err
	}
	return s.disputes.GetByID(ctx, disputeID)
}

// Resolve применяет решение администратора: release_payment и no_action
// завершают контракт, остальные типы возвращают средства клиенту.
// После решения контракт терминален для движения средств.
func (s *DisputeService) Resolve(ctx context.Context, disputeID, adminID uuid.UUID, input ResolveDisputeInput) (*models.Dispute, error) {
	if _, ok := models.ValidResolutionTypes[input.Type]; !ok {
		return nil, apperror.New(apperror.ErrCodeInvalidResolution, "неизвестный тип решения")
	}
	if input.Type == models.ResolutionRefundPartial || input.Type == models.ResolutionSplit {
		if !input.Amount.Valid || !input.Amount.Decimal.IsPositive() {
			return nil, apperror.New(apperror.ErrCodeInvalidResolution,
				"для частичного возврата требуется положительная сумма")
		}
	}

	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(dispute.ContractID.String())
	defer unlock()

	// Перечитываем под локом: спор могли решить, контракт — изменить.
	dispute, err = s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !dispute.Unresolved() {
		return nil, apperror.New(apperror.ErrCodeInvalidTransition, "спор уже решён")
	}

	contract, err := s.contracts.GetByID(ctx, dispute.ContractID)
	if err != nil {
		return nil, err
	}

	dispute.Status = models.DisputeStatusResolved
	dispute.ResolutionType = &input.Type
	dispute.ResolutionAmount = input.Amount
	if input.Notes != "" {
		dispute.ResolutionNotes = &input.Notes
	}
	dispute.ResolvedBy = &adminID

	target := models.ContractStatusRefunded
	if input.Type == models.ResolutionReleasePayment || input.Type == models.ResolutionNoAction {
		target = models.ContractStatusCompleted
	}
	// Одна транзакция: решение спора и терминальный статус контракта.
	// При конфликте версий откатывается целиком, спор остаётся нерешённым
	// и Resolve можно повторить.
	if err := s.disputes.Resolve(ctx, dispute, target, contract.Version); err != nil {
		return nil, err
	}

	s.notifier.Notify(contract.ClientID, models.EventDisputeResolved, dispute)
	s.notifier.Notify(contract.FreelancerID, models.EventDisputeResolved, dispute)
	return s.disputes.GetByID(ctx, disputeID)
}

// Close архивирует решённый спор.
func (s *DisputeService) Close(ctx context.Context, disputeID uuid.UUID) (*models.Dispute, error) {
	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Status != models.DisputeStatusResolved {
		return nil, apperror.New(apperror.ErrCodeInvalidTransition,
			"архивировать можно только решённый спор")
	}

	if err := s.disputes.SetStatus(ctx, disputeID, models.DisputeStatusClosed); err != nil {
		return nil, err
	}
	return s.disputes.GetByID(ctx, disputeID)
}

// GetDispute возвращает спор; доступ сторонам и администратору.
func (s *DisputeService) GetDispute(ctx context.Context, id, userID uuid.UUID, role string) (*models.Dispute, error) {
	dispute, err := s.disputes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if role != models.RoleAdmin && dispute.RaisedBy != userID && dispute.Against != userID {
		return nil, apperror.ErrForbidden
	}
	return dispute, nil
}

// ListDisputes возвращает споры пользователя; администратор видит все.
func (s *DisputeService) ListDisputes(ctx context.Context, userID uuid.UUID, role, status string, limit, offset int) ([]models.Dispute, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if role == models.RoleAdmin {
		return s.disputes.ListAll(ctx, status, limit, offset)
	}
	return s.disputes.ListByUser(ctx, userID, limit, offset)
}
