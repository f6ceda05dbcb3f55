package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/chain"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/repository"
)

// fakeContractRepo — in-memory реализация ContractRepository с той же
// CAS-семантикой по версии, что и у Postgres-репозитория.
type fakeContractRepo struct {
	mu        sync.Mutex
	contracts map[uuid.UUID]*models.Contract
}

func newFakeContractRepo() *fakeContractRepo {
	return &fakeContractRepo{contracts: make(map[uuid.UUID]*models.Contract)}
}

func (f *fakeContractRepo) Create(ctx context.Context, c *models.Contract) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c.ID = uuid.New()
	c.Version = 1
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	for i := range c.Milestones {
		c.Milestones[i].ContractID = c.ID
	}
	f.contracts[c.ID] = copyContract(c)
	return nil
}

func (f *fakeContractRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.contracts[id]
	if !ok {
		return nil, repository.ErrContractNotFound
	}
	return copyContract(c), nil
}

func (f *fakeContractRepo) ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Contract
	for _, c := range f.contracts {
		if c.IsParticipant(userID) {
			out = append(out, *copyContract(c))
		}
	}
	return out, nil
}

func (f *fakeContractRepo) SetAccepted(ctx context.Context, id uuid.UUID, version int) error {
	return f.mutate(id, version, func(c *models.Contract) {
		c.FreelancerAccepted = true
	})
}

func (f *fakeContractRepo) SetStatus(ctx context.Context, id uuid.UUID, status string, version int) error {
	return f.mutate(id, version, func(c *models.Contract) {
		c.Status = status
	})
}

func (f *fakeContractRepo) SetRevisionFeedback(ctx context.Context, id uuid.UUID, feedback string, version int) error {
	return f.mutate(id, version, func(c *models.Contract) {
		c.RevisionFeedback = &feedback
	})
}

func (f *fakeContractRepo) UpdateTerms(ctx context.Context, c *models.Contract) error {
	return f.mutate(c.ID, c.Version, func(stored *models.Contract) {
		stored.ScopeOfWork = c.ScopeOfWork
		stored.Deliverables = c.Deliverables
		stored.TerminationPolicy = c.TerminationPolicy
		stored.Confidentiality = c.Confidentiality
		stored.OwnershipTransfer = c.OwnershipTransfer
		stored.AllowedRevisions = c.AllowedRevisions
		stored.TotalAmount = c.TotalAmount
		stored.Milestones = append([]models.Milestone(nil), c.Milestones...)
		for i := range stored.Milestones {
			stored.Milestones[i].ContractID = stored.ID
		}
		stored.RevisionFeedback = nil
	})
}

func (f *fakeContractRepo) SetOnchain(ctx context.Context, id uuid.UUID, onchainID, status string, version int) error {
	return f.mutate(id, version, func(c *models.Contract) {
		c.OnchainID = &onchainID
		c.Status = status
	})
}

func (f *fakeContractRepo) ApplyChainState(ctx context.Context, id uuid.UUID, status string, milestoneStatuses []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.contracts[id]
	if !ok {
		return repository.ErrContractNotFound
	}
	c.Status = status
	for i, s := range milestoneStatuses {
		if i < len(c.Milestones) {
			c.Milestones[i].Status = s
		}
	}
	return nil
}

func (f *fakeContractRepo) SetReview(ctx context.Context, id uuid.UUID, reviewedRole string, rating int, comment *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.contracts[id]
	if !ok {
		return repository.ErrContractNotFound
	}
	now := time.Now()
	if reviewedRole == models.RoleFreelancer {
		if c.FreelancerRating != nil {
			return repository.ErrAlreadyReviewed
		}
		c.FreelancerRating = &rating
		c.FreelancerComment = comment
		c.FreelancerReviewedAt = &now
		return nil
	}
	if c.ClientRating != nil {
		return repository.ErrAlreadyReviewed
	}
	c.ClientRating = &rating
	c.ClientComment = comment
	c.ClientReviewedAt = &now
	return nil
}

func (f *fakeContractRepo) mutate(id uuid.UUID, version int, fn func(*models.Contract)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.contracts[id]
	if !ok {
		return repository.ErrContractNotFound
	}
	if c.Version != version {
		return repository.ErrVersionConflict
	}
	fn(c)
	c.Version++
	c.UpdatedAt = time.Now()
	return nil
}

func copyContract(c *models.Contract) *models.Contract {
	cp := *c
	cp.Milestones = append([]models.Milestone(nil), c.Milestones...)
	return &cp
}

// fakeDisputeRepo — in-memory реализация DisputeRepository. Open и Resolve
// повторяют транзакционную семантику Postgres-репозитория: сначала CAS по
// контракту, при конфликте версии запись спора не меняется.
type fakeDisputeRepo struct {
	mu        sync.Mutex
	disputes  map[uuid.UUID]*models.Dispute
	contracts *fakeContractRepo
}

func newFakeDisputeRepo(contracts *fakeContractRepo) *fakeDisputeRepo {
	return &fakeDisputeRepo{
		disputes:  make(map[uuid.UUID]*models.Dispute),
		contracts: contracts,
	}
}

func (f *fakeDisputeRepo) Open(ctx context.Context, d *models.Dispute, contractVersion int) error {
	if err := f.contracts.mutate(d.ContractID, contractVersion, func(c *models.Contract) {
		c.Status = models.ContractStatusDisputed
	}); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	d.ID = uuid.New()
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now
	cp := *d
	f.disputes[d.ID] = &cp
	return nil
}

func (f *fakeDisputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.disputes[id]
	if !ok {
		return nil, repository.ErrDisputeNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDisputeRepo) GetUnresolvedByContract(ctx context.Context, contractID uuid.UUID) (*models.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, d := range f.disputes {
		if d.ContractID == contractID && d.Unresolved() {
			cp := *d
			return &cp, nil
		}
	}
	return nil, repository.ErrDisputeNotFound
}

func (f *fakeDisputeRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Dispute
	for _, d := range f.disputes {
		if d.RaisedBy == userID || d.Against == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDisputeRepo) ListAll(ctx context.Context, status string, limit, offset int) ([]models.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Dispute
	for _, d := range f.disputes {
		if status == "" || d.Status == status {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDisputeRepo) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.disputes[id]
	if !ok {
		return repository.ErrDisputeNotFound
	}
	d.Status = status
	d.UpdatedAt = time.Now()
	return nil
}

func (f *fakeDisputeRepo) Resolve(ctx context.Context, d *models.Dispute, contractStatus string, contractVersion int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.disputes[d.ID]
	if !ok {
		return repository.ErrDisputeNotFound
	}
	if err := f.contracts.mutate(d.ContractID, contractVersion, func(c *models.Contract) {
		c.Status = contractStatus
	}); err != nil {
		return err
	}
	now := time.Now()
	stored.Status = d.Status
	stored.ResolutionType = d.ResolutionType
	stored.ResolutionAmount = d.ResolutionAmount
	stored.ResolutionNotes = d.ResolutionNotes
	stored.ResolvedBy = d.ResolvedBy
	stored.ResolvedAt = &now
	stored.UpdatedAt = now
	d.ResolvedAt = &now
	return nil
}

// fakeLedger — in-memory эскроу-реестр с подсчётом отправленных транзакций.
type fakeLedger struct {
	mu      sync.Mutex
	chainID int64

	balances map[string]decimal.Decimal
	funded   map[string]decimal.Decimal
	released map[string]map[int]bool

	depositCalls int
	releaseCalls int

	registerErr error
	depositErr  error
	releaseErr  error
	observeErr  error
}

func newFakeLedger(chainID int64) *fakeLedger {
	return &fakeLedger{
		chainID:  chainID,
		balances: make(map[string]decimal.Decimal),
		funded:   make(map[string]decimal.Decimal),
		released: make(map[string]map[int]bool),
	}
}

func (f *fakeLedger) Register(ctx context.Context, seed string) (string, error) {
	if f.registerErr != nil {
		return "", f.registerErr
	}
	return "0x" + fmt.Sprintf("%064x", len(seed)) + seed, nil
}

func (f *fakeLedger) Deposit(ctx context.Context, onchainID string, amount decimal.Decimal) (*chain.TxReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.depositCalls++
	if f.depositErr != nil {
		return nil, f.depositErr
	}
	f.funded[onchainID] = f.funded[onchainID].Add(amount)
	return &chain.TxReceipt{TxHash: "0xdeposit", BlockNumber: 1}, nil
}

func (f *fakeLedger) ReleaseMilestone(ctx context.Context, onchainID string, index int) (*chain.TxReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.releaseCalls++
	if f.releaseErr != nil {
		return nil, f.releaseErr
	}
	if f.released[onchainID] == nil {
		f.released[onchainID] = make(map[int]bool)
	}
	f.released[onchainID][index] = true
	return &chain.TxReceipt{TxHash: "0xrelease", BlockNumber: 2}, nil
}

func (f *fakeLedger) ObserveState(ctx context.Context, onchainID string) (*chain.EscrowState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.observeErr != nil {
		return nil, f.observeErr
	}
	state := &chain.EscrowState{FundedAmount: f.funded[onchainID]}
	for idx := range f.released[onchainID] {
		state.ReleasedIndices = append(state.ReleasedIndices, idx)
	}
	return state, nil
}

func (f *fakeLedger) BalanceOf(ctx context.Context, wallet string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[wallet], nil
}

func (f *fakeLedger) RequiredChainID() int64 {
	return f.chainID
}

func (f *fakeLedger) setBalance(wallet string, amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[wallet] = amount
}

func (f *fakeLedger) markReleased(onchainID string, index int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released[onchainID] == nil {
		f.released[onchainID] = make(map[int]bool)
	}
	f.released[onchainID][index] = true
}

// testContract собирает контракт с вехами заданных сумм и кладёт его в
// репозиторий. Кошельки фиксированы, суммы задаются строками.
func testContract(repo *fakeContractRepo, clientID, freelancerID uuid.UUID, amounts ...string) *models.Contract {
	c := &models.Contract{
		ContractID:       "CTR-TEST0001",
		ClientID:         clientID,
		ClientWallet:     "0xAbC0000000000000000000000000000000000001",
		FreelancerID:     freelancerID,
		FreelancerWallet: "0xAbC0000000000000000000000000000000000002",
		ScopeOfWork:      "Разработка backend-сервиса",
		Status:           models.ContractStatusCreated,
	}
	for i, a := range amounts {
		amount := decimal.RequireFromString(a)
		c.Milestones = append(c.Milestones, models.Milestone{
			Idx:         i,
			Description: fmt.Sprintf("Этап %d", i+1),
			Amount:      amount,
			Status:      models.MilestoneStatusPending,
		})
		c.TotalAmount = c.TotalAmount.Add(amount)
	}
	_ = repo.Create(context.Background(), c)
	return c
}

// recordingNotifier накапливает отправленные события.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(userID uuid.UUID, event string, data any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) has(event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}
