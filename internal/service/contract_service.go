package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// ContractRepository описывает взаимодействие сервисов с хранилищем контрактов.
type ContractRepository interface {
	Create(ctx context.Context, c *models.Contract) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Contract, error)
	SetAccepted(ctx context.Context, id uuid.UUID, version int) error
	SetStatus(ctx context.Context, id uuid.UUID, status string, version int) error
	SetRevisionFeedback(ctx context.Context, id uuid.UUID, feedback string, version int) error
	UpdateTerms(ctx context.Context, c *models.Contract) error
	SetOnchain(ctx context.Context, id uuid.UUID, onchainID, status string, version int) error
	ApplyChainState(ctx context.Context, id uuid.UUID, status string, milestoneStatuses []string) error
	SetReview(ctx context.Context, id uuid.UUID, reviewedRole string, rating int, comment *string) error
}

// Notifier рассылает сторонам события жизненного цикла контракта.
// Доставка fire-and-forget: сбой уведомления не прерывает операцию.
type Notifier interface {
	Notify(userID uuid.UUID, event string, data any)
}

// MilestoneInput — веха в запросе создания или редактирования условий.
type MilestoneInput struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// CreateContractInput — параметры создания контракта по принятому отклику.
type CreateContractInput struct {
	ClientID          uuid.UUID
	ClientWallet      string
	FreelancerID      uuid.UUID
	FreelancerWallet  string
	ScopeOfWork       string
	Deliverables      []string
	TerminationPolicy string
	Confidentiality   bool
	OwnershipTransfer string
	AllowedRevisions  int
	Milestones        []MilestoneInput
}

type ContractService struct {
	repo     ContractRepository
	notifier Notifier
}

func NewContractService(repo ContractRepository, notifier Notifier) *ContractService {
	return &ContractService{repo: repo, notifier: notifier}
}

// CreateContract создаёт контракт в статусе created. Публикация on-chain
// возможна только после согласия фрилансера с условиями.
func (s *ContractService) CreateContract(ctx context.Context, input CreateContractInput) (*models.Contract, error) {
	milestones, total, err := buildMilestones(input.Milestones)
	if err != nil {
		return nil, err
	}
	if input.ClientWallet == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "не указан кошелёк клиента")
	}
	if input.FreelancerWallet == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "не указан кошелёк фрилансера")
	}

	contract := &models.Contract{
		ContractID:        newContractID(),
		ClientID:          input.ClientID,
		ClientWallet:      input.ClientWallet,
		FreelancerID:      input.FreelancerID,
		FreelancerWallet:  input.FreelancerWallet,
		ScopeOfWork:       input.ScopeOfWork,
		Deliverables:      pq.StringArray(input.Deliverables),
		TerminationPolicy: input.TerminationPolicy,
		Confidentiality:   input.Confidentiality,
		OwnershipTransfer: input.OwnershipTransfer,
		AllowedRevisions:  input.AllowedRevisions,
		TotalAmount:       total,
		Status:            models.ContractStatusCreated,
		Milestones:        milestones,
	}

	if err := s.repo.Create(ctx, contract); err != nil {
		return nil, err
	}

	s.notifier.Notify(contract.FreelancerID, models.EventContractCreated, contract)
	return contract, nil
}

// GetContract возвращает контракт; доступ только сторонам и администратору.
func (s *ContractService) GetContract(ctx context.Context, id, userID uuid.UUID, role string) (*models.Contract, error) {
	contract, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if role != models.RoleAdmin && !contract.IsParticipant(userID) {
		return nil, apperror.ErrForbidden
	}
	return contract, nil
}

// ListUserContracts возвращает контракты пользователя.
func (s *ContractService) ListUserContracts(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Contract, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByParticipant(ctx, userID, limit, offset)
}

// buildMilestones валидирует вехи и считает total: пустой список и
// неположительные суммы отклоняются, сумма вех и есть totalAmount.
func buildMilestones(inputs []MilestoneInput) ([]models.Milestone, decimal.Decimal, error) {
	if len(inputs) == 0 {
		return nil, decimal.Zero, apperror.New(apperror.ErrCodeInvalidMilestone, "контракт должен содержать хотя бы одну веху")
	}

	milestones := make([]models.Milestone, 0, len(inputs))
	total := decimal.Zero
	for i, in := range inputs {
		if !in.Amount.IsPositive() {
			return nil, decimal.Zero, apperror.New(apperror.ErrCodeInvalidMilestone,
				fmt.Sprintf("сумма вехи %d должна быть положительной", i)).
				WithDetail("milestone_index", i)
		}
		milestones = append(milestones, models.Milestone{
			Idx:         i,
			Description: in.Description,
			Amount:      in.Amount,
			Status:      models.MilestoneStatusPending,
		})
		total = total.Add(in.Amount)
	}
	return milestones, total, nil
}

// newContractID генерирует человекочитаемый идентификатор вида CTR-1A2B3C4D.
func newContractID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "CTR-" + strings.ToUpper(raw[:8])
}
