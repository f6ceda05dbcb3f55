package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// EditTermsInput — новые условия контракта. Список вех перезаписывается
// целиком, totalAmount пересчитывается из него.
type EditTermsInput struct {
	ScopeOfWork       string
	Deliverables      []string
	TerminationPolicy string
	Confidentiality   bool
	OwnershipTransfer string
	AllowedRevisions  int
	Milestones        []MilestoneInput
}

// NegotiationService реализует переговорный протокол до публикации:
// accept/reject/requestRevision со стороны фрилансера и editTerms со
// стороны клиента. Все переходы возможны только в статусе created.
type NegotiationService struct {
	repo     ContractRepository
	notifier Notifier
}

func NewNegotiationService(repo ContractRepository, notifier Notifier) *NegotiationService {
	return &NegotiationService{repo: repo, notifier: notifier}
}

// Accept фиксирует согласие фрилансера с условиями. Статус не меняется:
// согласие — это guard для последующей публикации.
func (s *NegotiationService) Accept(ctx context.Context, contractID, freelancerID uuid.UUID) (*models.Contract, error) {
	contract, err := s.repo.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.FreelancerID != freelancerID {
		return nil, apperror.ErrForbidden
	}
	if err := requireNegotiable(contract); err != nil {
		return nil, err
	}

	if err := s.repo.SetAccepted(ctx, contract.ID, contract.Version); err != nil {
		return nil, err
	}

	s.notifier.Notify(contract.ClientID, models.EventContractAccepted, contract)
	return s.repo.GetByID(ctx, contractID)
}

// Reject отклоняет контракт, переводя его в терминальный cancelled.
func (s *NegotiationService) Reject(ctx context.Context, contractID, freelancerID uuid.UUID) (*models.Contract, error) {
	contract, err := s.repo.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.FreelancerID != freelancerID {
		return nil, apperror.ErrForbidden
	}
	if err := requireNegotiable(contract); err != nil {
		return nil, err
	}

	if err := s.repo.SetStatus(ctx, contract.ID, models.ContractStatusCancelled, contract.Version); err != nil {
		return nil, err
	}

	s.notifier.Notify(contract.ClientID, models.EventContractRejected, contract)
	return s.repo.GetByID(ctx, contractID)
}

// RequestRevision сохраняет замечания фрилансера дословно. Это сигнал
// клиенту, а не смена статуса: флаг согласия остаётся снятым.
func (s *NegotiationService) RequestRevision(ctx context.Context, contractID, freelancerID uuid.UUID, feedback string) (*models.Contract, error) {
	if strings.TrimSpace(feedback) == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "замечания не могут быть пустыми")
	}

	contract, err := s.repo.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.FreelancerID != freelancerID {
		return nil, apperror.ErrForbidden
	}
	if err := requireNegotiable(contract); err != nil {
		return nil, err
	}

	if err := s.repo.SetRevisionFeedback(ctx, contract.ID, feedback, contract.Version); err != nil {
		return nil, err
	}

	s.notifier.Notify(contract.ClientID, models.EventRevisionRequested, map[string]any{
		"contract_id": contract.ID,
		"feedback":    feedback,
	})
	return s.repo.GetByID(ctx, contractID)
}

// EditTerms перезаписывает условия контракта. Редактирование трактуется
// как ответ на замечания: revision_feedback очищается, totalAmount
// пересчитывается из нового списка вех.
func (s *NegotiationService) EditTerms(ctx context.Context, contractID, clientID uuid.UUID, input EditTermsInput) (*models.Contract, error) {
	contract, err := s.repo.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.ClientID != clientID {
		return nil, apperror.ErrForbidden
	}
	if contract.Status != models.ContractStatusCreated {
		return nil, apperror.New(apperror.ErrCodeInvalidTransition,
			"условия можно менять только до публикации контракта")
	}

	milestones, total, err := buildMilestones(input.Milestones)
	if err != nil {
		return nil, err
	}

	contract.ScopeOfWork = input.ScopeOfWork
	contract.Deliverables = pq.StringArray(input.Deliverables)
	contract.TerminationPolicy = input.TerminationPolicy
	contract.Confidentiality = input.Confidentiality
	contract.OwnershipTransfer = input.OwnershipTransfer
	contract.AllowedRevisions = input.AllowedRevisions
	contract.TotalAmount = total
	contract.Milestones = milestones

	if err := s.repo.UpdateTerms(ctx, contract); err != nil {
		return nil, err
	}

	s.notifier.Notify(contract.FreelancerID, models.EventTermsUpdated, contract)
	return s.repo.GetByID(ctx, contractID)
}

// requireNegotiable проверяет guard переговорных переходов: контракт в
// created и фрилансер ещё не согласился.
func requireNegotiable(c *models.Contract) error {
	if c.Status != models.ContractStatusCreated {
		return apperror.New(apperror.ErrCodeInvalidTransition,
			"переговоры по контракту уже завершены")
	}
	if c.FreelancerAccepted {
		return apperror.New(apperror.ErrCodeInvalidTransition,
			"условия контракта уже приняты фрилансером")
	}
	return nil
}
