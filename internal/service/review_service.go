package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository"
)

// ReviewService — взаимные отзывы сторон после завершения контракта.
// Роль рецензента определяет заполняемый слот: клиент пишет отзыв о
// фрилансере, фрилансер — о клиенте. Каждый слот пишется один раз.
type ReviewService struct {
	repo     ContractRepository
	notifier Notifier
}

func NewReviewService(repo ContractRepository, notifier Notifier) *ReviewService {
	return &ReviewService{repo: repo, notifier: notifier}
}

// SubmitReview записывает отзыв. Guard: контракт завершён, рейтинг 1–5,
// слот рецензируемой стороны ещё пуст.
func (s *ReviewService) SubmitReview(ctx context.Context, contractID, userID uuid.UUID, rating int, comment *string) (*models.Contract, error) {
	if rating < 1 || rating > 5 {
		return nil, apperror.New(apperror.ErrCodeInvalidRating, "рейтинг должен быть от 1 до 5")
	}

	contract, err := s.repo.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}

	role := contract.RoleOf(userID)
	if role == "" {
		return nil, apperror.ErrForbidden
	}
	if contract.Status != models.ContractStatusCompleted {
		return nil, apperror.New(apperror.ErrCodeInvalidTransition,
			"отзыв можно оставить только после завершения контракта")
	}

	reviewedRole := models.RoleFreelancer
	reviewedID := contract.FreelancerID
	if role == models.RoleFreelancer {
		reviewedRole = models.RoleClient
		reviewedID = contract.ClientID
	}

	if err := s.repo.SetReview(ctx, contract.ID, reviewedRole, rating, comment); err != nil {
		if err == repository.ErrAlreadyReviewed {
			return nil, apperror.New(apperror.ErrCodeConflict, "отзыв по этому контракту уже оставлен")
		}
		return nil, err
	}

	s.notifier.Notify(reviewedID, models.EventReviewSubmitted, map[string]any{
		"contract_id": contract.ID,
		"rating":      rating,
	})
	return s.repo.GetByID(ctx, contractID)
}
