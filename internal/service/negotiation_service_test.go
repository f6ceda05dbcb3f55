package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

func newNegotiationFixture() (*NegotiationService, *fakeContractRepo, *recordingNotifier) {
	repo := newFakeContractRepo()
	notifier := &recordingNotifier{}
	return NewNegotiationService(repo, notifier), repo, notifier
}

func TestNegotiationService_Accept_Success(t *testing.T) {
	svc, repo, notifier := newNegotiationFixture()
	c := testContract(repo, uuid.New(), uuid.New(), "1")

	result, err := svc.Accept(context.Background(), c.ID, c.FreelancerID)

	assert.NoError(t, err)
	assert.True(t, result.FreelancerAccepted)
	// Согласие не меняет статус: это guard для публикации.
	assert.Equal(t, models.ContractStatusCreated, result.Status)
	assert.True(t, notifier.has(models.EventContractAccepted))
}

func TestNegotiationService_Accept_OnlyFreelancer(t *testing.T) {
	svc, repo, _ := newNegotiationFixture()
	c := testContract(repo, uuid.New(), uuid.New(), "1")

	_, err := svc.Accept(context.Background(), c.ID, c.ClientID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = svc.Accept(context.Background(), c.ID, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestNegotiationService_Accept_Twice(t *testing.T) {
	svc, repo, _ := newNegotiationFixture()
	c := testContract(repo, uuid.New(), uuid.New(), "1")

	_, err := svc.Accept(context.Background(), c.ID, c.FreelancerID)
	assert.NoError(t, err)

	_, err = svc.Accept(context.Background(), c.ID, c.FreelancerID)
	assert.True(t, apperror.Is(err, apperror.ErrCodeInvalidTransition))
}

func TestNegotiationService_Reject_Success(t *testing.T) {
	svc, repo, notifier := newNegotiationFixture()
	c := testContract(repo, uuid.New(), uuid.New(), "1")

	result, err := svc.Reject(context.Background(), c.ID, c.FreelancerID)

	assert.NoError(t, err)
	assert.Equal(t, models.ContractStatusCancelled, result.Status)
	assert.True(t, notifier.has(models.EventContractRejected))
}

func TestNegotiationService_Reject_AfterAccept(t *testing.T) {
	svc, repo, _ := newNegotiationFixture()
	c := testContract(repo, uuid.New(), uuid.New(), "1")

	_, err := svc.Accept(context.Background(), c.ID, c.FreelancerID)
	assert.NoError(t, err)

	_, err = svc.Reject(context.Background(), c.ID, c.FreelancerID)
	assert.True(t, apperror.Is(err, apperror.ErrCodeInvalidTransition))
}

func TestNegotiationService_RequestRevision_StoresFeedbackVerbatim(t *testing.T) {
	svc, repo, notifier := newNegotiationFixture()
	c := testContract(repo, uuid.New(), uuid.New(), "1")

	feedback := "  Срок по второму этапу слишком короткий, нужно +2 недели.  "
	result, err := svc.RequestRevision(context.Background(), c.ID, c.FreelancerID, feedback)

	assert.NoError(t, err)
	assert.NotNil(t, result.RevisionFeedback)
	assert.Equal(t, feedback, *result.RevisionFeedback)
	assert.False(t, result.FreelancerAccepted)
	assert.Equal(t, models.ContractStatusCreated, result.Status)
	assert.True(t, notifier.has(models.EventRevisionRequested))
}

func TestNegotiationService_RequestRevision_EmptyFeedback(t *testing.T) {
	svc, repo, _ := newNegotiationFixture()
	c := testContract(repo, uuid.New(), uuid.New(), "1")

	_, err := svc.RequestRevision(context.Background(), c.ID, c.FreelancerID, "   ")

	assert.True(t, apperror.Is(err, apperror.ErrCodeValidation))
}

func TestNegotiationService_EditTerms_RecomputesTotalAndClearsFeedback(t *testing.T) {
	svc, repo, notifier := newNegotiationFixture()
	c := testContract(repo, uuid.New(), uuid.New(), "1", "2")

	_, err := svc.RequestRevision(context.Background(), c.ID, c.FreelancerID, "мало")
	assert.NoError(t, err)

	result, err := svc.EditTerms(context.Background(), c.ID, c.ClientID, EditTermsInput{
		ScopeOfWork: "Обновлённый объём работ",
		Milestones: []MilestoneInput{
			{Description: "Этап 1", Amount: decimal.RequireFromString("2.5")},
			{Description: "Этап 2", Amount: decimal.RequireFromString("3.5")},
			{Description: "Этап 3", Amount: decimal.RequireFromString("4")},
		},
	})

	assert.NoError(t, err)
	assert.Len(t, result.Milestones, 3)
	assert.True(t, result.TotalAmount.Equal(decimal.RequireFromString("10")))
	assert.True(t, result.TotalAmount.Equal(models.MilestoneTotal(result.Milestones)))
	assert.Nil(t, result.RevisionFeedback)
	assert.True(t, notifier.has(models.EventTermsUpdated))
}

func TestNegotiationService_EditTerms_OnlyClient(t *testing.T) {
	svc, repo, _ := newNegotiationFixture()
	c := testContract(repo, uuid.New(), uuid.New(), "1")

	_, err := svc.EditTerms(context.Background(), c.ID, c.FreelancerID, EditTermsInput{
		Milestones: []MilestoneInput{{Description: "x", Amount: decimal.NewFromInt(1)}},
	})

	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestNegotiationService_EditTerms_InvalidMilestones(t *testing.T) {
	svc, repo, _ := newNegotiationFixture()
	c := testContract(repo, uuid.New(), uuid.New(), "1")

	_, err := svc.EditTerms(context.Background(), c.ID, c.ClientID, EditTermsInput{})
	assert.True(t, apperror.Is(err, apperror.ErrCodeInvalidMilestone))

	_, err = svc.EditTerms(context.Background(), c.ID, c.ClientID, EditTermsInput{
		Milestones: []MilestoneInput{{Description: "x", Amount: decimal.Zero}},
	})
	assert.True(t, apperror.Is(err, apperror.ErrCodeInvalidMilestone))
}

func TestNegotiationService_EditTerms_AfterPublishRejected(t *testing.T) {
	svc, repo, _ := newNegotiationFixture()
	c := testContract(repo, uuid.New(), uuid.New(), "1")
	assert.NoError(t, repo.SetStatus(context.Background(), c.ID, models.ContractStatusRegistered, c.Version))

	_, err := svc.EditTerms(context.Background(), c.ID, c.ClientID, EditTermsInput{
		Milestones: []MilestoneInput{{Description: "x", Amount: decimal.NewFromInt(1)}},
	})

	assert.True(t, apperror.Is(err, apperror.ErrCodeInvalidTransition))
}

func TestNegotiationService_AcceptAfterEdit_FullCycle(t *testing.T) {
	// Переговорный цикл: revision -> editTerms -> accept.
	svc, repo, _ := newNegotiationFixture()
	c := testContract(repo, uuid.New(), uuid.New(), "1")

	_, err := svc.RequestRevision(context.Background(), c.ID, c.FreelancerID, "поднимите бюджет")
	assert.NoError(t, err)

	_, err = svc.EditTerms(context.Background(), c.ID, c.ClientID, EditTermsInput{
		ScopeOfWork: "Тот же объём, новый бюджет",
		Milestones:  []MilestoneInput{{Description: "Этап 1", Amount: decimal.NewFromInt(2)}},
	})
	assert.NoError(t, err)

	result, err := svc.Accept(context.Background(), c.ID, c.FreelancerID)
	assert.NoError(t, err)
	assert.True(t, result.FreelancerAccepted)
}
