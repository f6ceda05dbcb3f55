package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestContract_AllReleased(t *testing.T) {
	c := &Contract{Milestones: []Milestone{
		{Status: MilestoneStatusPaid},
		{Status: MilestoneStatusApproved},
		{Status: MilestoneStatusCompleted},
	}}
	assert.True(t, c.AllReleased())

	c.Milestones[1].Status = MilestoneStatusPending
	assert.False(t, c.AllReleased())

	// Контракт без вех не считается завершённым.
	empty := &Contract{}
	assert.False(t, empty.AllReleased())
}

func TestMilestoneTotal(t *testing.T) {
	milestones := []Milestone{
		{Amount: decimal.RequireFromString("1.2")},
		{Amount: decimal.RequireFromString("0.8")},
		{Amount: decimal.RequireFromString("3")},
	}
	assert.True(t, MilestoneTotal(milestones).Equal(decimal.NewFromInt(5)))
	assert.True(t, MilestoneTotal(nil).Equal(decimal.Zero))
}

func TestContract_RoleOf(t *testing.T) {
	clientID, freelancerID := uuid.New(), uuid.New()
	c := &Contract{ClientID: clientID, FreelancerID: freelancerID}

	assert.Equal(t, RoleClient, c.RoleOf(clientID))
	assert.Equal(t, RoleFreelancer, c.RoleOf(freelancerID))
	assert.Equal(t, "", c.RoleOf(uuid.New()))
}

func TestWalletMatches(t *testing.T) {
	registered := "0xAbCdEf0000000000000000000000000000000001"

	assert.True(t, WalletMatches(registered, registered))
	assert.True(t, WalletMatches(registered, "0xabcdef0000000000000000000000000000000001"))
	assert.True(t, WalletMatches(registered, "0xABCDEF0000000000000000000000000000000001"))
	assert.False(t, WalletMatches(registered, "0xAbCdEf0000000000000000000000000000000002"))

	// Контракт без зарегистрированного кошелька не совпадает ни с чем.
	assert.False(t, WalletMatches("", ""))
	assert.False(t, WalletMatches("", "0xAbCdEf0000000000000000000000000000000001"))
}

func TestIsTerminalStatus(t *testing.T) {
	for _, s := range []string{ContractStatusCompleted, ContractStatusCancelled, ContractStatusRefunded} {
		assert.True(t, IsTerminalStatus(s), s)
	}
	for _, s := range []string{ContractStatusCreated, ContractStatusRegistered, ContractStatusFunded, ContractStatusDisputed} {
		assert.False(t, IsTerminalStatus(s), s)
	}
}

func TestPriorityForReason(t *testing.T) {
	assert.Equal(t, DisputePriorityCritical, PriorityForReason(DisputeReasonFraud))
	assert.Equal(t, DisputePriorityHigh, PriorityForReason(DisputeReasonNonDelivery))
	assert.Equal(t, DisputePriorityHigh, PriorityForReason(DisputeReasonPaymentIssue))
	assert.Equal(t, DisputePriorityLow, PriorityForReason(DisputeReasonMissedDeadline))
	assert.Equal(t, DisputePriorityMedium, PriorityForReason(DisputeReasonScopeDisagreement))
	assert.Equal(t, DisputePriorityMedium, PriorityForReason(DisputeReasonOther))
}
