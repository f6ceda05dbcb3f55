package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Dispute — спор по контракту. Хранится отдельно от контракта и ссылается
// на него по ContractID; открытие спора переводит контракт в disputed и
// замораживает движение средств до решения администратора.
type Dispute struct {
	ID           uuid.UUID `db:"id" json:"id"`
	ContractID   uuid.UUID `db:"contract_id" json:"contract_id"`
	RaisedBy     uuid.UUID `db:"raised_by" json:"raised_by"`
	RaisedByRole string    `db:"raised_by_role" json:"raised_by_role"`
	Against      uuid.UUID `db:"against" json:"against"`
	Reason       string    `db:"reason" json:"reason"`
	Description  string    `db:"description" json:"description"`
	Status       string    `db:"status" json:"status"`
	Priority     string    `db:"priority" json:"priority"`

	ResolutionType   *string             `db:"resolution_type" json:"resolution_type,omitempty"`
	ResolutionAmount decimal.NullDecimal `db:"resolution_amount" json:"resolution_amount,omitempty"`
	ResolutionNotes  *string             `db:"resolution_notes" json:"resolution_notes,omitempty"`
	ResolvedBy       *uuid.UUID          `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time          `db:"resolved_at" json:"resolved_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Unresolved сообщает, блокирует ли спор открытие нового.
func (d *Dispute) Unresolved() bool {
	return d.Status == DisputeStatusOpen || d.Status == DisputeStatusUnderReview
}

// PriorityForReason возвращает приоритет спора по коду причины.
func PriorityForReason(reason string) string {
	switch reason {
	case DisputeReasonFraud:
		return DisputePriorityCritical
	case DisputeReasonNonDelivery, DisputeReasonPaymentIssue:
		return DisputePriorityHigh
	case DisputeReasonMissedDeadline:
		return DisputePriorityLow
	}
	return DisputePriorityMedium
}
