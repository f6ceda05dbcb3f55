package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification — уведомление стороне контракта о событии жизненного цикла.
// Доставка best-effort: ошибка сохранения или отправки не прерывает операцию.
type Notification struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    uuid.UUID       `db:"user_id" json:"user_id"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	IsRead    bool            `db:"is_read" json:"is_read"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// События жизненного цикла контракта, рассылаемые сторонам.
const (
	EventContractCreated   = "contract_created"
	EventContractAccepted  = "contract_accepted"
	EventContractRejected  = "contract_rejected"
	EventRevisionRequested = "revision_requested"
	EventTermsUpdated      = "terms_updated"
	EventContractPublished = "contract_published"
	EventContractFunded    = "contract_funded"
	EventMilestoneReleased = "milestone_released"
	EventContractCompleted = "contract_completed"
	EventDisputeRaised     = "dispute_raised"
	EventDisputeResolved   = "dispute_resolved"
	EventReviewSubmitted   = "review_submitted"
)
