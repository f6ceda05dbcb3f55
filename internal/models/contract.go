package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Contract описывает контракт между клиентом и фрилансером с оплатой
// через on-chain эскроу. Запись в БД — единственный источник правды для
// workflow-состояния; о движении средств источник правды — блокчейн,
// локальный статус приводится к нему операцией sync.
type Contract struct {
	ID                 uuid.UUID       `db:"id" json:"id"`
	ContractID         string          `db:"contract_id" json:"contract_id"`
	OnchainID          *string         `db:"onchain_id" json:"onchain_id,omitempty"`
	ClientID           uuid.UUID       `db:"client_id" json:"client_id"`
	ClientWallet       string          `db:"client_wallet" json:"client_wallet"`
	FreelancerID       uuid.UUID       `db:"freelancer_id" json:"freelancer_id"`
	FreelancerWallet   string          `db:"freelancer_wallet" json:"freelancer_wallet"`
	ScopeOfWork        string          `db:"scope_of_work" json:"scope_of_work"`
	Deliverables       pq.StringArray  `db:"deliverables" json:"deliverables"`
	TerminationPolicy  string          `db:"termination_policy" json:"termination_policy"`
	Confidentiality    bool            `db:"confidentiality" json:"confidentiality"`
	OwnershipTransfer  string          `db:"ownership_transfer" json:"ownership_transfer"`
	AllowedRevisions   int             `db:"allowed_revisions" json:"allowed_revisions"`
	TotalAmount        decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status             string          `db:"status" json:"status"`
	FreelancerAccepted bool            `db:"freelancer_accepted" json:"freelancer_accepted"`
	RevisionFeedback   *string         `db:"revision_feedback" json:"revision_feedback,omitempty"`

	// Отзыв о клиенте пишет фрилансер, отзыв о фрилансере — клиент.
	// Каждый слот заполняется не более одного раза и только после завершения.
	ClientRating         *int       `db:"client_rating" json:"client_rating,omitempty"`
	ClientComment        *string    `db:"client_comment" json:"client_comment,omitempty"`
	ClientReviewedAt     *time.Time `db:"client_reviewed_at" json:"client_reviewed_at,omitempty"`
	FreelancerRating     *int       `db:"freelancer_rating" json:"freelancer_rating,omitempty"`
	FreelancerComment    *string    `db:"freelancer_comment" json:"freelancer_comment,omitempty"`
	FreelancerReviewedAt *time.Time `db:"freelancer_reviewed_at" json:"freelancer_reviewed_at,omitempty"`

	Version   int       `db:"version" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	Milestones []Milestone `db:"-" json:"milestones"`
}

// Milestone — оплачиваемая веха контракта. Позиция Idx в списке является
// каноническим идентификатором вехи для on-chain вызова releaseMilestone.
type Milestone struct {
	ContractID  uuid.UUID       `db:"contract_id" json:"-"`
	Idx         int             `db:"idx" json:"idx"`
	Description string          `db:"description" json:"description"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Status      string          `db:"status" json:"status"`
}

// Released сообщает, высвобождены ли средства по вехе.
func (m Milestone) Released() bool {
	switch m.Status {
	case MilestoneStatusCompleted, MilestoneStatusApproved, MilestoneStatusPaid:
		return true
	}
	return false
}

// MilestoneTotal возвращает сумму всех вех. Инвариант контракта:
// TotalAmount всегда равен этой сумме вне процесса редактирования.
func MilestoneTotal(milestones []Milestone) decimal.Decimal {
	total := decimal.Zero
	for _, m := range milestones {
		total = total.Add(m.Amount)
	}
	return total
}

// AllReleased сообщает, высвобождены ли все вехи контракта.
// Это единственный триггер перехода в completed помимо решения арбитража.
func (c *Contract) AllReleased() bool {
	if len(c.Milestones) == 0 {
		return false
	}
	for _, m := range c.Milestones {
		if !m.Released() {
			return false
		}
	}
	return true
}

// IsParticipant проверяет, является ли пользователь стороной контракта.
func (c *Contract) IsParticipant(userID uuid.UUID) bool {
	return userID == c.ClientID || userID == c.FreelancerID
}

// RoleOf возвращает роль пользователя в контракте, либо пустую строку.
func (c *Contract) RoleOf(userID uuid.UUID) string {
	switch userID {
	case c.ClientID:
		return RoleClient
	case c.FreelancerID:
		return RoleFreelancer
	}
	return ""
}

// WalletMatches сравнивает кошелёк без учёта регистра: hex-адреса
// одного кошелька встречаются и в checksummed, и в lower-case записи.
func WalletMatches(registered, acting string) bool {
	return registered != "" && strings.EqualFold(registered, acting)
}
