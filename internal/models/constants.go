package models

// ContractStatus константы статусов контракта
const (
	ContractStatusCreated    = "created"
	ContractStatusRegistered = "registered"
	ContractStatusFunded     = "funded"
	ContractStatusCompleted  = "completed"
	ContractStatusDisputed   = "disputed"
	ContractStatusCancelled  = "cancelled"
	ContractStatusRefunded   = "refunded"
)

// MilestoneStatus константы статусов вех.
// Статусы completed/approved/paid эквивалентны с точки зрения прогресса:
// средства по вехе уже высвобождены.
const (
	MilestoneStatusPending   = "pending"
	MilestoneStatusCompleted = "completed"
	MilestoneStatusApproved  = "approved"
	MilestoneStatusPaid      = "paid"
)

// DisputeStatus константы статусов споров
const (
	DisputeStatusOpen        = "open"
	DisputeStatusUnderReview = "under_review"
	DisputeStatusResolved    = "resolved"
	DisputeStatusClosed      = "closed"
)

// DisputePriority приоритеты споров
const (
	DisputePriorityLow      = "low"
	DisputePriorityMedium   = "medium"
	DisputePriorityHigh     = "high"
	DisputePriorityCritical = "critical"
)

// DisputeReason коды причин споров
const (
	DisputeReasonNonDelivery      = "non_delivery"
	DisputeReasonPoorQuality      = "poor_quality"
	DisputeReasonPaymentIssue     = "payment_issue"
	DisputeReasonMissedDeadline   = "missed_deadline"
	DisputeReasonScopeDisagreement = "scope_disagreement"
	DisputeReasonFraud            = "fraud"
	DisputeReasonOther            = "other"
)

// ResolutionType типы решений арбитража
const (
	ResolutionRefundFull     = "refund_full"
	ResolutionRefundPartial  = "refund_partial"
	ResolutionReleasePayment = "release_payment"
	ResolutionSplit          = "split"
	ResolutionNoAction       = "no_action"
)

// Role роли сторон контракта
const (
	RoleClient     = "client"
	RoleFreelancer = "freelancer"
	RoleAdmin      = "admin"
)

// ValidContractStatuses список валидных статусов контрактов
var ValidContractStatuses = map[string]struct{}{
	ContractStatusCreated:    {},
	ContractStatusRegistered: {},
	ContractStatusFunded:     {},
	ContractStatusCompleted:  {},
	ContractStatusDisputed:   {},
	ContractStatusCancelled:  {},
	ContractStatusRefunded:   {},
}

// TerminalContractStatuses статусы, после которых движение средств невозможно
var TerminalContractStatuses = map[string]struct{}{
	ContractStatusCompleted: {},
	ContractStatusCancelled: {},
	ContractStatusRefunded:  {},
}

// ValidDisputeReasons список валидных причин споров
var ValidDisputeReasons = map[string]struct{}{
	DisputeReasonNonDelivery:       {},
	DisputeReasonPoorQuality:       {},
	DisputeReasonPaymentIssue:      {},
	DisputeReasonMissedDeadline:    {},
	DisputeReasonScopeDisagreement: {},
	DisputeReasonFraud:             {},
	DisputeReasonOther:             {},
}

// ValidResolutionTypes список валидных типов решений
var ValidResolutionTypes = map[string]struct{}{
	ResolutionRefundFull:     {},
	ResolutionRefundPartial:  {},
	ResolutionReleasePayment: {},
	ResolutionSplit:          {},
	ResolutionNoAction:       {},
}

// IsTerminalStatus проверяет, является ли статус контракта терминальным.
func IsTerminalStatus(status string) bool {
	_, ok := TerminalContractStatuses[status]
	return ok
}
