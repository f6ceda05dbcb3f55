package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized  ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden     ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest    ErrorCode = "BAD_REQUEST"
	ErrCodeConflict      ErrorCode = "CONFLICT"
	ErrCodeInternal      ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation    ErrorCode = "VALIDATION_ERROR"
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"

	// Коды нарушений guard-условий жизненного цикла контракта.
	// Никогда не ретраятся автоматически — ошибка на стороне вызывающего.
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeNotAccepted       ErrorCode = "NOT_ACCEPTED"
	ErrCodeAlreadyReleased   ErrorCode = "ALREADY_RELEASED"
	ErrCodeContractTerminal  ErrorCode = "CONTRACT_TERMINAL"
	ErrCodeInvalidMilestone  ErrorCode = "INVALID_MILESTONE"
	ErrCodeInvalidResolution ErrorCode = "INVALID_RESOLUTION"
	ErrCodeInvalidRating     ErrorCode = "INVALID_RATING"

	// Коды проверок кошелька и окружения перед on-chain вызовами.
	ErrCodeWalletMismatch    ErrorCode = "WALLET_MISMATCH"
	ErrCodeWrongNetwork      ErrorCode = "WRONG_NETWORK"
	ErrCodeInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"

	// ChainUnavailable — транзиентная ошибка адаптера, вызов можно повторить
	// (предварительно выполнив sync, чтобы не отправить транзакцию дважды).
	ErrCodeChainUnavailable ErrorCode = "CHAIN_UNAVAILABLE"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]any
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

// WithDetail добавляет контекст, достаточный для действия на стороне UI:
// требуемый кошелёк, требуемую сеть, требуемый баланс и т.п.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeForbidden, ErrCodeWalletMismatch:
		return http.StatusForbidden
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeBadRequest, ErrCodeValidation, ErrCodeWrongNetwork,
		ErrCodeInvalidMilestone, ErrCodeInvalidResolution, ErrCodeInvalidRating:
		return http.StatusBadRequest
	case ErrCodeConflict, ErrCodeInvalidTransition, ErrCodeNotAccepted,
		ErrCodeAlreadyReleased, ErrCodeContractTerminal:
		return http.StatusConflict
	case ErrCodeInsufficientFunds:
		return http.StatusPaymentRequired
	case ErrCodeChainUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func IsNotFound(err error) bool {
	return Is(err, ErrCodeNotFound)
}

// IsRetryable сообщает, имеет ли смысл повторять вызов: только сбои
// адаптера блокчейна транзиентны, guard-ошибки требуют исправления вызова.
func IsRetryable(err error) bool {
	return Is(err, ErrCodeChainUnavailable)
}

var (
	ErrContractNotFound = New(ErrCodeNotFound, "контракт не найден")
	ErrDisputeNotFound  = New(ErrCodeNotFound, "спор не найден")
	ErrUnauthorized     = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrForbidden        = New(ErrCodeForbidden, "недостаточно прав")
)
