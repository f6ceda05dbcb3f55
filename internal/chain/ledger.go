package chain

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// EscrowState — наблюдаемое on-chain состояние эскроу по контракту.
// Используется исключительно операцией sync: локальная запись приводится
// к этому состоянию, никогда наоборот.
type EscrowState struct {
	FundedAmount    decimal.Decimal `json:"funded_amount"`
	ReleasedIndices []int           `json:"released_indices"`
}

// Released сообщает, высвобождена ли веха с данным индексом.
func (s *EscrowState) Released(index int) bool {
	for _, i := range s.ReleasedIndices {
		if i == index {
			return true
		}
	}
	return false
}

// TxReceipt — квитанция подтверждённой on-chain транзакции.
type TxReceipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
}

// Ledger — адаптер к on-chain эскроу-контракту. Контракт рассматривается
// как непрозрачный реестр: сервис отправляет register/deposit/releaseMilestone
// и сверяет локальное состояние через ObserveState.
type Ledger interface {
	// Register регистрирует эскроу on-chain. Идемпотентна по построению:
	// onchain id детерминированно выводится из seed, повтор безопасен.
	Register(ctx context.Context, seed string) (string, error)

	// Deposit вносит средства в эскроу и ждёт подтверждения.
	// Баланс кошелька должен быть проверен вызывающим заранее.
	Deposit(ctx context.Context, onchainID string, amount decimal.Decimal) (*TxReceipt, error)

	// ReleaseMilestone высвобождает средства по вехе и ждёт подтверждения.
	ReleaseMilestone(ctx context.Context, onchainID string, index int) (*TxReceipt, error)

	// ObserveState читает состояние эскроу. Не отправляет транзакций.
	ObserveState(ctx context.Context, onchainID string) (*EscrowState, error)

	// BalanceOf возвращает баланс кошелька в единицах валюты контракта.
	BalanceOf(ctx context.Context, wallet string) (decimal.Decimal, error)

	// RequiredChainID — сеть, в которой развёрнут эскроу-контракт.
	RequiredChainID() int64
}

// IsInsufficientFunds распознаёт chain-level отказ из-за нехватки средств,
// чтобы перевесить его тем же кодом, что и проактивную проверку баланса.
func IsInsufficientFunds(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "insufficient funds")
}
