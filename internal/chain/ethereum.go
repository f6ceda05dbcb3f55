package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

// weiDecimals — нативная валюта хранится on-chain в wei (10^18).
const weiDecimals = 18

// escrowABI описывает публичные entry points эскроу-контракта.
// Внутренний учёт контракта вне нашей зоны ответственности.
const escrowABI = `[
	{"type":"function","name":"register","stateMutability":"nonpayable","inputs":[{"name":"id","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"deposit","stateMutability":"payable","inputs":[{"name":"id","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"releaseMilestone","stateMutability":"nonpayable","inputs":[{"name":"id","type":"bytes32"},{"name":"index","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"escrowState","stateMutability":"view","inputs":[{"name":"id","type":"bytes32"}],"outputs":[{"name":"funded","type":"uint256"},{"name":"released","type":"uint256[]"}]}
]`

// EthereumLedger — реализация Ledger поверх EVM-совместимой сети.
type EthereumLedger struct {
	client         *ethclient.Client
	contractABI    abi.ABI
	address        common.Address
	key            *ecdsa.PrivateKey
	operator       common.Address
	chainID        *big.Int
	confirmTimeout time.Duration
}

// NewEthereumLedger подключается к RPC ноде и готовит адаптер.
// operatorKey — приватный ключ сервисного кошелька, подписывающего транзакции.
func NewEthereumLedger(ctx context.Context, rpcURL, contractAddress, operatorKey string, chainID int64, confirmTimeout time.Duration) (*EthereumLedger, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: не удалось подключиться к ноде %s: %w", rpcURL, err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(escrowABI))
	if err != nil {
		return nil, fmt.Errorf("chain: не удалось распарсить ABI: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(operatorKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain: невалидный ключ оператора: %w", err)
	}

	return &EthereumLedger{
		client:         client,
		contractABI:    parsedABI,
		address:        common.HexToAddress(contractAddress),
		key:            key,
		operator:       crypto.PubkeyToAddress(key.PublicKey),
		chainID:        big.NewInt(chainID),
		confirmTimeout: confirmTimeout,
	}, nil
}

// Register регистрирует эскроу. Onchain id — keccak256 от seed, поэтому
// повторная регистрация того же контракта приходит с тем же id и безопасна.
func (l *EthereumLedger) Register(ctx context.Context, seed string) (string, error) {
	id := crypto.Keccak256Hash([]byte(seed))

	input, err := l.contractABI.Pack("register", id)
	if err != nil {
		return "", fmt.Errorf("chain: register pack: %w", err)
	}

	submit := func() error {
		_, err := l.submit(ctx, input, nil)
		return err
	}
	if err := backoff.Retry(submit, l.retryPolicy(ctx)); err != nil {
		return "", err
	}

	return id.Hex(), nil
}

func (l *EthereumLedger) Deposit(ctx context.Context, onchainID string, amount decimal.Decimal) (*TxReceipt, error) {
	input, err := l.contractABI.Pack("deposit", common.HexToHash(onchainID))
	if err != nil {
		return nil, fmt.Errorf("chain: deposit pack: %w", err)
	}
	return l.submit(ctx, input, ToWei(amount))
}

func (l *EthereumLedger) ReleaseMilestone(ctx context.Context, onchainID string, index int) (*TxReceipt, error) {
	input, err := l.contractABI.Pack("releaseMilestone", common.HexToHash(onchainID), big.NewInt(int64(index)))
	if err != nil {
		return nil, fmt.Errorf("chain: releaseMilestone pack: %w", err)
	}
	return l.submit(ctx, input, nil)
}

// ObserveState читает состояние эскроу через eth_call. Чтение дешёвое,
// поэтому транзиентные сбои ноды ретраим на месте.
func (l *EthereumLedger) ObserveState(ctx context.Context, onchainID string) (*EscrowState, error) {
	input, err := l.contractABI.Pack("escrowState", common.HexToHash(onchainID))
	if err != nil {
		return nil, fmt.Errorf("chain: escrowState pack: %w", err)
	}

	var raw []byte
	call := func() error {
		raw, err = l.client.CallContract(ctx, ethereum.CallMsg{To: &l.address, Data: input}, nil)
		return err
	}
	if err := backoff.Retry(call, l.retryPolicy(ctx)); err != nil {
		return nil, fmt.Errorf("chain: escrowState call: %w", err)
	}

	values, err := l.contractABI.Unpack("escrowState", raw)
	if err != nil {
		return nil, fmt.Errorf("chain: escrowState unpack: %w", err)
	}

	funded, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: escrowState: неожиданный тип funded")
	}
	releasedRaw, ok := values[1].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: escrowState: неожиданный тип released")
	}

	state := &EscrowState{FundedAmount: FromWei(funded)}
	for _, idx := range releasedRaw {
		state.ReleasedIndices = append(state.ReleasedIndices, int(idx.Int64()))
	}
	return state, nil
}

func (l *EthereumLedger) BalanceOf(ctx context.Context, wallet string) (decimal.Decimal, error) {
	balance, err := l.client.BalanceAt(ctx, common.HexToAddress(wallet), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("chain: balance %s: %w", wallet, err)
	}
	return FromWei(balance), nil
}

func (l *EthereumLedger) RequiredChainID() int64 {
	return l.chainID.Int64()
}

// submit подписывает транзакцию ключом оператора, отправляет её и ждёт
// включения в блок не дольше confirmTimeout.
func (l *EthereumLedger) submit(ctx context.Context, input []byte, value *big.Int) (*TxReceipt, error) {
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := l.client.PendingNonceAt(ctx, l.operator)
	if err != nil {
		return nil, fmt.Errorf("chain: nonce: %w", err)
	}

	gasPrice, err := l.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: gas price: %w", err)
	}

	gasLimit, err := l.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  l.operator,
		To:    &l.address,
		Value: value,
		Data:  input,
	})
	if err != nil {
		return nil, fmt.Errorf("chain: estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &l.address,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     input,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(l.chainID), l.key)
	if err != nil {
		return nil, fmt.Errorf("chain: sign: %w", err)
	}

	if err := l.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("chain: send: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, l.client, signed)
	if err != nil {
		return nil, fmt.Errorf("chain: ожидание подтверждения %s: %w", signed.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("chain: транзакция %s отклонена контрактом", signed.Hash().Hex())
	}

	return &TxReceipt{
		TxHash:      signed.Hash().Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
	}, nil
}

func (l *EthereumLedger) retryPolicy(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(policy, ctx)
}

// ToWei переводит сумму в минимальные единицы сети.
func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(weiDecimals).BigInt()
}

// FromWei переводит wei в десятичную сумму.
func FromWei(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, 0).Shift(-weiDecimals)
}
