package tx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"azuro-bet/internal/chain"
)

// Call is one contract write.
type Call struct {
	To    common.Address
	Data  []byte
	Value *big.Int // nil = 0
}

// Sender signs, sends and confirms calls, driving a Machine through its states.
type Sender struct {
	backend      chain.Backend
	wallet       *chain.Wallet
	chainID      *big.Int
	pollInterval time.Duration
	gasLimit     uint64 // used when estimation fails
	dryRun       bool   // sign but never broadcast
	logger       *slog.Logger
}

// NewSender creates a Sender for one wallet on one chain.
func NewSender(backend chain.Backend, wallet *chain.Wallet, chainID int64, pollInterval time.Duration, gasLimit uint64, logger *slog.Logger) *Sender {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Sender{
		backend:      backend,
		wallet:       wallet,
		chainID:      big.NewInt(chainID),
		pollInterval: pollInterval,
		gasLimit:     gasLimit,
		logger:       logger.With("component", "tx_sender"),
	}
}

// SetDryRun makes Send sign calls without broadcasting them; the machine is
// driven to success with a synthetic receipt.
func (s *Sender) SetDryRun(dryRun bool) {
	s.dryRun = dryRun
}

// Send runs the full lifecycle of call on m and blocks until the receipt is
// observed or ctx is done. Errors are recorded on m as well as returned.
func (s *Sender) Send(ctx context.Context, m *Machine, call Call) (*types.Receipt, error) {
	if err := m.Begin(); err != nil {
		return nil, err
	}

	signed, err := s.build(ctx, call)
	if err != nil {
		_ = m.Fail(err)
		return nil, err
	}
	if s.dryRun {
		return s.fakeSend(m, signed)
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		err = fmt.Errorf("send tx: %w", err)
		_ = m.Fail(err)
		return nil, err
	}
	if err := m.Submitted(signed.Hash()); err != nil {
		return nil, err
	}
	s.logger.Info("transaction submitted", "kind", m.Kind(), "tx", signed.Hash().Hex())

	receipt, err := s.wait(ctx, signed.Hash())
	if err != nil {
		_ = m.Fail(err)
		return nil, err
	}
	if _, err := m.Observe(receipt); err != nil {
		return nil, err
	}

	st := m.State()
	if st.IsError() {
		s.logger.Warn("transaction failed", "kind", m.Kind(), "tx", signed.Hash().Hex(), "block", receipt.BlockNumber)
		return receipt, st.Err
	}
	s.logger.Info("transaction confirmed", "kind", m.Kind(), "tx", signed.Hash().Hex(), "block", receipt.BlockNumber)
	return receipt, nil
}

func (s *Sender) fakeSend(m *Machine, signed *types.Transaction) (*types.Receipt, error) {
	s.logger.Info("DRY-RUN: would send transaction", "kind", m.Kind(), "to", signed.To().Hex(), "value", signed.Value())
	if err := m.Submitted(signed.Hash()); err != nil {
		return nil, err
	}
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      signed.Hash(),
		BlockNumber: big.NewInt(0),
	}
	if _, err := m.Observe(receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

func (s *Sender) build(ctx context.Context, call Call) (*types.Transaction, error) {
	from := s.wallet.Address()
	value := call.Value
	if value == nil {
		value = big.NewInt(0)
	}

	nonce, err := s.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	to := call.To
	gas, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: call.Data})
	if err != nil {
		if s.gasLimit == 0 {
			return nil, fmt.Errorf("estimate gas: %w", err)
		}
		s.logger.Warn("gas estimation failed, using fallback", "error", err, "gas", s.gasLimit)
		gas = s.gasLimit
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     call.Data,
	})
	return s.wallet.SignTx(tx, s.chainID)
}

// wait polls for the receipt until it is mined or ctx is done.
func (s *Sender) wait(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			s.logger.Debug("receipt poll failed", "tx", hash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
