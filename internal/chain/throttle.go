package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Throttle wraps a Backend so every call first waits on the matching bucket.
type Throttle struct {
	next Backend
	rl   *RateLimiter
}

// NewThrottle returns a rate-limited view of next.
func NewThrottle(next Backend, rl *RateLimiter) *Throttle {
	return &Throttle{next: next, rl: rl}
}

func (t *Throttle) ChainID(ctx context.Context) (*big.Int, error) {
	if err := t.rl.Read.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.ChainID(ctx)
}

func (t *Throttle) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := t.rl.Read.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.CallContract(ctx, msg, blockNumber)
}

func (t *Throttle) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if err := t.rl.Read.Wait(ctx); err != nil {
		return 0, err
	}
	return t.next.PendingNonceAt(ctx, account)
}

func (t *Throttle) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if err := t.rl.Read.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.SuggestGasPrice(ctx)
}

func (t *Throttle) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if err := t.rl.Read.Wait(ctx); err != nil {
		return 0, err
	}
	return t.next.EstimateGas(ctx, msg)
}

func (t *Throttle) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := t.rl.Write.Wait(ctx); err != nil {
		return err
	}
	return t.next.SendTransaction(ctx, tx)
}

func (t *Throttle) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if err := t.rl.Receipt.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.TransactionReceipt(ctx, txHash)
}
