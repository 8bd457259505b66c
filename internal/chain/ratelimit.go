// ratelimit.go implements token-bucket rate limiting for RPC calls.
//
// Public and hosted RPC nodes throttle per-key request rates. The buckets
// refill continuously (rather than in bursts) so the service stays under the
// provider limit even while polling receipts.
//
// Three buckets are maintained:
//   - Read:    eth_call, chain id, nonce, gas price, estimation
//   - Write:   eth_sendRawTransaction
//   - Receipt: eth_getTransactionReceipt polling
package chain

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements a token-bucket rate limiter with continuous refill.
// Callers block in Wait() until a token is available or the context is cancelled.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64   // current available tokens (fractional allowed)
	capacity float64   // maximum burst size
	rate     float64   // tokens refilled per second
	lastTime time.Time // last time tokens were calculated
}

// NewTokenBucket creates a rate limiter with the given capacity and refill rate.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		tb.tokens += now.Sub(tb.lastTime).Seconds() * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}

		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// RateLimiter groups token buckets by RPC call category.
type RateLimiter struct {
	Read    *TokenBucket
	Write   *TokenBucket
	Receipt *TokenBucket
}

// NewRateLimiter sizes each bucket with a burst of ten seconds' worth of
// requests. Receipt polling shares the read rate but has its own bucket so a
// long confirmation wait cannot starve allowance reads.
func NewRateLimiter(readRate, writeRate float64) *RateLimiter {
	return &RateLimiter{
		Read:    NewTokenBucket(readRate*10, readRate),
		Write:   NewTokenBucket(writeRate*10, writeRate),
		Receipt: NewTokenBucket(readRate*10, readRate),
	}
}
