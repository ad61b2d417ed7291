// Copyright (c) 2026 MortalNet Authors
// released under the MIT license

package irc

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Bucket is a per-session token bucket flood guard. It wraps
// golang.org/x/time/rate.Limiter and adds a strike counter on top:
// consecutive rejected sends accumulate strikes, and enough of them
// tell the caller to disconnect the session.
type Bucket struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	strikes int
	maxStr  int
}

// NewBucket builds a bucket refilling at ratePerSec messages/sec, up to
// burst tokens, disconnecting a session after maxStrikes consecutive
// rejected sends.
func NewBucket(ratePerSec, burst float64, maxStrikes int) *Bucket {
	return &Bucket{
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), int(burst)),
		maxStr:  maxStrikes,
	}
}

// Allow consumes one token if available. It reports whether the message
// may proceed, and whether the caller has now accumulated enough
// consecutive rejections to warrant disconnecting the session.
func (b *Bucket) Allow() (allowed, shouldDisconnect bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limiter.AllowN(time.Now(), 1) {
		b.strikes = 0
		return true, false
	}
	b.strikes++
	return false, b.strikes >= b.maxStr
}
