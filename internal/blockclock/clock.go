// Package blockclock provides the current block height with short-TTL
// caching and graceful degradation, grounded on
// original_source/utils/block.py's get_current_block: cache for roughly
// one block period, fall back to a stale cache on oracle failure, and
// fall back to a wall-clock-derived estimate if there is no cache at all.
package blockclock

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Oracle is the out-of-scope block-height collaborator: it returns a
// monotonic (best-effort) integer block height from the chain.
type Oracle interface {
	CurrentBlock(ctx context.Context) (int64, error)
}

// Clock caches the current block height for roughly one block period.
type Clock struct {
	oracle          Oracle
	secondsPerBlock float64
	log             *logrus.Entry

	mu        sync.Mutex
	cached    int64
	cachedAt  time.Time
	haveValue bool
}

// New constructs a Clock backed by oracle, caching each height for
// secondsPerBlock seconds (one block period).
func New(oracle Oracle, secondsPerBlock float64, log *logrus.Entry) *Clock {
	return &Clock{oracle: oracle, secondsPerBlock: secondsPerBlock, log: log}
}

func (c *Clock) ttl() time.Duration {
	return time.Duration(c.secondsPerBlock * float64(time.Second))
}

// CurrentBlock returns the current block height, a best-effort monotonic
// value. It never fails: on oracle errors it degrades to the last cached
// value, or to a wall-clock estimate if no cache exists yet.
func (c *Clock) CurrentBlock(ctx context.Context) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.haveValue && time.Since(c.cachedAt) < c.ttl() {
		return c.cached
	}

	height, err := c.oracle.CurrentBlock(ctx)
	if err != nil {
		if c.log != nil {
			c.log.WithError(err).Warn("block oracle unavailable")
		}
		if c.haveValue {
			return c.cached
		}
		estimate := int64(float64(time.Now().Unix()) / c.secondsPerBlock)
		c.cached = estimate
		c.cachedAt = time.Now()
		c.haveValue = true
		return estimate
	}

	c.cached = height
	c.cachedAt = time.Now()
	c.haveValue = true
	return height
}
