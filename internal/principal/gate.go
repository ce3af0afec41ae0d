// Package principal classifies verified identities as miner, validator,
// or neither, against a periodically refreshed snapshot of the
// metagraph-derived whitelists. Grounded on
// original_source/hotkey_whitelist.py: a 2-minute cache refreshed from a
// live external source, combined with an env-style manual override and a
// prefix-based deny-list consulted on every check.
package principal

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Role is the classification of a principal.
type Role int

const (
	RoleNone Role = iota
	RoleMiner
	RoleValidator
)

func (r Role) String() string {
	switch r {
	case RoleMiner:
		return "miner"
	case RoleValidator:
		return "validator"
	default:
		return "none"
	}
}

// Metagraph is the out-of-scope collaborator that enumerates valid
// miner/validator identities.
type Metagraph interface {
	Miners(ctx context.Context) ([]string, error)
	Validators(ctx context.Context) ([]string, error)
}

// Gate classifies principals using a refreshed in-memory snapshot.
type Gate struct {
	metagraph Metagraph
	refresh   time.Duration
	deny      []string
	log       *logrus.Entry

	mu          sync.RWMutex
	miners      map[string]struct{}
	validators  map[string]struct{}
	lastRefresh time.Time
	everFetched bool
}

// New constructs a Gate. denyPrefixes are checked case-sensitively against
// the start of an identity string.
func New(metagraph Metagraph, refresh time.Duration, denyPrefixes []string, log *logrus.Entry) *Gate {
	return &Gate{
		metagraph: metagraph,
		refresh:   refresh,
		deny:      denyPrefixes,
		log:       log,
	}
}

// Classify returns the Role for identity, force-refreshing the snapshot on
// the very first call and otherwise honoring the refresh interval.
func (g *Gate) Classify(ctx context.Context, identity string) Role {
	if g.isDenied(identity) {
		return RoleNone
	}

	g.ensureFresh(ctx)

	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.miners[identity]; ok {
		return RoleMiner
	}
	if _, ok := g.validators[identity]; ok {
		return RoleValidator
	}
	return RoleNone
}

func (g *Gate) isDenied(identity string) bool {
	for _, prefix := range g.deny {
		if prefix != "" && strings.HasPrefix(identity, prefix) {
			return true
		}
	}
	return false
}

func (g *Gate) ensureFresh(ctx context.Context) {
	g.mu.RLock()
	stale := !g.everFetched || time.Since(g.lastRefresh) >= g.refresh
	g.mu.RUnlock()
	if !stale {
		return
	}

	miners, err := g.metagraph.Miners(ctx)
	if err != nil {
		if g.log != nil {
			g.log.WithError(err).Warn("failed to refresh miner whitelist, keeping stale snapshot")
		}
		return
	}
	validators, err := g.metagraph.Validators(ctx)
	if err != nil {
		if g.log != nil {
			g.log.WithError(err).Warn("failed to refresh validator whitelist, keeping stale snapshot")
		}
		return
	}

	minerSet := make(map[string]struct{}, len(miners))
	for _, m := range miners {
		minerSet[m] = struct{}{}
	}
	validatorSet := make(map[string]struct{}, len(validators))
	for _, v := range validators {
		validatorSet[v] = struct{}{}
	}

	g.mu.Lock()
	g.miners = minerSet
	g.validators = validatorSet
	g.lastRefresh = time.Now()
	g.everFetched = true
	g.mu.Unlock()
}
