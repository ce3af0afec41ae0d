package core

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hetu-project/validator-coordinator/internal/blockclock"
	"github.com/hetu-project/validator-coordinator/internal/principal"
	"github.com/hetu-project/validator-coordinator/internal/store"
	"github.com/hetu-project/validator-coordinator/internal/verifier"
)

// Coordinator wires every collaborator the consistency engine needs and
// owns the single process-wide write-serialization lock. It is built
// once at startup (cmd/coordinatord) and handed to internal/httpapi; it
// holds no package-level state of its own.
//
// The write lock is an optimization, not a correctness requirement
// (spec §9): every race it guards against — (miner,post_id) uniqueness,
// validation_id uniqueness, assignment insertion — is independently
// enforced by the store's unique constraints and conditional updates.
type Coordinator struct {
	Clock    *blockclock.Clock
	Gate     *principal.Gate
	Store    store.Store
	Verifier verifier.Verifier
	Memo     *store.ScoreMemo
	Log      *logrus.Entry

	BlocksPerWindow        int64
	SecondsPerBlock        float64
	MaxSubmissionRate      int
	ValidationsPerRequest  int
	ValidationProbability  float64
	ScoringLeaseTTLSeconds int64

	writeMu sync.Mutex

	Intake     *Intake
	Promoter   *Promoter
	Dispatcher *Dispatcher
	Recorder   *Recorder
	Finalizer  *Finalizer
}

// Params bundles Coordinator's construction-time dependencies and config.
type Params struct {
	Clock    *blockclock.Clock
	Gate     *principal.Gate
	Store    store.Store
	Verifier verifier.Verifier
	Memo     *store.ScoreMemo
	Log      *logrus.Entry

	BlocksPerWindow        int64
	SecondsPerBlock        float64
	MaxSubmissionRate      int
	ValidationsPerRequest  int
	ValidationProbability  float64
	ScoringLeaseTTLSeconds int64
}

// New constructs a Coordinator and wires each component against it.
func New(p Params) *Coordinator {
	c := &Coordinator{
		Clock:                  p.Clock,
		Gate:                   p.Gate,
		Store:                  p.Store,
		Verifier:               p.Verifier,
		Memo:                   p.Memo,
		Log:                    p.Log,
		BlocksPerWindow:        p.BlocksPerWindow,
		SecondsPerBlock:        p.SecondsPerBlock,
		MaxSubmissionRate:      p.MaxSubmissionRate,
		ValidationsPerRequest:  p.ValidationsPerRequest,
		ValidationProbability:  p.ValidationProbability,
		ScoringLeaseTTLSeconds: p.ScoringLeaseTTLSeconds,
	}

	c.Promoter = &Promoter{c: c}
	c.Intake = &Intake{c: c}
	c.Dispatcher = &Dispatcher{c: c}
	c.Recorder = &Recorder{c: c}
	c.Finalizer = &Finalizer{c: c}
	return c
}
