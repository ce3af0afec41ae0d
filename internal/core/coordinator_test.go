package core

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/hetu-project/validator-coordinator/internal/blockclock"
	"github.com/hetu-project/validator-coordinator/internal/store"
	"github.com/hetu-project/validator-coordinator/internal/store/storetest"
	"github.com/hetu-project/validator-coordinator/internal/verifier"
)

// fakeOracle returns a fixed block height, settable mid-test.
type fakeOracle struct {
	block int64
}

func (f *fakeOracle) CurrentBlock(context.Context) (int64, error) {
	return f.block, nil
}

// fakeVerifier returns a scripted (valid, error) pair for every call.
type fakeVerifier struct {
	valid bool
	err   *verifier.VerificationError
	calls int
}

func (f *fakeVerifier) Verify(context.Context, verifier.Post) (bool, *verifier.VerificationError) {
	f.calls++
	return f.valid, f.err
}

func discardLog() *logrus.Entry {
	log := logrus.New()
	log.Out = discardWriter{}
	return logrus.NewEntry(log)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// newTestCoordinator builds a Coordinator against the in-memory fake
// store, a fixed-height block oracle, and a scripted verifier, with
// test-friendly tuning defaults callers can override in-place.
func newTestCoordinator(oracle *fakeOracle, v verifier.Verifier) (*Coordinator, store.Store) {
	fake := storetest.New()
	clock := blockclock.New(oracle, 12.0, discardLog())
	c := New(Params{
		Clock:                  clock,
		Store:                  fake,
		Verifier:               v,
		Memo:                   store.NewScoreMemo(""),
		Log:                    discardLog(),
		BlocksPerWindow:        100,
		SecondsPerBlock:        12.0,
		MaxSubmissionRate:      3,
		ValidationsPerRequest:  5,
		ValidationProbability:  1.0,
		ScoringLeaseTTLSeconds: 0,
	})
	return c, fake
}
