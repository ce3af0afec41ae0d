package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hetu-project/validator-coordinator/internal/store"
)

func TestGetScores_NoPreviousWindowYet(t *testing.T) {
	c, _ := newTestCoordinator(&fakeOracle{block: 50}, &fakeVerifier{valid: true})

	scores, err := c.Finalizer.GetScores(context.Background())
	require.NoError(t, err)
	assert.Zero(t, scores.Count)
}

func TestGetScores_FailureZeroesWindow(t *testing.T) {
	c, fake := newTestCoordinator(&fakeOracle{block: 250}, &fakeVerifier{valid: true})

	ctx := context.Background()
	// Two submissions from the same miner in window [100,199]; one fails
	// x-validation, which must zero the miner's final score for the
	// window even though its raw average would be positive.
	sub1 := &store.Submission{MinerIdentity: "miner-1", PostID: "post-1", Score: 0.9, AcceptedBlock: 110, Tokens: map[string]float64{"BTC": 1}}
	failed := false
	sub2 := &store.Submission{MinerIdentity: "miner-1", PostID: "post-2", Score: 0.8, AcceptedBlock: 120, Tokens: map[string]float64{"BTC": 1}, XValidated: true, XValidationResult: &failed}
	require.NoError(t, fake.InsertSubmission(ctx, sub1))
	require.NoError(t, fake.InsertSubmission(ctx, sub2))

	scores, err := c.Finalizer.GetScores(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, scores.Count)
	assert.Zero(t, scores.ByMiner["miner-1"], "an x-validation failure must zero the miner's final score for the window")
}

func TestGetScores_MemoizedOnSecondCall(t *testing.T) {
	oracle := &fakeOracle{block: 250}
	c, fake := newTestCoordinator(oracle, &fakeVerifier{valid: true})

	ctx := context.Background()
	sub := &store.Submission{MinerIdentity: "miner-1", PostID: "post-1", Score: 0.7, AcceptedBlock: 110, Tokens: map[string]float64{"BTC": 1}}
	require.NoError(t, fake.InsertSubmission(ctx, sub))

	first, err := c.Finalizer.GetScores(ctx)
	require.NoError(t, err)

	// A submission arriving after finalization must not change the
	// already-finalized window's scores on a repeat call.
	late := &store.Submission{MinerIdentity: "miner-2", PostID: "post-2", Score: 1.0, AcceptedBlock: 150, Tokens: map[string]float64{"BTC": 1}}
	require.NoError(t, fake.InsertSubmission(ctx, late))

	second, err := c.Finalizer.GetScores(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Count, second.Count)
	_, ok := second.ByMiner["miner-2"]
	assert.False(t, ok, "a submission accepted after finalization must not appear in the already-finalized window")
}
