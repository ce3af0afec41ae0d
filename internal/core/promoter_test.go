package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hetu-project/validator-coordinator/internal/store"
	"github.com/hetu-project/validator-coordinator/internal/verifier"
)

func insertTestSubmission(t *testing.T, s store.Store, sub *store.Submission) {
	t.Helper()
	require.NoError(t, s.InsertSubmission(context.Background(), sub))
}

func TestMaybePromote_CoinFlipTails(t *testing.T) {
	c, fake := newTestCoordinator(&fakeOracle{block: 50}, &fakeVerifier{valid: true})
	c.ValidationProbability = 0 // always tails

	sub := &store.Submission{MinerIdentity: "miner-1", PostID: "post-1", Score: 0.5, Tokens: map[string]float64{"BTC": 1}}
	insertTestSubmission(t, fake, sub)

	outcome, err := c.Promoter.MaybePromote(context.Background(), sub)
	require.NoError(t, err)
	assert.False(t, outcome.Selected)
}

func TestMaybePromote_VerifiedSuccess(t *testing.T) {
	c, fake := newTestCoordinator(&fakeOracle{block: 50}, &fakeVerifier{valid: true})
	c.ValidationProbability = 1 // always heads

	sub := &store.Submission{MinerIdentity: "miner-1", PostID: "post-1", Score: 0.5, Tokens: map[string]float64{"BTC": 1}}
	insertTestSubmission(t, fake, sub)

	outcome, err := c.Promoter.MaybePromote(context.Background(), sub)
	require.NoError(t, err)
	require.True(t, outcome.Selected)
	assert.NotEmpty(t, outcome.ValidationID)
	assert.Nil(t, outcome.XError)

	stored, err := fake.GetSubmission(context.Background(), "miner-1", "post-1")
	require.NoError(t, err)
	assert.True(t, stored.SelectedForValidation)
}

func TestMaybePromote_VerificationFailure(t *testing.T) {
	vErr := &verifier.VerificationError{Code: verifier.ErrTextMismatch, Message: "text does not match"}
	c, fake := newTestCoordinator(&fakeOracle{block: 50}, &fakeVerifier{valid: false, err: vErr})
	c.ValidationProbability = 1

	sub := &store.Submission{MinerIdentity: "miner-1", PostID: "post-1", Score: 0.5, Tokens: map[string]float64{"BTC": 1}}
	insertTestSubmission(t, fake, sub)

	outcome, err := c.Promoter.MaybePromote(context.Background(), sub)
	require.NoError(t, err)
	assert.True(t, outcome.Selected, "selection happens regardless of the verification outcome")
	require.NotNil(t, outcome.XError)
	assert.Equal(t, verifier.ErrTextMismatch, outcome.XError.Code)

	stored, err := fake.GetSubmission(context.Background(), "miner-1", "post-1")
	require.NoError(t, err)
	require.NotNil(t, stored.XValidationResult)
	assert.False(t, *stored.XValidationResult)
	assert.False(t, stored.SelectedForValidation, "a verification failure must not enter the dispatch queue")
}

func TestMaybePromote_IdempotentOnAlreadyPromoted(t *testing.T) {
	c, fake := newTestCoordinator(&fakeOracle{block: 50}, &fakeVerifier{valid: true})
	c.ValidationProbability = 1

	sub := &store.Submission{MinerIdentity: "miner-1", PostID: "post-1", Score: 0.5, Tokens: map[string]float64{"BTC": 1}}
	insertTestSubmission(t, fake, sub)

	first, err := c.Promoter.MaybePromote(context.Background(), sub)
	require.NoError(t, err)

	second, err := c.Promoter.MaybePromote(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, first.ValidationID, second.ValidationID, "re-promoting an already-promoted submission returns the original validation_id")
}
