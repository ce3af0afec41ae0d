package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hetu-project/validator-coordinator/internal/blockclock"
	"github.com/hetu-project/validator-coordinator/internal/coreerr"
)

func sampleInput(postID string) SubmissionInput {
	return SubmissionInput{
		PostID:     postID,
		Content:    "hello world",
		Date:       1000,
		Author:     "alice",
		Likes:      10,
		Retweets:   2,
		Followers:  500,
		AccountAge: 365,
		Tokens:     map[string]float64{"BTC": 1.0},
		Sentiment:  0.5,
		Score:      0.8,
	}
}

func TestSubmit_New(t *testing.T) {
	c, _ := newTestCoordinator(&fakeOracle{block: 50}, &fakeVerifier{valid: true})
	c.ValidationProbability = 0 // isolate intake from promotion for this test

	result, err := c.Intake.Submit(context.Background(), "miner-1", sampleInput("post-1"))
	require.NoError(t, err)
	assert.Equal(t, SubmitStatusNew, result.Status)
	assert.Equal(t, 1, result.RateLimit.CurrentCount)
	assert.Equal(t, int64(0), result.Window.WindowStartBlock)
}

func TestSubmit_Duplicate(t *testing.T) {
	c, _ := newTestCoordinator(&fakeOracle{block: 50}, &fakeVerifier{valid: true})
	c.ValidationProbability = 0

	ctx := context.Background()
	_, err := c.Intake.Submit(ctx, "miner-1", sampleInput("post-1"))
	require.NoError(t, err)

	result, err := c.Intake.Submit(ctx, "miner-1", sampleInput("post-1"))
	require.NoError(t, err)
	assert.Equal(t, SubmitStatusDuplicate, result.Status)
}

func TestSubmit_RateLimitExceeded(t *testing.T) {
	c, _ := newTestCoordinator(&fakeOracle{block: 50}, &fakeVerifier{valid: true})
	c.ValidationProbability = 0
	c.MaxSubmissionRate = 2

	ctx := context.Background()
	_, err := c.Intake.Submit(ctx, "miner-1", sampleInput("post-1"))
	require.NoError(t, err)
	_, err = c.Intake.Submit(ctx, "miner-1", sampleInput("post-2"))
	require.NoError(t, err)

	_, err = c.Intake.Submit(ctx, "miner-1", sampleInput("post-3"))
	require.Error(t, err)

	ce, ok := coreerr.As(err)
	require.True(t, ok)
	assert.Equal(t, coreerr.KindRateLimit, ce.Kind)

	payload, ok := ce.Payload.(RateLimitExceeded)
	require.True(t, ok)
	assert.Equal(t, 0, payload.RateLimit.Remaining)
}

func TestSubmit_DifferentWindowsResetRateLimit(t *testing.T) {
	oracle := &fakeOracle{block: 50}
	c, _ := newTestCoordinator(oracle, &fakeVerifier{valid: true})
	c.ValidationProbability = 0
	c.MaxSubmissionRate = 1

	ctx := context.Background()
	_, err := c.Intake.Submit(ctx, "miner-1", sampleInput("post-1"))
	require.NoError(t, err)

	oracle.block = 150 // next window
	// A fresh clock, so the height cached at block 50 is not served again.
	c.Clock = blockclock.New(oracle, 12.0, discardLog())
	result, err := c.Intake.Submit(ctx, "miner-1", sampleInput("post-2"))
	require.NoError(t, err)
	assert.Equal(t, SubmitStatusNew, result.Status, "a new window resets the rate limit")
}
