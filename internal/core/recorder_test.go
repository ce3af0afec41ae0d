package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordResults_IdempotentOverwriteSameValidator(t *testing.T) {
	c, fake := newTestCoordinator(&fakeOracle{block: 50}, &fakeVerifier{valid: true})
	promotedSubmission(t, fake, "miner-1", "post-1", "val-1", 10)

	ctx := context.Background()
	_, err := c.Dispatcher.ClaimTasks(ctx, "validator-A")
	require.NoError(t, err)

	successful, failed, outcomes := c.Recorder.RecordResults(ctx, "validator-A", []ResultInput{
		{ValidationID: "val-1", MinerIdentity: "miner-1", Success: true},
	})
	require.Equal(t, 1, successful)
	require.Equal(t, 0, failed)
	assert.True(t, outcomes[0].OK)

	successful, failed, outcomes = c.Recorder.RecordResults(ctx, "validator-A", []ResultInput{
		{ValidationID: "val-1", MinerIdentity: "miner-1", Success: false},
	})
	require.Equal(t, 1, successful, "a second recording from the same validator must succeed, not be rejected")
	require.Equal(t, 0, failed)
	assert.True(t, outcomes[0].OK)

	// submissions.x_validated/x_validation_result belong solely to the
	// Promoter's CAS (spec §4.5); RecordResult must never touch them.
	sub, err := fake.GetSubmission(ctx, "miner-1", "post-1")
	require.NoError(t, err)
	require.NotNil(t, sub.XValidationResult)
	assert.True(t, *sub.XValidationResult, "the submission's own x_validation_result reflects the Promoter's success, not the validator's verdict")
}

func TestRecordResults_RejectsWrongValidator(t *testing.T) {
	c, fake := newTestCoordinator(&fakeOracle{block: 50}, &fakeVerifier{valid: true})
	promotedSubmission(t, fake, "miner-1", "post-1", "val-1", 10)

	ctx := context.Background()
	_, err := c.Dispatcher.ClaimTasks(ctx, "validator-A")
	require.NoError(t, err)

	successful, failed, outcomes := c.Recorder.RecordResults(ctx, "validator-B", []ResultInput{
		{ValidationID: "val-1", MinerIdentity: "miner-1", Success: true},
	})
	assert.Equal(t, 0, successful)
	assert.Equal(t, 1, failed)
	assert.False(t, outcomes[0].OK)
	assert.Equal(t, "not_assigned", outcomes[0].Reason)
}

func TestRecordResults_UnknownValidationID(t *testing.T) {
	c, _ := newTestCoordinator(&fakeOracle{block: 50}, &fakeVerifier{valid: true})

	successful, failed, outcomes := c.Recorder.RecordResults(context.Background(), "validator-A", []ResultInput{
		{ValidationID: "no-such-id", MinerIdentity: "miner-1", Success: true},
	})
	assert.Equal(t, 0, successful)
	assert.Equal(t, 1, failed)
	assert.False(t, outcomes[0].OK)
	assert.Equal(t, "unknown_validation_id", outcomes[0].Reason)
}
