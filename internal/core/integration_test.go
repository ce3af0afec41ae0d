package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hetu-project/validator-coordinator/internal/blockclock"
)

// TestFullLifecycle_ValidatorPassAndFail drives a submission
// through the real component APIs end to end: Submit (which promotes via
// MaybePromote), ClaimTasks, RecordResults, and GetScores. It pins down
// the distinction between a Promoter-side x_failure and a validator-side
// failure that spec §4.8 computes as two separate sets.
func TestFullLifecycle_ValidatorPassAndFail(t *testing.T) {
	oracle := &fakeOracle{block: 10}
	c, fake := newTestCoordinator(oracle, &fakeVerifier{valid: true})
	c.ValidationProbability = 1 // always promote

	ctx := context.Background()

	result1, err := c.Intake.Submit(ctx, "miner-1", sampleInput("post-pass"))
	require.NoError(t, err)
	require.True(t, result1.SelectedForValidation)
	require.NotEmpty(t, result1.ValidationID)

	result2, err := c.Intake.Submit(ctx, "miner-2", sampleInput("post-fail"))
	require.NoError(t, err)
	require.True(t, result2.SelectedForValidation)
	require.NotEmpty(t, result2.ValidationID)

	// The Promoter's own success flip must already be visible before any
	// validator ever looks at the task.
	stored1, err := fake.GetSubmission(ctx, "miner-1", "post-pass")
	require.NoError(t, err)
	require.NotNil(t, stored1.XValidationResult)
	assert.True(t, *stored1.XValidationResult, "a successful auto-verification sets x_validation_result=true on promotion")

	tasks, err := c.Dispatcher.ClaimTasks(ctx, "validator-A")
	require.NoError(t, err)
	assert.Len(t, tasks, 2, "both promoted submissions must be claimable after a successful promotion")

	successful, failed, _ := c.Recorder.RecordResults(ctx, "validator-A", []ResultInput{
		{ValidationID: result1.ValidationID, MinerIdentity: "miner-1", Success: true},
		{ValidationID: result2.ValidationID, MinerIdentity: "miner-2", Success: false},
	})
	require.Equal(t, 2, successful)
	require.Equal(t, 0, failed)

	// Recording a validator verdict must never rewrite the submission's
	// own x_validation_result (that belongs solely to the Promoter).
	stored2, err := fake.GetSubmission(ctx, "miner-2", "post-fail")
	require.NoError(t, err)
	require.NotNil(t, stored2.XValidationResult)
	assert.True(t, *stored2.XValidationResult, "a validator's verdict must not overwrite the Promoter's own x_validation_result")

	oracle.block = 110 // advance past the window end so GetScores finalizes [0,99]
	// A fresh clock, so the height cached at block 10 is not served again.
	c.Clock = blockclock.New(oracle, 12.0, discardLog())
	scores, err := c.Finalizer.GetScores(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, scores.Count)

	assert.Equal(t, 0.8, scores.ByMiner["miner-1"], "a validator-approved miner keeps its raw average as final score")
	assert.Zero(t, scores.ByMiner["miner-2"], "a validator-rejected miner's final score must be zeroed even though x_validation_result is true")

	// Inspect the persisted per-miner rows directly to pin down
	// had_validator_failure and had_x_failure as two separate sets.
	_, rows, found, err := fake.LoadWindowScores(ctx, 0)
	require.NoError(t, err)
	require.True(t, found)

	byMiner := map[string]struct {
		HadValidatorFailure bool
		HadXFailure         bool
	}{}
	for _, row := range rows {
		byMiner[row.MinerIdentity] = struct {
			HadValidatorFailure bool
			HadXFailure         bool
		}{row.HadValidatorFailure, row.HadXFailure}
	}

	assert.True(t, byMiner["miner-2"].HadValidatorFailure, "had_validator_failure must be set from the validation_results verdict")
	assert.False(t, byMiner["miner-2"].HadXFailure, "had_x_failure must stay false: the submission passed its own auto-verification")

	assert.False(t, byMiner["miner-1"].HadValidatorFailure)
	assert.False(t, byMiner["miner-1"].HadXFailure)
}
