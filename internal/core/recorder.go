package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hetu-project/validator-coordinator/internal/store"
)

// Recorder records pass/fail outcomes from validators against assigned
// tasks (spec §4.7). A batch is processed item-by-item: one item's
// dispatch error never aborts the rest of the batch.
type Recorder struct {
	c *Coordinator
}

// ResultInput is one verdict from a validator's /validation_result batch.
type ResultInput struct {
	ValidationID  string
	MinerIdentity string
	Success       bool
	FailureReason json.RawMessage
}

// ResultOutcome reports the per-item disposition of RecordResults.
type ResultOutcome struct {
	ValidationID string
	OK           bool
	Reason       string // "not_assigned" | "unknown_validation_id" | "internal_error" | ""
}

// RecordResults processes results on behalf of validatorIdentity,
// returning the number that succeeded and failed along with the
// per-item outcomes.
func (r *Recorder) RecordResults(ctx context.Context, validatorIdentity string, results []ResultInput) (successful, failed int, outcomes []ResultOutcome) {
	c := r.c
	outcomes = make([]ResultOutcome, 0, len(results))

	for _, in := range results {
		_, err := c.Store.RecordResult(ctx, in.ValidationID, validatorIdentity, in.Success, in.FailureReason, time.Now().Unix())
		switch {
		case err == nil:
			successful++
			outcomes = append(outcomes, ResultOutcome{ValidationID: in.ValidationID, OK: true})
		case errors.Is(err, store.ErrNotAssigned):
			failed++
			outcomes = append(outcomes, ResultOutcome{ValidationID: in.ValidationID, OK: false, Reason: "not_assigned"})
		case errors.Is(err, store.ErrUnknownValidationID):
			failed++
			outcomes = append(outcomes, ResultOutcome{ValidationID: in.ValidationID, OK: false, Reason: "unknown_validation_id"})
		default:
			failed++
			reason := "internal_error"
			if c.Log != nil {
				c.Log.WithError(err).WithField("validation_id", in.ValidationID).Error("failed to record validation result")
			}
			outcomes = append(outcomes, ResultOutcome{ValidationID: in.ValidationID, OK: false, Reason: reason})
		}
	}

	return successful, failed, outcomes
}
