package store

import (
	"context"
	"encoding/json"
)

// Store is the sole interface internal/core is written against. The
// production implementation (Postgres, see postgres.go) and the in-memory
// fake (storetest) both satisfy it identically.
type Store interface {
	// GetSubmission looks up a submission by its (miner, post) key.
	// Returns (nil, nil) if not found.
	GetSubmission(ctx context.Context, minerIdentity, postID string) (*Submission, error)

	// CountSubmissionsInWindow counts a miner's submissions with
	// accepted_block >= windowStart, for rate-limiting (spec §4.4 step 3).
	CountSubmissionsInWindow(ctx context.Context, minerIdentity string, windowStart int64) (int, error)

	// InsertSubmission inserts a new submission row. Returns
	// ErrDuplicate if the (miner, post) key already exists.
	InsertSubmission(ctx context.Context, s *Submission) error

	// MarkVerificationFailed atomically records a failed promotion
	// attempt (spec §4.5 step 4, failure branch).
	MarkVerificationFailed(ctx context.Context, minerIdentity, postID string, validationError []byte) error

	// TryPromote attempts the compare-and-swap promotion of a submission
	// to selected_for_validation=true with the given validationID (spec
	// §4.5 step 4, success branch). ok is false if the row was already
	// promoted by a concurrent caller.
	TryPromote(ctx context.Context, minerIdentity, postID, validationID string) (ok bool, err error)

	// ClaimTasks dispatches up to limit promoted-and-unassigned
	// validation tasks to validatorIdentity, exactly-once across
	// concurrent callers (spec §4.6). leaseTTLSeconds of 0 disables
	// lease-based re-dispatch.
	ClaimTasks(ctx context.Context, validatorIdentity string, limit int, leaseTTLSeconds int64) ([]ValidationCandidate, error)

	// RecordResult looks up the Submission owning validationID, upserts a
	// validation result, and marks the owning assignment completed (spec
	// §4.7). Returns ErrUnknownValidationID if no submission carries
	// validationID, or ErrNotAssigned if no assignment exists for
	// (validationID, validatorIdentity). On success the returned
	// ValidationResult carries the looked-up miner_identity/post_id.
	RecordResult(ctx context.Context, validationID, validatorIdentity string, success bool, failureReason json.RawMessage, validatedAt int64) (ValidationResult, error)

	// WindowAggregates computes, for the half-open block range
	// [windowStart, windowEnd), per-miner submission counts, average
	// scores, and failure flags (spec §4.8 step 3).
	WindowAggregates(ctx context.Context, windowStart, windowEnd int64) ([]MinerWindowScore, int64, int64, error)

	// UpsertWindow creates or updates a Window header and backfills
	// submissions.window_id for rows in range (spec §4.8 step 4).
	UpsertWindow(ctx context.Context, w *Window, scores []MinerWindowScore) (windowID int64, err error)

	// LoadWindowScores returns the persisted MinerWindowScore rows for a
	// given window_start_block, if the window has already been
	// finalized.
	LoadWindowScores(ctx context.Context, windowStartBlock int64) (windowID int64, scores []MinerWindowScore, found bool, err error)
}

// Sentinel errors returned by Store implementations.
var (
	ErrDuplicate          = sentinelError("submission already exists")
	ErrNotAssigned        = sentinelError("no assignment exists for validator and validation id")
	ErrUnknownValidationID = sentinelError("no submission carries this validation id")
)

type sentinelError string

func (e sentinelError) Error() string { return string(e) }
