// Package core implements the coordinator's consistency engine: rate
// limiting and deduplication on intake, probabilistic promotion to a
// validation queue, exactly-once task dispatch, outcome recording, and
// window finalization with memoized, immutable per-miner scores.
//
// Every component here is a constructor-injected collaborator, never a
// package-level global (original_source used module-level singletons for
// its connection pool, block-clock cache, and whitelists; here they are
// explicit fields on Coordinator so tests can substitute fakes).
package core

import "github.com/hetu-project/validator-coordinator/internal/verifier"

// SubmissionInput is the miner-supplied half of a Submission; the other
// half (accepted_at, accepted_block, post_url, selected_for_validation,
// etc.) is computed by Intake.
type SubmissionInput struct {
	PostID     string
	Content    string
	Date       int64
	Author     string
	Likes      int64
	Retweets   int64
	Replies    int64
	Followers  int64
	AccountAge int64
	Tokens     map[string]float64
	Sentiment  float64
	Score      float64
}

// WindowMetadata is carried on every /submit response so miners can
// self-synchronize without extra round trips (spec §4.4).
type WindowMetadata struct {
	CurrentBlock         int64
	WindowStartBlock     int64
	WindowEndBlock       int64
	NextWindowStartBlock int64
	BlocksPerWindow      int64
	CurrentWindow        int64
}

// RateLimitInfo accompanies both the success and rate_limit-exceeded
// submit responses (spec §4.4).
type RateLimitInfo struct {
	CurrentCount   int
	MaxSubmissions int
	Remaining      int
}

// SubmitStatus is the outer result of Intake.Submit.
type SubmitStatus string

const (
	SubmitStatusNew       SubmitStatus = "new"
	SubmitStatusDuplicate SubmitStatus = "duplicate"
)

// SubmitResult is the full result of Intake.Submit, already carrying the
// Validation Promoter's outcome folded in per spec §4.4 step 6.
type SubmitResult struct {
	Status                SubmitStatus
	Window                WindowMetadata
	RateLimit              RateLimitInfo
	SelectedForValidation  bool
	ValidationID           string
	XValidationError       *verifier.VerificationError
}

// RateLimitExceeded is the structured payload attached to a rate_limit
// coreerr.Error, carrying the window metadata a miner needs to
// self-synchronize (spec §4.4 step 3).
type RateLimitExceeded struct {
	Window                     WindowMetadata
	RateLimit                  RateLimitInfo
	BlocksUntilReset           int64
	EstimatedSecondsUntilReset float64
}
