// Package store owns all relational persistence (spec §3): the five
// tables (submissions, validator_assignments, validation_results, windows,
// miner_window_scores) and the memoized-scores JSON file. internal/core is
// written entirely against the Store interface defined here, never against
// a concrete SQL driver, so it can run against storetest's in-memory fake.
package store

import "encoding/json"

// Submission is the fundamental record (spec §3).
type Submission struct {
	MinerIdentity string
	PostID        string

	// Immutable attributes.
	Content       string
	Date          int64
	Author        string
	Likes         int64
	Retweets      int64
	Replies       int64
	Followers     int64
	AccountAge    int64
	Tokens        map[string]float64
	Sentiment     float64
	Score         float64
	AcceptedAt    int64
	AcceptedBlock int64
	PostURL       string

	// Mutable attributes.
	SelectedForValidation bool
	ValidationID          *string
	XValidated            bool
	XValidationResult     *bool
	XValidatedAt          *int64
	XValidationError      json.RawMessage
	WindowID              *int64
}

// ValidatorAssignment is a lease on a validation task (spec §3).
type ValidatorAssignment struct {
	ValidationID      string
	ValidatorIdentity string
	AssignedAt        int64
	CompletedAt       *int64
}

// ValidationResult is a validator's verdict (spec §3).
type ValidationResult struct {
	ValidationID    string
	ValidatorIdentity string
	MinerIdentity   string
	PostID          string
	Success         bool
	FailureReason   json.RawMessage
	ValidatedAt     int64
}

// Window is a completed epoch's header (spec §3).
type Window struct {
	ID                  int64
	WindowStartBlock    int64
	WindowEndBlock      int64
	BlocksPerWindow     int64
	MinAcceptedAt       *int64
	MaxAcceptedAt       *int64
	CalculatedAt        int64
	SubmissionsCount    int64
	DistinctMinersCount int64
}

// MinerWindowScore is one row per (miner, completed window) (spec §3).
type MinerWindowScore struct {
	WindowID            int64
	MinerIdentity       string
	SubmissionsCount    int64
	RawAvgScore         float64
	FinalScore          float64
	HadValidatorFailure bool
	HadXFailure         bool
}

// ValidationCandidate is a promoted, unassigned task row as seen by the
// Task Dispatcher (spec §4.6).
type ValidationCandidate struct {
	ValidationID  string
	MinerIdentity string
	Submission    Submission
	SelectedAt    int64
}
