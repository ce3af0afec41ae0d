// Package storetest provides an in-memory store.Store fake so
// internal/core can be exercised without a running Postgres instance.
package storetest

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/hetu-project/validator-coordinator/internal/store"
)

type key struct {
	miner string
	post  string
}

// Fake is a map-backed store.Store. Every method takes the single
// mutex, so it also gives tests a trivially serializable reference
// implementation of the exactly-once dispatch guarantees the real
// Postgres queries provide via row locks and unique constraints.
type Fake struct {
	mu sync.Mutex

	submissions map[key]*store.Submission
	assignments map[string]*store.ValidatorAssignment // validationID -> assignment
	results     map[string]*store.ValidationResult     // validationID -> result
	windows     map[int64]*store.Window                // windowStartBlock -> window
	windowSeq   int64
	scores      map[int64]map[string]*store.MinerWindowScore // windowID -> miner -> score
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		submissions: map[key]*store.Submission{},
		assignments: map[string]*store.ValidatorAssignment{},
		results:     map[string]*store.ValidationResult{},
		windows:     map[int64]*store.Window{},
		scores:      map[int64]map[string]*store.MinerWindowScore{},
	}
}

func clone(s *store.Submission) *store.Submission {
	cp := *s
	cp.Tokens = make(map[string]float64, len(s.Tokens))
	for k, v := range s.Tokens {
		cp.Tokens[k] = v
	}
	if s.ValidationID != nil {
		v := *s.ValidationID
		cp.ValidationID = &v
	}
	if s.XValidationResult != nil {
		v := *s.XValidationResult
		cp.XValidationResult = &v
	}
	if s.XValidatedAt != nil {
		v := *s.XValidatedAt
		cp.XValidatedAt = &v
	}
	if s.WindowID != nil {
		v := *s.WindowID
		cp.WindowID = &v
	}
	return &cp
}

func (f *Fake) GetSubmission(_ context.Context, minerIdentity, postID string) (*store.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.submissions[key{minerIdentity, postID}]
	if !ok {
		return nil, nil
	}
	return clone(s), nil
}

func (f *Fake) CountSubmissionsInWindow(_ context.Context, minerIdentity string, windowStart int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for k, s := range f.submissions {
		if k.miner == minerIdentity && s.AcceptedBlock >= windowStart {
			count++
		}
	}
	return count, nil
}

func (f *Fake) InsertSubmission(_ context.Context, s *store.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key{s.MinerIdentity, s.PostID}
	if _, exists := f.submissions[k]; exists {
		return store.ErrDuplicate
	}
	f.submissions[k] = clone(s)
	return nil
}

func (f *Fake) MarkVerificationFailed(_ context.Context, minerIdentity, postID string, validationError []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.submissions[key{minerIdentity, postID}]
	if !ok {
		return nil
	}
	result := false
	s.XValidated = true
	s.XValidationResult = &result
	now := int64(0)
	s.XValidatedAt = &now
	s.XValidationError = append([]byte(nil), validationError...)
	return nil
}

func (f *Fake) TryPromote(_ context.Context, minerIdentity, postID, validationID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.submissions[key{minerIdentity, postID}]
	if !ok {
		return false, nil
	}
	if s.SelectedForValidation {
		return false, nil
	}
	s.SelectedForValidation = true
	id := validationID
	s.ValidationID = &id
	s.XValidated = true
	result := true
	s.XValidationResult = &result
	at := int64(0)
	s.XValidatedAt = &at
	return true, nil
}

func (f *Fake) ClaimTasks(_ context.Context, validatorIdentity string, limit int, leaseTTLSeconds int64) ([]store.ValidationCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []key
	for k := range f.submissions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := f.submissions[keys[i]], f.submissions[keys[j]]
		return a.AcceptedAt < b.AcceptedAt
	})

	now := time.Now().Unix()
	var claimed []store.ValidationCandidate
	for _, k := range keys {
		if len(claimed) >= limit {
			break
		}
		s := f.submissions[k]
		if !s.SelectedForValidation || s.ValidationID == nil {
			continue
		}
		validationID := *s.ValidationID

		if a, exists := f.assignments[validationID]; exists {
			if a.CompletedAt != nil {
				continue
			}
			stale := leaseTTLSeconds > 0 && a.AssignedAt <= now-leaseTTLSeconds
			if !stale {
				continue
			}
		}

		f.assignments[validationID] = &store.ValidatorAssignment{
			ValidationID:      validationID,
			ValidatorIdentity: validatorIdentity,
			AssignedAt:        now,
		}
		claimed = append(claimed, store.ValidationCandidate{
			ValidationID:  validationID,
			MinerIdentity: s.MinerIdentity,
			Submission:    *clone(s),
			SelectedAt:    s.AcceptedAt,
		})
	}
	return claimed, nil
}

func (f *Fake) RecordResult(_ context.Context, validationID, validatorIdentity string, success bool, failureReason json.RawMessage, validatedAt int64) (store.ValidationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var minerIdentity, postID string
	found := false
	for k, s := range f.submissions {
		if s.ValidationID != nil && *s.ValidationID == validationID {
			minerIdentity, postID = k.miner, k.post
			found = true
			break
		}
	}
	if !found {
		return store.ValidationResult{}, store.ErrUnknownValidationID
	}

	a, ok := f.assignments[validationID]
	if !ok || a.ValidatorIdentity != validatorIdentity {
		return store.ValidationResult{}, store.ErrNotAssigned
	}
	completedAt := validatedAt
	a.CompletedAt = &completedAt

	result := store.ValidationResult{
		ValidationID:      validationID,
		ValidatorIdentity: validatorIdentity,
		MinerIdentity:     minerIdentity,
		PostID:            postID,
		Success:           success,
		FailureReason:     failureReason,
		ValidatedAt:       validatedAt,
	}
	r := result
	f.results[validationID] = &r

	return result, nil
}

func (f *Fake) WindowAggregates(_ context.Context, windowStart, windowEnd int64) ([]store.MinerWindowScore, int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	type acc struct {
		count           int64
		scoreSum        float64
		xFailure        bool
		validatorFailed bool
	}
	perMiner := map[string]*acc{}
	var order []string

	for k, s := range f.submissions {
		if s.AcceptedBlock < windowStart || s.AcceptedBlock >= windowEnd {
			continue
		}
		a, ok := perMiner[s.MinerIdentity]
		if !ok {
			a = &acc{}
			perMiner[s.MinerIdentity] = a
			order = append(order, s.MinerIdentity)
		}
		a.count++
		a.scoreSum += s.Score
		if s.XValidated && s.XValidationResult != nil && !*s.XValidationResult {
			a.xFailure = true
		}
		for _, r := range f.results {
			if r.MinerIdentity == k.miner && r.PostID == k.post && !r.Success {
				a.validatorFailed = true
			}
		}
	}

	sort.Strings(order)
	var scores []store.MinerWindowScore
	var total int64
	for _, miner := range order {
		a := perMiner[miner]
		raw := a.scoreSum / float64(a.count)
		final := raw
		if a.xFailure || a.validatorFailed {
			final = 0
		}
		scores = append(scores, store.MinerWindowScore{
			MinerIdentity:       miner,
			SubmissionsCount:    a.count,
			RawAvgScore:         raw,
			FinalScore:          final,
			HadValidatorFailure: a.validatorFailed,
			HadXFailure:         a.xFailure,
		})
		total += a.count
	}
	return scores, total, int64(len(scores)), nil
}

func (f *Fake) UpsertWindow(_ context.Context, w *store.Window, scores []store.MinerWindowScore) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing, ok := f.windows[w.WindowStartBlock]
	var windowID int64
	if ok {
		windowID = existing.ID
	} else {
		f.windowSeq++
		windowID = f.windowSeq
	}

	stored := *w
	stored.ID = windowID
	f.windows[w.WindowStartBlock] = &stored

	perMiner := map[string]*store.MinerWindowScore{}
	for i := range scores {
		s := scores[i]
		s.WindowID = windowID
		perMiner[s.MinerIdentity] = &s
	}
	f.scores[windowID] = perMiner

	for k, s := range f.submissions {
		if s.AcceptedBlock >= w.WindowStartBlock && s.AcceptedBlock <= w.WindowEndBlock {
			id := windowID
			f.submissions[k].WindowID = &id
		}
	}

	return windowID, nil
}

func (f *Fake) LoadWindowScores(_ context.Context, windowStartBlock int64) (int64, []store.MinerWindowScore, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w, ok := f.windows[windowStartBlock]
	if !ok {
		return 0, nil, false, nil
	}

	perMiner := f.scores[w.ID]
	var miners []string
	for m := range perMiner {
		miners = append(miners, m)
	}
	sort.Slice(miners, func(i, j int) bool {
		return perMiner[miners[i]].FinalScore > perMiner[miners[j]].FinalScore
	})

	var scores []store.MinerWindowScore
	for _, m := range miners {
		scores = append(scores, *perMiner[m])
	}
	return w.ID, scores, true, nil
}

var _ store.Store = (*Fake)(nil)
