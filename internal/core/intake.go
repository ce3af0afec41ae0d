package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hetu-project/validator-coordinator/internal/coreerr"
	"github.com/hetu-project/validator-coordinator/internal/store"
)

// Intake accepts post submissions, enforces the per-miner per-window
// rate limit, deduplicates, and persists (spec §4.4). The block height
// (step 1) is read before the lock is taken; steps 2-4 run under the
// process write-serialization lock, and the lock is released
// before handing the accepted submission to the Promoter in step 6,
// since that step may make a blocking network call.
type Intake struct {
	c *Coordinator
}

// Submit implements spec §4.4's numbered algorithm. Callers are expected
// to have already verified principal matches minerIdentity and that the
// principal is a miner in good standing (internal/httpapi's concern).
func (i *Intake) Submit(ctx context.Context, minerIdentity string, in SubmissionInput) (*SubmitResult, error) {
	c := i.c

	block := c.Clock.CurrentBlock(ctx)
	window := c.windowMetadata(block)

	c.writeMu.Lock()

	existing, err := c.Store.GetSubmission(ctx, minerIdentity, in.PostID)
	if err != nil {
		c.writeMu.Unlock()
		return nil, coreerr.Wrap(coreerr.KindInternal, "lookup existing submission", err)
	}
	if existing != nil {
		c.writeMu.Unlock()
		count, err := c.Store.CountSubmissionsInWindow(ctx, minerIdentity, window.WindowStartBlock)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.KindInternal, "count submissions in window", err)
		}
		return &SubmitResult{
			Status:    SubmitStatusDuplicate,
			Window:    window,
			RateLimit: c.rateLimitInfo(count),
		}, nil
	}

	count, err := c.Store.CountSubmissionsInWindow(ctx, minerIdentity, window.WindowStartBlock)
	if err != nil {
		c.writeMu.Unlock()
		return nil, coreerr.Wrap(coreerr.KindInternal, "count submissions in window", err)
	}
	if count >= c.MaxSubmissionRate {
		c.writeMu.Unlock()
		blocksUntilReset := window.NextWindowStartBlock - block
		return nil, coreerr.WithPayload(coreerr.KindRateLimit, "submission rate limit exceeded for this window", RateLimitExceeded{
			Window:                     window,
			RateLimit:                  c.rateLimitInfo(count),
			BlocksUntilReset:           blocksUntilReset,
			EstimatedSecondsUntilReset: float64(blocksUntilReset) * c.SecondsPerBlock,
		})
	}

	sub := &store.Submission{
		MinerIdentity: minerIdentity,
		PostID:        in.PostID,
		Content:       in.Content,
		Date:          in.Date,
		Author:        in.Author,
		Likes:         in.Likes,
		Retweets:      in.Retweets,
		Replies:       in.Replies,
		Followers:     in.Followers,
		AccountAge:    in.AccountAge,
		Tokens:        in.Tokens,
		Sentiment:     in.Sentiment,
		Score:         in.Score,
		AcceptedAt:    time.Now().Unix(),
		AcceptedBlock: block,
		PostURL:       postURL(in.Author, in.PostID),
	}

	err = c.Store.InsertSubmission(ctx, sub)
	c.writeMu.Unlock()
	if errors.Is(err, store.ErrDuplicate) {
		// Lost a race with a concurrent submitter of the same key between
		// our existence check and the insert; fall back to the duplicate
		// response rather than surfacing an internal error.
		return &SubmitResult{
			Status:    SubmitStatusDuplicate,
			Window:    window,
			RateLimit: c.rateLimitInfo(count),
		}, nil
	}
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInternal, "insert submission", err)
	}

	result := &SubmitResult{
		Status:    SubmitStatusNew,
		Window:    window,
		RateLimit: c.rateLimitInfo(count + 1),
	}

	outcome, err := c.Promoter.MaybePromote(ctx, sub)
	if err != nil {
		// MaybePromote returns an error only for store failures; a
		// verifier error comes back in outcome.XError instead. A promoter
		// failure does not fail the submit, since the submission is
		// already stored: it is logged and the response carries no
		// promotion outcome.
		if c.Log != nil {
			c.Log.WithError(err).Warn("validation promoter failed, submission still accepted")
		}
		return result, nil
	}
	result.SelectedForValidation = outcome.Selected
	result.ValidationID = outcome.ValidationID
	result.XValidationError = outcome.XError

	return result, nil
}

func postURL(author, postID string) string {
	return fmt.Sprintf("https://x.com/%s/status/%s", author, postID)
}

func (c *Coordinator) windowMetadata(block int64) WindowMetadata {
	wStart := WindowStart(block, c.BlocksPerWindow)
	return WindowMetadata{
		CurrentBlock:         block,
		WindowStartBlock:     wStart,
		WindowEndBlock:       WindowEnd(wStart, c.BlocksPerWindow),
		NextWindowStartBlock: wStart + c.BlocksPerWindow,
		BlocksPerWindow:      c.BlocksPerWindow,
		CurrentWindow:        wStart / c.BlocksPerWindow,
	}
}

func (c *Coordinator) rateLimitInfo(count int) RateLimitInfo {
	remaining := c.MaxSubmissionRate - count
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitInfo{
		CurrentCount:   count,
		MaxSubmissions: c.MaxSubmissionRate,
		Remaining:      remaining,
	}
}
