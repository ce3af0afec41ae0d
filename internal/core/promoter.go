package core

import (
	"context"
	"encoding/json"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/hetu-project/validator-coordinator/internal/coreerr"
	"github.com/hetu-project/validator-coordinator/internal/store"
	"github.com/hetu-project/validator-coordinator/internal/verifier"
)

// Promoter implements the two-phase verify-then-commit promotion of a
// newly accepted Submission into the validation queue (spec §4.5). The
// verifier call deliberately runs outside the write-serialization lock;
// only the re-entry in step 4 takes it, so a slow external API never
// blocks unrelated writers.
type Promoter struct {
	c *Coordinator
}

// PromotionOutcome is the result of MaybePromote.
type PromotionOutcome struct {
	Selected     bool
	ValidationID string
	XError       *verifier.VerificationError
}

func promotedOutcome(s *store.Submission) *PromotionOutcome {
	out := &PromotionOutcome{Selected: true}
	if s.ValidationID != nil {
		out.ValidationID = *s.ValidationID
	}
	return out
}

// MaybePromote samples the coin flip and, on heads, verifies and
// conditionally promotes sub.
func (p *Promoter) MaybePromote(ctx context.Context, sub *store.Submission) (*PromotionOutcome, error) {
	c := p.c

	if rand.Float64() >= c.ValidationProbability {
		return &PromotionOutcome{Selected: false}, nil
	}

	current, err := c.Store.GetSubmission(ctx, sub.MinerIdentity, sub.PostID)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInternal, "re-read submission before verification", err)
	}
	if current != nil && current.SelectedForValidation && current.XValidationResult != nil && *current.XValidationResult {
		return promotedOutcome(current), nil
	}

	valid, vErr := c.Verifier.Verify(ctx, verifier.Post{
		PostID:    sub.PostID,
		Content:   sub.Content,
		Author:    sub.Author,
		Date:      sub.Date,
		Likes:     sub.Likes,
		Retweets:  sub.Retweets,
		Replies:   sub.Replies,
		Followers: sub.Followers,
	})

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	current, err = c.Store.GetSubmission(ctx, sub.MinerIdentity, sub.PostID)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInternal, "re-read submission after verification", err)
	}
	if current != nil && current.SelectedForValidation && current.XValidationResult != nil && *current.XValidationResult {
		return promotedOutcome(current), nil
	}

	if !valid {
		errPayload, jsonErr := json.Marshal(vErr)
		if jsonErr != nil {
			errPayload = []byte(`{"code":"api_error","message":"failed to encode verification error"}`)
		}
		if err := c.Store.MarkVerificationFailed(ctx, sub.MinerIdentity, sub.PostID, errPayload); err != nil {
			return nil, coreerr.Wrap(coreerr.KindInternal, "record verification failure", err)
		}
		return &PromotionOutcome{Selected: true, XError: vErr}, nil
	}

	validationID := uuid.NewString()
	ok, err := c.Store.TryPromote(ctx, sub.MinerIdentity, sub.PostID, validationID)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInternal, "promote submission", err)
	}
	if !ok {
		// A peer won the CAS between our re-read and this attempt; defer
		// to the winner's validation id (spec §4.5 step 4).
		winner, err := c.Store.GetSubmission(ctx, sub.MinerIdentity, sub.PostID)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.KindInternal, "re-read submission after lost promotion race", err)
		}
		if winner == nil {
			return nil, coreerr.New(coreerr.KindInternal, "submission vanished after lost promotion race")
		}
		return promotedOutcome(winner), nil
	}

	return &PromotionOutcome{Selected: true, ValidationID: validationID}, nil
}
