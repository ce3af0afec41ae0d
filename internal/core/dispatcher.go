package core

import (
	"context"

	"github.com/hetu-project/validator-coordinator/internal/coreerr"
	"github.com/hetu-project/validator-coordinator/internal/store"
)

// Dispatcher hands out at-most-once claims on pending validation tasks
// to polling validators (spec §4.6). The exactly-once guarantee comes
// from the store's SELECT ... FOR UPDATE SKIP LOCKED plus a
// unique-constraint insert; the write lock held here is a redundant
// belt-and-suspenders layer (spec §5), not the mechanism that makes
// dispatch safe.
type Dispatcher struct {
	c *Coordinator
}

// DispatchedTask is one claimed validation task, ready to serialize to
// a validator.
type DispatchedTask struct {
	ValidationID  string
	MinerIdentity string
	Submission    store.Submission
	SelectedAt    int64
}

// ClaimTasks returns up to ValidationsPerRequest newly claimed tasks for
// validatorIdentity. An empty result is a normal outcome, not an error —
// it means validatorIdentity lost every race in this poll.
func (d *Dispatcher) ClaimTasks(ctx context.Context, validatorIdentity string) ([]DispatchedTask, error) {
	c := d.c

	c.writeMu.Lock()
	candidates, err := c.Store.ClaimTasks(ctx, validatorIdentity, c.ValidationsPerRequest, c.ScoringLeaseTTLSeconds)
	c.writeMu.Unlock()
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInternal, "claim validation tasks", err)
	}

	tasks := make([]DispatchedTask, 0, len(candidates))
	for _, cand := range candidates {
		tasks = append(tasks, DispatchedTask{
			ValidationID:  cand.ValidationID,
			MinerIdentity: cand.MinerIdentity,
			Submission:    cand.Submission,
			SelectedAt:    cand.SelectedAt,
		})
	}
	return tasks, nil
}
