package core

import (
	"context"
	"time"

	"github.com/hetu-project/validator-coordinator/internal/coreerr"
	"github.com/hetu-project/validator-coordinator/internal/store"
)

// Finalizer computes and memoizes the previous window's per-miner scores
// exactly once per window (spec §4.8), and serves them back out via
// GetScores (the Score Reader). It never takes the write-serialization
// lock, so reading scores does not contend with
// submission/promotion/dispatch writes (spec §5); the memo file is
// guarded by store.ScoreMemo's own mutex.
type Finalizer struct {
	c *Coordinator
}

// Scores is the result of GetScores: a completed window's final
// per-miner scores, or an empty mapping if no window has completed yet.
type Scores struct {
	ByMiner           map[string]float64
	Count             int
	BlocksPerWindow   int64
	WindowStartBlock  int64
	WindowEndBlock    int64
	CurrentBlock      int64
	CalculatedAt      int64
	CalculatedAtBlock int64
}

// GetScores implements spec §4.8's six-step algorithm.
func (fz *Finalizer) GetScores(ctx context.Context) (*Scores, error) {
	c := fz.c

	block := c.Clock.CurrentBlock(ctx)
	prevStart, prevEnd, ok := PreviousWindow(block, c.BlocksPerWindow)
	if !ok {
		return &Scores{
			ByMiner:          map[string]float64{},
			BlocksPerWindow:  c.BlocksPerWindow,
			CurrentBlock:     block,
		}, nil
	}
	// prevEnd is the last included block of the half-open window; the
	// exclusive end used by store queries is prevEnd+1.
	windowEndExclusive := prevEnd + 1

	if memo, found := c.Memo.Load(); found && memo.Matches(prevStart, windowEndExclusive, c.BlocksPerWindow) {
		return memoToScores(memo, block), nil
	}

	_, cached, found, err := c.Store.LoadWindowScores(ctx, prevStart)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInternal, "load persisted window scores", err)
	}
	if found {
		return fz.persistMemoAndBuild(prevStart, prevEnd, windowEndExclusive, block, cached)
	}

	scores, totalSubmissions, distinctMiners, err := c.Store.WindowAggregates(ctx, prevStart, windowEndExclusive)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInternal, "compute window aggregates", err)
	}

	now := time.Now().Unix()
	w := &store.Window{
		WindowStartBlock:    prevStart,
		WindowEndBlock:      prevEnd,
		BlocksPerWindow:     c.BlocksPerWindow,
		CalculatedAt:        now,
		SubmissionsCount:    totalSubmissions,
		DistinctMinersCount: distinctMiners,
	}

	if _, err := c.Store.UpsertWindow(ctx, w, scores); err != nil {
		return nil, coreerr.Wrap(coreerr.KindInternal, "persist window", err)
	}

	return fz.persistMemoAndBuild(prevStart, prevEnd, windowEndExclusive, block, scores)
}

func (fz *Finalizer) persistMemoAndBuild(windowStart, windowEnd, windowEndExclusive, currentBlock int64, scores []store.MinerWindowScore) (*Scores, error) {
	c := fz.c
	now := time.Now().Unix()

	entries := make([]store.ScoreMemoEntry, 0, len(scores))
	byMiner := make(map[string]float64, len(scores))
	for _, s := range scores {
		entries = append(entries, store.ScoreMemoEntry{
			MinerIdentity:    s.MinerIdentity,
			SubmissionsCount: s.SubmissionsCount,
			RawAvgScore:      s.RawAvgScore,
			FinalScore:       s.FinalScore,
		})
		byMiner[s.MinerIdentity] = s.FinalScore
	}

	memo := &store.ScoreMemoFile{
		WindowStart:       windowStart,
		WindowEnd:         windowEndExclusive,
		BlocksPerWindow:   c.BlocksPerWindow,
		CalculatedAt:      now,
		CalculatedAtBlock: currentBlock,
		Scores:            entries,
	}
	if err := c.Memo.Save(memo); err != nil && c.Log != nil {
		// The memo file is a read-through cache; a failed write never
		// fails finalization (spec §9 — safe to delete at any point).
		c.Log.WithError(err).Warn("failed to persist scores memo file")
	}

	return &Scores{
		ByMiner:           byMiner,
		Count:             len(byMiner),
		BlocksPerWindow:   c.BlocksPerWindow,
		WindowStartBlock:  windowStart,
		WindowEndBlock:    windowEnd,
		CurrentBlock:      currentBlock,
		CalculatedAt:      now,
		CalculatedAtBlock: currentBlock,
	}, nil
}

func memoToScores(memo *store.ScoreMemoFile, currentBlock int64) *Scores {
	byMiner := make(map[string]float64, len(memo.Scores))
	for _, e := range memo.Scores {
		byMiner[e.MinerIdentity] = e.FinalScore
	}
	return &Scores{
		ByMiner:           byMiner,
		Count:             len(byMiner),
		BlocksPerWindow:   memo.BlocksPerWindow,
		WindowStartBlock:  memo.WindowStart,
		WindowEndBlock:    memo.WindowEnd - 1,
		CurrentBlock:      currentBlock,
		CalculatedAt:      memo.CalculatedAt,
		CalculatedAtBlock: memo.CalculatedAtBlock,
	}
}
