package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// ScoreMemoEntry is one miner's row in the persisted scores memo.
type ScoreMemoEntry struct {
	MinerIdentity    string  `json:"miner_identity"`
	SubmissionsCount int64   `json:"submissions_count"`
	RawAvgScore      float64 `json:"raw_avg_score"`
	FinalScore       float64 `json:"final_score"`
}

// ScoreMemoFile is the on-disk shape of the scores memo (spec §6
// "Persisted state").
type ScoreMemoFile struct {
	WindowStart       int64            `json:"window_start"`
	WindowEnd         int64            `json:"window_end"`
	BlocksPerWindow   int64            `json:"blocks_per_window"`
	CalculatedAt      int64            `json:"calculated_at"`
	CalculatedAtBlock int64            `json:"calculated_at_block"`
	Scores            []ScoreMemoEntry `json:"scores"`
}

// ScoreMemo is a read-through cache over ScoreMemoFile. It exists purely
// as an optimization: the database remains authoritative, and any
// read/parse failure here is treated as a cache miss rather than an
// error, per spec.md §9's framing that the file is safe to delete.
type ScoreMemo struct {
	path string
	mu   sync.Mutex
}

// NewScoreMemo returns a memo backed by the file at path. An empty path
// disables the memo: Load always misses, Save is a no-op.
func NewScoreMemo(path string) *ScoreMemo {
	return &ScoreMemo{path: path}
}

// Load reads the memo file, returning (nil, false) on any failure
// (missing file, corrupt JSON) so callers fall back to recomputing.
func (m *ScoreMemo) Load() (*ScoreMemoFile, bool) {
	if m.path == "" {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, err := os.ReadFile(m.path)
	if err != nil {
		return nil, false
	}
	var f ScoreMemoFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, false
	}
	return &f, true
}

// Save atomically replaces the memo file: write to a temp file in the
// same directory, then rename over the target. A failure here is
// logged by the caller but never fails the finalize operation itself.
func (m *ScoreMemo) Save(f *ScoreMemoFile) error {
	if m.path == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(m.path)
	tmp, err := os.CreateTemp(dir, ".scores-memo-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, m.path)
}

// Matches reports whether a loaded memo is still valid for the given
// window bounds — it covers the same half-open block range at the same
// blocks_per_window configuration.
func (f *ScoreMemoFile) Matches(windowStart, windowEnd, blocksPerWindow int64) bool {
	return f != nil &&
		f.WindowStart == windowStart &&
		f.WindowEnd == windowEnd &&
		f.BlocksPerWindow == blocksPerWindow
}
