package leaderboard

import (
	"sort"

	"reputationkit/core"
)

// Ranker orders snapshot sets. The zero value uses DefaultMaxLimit.
type Ranker struct {
	MaxLimit int
}

// Rank orders snapshots by metric and returns at most limit entries.
// A non-positive limit means MaxLimit; larger limits are clamped to it.
// The input slice is not modified.
func (r Ranker) Rank(snapshots []core.Snapshot, metric Metric, limit int) ([]Entry, error) {
	if _, err := metric.Value(core.Snapshot{}); err != nil {
		return nil, err
	}
	limit = r.Limit(limit)
	entries := make([]Entry, 0, len(snapshots))
	for _, s := range snapshots {
		v, err := metric.Value(s)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{UserID: s.UserID, Score: v, CreatedAt: s.CreatedAt})
	}
	sort.Slice(entries, func(i, j int) bool { return less(entries[i], entries[j]) })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// Limit applies the cap to a requested limit. A non-positive limit means
// the cap itself.
func (r Ranker) Limit(limit int) int {
	maxLimit := r.MaxLimit
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	if limit <= 0 || limit > maxLimit {
		return maxLimit
	}
	return limit
}

// Rank orders snapshots with the default limit cap.
func Rank(snapshots []core.Snapshot, metric Metric, limit int) ([]Entry, error) {
	return Ranker{}.Rank(snapshots, metric, limit)
}
