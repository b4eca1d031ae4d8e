package engine

import (
	"context"

	"reputationkit/core"
	"reputationkit/leaderboard"
)

// SnapshotLoader reads the current state of one user.
type SnapshotLoader interface {
	Load(ctx context.Context, user core.UserID) (core.Snapshot, error)
}

// SnapshotWriter commits a delta computed against expectedVersion. It must
// return core.ErrConflict when the stored version has moved on.
type SnapshotWriter interface {
	CommitDelta(ctx context.Context, user core.UserID, d core.Delta, expectedVersion uint64) (core.Snapshot, error)
}

// Store is the persistence contract every adapter implements.
type Store interface {
	SnapshotLoader
	SnapshotWriter
	core.ReferrerLookup
	// Create inserts a new account, failing with core.ErrUserExists.
	Create(ctx context.Context, s core.Snapshot) error
	// All returns every stored snapshot, in no particular order.
	All(ctx context.Context) ([]core.Snapshot, error)
}

// Board receives committed snapshots so a live leaderboard stays current,
// and answers top-N queries for its metric.
type Board interface {
	Update(s core.Snapshot)
	Metric() leaderboard.Metric
	TopN(n int) []leaderboard.Entry
}
