package memory

import (
	"context"
	"fmt"
	"sync"

	"reputationkit/core"
)

// Store is a concurrent in-memory snapshot store. Each user record carries
// its own mutex, held only for the compare-and-write of a commit.
type Store struct {
	users sync.Map // map[core.UserID]*userRecord
	codes sync.Map // map[string]core.UserID
}

type userRecord struct {
	mu    sync.Mutex
	state core.Snapshot
}

func New() *Store { return &Store{} }

func (s *Store) record(user core.UserID) (*userRecord, error) {
	v, ok := s.users.Load(user)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUserNotFound, user)
	}
	return v.(*userRecord), nil
}

// Create inserts snap. A taken user id or referral code fails with
// core.ErrUserExists and leaves the store unchanged.
func (s *Store) Create(_ context.Context, snap core.Snapshot) error {
	code := core.NormalizeReferralCode(snap.ReferralCode)
	if code != "" {
		if owner, loaded := s.codes.LoadOrStore(code, snap.UserID); loaded {
			return fmt.Errorf("%w: referral code %s belongs to %s", core.ErrUserExists, code, owner)
		}
	}
	rec := &userRecord{state: snap.Clone()}
	if _, loaded := s.users.LoadOrStore(snap.UserID, rec); loaded {
		if code != "" {
			s.codes.CompareAndDelete(code, snap.UserID)
		}
		return fmt.Errorf("%w: %s", core.ErrUserExists, snap.UserID)
	}
	return nil
}

func (s *Store) Load(_ context.Context, user core.UserID) (core.Snapshot, error) {
	rec, err := s.record(user)
	if err != nil {
		return core.Snapshot{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state.Clone(), nil
}

func (s *Store) CommitDelta(_ context.Context, user core.UserID, d core.Delta, expectedVersion uint64) (core.Snapshot, error) {
	rec, err := s.record(user)
	if err != nil {
		return core.Snapshot{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.state.Version != expectedVersion {
		return core.Snapshot{}, fmt.Errorf("%w: %s at version %d, expected %d", core.ErrConflict, user, rec.state.Version, expectedVersion)
	}
	rec.state = rec.state.WithDelta(d)
	return rec.state.Clone(), nil
}

func (s *Store) FindByReferralCode(_ context.Context, code string) (core.UserID, bool, error) {
	v, ok := s.codes.Load(core.NormalizeReferralCode(code))
	if !ok {
		return "", false, nil
	}
	return v.(core.UserID), true, nil
}

func (s *Store) All(_ context.Context) ([]core.Snapshot, error) {
	var out []core.Snapshot
	s.users.Range(func(_, v any) bool {
		rec := v.(*userRecord)
		rec.mu.Lock()
		out = append(out, rec.state.Clone())
		rec.mu.Unlock()
		return true
	})
	return out, nil
}

var _ interface {
	Create(context.Context, core.Snapshot) error
	Load(context.Context, core.UserID) (core.Snapshot, error)
	CommitDelta(context.Context, core.UserID, core.Delta, uint64) (core.Snapshot, error)
	FindByReferralCode(context.Context, string) (core.UserID, bool, error)
	All(context.Context) ([]core.Snapshot, error)
} = (*Store)(nil)
