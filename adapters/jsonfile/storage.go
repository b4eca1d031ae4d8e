package jsonfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"

	"reputationkit/core"
)

// Store persists every snapshot to a single JSON file.
// Suitable for demos, the CLI and small deployments.
type Store struct {
	path string
	mu   sync.Mutex
	// in-memory copy of the file
	data map[core.UserID]core.Snapshot
}

func New(path string) (*Store, error) {
	s := &Store{path: path, data: map[core.UserID]core.Snapshot{}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return s, nil
}

// Path is the backing file.
func (s *Store) Path() string { return s.path }

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var raw map[string]core.Snapshot
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode %s: %w", s.path, err)
	}
	for k, v := range raw {
		if v.Badges == nil {
			v.Badges = []core.EarnedBadge{}
		}
		s.data[core.UserID(k)] = v
	}
	return nil
}

// persist writes to a temp file and renames it over the original, so the
// file on disk is always either the old or the new state.
func (s *Store) persist() error {
	tmp := s.path + ".tmp"
	raw := make(map[string]core.Snapshot, len(s.data))
	for k, v := range s.data {
		raw[string(k)] = v
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) Create(_ context.Context, snap core.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[snap.UserID]; ok {
		return fmt.Errorf("%w: %s", core.ErrUserExists, snap.UserID)
	}
	if code := core.NormalizeReferralCode(snap.ReferralCode); code != "" {
		for id, st := range s.data {
			if core.NormalizeReferralCode(st.ReferralCode) == code {
				return fmt.Errorf("%w: referral code %s belongs to %s", core.ErrUserExists, code, id)
			}
		}
	}
	s.data[snap.UserID] = snap.Clone()
	if err := s.persist(); err != nil {
		delete(s.data, snap.UserID)
		return err
	}
	return nil
}

func (s *Store) Load(_ context.Context, user core.UserID) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data[user]
	if !ok {
		return core.Snapshot{}, fmt.Errorf("%w: %s", core.ErrUserNotFound, user)
	}
	return st.Clone(), nil
}

func (s *Store) CommitDelta(_ context.Context, user core.UserID, d core.Delta, expectedVersion uint64) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data[user]
	if !ok {
		return core.Snapshot{}, fmt.Errorf("%w: %s", core.ErrUserNotFound, user)
	}
	if st.Version != expectedVersion {
		return core.Snapshot{}, fmt.Errorf("%w: %s at version %d, expected %d", core.ErrConflict, user, st.Version, expectedVersion)
	}
	next := st.WithDelta(d)
	s.data[user] = next
	if err := s.persist(); err != nil {
		s.data[user] = st
		return core.Snapshot{}, err
	}
	return next.Clone(), nil
}

func (s *Store) FindByReferralCode(_ context.Context, code string) (core.UserID, bool, error) {
	code = core.NormalizeReferralCode(code)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, st := range s.data {
		if st.ReferralCode != "" && core.NormalizeReferralCode(st.ReferralCode) == code {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (s *Store) All(_ context.Context) ([]core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Snapshot, 0, len(s.data))
	for _, st := range s.data {
		out = append(out, st.Clone())
	}
	return out, nil
}
