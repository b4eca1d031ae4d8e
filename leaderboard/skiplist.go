package leaderboard

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"

	"reputationkit/core"
)

// SkipList is a live board ordered like Rank, with O(log n) updates.

const maxLevel = 16
const pFactor = 0.25

type node struct {
	e    Entry
	next [maxLevel]*node
}

type SkipList struct {
	mu     sync.RWMutex
	metric Metric
	head   *node
	lvl    int
	byUser map[core.UserID]*node
	rng    *rand.Rand
}

// NewSkipList builds an empty board for metric. Unknown metrics fall back
// to points_total.
func NewSkipList(metric Metric) *SkipList {
	if _, err := metric.Value(core.Snapshot{}); err != nil {
		metric = MetricPointsTotal
	}
	var seed [16]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		seed = [16]byte{}
	}
	seed1 := binary.BigEndian.Uint64(seed[:8])
	seed2 := binary.BigEndian.Uint64(seed[8:])

	return &SkipList{
		metric: metric,
		head:   &node{},
		lvl:    1,
		byUser: map[core.UserID]*node{},
		rng:    rand.New(rand.NewPCG(seed1, seed2)),
	}
}

// Metric is the statistic the board is ordered by.
func (s *SkipList) Metric() Metric { return s.metric }

func (s *SkipList) randomLevel() int {
	lvl := 1
	for lvl < maxLevel && s.rng.Float64() < pFactor {
		lvl++
	}
	return lvl
}

// Update inserts or moves the snapshot's user to its current score.
func (s *SkipList) Update(snap core.Snapshot) {
	v, _ := s.metric.Value(snap)
	s.Set(Entry{UserID: snap.UserID, Score: v, CreatedAt: snap.CreatedAt})
}

// Set places e on the board, replacing any previous entry for the user.
func (s *SkipList) Set(e Entry) {
	e.Rank = 0
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byUser[e.UserID]; ok {
		if old.e == e {
			return
		}
		s.removeLocked(old.e)
	}
	update := [maxLevel]*node{}
	cur := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for cur.next[i] != nil && less(cur.next[i].e, e) {
			cur = cur.next[i]
		}
		update[i] = cur
	}
	lvl := s.randomLevel()
	if lvl > s.lvl {
		for i := s.lvl; i < lvl; i++ {
			update[i] = s.head
		}
		s.lvl = lvl
	}
	n := &node{e: e}
	for i := 0; i < lvl; i++ {
		n.next[i] = update[i].next[i]
		update[i].next[i] = n
	}
	s.byUser[e.UserID] = n
}

func (s *SkipList) removeLocked(e Entry) {
	update := [maxLevel]*node{}
	cur := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for cur.next[i] != nil && less(cur.next[i].e, e) {
			cur = cur.next[i]
		}
		update[i] = cur
	}
	target := update[0].next[0]
	if target == nil || target.e.UserID != e.UserID {
		return
	}
	for i := 0; i < s.lvl; i++ {
		if update[i].next[i] == target {
			update[i].next[i] = target.next[i]
		}
	}
	delete(s.byUser, e.UserID)
	for s.lvl > 1 && s.head.next[s.lvl-1] == nil {
		s.lvl--
	}
}

func (s *SkipList) Remove(user core.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.byUser[user]; ok {
		s.removeLocked(n.e)
	}
}

// TopN returns the first n entries with 1-based ranks.
func (s *SkipList) TopN(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	out := make([]Entry, 0, min(n, len(s.byUser)))
	cur := s.head.next[0]
	for cur != nil && len(out) < n {
		e := cur.e
		e.Rank = len(out) + 1
		out = append(out, e)
		cur = cur.next[0]
	}
	return out
}

// Get returns the user's entry with its current rank. Rank lookup walks the
// bottom level, so it is O(n).
func (s *SkipList) Get(user core.UserID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	target, ok := s.byUser[user]
	if !ok {
		return Entry{}, false
	}
	rank := 1
	for cur := s.head.next[0]; cur != nil && cur != target; cur = cur.next[0] {
		rank++
	}
	e := target.e
	e.Rank = rank
	return e, true
}

// Len is the number of users on the board.
func (s *SkipList) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byUser)
}

var _ Board = (*SkipList)(nil)
