package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

// UserID uniquely identifies a user in the reputation domain.
type UserID string

// EarnedBadge is a badge held by a user, stamped with the time it was first earned.
type EarnedBadge struct {
	Name     string    `json:"name"`
	Icon     string    `json:"icon"`
	EarnedAt time.Time `json:"earned_at"`
}

// Streak is a daily-activity streak keyed by UTC calendar day.
// A zero LastActivityDate means the user has no recorded activity.
type Streak struct {
	Current          int64     `json:"current"`
	Longest          int64     `json:"longest"`
	LastActivityDate time.Time `json:"last_activity_date,omitempty"`
}

// Achievements are the activity counters badge rules are evaluated against.
// Counters may regress (a deleted review decrements ReviewsWritten).
type Achievements struct {
	ReviewsWritten     int64 `json:"reviews_written"`
	RatingsGiven       int64 `json:"ratings_given"`
	CommentsPosted     int64 `json:"comments_posted"`
	FriendsReferred    int64 `json:"friends_referred"`
	WatchPartiesJoined int64 `json:"watch_parties_joined"`
	TotalLikes         int64 `json:"total_likes"`
}

// Snapshot is the read-only view of one user's gamification state.
// The engine never mutates a snapshot; it computes a Delta instead.
type Snapshot struct {
	UserID           UserID        `json:"user_id"`
	CreatedAt        time.Time     `json:"created_at"`
	Version          uint64        `json:"version"`
	PointsTotal      int64         `json:"points_total"`
	PointsAvailable  int64         `json:"points_available"`
	Level            int64         `json:"level"`
	Badges           []EarnedBadge `json:"badges"`
	Streak           Streak        `json:"streak"`
	Achievements     Achievements  `json:"achievements"`
	Helpfulness      Helpfulness   `json:"helpfulness"`
	HelpfulnessRatio float64       `json:"helpfulness_ratio"`
	ReferralCode     string        `json:"referral_code"`
	ReferredBy       *UserID       `json:"referred_by,omitempty"`
	Updated          time.Time     `json:"updated"`

	// ReferralsCredited lists the referred users this account was paid for.
	ReferralsCredited []UserID `json:"referrals_credited,omitempty"`
}

// NewSnapshot returns the initial state of a freshly registered account.
func NewSnapshot(user UserID, referralCode string, createdAt time.Time) Snapshot {
	return Snapshot{
		UserID:       user,
		CreatedAt:    createdAt.UTC(),
		Level:        1,
		Badges:       []EarnedBadge{},
		ReferralCode: referralCode,
		Updated:      createdAt.UTC(),
	}
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	cp := s
	cp.Badges = make([]EarnedBadge, len(s.Badges))
	copy(cp.Badges, s.Badges)
	if s.ReferredBy != nil {
		ref := *s.ReferredBy
		cp.ReferredBy = &ref
	}
	if s.ReferralsCredited != nil {
		cp.ReferralsCredited = append([]UserID(nil), s.ReferralsCredited...)
	}
	return cp
}

// HasCreditedReferral reports whether the referral bonus for referred was
// already paid to this account.
func (s Snapshot) HasCreditedReferral(referred UserID) bool {
	for _, u := range s.ReferralsCredited {
		if u == referred {
			return true
		}
	}
	return false
}

// HasBadge reports whether the named badge is already owned.
func (s Snapshot) HasBadge(name string) bool {
	for _, b := range s.Badges {
		if b.Name == name {
			return true
		}
	}
	return false
}

// WithDelta applies d and returns the next snapshot. Every ratchet is
// re-asserted here so a store can never move a user backwards: the total
// only grows, the level never drops, badges are unioned and the longest
// streak is kept at its maximum. The version is bumped by one.
func (s Snapshot) WithDelta(d Delta) Snapshot {
	next := s.Clone()
	if d.NewTotal > next.PointsTotal {
		next.PointsTotal = d.NewTotal
	}
	next.PointsAvailable = d.NewAvailable
	if next.PointsAvailable < 0 {
		next.PointsAvailable = 0
	}
	if d.NewLevel > next.Level {
		next.Level = d.NewLevel
	}
	for _, b := range d.NewBadges {
		if !next.HasBadge(b.Name) {
			next.Badges = append(next.Badges, b)
		}
	}
	streak := d.NewStreak
	if streak.Longest < next.Streak.Longest {
		streak.Longest = next.Streak.Longest
	}
	if streak.Current > streak.Longest {
		streak.Longest = streak.Current
	}
	if streak.LastActivityDate.Before(next.Streak.LastActivityDate) {
		streak.LastActivityDate = next.Streak.LastActivityDate
	}
	next.Streak = streak
	next.Achievements = d.NewAchievements
	next.Helpfulness = d.NewHelpfulness
	next.HelpfulnessRatio = d.NewHelpfulnessRatio
	if next.ReferredBy == nil && d.ReferredBy != nil {
		ref := *d.ReferredBy
		next.ReferredBy = &ref
	}
	if d.CreditedReferral != nil && !next.HasCreditedReferral(*d.CreditedReferral) {
		next.ReferralsCredited = append(next.ReferralsCredited, *d.CreditedReferral)
	}
	next.Version = s.Version + 1
	if !d.At.IsZero() {
		next.Updated = d.At
	}
	return next
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, errors.New("integer overflow in AddSafe")
	}
	return base + delta, nil
}

// NormalizeUserID trims and lowercases user identifiers.
func NormalizeUserID(id UserID) (UserID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", errors.New("empty user id")
	}
	return UserID(strings.ToLower(s)), nil
}

// ValidateBadgeName ensures a non-empty badge name with a simple charset check.
func ValidateBadgeName(name string) error {
	s := strings.TrimSpace(name)
	if s == "" {
		return errors.New("empty badge name")
	}
	// alnum, dash, underscore
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			continue
		}
		return errors.New("invalid badge name")
	}
	return nil
}
