package core

import "time"

// Delta is the only mutation contract between the engine and a store.
// New* fields hold absolute values computed against the snapshot the delta
// was derived from; callers commit it against that snapshot's version.
type Delta struct {
	UserID              UserID        `json:"user_id"`
	Action              ActionType    `json:"action,omitempty"`
	PointsDelta         int64         `json:"points_delta"`
	NewTotal            int64         `json:"new_total"`
	NewAvailable        int64         `json:"new_available"`
	NewLevel            int64         `json:"new_level"`
	Level               LevelInfo     `json:"level_info"`
	LeveledUp           bool          `json:"leveled_up,omitempty"`
	NewBadges           []EarnedBadge `json:"new_badges,omitempty"`
	NewStreak           Streak        `json:"new_streak"`
	StreakTransition    StreakChange  `json:"streak_transition,omitempty"`
	NewAchievements     Achievements  `json:"new_achievements"`
	NewHelpfulness      Helpfulness   `json:"new_helpfulness"`
	NewHelpfulnessRatio float64       `json:"new_helpfulness_ratio"`
	ReferredBy          *UserID       `json:"referred_by,omitempty"`
	CreditedReferral    *UserID       `json:"credited_referral,omitempty"`
	Breakdown           *ReviewScore  `json:"breakdown,omitempty"`
	PointsSpent         int64         `json:"points_spent,omitempty"`
	Reason              string        `json:"reason,omitempty"`
	Warnings            []string      `json:"warnings,omitempty"`
	At                  time.Time     `json:"at"`
}

// NoopDelta returns a delta that leaves s unchanged apart from its version.
func NoopDelta(s Snapshot) Delta {
	return Delta{
		UserID:              s.UserID,
		NewTotal:            s.PointsTotal,
		NewAvailable:        s.PointsAvailable,
		NewLevel:            s.Level,
		NewStreak:           s.Streak,
		NewAchievements:     s.Achievements,
		NewHelpfulness:      s.Helpfulness,
		NewHelpfulnessRatio: s.HelpfulnessRatio,
	}
}
