package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates domain events.
type EventType string

const (
	EventPointsAdded      EventType = "points_added"
	EventPointsSpent      EventType = "points_spent"
	EventBadgeAwarded     EventType = "badge_awarded"
	EventLevelUp          EventType = "level_up"
	EventStreakUpdated    EventType = "streak_updated"
	EventReferralCredited EventType = "referral_credited"
)

// AllEventTypes lists every domain event type.
var AllEventTypes = []EventType{
	EventPointsAdded, EventPointsSpent, EventBadgeAwarded,
	EventLevelUp, EventStreakUpdated, EventReferralCredited,
}

// Event represents an immutable domain event emitted after a delta commits.
type Event struct {
	ID       string         `json:"id"`
	Type     EventType      `json:"type"`
	Time     time.Time      `json:"time"`
	UserID   UserID         `json:"user_id"`
	Action   ActionType     `json:"action,omitempty"`
	Delta    int64          `json:"delta,omitempty"`
	Total    int64          `json:"total,omitempty"`
	Badge    string         `json:"badge,omitempty"`
	Level    int64          `json:"level,omitempty"`
	Streak   *Streak        `json:"streak,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func newEvent(typ EventType, user UserID, at time.Time) Event {
	if at.IsZero() {
		at = time.Now()
	}
	return Event{ID: uuid.NewString(), Type: typ, Time: at.UTC(), UserID: user}
}

func NewPointsAdded(user UserID, action ActionType, delta int64, total int64, at time.Time) Event {
	e := newEvent(EventPointsAdded, user, at)
	e.Action, e.Delta, e.Total = action, delta, total
	return e
}

func NewPointsSpent(user UserID, amount int64, available int64, at time.Time) Event {
	e := newEvent(EventPointsSpent, user, at)
	e.Delta, e.Total = amount, available
	return e
}

func NewBadgeAwarded(user UserID, badge EarnedBadge) Event {
	e := newEvent(EventBadgeAwarded, user, badge.EarnedAt)
	e.Badge = badge.Name
	return e
}

func NewLevelUp(user UserID, level int64, at time.Time) Event {
	e := newEvent(EventLevelUp, user, at)
	e.Level = level
	return e
}

func NewStreakUpdated(user UserID, s Streak, change StreakChange, at time.Time) Event {
	e := newEvent(EventStreakUpdated, user, at)
	st := s
	e.Streak = &st
	e.Metadata = map[string]any{"transition": string(change)}
	return e
}

func NewReferralCredited(referrer UserID, referred UserID, bonus int64, at time.Time) Event {
	e := newEvent(EventReferralCredited, referrer, at)
	e.Delta = bonus
	e.Metadata = map[string]any{"referred_user": string(referred)}
	return e
}
