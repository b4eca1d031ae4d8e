package analytics

import (
	"fmt"
	"sync"
	"time"

	"reputationkit/core"
)

// Hook receives committed domain events for KPI aggregation.
type Hook interface {
	OnEvent(e core.Event)
}

// DAU tracks daily active users.
type DAU struct {
	mu   sync.Mutex
	days map[string]map[core.UserID]struct{}
}

func NewDAU() *DAU { return &DAU{days: map[string]map[core.UserID]struct{}{}} }

func (d *DAU) OnEvent(e core.Event) {
	day := dayKey(e.Time)
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.days[day]
	if m == nil {
		m = map[core.UserID]struct{}{}
		d.days[day] = m
	}
	m[e.UserID] = struct{}{}
}

func (d *DAU) Count(day string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.days[day])
}

// Metrics keeps engagement and economy counters keyed by UTC day, ISO week
// and month.
type Metrics struct {
	mu sync.RWMutex

	dailyActiveUsers   map[string]map[core.UserID]struct{}
	weeklyActiveUsers  map[string]map[core.UserID]struct{}
	monthlyActiveUsers map[string]map[core.UserID]struct{}

	pointsAwardedByDay    map[string]int64
	pointsAwardedByAction map[core.ActionType]int64
	pointsSpentByDay      map[string]int64

	badgesAwardedByDay  map[string]int64
	badgesAwardedByName map[string]int64
	uniqueBadgeHolders  map[string]map[core.UserID]struct{}

	levelUpsByDay     map[string]int64
	levelDistribution map[int64]int
	userLevel         map[core.UserID]int64

	streakResetsByDay map[string]int64
	referralsByDay    map[string]int64
}

func NewMetrics() *Metrics {
	return &Metrics{
		dailyActiveUsers:      make(map[string]map[core.UserID]struct{}),
		weeklyActiveUsers:     make(map[string]map[core.UserID]struct{}),
		monthlyActiveUsers:    make(map[string]map[core.UserID]struct{}),
		pointsAwardedByDay:    make(map[string]int64),
		pointsAwardedByAction: make(map[core.ActionType]int64),
		pointsSpentByDay:      make(map[string]int64),
		badgesAwardedByDay:    make(map[string]int64),
		badgesAwardedByName:   make(map[string]int64),
		uniqueBadgeHolders:    make(map[string]map[core.UserID]struct{}),
		levelUpsByDay:         make(map[string]int64),
		levelDistribution:     make(map[int64]int),
		userLevel:             make(map[core.UserID]int64),
		streakResetsByDay:     make(map[string]int64),
		referralsByDay:        make(map[string]int64),
	}
}

func (m *Metrics) OnEvent(e core.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := dayKey(e.Time)
	m.trackUserEngagement(e.UserID, day, weekKey(e.Time), monthKey(e.Time))

	switch e.Type {
	case core.EventPointsAdded:
		if e.Delta > 0 {
			m.pointsAwardedByDay[day] += e.Delta
			m.pointsAwardedByAction[e.Action] += e.Delta
		}
	case core.EventPointsSpent:
		m.pointsSpentByDay[day] += e.Delta
	case core.EventLevelUp:
		m.levelUpsByDay[day]++
		if prev, ok := m.userLevel[e.UserID]; ok {
			m.levelDistribution[prev]--
		}
		m.userLevel[e.UserID] = e.Level
		m.levelDistribution[e.Level]++
	case core.EventBadgeAwarded:
		m.badgesAwardedByDay[day]++
		m.badgesAwardedByName[e.Badge]++
		if m.uniqueBadgeHolders[e.Badge] == nil {
			m.uniqueBadgeHolders[e.Badge] = make(map[core.UserID]struct{})
		}
		m.uniqueBadgeHolders[e.Badge][e.UserID] = struct{}{}
	case core.EventStreakUpdated:
		if e.Metadata["transition"] == string(core.StreakReset) {
			m.streakResetsByDay[day]++
		}
	case core.EventReferralCredited:
		m.referralsByDay[day]++
	}
}

func (m *Metrics) trackUserEngagement(userID core.UserID, day, week, month string) {
	add := func(set map[string]map[core.UserID]struct{}, key string) {
		if set[key] == nil {
			set[key] = make(map[core.UserID]struct{})
		}
		set[key][userID] = struct{}{}
	}
	add(m.dailyActiveUsers, day)
	add(m.weeklyActiveUsers, week)
	add(m.monthlyActiveUsers, month)
}

func (m *Metrics) DailyActiveUsers(day string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.dailyActiveUsers[day])
}

func (m *Metrics) WeeklyActiveUsers(week string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.weeklyActiveUsers[week])
}

func (m *Metrics) MonthlyActiveUsers(month string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.monthlyActiveUsers[month])
}

func (m *Metrics) PointsAwardedOn(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pointsAwardedByDay[day]
}

func (m *Metrics) PointsAwardedFor(action core.ActionType) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pointsAwardedByAction[action]
}

func (m *Metrics) PointsSpentOn(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pointsSpentByDay[day]
}

func (m *Metrics) BadgesAwardedOn(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.badgesAwardedByDay[day]
}

func (m *Metrics) BadgesAwarded(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.badgesAwardedByName[name]
}

// UniqueBadgeHolders counts distinct users holding the named badge.
func (m *Metrics) UniqueBadgeHolders(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.uniqueBadgeHolders[name])
}

func (m *Metrics) LevelUpsOn(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.levelUpsByDay[day]
}

// LevelDistribution maps level to the number of users whose latest
// level-up landed there.
func (m *Metrics) LevelDistribution() map[int64]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]int, len(m.levelDistribution))
	for k, v := range m.levelDistribution {
		if v > 0 {
			out[k] = v
		}
	}
	return out
}

func (m *Metrics) StreakResetsOn(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.streakResetsByDay[day]
}

func (m *Metrics) ReferralsOn(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.referralsByDay[day]
}

func dayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

func weekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func monthKey(t time.Time) string { return t.UTC().Format("2006-01") }
