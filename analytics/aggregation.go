package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Period is a reporting window.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Summary is the rolled-up activity of one reporting window.
type Summary struct {
	Period       Period    `json:"period"`
	Key          string    `json:"key"` // "2026-01-01", "2026-W01" or "2026-01"
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	ActiveUsers  int       `json:"active_users"`
	PointsEarned int64     `json:"points_earned"`
	PointsSpent  int64     `json:"points_spent"`
	Badges       int64     `json:"badges_awarded"`
	LevelUps     int64     `json:"level_ups"`
	StreakResets int64     `json:"streak_resets"`
	Referrals    int64     `json:"referrals"`
	CreatedAt    time.Time `json:"created_at"`
}

// Window returns the key and [start, end) bounds of the period containing t.
func Window(p Period, t time.Time) (string, time.Time, time.Time, error) {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch p {
	case PeriodDaily:
		return dayKey(t), day, day.AddDate(0, 0, 1), nil
	case PeriodWeekly:
		// ISO weeks start on Monday
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return weekKey(t), start, start.AddDate(0, 0, 7), nil
	case PeriodMonthly:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return monthKey(t), start, start.AddDate(0, 1, 0), nil
	}
	return "", time.Time{}, time.Time{}, fmt.Errorf("unknown period %q", p)
}

// Summarize rolls the per-day counters in m up into the window containing t.
func Summarize(m *Metrics, p Period, t time.Time) (Summary, error) {
	key, start, end, err := Window(p, t)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{Period: p, Key: key, StartTime: start, EndTime: end, CreatedAt: time.Now().UTC()}
	switch p {
	case PeriodDaily:
		s.ActiveUsers = m.DailyActiveUsers(key)
	case PeriodWeekly:
		s.ActiveUsers = m.WeeklyActiveUsers(key)
	case PeriodMonthly:
		s.ActiveUsers = m.MonthlyActiveUsers(key)
	}
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		k := dayKey(d)
		s.PointsEarned += m.PointsAwardedOn(k)
		s.PointsSpent += m.PointsSpentOn(k)
		s.Badges += m.BadgesAwardedOn(k)
		s.LevelUps += m.LevelUpsOn(k)
		s.StreakResets += m.StreakResetsOn(k)
		s.Referrals += m.ReferralsOn(k)
	}
	return s, nil
}

// Aggregator snapshots Summaries on a fixed interval so reports for past
// windows survive after the live counters move on.
type Aggregator struct {
	mu       sync.RWMutex
	metrics  *Metrics
	interval time.Duration
	now      func() time.Time
	log      zerolog.Logger
	byPeriod map[Period]map[string]Summary
}

func NewAggregator(metrics *Metrics, interval time.Duration, log zerolog.Logger) *Aggregator {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Aggregator{
		metrics:  metrics,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log,
		byPeriod: map[Period]map[string]Summary{
			PeriodDaily:   {},
			PeriodWeekly:  {},
			PeriodMonthly: {},
		},
	}
}

// Metrics is the live counter set the aggregator reads from.
func (a *Aggregator) Metrics() *Metrics { return a.metrics }

// AggregateNow refreshes the summaries of the current day, week and month.
func (a *Aggregator) AggregateNow() error {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range []Period{PeriodDaily, PeriodWeekly, PeriodMonthly} {
		s, err := Summarize(a.metrics, p, now)
		if err != nil {
			return fmt.Errorf("aggregate %s: %w", p, err)
		}
		a.byPeriod[p][s.Key] = s
	}
	return nil
}

// Get returns a stored summary.
func (a *Aggregator) Get(p Period, key string) (Summary, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.byPeriod[p][key]
	return s, ok
}

// Start aggregates immediately and then on every tick until ctx ends.
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	if err := a.AggregateNow(); err != nil {
		a.log.Error().Err(err).Msg("initial aggregation failed")
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.AggregateNow(); err != nil {
				a.log.Error().Err(err).Msg("periodic aggregation failed")
			}
		}
	}
}

// ExportJSON renders every stored summary of p.
func (a *Aggregator) ExportJSON(p Period) ([]byte, error) {
	a.mu.RLock()
	out := make([]Summary, 0, len(a.byPeriod[p]))
	for _, s := range a.byPeriod[p] {
		out = append(out, s)
	}
	a.mu.RUnlock()
	return json.MarshalIndent(out, "", "  ")
}
