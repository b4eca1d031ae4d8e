package leaderboard

import (
	"fmt"
	"time"

	"reputationkit/core"
)

// Metric selects the statistic a board is ordered by.
type Metric string

const (
	MetricPointsTotal    Metric = "points_total"
	MetricLevel          Metric = "level"
	MetricReviewsWritten Metric = "reviews_written"
	MetricStreakLongest  Metric = "streak_longest"
)

// Metrics lists every rankable metric.
var Metrics = []Metric{MetricPointsTotal, MetricLevel, MetricReviewsWritten, MetricStreakLongest}

// DefaultMaxLimit caps the number of entries a single query returns.
const DefaultMaxLimit = 100

// Entry is one ranked row. Rank is 1-based.
type Entry struct {
	Rank      int         `json:"rank"`
	UserID    core.UserID `json:"user_id"`
	Score     int64       `json:"score"`
	CreatedAt time.Time   `json:"created_at"`
}

// Board abstracts a live leaderboard kept current from committed snapshots.
type Board interface {
	Update(s core.Snapshot)
	Remove(user core.UserID)
	TopN(n int) []Entry
	Get(user core.UserID) (Entry, bool)
}

// ParseMetric validates a metric name.
func ParseMetric(name string) (Metric, error) {
	m := Metric(name)
	if name == "" {
		return MetricPointsTotal, nil
	}
	for _, known := range Metrics {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", core.ErrUnknownMetric, name)
}

// Value extracts the metric from a snapshot.
func (m Metric) Value(s core.Snapshot) (int64, error) {
	switch m {
	case MetricPointsTotal:
		return s.PointsTotal, nil
	case MetricLevel:
		return s.Level, nil
	case MetricReviewsWritten:
		return s.Achievements.ReviewsWritten, nil
	case MetricStreakLongest:
		return s.Streak.Longest, nil
	}
	return 0, fmt.Errorf("%w: %q", core.ErrUnknownMetric, string(m))
}

// less is the total order every board uses: score desc, then the older
// account first, then user id asc.
func less(a, b Entry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.UserID < b.UserID
}
