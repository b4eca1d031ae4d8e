package core

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Badge criteria metrics.
const (
	BadgeMetricReviewsWritten     = "reviews_written"
	BadgeMetricRatingsGiven       = "ratings_given"
	BadgeMetricCommentsPosted     = "comments_posted"
	BadgeMetricFriendsReferred    = "friends_referred"
	BadgeMetricWatchPartiesJoined = "watch_parties_joined"
	BadgeMetricTotalLikes         = "total_likes"
	BadgeMetricStreakCurrent      = "streak_current"
	BadgeMetricStreakLongest      = "streak_longest"
	BadgeMetricLevel              = "level"
	BadgeMetricPointsTotal        = "points_total"
	BadgeMetricHelpfulness        = "helpfulness"
)

// BadgeCriteria declares a badge as "metric >= threshold". MinVotes only
// applies to the helpfulness metric.
type BadgeCriteria struct {
	Name        string  `json:"name" yaml:"name" validate:"required"`
	Icon        string  `json:"icon" yaml:"icon"`
	Description string  `json:"description" yaml:"description"`
	Metric      string  `json:"metric" yaml:"metric" validate:"required"`
	Threshold   float64 `json:"threshold" yaml:"threshold" validate:"gte=0"`
	MinVotes    int64   `json:"min_votes,omitempty" yaml:"min_votes,omitempty" validate:"gte=0"`
}

// DefaultBadgeCriteria is the stock badge catalog.
func DefaultBadgeCriteria() []BadgeCriteria {
	return []BadgeCriteria{
		{Name: "first_review", Icon: "✍️", Description: "Wrote a first review", Metric: BadgeMetricReviewsWritten, Threshold: 1},
		{Name: "critic", Icon: "🎬", Description: "Wrote 10 reviews", Metric: BadgeMetricReviewsWritten, Threshold: 10},
		{Name: "master_critic", Icon: "🏆", Description: "Wrote 50 reviews", Metric: BadgeMetricReviewsWritten, Threshold: 50},
		{Name: "rater", Icon: "⭐", Description: "Rated 50 titles", Metric: BadgeMetricRatingsGiven, Threshold: 50},
		{Name: "conversationalist", Icon: "💬", Description: "Posted 25 replies", Metric: BadgeMetricCommentsPosted, Threshold: 25},
		{Name: "week_streak", Icon: "🔥", Description: "Active 7 days in a row", Metric: BadgeMetricStreakLongest, Threshold: 7},
		{Name: "month_streak", Icon: "📅", Description: "Active 30 days in a row", Metric: BadgeMetricStreakLongest, Threshold: 30},
		{Name: "helpful", Icon: "👍", Description: "Helpfulness of 90% over at least 20 votes", Metric: BadgeMetricHelpfulness, Threshold: 0.9, MinVotes: 20},
		{Name: "recruiter", Icon: "🤝", Description: "Referred 5 friends", Metric: BadgeMetricFriendsReferred, Threshold: 5},
		{Name: "party_goer", Icon: "🍿", Description: "Joined 10 watch parties", Metric: BadgeMetricWatchPartiesJoined, Threshold: 10},
		{Name: "level_10", Icon: "🚀", Description: "Reached level 10", Metric: BadgeMetricLevel, Threshold: 10},
	}
}

// BadgeRule is one catalog entry. Predicate may fail; a failing rule is
// skipped for the current pass rather than blocking the others.
type BadgeRule struct {
	Name        string
	Icon        string
	Description string
	Predicate   func(Snapshot) (bool, error)
}

// BadgeCatalog is an ordered, immutable list of badge rules.
type BadgeCatalog struct {
	rules []BadgeRule
}

// NewBadgeCatalog validates names and rejects duplicates.
func NewBadgeCatalog(rules ...BadgeRule) (BadgeCatalog, error) {
	seen := make(map[string]struct{}, len(rules))
	cp := make([]BadgeRule, 0, len(rules))
	for _, r := range rules {
		if err := ValidateBadgeName(r.Name); err != nil {
			return BadgeCatalog{}, fmt.Errorf("badge %q: %w", r.Name, err)
		}
		if r.Predicate == nil {
			return BadgeCatalog{}, fmt.Errorf("badge %q: nil predicate", r.Name)
		}
		if _, dup := seen[r.Name]; dup {
			return BadgeCatalog{}, fmt.Errorf("duplicate badge %q", r.Name)
		}
		seen[r.Name] = struct{}{}
		cp = append(cp, r)
	}
	return BadgeCatalog{rules: cp}, nil
}

// CatalogFromCriteria builds a catalog from declarative criteria.
func CatalogFromCriteria(criteria []BadgeCriteria) (BadgeCatalog, error) {
	rules := make([]BadgeRule, 0, len(criteria))
	for _, c := range criteria {
		rules = append(rules, BadgeRule{
			Name:        c.Name,
			Icon:        c.Icon,
			Description: c.Description,
			Predicate:   criteriaPredicate(c),
		})
	}
	return NewBadgeCatalog(rules...)
}

// Rules returns a copy of the catalog entries in order.
func (c BadgeCatalog) Rules() []BadgeRule {
	cp := make([]BadgeRule, len(c.rules))
	copy(cp, c.rules)
	return cp
}

// Lookup finds a rule by name.
func (c BadgeCatalog) Lookup(name string) (BadgeRule, bool) {
	for _, r := range c.rules {
		if r.Name == name {
			return r, true
		}
	}
	return BadgeRule{}, false
}

func criteriaPredicate(c BadgeCriteria) func(Snapshot) (bool, error) {
	return func(s Snapshot) (bool, error) {
		if c.Metric == BadgeMetricHelpfulness && s.Helpfulness.Votes() < c.MinVotes {
			return false, nil
		}
		v, err := metricValue(s, c.Metric)
		if err != nil {
			return false, err
		}
		return v >= c.Threshold, nil
	}
}

func metricValue(s Snapshot, metric string) (float64, error) {
	a := s.Achievements
	switch metric {
	case BadgeMetricReviewsWritten:
		return float64(a.ReviewsWritten), nil
	case BadgeMetricRatingsGiven:
		return float64(a.RatingsGiven), nil
	case BadgeMetricCommentsPosted:
		return float64(a.CommentsPosted), nil
	case BadgeMetricFriendsReferred:
		return float64(a.FriendsReferred), nil
	case BadgeMetricWatchPartiesJoined:
		return float64(a.WatchPartiesJoined), nil
	case BadgeMetricTotalLikes:
		return float64(a.TotalLikes), nil
	case BadgeMetricStreakCurrent:
		return float64(s.Streak.Current), nil
	case BadgeMetricStreakLongest:
		return float64(s.Streak.Longest), nil
	case BadgeMetricLevel:
		return float64(s.Level), nil
	case BadgeMetricPointsTotal:
		return float64(s.PointsTotal), nil
	case BadgeMetricHelpfulness:
		return s.Helpfulness.Ratio(), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
}

// BadgeEngine evaluates a catalog against snapshots.
type BadgeEngine struct {
	catalog BadgeCatalog
	clock   Clock
	log     zerolog.Logger
}

// NewBadgeEngine wires a catalog to a clock and logger.
func NewBadgeEngine(catalog BadgeCatalog, clock Clock, log zerolog.Logger) BadgeEngine {
	if clock == nil {
		clock = SystemClock{}
	}
	return BadgeEngine{catalog: catalog, clock: clock, log: log}
}

// Catalog returns the engine's catalog.
func (e BadgeEngine) Catalog() BadgeCatalog { return e.catalog }

// EvaluateBadges returns the names of every badge s currently qualifies for,
// in catalog order. Rules that error or panic are logged and skipped.
func (e BadgeEngine) EvaluateBadges(s Snapshot) []string {
	var out []string
	for _, r := range e.catalog.rules {
		ok, err := e.safeEval(r, s)
		if err != nil {
			e.log.Warn().Err(err).Str("badge", r.Name).Str("user_id", string(s.UserID)).Msg("badge rule skipped")
			continue
		}
		if ok {
			out = append(out, r.Name)
		}
	}
	return out
}

func (e BadgeEngine) safeEval(r BadgeRule, s Snapshot) (ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			ok, err = false, fmt.Errorf("badge rule panicked: %v", p)
		}
	}()
	return r.Predicate(s)
}

// NewlyEarned returns the evaluated badges not yet owned, stamped with the
// clock's current time. Owned badges are never dropped, even when they no
// longer qualify.
func (e BadgeEngine) NewlyEarned(owned []EarnedBadge, evaluated []string) []EarnedBadge {
	return newlyEarned(e.catalog, owned, evaluated, e.clock.Now())
}

func newlyEarned(catalog BadgeCatalog, owned []EarnedBadge, evaluated []string, now time.Time) []EarnedBadge {
	have := make(map[string]struct{}, len(owned))
	for _, b := range owned {
		have[b.Name] = struct{}{}
	}
	var out []EarnedBadge
	for _, name := range evaluated {
		if _, ok := have[name]; ok {
			continue
		}
		have[name] = struct{}{}
		b := EarnedBadge{Name: name, EarnedAt: now.UTC()}
		if r, ok := catalog.Lookup(name); ok {
			b.Icon = r.Icon
		}
		out = append(out, b)
	}
	return out
}
