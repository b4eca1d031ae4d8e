package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"reputationkit/core"
)

// Engine is the gamification orchestrator. It is stateless apart from its
// immutable ruleset, so one Engine may serve any number of goroutines.
type Engine struct {
	rules     core.Ruleset
	points    core.PointsCalculator
	levels    core.LevelCurve
	badges    core.BadgeEngine
	streaks   core.StreakTracker
	referrals core.ReferralProcessor
	clock     core.Clock
	log       zerolog.Logger
	catalog   *core.BadgeCatalog
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock injects the time source.
func WithClock(c core.Clock) EngineOption { return func(e *Engine) { e.clock = c } }

// WithLogger sets the logger used for skipped badge rules and warnings.
func WithLogger(l zerolog.Logger) EngineOption { return func(e *Engine) { e.log = l } }

// WithBadgeCatalog replaces the catalog built from the ruleset's criteria.
func WithBadgeCatalog(c core.BadgeCatalog) EngineOption {
	return func(e *Engine) { e.catalog = &c }
}

// NewEngine validates the ruleset and assembles the components.
func NewEngine(rules core.Ruleset, opts ...EngineOption) (*Engine, error) {
	e := &Engine{rules: rules, clock: core.SystemClock{}, log: zerolog.Nop()}
	for _, o := range opts {
		o(e)
	}
	levels, err := core.NewLevelCurve(rules.LevelThresholds)
	if err != nil {
		return nil, fmt.Errorf("level curve: %w", err)
	}
	catalog := e.catalog
	if catalog == nil {
		c, err := core.CatalogFromCriteria(rules.Badges)
		if err != nil {
			return nil, fmt.Errorf("badge catalog: %w", err)
		}
		catalog = &c
	}
	if e.rules.LeaderboardMaxLimit <= 0 {
		e.rules.LeaderboardMaxLimit = 100
	}
	e.levels = levels
	e.points = core.NewPointsCalculator(rules.Awards, rules.Review)
	e.badges = core.NewBadgeEngine(*catalog, e.clock, e.log)
	e.streaks = core.NewStreakTracker(e.clock)
	e.referrals = core.NewReferralProcessor(e.points)
	return e, nil
}

// DefaultEngine builds an engine on core.DefaultRuleset.
func DefaultEngine(opts ...EngineOption) *Engine {
	e, err := NewEngine(core.DefaultRuleset(), opts...)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Engine) Ruleset() core.Ruleset            { return e.rules }
func (e *Engine) Points() core.PointsCalculator    { return e.points }
func (e *Engine) Levels() core.LevelCurve          { return e.levels }
func (e *Engine) Badges() core.BadgeEngine         { return e.badges }
func (e *Engine) Referrals() core.ReferralProcessor { return e.referrals }
func (e *Engine) Clock() core.Clock                { return e.clock }

// Apply computes the delta one activity produces on s. The order is fixed:
// streak, points, achievements, level, badges. Unknown actions produce an
// empty delta with a warning; only arithmetic overflow fails.
func (e *Engine) Apply(s core.Snapshot, a core.Activity) (core.Delta, error) {
	at := a.At
	if at.IsZero() {
		at = e.clock.Now()
	}
	at = at.UTC()

	d := core.NoopDelta(s)
	d.Action = a.Action
	d.At = at
	d.Reason = a.Reason
	if d.Reason == "" {
		d.Reason = string(a.Action)
	}
	next := s.Clone()

	flat, err := e.points.FlatAward(a.Action)
	if errors.Is(err, core.ErrUnknownActionType) {
		e.log.Warn().Str("user_id", string(s.UserID)).Str("action", string(a.Action)).Msg("unknown action type, nothing awarded")
		d.Warnings = append(d.Warnings, err.Error())
		return e.finish(s, next, d), nil
	}

	if a.Action == core.ActionReferralRedeemed && a.ReferredUser != "" {
		if s.HasCreditedReferral(a.ReferredUser) {
			d.Warnings = append(d.Warnings, fmt.Sprintf("referral of %s already credited", a.ReferredUser))
			return e.finish(s, next, d), nil
		}
		ref := a.ReferredUser
		d.CreditedReferral = &ref
	}

	var change core.StreakChange
	if a.Action.IsUserActivity() {
		next.Streak, change = e.streaks.Advance(s.Streak, at)
		d.StreakTransition = change
	}

	amount := flat
	switch a.Action {
	case core.ActionReviewCreated:
		review := core.ReviewInput{Length: a.ReviewLength, Rank: a.ReviewRank}
		if review.Length < 0 {
			d.Warnings = append(d.Warnings, "negative review length clamped to 0")
			review.Length = 0
		}
		score := e.points.ComputeReviewPoints(review, next)
		d.Breakdown = &score
		amount = score.Total
	case core.ActionLogin:
		// daily login bonus, once per UTC day
		if !change.NewDay() {
			amount = 0
		}
	}

	pd, err := e.points.AddPoints(next, amount, d.Reason)
	if err != nil {
		return core.Delta{}, err
	}
	next.PointsTotal, next.PointsAvailable = pd.NewTotal, pd.NewAvailable
	d.PointsDelta = pd.PointsDelta

	applyAchievements(&next, a)
	return e.finish(s, next, d), nil
}

func applyAchievements(next *core.Snapshot, a core.Activity) {
	ach := &next.Achievements
	switch a.Action {
	case core.ActionReviewCreated:
		ach.ReviewsWritten++
	case core.ActionReviewDeleted:
		if ach.ReviewsWritten > 0 {
			ach.ReviewsWritten--
		}
		// the deleted review's votes leave the aggregate with it
		next.Helpfulness = next.Helpfulness.Apply(-abs(a.LikesDelta), -abs(a.DislikesDelta))
	case core.ActionReviewVoted:
		next.Helpfulness = next.Helpfulness.Apply(a.LikesDelta, a.DislikesDelta)
	case core.ActionMovieRated:
		ach.RatingsGiven++
	case core.ActionReplyPosted:
		ach.CommentsPosted++
	case core.ActionWatchPartyJoined:
		ach.WatchPartiesJoined++
	case core.ActionReferralRedeemed:
		ach.FriendsReferred++
	}
	ach.TotalLikes = next.Helpfulness.Likes
	next.HelpfulnessRatio = next.Helpfulness.Ratio()
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// finish runs the level ratchet and badge evaluation on the projected
// snapshot and copies the result into d.
func (e *Engine) finish(prev, next core.Snapshot, d core.Delta) core.Delta {
	info := e.levels.LevelFromPoints(next.PointsTotal)
	level := prev.Level
	if info.Level > level {
		level = info.Level
	}
	next.Level = level
	d.Level = info
	d.NewLevel = level
	d.LeveledUp = level > prev.Level

	d.NewBadges = e.badges.NewlyEarned(prev.Badges, e.badges.EvaluateBadges(next))
	d.NewTotal = next.PointsTotal
	d.NewAvailable = next.PointsAvailable
	d.NewStreak = next.Streak
	d.NewAchievements = next.Achievements
	d.NewHelpfulness = next.Helpfulness
	d.NewHelpfulnessRatio = next.HelpfulnessRatio
	if d.At.IsZero() {
		d.At = e.clock.Now()
	}
	return d
}

// Award grants amount outside the activity table (e.g. moderator grants),
// running the level and badge steps.
func (e *Engine) Award(s core.Snapshot, amount int64, reason string) (core.Delta, error) {
	d, err := e.points.AddPoints(s, amount, reason)
	if err != nil {
		return core.Delta{}, err
	}
	next := s.Clone()
	next.PointsTotal, next.PointsAvailable = d.NewTotal, d.NewAvailable
	d.At = e.clock.Now()
	return e.finish(s, next, d), nil
}

// Spend deducts from the spendable balance. Level and badges are untouched.
func (e *Engine) Spend(s core.Snapshot, amount int64, reason string) (core.Delta, error) {
	d, err := e.points.SpendPoints(s, amount, reason)
	if err != nil {
		return core.Delta{}, err
	}
	d.At = e.clock.Now()
	d.Level = e.levels.LevelFromPoints(s.PointsTotal)
	return d, nil
}

// Reevaluate catches a snapshot up with the current catalog and curve
// without awarding anything, e.g. after new badges were added to the ruleset.
func (e *Engine) Reevaluate(s core.Snapshot) core.Delta {
	d := core.NoopDelta(s)
	d.Reason = "reevaluate"
	return e.finish(s, s.Clone(), d)
}

// ProcessReferral validates a referral for a newly registered user.
func (e *Engine) ProcessReferral(ctx context.Context, newUser core.Snapshot, lookup core.ReferrerLookup, code string) (core.ReferralResult, error) {
	return e.referrals.ProcessReferral(ctx, newUser, lookup, code)
}
