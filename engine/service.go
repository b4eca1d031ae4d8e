package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"reputationkit/core"
	"reputationkit/leaderboard"
)

// DefaultMaxRetries bounds how often a commit is recomputed after a
// version conflict.
const DefaultMaxRetries = 5

// Service wires the engine to a store and an event bus. Every mutation is
// Load → compute → CommitDelta(expectedVersion), retried on core.ErrConflict,
// so two activities for the same user can never overwrite each other.
type Service struct {
	engine     *Engine
	store      Store
	lookup     core.ReferrerLookup
	bus        *EventBus
	board      Board
	boardReady atomic.Bool
	maxRetries int
	newCode    func() string
	log        zerolog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

func WithMaxRetries(n int) ServiceOption {
	return func(s *Service) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithBoard keeps a live leaderboard current from committed snapshots.
// Leaderboard queries for the board's metric are served from it once
// WarmBoard has loaded the stored users.
func WithBoard(b Board) ServiceOption { return func(s *Service) { s.board = b } }

// WithReferrerLookup overrides the store as the referral code resolver,
// typically with a CachedReferrerLookup.
func WithReferrerLookup(l core.ReferrerLookup) ServiceOption {
	return func(s *Service) { s.lookup = l }
}

func WithServiceLogger(l zerolog.Logger) ServiceOption { return func(s *Service) { s.log = l } }

// WithCodeGenerator replaces core.NewReferralCode, mainly for tests.
func WithCodeGenerator(fn func() string) ServiceOption { return func(s *Service) { s.newCode = fn } }

func NewService(engine *Engine, store Store, bus *EventBus, opts ...ServiceOption) *Service {
	if engine == nil || store == nil || bus == nil {
		panic("NewService requires non-nil engine, store, and bus")
	}
	s := &Service{
		engine:     engine,
		store:      store,
		lookup:     store,
		bus:        bus,
		maxRetries: DefaultMaxRetries,
		newCode:    core.NewReferralCode,
		log:        zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Engine() *Engine { return s.engine }

// Subscribe convenience method.
func (s *Service) Subscribe(typ core.EventType, handler Handler) func() {
	return s.bus.Subscribe(typ, handler)
}

func (s *Service) Close() { s.bus.Close() }

// mutate runs compute against the freshest snapshot and commits the result,
// recomputing on version conflicts. Derived events are published only after
// a successful commit.
func (s *Service) mutate(ctx context.Context, user core.UserID, compute func(core.Snapshot) (core.Delta, error)) (core.Snapshot, core.Delta, error) {
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return core.Snapshot{}, core.Delta{}, err
		}
		snap, err := s.store.Load(ctx, user)
		if err != nil {
			return core.Snapshot{}, core.Delta{}, err
		}
		d, err := compute(snap)
		if err != nil {
			return core.Snapshot{}, core.Delta{}, err
		}
		next, err := s.store.CommitDelta(ctx, user, d, snap.Version)
		if errors.Is(err, core.ErrConflict) {
			s.log.Debug().Str("user_id", string(user)).Int("attempt", attempt+1).Msg("version conflict, recomputing")
			continue
		}
		if err != nil {
			return core.Snapshot{}, core.Delta{}, err
		}
		s.committed(ctx, next, d)
		return next, d, nil
	}
	return core.Snapshot{}, core.Delta{}, fmt.Errorf("%w: user %s after %d attempts", core.ErrConflict, user, s.maxRetries+1)
}

func (s *Service) committed(ctx context.Context, next core.Snapshot, d core.Delta) {
	if s.board != nil {
		s.board.Update(next)
	}
	for _, ev := range core.DerivedEvents(d) {
		s.bus.Publish(ctx, ev)
	}
}

// Record applies one activity performed by user. System actions
// (welcome_bonus, referral_redeemed, review_voted) are refused with
// core.ErrSystemAction; they only enter through Register, RedeemReferral
// and RecordReviewVotes.
func (s *Service) Record(ctx context.Context, user core.UserID, a core.Activity) (core.Snapshot, core.Delta, error) {
	id, err := core.NormalizeUserID(user)
	if err != nil {
		return core.Snapshot{}, core.Delta{}, err
	}
	if !a.Action.IsUserActivity() {
		return core.Snapshot{}, core.Delta{}, fmt.Errorf("%w: %s cannot be recorded as a user activity", core.ErrSystemAction, a.Action)
	}
	return s.recordSystem(ctx, id, a)
}

// recordSystem applies a without the user-activity guard.
func (s *Service) recordSystem(ctx context.Context, id core.UserID, a core.Activity) (core.Snapshot, core.Delta, error) {
	return s.mutate(ctx, id, func(snap core.Snapshot) (core.Delta, error) {
		return s.engine.Apply(snap, a)
	})
}

// RecordReviewVotes applies votes other users cast on one of author's
// reviews. Negative deltas retract votes.
func (s *Service) RecordReviewVotes(ctx context.Context, author core.UserID, likes, dislikes int64) (core.Snapshot, core.Delta, error) {
	id, err := core.NormalizeUserID(author)
	if err != nil {
		return core.Snapshot{}, core.Delta{}, err
	}
	return s.recordSystem(ctx, id, core.Activity{Action: core.ActionReviewVoted, LikesDelta: likes, DislikesDelta: dislikes})
}

// Award grants points outside the activity table.
func (s *Service) Award(ctx context.Context, user core.UserID, amount int64, reason string) (core.Snapshot, core.Delta, error) {
	id, err := core.NormalizeUserID(user)
	if err != nil {
		return core.Snapshot{}, core.Delta{}, err
	}
	return s.mutate(ctx, id, func(snap core.Snapshot) (core.Delta, error) {
		return s.engine.Award(snap, amount, reason)
	})
}

// Spend deducts from the user's spendable balance.
func (s *Service) Spend(ctx context.Context, user core.UserID, amount int64, reason string) (core.Snapshot, core.Delta, error) {
	id, err := core.NormalizeUserID(user)
	if err != nil {
		return core.Snapshot{}, core.Delta{}, err
	}
	return s.mutate(ctx, id, func(snap core.Snapshot) (core.Delta, error) {
		return s.engine.Spend(snap, amount, reason)
	})
}

// Register creates an account, grants the welcome bonus and, when a
// referral code is given, binds the referral. An unknown code does not fail
// registration; any other referral error is returned alongside the created
// account.
func (s *Service) Register(ctx context.Context, user core.UserID, referralCode string) (core.Snapshot, error) {
	id, err := core.NormalizeUserID(user)
	if err != nil {
		return core.Snapshot{}, err
	}
	snap := core.NewSnapshot(id, s.newCode(), s.engine.Clock().Now())
	if err := s.store.Create(ctx, snap); err != nil {
		return core.Snapshot{}, err
	}
	s.committed(ctx, snap, core.NoopDelta(snap))

	snap, _, err = s.recordSystem(ctx, id, core.Activity{Action: core.ActionWelcomeBonus})
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("welcome bonus: %w", err)
	}
	if referralCode == "" {
		return snap, nil
	}
	_, err = s.RedeemReferral(ctx, id, referralCode)
	switch {
	case errors.Is(err, core.ErrUnknownCode):
		s.log.Info().Str("user_id", string(id)).Str("code", core.NormalizeReferralCode(referralCode)).Msg("unknown referral code ignored")
	case err != nil:
		return snap, err
	}
	return s.store.Load(ctx, id)
}

// RedeemReferral binds user to the owner of code and credits the referrer.
// The binding commits first. The credit is keyed on the referred user, so
// when it failed earlier, redeeming the same code again completes it
// instead of reporting core.ErrAlreadyReferred.
func (s *Service) RedeemReferral(ctx context.Context, user core.UserID, code string) (core.ReferralResult, error) {
	id, err := core.NormalizeUserID(user)
	if err != nil {
		return core.ReferralResult{}, err
	}
	var res core.ReferralResult
	_, _, err = s.mutate(ctx, id, func(snap core.Snapshot) (core.Delta, error) {
		r, err := s.engine.ProcessReferral(ctx, snap, s.lookup, code)
		if err != nil {
			return core.Delta{}, err
		}
		res = r
		return r.NewUserDelta, nil
	})
	if errors.Is(err, core.ErrAlreadyReferred) {
		return s.resumeReferralCredit(ctx, id, code, err)
	}
	if err != nil {
		return core.ReferralResult{}, err
	}
	res, _, err = s.creditReferrer(ctx, id, res)
	return res, err
}

// creditReferrer pays res.ReferrerID for referred. credited is false when
// that referral had already been paid.
func (s *Service) creditReferrer(ctx context.Context, referred core.UserID, res core.ReferralResult) (core.ReferralResult, bool, error) {
	_, d, err := s.recordSystem(ctx, res.ReferrerID, core.Activity{Action: core.ActionReferralRedeemed, ReferredUser: referred})
	if err != nil {
		return res, false, fmt.Errorf("credit referrer %s: %w", res.ReferrerID, err)
	}
	if d.CreditedReferral == nil {
		res.Bonus = 0
		return res, false, nil
	}
	res.Bonus = d.PointsDelta
	s.bus.Publish(ctx, core.NewReferralCredited(res.ReferrerID, referred, d.PointsDelta, d.At))
	return res, true, nil
}

// resumeReferralCredit finishes a redemption whose binding to the owner of
// code committed but whose credit did not. Anything else keeps bindErr.
func (s *Service) resumeReferralCredit(ctx context.Context, id core.UserID, code string, bindErr error) (core.ReferralResult, error) {
	snap, err := s.store.Load(ctx, id)
	if err != nil || snap.ReferredBy == nil {
		return core.ReferralResult{}, bindErr
	}
	owner, ok, err := s.lookup.FindByReferralCode(ctx, core.NormalizeReferralCode(code))
	if err != nil || !ok || owner != *snap.ReferredBy {
		return core.ReferralResult{}, bindErr
	}
	res, credited, err := s.creditReferrer(ctx, id, core.ReferralResult{ReferrerID: owner})
	if err != nil {
		return core.ReferralResult{}, err
	}
	if !credited {
		return core.ReferralResult{}, bindErr
	}
	s.log.Info().Str("user_id", string(id)).Str("referrer_id", string(owner)).Msg("pending referral credit completed")
	return res, nil
}

// GetSnapshot returns the stored state of user.
func (s *Service) GetSnapshot(ctx context.Context, user core.UserID) (core.Snapshot, error) {
	id, err := core.NormalizeUserID(user)
	if err != nil {
		return core.Snapshot{}, err
	}
	return s.store.Load(ctx, id)
}

// Leaderboard ranks users by metric. A warmed board for the same metric
// answers directly; otherwise every stored user is loaded and ranked.
func (s *Service) Leaderboard(ctx context.Context, metric leaderboard.Metric, limit int) ([]leaderboard.Entry, error) {
	r := leaderboard.Ranker{MaxLimit: s.engine.Ruleset().LeaderboardMaxLimit}
	if s.board != nil && s.boardReady.Load() && s.board.Metric() == metric {
		return s.board.TopN(r.Limit(limit)), nil
	}
	all, err := s.store.All(ctx)
	if err != nil {
		return nil, err
	}
	return r.Rank(all, metric, limit)
}

// WarmBoard loads every stored user into the live board and starts serving
// leaderboard queries from it. Without a board it is a no-op.
func (s *Service) WarmBoard(ctx context.Context) error {
	if s.board == nil {
		return nil
	}
	all, err := s.store.All(ctx)
	if err != nil {
		return fmt.Errorf("warm leaderboard: %w", err)
	}
	for _, snap := range all {
		s.board.Update(snap)
	}
	s.boardReady.Store(true)
	s.log.Info().Int("users", len(all)).Str("metric", string(s.board.Metric())).Msg("leaderboard warmed")
	return nil
}

// Level looks up the level for a points total.
func (s *Service) Level(points int64) core.LevelInfo {
	return s.engine.Levels().LevelFromPoints(points)
}
