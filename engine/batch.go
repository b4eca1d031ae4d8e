package engine

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"reputationkit/core"
)

// SweepResult summarises a ReevaluateAll pass.
type SweepResult struct {
	Users         int
	BadgesAwarded int64
	LevelUps      int64
}

// ReevaluateAll runs badge and level catch-up for every stored user, at
// most parallel users at a time. Users are independent, so no cross-user
// locking is needed; each commit still goes through the CAS loop.
func (s *Service) ReevaluateAll(ctx context.Context, parallel int) (SweepResult, error) {
	all, err := s.store.All(ctx)
	if err != nil {
		return SweepResult{}, err
	}
	if parallel <= 0 {
		parallel = 8
	}
	var badges, levels atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, snap := range all {
		user := snap.UserID
		g.Go(func() error {
			_, d, err := s.mutate(gctx, user, func(cur core.Snapshot) (core.Delta, error) {
				return s.engine.Reevaluate(cur), nil
			})
			if err != nil {
				return err
			}
			badges.Add(int64(len(d.NewBadges)))
			if d.LeveledUp {
				levels.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()
	res := SweepResult{Users: len(all), BadgesAwarded: badges.Load(), LevelUps: levels.Load()}
	if err != nil {
		return res, err
	}
	s.log.Info().Int("users", res.Users).Int64("badges", res.BadgesAwarded).Int64("level_ups", res.LevelUps).Msg("badge sweep finished")
	return res, nil
}
