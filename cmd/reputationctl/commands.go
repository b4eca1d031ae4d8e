package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"reputationkit/adapters/jsonfile"
	"reputationkit/config"
	"reputationkit/core"
	"reputationkit/engine"
	"reputationkit/gamify"
	"reputationkit/leaderboard"
)

type rootOptions struct {
	storePath   string
	rulesetPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "reputationctl",
		Short:         "Inspect and drive a reputation store from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.storePath, "store", "./data/reputation.json", "path to the JSON snapshot store")
	root.PersistentFlags().StringVar(&opts.rulesetPath, "ruleset", "", "YAML ruleset (defaults to the built-in tuning)")

	root.AddCommand(
		newLevelCmd(opts),
		newRankCmd(opts),
		newRegisterCmd(opts),
		newApplyCmd(opts),
		newVoteCmd(opts),
		newShowCmd(opts),
		newSweepCmd(opts),
	)
	return root
}

func (o *rootOptions) ruleset() (core.Ruleset, error) {
	if o.rulesetPath == "" {
		return core.DefaultRuleset(), nil
	}
	return config.LoadRuleset(o.rulesetPath)
}

func (o *rootOptions) service() (*engine.Service, error) {
	rules, err := o.ruleset()
	if err != nil {
		return nil, err
	}
	store, err := jsonfile.New(o.storePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return gamify.New(
		gamify.WithStorage(store),
		gamify.WithRuleset(rules),
		gamify.WithDispatchMode(engine.DispatchSync),
	)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newLevelCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "level <points>",
		Short: "Show the level a points total maps to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			points, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("points must be an integer: %w", err)
			}
			rules, err := opts.ruleset()
			if err != nil {
				return err
			}
			curve, err := core.NewLevelCurve(rules.LevelThresholds)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), curve.LevelFromPoints(points))
		},
	}
}

func newRankCmd(opts *rootOptions) *cobra.Command {
	var (
		metric string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Print the leaderboard for a metric",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := leaderboard.ParseMetric(metric)
			if err != nil {
				return err
			}
			svc, err := opts.service()
			if err != nil {
				return err
			}
			entries, err := svc.Leaderboard(cmd.Context(), m, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().StringVar(&metric, "metric", string(leaderboard.MetricPointsTotal), "points_total, level, reviews_written or streak_longest")
	cmd.Flags().IntVar(&limit, "limit", 10, "number of entries")
	return cmd
}

func newRegisterCmd(opts *rootOptions) *cobra.Command {
	var referral string
	cmd := &cobra.Command{
		Use:   "register <user>",
		Short: "Create an account and grant the welcome bonus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.service()
			if err != nil {
				return err
			}
			snap, err := svc.Register(cmd.Context(), core.UserID(args[0]), referral)
			if err != nil && snap.UserID == "" {
				return err
			}
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "referral not applied: %v\n", err)
			}
			return printJSON(cmd.OutOrStdout(), snap)
		},
	}
	cmd.Flags().StringVar(&referral, "referral", "", "referral code of the inviting user")
	return cmd
}

func newApplyCmd(opts *rootOptions) *cobra.Command {
	var (
		a  core.Activity
		at string
	)
	cmd := &cobra.Command{
		Use:   "apply <user> <action>",
		Short: "Apply one activity and print the resulting delta",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.Action = core.ActionType(args[1])
			if at != "" {
				ts, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at must be RFC3339: %w", err)
				}
				a.At = ts
			}
			svc, err := opts.service()
			if err != nil {
				return err
			}
			_, d, err := svc.Record(cmd.Context(), core.UserID(args[0]), a)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), d)
		},
	}
	f := cmd.Flags()
	f.StringVar(&at, "at", "", "activity time (RFC3339), defaults to now")
	f.StringVar(&a.MediaID, "media", "", "media id for review_created")
	f.IntVar(&a.ReviewRank, "rank", 0, "1-based position of the review among reviews of the media")
	f.IntVar(&a.ReviewLength, "length", 0, "review length in characters")
	f.Int64Var(&a.LikesDelta, "likes", 0, "likes the deleted review held (review_deleted)")
	f.Int64Var(&a.DislikesDelta, "dislikes", 0, "dislikes the deleted review held (review_deleted)")
	f.StringVar(&a.Reason, "reason", "", "free-form reason")
	return cmd
}

func newVoteCmd(opts *rootOptions) *cobra.Command {
	var likes, dislikes int64
	cmd := &cobra.Command{
		Use:   "vote <author>",
		Short: "Record votes other users cast on one of the author's reviews",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.service()
			if err != nil {
				return err
			}
			_, d, err := svc.RecordReviewVotes(cmd.Context(), core.UserID(args[0]), likes, dislikes)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), d)
		},
	}
	cmd.Flags().Int64Var(&likes, "likes", 0, "likes added, negative to retract")
	cmd.Flags().Int64Var(&dislikes, "dislikes", 0, "dislikes added, negative to retract")
	return cmd
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <user>",
		Short: "Print a user's snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.service()
			if err != nil {
				return err
			}
			snap, err := svc.GetSnapshot(cmd.Context(), core.UserID(args[0]))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), snap)
		},
	}
}

func newSweepCmd(opts *rootOptions) *cobra.Command {
	var parallel int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Re-evaluate badges and levels for every user",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.service()
			if err != nil {
				return err
			}
			res, err := svc.ReevaluateAll(cmd.Context(), parallel)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().IntVar(&parallel, "parallel", 8, "users processed concurrently")
	return cmd
}
