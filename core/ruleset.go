package core

// ReviewScoring holds the constants for review points.
type ReviewScoring struct {
	Base int64 `json:"base" yaml:"base" validate:"gte=0"`
	// LengthSteps maps a minimum content length to its bonus; the highest
	// step reached applies, so the bonus is capped by the last step.
	LengthSteps []LengthStep `json:"length_steps" yaml:"length_steps" validate:"dive"`
	// EarlyBirdStep is the bonus per rank position below the cutoff.
	EarlyBirdStep   int64 `json:"early_bird_step" yaml:"early_bird_step" validate:"gte=0"`
	EarlyBirdCutoff int   `json:"early_bird_cutoff" yaml:"early_bird_cutoff" validate:"gte=0"`
	// StreakFactor and LevelFactor feed the multiplier, capped at MaxMultiplier.
	StreakFactor  float64 `json:"streak_factor" yaml:"streak_factor" validate:"gte=0"`
	LevelFactor   float64 `json:"level_factor" yaml:"level_factor" validate:"gte=0"`
	MaxMultiplier float64 `json:"max_multiplier" yaml:"max_multiplier" validate:"gte=1"`
}

// LengthStep is one rung of the review length bonus.
type LengthStep struct {
	MinLength int   `json:"min_length" yaml:"min_length" validate:"gte=0"`
	Bonus     int64 `json:"bonus" yaml:"bonus" validate:"gte=0"`
}

// Ruleset is the immutable tuning injected into the engine at construction.
// Several rulesets may coexist (per tenant, per test).
type Ruleset struct {
	// Awards is the flat award table. review_created is scored by Review instead.
	Awards              map[ActionType]int64 `json:"awards" yaml:"awards" validate:"required,dive,gte=0"`
	Review              ReviewScoring        `json:"review" yaml:"review"`
	LevelThresholds     []int64              `json:"level_thresholds" yaml:"level_thresholds" validate:"required,min=1"`
	Badges              []BadgeCriteria      `json:"badges" yaml:"badges" validate:"dive"`
	LeaderboardMaxLimit int                  `json:"leaderboard_max_limit" yaml:"leaderboard_max_limit" validate:"gte=1"`
}

// DefaultRuleset returns the platform's stock tuning.
func DefaultRuleset() Ruleset {
	thresholds := make([]int64, len(DefaultLevelThresholds))
	copy(thresholds, DefaultLevelThresholds)
	return Ruleset{
		Awards: map[ActionType]int64{
			ActionReviewDeleted:    0,
			ActionReviewVoted:      0,
			ActionMovieRated:       10,
			ActionWatchlistAdded:   5,
			ActionFavoriteAdded:    5,
			ActionReplyPosted:      3,
			ActionWatchPartyJoined: 15,
			ActionLogin:            2,
			ActionReferralRedeemed: 100,
			ActionWelcomeBonus:     50,
		},
		Review: ReviewScoring{
			Base: 20,
			LengthSteps: []LengthStep{
				{MinLength: 100, Bonus: 5},
				{MinLength: 300, Bonus: 10},
				{MinLength: 600, Bonus: 15},
				{MinLength: 1000, Bonus: 20},
			},
			EarlyBirdStep:   3,
			EarlyBirdCutoff: 10,
			StreakFactor:    0.02,
			LevelFactor:     0.05,
			MaxMultiplier:   2.0,
		},
		LevelThresholds:     thresholds,
		Badges:              DefaultBadgeCriteria(),
		LeaderboardMaxLimit: 100,
	}
}
