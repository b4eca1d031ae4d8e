package core

import (
	"fmt"
	"math"
	"sort"
)

// ReviewInput carries what review scoring needs to know about one review.
// Rank is the 1-indexed position of the review among all reviews of the
// same media, by creation time.
type ReviewInput struct {
	Length int
	Rank   int
}

// ReviewBreakdown is the auditable split of a review award before the multiplier.
type ReviewBreakdown struct {
	Base           int64 `json:"base"`
	LengthBonus    int64 `json:"length_bonus"`
	EarlyBirdBonus int64 `json:"early_bird_bonus"`
}

// Sum adds every component.
func (b ReviewBreakdown) Sum() int64 { return b.Base + b.LengthBonus + b.EarlyBirdBonus }

// ReviewScore is the outcome of ComputeReviewPoints.
type ReviewScore struct {
	Breakdown  ReviewBreakdown `json:"breakdown"`
	Multiplier float64         `json:"multiplier"`
	Total      int64           `json:"total"`
}

// PointsCalculator converts activities into point awards.
type PointsCalculator struct {
	awards map[ActionType]int64
	review ReviewScoring
}

// NewPointsCalculator copies the award table and sorts the length steps.
func NewPointsCalculator(awards map[ActionType]int64, review ReviewScoring) PointsCalculator {
	table := make(map[ActionType]int64, len(awards))
	for k, v := range awards {
		table[k] = v
	}
	steps := make([]LengthStep, len(review.LengthSteps))
	copy(steps, review.LengthSteps)
	sort.Slice(steps, func(i, j int) bool { return steps[i].MinLength < steps[j].MinLength })
	review.LengthSteps = steps
	if review.MaxMultiplier < 1 {
		review.MaxMultiplier = 1
	}
	return PointsCalculator{awards: table, review: review}
}

// FlatAward looks up the fixed award for an action. Unknown actions award
// nothing and return ErrUnknownActionType, which callers treat as a warning.
func (c PointsCalculator) FlatAward(action ActionType) (int64, error) {
	if action == ActionReviewCreated {
		return c.review.Base, nil
	}
	pts, ok := c.awards[action]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownActionType, action)
	}
	return pts, nil
}

// LengthBonus is the step bonus for a review of the given length.
func (c PointsCalculator) LengthBonus(length int) int64 {
	if length < 0 {
		length = 0
	}
	var bonus int64
	for _, st := range c.review.LengthSteps {
		if length < st.MinLength {
			break
		}
		bonus = st.Bonus
	}
	return bonus
}

// EarlyBirdBonus is strictly decreasing in rank and zero past the cutoff.
// Ranks below 1 are treated as unknown and earn nothing.
func (c PointsCalculator) EarlyBirdBonus(rank int) int64 {
	if rank < 1 || rank > c.review.EarlyBirdCutoff {
		return 0
	}
	return c.review.EarlyBirdStep * int64(c.review.EarlyBirdCutoff-rank+1)
}

// Multiplier rewards sustained engagement, bounded by MaxMultiplier.
func (c PointsCalculator) Multiplier(streakCurrent, level int64) float64 {
	if streakCurrent < 0 {
		streakCurrent = 0
	}
	if level < 1 {
		level = 1
	}
	extra := float64(streakCurrent)*c.review.StreakFactor + float64(level-1)*c.review.LevelFactor
	if limit := c.review.MaxMultiplier - 1; extra > limit {
		extra = limit
	}
	if extra < 0 {
		extra = 0
	}
	return 1 + extra
}

// ComputeReviewPoints scores one review against the author's snapshot.
func (c PointsCalculator) ComputeReviewPoints(review ReviewInput, s Snapshot) ReviewScore {
	b := ReviewBreakdown{
		Base:           c.review.Base,
		LengthBonus:    c.LengthBonus(review.Length),
		EarlyBirdBonus: c.EarlyBirdBonus(review.Rank),
	}
	mult := c.Multiplier(s.Streak.Current, s.Level)
	// math.Round rounds half away from zero
	total := int64(math.Round(float64(b.Sum()) * mult))
	if total < 0 {
		total = 0
	}
	return ReviewScore{Breakdown: b, Multiplier: mult, Total: total}
}

// AddPoints awards amount to both the lifetime total and the spendable balance.
func (c PointsCalculator) AddPoints(s Snapshot, amount int64, reason string) (Delta, error) {
	if amount < 0 {
		return Delta{}, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	d := NoopDelta(s)
	total, err := AddSafe(s.PointsTotal, amount)
	if err != nil {
		return Delta{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	available, err := AddSafe(s.PointsAvailable, amount)
	if err != nil {
		return Delta{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	d.PointsDelta = amount
	d.NewTotal = total
	d.NewAvailable = available
	d.Reason = reason
	return d, nil
}

// SpendPoints deducts from the spendable balance only; the lifetime total is untouched.
func (c PointsCalculator) SpendPoints(s Snapshot, amount int64, reason string) (Delta, error) {
	if amount < 0 {
		return Delta{}, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	if s.PointsAvailable-amount < 0 {
		return Delta{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, s.PointsAvailable, amount)
	}
	d := NoopDelta(s)
	d.NewAvailable = s.PointsAvailable - amount
	d.PointsSpent = amount
	d.Reason = reason
	return d, nil
}
