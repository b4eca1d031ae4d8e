package core

import (
	"errors"
	"fmt"
	"sort"
)

// DefaultLevelThresholds is a tiered curve: each entry is the minimum
// cumulative points for level index+1.
var DefaultLevelThresholds = []int64{
	0, 100, 250, 500, 900, 1400, 2000, 2800, 3800, 5000,
	6500, 8500, 11000, 14000, 17500, 21500, 26000, 31000, 37000, 44000,
}

// LevelInfo describes where a points total sits on the curve.
// NextLevelAt is -1 at the top level.
type LevelInfo struct {
	Level       int64 `json:"level"`
	MinPoints   int64 `json:"min_points"`
	NextLevelAt int64 `json:"next_level_at"`
	MaxLevel    bool  `json:"max_level,omitempty"`
}

// LevelCurve maps cumulative points to a level. It holds no mutable state.
type LevelCurve struct {
	thresholds []int64
}

// NewLevelCurve validates thresholds (first is 0, strictly increasing) and
// returns a curve owning a private copy of them.
func NewLevelCurve(thresholds []int64) (LevelCurve, error) {
	if len(thresholds) == 0 {
		return LevelCurve{}, errors.New("level curve needs at least one threshold")
	}
	if thresholds[0] != 0 {
		return LevelCurve{}, fmt.Errorf("first level threshold must be 0, got %d", thresholds[0])
	}
	for i := 1; i < len(thresholds); i++ {
		if thresholds[i] <= thresholds[i-1] {
			return LevelCurve{}, fmt.Errorf("level thresholds must be strictly increasing at index %d", i)
		}
	}
	cp := make([]int64, len(thresholds))
	copy(cp, thresholds)
	return LevelCurve{thresholds: cp}, nil
}

// DefaultLevelCurve returns the curve built from DefaultLevelThresholds.
func DefaultLevelCurve() LevelCurve {
	c, err := NewLevelCurve(DefaultLevelThresholds)
	if err != nil {
		panic(err)
	}
	return c
}

// MaxLevel is the highest reachable level.
func (c LevelCurve) MaxLevel() int64 { return int64(len(c.thresholds)) }

// Thresholds returns a copy of the configured thresholds.
func (c LevelCurve) Thresholds() []int64 {
	cp := make([]int64, len(c.thresholds))
	copy(cp, c.thresholds)
	return cp
}

// LevelFromPoints locates total on the curve. Negative totals sit on level 1.
func (c LevelCurve) LevelFromPoints(total int64) LevelInfo {
	if len(c.thresholds) == 0 {
		return LevelInfo{Level: 1, NextLevelAt: -1, MaxLevel: true}
	}
	if total < 0 {
		total = 0
	}
	// first threshold strictly greater than total
	idx := sort.Search(len(c.thresholds), func(i int) bool { return c.thresholds[i] > total })
	info := LevelInfo{Level: int64(idx), MinPoints: c.thresholds[idx-1], NextLevelAt: -1}
	if idx < len(c.thresholds) {
		info.NextLevelAt = c.thresholds[idx]
	} else {
		info.MaxLevel = true
	}
	return info
}
