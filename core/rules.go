package core

// DerivedEvents lists the domain events a committed delta implies, in a
// stable order: points, spend, streak, level, badges.
func DerivedEvents(d Delta) []Event {
	var out []Event
	if d.PointsDelta > 0 {
		out = append(out, NewPointsAdded(d.UserID, d.Action, d.PointsDelta, d.NewTotal, d.At))
	}
	if d.PointsSpent > 0 {
		out = append(out, NewPointsSpent(d.UserID, d.PointsSpent, d.NewAvailable, d.At))
	}
	if d.StreakTransition.NewDay() {
		out = append(out, NewStreakUpdated(d.UserID, d.NewStreak, d.StreakTransition, d.At))
	}
	if d.LeveledUp {
		out = append(out, NewLevelUp(d.UserID, d.NewLevel, d.At))
	}
	for _, b := range d.NewBadges {
		out = append(out, NewBadgeAwarded(d.UserID, b))
	}
	return out
}
