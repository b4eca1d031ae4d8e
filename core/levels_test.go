package core

import "testing"

func TestLevelFromPoints(t *testing.T) {
	c := DefaultLevelCurve()
	cases := []struct {
		points int64
		level  int64
		min    int64
		next   int64
	}{
		{-5, 1, 0, 100},
		{0, 1, 0, 100},
		{99, 1, 0, 100},
		{100, 2, 100, 250},
		{249, 2, 100, 250},
		{5000, 10, 5000, 6500},
	}
	for _, tc := range cases {
		got := c.LevelFromPoints(tc.points)
		if got.Level != tc.level || got.MinPoints != tc.min || got.NextLevelAt != tc.next {
			t.Fatalf("points %d: got %+v", tc.points, got)
		}
	}
}

func TestLevelFromPointsTop(t *testing.T) {
	c := DefaultLevelCurve()
	got := c.LevelFromPoints(1 << 40)
	if !got.MaxLevel || got.Level != c.MaxLevel() || got.NextLevelAt != -1 {
		t.Fatalf("got %+v", got)
	}
}

func TestLevelFromPointsMonotonic(t *testing.T) {
	c := DefaultLevelCurve()
	prev := c.LevelFromPoints(0)
	for p := int64(1); p <= 50000; p += 7 {
		cur := c.LevelFromPoints(p)
		if cur.Level < prev.Level {
			t.Fatalf("level dropped at %d: %d -> %d", p, prev.Level, cur.Level)
		}
		if again := c.LevelFromPoints(p); again != cur {
			t.Fatalf("not referentially transparent at %d", p)
		}
		prev = cur
	}
}

func TestNewLevelCurveValidation(t *testing.T) {
	if _, err := NewLevelCurve(nil); err == nil {
		t.Fatal("expected error for empty thresholds")
	}
	if _, err := NewLevelCurve([]int64{10, 20}); err == nil {
		t.Fatal("expected error when first threshold is not 0")
	}
	if _, err := NewLevelCurve([]int64{0, 50, 50}); err == nil {
		t.Fatal("expected error for non-increasing thresholds")
	}
	thresholds := []int64{0, 10, 30}
	c, err := NewLevelCurve(thresholds)
	if err != nil {
		t.Fatal(err)
	}
	thresholds[1] = 1000
	if c.LevelFromPoints(10).Level != 2 {
		t.Fatal("curve must not alias caller slice")
	}
}
