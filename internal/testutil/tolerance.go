package testutil

import (
	"fmt"
	"math"
	"testing"
)

// RequireSliceNearlyEqual fails tb when got and want differ in length or any
// pair of samples is further apart than eps.
func RequireSliceNearlyEqual(tb testing.TB, got, want []float64, eps float64) {
	tb.Helper()

	diff, err := MaxAbsDiff(got, want)
	if err != nil {
		tb.Fatal(err)
	}

	if diff <= eps {
		return
	}

	for i := range got {
		if d := math.Abs(got[i] - want[i]); d > eps {
			tb.Fatalf("sample %d = %v, want %v (diff %v > %v)", i, got[i], want[i], d, eps)
		}
	}
}

// RequireFinite fails tb at the first NaN or Inf sample.
func RequireFinite(tb testing.TB, data []float64) {
	tb.Helper()

	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			tb.Fatalf("sample %d is not finite: %v", i, v)
		}
	}
}

// RequireBounded fails tb at the first sample whose magnitude exceeds limit.
func RequireBounded(tb testing.TB, data []float64, limit float64) {
	tb.Helper()

	for i, v := range data {
		if math.Abs(v) > limit {
			tb.Fatalf("sample %d = %v, outside ±%v", i, v, limit)
		}
	}
}

// MaxAbsDiff returns the largest absolute difference between a and b.
// NaN on either side counts as an infinite difference.
func MaxAbsDiff(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("length mismatch: %d vs %d", len(a), len(b))
	}

	worst := 0.0

	for i := range a {
		d := math.Abs(a[i] - b[i])
		if math.IsNaN(d) {
			return math.Inf(1), nil
		}

		worst = max(worst, d)
	}

	return worst, nil
}
