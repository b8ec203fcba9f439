package testutil

import (
	"math"
	"testing"
)

func TestMaxAbsDiff(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 0},
		{"one sample off", []float64{1, 2, 3}, []float64{1, 2.5, 3}, 0.5},
		{"sign", []float64{-1, 1}, []float64{1, 1}, 2},
		{"nan", []float64{math.NaN()}, []float64{0}, math.Inf(1)},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MaxAbsDiff(tt.a, tt.b)
			if err != nil {
				t.Fatalf("MaxAbsDiff: %v", err)
			}

			if got != tt.want {
				t.Fatalf("MaxAbsDiff = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMaxAbsDiffLengthMismatch(t *testing.T) {
	if _, err := MaxAbsDiff([]float64{1}, []float64{1, 2}); err == nil {
		t.Fatal("MaxAbsDiff accepted slices of different length")
	}
}

func TestRequireHelpersPass(t *testing.T) {
	data := []float64{0.5, -1, 0}

	RequireSliceNearlyEqual(t, data, []float64{0.5, -1, 1e-10}, 1e-9)
	RequireFinite(t, data)
	RequireBounded(t, data, 1)
}
