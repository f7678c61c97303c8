package stats_test

import (
	"errors"
	"math"
	"testing"

	"github.com/mindlog-lab/mindlog/internal/stats"
)

func TestWilsonInterval_50PercentConversion(t *testing.T) {
	// 50 successes out of 100 trials
	lower, upper, err := stats.WilsonInterval(50, 100, 0.95)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Expected: approximately [0.40, 0.60] with some tolerance
	if lower < 0.38 || lower > 0.42 {
		t.Errorf("lower bound %f not in expected range [0.38, 0.42]", lower)
	}
	if upper < 0.58 || upper > 0.62 {
		t.Errorf("upper bound %f not in expected range [0.58, 0.62]", upper)
	}
}

func TestWilsonInterval_LowConversion(t *testing.T) {
	// 5% conversion
	lower, upper, _ := stats.WilsonInterval(5, 100, 0.95)

	if lower < 0.01 || lower > 0.03 {
		t.Errorf("lower bound %f not in expected range [0.01, 0.03]", lower)
	}
	if upper < 0.09 || upper > 0.13 {
		t.Errorf("upper bound %f not in expected range [0.09, 0.13]", upper)
	}
}

func TestWilsonInterval_HighConversion(t *testing.T) {
	lower, upper, _ := stats.WilsonInterval(95, 100, 0.95)

	if lower < 0.87 || lower > 0.91 {
		t.Errorf("lower bound %f not in expected range [0.87, 0.91]", lower)
	}
	if upper < 0.97 || upper > 0.99 {
		t.Errorf("upper bound %f not in expected range [0.97, 0.99]", upper)
	}
}

func TestWilsonInterval_ZeroTrials(t *testing.T) {
	_, _, err := stats.WilsonInterval(0, 0, 0.95)
	if !errors.Is(err, stats.ErrNoTrials) {
		t.Errorf("expected ErrNoTrials, got %v", err)
	}

	ci := stats.Wilson(0, 0, 0.95)
	if ci.IsDefined() {
		t.Errorf("expected undefined interval for zero trials, got %s", ci.Percent(1))
	}
}

func TestWilsonInterval_SuccessesOutOfRange(t *testing.T) {
	if _, _, err := stats.WilsonInterval(11, 10, 0.95); err == nil {
		t.Error("expected error when successes exceed trials")
	}
}

func TestWilsonInterval_ZeroSuccesses(t *testing.T) {
	lower, upper, _ := stats.WilsonInterval(0, 100, 0.95)

	if lower != 0 {
		t.Errorf("expected lower bound 0, got %f", lower)
	}
	if upper < 0.01 || upper > 0.05 {
		t.Errorf("upper bound %f not in expected range [0.01, 0.05]", upper)
	}
}

func TestWilsonInterval_AllSuccesses(t *testing.T) {
	lower, upper, _ := stats.WilsonInterval(100, 100, 0.95)

	if lower < 0.95 || lower > 0.99 {
		t.Errorf("lower bound %f not in expected range [0.95, 0.99]", lower)
	}
	if upper != 1.0 {
		t.Errorf("expected upper bound 1, got %f", upper)
	}
}

func TestWilsonInterval_SmallSample(t *testing.T) {
	lower, upper, _ := stats.WilsonInterval(5, 10, 0.95)

	if width := upper - lower; width < 0.3 {
		t.Errorf("interval width %f too narrow for small sample", width)
	}
}

func TestWilsonInterval_BoundsContainRate(t *testing.T) {
	for _, confidence := range []float64{0.80, 0.90, 0.95, 0.99, 0.975} {
		for n := 1; n <= 60; n++ {
			for k := 0; k <= n; k++ {
				lower, upper, err := stats.WilsonInterval(k, n, confidence)
				if err != nil {
					t.Fatalf("WilsonInterval(%d, %d): %v", k, n, err)
				}
				p := float64(k) / float64(n)
				if !(0 <= lower && lower <= p && p <= upper && upper <= 1) {
					t.Fatalf("WilsonInterval(%d, %d, %v) = [%f, %f], rate %f outside", k, n, confidence, lower, upper, p)
				}
			}
		}
	}
}

func TestZScore(t *testing.T) {
	tests := []struct {
		confidence float64
		expected   float64
		tolerance  float64
	}{
		{0.80, 1.2816, 0.01},
		{0.90, 1.645, 0.01},
		{0.95, 1.96, 0.01},
		{0.975, 2.2414, 0.001},
		{0.99, 2.576, 0.01},
	}

	for _, tt := range tests {
		z := stats.ZScore(tt.confidence)
		if math.Abs(z-tt.expected) > tt.tolerance {
			t.Errorf("ZScore(%f) = %f, want %f (tolerance %f)", tt.confidence, z, tt.expected, tt.tolerance)
		}
	}
}
