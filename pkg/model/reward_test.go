package model

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/stat"
)

func TestDiscountedReturns(t *testing.T) {
	rewards := []float64{1, 1, 1, 2, 2}
	terminal := []bool{false, false, true, false, true}

	got := DiscountedReturns(rewards, terminal, 0.5)
	want := []float64{1.75, 1.5, 1, 3, 2}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("returns[%d] = %f, want %f", i, got[i], want[i])
		}
	}

	undiscounted := DiscountedReturns(rewards, terminal, 0)
	for i := range rewards {
		if undiscounted[i] != rewards[i] {
			t.Fatalf("zero discount changed reward %d: %f", i, undiscounted[i])
		}
	}
}

func TestNormalizeRewards(t *testing.T) {
	got := NormalizeRewards([]float64{1, 2, 3, 4, 10})
	mean, std := stat.MeanStdDev(got, nil)
	if math.Abs(mean) > 1e-9 {
		t.Fatalf("expected zero mean, got %f", mean)
	}
	if math.Abs(std-1) > 1e-6 {
		t.Fatalf("expected unit deviation, got %f", std)
	}

	constant := NormalizeRewards([]float64{3, 3, 3})
	for i, v := range constant {
		if v != 0 {
			t.Fatalf("constant input[%d] = %f, want 0", i, v)
		}
	}

	if single := NormalizeRewards([]float64{5}); single[0] != 0 {
		t.Fatalf("single reward should centre to 0, got %f", single[0])
	}
	if empty := NormalizeRewards(nil); len(empty) != 0 {
		t.Fatalf("expected no values, got %v", empty)
	}
}
