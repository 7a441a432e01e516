package model

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// DiscountedReturns accumulates rewards backwards, restarting after every
// terminal transition.
func DiscountedReturns(rewards []float64, terminal []bool, discount float64) []float64 {
	out := make([]float64, len(rewards))
	running := 0.0
	for i := len(rewards) - 1; i >= 0; i-- {
		if i < len(terminal) && terminal[i] {
			running = 0
		}
		running = rewards[i] + discount*running
		out[i] = running
	}
	return out
}

// NormalizeRewards rescales values to zero mean and unit variance. A constant
// input is only centred.
func NormalizeRewards(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	mean, std := stat.MeanStdDev(values, nil)
	if len(values) < 2 || math.IsNaN(std) || std == 0 {
		for i, v := range values {
			out[i] = v - mean
		}
		return out
	}
	for i, v := range values {
		out[i] = (v - mean) / (std + eps)
	}
	return out
}
