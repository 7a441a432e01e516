package model

import "math"

// Optimizer
func BoundLearnRate(v float64) float64 {
	return math.Max(1e-6, math.Min(1e-1, v)) // Default: 0.001
}

func BoundL2Penalty(v float64) float64 {
	return math.Max(0, math.Min(0.1, v))
}

func BoundDropoutRate(v float64) float64 {
	return math.Max(0, math.Min(0.5, v))
}

func BoundClip(v float64) float64 {
	return math.Max(0.01, math.Min(100, v))
}

// Rewards
func BoundDiscount(v float64) float64 {
	return math.Max(0, math.Min(1, v)) // Default: 0.99
}

// Network
func BoundHiddenSize(v int) int {
	return int(math.Max(1, math.Min(1024, float64(v)))) // Default: 32
}

func BoundHiddenSizeLog2Float64(v float64) float64 {
	return math.Max(0, math.Min(10, v))
}

func BoundHiddenLayers(v int) int {
	return int(math.Max(0, math.Min(8, float64(v)))) // Default: 2
}

// Training loop
func BoundBatchEpisodes(v int) int {
	return int(math.Max(1, math.Min(1024, float64(v)))) // Default: 8
}

func BoundIterations(v int) int {
	return int(math.Max(1, math.Min(1_000_000, float64(v))))
}

func BoundMaxSteps(v int) int {
	return int(math.Max(1, math.Min(100_000, float64(v)))) // Default: 500
}
