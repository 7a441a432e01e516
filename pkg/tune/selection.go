package tune

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"
)

// selection expects population sorted by descending fitness. The top
// eliteCount always survive, the rest of the retained share survives outright
// and everything below it gets a fitness weighted draw.
func selection(rng *rand.Rand, population []Candidate, retainRate float64, eliteCount int) []Candidate {
	fitnesses := finiteFitnesses(population)
	if len(fitnesses) > 1 && stat.StdDev(fitnesses, nil) > 0.05 {
		retainRate *= 0.9
	} else {
		retainRate *= 1.1
	}

	eliteCount = max(1, min(eliteCount, len(population)))
	n := max(eliteCount, min(len(population), int(float64(len(population))*retainRate)))

	out := append([]Candidate{}, population[:n]...)

	rest := population[n:]
	if len(rest) == 0 {
		return out
	}
	best := math.Inf(-1)
	for _, c := range rest {
		best = math.Max(best, c.Fitness)
	}
	if math.IsInf(best, -1) {
		return out
	}
	weights := make([]float64, len(rest))
	total := 0.0
	for i, c := range rest {
		weights[i] = math.Exp(c.Fitness - best)
		total += weights[i]
	}
	for i, c := range rest {
		if rng.Float64() < weights[i]/total {
			out = append(out, c)
		}
	}
	return out
}

func finiteFitnesses(population []Candidate) []float64 {
	out := make([]float64, 0, len(population))
	for _, c := range population {
		if c.Err == nil && !math.IsInf(c.Fitness, 0) && !math.IsNaN(c.Fitness) {
			out = append(out, c.Fitness)
		}
	}
	return out
}
