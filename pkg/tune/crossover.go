package tune

import "math/rand/v2"

func crossover(rng *rand.Rand, parent1, parent2 Candidate) Candidate {
	selectValue := func(a, b float64) float64 {
		r := rng.Float64()
		if r < 0.4 {
			return a
		} else if r < 0.8 {
			return b
		}
		return (a + b) / 2
	}

	return Candidate{
		LearnRate:      selectValue(parent1.LearnRate, parent2.LearnRate),
		L2Penalty:      selectValue(parent1.L2Penalty, parent2.L2Penalty),
		DropoutRate:    selectValue(parent1.DropoutRate, parent2.DropoutRate),
		Discount:       selectValue(parent1.Discount, parent2.Discount),
		HiddenSizeLog2: selectValue(parent1.HiddenSizeLog2, parent2.HiddenSizeLog2),
	}
}

func mutate(rng *rand.Rand, c *Candidate, mutationRate float64) {
	if rng.Float64() < mutationRate {
		randomize(c, rng, 5)
	}
}
