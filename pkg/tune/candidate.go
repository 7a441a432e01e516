package tune

import (
	"math"
	"math/rand/v2"

	"github.com/grexie/reinforce/pkg/model"
)

// Candidate is one point in hyperparameter space. Values are kept as floats
// so crossover can average them.
type Candidate struct {
	LearnRate      float64
	L2Penalty      float64
	DropoutRate    float64
	Discount       float64
	HiddenSizeLog2 float64

	Fitness float64
	Err     error
}

func randPercent(rng *rand.Rand, dev float64) float64 {
	return 1 + (rng.Float64()*(2*dev)-dev)/100
}

func newCandidate(base model.Params) Candidate {
	return Candidate{
		LearnRate:      model.BoundLearnRate(base.LearnRate),
		L2Penalty:      model.BoundL2Penalty(base.L2Penalty),
		DropoutRate:    model.BoundDropoutRate(base.DropoutRate),
		Discount:       model.BoundDiscount(base.Discount),
		HiddenSizeLog2: model.BoundHiddenSizeLog2Float64(math.Log2(float64(base.HiddenSize))),
	}
}

// randomize scales every value by up to percent in either direction. Zero
// penalties get a small offset so they can move at all.
func randomize(c *Candidate, rng *rand.Rand, percent float64) {
	c.LearnRate = model.BoundLearnRate(c.LearnRate * randPercent(rng, percent))
	c.L2Penalty = model.BoundL2Penalty(math.Max(c.L2Penalty, 1e-5) * randPercent(rng, percent))
	c.DropoutRate = model.BoundDropoutRate(math.Max(c.DropoutRate, 1e-3) * randPercent(rng, percent))
	c.Discount = model.BoundDiscount(c.Discount * randPercent(rng, percent/10))
	c.HiddenSizeLog2 = model.BoundHiddenSizeLog2Float64(c.HiddenSizeLog2 * randPercent(rng, percent))
}

// Params overlays the candidate on base.
func (c Candidate) Params(base model.Params) model.Params {
	p := base
	p.LearnRate = c.LearnRate
	p.L2Penalty = c.L2Penalty
	p.DropoutRate = c.DropoutRate
	p.Discount = c.Discount
	p.HiddenSize = model.BoundHiddenSize(int(math.Pow(2, math.Round(c.HiddenSizeLog2))))
	return p
}
