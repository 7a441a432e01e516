package env

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/grexie/reinforce/pkg/model"
)

const (
	gravity        = 9.81
	massCart       = 1.0
	massPole       = 0.1
	length         = 0.5
	totalMass      = massCart + massPole
	poleMassLength = massPole * length
	forceMax       = 10.0
	tau            = 0.02

	xThreshold     = 2.4
	thetaThreshold = 12.0 * math.Pi / 180.0
)

// CartPole balances a pole on a cart pushed left (0) or right (1). Every step
// the pole stays up pays 1; the step that drops it pays 0.
type CartPole struct {
	X        float64
	XDot     float64
	Theta    float64
	ThetaDot float64

	MaxSteps int
	steps    int
	rng      *rand.Rand
	closed   bool
}

func NewCartPole(seed uint64, maxSteps int) *CartPole {
	return &CartPole{
		MaxSteps: maxSteps,
		rng:      rand.New(rand.NewPCG(seed, seed+1)),
	}
}

func (c *CartPole) observation() []float64 {
	return []float64{c.X, c.XDot, c.Theta, c.ThetaDot}
}

func (c *CartPole) ObservationSize() int {
	return 4
}

func (c *CartPole) Actions() map[string]model.ActionSpec {
	return map[string]model.ActionSpec{
		ActionName: {Type: model.DistributionCategorical, NumActions: 2},
	}
}

func (c *CartPole) Reset(ctx context.Context) ([]float64, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.X = c.rng.Float64()*0.1 - 0.05
	c.XDot = c.rng.Float64()*0.1 - 0.05
	c.Theta = c.rng.Float64()*0.1 - 0.05
	c.ThetaDot = c.rng.Float64()*0.1 - 0.05
	c.steps = 0

	return c.observation(), nil
}

func (c *CartPole) Step(ctx context.Context, actions map[string][]float64) ([]float64, float64, bool, error) {
	if c.closed {
		return nil, 0, false, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, false, err
	}

	a, ok := actions[ActionName]
	if !ok || len(a) != 1 {
		return nil, 0, false, fmt.Errorf("%w: %s", ErrMissingAction, ActionName)
	}

	force := forceMax
	switch a[0] {
	case 0:
		force = -forceMax
	case 1:
	default:
		return nil, 0, false, fmt.Errorf("invalid cart-pole action %v", a[0])
	}

	cosTheta := math.Cos(c.Theta)
	sinTheta := math.Sin(c.Theta)

	temp := (force + poleMassLength*c.ThetaDot*c.ThetaDot*sinTheta) / totalMass
	thetaAcc := (gravity*sinTheta - cosTheta*temp) / (length * (4.0/3.0 - massPole*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMassLength*thetaAcc*cosTheta/totalMass

	c.X += tau * c.XDot
	c.XDot += tau * xAcc
	c.Theta += tau * c.ThetaDot
	c.ThetaDot += tau * thetaAcc
	c.steps++

	failed := c.X < -xThreshold || c.X > xThreshold || c.Theta < -thetaThreshold || c.Theta > thetaThreshold
	done := failed || (c.MaxSteps > 0 && c.steps >= c.MaxSteps)

	reward := 1.0
	if failed {
		reward = 0
	}
	return c.observation(), reward, done, nil
}

func (c *CartPole) Close() error {
	c.closed = true
	return nil
}
