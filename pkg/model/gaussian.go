package model

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gorgonia.org/gorgonia"
)

// maxLogStddev bounds the log standard deviation to
// [-maxLogStddev, maxLogStddev] through a tanh squash.
const maxLogStddev = 5.0

// Gaussian is a diagonal normal distribution with a learned mean and log
// standard deviation per action element.
type Gaussian struct {
	name      string
	spec      ActionSpec
	size      int
	mean      linear
	logStddev linear
}

func NewGaussian(g *gorgonia.ExprGraph, weights Weights, name string, spec ActionSpec, inputSize int) (*Gaussian, error) {
	d := &Gaussian{name: name, spec: spec, size: spec.Size()}

	var err error
	if d.mean, err = newLinear(g, weights, "action/"+name+"/mean", inputSize, d.size); err != nil {
		return nil, err
	}
	if d.logStddev, err = newLinear(g, weights, "action/"+name+"/log-stddev", inputSize, d.size); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Gaussian) Name() string     { return d.name }
func (d *Gaussian) Spec() ActionSpec { return d.spec }
func (d *Gaussian) EncodedSize() int { return d.size }

func (d *Gaussian) Learnables() gorgonia.Nodes {
	return append(d.mean.learnables(), d.logStddev.learnables()...)
}

func (d *Gaussian) Parameterize(embedding *gorgonia.Node) (DistributionParams, error) {
	mean, err := d.mean.apply(embedding)
	if err != nil {
		return nil, err
	}

	raw, err := d.logStddev.apply(embedding)
	if err != nil {
		return nil, err
	}
	squashed, err := gorgonia.Tanh(raw)
	if err != nil {
		return nil, fmt.Errorf("tanh error: %w", err)
	}
	logStddev, err := gorgonia.Mul(gorgonia.NewConstant(maxLogStddev), squashed)
	if err != nil {
		return nil, fmt.Errorf("scale log stddev: %w", err)
	}
	stddev, err := gorgonia.Exp(logStddev)
	if err != nil {
		return nil, fmt.Errorf("exp error: %w", err)
	}

	return DistributionParams{
		"mean":       mean,
		"log_stddev": logStddev,
		"stddev":     stddev,
	}, nil
}

func (d *Gaussian) LogProbability(params DistributionParams, action *gorgonia.Node) (*gorgonia.Node, error) {
	mean, err := param(params, d.name, "mean")
	if err != nil {
		return nil, err
	}
	logStddev, err := param(params, d.name, "log_stddev")
	if err != nil {
		return nil, err
	}
	stddev, err := param(params, d.name, "stddev")
	if err != nil {
		return nil, err
	}
	batch, err := checkAction(action, d.name, d.size)
	if err != nil {
		return nil, err
	}
	if mean.Shape()[0] != batch {
		return nil, fmt.Errorf("%w: %s has %d means for %d actions", ErrShapeMismatch, d.name, mean.Shape()[0], batch)
	}

	diff, err := gorgonia.Sub(action, mean)
	if err != nil {
		return nil, fmt.Errorf("sub error: %w", err)
	}
	z, err := gorgonia.HadamardDiv(diff, stddev)
	if err != nil {
		return nil, fmt.Errorf("div error: %w", err)
	}
	sq, err := gorgonia.Square(z)
	if err != nil {
		return nil, fmt.Errorf("square error: %w", err)
	}
	half, err := gorgonia.Mul(gorgonia.NewConstant(-0.5), sq)
	if err != nil {
		return nil, fmt.Errorf("mul error: %w", err)
	}
	scaled, err := gorgonia.Sub(half, logStddev)
	if err != nil {
		return nil, fmt.Errorf("sub error: %w", err)
	}
	return gorgonia.Sub(scaled, gorgonia.NewConstant(0.5*math.Log(2*math.Pi)))
}

func (d *Gaussian) EncodeAction(action []float64) ([]float64, error) {
	if len(action) != d.size {
		return nil, fmt.Errorf("%w: %s expects %d values, got %d", ErrInvalidAction, d.name, d.size, len(action))
	}
	return action, nil
}

func (d *Gaussian) Sample(values DistributionValues, batch int, deterministic bool, rng *rand.Rand) ([][]float64, error) {
	mean, err := checkValues(values, d.name, "mean", batch*d.size)
	if err != nil {
		return nil, err
	}
	stddev, err := checkValues(values, d.name, "stddev", batch*d.size)
	if err != nil {
		return nil, err
	}

	out := make([][]float64, batch)
	for i := range batch {
		row := make([]float64, d.size)
		for j := range d.size {
			k := i*d.size + j
			row[j] = mean[k]
			if !deterministic {
				row[j] += stddev[k] * rng.NormFloat64()
			}
		}
		out[i] = row
	}
	return out, nil
}
