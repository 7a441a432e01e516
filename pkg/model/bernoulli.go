package model

import (
	"fmt"
	"math/rand/v2"

	"gorgonia.org/gorgonia"
)

// Bernoulli models independent boolean actions encoded as 0 or 1.
type Bernoulli struct {
	name   string
	spec   ActionSpec
	size   int
	logits linear
}

func NewBernoulli(g *gorgonia.ExprGraph, weights Weights, name string, spec ActionSpec, inputSize int) (*Bernoulli, error) {
	d := &Bernoulli{name: name, spec: spec, size: spec.Size()}
	l, err := newLinear(g, weights, "action/"+name+"/logit", inputSize, d.size)
	if err != nil {
		return nil, err
	}
	d.logits = l
	return d, nil
}

func (d *Bernoulli) Name() string     { return d.name }
func (d *Bernoulli) Spec() ActionSpec { return d.spec }
func (d *Bernoulli) EncodedSize() int { return d.size }

func (d *Bernoulli) Learnables() gorgonia.Nodes {
	return d.logits.learnables()
}

func (d *Bernoulli) Parameterize(embedding *gorgonia.Node) (DistributionParams, error) {
	logits, err := d.logits.apply(embedding)
	if err != nil {
		return nil, err
	}
	p, err := gorgonia.Sigmoid(logits)
	if err != nil {
		return nil, fmt.Errorf("sigmoid error: %w", err)
	}
	return DistributionParams{"probability": p}, nil
}

func (d *Bernoulli) LogProbability(params DistributionParams, action *gorgonia.Node) (*gorgonia.Node, error) {
	p, err := param(params, d.name, "probability")
	if err != nil {
		return nil, err
	}
	batch, err := checkAction(action, d.name, d.size)
	if err != nil {
		return nil, err
	}
	if p.Shape()[0] != batch {
		return nil, fmt.Errorf("%w: %s has %d probabilities for %d actions", ErrShapeMismatch, d.name, p.Shape()[0], batch)
	}

	one := gorgonia.NewConstant(1.0)

	safeP, err := gorgonia.Add(p, gorgonia.NewConstant(eps))
	if err != nil {
		return nil, fmt.Errorf("failed to add epsilon: %w", err)
	}
	logP, err := gorgonia.Log(safeP)
	if err != nil {
		return nil, fmt.Errorf("failed to compute log: %w", err)
	}

	q, err := gorgonia.Sub(one, p)
	if err != nil {
		return nil, fmt.Errorf("sub error: %w", err)
	}
	safeQ, err := gorgonia.Add(q, gorgonia.NewConstant(eps))
	if err != nil {
		return nil, fmt.Errorf("failed to add epsilon: %w", err)
	}
	logQ, err := gorgonia.Log(safeQ)
	if err != nil {
		return nil, fmt.Errorf("failed to compute log: %w", err)
	}

	notAction, err := gorgonia.Sub(one, action)
	if err != nil {
		return nil, fmt.Errorf("sub error: %w", err)
	}

	taken, err := gorgonia.HadamardProd(action, logP)
	if err != nil {
		return nil, fmt.Errorf("failed to compute hadamard product: %w", err)
	}
	notTaken, err := gorgonia.HadamardProd(notAction, logQ)
	if err != nil {
		return nil, fmt.Errorf("failed to compute hadamard product: %w", err)
	}

	return gorgonia.Add(taken, notTaken)
}

func (d *Bernoulli) EncodeAction(action []float64) ([]float64, error) {
	if len(action) != d.size {
		return nil, fmt.Errorf("%w: %s expects %d values, got %d", ErrInvalidAction, d.name, d.size, len(action))
	}
	for _, a := range action {
		if a != 0 && a != 1 {
			return nil, fmt.Errorf("%w: %s value %v is not 0 or 1", ErrInvalidAction, d.name, a)
		}
	}
	return action, nil
}

func (d *Bernoulli) Sample(values DistributionValues, batch int, deterministic bool, rng *rand.Rand) ([][]float64, error) {
	p, err := checkValues(values, d.name, "probability", batch*d.size)
	if err != nil {
		return nil, err
	}

	out := make([][]float64, batch)
	for i := range batch {
		row := make([]float64, d.size)
		for j := range d.size {
			threshold := 0.5
			if !deterministic {
				threshold = rng.Float64()
			}
			row[j] = boolToFloat(p[i*d.size+j] > threshold)
		}
		out[i] = row
	}
	return out, nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}
