package model

import (
	"fmt"
	"math/rand/v2"

	"gorgonia.org/gorgonia"
)

// Categorical is a softmax over NumActions outcomes for every element of the
// action shape. Actions are fed one-hot encoded.
type Categorical struct {
	name       string
	spec       ActionSpec
	size       int
	numActions int
	logits     linear
}

func NewCategorical(g *gorgonia.ExprGraph, weights Weights, name string, spec ActionSpec, inputSize int) (*Categorical, error) {
	if spec.NumActions < 2 {
		return nil, fmt.Errorf("categorical action %s needs at least 2 outcomes, got %d", name, spec.NumActions)
	}
	c := &Categorical{
		name:       name,
		spec:       spec,
		size:       spec.Size(),
		numActions: spec.NumActions,
	}
	l, err := newLinear(g, weights, "action/"+name+"/logits", inputSize, c.size*c.numActions)
	if err != nil {
		return nil, err
	}
	c.logits = l
	return c, nil
}

func (c *Categorical) Name() string     { return c.name }
func (c *Categorical) Spec() ActionSpec { return c.spec }
func (c *Categorical) EncodedSize() int { return c.size * c.numActions }

func (c *Categorical) Learnables() gorgonia.Nodes {
	return c.logits.learnables()
}

func (c *Categorical) Parameterize(embedding *gorgonia.Node) (DistributionParams, error) {
	logits, err := c.logits.apply(embedding)
	if err != nil {
		return nil, err
	}
	batch := logits.Shape()[0]

	rows, err := reshape(logits, batch*c.size, c.numActions)
	if err != nil {
		return nil, fmt.Errorf("reshape logits: %w", err)
	}

	probs, err := gorgonia.SoftMax(rows)
	if err != nil {
		return nil, fmt.Errorf("softmax: %w", err)
	}

	return DistributionParams{"probabilities": probs}, nil
}

func (c *Categorical) LogProbability(params DistributionParams, action *gorgonia.Node) (*gorgonia.Node, error) {
	probs, err := param(params, c.name, "probabilities")
	if err != nil {
		return nil, err
	}
	batch, err := checkAction(action, c.name, c.EncodedSize())
	if err != nil {
		return nil, err
	}
	if probs.Shape()[0] != batch*c.size {
		return nil, fmt.Errorf("%w: %s has %d probability rows for %d actions", ErrShapeMismatch, c.name, probs.Shape()[0], batch*c.size)
	}

	safeProbs, err := gorgonia.Add(probs, gorgonia.NewConstant(eps))
	if err != nil {
		return nil, fmt.Errorf("failed to add epsilon: %w", err)
	}

	logProbs, err := gorgonia.Log(safeProbs)
	if err != nil {
		return nil, fmt.Errorf("failed to compute log: %w", err)
	}

	oneHot, err := reshape(action, batch*c.size, c.numActions)
	if err != nil {
		return nil, fmt.Errorf("reshape action: %w", err)
	}

	taken, err := gorgonia.HadamardProd(oneHot, logProbs)
	if err != nil {
		return nil, fmt.Errorf("failed to compute hadamard product: %w", err)
	}

	summed, err := gorgonia.Sum(taken, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to compute sum: %w", err)
	}
	if c.size == 1 {
		return summed, nil
	}

	return reshape(summed, batch, c.size)
}

func (c *Categorical) EncodeAction(action []float64) ([]float64, error) {
	if len(action) != c.size {
		return nil, fmt.Errorf("%w: %s expects %d values, got %d", ErrInvalidAction, c.name, c.size, len(action))
	}
	out := make([]float64, c.size*c.numActions)
	for i, a := range action {
		index := int(a)
		if index < 0 || index >= c.numActions || float64(index) != a {
			return nil, fmt.Errorf("%w: %s outcome %v not in [0, %d)", ErrInvalidAction, c.name, a, c.numActions)
		}
		out[i*c.numActions+index] = 1.0
	}
	return out, nil
}

func (c *Categorical) Sample(values DistributionValues, batch int, deterministic bool, rng *rand.Rand) ([][]float64, error) {
	probs, err := checkValues(values, c.name, "probabilities", batch*c.size*c.numActions)
	if err != nil {
		return nil, err
	}

	out := make([][]float64, batch)
	for i := range batch {
		row := make([]float64, c.size)
		for j := range c.size {
			offset := (i*c.size + j) * c.numActions
			p := probs[offset : offset+c.numActions]
			if deterministic {
				row[j] = float64(argmax(p))
			} else {
				row[j] = float64(sampleIndex(p, rng.Float64()))
			}
		}
		out[i] = row
	}
	return out, nil
}

func argmax(slice []float64) int {
	maxIndex := 0
	maxValue := slice[0]
	for i, value := range slice {
		if value > maxValue {
			maxValue = value
			maxIndex = i
		}
	}
	return maxIndex
}

// sampleIndex inverts the cumulative distribution of p at u.
func sampleIndex(p []float64, u float64) int {
	total := 0.0
	for _, v := range p {
		total += v
	}
	u *= total
	for i, v := range p {
		if u < v {
			return i
		}
		u -= v
	}
	return len(p) - 1
}
