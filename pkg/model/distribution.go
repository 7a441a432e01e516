package model

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const eps = 1e-7

var (
	ErrMissingAction       = errors.New("missing action")
	ErrShapeMismatch       = errors.New("shape mismatch")
	ErrUnknownDistribution = errors.New("unknown distribution")
	ErrMissingParameter    = errors.New("missing distribution parameter")
	ErrInvalidAction       = errors.New("invalid action")
)

// DistributionParams are the graph nodes a distribution derives from the
// embedding, keyed by parameter name.
type DistributionParams map[string]*gorgonia.Node

// DistributionValues are evaluated DistributionParams, row-major.
type DistributionValues map[string][]float64

type Distribution interface {
	Name() string
	Spec() ActionSpec
	Parameterize(embedding *gorgonia.Node) (DistributionParams, error)
	LogProbability(params DistributionParams, action *gorgonia.Node) (*gorgonia.Node, error)

	// EncodeAction maps a raw action onto the row fed to LogProbability.
	EncodeAction(action []float64) ([]float64, error)
	EncodedSize() int

	// Sample draws one raw action per instance, or the mode when
	// deterministic is set.
	Sample(values DistributionValues, batch int, deterministic bool, rng *rand.Rand) ([][]float64, error)

	Learnables() gorgonia.Nodes
}

func NewDistribution(g *gorgonia.ExprGraph, weights Weights, name string, spec ActionSpec, inputSize int) (Distribution, error) {
	switch spec.Type {
	case DistributionCategorical:
		return NewCategorical(g, weights, name, spec, inputSize)
	case DistributionGaussian:
		return NewGaussian(g, weights, name, spec, inputSize)
	case DistributionBernoulli:
		return NewBernoulli(g, weights, name, spec, inputSize)
	default:
		return nil, fmt.Errorf("%w: %q for action %s", ErrUnknownDistribution, spec.Type, name)
	}
}

func param(params DistributionParams, distribution, name string) (*gorgonia.Node, error) {
	n, ok := params[name]
	if !ok || n == nil {
		return nil, fmt.Errorf("%w: %s of %s", ErrMissingParameter, name, distribution)
	}
	return n, nil
}

func checkAction(action *gorgonia.Node, name string, size int) (int, error) {
	shape := action.Shape()
	if len(shape) != 2 || shape[1] != size {
		return 0, fmt.Errorf("%w: action %s has shape %v, want (batch, %d)", ErrShapeMismatch, name, shape, size)
	}
	return shape[0], nil
}

// reshape skips the op only on an exact match. tensor.Shape.Eq treats (n) and
// (n, 1) as equal, which would leave a vector where a matrix is expected.
func reshape(n *gorgonia.Node, shape ...int) (*gorgonia.Node, error) {
	if slices.Equal(n.Shape(), tensor.Shape(shape)) {
		return n, nil
	}
	return gorgonia.Reshape(n, tensor.Shape(shape))
}

func checkValues(values DistributionValues, distribution, name string, want int) ([]float64, error) {
	v, ok := values[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s of %s", ErrMissingParameter, name, distribution)
	}
	if len(v) != want {
		return nil, fmt.Errorf("%w: %s of %s has %d values, want %d", ErrShapeMismatch, name, distribution, len(v), want)
	}
	return v, nil
}
