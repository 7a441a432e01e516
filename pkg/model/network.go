package model

import (
	"fmt"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Network turns states and internal recurrent state into the embedding every
// distribution is parameterized from.
type Network interface {
	Apply(states *gorgonia.Node, internals []*gorgonia.Node, update bool) (*gorgonia.Node, error)
	Learnables() gorgonia.Nodes
	Size() int
}

type Activation string

const (
	ActivationReLU Activation = "relu"
	ActivationTanh Activation = "tanh"
	ActivationMish Activation = "mish"
)

func (a Activation) apply(x *gorgonia.Node) (*gorgonia.Node, error) {
	switch a {
	case ActivationTanh:
		return gorgonia.Tanh(x)
	case ActivationMish:
		return Mish(x)
	default:
		return gorgonia.Rectify(x)
	}
}

type linear struct {
	w, b *gorgonia.Node
}

func newLinear(g *gorgonia.ExprGraph, weights Weights, name string, in, out int) (linear, error) {
	w, err := weights.matrix(g, name+"/w", gorgonia.GlorotN(1.0), in, out)
	if err != nil {
		return linear{}, err
	}
	b, err := weights.matrix(g, name+"/b", gorgonia.Zeroes(), 1, out)
	if err != nil {
		return linear{}, err
	}
	return linear{w: w, b: b}, nil
}

func (l linear) apply(x *gorgonia.Node) (*gorgonia.Node, error) {
	xw, err := gorgonia.Mul(x, l.w)
	if err != nil {
		return nil, fmt.Errorf("mul %s: %w", l.w.Name(), err)
	}
	out, err := gorgonia.BroadcastAdd(xw, l.b, nil, []byte{0})
	if err != nil {
		return nil, fmt.Errorf("bias %s: %w", l.b.Name(), err)
	}
	return out, nil
}

func (l linear) learnables() gorgonia.Nodes {
	return gorgonia.Nodes{l.w, l.b}
}

// DenseNetwork is a feed-forward embedding. It keeps no internal state, so
// internals pass through untouched.
type DenseNetwork struct {
	layers      []linear
	inputSize   int
	size        int
	activation  Activation
	dropoutRate float64
}

func NewDenseNetwork(g *gorgonia.ExprGraph, weights Weights, inputSize int, params Params) (*DenseNetwork, error) {
	n := &DenseNetwork{
		inputSize:   inputSize,
		size:        inputSize,
		activation:  params.Activation,
		dropoutRate: params.DropoutRate,
	}

	in := inputSize
	for i := range params.HiddenLayers {
		l, err := newLinear(g, weights, fmt.Sprintf("network/dense%d", i), in, params.HiddenSize)
		if err != nil {
			return nil, err
		}
		n.layers = append(n.layers, l)
		in = params.HiddenSize
	}
	n.size = in

	return n, nil
}

func (n *DenseNetwork) Apply(states *gorgonia.Node, internals []*gorgonia.Node, update bool) (*gorgonia.Node, error) {
	x := states
	shape := states.Shape()
	if len(shape) == 0 {
		return nil, fmt.Errorf("%w: states must have a batch dimension", ErrShapeMismatch)
	}
	if len(shape) != 2 {
		var err error
		if x, err = gorgonia.Reshape(states, tensor.Shape{shape[0], Prod(shape[1:])}); err != nil {
			return nil, fmt.Errorf("flatten states: %w", err)
		}
	}
	if x.Shape()[1] != n.inputSize {
		return nil, fmt.Errorf("%w: states have %d features, network expects %d", ErrShapeMismatch, x.Shape()[1], n.inputSize)
	}

	for i, l := range n.layers {
		h, err := l.apply(x)
		if err != nil {
			return nil, err
		}
		if h, err = n.activation.apply(h); err != nil {
			return nil, fmt.Errorf("layer %d activation: %w", i, err)
		}
		if update && n.dropoutRate > 0 {
			if h, err = gorgonia.Dropout(h, n.dropoutRate); err != nil {
				return nil, fmt.Errorf("layer %d dropout: %w", i, err)
			}
		}
		x = h
	}

	return x, nil
}

func (n *DenseNetwork) Learnables() gorgonia.Nodes {
	out := gorgonia.Nodes{}
	for _, l := range n.layers {
		out = append(out, l.learnables()...)
	}
	return out
}

func (n *DenseNetwork) Size() int {
	return n.size
}
