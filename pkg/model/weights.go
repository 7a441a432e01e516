package model

import (
	"fmt"
	"slices"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Weights holds learnable values by node name so a fresh graph can be built
// for every batch size.
type Weights map[string]tensor.Tensor

func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for name, t := range w {
		out[name] = t.Clone().(tensor.Tensor)
	}
	return out
}

func (w Weights) Names() []string {
	names := make([]string, 0, len(w))
	for name := range w {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// matrix returns a learnable matrix bound to the stored value of name, or
// initialised with init when no value exists yet.
func (w Weights) matrix(g *gorgonia.ExprGraph, name string, init gorgonia.InitWFn, rows, cols int) (*gorgonia.Node, error) {
	if t, ok := w[name]; ok {
		if !t.Shape().Eq(tensor.Shape{rows, cols}) {
			return nil, fmt.Errorf("%w: weight %s has shape %v, want (%d, %d)", ErrShapeMismatch, name, t.Shape(), rows, cols)
		}
		return gorgonia.NewMatrix(g, tensor.Float64,
			gorgonia.WithShape(rows, cols),
			gorgonia.WithName(name),
			gorgonia.WithValue(t)), nil
	}
	return gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(rows, cols),
		gorgonia.WithName(name),
		gorgonia.WithInit(init)), nil
}

func (w Weights) store(nodes gorgonia.Nodes) error {
	for _, n := range nodes {
		t, err := getWeightsTensor(n)
		if err != nil {
			return fmt.Errorf("weight %s: %w", n.Name(), err)
		}
		w[n.Name()] = t
	}
	return nil
}

func getWeightsTensor(n *gorgonia.Node) (tensor.Tensor, error) {
	v := n.Value()
	if v == nil {
		return nil, fmt.Errorf("node has nil value")
	}
	t, ok := v.(tensor.Tensor)
	if !ok {
		return nil, fmt.Errorf("value is not a tensor")
	}
	return t, nil
}

// Prod is the number of elements in shape. The empty shape has one.
func Prod(shape []int) int {
	p := 1
	for _, d := range shape {
		p *= d
	}
	return p
}

func nodeData(n *gorgonia.Node) ([]float64, error) {
	t, err := getWeightsTensor(n)
	if err != nil {
		return nil, err
	}
	data, ok := t.Data().([]float64)
	if !ok {
		if f, ok := t.Data().(float64); ok {
			return []float64{f}, nil
		}
		return nil, fmt.Errorf("node %s does not hold float64 data", n.Name())
	}
	return data, nil
}
