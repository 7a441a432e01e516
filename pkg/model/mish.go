package model

import (
	"fmt"

	"gorgonia.org/gorgonia"
)

// Mish computes x * tanh(softplus(x)) element-wise.
func Mish(x *gorgonia.Node) (*gorgonia.Node, error) {
	if x == nil {
		return nil, fmt.Errorf("input node is nil")
	}

	exp, err := gorgonia.Exp(x)
	if err != nil {
		return nil, fmt.Errorf("exp error: %w", err)
	}

	added, err := gorgonia.Add(exp, gorgonia.NewConstant(1.0))
	if err != nil {
		return nil, fmt.Errorf("add error: %w", err)
	}

	softplus, err := gorgonia.Log(added)
	if err != nil {
		return nil, fmt.Errorf("log error: %w", err)
	}

	tanh, err := gorgonia.Tanh(softplus)
	if err != nil {
		return nil, fmt.Errorf("tanh error: %w", err)
	}

	result, err := gorgonia.HadamardProd(x, tanh)
	if err != nil {
		return nil, fmt.Errorf("mul error: %w", err)
	}

	return result, nil
}
