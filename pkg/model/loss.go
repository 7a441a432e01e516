package model

import (
	"errors"
	"fmt"
	"slices"

	"gorgonia.org/gorgonia"
)

var ErrNoDistributions = errors.New("no distributions")

// LogProb is the REINFORCE objective: the reward weighted negative
// log-likelihood of the actions that were taken.
type LogProb struct {
	Network       Network
	Distributions map[string]Distribution
}

func (l *LogProb) names() []string {
	names := make([]string, 0, len(l.Distributions))
	for name := range l.Distributions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// LossPerInstance returns one loss per instance,
//
//	loss_i = -mean(log_prob_i) * reward_i
//
// where the mean runs over every flattened log-probability entry of every
// action component: per component sums are added and divided by the total
// entry count. Components are visited in name order so the summation order
// never changes. terminal, nextStates and nextInternals are accepted for
// parity with other objectives and are not used.
func (l *LogProb) LossPerInstance(
	states *gorgonia.Node,
	internals []*gorgonia.Node,
	actions map[string]*gorgonia.Node,
	terminal *gorgonia.Node,
	reward *gorgonia.Node,
	nextStates *gorgonia.Node,
	nextInternals []*gorgonia.Node,
	update bool,
) (*gorgonia.Node, error) {
	if len(l.Distributions) == 0 {
		return nil, ErrNoDistributions
	}

	embedding, err := l.Network.Apply(states, internals, update)
	if err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}
	batch := embedding.Shape()[0]

	var total *gorgonia.Node
	width := 0
	for _, name := range l.names() {
		distribution := l.Distributions[name]

		action, ok := actions[name]
		if !ok || action == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingAction, name)
		}
		if shape := action.Shape(); len(shape) == 0 || shape[0] != batch {
			return nil, fmt.Errorf("%w: action %s has shape %v for a batch of %d", ErrShapeMismatch, name, shape, batch)
		}

		params, err := distribution.Parameterize(embedding)
		if err != nil {
			return nil, fmt.Errorf("parameterize %s: %w", name, err)
		}

		logProb, err := distribution.LogProbability(params, action)
		if err != nil {
			return nil, fmt.Errorf("log probability %s: %w", name, err)
		}

		summed, entries, err := instanceSum(logProb, batch)
		if err != nil {
			return nil, fmt.Errorf("collapse %s: %w", name, err)
		}
		width += entries

		if total == nil {
			total = summed
		} else if total, err = gorgonia.Add(total, summed); err != nil {
			return nil, fmt.Errorf("add %s: %w", name, err)
		}
	}

	mean, err := gorgonia.Div(total, gorgonia.NewConstant(float64(width)))
	if err != nil {
		return nil, fmt.Errorf("mean: %w", err)
	}

	if shape := reward.Shape(); len(shape) != 1 || shape[0] != batch {
		return nil, fmt.Errorf("%w: reward has shape %v for a batch of %d", ErrShapeMismatch, shape, batch)
	}

	negated, err := gorgonia.Neg(mean)
	if err != nil {
		return nil, fmt.Errorf("neg: %w", err)
	}

	return gorgonia.HadamardProd(negated, reward)
}

// instanceSum folds every log-probability entry past the batch axis into one
// value per instance, giving a (batch) vector, and reports how many entries
// each instance contributed.
func instanceSum(logProb *gorgonia.Node, batch int) (*gorgonia.Node, int, error) {
	shape := logProb.Shape()
	if len(shape) == 0 || shape[0] != batch {
		return nil, 0, fmt.Errorf("%w: log probability has shape %v for a batch of %d", ErrShapeMismatch, shape, batch)
	}

	width := Prod(shape[1:])
	if width == 1 {
		column, err := reshape(logProb, batch)
		return column, 1, err
	}

	rows, err := reshape(logProb, batch, width)
	if err != nil {
		return nil, 0, err
	}
	summed, err := gorgonia.Sum(rows, 1)
	if err != nil {
		return nil, 0, err
	}
	return summed, width, nil
}
