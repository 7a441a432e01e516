package model

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/grexie/reinforce/pkg/rollout"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var (
	ErrEmptyBatch   = errors.New("empty batch")
	ErrInvalidSpec  = errors.New("invalid spec")
	ErrWeightsShape = errors.New("weights do not match model")
)

// Model trains a stochastic policy with the REINFORCE objective. Graph shapes
// are fixed in gorgonia, so every Update and Act builds a fresh graph for its
// batch size around the current weights.
type Model struct {
	mutex   sync.Mutex
	params  Params
	spec    Spec
	weights Weights
	solver  gorgonia.Solver
	rng     *rand.Rand
	step    int
}

type policyGraph struct {
	g          *gorgonia.ExprGraph
	states     *gorgonia.Node
	objective  *LogProb
	learnables gorgonia.Nodes
}

func NewModel(params Params, spec Spec) (*Model, error) {
	if spec.StateSize() <= 0 {
		return nil, fmt.Errorf("%w: state shape %v", ErrInvalidSpec, spec.StateShape)
	}
	if len(spec.Actions) == 0 {
		return nil, fmt.Errorf("%w: no actions", ErrInvalidSpec)
	}

	m := &Model{
		params:  params,
		spec:    spec,
		weights: Weights{},
		solver: gorgonia.NewAdamSolver(
			gorgonia.WithLearnRate(params.LearnRate),
			gorgonia.WithBeta1(0.9),
			gorgonia.WithBeta2(0.999),
			gorgonia.WithEps(1e-8),
			gorgonia.WithClip(params.Clip),
		),
		rng: rand.New(rand.NewPCG(params.Seed, params.Seed^0x9e3779b97f4a7c15)),
	}

	pg, err := m.newGraph(1)
	if err != nil {
		return nil, err
	}
	if err := m.weights.store(pg.learnables); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Model) Params() Params {
	return m.params
}

func (m *Model) Spec() Spec {
	return m.spec
}

func (m *Model) Step() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.step
}

func (m *Model) Weights() Weights {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.weights.Clone()
}

// SetWeights replaces every weight. Names and shapes must match the model.
func (m *Model) SetWeights(w Weights) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if len(w) != len(m.weights) {
		return fmt.Errorf("%w: got %d weights, want %d", ErrWeightsShape, len(w), len(m.weights))
	}
	for name, t := range m.weights {
		other, ok := w[name]
		if !ok {
			return fmt.Errorf("%w: missing %s", ErrWeightsShape, name)
		}
		if !other.Shape().Eq(t.Shape()) {
			return fmt.Errorf("%w: %s has shape %v, want %v", ErrWeightsShape, name, other.Shape(), t.Shape())
		}
	}
	m.weights = w.Clone()
	return nil
}

func (m *Model) newGraph(batch int) (*policyGraph, error) {
	g := gorgonia.NewGraph()

	states := gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(batch, m.spec.StateSize()),
		gorgonia.WithName("states"))

	network, err := NewDenseNetwork(g, m.weights, m.spec.StateSize(), m.params)
	if err != nil {
		return nil, err
	}

	objective := &LogProb{Network: network, Distributions: map[string]Distribution{}}
	learnables := network.Learnables()
	for _, name := range m.spec.ActionNames() {
		d, err := NewDistribution(g, m.weights, name, m.spec.Actions[name], network.Size())
		if err != nil {
			return nil, err
		}
		objective.Distributions[name] = d
		learnables = append(learnables, d.Learnables()...)
	}

	return &policyGraph{g: g, states: states, objective: objective, learnables: learnables}, nil
}

func (m *Model) letStates(pg *policyGraph, states []float64, batch int) error {
	if len(states) != batch*m.spec.StateSize() {
		return fmt.Errorf("%w: %d state values for %d instances of size %d", ErrShapeMismatch, len(states), batch, m.spec.StateSize())
	}
	if err := gorgonia.Let(pg.states, tensor.New(
		tensor.WithShape(batch, m.spec.StateSize()),
		tensor.WithBacking(states))); err != nil {
		return fmt.Errorf("failed to update states tensor: %w", err)
	}
	return nil
}

func (m *Model) regularization(learnables gorgonia.Nodes) (*gorgonia.Node, error) {
	var sum *gorgonia.Node
	for _, w := range learnables {
		if !strings.HasSuffix(w.Name(), "/w") {
			continue
		}
		l2, err := gorgonia.Mean(gorgonia.Must(gorgonia.Square(w)))
		if err != nil {
			return nil, err
		}
		if sum == nil {
			sum = l2
		} else if sum, err = gorgonia.Add(sum, l2); err != nil {
			return nil, err
		}
	}
	if sum == nil {
		return nil, nil
	}
	return gorgonia.Mul(gorgonia.NewConstant(m.params.L2Penalty), sum)
}

// Returns computes the reward signal each instance is weighted by.
func (m *Model) Returns(batch rollout.Batch) []float64 {
	rewards := batch.Rewards()
	if m.params.Discount > 0 {
		rewards = DiscountedReturns(rewards, batch.Terminals(), m.params.Discount)
	}
	if m.params.NormalizeRewards {
		rewards = NormalizeRewards(rewards)
	}
	return rewards
}

// Update performs one optimizer step on batch.
func (m *Model) Update(batch rollout.Batch) (UpdateMetrics, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	started := time.Now()
	metrics := UpdateMetrics{Step: m.step}

	n := batch.Len()
	if n == 0 {
		return metrics, ErrEmptyBatch
	}

	pg, err := m.newGraph(n)
	if err != nil {
		return metrics, err
	}
	if err := m.letStates(pg, batch.States(), n); err != nil {
		return metrics, err
	}

	actions := make(map[string]*gorgonia.Node, len(pg.objective.Distributions))
	for name, d := range pg.objective.Distributions {
		raw, ok := batch.Actions(name)
		if !ok {
			return metrics, fmt.Errorf("%w: %s", ErrMissingAction, name)
		}
		size := d.EncodedSize()
		backing := make([]float64, 0, n*size)
		for i, a := range raw {
			encoded, err := d.EncodeAction(a)
			if err != nil {
				return metrics, fmt.Errorf("instance %d: %w", i, err)
			}
			backing = append(backing, encoded...)
		}
		actions[name] = gorgonia.NewMatrix(pg.g, tensor.Float64,
			gorgonia.WithShape(n, size),
			gorgonia.WithName("action/"+name),
			gorgonia.WithValue(tensor.New(tensor.WithShape(n, size), tensor.WithBacking(backing))))
	}

	returns := m.Returns(batch)
	reward := gorgonia.NewVector(pg.g, tensor.Float64,
		gorgonia.WithShape(n),
		gorgonia.WithName("reward"),
		gorgonia.WithValue(tensor.New(tensor.WithShape(n), tensor.WithBacking(returns))))

	perInstance, err := pg.objective.LossPerInstance(pg.states, nil, actions, nil, reward, nil, nil, true)
	if err != nil {
		return metrics, err
	}

	objective, err := gorgonia.Mean(perInstance)
	if err != nil {
		return metrics, fmt.Errorf("mean loss: %w", err)
	}
	loss := objective

	var regularization *gorgonia.Node
	if m.params.L2Penalty > 0 {
		if regularization, err = m.regularization(pg.learnables); err != nil {
			return metrics, fmt.Errorf("regularization: %w", err)
		}
		if regularization != nil {
			if loss, err = gorgonia.Add(objective, regularization); err != nil {
				return metrics, fmt.Errorf("add regularization: %w", err)
			}
		}
	}

	if _, err := gorgonia.Grad(loss, pg.learnables...); err != nil {
		return metrics, fmt.Errorf("failed to compute gradients: %w", err)
	}

	vm := gorgonia.NewTapeMachine(pg.g, gorgonia.BindDualValues(pg.learnables...))
	defer vm.Close()

	if err := vm.RunAll(); err != nil {
		return metrics, fmt.Errorf("forward/backward pass failed: %w", err)
	}

	if err := m.solver.Step(gorgonia.NodesToValueGrads(pg.learnables)); err != nil {
		return metrics, fmt.Errorf("solver step failed: %w", err)
	}

	if err := m.weights.store(pg.learnables); err != nil {
		return metrics, err
	}

	m.step++

	metrics.Instances = n
	metrics.Loss = loss.Value().Data().(float64)
	metrics.Objective = objective.Value().Data().(float64)
	if regularization != nil {
		metrics.Regularization = regularization.Value().Data().(float64)
	}
	metrics.Returns = returnStats(batch)
	metrics.Duration = time.Since(started)

	return metrics, nil
}

// Act samples one action per state for every action component, or takes the
// mode of each distribution when deterministic is set.
func (m *Model) Act(states [][]float64, deterministic bool) (map[string][][]float64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	n := len(states)
	out := map[string][][]float64{}
	if n == 0 {
		return out, nil
	}

	pg, err := m.newGraph(n)
	if err != nil {
		return nil, err
	}
	flattened := make([]float64, 0, n*m.spec.StateSize())
	for _, s := range states {
		flattened = append(flattened, s...)
	}
	if err := m.letStates(pg, flattened, n); err != nil {
		return nil, err
	}

	embedding, err := pg.objective.Network.Apply(pg.states, nil, false)
	if err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}

	params := make(map[string]DistributionParams, len(pg.objective.Distributions))
	for name, d := range pg.objective.Distributions {
		if params[name], err = d.Parameterize(embedding); err != nil {
			return nil, fmt.Errorf("parameterize %s: %w", name, err)
		}
	}

	vm := gorgonia.NewTapeMachine(pg.g)
	defer vm.Close()

	if err := vm.RunAll(); err != nil {
		return nil, fmt.Errorf("forward pass failed: %w", err)
	}

	for _, name := range pg.objective.names() {
		values := DistributionValues{}
		for key, node := range params[name] {
			data, err := nodeData(node)
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", name, key, err)
			}
			values[key] = data
		}
		if out[name], err = pg.objective.Distributions[name].Sample(values, n, deterministic, m.rng); err != nil {
			return nil, err
		}
	}

	return out, nil
}
