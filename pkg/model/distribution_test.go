package model

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// zeroWeights builds a distribution once to learn its weight names and
// shapes, then returns all of them set to zero.
func zeroWeights(t *testing.T, name string, spec ActionSpec, inputSize int) Weights {
	t.Helper()
	d, err := NewDistribution(gorgonia.NewGraph(), Weights{}, name, spec, inputSize)
	if err != nil {
		t.Fatalf("failed to build %s: %v", name, err)
	}
	w := Weights{}
	for _, n := range d.Learnables() {
		w[n.Name()] = tensor.New(tensor.WithShape(n.Shape()...), tensor.Of(tensor.Float64))
	}
	return w
}

func logProbability(t *testing.T, spec ActionSpec, embedding []float64, inputSize int, actions [][]float64) (Distribution, []float64, tensor.Shape) {
	t.Helper()

	weights := zeroWeights(t, "act", spec, inputSize)
	g := gorgonia.NewGraph()
	d, err := NewDistribution(g, weights, "act", spec, inputSize)
	if err != nil {
		t.Fatalf("failed to build distribution: %v", err)
	}

	batch := len(actions)
	emb := gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(batch, inputSize),
		gorgonia.WithName("embedding"),
		gorgonia.WithValue(tensor.New(tensor.WithShape(batch, inputSize), tensor.WithBacking(embedding))))

	backing := []float64{}
	for _, a := range actions {
		encoded, err := d.EncodeAction(a)
		if err != nil {
			t.Fatalf("failed to encode %v: %v", a, err)
		}
		backing = append(backing, encoded...)
	}
	action := gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(batch, d.EncodedSize()),
		gorgonia.WithName("action"),
		gorgonia.WithValue(tensor.New(tensor.WithShape(batch, d.EncodedSize()), tensor.WithBacking(backing))))

	params, err := d.Parameterize(emb)
	if err != nil {
		t.Fatalf("parameterize failed: %v", err)
	}
	lp, err := d.LogProbability(params, action)
	if err != nil {
		t.Fatalf("log probability failed: %v", err)
	}

	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("forward pass failed: %v", err)
	}

	data, err := nodeData(lp)
	if err != nil {
		t.Fatalf("failed to read log probability: %v", err)
	}
	return d, append([]float64{}, data...), lp.Shape()
}

func TestCategoricalUniformLogProbability(t *testing.T) {
	spec := ActionSpec{Type: DistributionCategorical, NumActions: 3}
	_, lp, shape := logProbability(t, spec, []float64{0.3, -1, 2, 0.5, 0.1, 0.7, -0.2, 4}, 4, [][]float64{{0}, {2}})

	if !slices.Equal(shape, tensor.Shape{2}) {
		t.Fatalf("expected shape (2), got %v", shape)
	}
	want := math.Log(1.0/3.0 + eps)
	for i, v := range lp {
		if math.Abs(v-want) > 1e-9 {
			t.Fatalf("log probability[%d] = %f, want %f", i, v, want)
		}
	}
}

func TestCategoricalShapedAction(t *testing.T) {
	spec := ActionSpec{Type: DistributionCategorical, Shape: []int{2}, NumActions: 4}
	_, lp, shape := logProbability(t, spec, []float64{1, 2, 3}, 1, [][]float64{{0, 3}, {1, 1}, {2, 0}})

	if !slices.Equal(shape, tensor.Shape{3, 2}) {
		t.Fatalf("expected shape (3, 2), got %v", shape)
	}
	want := math.Log(0.25 + eps)
	for i, v := range lp {
		if math.Abs(v-want) > 1e-9 {
			t.Fatalf("log probability[%d] = %f, want %f", i, v, want)
		}
	}
}

func TestGaussianStandardNormal(t *testing.T) {
	spec := ActionSpec{Type: DistributionGaussian, Shape: []int{2}}
	actions := [][]float64{{0.5, -1}, {0, 2}}
	_, lp, shape := logProbability(t, spec, []float64{1, 1, 1, 1}, 2, actions)

	if !shape.Eq(tensor.Shape{2, 2}) {
		t.Fatalf("expected shape (2, 2), got %v", shape)
	}
	for i, a := range []float64{0.5, -1, 0, 2} {
		want := -0.5*a*a - 0.5*math.Log(2*math.Pi)
		if math.Abs(lp[i]-want) > 1e-9 {
			t.Fatalf("log probability[%d] = %f, want %f", i, lp[i], want)
		}
	}
}

func TestBernoulliFairCoin(t *testing.T) {
	spec := ActionSpec{Type: DistributionBernoulli, Shape: []int{3}}
	_, lp, _ := logProbability(t, spec, []float64{1, 2}, 1, [][]float64{{0, 1, 1}, {1, 0, 0}})

	want := math.Log(0.5 + eps)
	for i, v := range lp {
		if math.Abs(v-want) > 1e-9 {
			t.Fatalf("log probability[%d] = %f, want %f", i, v, want)
		}
	}
}

func TestNewDistributionUnknown(t *testing.T) {
	_, err := NewDistribution(gorgonia.NewGraph(), Weights{}, "act", ActionSpec{Type: "beta"}, 2)
	if !errors.Is(err, ErrUnknownDistribution) {
		t.Fatalf("expected ErrUnknownDistribution, got %v", err)
	}
}

func TestCategoricalEncodeAction(t *testing.T) {
	d, err := NewCategorical(gorgonia.NewGraph(), Weights{}, "act", ActionSpec{Type: DistributionCategorical, Shape: []int{2}, NumActions: 3}, 2)
	if err != nil {
		t.Fatalf("failed to build categorical: %v", err)
	}

	encoded, err := d.EncodeAction([]float64{2, 0})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	want := []float64{0, 0, 1, 1, 0, 0}
	for i := range want {
		if encoded[i] != want[i] {
			t.Fatalf("encoded = %v, want %v", encoded, want)
		}
	}

	for _, invalid := range [][]float64{{3, 0}, {-1, 0}, {0.5, 0}, {1}} {
		if _, err := d.EncodeAction(invalid); !errors.Is(err, ErrInvalidAction) {
			t.Fatalf("expected ErrInvalidAction for %v, got %v", invalid, err)
		}
	}
}

func TestCategoricalSample(t *testing.T) {
	d, err := NewCategorical(gorgonia.NewGraph(), Weights{}, "act", ActionSpec{Type: DistributionCategorical, NumActions: 3}, 1)
	if err != nil {
		t.Fatalf("failed to build categorical: %v", err)
	}
	values := DistributionValues{"probabilities": {0.1, 0.7, 0.2, 0, 0, 1}}
	rng := rand.New(rand.NewPCG(1, 2))

	mode, err := d.Sample(values, 2, true, rng)
	if err != nil {
		t.Fatalf("sample failed: %v", err)
	}
	if mode[0][0] != 1 || mode[1][0] != 2 {
		t.Fatalf("unexpected mode %v", mode)
	}

	for range 20 {
		sampled, err := d.Sample(values, 2, false, rng)
		if err != nil {
			t.Fatalf("sample failed: %v", err)
		}
		if sampled[1][0] != 2 {
			t.Fatalf("sampled impossible outcome %v", sampled[1][0])
		}
	}

	if _, err := d.Sample(DistributionValues{"probabilities": {1}}, 2, true, rng); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestSampleIndex(t *testing.T) {
	p := []float64{0.2, 0.5, 0.3}
	for _, tc := range []struct {
		u    float64
		want int
	}{{0, 0}, {0.19, 0}, {0.21, 1}, {0.69, 1}, {0.71, 2}, {0.999, 2}} {
		if got := sampleIndex(p, tc.u); got != tc.want {
			t.Fatalf("sampleIndex(%v) = %d, want %d", tc.u, got, tc.want)
		}
	}
}

func TestGaussianSampleMode(t *testing.T) {
	d, err := NewGaussian(gorgonia.NewGraph(), Weights{}, "act", ActionSpec{Type: DistributionGaussian, Shape: []int{2}}, 1)
	if err != nil {
		t.Fatalf("failed to build gaussian: %v", err)
	}
	values := DistributionValues{"mean": {1, 2, 3, 4}, "stddev": {1, 1, 1, 1}}
	mode, err := d.Sample(values, 2, true, rand.New(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatalf("sample failed: %v", err)
	}
	if mode[0][0] != 1 || mode[0][1] != 2 || mode[1][0] != 3 || mode[1][1] != 4 {
		t.Fatalf("unexpected mode %v", mode)
	}
}

func TestBernoulliSampleMode(t *testing.T) {
	d, err := NewBernoulli(gorgonia.NewGraph(), Weights{}, "act", ActionSpec{Type: DistributionBernoulli}, 1)
	if err != nil {
		t.Fatalf("failed to build bernoulli: %v", err)
	}
	mode, err := d.Sample(DistributionValues{"probability": {0.9, 0.1}}, 2, true, rand.New(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatalf("sample failed: %v", err)
	}
	if mode[0][0] != 1 || mode[1][0] != 0 {
		t.Fatalf("unexpected mode %v", mode)
	}
	if _, err := d.EncodeAction([]float64{0.5}); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
}
