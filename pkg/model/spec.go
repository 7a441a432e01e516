package model

import "slices"

type DistributionType string

const (
	DistributionCategorical DistributionType = "categorical"
	DistributionGaussian    DistributionType = "gaussian"
	DistributionBernoulli   DistributionType = "bernoulli"
)

// ActionSpec describes one named action component. Shape is the per-instance
// shape of the raw action; an empty shape is a single value.
type ActionSpec struct {
	Type       DistributionType `json:"type"`
	Shape      []int            `json:"shape,omitempty"`
	NumActions int              `json:"num_actions,omitempty"`
}

func (a ActionSpec) Size() int {
	return Prod(a.Shape)
}

type Spec struct {
	StateShape []int
	Actions    map[string]ActionSpec
}

func (s Spec) StateSize() int {
	return Prod(s.StateShape)
}

func (s Spec) ActionNames() []string {
	names := make([]string, 0, len(s.Actions))
	for name := range s.Actions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
