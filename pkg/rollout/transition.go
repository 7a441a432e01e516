package rollout

import (
	"encoding/json"
	"slices"
)

type Transition struct {
	State         []float64            `json:"state"`
	Internals     []float64            `json:"internals,omitempty"`
	Actions       map[string][]float64 `json:"actions"`
	Terminal      bool                 `json:"terminal"`
	Reward        float64              `json:"reward"`
	NextState     []float64            `json:"next_state,omitempty"`
	NextInternals []float64            `json:"next_internals,omitempty"`
}

type Episode struct {
	Run         string       `json:"run"`
	Index       int          `json:"index"`
	Transitions []Transition `json:"transitions"`
}

func (e Episode) Return() float64 {
	total := 0.0
	for _, t := range e.Transitions {
		total += t.Reward
	}
	return total
}

// Batch is an ordered run of transitions fed to a single update.
type Batch []Transition

func NewBatch(episodes ...Episode) Batch {
	out := Batch{}
	for _, e := range episodes {
		out = append(out, e.Transitions...)
	}
	return out
}

func (b Batch) Len() int {
	return len(b)
}

func (b Batch) StateSize() int {
	if len(b) == 0 {
		return 0
	}
	return len(b[0].State)
}

func (b Batch) States() []float64 {
	size := b.StateSize()
	flattened := make([]float64, len(b)*size)
	for i, t := range b {
		copy(flattened[i*size:], t.State)
	}
	return flattened
}

func (b Batch) Rewards() []float64 {
	out := make([]float64, len(b))
	for i, t := range b {
		out[i] = t.Reward
	}
	return out
}

func (b Batch) Terminals() []bool {
	out := make([]bool, len(b))
	for i, t := range b {
		out[i] = t.Terminal
	}
	return out
}

// Actions returns the raw action rows recorded under name, or false when any
// transition is missing it.
func (b Batch) Actions(name string) ([][]float64, bool) {
	out := make([][]float64, len(b))
	for i, t := range b {
		a, ok := t.Actions[name]
		if !ok {
			return nil, false
		}
		out[i] = a
	}
	return out, true
}

func (b Batch) ActionNames() []string {
	names := []string{}
	if len(b) == 0 {
		return names
	}
	for name := range b[0].Actions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Episodes splits the batch at terminal transitions. A trailing run without a
// terminal is returned as its own episode.
func (b Batch) Episodes() []Batch {
	out := []Batch{}
	start := 0
	for i, t := range b {
		if t.Terminal {
			out = append(out, b[start:i+1])
			start = i + 1
		}
	}
	if start < len(b) {
		out = append(out, b[start:])
	}
	return out
}

func (e Episode) MarshalBinary() ([]byte, error) {
	return json.Marshal(e)
}

func (e *Episode) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, e)
}
