package model

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

type Params struct {
	LearnRate   float64
	L2Penalty   float64
	DropoutRate float64
	Clip        float64

	Discount         float64
	NormalizeRewards bool

	HiddenSize   int
	HiddenLayers int
	Activation   Activation

	BatchEpisodes int
	Iterations    int
	MaxSteps      int
	Seed          uint64
}

func (p *Params) Write(w io.Writer, title string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.AppendRows([]table.Row{
		{"REINFORCE_LEARN_RATE", fmt.Sprintf("%.06f", p.LearnRate)},
		{"REINFORCE_L2_PENALTY", fmt.Sprintf("%.06f", p.L2Penalty)},
		{"REINFORCE_DROPOUT_RATE", fmt.Sprintf("%.04f", p.DropoutRate)},
		{"REINFORCE_CLIP", fmt.Sprintf("%.04f", p.Clip)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"REINFORCE_DISCOUNT", fmt.Sprintf("%.04f", p.Discount)},
		{"REINFORCE_NORMALIZE_REWARDS", fmt.Sprintf("%t", p.NormalizeRewards)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"REINFORCE_HIDDEN_SIZE", fmt.Sprintf("%d", p.HiddenSize)},
		{"REINFORCE_HIDDEN_LAYERS", fmt.Sprintf("%d", p.HiddenLayers)},
		{"REINFORCE_ACTIVATION", string(p.Activation)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"REINFORCE_BATCH_EPISODES", fmt.Sprintf("%d", p.BatchEpisodes)},
		{"REINFORCE_ITERATIONS", fmt.Sprintf("%d", p.Iterations)},
		{"REINFORCE_MAX_STEPS", fmt.Sprintf("%d", p.MaxSteps)},
		{"REINFORCE_SEED", fmt.Sprintf("%d", p.Seed)},
	})
	t.Render()
}

func NewParamsFromDefaults() Params {
	return Params{
		LearnRate:   LearnRate(),
		L2Penalty:   L2Penalty(),
		DropoutRate: DropoutRate(),
		Clip:        Clip(),

		Discount:         Discount(),
		NormalizeRewards: RewardNormalization(),

		HiddenSize:   HiddenSize(),
		HiddenLayers: HiddenLayers(),
		Activation:   ActivationFunc(),

		BatchEpisodes: BatchEpisodes(),
		Iterations:    Iterations(),
		MaxSteps:      MaxSteps(),
		Seed:          uint64(Seed()),
	}
}

func envInt(name string, def func() int, dec func(v int) int) func() int {
	return func() int {
		value := def()
		if v, ok := os.LookupEnv(name); ok {
			if v, err := strconv.ParseInt(v, 10, 64); err != nil {
				log.Fatalf("failed to parse env.%s: %v", name, err)
			} else {
				value = int(v)
			}
		}
		return dec(value)
	}
}

func envFloat64(name string, def func() float64, dec func(v float64) float64) func() float64 {
	return func() float64 {
		value := def()
		if v, ok := os.LookupEnv(name); ok {
			if v, err := strconv.ParseFloat(v, 64); err != nil {
				log.Fatalf("failed to parse env.%s: %v", name, err)
			} else {
				value = v
			}
		}
		return dec(value)
	}
}

func envBool(name string, def func() bool) func() bool {
	return func() bool {
		value := def()
		if v, ok := os.LookupEnv(name); ok {
			if v, err := strconv.ParseBool(v); err != nil {
				log.Fatalf("failed to parse env.%s: %v", name, err)
			} else {
				value = v
			}
		}
		return value
	}
}

func envString(name string, def func() string) func() string {
	return func() string {
		value := def()
		if v, ok := os.LookupEnv(name); ok {
			value = v
		}
		return value
	}
}

var (
	LearnRate   = envFloat64("REINFORCE_LEARN_RATE", func() float64 { return 0.001 }, BoundLearnRate)
	L2Penalty   = envFloat64("REINFORCE_L2_PENALTY", func() float64 { return 0.0 }, BoundL2Penalty)
	DropoutRate = envFloat64("REINFORCE_DROPOUT_RATE", func() float64 { return 0.0 }, BoundDropoutRate)
	Clip        = envFloat64("REINFORCE_CLIP", func() float64 { return 1.0 }, BoundClip)
)

var (
	Discount            = envFloat64("REINFORCE_DISCOUNT", func() float64 { return 0.99 }, BoundDiscount)
	RewardNormalization = envBool("REINFORCE_NORMALIZE_REWARDS", func() bool { return true })
)

var (
	HiddenSize     = envInt("REINFORCE_HIDDEN_SIZE", func() int { return 32 }, BoundHiddenSize)
	HiddenLayers   = envInt("REINFORCE_HIDDEN_LAYERS", func() int { return 2 }, BoundHiddenLayers)
	activationName = envString("REINFORCE_ACTIVATION", func() string { return string(ActivationReLU) })
)

func ActivationFunc() Activation {
	switch a := Activation(strings.ToLower(activationName())); a {
	case ActivationReLU, ActivationTanh, ActivationMish:
		return a
	default:
		log.Fatalf("unknown env.REINFORCE_ACTIVATION: %s", a)
		return ActivationReLU
	}
}

var (
	BatchEpisodes = envInt("REINFORCE_BATCH_EPISODES", func() int { return 8 }, BoundBatchEpisodes)
	Iterations    = envInt("REINFORCE_ITERATIONS", func() int { return 200 }, BoundIterations)
	MaxSteps      = envInt("REINFORCE_MAX_STEPS", func() int { return 500 }, BoundMaxSteps)
	Seed          = envInt("REINFORCE_SEED", func() int { return 1 }, func(v int) int { return v })
)
