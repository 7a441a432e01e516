package model

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/grexie/reinforce/pkg/rollout"
	"github.com/jedib0t/go-pretty/v6/table"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type Stats struct {
	Mean   float64
	Min    float64
	Max    float64
	StdDev float64
}

func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}
	s := Stats{
		Mean: stat.Mean(values, nil),
		Min:  floats.Min(values),
		Max:  floats.Max(values),
	}
	if len(values) > 1 {
		s.StdDev = stat.StdDev(values, nil)
	}
	return s
}

type UpdateMetrics struct {
	Step           int
	Loss           float64
	Objective      float64
	Regularization float64
	Instances      int
	Returns        Stats
	Duration       time.Duration
}

func returnStats(batch rollout.Batch) Stats {
	episodes := batch.Episodes()
	returns := make([]float64, len(episodes))
	for i, e := range episodes {
		for _, t := range e {
			returns[i] += t.Reward
		}
	}
	return NewStats(returns)
}

func safeValue(v float64, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	} else {
		return v
	}
}

func (m UpdateMetrics) Write(w io.Writer) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Update %d", m.Step))
	t.AppendRows([]table.Row{
		{"Loss", fmt.Sprintf("%.6f", safeValue(m.Loss, 0))},
		{"Objective", fmt.Sprintf("%.6f", safeValue(m.Objective, 0))},
		{"Regularization", fmt.Sprintf("%.6f", safeValue(m.Regularization, 0))},
		{"Instances", fmt.Sprintf("%d", m.Instances)},
		{"Duration", m.Duration.Round(time.Millisecond).String()},
	})
	t.Render()

	t = table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Episode Returns")
	t.AppendHeader(table.Row{"", "MEAN", "MIN", "MAX", "STDDEV"})
	t.AppendRow(table.Row{"Return", fmt.Sprintf("%.2f", m.Returns.Mean), fmt.Sprintf("%.2f", m.Returns.Min), fmt.Sprintf("%.2f", m.Returns.Max), fmt.Sprintf("%.2f", m.Returns.StdDev)})
	t.Render()

	return nil
}
