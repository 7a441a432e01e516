package tune

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/grexie/reinforce/pkg/model"
	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/jedib0t/go-pretty/v6/table"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var ErrNoFitCandidate = errors.New("no candidate could be evaluated")

// Fitness trains with params and scores the result. Higher is better.
type Fitness func(ctx context.Context, params model.Params) (float64, error)

type Config struct {
	PopulationSize int
	Generations    int
	RetainRate     float64
	MutationRate   float64
	EliteCount     int
	Workers        int
	Seed           uint64

	// Optional outputs.
	Output   io.Writer
	CSV      *csv.Writer
	Progress progress.Writer
}

func (c Config) workers() int {
	n := c.Workers
	if n <= 0 {
		n = runtime.NumCPU() - 1
	}
	return max(1, min(n, c.PopulationSize))
}

func worker(ctx context.Context, base model.Params, fitness Fitness, tracker *progress.Tracker, candidates <-chan Candidate, results chan<- Candidate, wg *sync.WaitGroup) {
	defer wg.Done()
	for c := range candidates {
		if err := ctx.Err(); err != nil {
			c.Fitness, c.Err = math.Inf(-1), err
		} else if f, err := fitness(ctx, c.Params(base)); err != nil {
			c.Fitness, c.Err = math.Inf(-1), err
		} else {
			c.Fitness = f
		}
		if tracker != nil {
			tracker.Increment(1)
		}
		results <- c
	}
}

func evaluate(ctx context.Context, cfg Config, base model.Params, fitness Fitness, gen int, population []Candidate) []Candidate {
	var tracker *progress.Tracker
	if cfg.Progress != nil {
		tracker = &progress.Tracker{
			Message: fmt.Sprintf("Evaluating generation %d", gen),
			Total:   int64(len(population)),
			Units:   progress.UnitsDefault,
		}
		cfg.Progress.AppendTracker(tracker)
		tracker.Start()
	}

	candidates := make(chan Candidate, len(population))
	results := make(chan Candidate, len(population))
	for _, c := range population {
		candidates <- c
	}
	close(candidates)

	var wg sync.WaitGroup
	for range cfg.workers() {
		wg.Add(1)
		go worker(ctx, base, fitness, tracker, candidates, results, &wg)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]Candidate, 0, len(population))
	for c := range results {
		out = append(out, c)
	}
	if tracker != nil {
		tracker.MarkAsDone()
	}

	slices.SortStableFunc(out, func(a, b Candidate) int {
		switch {
		case a.Fitness > b.Fitness:
			return -1
		case a.Fitness < b.Fitness:
			return 1
		}
		return 0
	})
	return out
}

// Search runs a genetic search seeded with base and returns the fittest
// candidate evaluated in any generation.
func Search(ctx context.Context, cfg Config, base model.Params, fitness Fitness) (Candidate, error) {
	if cfg.PopulationSize < 1 || cfg.Generations < 1 {
		return Candidate{}, fmt.Errorf("population and generations must be positive")
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5851f42d4c957f2d))

	if cfg.CSV != nil {
		if err := WriteCSVHeader(cfg.CSV); err != nil {
			return Candidate{}, fmt.Errorf("error writing csv: %w", err)
		}
	}

	population := make([]Candidate, cfg.PopulationSize)
	population[0] = newCandidate(base)
	for i := 1; i < cfg.PopulationSize; i++ {
		population[i] = newCandidate(base)
		randomize(&population[i], rng, 25)
	}

	best := Candidate{Fitness: math.Inf(-1)}
	for gen := range cfg.Generations {
		started := time.Now()

		evaluated := evaluate(ctx, cfg, base, fitness, gen, population)
		if err := ctx.Err(); err != nil {
			return best, err
		}

		for _, c := range evaluated {
			if c.Err != nil {
				log.Printf("generation %d: candidate failed: %v", gen, c.Err)
			}
		}
		if evaluated[0].Err == nil && evaluated[0].Fitness > best.Fitness {
			best = evaluated[0]
		}

		if cfg.Output != nil {
			WriteSummary(cfg.Output, fmt.Sprintf("Generation %d - Summary", gen), evaluated, base)
			params := best.Params(base)
			params.Write(cfg.Output, fmt.Sprintf("Generation %d - Best Candidate", gen))
		}
		if cfg.CSV != nil {
			if err := WriteCSVRow(cfg.CSV, gen, started, time.Now(), evaluated, best, base); err != nil {
				return best, fmt.Errorf("error writing csv: %w", err)
			}
		}

		if gen == cfg.Generations-1 {
			break
		}

		population = selection(rng, evaluated, cfg.RetainRate, cfg.EliteCount)
		for len(population) < cfg.PopulationSize {
			p1 := population[rng.IntN(len(population))]
			p2 := population[rng.IntN(len(population))]
			child := crossover(rng, p1, p2)
			mutate(rng, &child, cfg.MutationRate)
			population = append(population, child)
		}
		population = population[:cfg.PopulationSize]
	}

	if math.IsInf(best.Fitness, -1) {
		return best, ErrNoFitCandidate
	}
	return best, nil
}

type summary struct {
	Mean, Min, P25, Median, P75, Max, StdDev float64
}

func summarize(values []float64) summary {
	if len(values) == 0 {
		return summary{}
	}
	sorted := append([]float64{}, values...)
	slices.Sort(sorted)
	s := summary{
		Mean:   stat.Mean(sorted, nil),
		Min:    floats.Min(sorted),
		P25:    stat.Quantile(0.25, stat.Empirical, sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P75:    stat.Quantile(0.75, stat.Empirical, sorted, nil),
		Max:    floats.Max(sorted),
	}
	if len(sorted) > 1 {
		s.StdDev = stat.StdDev(sorted, nil)
	}
	return s
}

func (s summary) row(name string, format string) table.Row {
	f := func(v float64) string { return fmt.Sprintf(format, v) }
	return table.Row{name, f(s.Mean), f(s.Min), f(s.P25), f(s.Median), f(s.P75), f(s.Max), fmt.Sprintf("%0.6f", s.StdDev)}
}

type columns struct {
	fitness, learnRate, l2Penalty, dropoutRate, discount, hiddenSize []float64
}

func collect(population []Candidate, base model.Params) columns {
	var c columns
	for _, p := range population {
		if p.Err != nil {
			continue
		}
		params := p.Params(base)
		c.fitness = append(c.fitness, p.Fitness)
		c.learnRate = append(c.learnRate, params.LearnRate)
		c.l2Penalty = append(c.l2Penalty, params.L2Penalty)
		c.dropoutRate = append(c.dropoutRate, params.DropoutRate)
		c.discount = append(c.discount, params.Discount)
		c.hiddenSize = append(c.hiddenSize, float64(params.HiddenSize))
	}
	return c
}

func WriteSummary(w io.Writer, title string, population []Candidate, base model.Params) {
	c := collect(population, base)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.AppendHeader(table.Row{"", "MEAN", "MIN", "25TH", "MEDIAN", "75TH", "MAX", "STDDEV"})
	t.AppendRow(summarize(c.fitness).row("Fitness", "%0.4f"))
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		summarize(c.learnRate).row("Learn Rate", "%0.6f"),
		summarize(c.l2Penalty).row("L2 Penalty", "%0.6f"),
		summarize(c.dropoutRate).row("Dropout Rate", "%0.4f"),
		summarize(c.discount).row("Discount", "%0.4f"),
		summarize(c.hiddenSize).row("Hidden Size", "%0.0f"),
	})
	t.AppendFooter(table.Row{"Failed", fmt.Sprintf("%d", len(population)-len(c.fitness))})
	t.Render()
}
