package rollout

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/progress"
)

type Environment interface {
	Reset(ctx context.Context) ([]float64, error)
	Step(ctx context.Context, actions map[string][]float64) ([]float64, float64, bool, error)
}

type Policy interface {
	Act(states [][]float64, deterministic bool) (map[string][][]float64, error)
}

type Collector struct {
	Env      Environment
	Policy   Policy
	Run      string
	MaxSteps int

	// Deterministic selects the distribution mode instead of sampling.
	Deterministic bool
}

// Episode plays one episode until the environment reports a terminal state or
// MaxSteps is reached, in which case the last transition is marked terminal.
func (c *Collector) Episode(ctx context.Context, index int) (Episode, error) {
	e := Episode{Run: c.Run, Index: index}

	state, err := c.Env.Reset(ctx)
	if err != nil {
		return e, fmt.Errorf("reset failed: %w", err)
	}

	for step := 0; c.MaxSteps <= 0 || step < c.MaxSteps; step++ {
		select {
		case <-ctx.Done():
			return e, ctx.Err()
		default:
		}

		acts, err := c.Policy.Act([][]float64{state}, c.Deterministic)
		if err != nil {
			return e, fmt.Errorf("policy failed at step %d: %w", step, err)
		}

		actions := make(map[string][]float64, len(acts))
		for name, rows := range acts {
			actions[name] = rows[0]
		}

		next, reward, done, err := c.Env.Step(ctx, actions)
		if err != nil {
			return e, fmt.Errorf("step %d failed: %w", step, err)
		}

		e.Transitions = append(e.Transitions, Transition{
			State:     state,
			Actions:   actions,
			Terminal:  done,
			Reward:    reward,
			NextState: next,
		})

		if done {
			return e, nil
		}
		state = next
	}

	if len(e.Transitions) > 0 {
		e.Transitions[len(e.Transitions)-1].Terminal = true
	}
	return e, nil
}

// Collect plays count episodes starting at index start. When store is
// non-nil every episode is persisted as soon as it completes.
func (c *Collector) Collect(ctx context.Context, pw progress.Writer, store *Store, start, count int) ([]Episode, error) {
	var tracker *progress.Tracker
	if pw != nil {
		tracker = &progress.Tracker{
			Message: "Collecting episodes",
			Total:   int64(count),
			Units:   progress.UnitsDefault,
		}
		pw.AppendTracker(tracker)
		tracker.Start()
	}

	out := make([]Episode, 0, count)
	for i := range count {
		e, err := c.Episode(ctx, start+i)
		if err != nil {
			if tracker != nil {
				tracker.MarkAsErrored()
			}
			return out, err
		}
		if store != nil {
			if err := store.Put(e); err != nil {
				return out, err
			}
		}
		out = append(out, e)
		if tracker != nil {
			tracker.Increment(1)
		}
	}

	if tracker != nil {
		tracker.MarkAsDone()
	}
	return out, nil
}
