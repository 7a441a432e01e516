package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/grexie/reinforce/pkg/db"
	"github.com/grexie/reinforce/pkg/env"
	"github.com/grexie/reinforce/pkg/model"
	"github.com/grexie/reinforce/pkg/rollout"
	"github.com/grexie/reinforce/pkg/tune"
	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"gonum.org/v1/gonum/stat"
)

func loadEnv(filenames ...string) {
	for _, filename := range filenames {
		if s, err := os.Stat(filename); err == nil && !s.IsDir() {
			godotenv.Load(filename)
		}
	}
}

func envInt(name string, def int) int {
	if v, ok := os.LookupEnv(name); ok {
		if v, err := strconv.ParseInt(v, 10, 64); err != nil {
			log.Fatalf("error parsing env.%s: %v", name, err)
		} else {
			return int(v)
		}
	}
	return def
}

func envString(name string, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return def
}

func newProgressWriter() progress.Writer {
	pw := progress.NewWriter()
	pw.SetMessageLength(40)
	pw.SetNumTrackersExpected(2)
	pw.SetSortBy(progress.SortByPercentDsc)
	pw.SetStyle(progress.StyleDefault)
	pw.SetTrackerLength(15)
	pw.SetTrackerPosition(progress.PositionRight)
	pw.SetUpdateFrequency(time.Millisecond * 100)
	pw.Style().Colors = progress.StyleColorsExample
	pw.Style().Options.PercentFormat = "%2.0f%%"
	return pw
}

func stopProgressWriter(pw progress.Writer) {
	pw.Stop()
	for pw.IsRenderInProgress() {
		time.Sleep(100 * time.Millisecond)
	}
}

type trainer struct {
	store    *rollout.Store
	database *mongo.Database
	newEnv   func(ctx context.Context, seed uint64) (env.Environment, error)
}

// train runs params.Iterations updates of params.BatchEpisodes freshly
// collected episodes each.
func (t *trainer) train(ctx context.Context, pw progress.Writer, run string, params model.Params) (*model.Model, model.UpdateMetrics, error) {
	var last model.UpdateMetrics

	e, err := t.newEnv(ctx, params.Seed)
	if err != nil {
		return nil, last, fmt.Errorf("failed to create environment: %w", err)
	}
	defer e.Close()

	m, err := model.NewModel(params, env.Spec(e))
	if err != nil {
		return nil, last, fmt.Errorf("failed to create model: %w", err)
	}

	next := 0
	if t.store != nil {
		var previous *rollout.Episode
		if next, previous, err = t.store.Resume(run); err != nil {
			return nil, last, err
		}
		if previous != nil {
			log.Printf("resuming %s at episode %d, last stored return %0.2f", run, next, previous.Return())
		}
	}

	var tracker *progress.Tracker
	if pw != nil {
		tracker = &progress.Tracker{
			Message: fmt.Sprintf("Training %s", run),
			Total:   int64(params.Iterations),
			Units:   progress.UnitsDefault,
		}
		pw.AppendTracker(tracker)
		tracker.Start()
	}

	collector := &rollout.Collector{Env: e, Policy: m, Run: run, MaxSteps: params.MaxSteps}
	for i := range params.Iterations {
		episodes, err := collector.Collect(ctx, nil, t.store, next, params.BatchEpisodes)
		if err != nil {
			if tracker != nil {
				tracker.MarkAsErrored()
			}
			return m, last, err
		}
		next += len(episodes)

		if last, err = m.Update(rollout.NewBatch(episodes...)); err != nil {
			if tracker != nil {
				tracker.MarkAsErrored()
			}
			return m, last, fmt.Errorf("update %d failed: %w", i, err)
		}

		if t.database != nil {
			if err := db.SaveUpdate(t.database, ctx, db.NewUpdateRecord(run, last)); err != nil {
				log.Printf("failed to save update %d: %v", last.Step, err)
			}
		}
		if tracker != nil {
			tracker.Increment(1)
		}
	}

	if tracker != nil {
		tracker.MarkAsDone()
	}
	return m, last, nil
}

// evaluate plays episodes with the distribution mode and returns the mean
// undiscounted return.
func (t *trainer) evaluate(ctx context.Context, m *model.Model, episodes int) (float64, error) {
	params := m.Params()
	e, err := t.newEnv(ctx, params.Seed+1)
	if err != nil {
		return 0, err
	}
	defer e.Close()

	collector := &rollout.Collector{Env: e, Policy: m, MaxSteps: params.MaxSteps, Deterministic: true}
	played, err := collector.Collect(ctx, nil, nil, 0, episodes)
	if err != nil {
		return 0, err
	}
	returns := make([]float64, len(played))
	for i, e := range played {
		returns[i] = e.Return()
	}
	return stat.Mean(returns, nil), nil
}

func main() {
	if _, ok := os.LookupEnv("ENV"); !ok {
		env := "development"
		os.Setenv("ENV", env)
	}
	loadEnv(".env."+os.Getenv("ENV")+".local", ".env."+os.Getenv("ENV"), ".env.local", ".env")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	params := model.NewParamsFromDefaults()
	run := envString("REINFORCE_RUN", time.Now().UTC().Format("2006-01-02-15-04-05"))
	gymURL := envString("REINFORCE_GYM_URL", "")
	gymEnv := envString("REINFORCE_GYM_ENV", "CartPole-v1")
	cache := envString("REINFORCE_CACHE", filepath.Join(".cache", "rollouts.db"))
	evalEpisodes := envInt("REINFORCE_EVAL_EPISODES", 10)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Run Config")
	t.AppendRows([]table.Row{
		{"REINFORCE_RUN", run},
		{"REINFORCE_GYM_URL", gymURL},
		{"REINFORCE_GYM_ENV", gymEnv},
		{"REINFORCE_CACHE", cache},
		{"REINFORCE_EVAL_EPISODES", fmt.Sprintf("%d", evalEpisodes)},
	})
	t.Render()

	tr := &trainer{}

	if gymURL != "" {
		tr.newEnv = func(ctx context.Context, seed uint64) (env.Environment, error) {
			return env.NewGymClient(ctx, gymURL, gymEnv)
		}
	} else {
		tr.newEnv = func(ctx context.Context, seed uint64) (env.Environment, error) {
			return env.NewCartPole(seed, params.MaxSteps), nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(cache), 0755); err != nil {
		log.Fatalf("failed to create cache directory: %v", err)
	}
	if store, err := rollout.OpenStore(cache); err != nil {
		log.Fatalf("failed to open rollout store: %v", err)
	} else {
		tr.store = store
		defer store.Close()
	}

	if _, ok := os.LookupEnv("MONGO_URL"); ok {
		if database, err := db.ConnectMongo(ctx); err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		} else if err := db.EnsureUpdateIndexes(database, ctx); err != nil {
			log.Fatalf("failed to ensure indexes: %v", err)
		} else {
			tr.database = database
			defer database.Client().Disconnect(context.Background())
		}
	}

	if v, _ := strconv.ParseBool(os.Getenv("REINFORCE_TUNE")); v {
		tuneParams := params
		tuneParams.Iterations = envInt("REINFORCE_TUNE_ITERATIONS", max(1, params.Iterations/4))

		file, err := os.OpenFile(fmt.Sprintf("tune-%s.csv", run), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			log.Fatalf("failed to create tune csv: %v", err)
		}
		writer := csv.NewWriter(file)

		pw := newProgressWriter()
		go pw.Render()

		var trial atomic.Int64
		best, err := tune.Search(ctx, tune.Config{
			PopulationSize: envInt("REINFORCE_TUNE_POPULATION", 12),
			Generations:    envInt("REINFORCE_TUNE_GENERATIONS", 6),
			RetainRate:     0.3,
			MutationRate:   0.2,
			EliteCount:     2,
			Seed:           params.Seed,
			Output:         os.Stdout,
			CSV:            writer,
			Progress:       pw,
		}, tuneParams, func(ctx context.Context, p model.Params) (float64, error) {
			m, _, err := tr.train(ctx, nil, fmt.Sprintf("%s-tune-%d", run, trial.Add(1)), p)
			if err != nil {
				return 0, err
			}
			return tr.evaluate(ctx, m, evalEpisodes)
		})
		stopProgressWriter(pw)
		writer.Flush()
		file.Close()

		if err != nil {
			log.Fatalf("hyperparameter search failed: %v", err)
		}
		log.Printf("best candidate fitness %0.4f", best.Fitness)
		params = best.Params(params)
	}

	params.Write(os.Stdout, "Model Config")

	pw := newProgressWriter()
	go pw.Render()
	m, last, err := tr.train(ctx, pw, run, params)
	stopProgressWriter(pw)
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}
	last.Write(os.Stdout)

	if mean, err := tr.evaluate(ctx, m, evalEpisodes); err != nil {
		log.Fatalf("evaluation failed: %v", err)
	} else {
		log.Printf("%s: mean return over %d deterministic episodes %0.2f", run, evalEpisodes, mean)
	}
}
