package env

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/grexie/reinforce/pkg/model"
	"github.com/grexie/reinforce/pkg/rollout"
)

var (
	_ Environment         = (*CartPole)(nil)
	_ Environment         = (*GymClient)(nil)
	_ rollout.Environment = (*CartPole)(nil)
	_ rollout.Environment = (*GymClient)(nil)
)

func TestCartPoleFalls(t *testing.T) {
	c := NewCartPole(1, 500)
	ctx := context.Background()

	state, err := c.Reset(ctx)
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if len(state) != c.ObservationSize() {
		t.Fatalf("expected %d observations, got %d", c.ObservationSize(), len(state))
	}

	// pushing right forever tips the pole well before the step limit
	steps := 0
	for {
		_, reward, done, err := c.Step(ctx, map[string][]float64{ActionName: {1}})
		if err != nil {
			t.Fatalf("step failed: %v", err)
		}
		steps++
		if done {
			if reward != 0 {
				t.Fatalf("failing step should pay 0, got %f", reward)
			}
			break
		}
		if reward != 1 {
			t.Fatalf("surviving step should pay 1, got %f", reward)
		}
		if steps > 500 {
			t.Fatalf("episode did not end")
		}
	}
	if steps >= 100 {
		t.Fatalf("expected the pole to fall quickly, took %d steps", steps)
	}
}

func TestCartPoleStepLimit(t *testing.T) {
	c := NewCartPole(3, 5)
	ctx := context.Background()
	if _, err := c.Reset(ctx); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	for i := range 5 {
		_, reward, done, err := c.Step(ctx, map[string][]float64{ActionName: {float64(i % 2)}})
		if err != nil {
			t.Fatalf("step failed: %v", err)
		}
		if done != (i == 4) {
			t.Fatalf("step %d: done = %t", i, done)
		}
		if reward != 1 {
			t.Fatalf("step %d: reward = %f", i, reward)
		}
	}
}

func TestCartPoleErrors(t *testing.T) {
	c := NewCartPole(1, 0)
	ctx := context.Background()
	if _, _, _, err := c.Step(ctx, map[string][]float64{}); !errors.Is(err, ErrMissingAction) {
		t.Fatalf("expected ErrMissingAction, got %v", err)
	}
	if _, _, _, err := c.Step(ctx, map[string][]float64{ActionName: {2}}); err == nil {
		t.Fatalf("expected an invalid action error")
	}
	c.Close()
	if _, err := c.Reset(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestCartPoleSpec(t *testing.T) {
	spec := Spec(NewCartPole(1, 0))
	if spec.StateSize() != 4 {
		t.Fatalf("state size = %d", spec.StateSize())
	}
	if a := spec.Actions[ActionName]; a.Type != model.DistributionCategorical || a.NumActions != 2 {
		t.Fatalf("unexpected action spec %+v", a)
	}
}

type fakeGym struct {
	steps   int
	actions []any
	closed  bool
}

func (f *fakeGym) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(v); err != nil {
			t.Errorf("failed to encode response: %v", err)
		}
	}
	mux.HandleFunc("POST /v1/envs/{$}", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["env_id"] != "Pendulum-v1" {
			http.Error(w, "bad env", http.StatusBadRequest)
			return
		}
		reply(w, map[string]any{"instance_id": "abc"})
	})
	mux.HandleFunc("GET /v1/envs/abc/action_space/", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"info": map[string]any{"name": "Box", "shape": []int{1}, "low": []float64{-2}, "high": []float64{2}}})
	})
	mux.HandleFunc("GET /v1/envs/abc/observation_space/", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"info": map[string]any{"name": "Box", "shape": []int{3}}})
	})
	mux.HandleFunc("POST /v1/envs/abc/reset/", func(w http.ResponseWriter, r *http.Request) {
		f.steps = 0
		reply(w, map[string]any{"observation": []float64{1, 0, 0}})
	})
	mux.HandleFunc("POST /v1/envs/abc/step/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.actions = append(f.actions, body["action"])
		f.steps++
		reply(w, map[string]any{"observation": []float64{0, 1, 0}, "reward": -0.5, "done": f.steps >= 2, "info": map[string]any{}})
	})
	mux.HandleFunc("POST /v1/envs/abc/close/", func(w http.ResponseWriter, r *http.Request) {
		f.closed = true
	})
	return mux
}

func TestGymClient(t *testing.T) {
	fake := &fakeGym{}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	ctx := context.Background()
	g, err := NewGymClient(ctx, server.URL+"/", "Pendulum-v1")
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if g.InstanceID() != "abc" {
		t.Fatalf("instance id = %s", g.InstanceID())
	}
	if g.ObservationSize() != 3 {
		t.Fatalf("observation size = %d", g.ObservationSize())
	}
	if a := g.Actions()[ActionName]; a.Type != model.DistributionGaussian || a.Size() != 1 {
		t.Fatalf("unexpected action spec %+v", a)
	}

	if state, err := g.Reset(ctx); err != nil || len(state) != 3 || state[0] != 1 {
		t.Fatalf("reset returned %v, %v", state, err)
	}

	_, reward, done, err := g.Step(ctx, map[string][]float64{ActionName: {5}})
	if err != nil {
		t.Fatalf("step failed: %v", err)
	}
	if reward != -0.5 || done {
		t.Fatalf("unexpected step result %f %t", reward, done)
	}
	if _, _, done, err = g.Step(ctx, map[string][]float64{ActionName: {-1}}); err != nil || !done {
		t.Fatalf("expected the second step to finish, got %t %v", done, err)
	}

	first, ok := fake.actions[0].([]any)
	if !ok || len(first) != 1 || first[0].(float64) != 2 {
		t.Fatalf("action was not clipped to the box: %v", fake.actions[0])
	}

	if err := g.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !fake.closed {
		t.Fatalf("close was not sent")
	}
}

func TestGymClientError(t *testing.T) {
	server := httptest.NewServer((&fakeGym{}).handler(t))
	defer server.Close()

	if _, err := NewGymClient(context.Background(), server.URL, "Unknown-v0"); err == nil {
		t.Fatalf("expected an error for an unknown environment")
	}
}

func TestCollectCartPole(t *testing.T) {
	params := model.Params{
		LearnRate:    0.01,
		Clip:         1,
		HiddenSize:   8,
		HiddenLayers: 1,
		Activation:   model.ActivationTanh,
		Seed:         3,
	}
	c := NewCartPole(5, 20)
	m, err := model.NewModel(params, Spec(c))
	if err != nil {
		t.Fatalf("failed to create model: %v", err)
	}

	collector := &rollout.Collector{Env: c, Policy: m, Run: "cartpole", MaxSteps: 20}
	e, err := collector.Episode(context.Background(), 0)
	if err != nil {
		t.Fatalf("episode failed: %v", err)
	}
	if len(e.Transitions) == 0 || len(e.Transitions) > 20 {
		t.Fatalf("unexpected episode length %d", len(e.Transitions))
	}
	if !e.Transitions[len(e.Transitions)-1].Terminal {
		t.Fatalf("episode must end terminal")
	}
	if _, err := m.Update(rollout.NewBatch(e)); err != nil {
		t.Fatalf("update failed: %v", err)
	}
}
