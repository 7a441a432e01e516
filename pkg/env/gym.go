package env

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/grexie/reinforce/pkg/model"
)

var ErrUnsupportedSpace = errors.New("unsupported space")

type gymSpace struct {
	Name  string    `json:"name"`
	N     int       `json:"n"`
	Shape []int     `json:"shape"`
	Low   []float64 `json:"low"`
	High  []float64 `json:"high"`
}

type gymSpaceResponse struct {
	Info gymSpace `json:"info"`
}

type gymCreateResponse struct {
	InstanceID string `json:"instance_id"`
}

type gymResetResponse struct {
	Observation []float64 `json:"observation"`
}

type gymStepRequest struct {
	Action any  `json:"action"`
	Render bool `json:"render"`
}

type gymStepResponse struct {
	Observation []float64 `json:"observation"`
	Reward      float64   `json:"reward"`
	Done        bool      `json:"done"`
}

// GymClient drives a remote environment served by gym-http-api.
type GymClient struct {
	client      *resty.Client
	instanceID  string
	observation gymSpace
	action      gymSpace
}

func NewGymClient(ctx context.Context, baseURL string, envID string) (*GymClient, error) {
	g := &GymClient{
		client: resty.New().
			SetBaseURL(strings.TrimSuffix(baseURL, "/")).
			SetHeader("Content-Type", "application/json"),
	}

	var created gymCreateResponse
	if err := g.do(ctx, resty.MethodPost, "/v1/envs/", map[string]string{"env_id": envID}, &created); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", envID, err)
	}
	g.instanceID = created.InstanceID

	var action gymSpaceResponse
	if err := g.do(ctx, resty.MethodGet, g.path("action_space"), nil, &action); err != nil {
		return nil, fmt.Errorf("failed to read action space: %w", err)
	}
	g.action = action.Info
	if g.action.Name != "Discrete" && g.action.Name != "Box" {
		return nil, fmt.Errorf("%w: action space %s", ErrUnsupportedSpace, g.action.Name)
	}

	var observation gymSpaceResponse
	if err := g.do(ctx, resty.MethodGet, g.path("observation_space"), nil, &observation); err != nil {
		return nil, fmt.Errorf("failed to read observation space: %w", err)
	}
	g.observation = observation.Info
	if g.observation.Name != "Box" && g.observation.Name != "Discrete" {
		return nil, fmt.Errorf("%w: observation space %s", ErrUnsupportedSpace, g.observation.Name)
	}

	return g, nil
}

func (g *GymClient) path(op string) string {
	return fmt.Sprintf("/v1/envs/%s/%s/", g.instanceID, op)
}

func (g *GymClient) do(ctx context.Context, method string, url string, body any, result any) error {
	req := g.client.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("api error response: %s - %s", resp.Status(), string(resp.Body()))
	}
	return nil
}

func (g *GymClient) InstanceID() string {
	return g.instanceID
}

// ObservationSize is the flattened observation length. Discrete observations
// are one-hot encoded.
func (g *GymClient) ObservationSize() int {
	if g.observation.Name == "Discrete" {
		return g.observation.N
	}
	return model.Prod(g.observation.Shape)
}

func (g *GymClient) Actions() map[string]model.ActionSpec {
	if g.action.Name == "Discrete" {
		return map[string]model.ActionSpec{
			ActionName: {Type: model.DistributionCategorical, NumActions: g.action.N},
		}
	}
	return map[string]model.ActionSpec{
		ActionName: {Type: model.DistributionGaussian, Shape: []int{model.Prod(g.action.Shape)}},
	}
}

func (g *GymClient) encodeObservation(observation []float64) ([]float64, error) {
	if g.observation.Name != "Discrete" {
		if len(observation) != g.ObservationSize() {
			return nil, fmt.Errorf("observation has %d values, want %d", len(observation), g.ObservationSize())
		}
		return observation, nil
	}
	if len(observation) != 1 {
		return nil, fmt.Errorf("discrete observation has %d values", len(observation))
	}
	out := make([]float64, g.observation.N)
	if i := int(observation[0]); i >= 0 && i < len(out) {
		out[i] = 1
	}
	return out, nil
}

func (g *GymClient) Reset(ctx context.Context) ([]float64, error) {
	var resp gymResetResponse
	if err := g.do(ctx, resty.MethodPost, g.path("reset"), nil, &resp); err != nil {
		return nil, fmt.Errorf("reset failed: %w", err)
	}
	return g.encodeObservation(resp.Observation)
}

// Step sends a discrete action as an integer and a box action as a list,
// clipped to the bounds the server reported.
func (g *GymClient) Step(ctx context.Context, actions map[string][]float64) ([]float64, float64, bool, error) {
	a, ok := actions[ActionName]
	if !ok || len(a) == 0 {
		return nil, 0, false, fmt.Errorf("%w: %s", ErrMissingAction, ActionName)
	}

	req := gymStepRequest{}
	if g.action.Name == "Discrete" {
		req.Action = int(a[0])
	} else {
		clipped := make([]float64, len(a))
		for i, v := range a {
			if i < len(g.action.Low) && v < g.action.Low[i] {
				v = g.action.Low[i]
			}
			if i < len(g.action.High) && v > g.action.High[i] {
				v = g.action.High[i]
			}
			clipped[i] = v
		}
		req.Action = clipped
	}

	var resp gymStepResponse
	if err := g.do(ctx, resty.MethodPost, g.path("step"), req, &resp); err != nil {
		return nil, 0, false, fmt.Errorf("step failed: %w", err)
	}
	observation, err := g.encodeObservation(resp.Observation)
	if err != nil {
		return nil, 0, false, err
	}
	return observation, resp.Reward, resp.Done, nil
}

func (g *GymClient) Close() error {
	return g.do(context.Background(), resty.MethodPost, g.path("close"), nil, nil)
}
