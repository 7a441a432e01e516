package env

import (
	"context"
	"errors"

	"github.com/grexie/reinforce/pkg/model"
)

var (
	ErrMissingAction = errors.New("missing action")
	ErrClosed        = errors.New("environment closed")
)

// ActionName is the single action component environments in this package
// expose.
const ActionName = "action"

type Environment interface {
	Reset(ctx context.Context) ([]float64, error)
	Step(ctx context.Context, actions map[string][]float64) ([]float64, float64, bool, error)
	Close() error
	ObservationSize() int
	Actions() map[string]model.ActionSpec
}

// Spec describes the policy inputs and outputs e needs.
func Spec(e Environment) model.Spec {
	return model.Spec{
		StateShape: []int{e.ObservationSize()},
		Actions:    e.Actions(),
	}
}
