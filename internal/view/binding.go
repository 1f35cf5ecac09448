package view

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/pipewatch/internal/models"
	"github.com/ternarybob/pipewatch/internal/monitor"
)

// ErrControlUnavailable is returned when a pressed control is hidden or
// disabled. The monitor is not touched.
var ErrControlUnavailable = errors.New("control unavailable")

// Controller is the part of a job monitor a binding drives
type Controller interface {
	Kind() models.JobKind
	View() monitor.View
	Start(ctx context.Context, resume bool) (*models.StartResponse, error)
	Stop(ctx context.Context) (*models.StopResponse, error)
	StopWatching()
	Refresh(ctx context.Context) error
}

// Result describes the outcome of a pressed control
type Result struct {
	Action   Action              `json:"action" yaml:"action"`
	Accepted bool                `json:"accepted" yaml:"accepted"`
	Outcome  models.StartOutcome `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Message  string              `json:"message,omitempty" yaml:"message,omitempty"`
	View     monitor.View        `json:"view" yaml:"view"`
}

// Binding routes control presses of one job panel to its monitor
type Binding struct {
	ctrl Controller
}

// NewBinding creates a binding for ctrl
func NewBinding(ctrl Controller) *Binding {
	return &Binding{ctrl: ctrl}
}

// Kind returns the bound job kind
func (b *Binding) Kind() models.JobKind {
	return b.ctrl.Kind()
}

// View returns the current view
func (b *Binding) View() monitor.View {
	return b.ctrl.View()
}

// Controls returns the controls for the current view
func (b *Binding) Controls() Controls {
	return ComputeControls(b.ctrl.View())
}

// Press performs action if its control is available
func (b *Binding) Press(ctx context.Context, action Action) (*Result, error) {
	control := b.Controls().Get(action)
	if !control.Available() {
		return nil, fmt.Errorf("%s %s: %w", b.ctrl.Kind(), action, ErrControlUnavailable)
	}

	result := &Result{Action: action}

	switch action {
	case ActionStart, ActionFresh, ActionResume:
		resp, err := b.ctrl.Start(ctx, action == ActionResume)
		if err != nil {
			return nil, err
		}
		result.Accepted = resp.Accepted()
		result.Outcome = resp.Status
		result.Message = resp.Message

	case ActionStop:
		resp, err := b.ctrl.Stop(ctx)
		if err != nil {
			return nil, err
		}
		result.Accepted = true
		result.Message = resp.Message

	case ActionUnwatch:
		b.ctrl.StopWatching()
		result.Accepted = true

	case ActionRefresh:
		if err := b.ctrl.Refresh(ctx); err != nil {
			return nil, err
		}
		result.Accepted = true

	default:
		return nil, fmt.Errorf("%s %s: %w", b.ctrl.Kind(), action, ErrControlUnavailable)
	}

	result.View = b.ctrl.View()
	return result, nil
}

// StartOrResume presses resume when the run is resumable and start otherwise
func (b *Binding) StartOrResume(ctx context.Context) (*Result, error) {
	if b.Controls().Get(ActionResume).Visible {
		return b.Press(ctx, ActionResume)
	}
	return b.Press(ctx, ActionStart)
}
