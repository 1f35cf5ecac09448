// Package view binds a job monitor's derived state to console controls.
// It only consumes the monitor's public contract.
package view

import "github.com/ternarybob/pipewatch/internal/monitor"

// Action names a control a user can press
type Action string

const (
	ActionStart   Action = "start"   // Fresh start when no resumable run exists
	ActionResume  Action = "resume"  // Continue from the server's cursor
	ActionFresh   Action = "fresh"   // Fresh start while a resumable run exists, where the kind allows it
	ActionStop    Action = "stop"    // Request cooperative cancellation of the job
	ActionUnwatch Action = "unwatch" // Stop the client's polling only
	ActionRefresh Action = "refresh" // One out-of-band status read
)

// AllActions lists the actions in display order
func AllActions() []Action {
	return []Action{ActionStart, ActionResume, ActionFresh, ActionStop, ActionUnwatch, ActionRefresh}
}

// ParseAction validates an action name
func ParseAction(name string) (Action, bool) {
	for _, a := range AllActions() {
		if string(a) == name {
			return a, true
		}
	}
	return "", false
}

var actionLabels = map[Action]string{
	ActionStart:   "수집 시작",
	ActionResume:  "이어서 수집",
	ActionFresh:   "처음부터 다시 수집",
	ActionStop:    "수집 중지",
	ActionUnwatch: "모니터링 중지",
	ActionRefresh: "새로고침",
}

// Control is one button of a job panel
type Control struct {
	Action  Action `json:"action" yaml:"action"`
	Label   string `json:"label" yaml:"label"`
	Visible bool   `json:"visible" yaml:"visible"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// Available reports whether the control can be pressed
func (c Control) Available() bool {
	return c.Visible && c.Enabled
}

// Controls is the control set of a job panel in display order
type Controls []Control

// Get returns the control for action
func (cs Controls) Get(action Action) Control {
	for _, c := range cs {
		if c.Action == action {
			return c
		}
	}
	return Control{Action: action, Label: actionLabels[action]}
}

// ComputeControls derives the control set of a view.
//
// A resumable run replaces "start" with "resume". A fresh restart is offered
// next to it, under its own label, only for kinds that allow one.
func ComputeControls(v monitor.View) Controls {
	running := v.Running()
	resumable := v.CanResume && !running
	idle := !v.IsSubmitting

	controls := Controls{
		{Action: ActionStart, Visible: !running && !resumable, Enabled: idle},
		{Action: ActionResume, Visible: resumable, Enabled: idle},
		{Action: ActionFresh, Visible: resumable && v.AllowFreshRestart, Enabled: idle},
		{Action: ActionStop, Visible: running, Enabled: idle},
		{Action: ActionUnwatch, Visible: v.IsPolling, Enabled: true},
		{Action: ActionRefresh, Visible: true, Enabled: !v.IsRefreshing},
	}
	for i := range controls {
		controls[i].Label = actionLabels[controls[i].Action]
	}
	return controls
}
