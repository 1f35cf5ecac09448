package monitor

import (
	"time"

	"github.com/ternarybob/pipewatch/internal/models"
)

// View is the derived, render-ready state of one monitor. It is a value;
// later changes to the monitor never alter a View already handed out.
type View struct {
	Kind              models.JobKind `json:"kind" yaml:"kind"`
	Title             string         `json:"title" yaml:"title"`
	Phase             Phase          `json:"phase" yaml:"phase"`
	Label             string         `json:"label" yaml:"label"`
	Color             string         `json:"color" yaml:"color"`
	Percent           int            `json:"percent" yaml:"percent"`
	RawProgress       float64        `json:"raw_progress" yaml:"raw_progress"`
	Processed         int            `json:"processed" yaml:"processed"`
	Total             int            `json:"total" yaml:"total"`
	Produced          int            `json:"produced" yaml:"produced"`
	UnitLabel         string         `json:"unit_label" yaml:"unit_label"`
	ProducedLabel     string         `json:"produced_label" yaml:"produced_label"`
	CurrentUnit       string         `json:"current_unit,omitempty" yaml:"current_unit,omitempty"`
	StartedAt         *time.Time     `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	EndedAt           *time.Time     `json:"ended_at,omitempty" yaml:"ended_at,omitempty"`
	ElapsedSeconds    int64          `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	ErrorMessage      string         `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	MonitoringError   string         `json:"monitoring_error,omitempty" yaml:"monitoring_error,omitempty"`
	CanResume         bool           `json:"can_resume" yaml:"can_resume"`
	AllowFreshRestart bool           `json:"allow_fresh_restart" yaml:"allow_fresh_restart"`
	IsPolling         bool           `json:"is_polling" yaml:"is_polling"`
	IsSubmitting      bool           `json:"is_submitting" yaml:"is_submitting"`
	IsRefreshing      bool           `json:"is_refreshing" yaml:"is_refreshing"`
	Extra             map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
	Revision          uint64         `json:"revision" yaml:"revision"` // Increases with every state change of the monitor
}

// Running reports whether the cached snapshot says the job is running
func (v View) Running() bool {
	return v.Phase == PhaseActive
}

// Elapsed returns the run duration
func (v View) Elapsed() time.Duration {
	return time.Duration(v.ElapsedSeconds) * time.Second
}

// deriveView builds the view of a state snapshot
func deriveView(spec models.JobKindSpec, state State, optimistic bool, revision uint64, now time.Time) View {
	status := state.Status
	phase := DerivePhase(status)
	if optimistic && phase != PhaseActive {
		phase = PhaseActive
	}

	v := View{
		Kind:              spec.Kind,
		Title:             spec.Title,
		Phase:             phase,
		Label:             phase.Label(),
		Color:             phase.Color(),
		UnitLabel:         spec.UnitLabel,
		ProducedLabel:     spec.ProducedLabel,
		AllowFreshRestart: spec.AllowFreshRestart,
		MonitoringError:   state.MonitoringError,
		IsPolling:         state.IsPolling,
		IsSubmitting:      state.IsSubmitting,
		IsRefreshing:      state.IsRefreshing,
		Revision:          revision,
	}

	if status == nil {
		return v
	}

	v.Percent = status.Percent()
	v.RawProgress = status.Progress
	v.Processed = status.ProcessedUnits
	v.Total = status.TotalUnits
	v.Produced = status.ProducedCount
	v.CurrentUnit = status.CurrentUnit()
	v.StartedAt = status.StartTime.TimePtr()
	v.EndedAt = status.EndTime.TimePtr()
	v.ErrorMessage = status.ErrorText()
	v.CanResume = status.CanResume && !status.IsRunning
	v.Extra = status.Extra

	if v.StartedAt != nil {
		end := v.EndedAt
		if end == nil && status.IsRunning {
			end = &now
		}
		if end != nil && end.After(*v.StartedAt) {
			v.ElapsedSeconds = int64(end.Sub(*v.StartedAt) / time.Second)
		}
	}

	return v
}
