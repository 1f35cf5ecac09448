package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pipewatch/internal/models"
	"github.com/ternarybob/pipewatch/internal/monitor"
	"github.com/ternarybob/pipewatch/internal/registry"
	"github.com/ternarybob/pipewatch/internal/services/scheduler"
	"github.com/ternarybob/pipewatch/internal/view"
)

// JobPanel is a job view together with the controls it offers
type JobPanel struct {
	View     monitor.View  `json:"view"`
	Controls view.Controls `json:"controls"`
}

// NewJobPanel derives the controls of v
func NewJobPanel(v monitor.View) JobPanel {
	return JobPanel{View: v, Controls: view.ComputeControls(v)}
}

// PressResponse is the body returned for a pressed control
type PressResponse struct {
	Status   string              `json:"status"` // "accepted" or "refused"
	Action   view.Action         `json:"action"`
	Outcome  models.StartOutcome `json:"outcome,omitempty"`
	Message  string              `json:"message,omitempty"`
	View     monitor.View        `json:"view"`
	Controls view.Controls       `json:"controls"`
}

// JobsHandler exposes the job panels and their controls
type JobsHandler struct {
	registry  *registry.Registry
	scheduler *scheduler.Service
	logger    arbor.ILogger
}

// NewJobsHandler creates the job control API; sched may be nil
func NewJobsHandler(reg *registry.Registry, sched *scheduler.Service, logger arbor.ILogger) *JobsHandler {
	return &JobsHandler{
		registry:  reg,
		scheduler: sched,
		logger:    logger,
	}
}

// ListJobsHandler handles GET /api/jobs
func (h *JobsHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	views := h.registry.Views()
	panels := make([]JobPanel, 0, len(views))
	for _, v := range views {
		panels = append(panels, NewJobPanel(v))
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  panels,
		"count": len(panels),
	})
}

// JobRoutes handles GET /api/jobs/{kind} and POST /api/jobs/{kind}/{action}
func (h *JobsHandler) JobRoutes(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r.URL.Path, "/api/jobs/")

	switch len(segments) {
	case 1:
		if !RequireMethod(w, r, "GET") {
			return
		}
		h.getJob(w, segments[0])
	case 2:
		if !RequireMethod(w, r, "POST") {
			return
		}
		h.press(w, r, segments[0], segments[1])
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

func (h *JobsHandler) getJob(w http.ResponseWriter, kind string) {
	entry, err := h.registry.Lookup(kind)
	if err != nil {
		WriteError(w, StatusForError(err), err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, NewJobPanel(entry.Binding.View()))
}

func (h *JobsHandler) press(w http.ResponseWriter, r *http.Request, kind, actionName string) {
	entry, err := h.registry.Lookup(kind)
	if err != nil {
		WriteError(w, StatusForError(err), err.Error())
		return
	}

	action, ok := view.ParseAction(actionName)
	if !ok {
		WriteError(w, http.StatusNotFound, "Unknown action: "+actionName)
		return
	}

	result, err := entry.Binding.Press(r.Context(), action)
	if err != nil {
		status := StatusForError(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error().Err(err).Str("kind", kind).Str("action", actionName).Msg("Job control failed")
		} else {
			h.logger.Warn().Err(err).Str("kind", kind).Str("action", actionName).Msg("Job control rejected")
		}
		WriteError(w, status, err.Error())
		return
	}

	resp := PressResponse{
		Status:   "accepted",
		Action:   result.Action,
		Outcome:  result.Outcome,
		Message:  result.Message,
		View:     result.View,
		Controls: view.ComputeControls(result.View),
	}
	if !result.Accepted {
		resp.Status = "refused"
	}

	h.logger.Info().
		Str("kind", kind).
		Str("action", actionName).
		Str("status", resp.Status).
		Msg("Job control pressed")

	WriteJSON(w, http.StatusOK, resp)
}

// ListSchedulesHandler handles GET /api/schedules
func (h *JobsHandler) ListSchedulesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	if h.scheduler == nil {
		WriteJSON(w, http.StatusOK, map[string]interface{}{"schedules": []scheduler.ScheduleStatus{}, "running": false})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"schedules": h.scheduler.Statuses(),
		"running":   h.scheduler.IsRunning(),
	})
}

// ScheduleRoutes handles POST /api/schedules/{kind}/{trigger|enable|disable}
func (h *JobsHandler) ScheduleRoutes(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	segments := pathSegments(r.URL.Path, "/api/schedules/")
	if len(segments) != 2 || h.scheduler == nil {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}
	kind := models.JobKind(segments[0])

	switch segments[1] {
	case "trigger":
		record, err := h.scheduler.TriggerNow(kind)
		if err != nil {
			WriteError(w, StatusForError(err), err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, record)
	case "enable", "disable":
		if err := h.scheduler.SetEnabled(kind, segments[1] == "enable"); err != nil {
			WriteError(w, StatusForError(err), err.Error())
			return
		}
		WriteSuccess(w, "Schedule "+segments[1]+"d for "+string(kind))
	default:
		WriteError(w, http.StatusNotFound, "Unknown schedule operation: "+segments[1])
	}
}
