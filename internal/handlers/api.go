package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pipewatch/internal/common"
)

type APIHandler struct {
	logger     arbor.ILogger
	instanceID string
	kinds      func() int
}

// NewAPIHandler creates the system endpoints. kinds reports the number of
// monitored job kinds and may be nil.
func NewAPIHandler(logger arbor.ILogger, instanceID string, kinds func() int) *APIHandler {
	return &APIHandler{
		logger:     logger,
		instanceID: instanceID,
		kinds:      kinds,
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"build":      common.GetBuild(),
		"git_commit": common.GetGitCommit(),
	})
}

// HealthHandler returns health check status
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	body := map[string]interface{}{
		"status":      "ok",
		"instance_id": h.instanceID,
		"goroutines":  common.GetGoroutineCount(),
	}
	if h.kinds != nil {
		body["kinds"] = h.kinds()
	}
	WriteJSON(w, http.StatusOK, body)
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
