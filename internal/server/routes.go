package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.app.JobsHandler.ListJobsHandler) // GET - every job panel
	mux.HandleFunc("/api/jobs/", s.app.JobsHandler.JobRoutes)      // GET /{kind}, POST /{kind}/{action}

	// API routes - Schedules
	mux.HandleFunc("/api/schedules", s.app.JobsHandler.ListSchedulesHandler) // GET - cron schedules
	mux.HandleFunc("/api/schedules/", s.app.JobsHandler.ScheduleRoutes)      // POST /{kind}/{trigger|enable|disable}

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/shutdown", s.ShutdownHandler) // Graceful shutdown endpoint (dev mode)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// ShutdownHandler asks the process to stop. Only available outside production.
func (s *Server) ShutdownHandler(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		http.MethodPost: func(w http.ResponseWriter, r *http.Request) {
			if s.app.Config.IsProduction() || s.app.RequestShutdown == nil {
				http.Error(w, "Not found", http.StatusNotFound)
				return
			}
			s.app.Logger.Warn().Str("remote", r.RemoteAddr).Msg("Shutdown requested via API")
			w.WriteHeader(http.StatusAccepted)
			s.app.RequestShutdown()
		},
	})
}
