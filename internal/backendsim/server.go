// Package backendsim is an in-memory collection backend serving the status,
// start and stop endpoints of every job kind. It backs `pipewatch simulate`
// and the HTTP tests of the client side.
package backendsim

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pipewatch/internal/common"
	"github.com/ternarybob/pipewatch/internal/models"
)

// Config controls the simulated jobs
type Config struct {
	// StepDelay is the time spent per unit. Zero disables the background
	// workers; jobs then only advance through Advance.
	StepDelay   time.Duration
	TotalUnits  int
	Location    *time.Location          // Calendar for the once-per-day rule
	OncePerDay  map[models.JobKind]bool // Kinds limited to one completed run per day
	FailAtUnits map[models.JobKind]int  // Unit index at which a kind's run fails
	Kinds       []models.JobKindSpec    // Served kinds; defaults to the catalog
	Clock       func() time.Time
}

// ConfigFromSettings converts the [simulator] section
func ConfigFromSettings(s common.SimulatorConfig, logger arbor.ILogger) Config {
	loc, err := time.LoadLocation(s.Location)
	if err != nil || s.Location == "" {
		if logger != nil && s.Location != "" {
			logger.Warn().Err(err).Str("location", s.Location).Msg("Unknown simulator location, using UTC")
		}
		loc = time.UTC
	}

	cfg := Config{
		StepDelay:   common.ParseDurationOr(s.StepDelay, 200*time.Millisecond),
		TotalUnits:  s.TotalUnits,
		Location:    loc,
		OncePerDay:  make(map[models.JobKind]bool),
		FailAtUnits: make(map[models.JobKind]int),
	}
	for _, kind := range s.OncePerDay {
		cfg.OncePerDay[models.JobKind(kind)] = true
	}
	for kind, unit := range s.FailAtUnits {
		cfg.FailAtUnits[models.JobKind(kind)] = unit
	}
	return cfg
}

// Server simulates the backend of every kind
type Server struct {
	cfg    Config
	logger arbor.ILogger
	mu     sync.Mutex
	jobs   map[models.JobKind]*job
	specs  map[string]models.JobKindSpec // Keyed by base path
	closed bool
}

// job is the server-side state of one kind
type job struct {
	spec          models.JobKindSpec
	running       bool
	processed     int
	total         int
	produced      int
	current       string
	startTime     *time.Time
	endTime       *time.Time
	errorMessage  *string
	cursor        int // Resume position of an interrupted run
	stopRequested bool
	lastDoneDay   string
	done          chan struct{} // Closed when the worker of the current run exits
}

// New creates a simulator
func New(cfg Config, logger arbor.ILogger) *Server {
	if cfg.TotalUnits <= 0 {
		cfg.TotalUnits = 50
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = models.AllJobKinds()
	}
	if logger == nil {
		logger = arbor.NewLogger()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		jobs:   make(map[models.JobKind]*job),
		specs:  make(map[string]models.JobKindSpec),
	}
	for _, spec := range cfg.Kinds {
		s.jobs[spec.Kind] = &job{spec: spec}
		s.specs[strings.TrimRight(spec.BasePath, "/")] = spec
	}
	return s
}

// ServeHTTP routes <base>/status, <base>/start and <base>/stop
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	idx := strings.LastIndex(r.URL.Path, "/")
	if idx <= 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not Found"})
		return
	}
	spec, ok := s.specs[r.URL.Path[:idx]]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not Found"})
		return
	}

	switch action := r.URL.Path[idx+1:]; {
	case action == "status" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.Status(spec.Kind))
	case action == "start" && r.Method == http.MethodPost:
		var req models.StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid request body"})
			return
		}
		writeJSON(w, http.StatusOK, s.Start(spec.Kind, req))
	case action == "stop" && r.Method == http.MethodPost:
		writeJSON(w, http.StatusOK, s.Stop(spec.Kind))
	case action == "status" || action == "start" || action == "stop":
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"detail": "Method Not Allowed"})
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not Found"})
	}
}

// Status returns the current snapshot of kind
func (s *Server) Status(kind models.JobKind) *models.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[kind]
	if !ok {
		return &models.JobStatus{}
	}
	return j.snapshot()
}

// Start launches or resumes a run
func (s *Server) Start(kind models.JobKind, req models.StartRequest) models.StartResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[kind]
	if !ok || s.closed {
		return models.StartResponse{Status: "unavailable", Message: "작업을 시작할 수 없습니다"}
	}

	if j.running {
		return models.StartResponse{
			Status:  models.StartOutcomeRunning,
			Message: fmt.Sprintf("%s 작업이 이미 실행 중입니다", j.spec.Title),
		}
	}

	now := s.cfg.Clock()
	resume := req.Resume && j.cursor > 0 && j.cursor < j.total
	if !resume && s.cfg.OncePerDay[kind] && j.lastDoneDay == s.day(now) {
		return models.StartResponse{
			Status:  models.StartOutcomeAlreadyCollectedToday,
			Message: fmt.Sprintf("오늘 이미 %s을(를) 완료했습니다. 내일 다시 시도해주세요.", j.spec.Title),
		}
	}

	if resume {
		j.processed = j.cursor
	} else {
		j.processed = 0
		j.produced = 0
		j.total = s.cfg.TotalUnits
	}
	j.running = true
	j.stopRequested = false
	j.errorMessage = nil
	j.endTime = nil
	j.current = ""
	j.startTime = &now
	j.done = make(chan struct{})

	s.logger.Info().
		Str("kind", string(kind)).
		Bool("resume", resume).
		Int("from_unit", j.processed).
		Int("total", j.total).
		Msg("Simulated job started")

	if s.cfg.StepDelay > 0 {
		done := j.done
		common.SafeGo(s.logger, "backendsim-"+string(kind), func() {
			s.work(kind, done)
		})
	}

	message := fmt.Sprintf("%s 작업을 시작했습니다", j.spec.Title)
	if resume {
		message = fmt.Sprintf("%s 작업을 %d번째 항목부터 재개했습니다", j.spec.Title, j.processed+1)
	}
	return models.StartResponse{Status: models.StartOutcomeStarted, Message: message}
}

// Stop requests cooperative cancellation; the run ends at the next unit
func (s *Server) Stop(kind models.JobKind) models.StopResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[kind]
	if !ok || !j.running {
		return models.StopResponse{Message: "실행 중인 작업이 없습니다"}
	}
	j.stopRequested = true

	s.logger.Info().Str("kind", string(kind)).Msg("Simulated job stop requested")
	return models.StopResponse{Message: "중지 요청을 보냈습니다. 현재 항목 처리 후 중지됩니다."}
}

// Advance runs up to n steps of kind synchronously, stopping early when the
// run ends, and returns the resulting snapshot. A pending stop request is
// honoured by the first step.
func (s *Server) Advance(kind models.JobKind, n int) *models.JobStatus {
	for i := 0; i < n; i++ {
		if !s.step(kind) {
			break
		}
	}
	return s.Status(kind)
}

// Fail ends the current run of kind with message
func (s *Server) Fail(kind models.JobKind, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.jobs[kind]; ok && j.running {
		s.finishLocked(j, &message)
	}
}

// Close stops every run and waits for the workers to exit
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	var waits []chan struct{}
	for _, j := range s.jobs {
		if j.running {
			j.stopRequested = true
			if s.cfg.StepDelay > 0 && j.done != nil {
				waits = append(waits, j.done)
			}
		}
	}
	s.mu.Unlock()

	for _, done := range waits {
		<-done
	}
}

// work advances a run every StepDelay until it ends
func (s *Server) work(kind models.JobKind, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.StepDelay)
	defer ticker.Stop()

	for range ticker.C {
		if !s.step(kind) {
			return
		}
	}
}

// step processes one unit and reports whether the run continues
func (s *Server) step(kind models.JobKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[kind]
	if !ok || !j.running {
		return false
	}

	if j.stopRequested {
		j.cursor = j.processed
		s.finishLocked(j, nil)
		s.logger.Info().Str("kind", string(kind)).Int("cursor", j.cursor).Msg("Simulated job stopped")
		return false
	}

	j.processed++
	j.current = fmt.Sprintf("%s #%d", j.spec.UnitLabel, j.processed)
	j.produced += 1 + j.processed%3

	if failAt, ok := s.cfg.FailAtUnits[kind]; ok && failAt == j.processed {
		j.cursor = j.processed
		message := fmt.Sprintf("%s 처리 중 오류: upstream timeout", j.current)
		s.finishLocked(j, &message)
		s.logger.Warn().Str("kind", string(kind)).Str("error", message).Msg("Simulated job failed")
		return false
	}

	if j.processed >= j.total {
		j.cursor = 0
		s.finishLocked(j, nil)
		j.lastDoneDay = s.day(*j.endTime)
		s.logger.Info().Str("kind", string(kind)).Int("produced", j.produced).Msg("Simulated job completed")
		return false
	}

	return true
}

func (s *Server) finishLocked(j *job, errorMessage *string) {
	now := s.cfg.Clock()
	j.running = false
	j.stopRequested = false
	j.current = ""
	j.endTime = &now
	j.errorMessage = errorMessage
	if errorMessage != nil && j.cursor == 0 {
		j.cursor = j.processed
	}
}

func (s *Server) day(t time.Time) string {
	return t.In(s.cfg.Location).Format("2006-01-02")
}

func (j *job) snapshot() *models.JobStatus {
	status := &models.JobStatus{
		IsRunning:      j.running,
		TotalUnits:     j.total,
		ProcessedUnits: j.processed,
		ProducedCount:  j.produced,
		CanResume:      !j.running && j.cursor > 0 && j.cursor < j.total,
	}
	if j.total > 0 {
		status.Progress = float64(j.processed*100) / float64(j.total)
	}
	if j.current != "" {
		current := j.current
		status.CurrentUnitLabel = &current
	}
	if j.startTime != nil {
		status.StartTime = &models.Timestamp{Time: *j.startTime}
	}
	if j.endTime != nil {
		status.EndTime = &models.Timestamp{Time: *j.endTime}
	}
	if j.errorMessage != nil {
		message := *j.errorMessage
		status.ErrorMessage = &message
	}
	return status
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}
