package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/pipewatch/internal/models"
)

type statusResult struct {
	status *models.JobStatus
	err    error
	wait   chan struct{} // When set, GetStatus blocks until it is closed
}

// scriptedClient answers status reads from a queue. Once the queue is
// drained the last answer repeats.
type scriptedClient struct {
	mu          sync.Mutex
	kind        models.JobKind
	statuses    []statusResult
	last        statusResult
	startResp   *models.StartResponse
	startErr    error
	startWait   chan struct{}
	stopResp    *models.StopResponse
	stopErr     error
	statusCalls int
	startCalls  int
	stopCalls   int
	startReqs   []models.StartRequest
}

func newScriptedClient(kind models.JobKind, statuses ...statusResult) *scriptedClient {
	return &scriptedClient{
		kind:      kind,
		statuses:  statuses,
		startResp: &models.StartResponse{Status: models.StartOutcomeStarted, Message: "started"},
		stopResp:  &models.StopResponse{Message: "stop requested"},
	}
}

func (c *scriptedClient) Kind() models.JobKind {
	return c.kind
}

func (c *scriptedClient) GetStatus(ctx context.Context) (*models.JobStatus, error) {
	c.mu.Lock()
	c.statusCalls++
	var r statusResult
	if len(c.statuses) > 0 {
		r = c.statuses[0]
		c.statuses = c.statuses[1:]
		c.last = statusResult{status: r.status, err: r.err}
	} else {
		r = c.last
	}
	c.mu.Unlock()

	if r.status == nil && r.err == nil {
		r.status = idle()
	}

	if r.wait != nil {
		<-r.wait
	}
	return r.status.Clone(), r.err
}

func (c *scriptedClient) Start(ctx context.Context, req models.StartRequest) (*models.StartResponse, error) {
	c.mu.Lock()
	c.startCalls++
	c.startReqs = append(c.startReqs, req)
	wait := c.startWait
	resp, err := c.startResp, c.startErr
	c.mu.Unlock()

	if wait != nil {
		<-wait
	}
	return resp, err
}

func (c *scriptedClient) Stop(ctx context.Context) (*models.StopResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopCalls++
	return c.stopResp, c.stopErr
}

// push appends status reads to the script
func (c *scriptedClient) push(results ...statusResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses = append(c.statuses, results...)
}

func (c *scriptedClient) calls() (status, start, stop int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusCalls, c.startCalls, c.stopCalls
}

// manualScheduler fires timers only when Tick is called
type manualScheduler struct {
	mu      sync.Mutex
	handles []*manualHandle
}

type manualHandle struct {
	mu       sync.Mutex
	interval time.Duration
	fn       func()
	cancels  int
}

func (h *manualHandle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancels++
}

func (h *manualHandle) active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancels == 0
}

func (s *manualScheduler) Every(interval time.Duration, fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := &manualHandle{interval: interval, fn: fn}
	s.handles = append(s.handles, h)
	return h
}

// Tick fires every active timer once, synchronously
func (s *manualScheduler) Tick() {
	s.mu.Lock()
	handles := make([]*manualHandle, len(s.handles))
	copy(handles, s.handles)
	s.mu.Unlock()

	for _, h := range handles {
		if h.active() {
			h.fn()
		}
	}
}

func (s *manualScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, h := range s.handles {
		if h.active() {
			n++
		}
	}
	return n
}

func (s *manualScheduler) Created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

func (s *manualScheduler) handle(i int) *manualHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[i]
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []models.Notice
}

func (n *recordingNotifier) Notify(ctx context.Context, notice models.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *recordingNotifier) codes() []models.NoticeCode {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.NoticeCode, 0, len(n.notices))
	for _, notice := range n.notices {
		out = append(out, notice.Code)
	}
	return out
}

func (n *recordingNotifier) last() models.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notices) == 0 {
		return models.Notice{}
	}
	return n.notices[len(n.notices)-1]
}

type gateFunc func(string) bool

func (f gateFunc) HasCapability(name string) bool { return f(name) }

func allowAll() gateFunc { return func(string) bool { return true } }

func running(progress float64, processed, total int) *models.JobStatus {
	return &models.JobStatus{IsRunning: true, Progress: progress, ProcessedUnits: processed, TotalUnits: total}
}

func idle() *models.JobStatus {
	return &models.JobStatus{}
}

func ok(status *models.JobStatus) statusResult {
	return statusResult{status: status}
}
