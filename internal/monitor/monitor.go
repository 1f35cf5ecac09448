// Package monitor implements the client-side state machine of one job kind:
// start, resume and stop commands, the polling loop and reconciliation of
// server snapshots into a derived view.
//
// The backend is the only authority on whether a job is running. A monitor
// caches the last snapshot it was sent and replaces it wholesale on every
// successful read; it never merges or infers job state from its own commands.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pipewatch/internal/interfaces"
	"github.com/ternarybob/pipewatch/internal/models"
)

const (
	// DefaultPollInterval is the cadence of status reads while a job runs
	DefaultPollInterval = 2 * time.Second

	// DefaultRequestTimeout bounds a single status read or command
	DefaultRequestTimeout = 10 * time.Second
)

var (
	// ErrCapabilityDenied is returned when the gate refuses a command. No
	// request reaches the backend.
	ErrCapabilityDenied = errors.New("capability denied")

	// ErrCommandInFlight is returned while a start or stop is outstanding
	ErrCommandInFlight = errors.New("command already in flight")

	// ErrClosed is returned by commands on a closed monitor
	ErrClosed = errors.New("monitor closed")
)

// Config parameterizes a monitor for one job kind
type Config struct {
	Spec               models.JobKindSpec
	StartCapability    string // Defaults to Spec.StartCapability()
	StopCapability     string // Defaults to Spec.StopCapability()
	PollInterval       time.Duration
	RequestTimeout     time.Duration
	FailureNoticeAfter int            // Consecutive poll failures before a monitoring notice (default 1)
	Params             map[string]any // Kind-specific start parameters
}

// State is a copy of the client-owned monitor state
type State struct {
	Status              *models.JobStatus `json:"status" yaml:"status"`
	IsPolling           bool              `json:"is_polling" yaml:"is_polling"`
	IsSubmitting        bool              `json:"is_submitting" yaml:"is_submitting"`
	IsRefreshing        bool              `json:"is_refreshing" yaml:"is_refreshing"`
	MonitoringError     string            `json:"monitoring_error,omitempty" yaml:"monitoring_error,omitempty"`
	ConsecutiveFailures int               `json:"consecutive_failures" yaml:"consecutive_failures"`
}

// fetch origins, used for logging and attach decisions
const (
	originMount   = "mount"
	originRefresh = "refresh"
	originPoll    = "poll"
)

// Monitor owns the state of a single job kind. All methods are safe for
// concurrent use; monitors of different kinds share nothing.
type Monitor struct {
	cfg       Config
	client    interfaces.JobStatusClient
	gate      interfaces.CapabilityGate
	scheduler Scheduler
	notifier  interfaces.Notifier
	logger    arbor.ILogger
	now       func() time.Time

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu              sync.Mutex
	status          *models.JobStatus
	appliedSeq      uint64 // Sequence of the request that produced status
	nextSeq         uint64
	handle          Handle // Non-nil while polling
	pollGen         uint64 // Bumped whenever the timer is replaced or cleared
	pollInFlight    bool
	isSubmitting    bool
	isRefreshing    bool
	optimistic      bool // Start accepted, no snapshot reconciled since
	mounted         bool
	closed          bool
	monitoringErr   string
	failures        int
	failureNotified bool
	lastJobError    string
	revision        uint64
	listeners       []func(View)
}

// Option configures a Monitor
type Option func(*Monitor)

// WithScheduler sets the repeating-timer source
func WithScheduler(s Scheduler) Option {
	return func(m *Monitor) {
		m.scheduler = s
	}
}

// WithNotifier sets where user-facing notices are delivered
func WithNotifier(n interfaces.Notifier) Option {
	return func(m *Monitor) {
		m.notifier = n
	}
}

// WithLogger sets the logger
func WithLogger(logger arbor.ILogger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithClock overrides the time source used for notices and elapsed time
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// New creates a monitor. It performs no I/O until Mount.
func New(cfg Config, client interfaces.JobStatusClient, gate interfaces.CapabilityGate, opts ...Option) *Monitor {
	if cfg.StartCapability == "" {
		cfg.StartCapability = cfg.Spec.StartCapability()
	}
	if cfg.StopCapability == "" {
		cfg.StopCapability = cfg.Spec.StopCapability()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.FailureNoticeAfter <= 0 {
		cfg.FailureNoticeAfter = 1
	}

	m := &Monitor{
		cfg:    cfg,
		client: client,
		gate:   gate,
		logger: arbor.NewLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.scheduler == nil {
		m.scheduler = NewTickerScheduler(m.logger, "poll-"+string(cfg.Spec.Kind))
	}

	m.baseCtx, m.cancelBase = context.WithCancel(context.Background())
	return m
}

// Kind returns the job kind
func (m *Monitor) Kind() models.JobKind {
	return m.cfg.Spec.Kind
}

// Spec returns the kind definition the monitor was built with
func (m *Monitor) Spec() models.JobKindSpec {
	return m.cfg.Spec
}

// OnChange registers fn to receive the view after every state change.
// fn runs on the goroutine that caused the change and must not block.
func (m *Monitor) OnChange(fn func(View)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Mount performs the initial unconditional status read. Only the first call
// fetches; later calls are no-ops. A running job found here is polled.
func (m *Monitor) Mount(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.mounted {
		m.mu.Unlock()
		return nil
	}
	m.mounted = true
	m.mu.Unlock()

	m.logger.Debug().Str("kind", string(m.Kind())).Msg("Mounting job monitor")
	return m.fetch(ctx, originMount)
}

// Refresh performs one out-of-band status read, independent of the timer.
// It re-enters the state machine the way Mount does.
func (m *Monitor) Refresh(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.mounted = true
	m.isRefreshing = true
	m.mu.Unlock()
	m.changed()

	err := m.fetch(ctx, originRefresh)

	m.mu.Lock()
	m.isRefreshing = false
	m.mu.Unlock()
	m.changed()

	return err
}

// Start requests a launch, or a resume from the server's cursor when resume
// is true. A refusal is returned as an unaccepted response with a nil error
// and never begins polling.
func (m *Monitor) Start(ctx context.Context, resume bool) (*models.StartResponse, error) {
	if err := m.beginCommand(ctx, m.cfg.StartCapability); err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("kind", string(m.Kind())).
		Bool("resume", resume).
		Msg("Requesting job start")

	reqCtx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	resp, err := m.client.Start(reqCtx, models.StartRequest{Resume: resume, Params: m.cfg.Params})
	cancel()

	m.mu.Lock()
	m.isSubmitting = false
	if m.closed {
		m.mu.Unlock()
		m.changed()
		return resp, err
	}
	if err != nil {
		m.mu.Unlock()
		m.changed()
		m.logger.Warn().Err(err).Str("kind", string(m.Kind())).Msg("Start request failed")
		m.notify(ctx, models.NoticeError, models.NoticeCommunicationFailure, fmt.Sprintf("%s 시작 요청 실패: %v", m.cfg.Spec.Title, err))
		return nil, err
	}

	if !resp.Accepted() {
		m.mu.Unlock()
		m.changed()
		m.logger.Info().
			Str("kind", string(m.Kind())).
			Str("outcome", string(resp.Status)).
			Str("message", resp.Message).
			Msg("Start refused by backend")

		if resp.Status == models.StartOutcomeRunning {
			m.notify(ctx, models.NoticeInfo, models.NoticeAlreadyRunning, messageOr(resp.Message, "이미 실행 중인 작업이 있습니다"))
		} else {
			m.notify(ctx, models.NoticeWarning, models.NoticeRejected, messageOr(resp.Message, string(resp.Status)))
		}
		return resp, nil
	}

	// Reads issued before the launch describe the previous run
	m.appliedSeq = m.nextSeq + 1
	m.optimistic = true
	m.startPollingLocked()
	m.mu.Unlock()
	m.changed()

	m.logger.Info().Str("kind", string(m.Kind())).Bool("resume", resume).Msg("Job start accepted")
	m.notify(ctx, models.NoticeSuccess, models.NoticeStarted, messageOr(resp.Message, m.cfg.Spec.Title+" 작업을 시작했습니다"))
	return resp, nil
}

// Stop requests cooperative cancellation. State is unchanged until a later
// poll reports the job stopped; if the monitor was not polling it starts so
// the end of the run is observed.
func (m *Monitor) Stop(ctx context.Context) (*models.StopResponse, error) {
	if err := m.beginCommand(ctx, m.cfg.StopCapability); err != nil {
		return nil, err
	}

	m.logger.Info().Str("kind", string(m.Kind())).Msg("Requesting job stop")

	reqCtx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	resp, err := m.client.Stop(reqCtx)
	cancel()

	m.mu.Lock()
	m.isSubmitting = false
	if m.closed {
		m.mu.Unlock()
		m.changed()
		return resp, err
	}
	if err != nil {
		m.mu.Unlock()
		m.changed()
		m.logger.Warn().Err(err).Str("kind", string(m.Kind())).Msg("Stop request failed")
		m.notify(ctx, models.NoticeError, models.NoticeCommunicationFailure, fmt.Sprintf("%s 중지 요청 실패: %v", m.cfg.Spec.Title, err))
		return nil, err
	}

	if m.handle == nil && (m.status == nil || m.status.IsRunning) {
		m.startPollingLocked()
	}
	m.mu.Unlock()
	m.changed()

	m.notify(ctx, models.NoticeInfo, models.NoticeStopRequested, messageOr(resp.Message, "중지를 요청했습니다"))
	return resp, nil
}

// StopWatching halts the client's timer only. The backend job is untouched.
func (m *Monitor) StopWatching() {
	m.mu.Lock()
	wasPolling := m.handle != nil
	m.stopPollingLocked()
	m.mu.Unlock()

	if wasPolling {
		m.logger.Info().Str("kind", string(m.Kind())).Msg("Stopped watching job")
		m.changed()
	}
}

// Close tears the monitor down: the timer is cleared, outstanding requests
// are cancelled and their responses discarded. Close is idempotent.
func (m *Monitor) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.stopPollingLocked()
	m.mu.Unlock()

	m.cancelBase()
	m.logger.Debug().Str("kind", string(m.Kind())).Msg("Job monitor closed")
}

// Snapshot returns a copy of the current state
func (m *Monitor) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

// View returns the derived view of the current state
func (m *Monitor) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return deriveView(m.cfg.Spec, m.stateLocked(), m.optimistic, m.revision, m.now())
}

// IsPolling reports whether the timer is active
func (m *Monitor) IsPolling() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle != nil
}

func (m *Monitor) stateLocked() State {
	return State{
		Status:              m.status.Clone(),
		IsPolling:           m.handle != nil,
		IsSubmitting:        m.isSubmitting,
		IsRefreshing:        m.isRefreshing,
		MonitoringError:     m.monitoringErr,
		ConsecutiveFailures: m.failures,
	}
}

// beginCommand applies the capability gate and the duplicate-submission guard
func (m *Monitor) beginCommand(ctx context.Context, capability string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.gate == nil || !m.gate.HasCapability(capability) {
		m.mu.Unlock()
		m.logger.Warn().
			Str("kind", string(m.Kind())).
			Str("capability", capability).
			Msg("Command blocked by capability gate")
		m.notify(ctx, models.NoticeWarning, models.NoticeCapabilityDenied, fmt.Sprintf("권한이 없습니다: %s", capability))
		return fmt.Errorf("%s: %w", capability, ErrCapabilityDenied)
	}
	if m.isSubmitting {
		m.mu.Unlock()
		return ErrCommandInFlight
	}
	m.isSubmitting = true
	m.mu.Unlock()
	m.changed()
	return nil
}

// startPollingLocked arms the timer unless it is already running
func (m *Monitor) startPollingLocked() {
	if m.handle != nil || m.closed {
		return
	}
	m.pollGen++
	gen := m.pollGen
	m.handle = m.scheduler.Every(m.cfg.PollInterval, func() {
		m.tick(gen)
	})

	m.logger.Debug().
		Str("kind", string(m.Kind())).
		Dur("interval", m.cfg.PollInterval).
		Msg("Polling started")
}

// stopPollingLocked clears the timer if one is armed
func (m *Monitor) stopPollingLocked() {
	if m.handle == nil {
		return
	}
	m.handle.Cancel()
	m.handle = nil
	m.pollGen++
}

// tick is the timer callback. Ticks from a cleared timer, and ticks that
// arrive while a poll is outstanding, do nothing.
func (m *Monitor) tick(gen uint64) {
	m.mu.Lock()
	if m.closed || m.handle == nil || gen != m.pollGen || m.pollInFlight {
		m.mu.Unlock()
		return
	}
	m.pollInFlight = true
	m.mu.Unlock()

	m.fetch(m.baseCtx, originPoll)
}

// fetch reads the status and reconciles the answer
func (m *Monitor) fetch(ctx context.Context, origin string) error {
	m.mu.Lock()
	m.nextSeq++
	seq := m.nextSeq
	m.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	status, err := m.client.GetStatus(reqCtx)
	cancel()

	m.reconcile(ctx, seq, origin, status, err)
	return err
}

// reconcile applies the result of status read seq
func (m *Monitor) reconcile(ctx context.Context, seq uint64, origin string, status *models.JobStatus, err error) {
	type notice struct {
		level models.NoticeLevel
		code  models.NoticeCode
		msg   string
	}
	var notices []notice

	m.mu.Lock()
	if origin == originPoll {
		m.pollInFlight = false
	}
	if m.closed {
		m.mu.Unlock()
		return
	}
	if seq < m.appliedSeq {
		m.mu.Unlock()
		m.logger.Debug().
			Str("kind", string(m.Kind())).
			Str("origin", origin).
			Msg("Discarding stale status response")
		return
	}

	if err != nil {
		m.monitoringErr = err.Error()
		if origin == originPoll {
			m.failures++
			if m.failures >= m.cfg.FailureNoticeAfter && !m.failureNotified {
				m.failureNotified = true
				notices = append(notices, notice{models.NoticeWarning, models.NoticeCommunicationFailure,
					fmt.Sprintf("%s 상태를 가져오지 못했습니다: %v", m.cfg.Spec.Title, err)})
			}
		}
		failures := m.failures
		m.mu.Unlock()

		m.logger.Warn().
			Err(err).
			Str("kind", string(m.Kind())).
			Str("origin", origin).
			Int("consecutive_failures", failures).
			Msg("Status read failed, keeping last known status")

		m.changed()
		for _, n := range notices {
			m.notify(ctx, n.level, n.code, n.msg)
		}
		return
	}

	prev := m.status
	launched := m.optimistic || (prev != nil && prev.IsRunning)
	m.status = status.Clone()
	m.appliedSeq = seq
	m.optimistic = false
	m.monitoringErr = ""
	m.failures = 0
	m.failureNotified = false

	if status.HasError() {
		if text := status.ErrorText(); text != m.lastJobError {
			m.lastJobError = text
			notices = append(notices, notice{models.NoticeError, models.NoticeJobFailed, text})
		}
	} else {
		m.lastJobError = ""
	}

	wasPolling := m.handle != nil
	if status.IsRunning {
		if !wasPolling && origin != originPoll {
			m.startPollingLocked()
		}
	} else {
		m.stopPollingLocked()
		if wasPolling && launched && !status.HasError() && status.Complete() {
			notices = append(notices, notice{models.NoticeSuccess, models.NoticeCompleted, m.cfg.Spec.Title + " 완료"})
		}
	}
	stopped := wasPolling && m.handle == nil
	m.mu.Unlock()

	event := m.logger.Debug()
	if stopped {
		event = m.logger.Info()
	}
	event.Str("kind", string(m.Kind())).
		Str("origin", origin).
		Bool("is_running", status.IsRunning).
		Int("progress", status.Percent()).
		Int("processed", status.ProcessedUnits).
		Int("total", status.TotalUnits).
		Bool("polling_stopped", stopped).
		Msg("Status reconciled")

	if status.HasError() {
		m.logger.Error().
			Str("kind", string(m.Kind())).
			Str("error_message", status.ErrorText()).
			Msg("Backend reported job failure")
	}

	m.changed()
	for _, n := range notices {
		m.notify(ctx, n.level, n.code, n.msg)
	}
}

// changed bumps the revision and delivers the view to listeners
func (m *Monitor) changed() {
	m.mu.Lock()
	m.revision++
	if len(m.listeners) == 0 {
		m.mu.Unlock()
		return
	}
	view := deriveView(m.cfg.Spec, m.stateLocked(), m.optimistic, m.revision, m.now())
	listeners := make([]func(View), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(view)
	}
}

func (m *Monitor) notify(ctx context.Context, level models.NoticeLevel, code models.NoticeCode, message string) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(ctx, models.Notice{
		Kind:    m.Kind(),
		Level:   level,
		Code:    code,
		Message: message,
		Time:    m.now(),
	})
}

func messageOr(message, fallback string) string {
	if message != "" {
		return message
	}
	return fallback
}
