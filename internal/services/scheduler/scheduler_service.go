// Package scheduler presses a job kind's start control on a cron schedule.
// A scheduled press goes through the same binding and capability gate as a
// user's press, so it can never start a job the console could not.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pipewatch/internal/common"
	"github.com/ternarybob/pipewatch/internal/interfaces"
	"github.com/ternarybob/pipewatch/internal/models"
	"github.com/ternarybob/pipewatch/internal/registry"
	"github.com/ternarybob/pipewatch/internal/view"
)

// DefaultTriggerTimeout bounds the refresh and start requests of one trigger
const DefaultTriggerTimeout = 30 * time.Second

// Trigger is the control surface a schedule presses. *view.Binding implements it.
type Trigger interface {
	Kind() models.JobKind
	Press(ctx context.Context, action view.Action) (*view.Result, error)
	StartOrResume(ctx context.Context) (*view.Result, error)
}

// ScheduleStatus reports one registered schedule
type ScheduleStatus struct {
	Kind        models.JobKind           `json:"kind" yaml:"kind"`
	Schedule    string                   `json:"schedule" yaml:"schedule"`
	Enabled     bool                     `json:"enabled" yaml:"enabled"`
	NextRun     *time.Time               `json:"next_run,omitempty" yaml:"next_run,omitempty"`
	LastTrigger *models.ScheduledTrigger `json:"last_trigger,omitempty" yaml:"last_trigger,omitempty"`
}

type scheduleEntry struct {
	kind        models.JobKind
	schedule    string
	trigger     Trigger
	enabled     bool
	cronID      cron.EntryID
	lastTrigger *models.ScheduledTrigger
}

// Service runs the cron schedules of the job kinds
type Service struct {
	eventService interfaces.EventService
	cron         *cron.Cron
	logger       arbor.ILogger
	timeout      time.Duration
	now          func() time.Time

	mu      sync.Mutex
	entries map[models.JobKind]*scheduleEntry
	running bool
}

// Option configures the service
type Option func(*Service)

// WithLocation evaluates schedules in loc instead of local time
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		s.cron = cron.New(cron.WithLocation(loc))
	}
}

// WithTriggerTimeout bounds each trigger's backend requests
func WithTriggerTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewService creates a scheduler; eventService may be nil
func NewService(eventService interfaces.EventService, logger arbor.ILogger, opts ...Option) *Service {
	s := &Service{
		eventService: eventService,
		cron:         cron.New(),
		logger:       logger,
		timeout:      DefaultTriggerTimeout,
		now:          time.Now,
		entries:      make(map[models.JobKind]*scheduleEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register schedules trigger on a five-field cron expression
func (s *Service) Register(schedule string, trigger Trigger) error {
	if err := common.ValidateSchedule(schedule); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	kind := trigger.Kind()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[kind]; exists {
		return fmt.Errorf("schedule for %s already registered", kind)
	}

	cronID, err := s.cron.AddFunc(schedule, func() {
		s.execute(kind)
	})
	if err != nil {
		return fmt.Errorf("failed to add schedule to cron: %w", err)
	}

	s.entries[kind] = &scheduleEntry{
		kind:     kind,
		schedule: schedule,
		trigger:  trigger,
		enabled:  true,
		cronID:   cronID,
	}

	s.logger.Info().
		Str("kind", string(kind)).
		Str("schedule", schedule).
		Msg("Job schedule registered")

	return nil
}

// RegisterFromConfig registers the schedule of every enabled kind that has one
func (s *Service) RegisterFromConfig(config *common.Config, reg *registry.Registry) error {
	for _, entry := range reg.Entries() {
		kc := config.Kinds[string(entry.Spec.Kind)]
		if kc.Schedule == "" {
			continue
		}
		if err := s.Register(kc.Schedule, entry.Binding); err != nil {
			return fmt.Errorf("%s: %w", entry.Spec.Kind, err)
		}
	}
	return nil
}

// Start begins running schedules
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.cron.Start()
	s.running = true

	s.logger.Info().Int("schedules", len(s.entries)).Msg("Scheduler started")
}

// Stop halts the scheduler and waits for running triggers
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// IsRunning reports whether schedules are being evaluated
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetEnabled pauses or resumes the schedule of kind
func (s *Service) SetEnabled(kind models.JobKind, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[kind]
	if !ok {
		return fmt.Errorf("%s: %w", kind, registry.ErrUnknownKind)
	}
	entry.enabled = enabled

	s.logger.Info().Str("kind", string(kind)).Bool("enabled", enabled).Msg("Job schedule updated")
	return nil
}

// TriggerNow runs the schedule of kind immediately, even when paused
func (s *Service) TriggerNow(kind models.JobKind) (*models.ScheduledTrigger, error) {
	s.mu.Lock()
	_, ok := s.entries[kind]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", kind, registry.ErrUnknownKind)
	}
	return s.run(kind), nil
}

// Statuses reports every registered schedule in kind order
func (s *Service) Statuses() []ScheduleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[cron.EntryID]time.Time)
	for _, e := range s.cron.Entries() {
		next[e.ID] = e.Next
	}

	out := make([]ScheduleStatus, 0, len(s.entries))
	for _, entry := range s.entries {
		status := ScheduleStatus{
			Kind:        entry.kind,
			Schedule:    entry.schedule,
			Enabled:     entry.enabled,
			LastTrigger: entry.lastTrigger,
		}
		if t, ok := next[entry.cronID]; ok && entry.enabled && !t.IsZero() {
			status.NextRun = &t
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// execute is the cron callback
func (s *Service) execute(kind models.JobKind) {
	s.mu.Lock()
	entry, ok := s.entries[kind]
	enabled := ok && entry.enabled
	s.mu.Unlock()

	if !enabled {
		return
	}
	s.run(kind)
}

// run refreshes the kind's status and presses start or resume. A job that is
// already running is left alone.
func (s *Service) run(kind models.JobKind) (record *models.ScheduledTrigger) {
	s.mu.Lock()
	entry := s.entries[kind]
	s.mu.Unlock()

	record = &models.ScheduledTrigger{
		Kind:     kind,
		Schedule: entry.schedule,
		Time:     s.now(),
	}

	defer func() {
		if r := recover(); r != nil {
			record.Error = fmt.Sprintf("panic: %v", r)
			s.logger.Error().Str("kind", string(kind)).Str("panic", fmt.Sprintf("%v", r)).Msg("Scheduled trigger panicked")
		}

		s.mu.Lock()
		entry.lastTrigger = record
		s.mu.Unlock()

		if s.eventService != nil {
			event := interfaces.Event{Type: interfaces.EventScheduledTrigger, Payload: *record}
			if err := s.eventService.Publish(context.Background(), event); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to publish scheduled trigger")
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := entry.trigger.Press(ctx, view.ActionRefresh); err != nil && !errors.Is(err, view.ErrControlUnavailable) {
		record.Error = err.Error()
		return record
	}

	result, err := entry.trigger.StartOrResume(ctx)
	switch {
	case errors.Is(err, view.ErrControlUnavailable):
		record.Message = "job is already running"
	case err != nil:
		record.Error = err.Error()
	default:
		record.Action = string(result.Action)
		record.Outcome = result.Outcome
		record.Message = result.Message
	}
	return record
}
