package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pipewatch/internal/interfaces"
	"github.com/ternarybob/pipewatch/internal/models"
	"github.com/ternarybob/pipewatch/internal/registry"
	"github.com/ternarybob/pipewatch/internal/services/events"
	"github.com/ternarybob/pipewatch/internal/view"
)

type mockTrigger struct {
	mock.Mock
	kind models.JobKind
}

func (m *mockTrigger) Kind() models.JobKind {
	return m.kind
}

func (m *mockTrigger) Press(ctx context.Context, action view.Action) (*view.Result, error) {
	args := m.Called(ctx, action)
	result, _ := args.Get(0).(*view.Result)
	return result, args.Error(1)
}

func (m *mockTrigger) StartOrResume(ctx context.Context) (*view.Result, error) {
	args := m.Called(ctx)
	result, _ := args.Get(0).(*view.Result)
	return result, args.Error(1)
}

func newTrigger(kind models.JobKind) *mockTrigger {
	return &mockTrigger{kind: kind}
}

func TestRegister_ValidatesSchedule(t *testing.T) {
	s := NewService(nil, arbor.NewLogger())

	assert.Error(t, s.Register("*/5 * * * *", newTrigger(models.JobKindNews)))
	assert.Error(t, s.Register("tomorrow", newTrigger(models.JobKindNews)))

	require.NoError(t, s.Register("0 6 * * *", newTrigger(models.JobKindNews)))
	assert.Error(t, s.Register("0 7 * * *", newTrigger(models.JobKindNews)), "one schedule per kind")
}

func TestTriggerNow_ResumesAndPublishes(t *testing.T) {
	bus := events.NewService(arbor.NewLogger())
	published := make(chan models.ScheduledTrigger, 1)
	require.NoError(t, bus.Subscribe(interfaces.EventScheduledTrigger, func(ctx context.Context, event interfaces.Event) error {
		published <- event.Payload.(models.ScheduledTrigger)
		return nil
	}))

	trigger := newTrigger(models.JobKindReports)
	trigger.On("Press", mock.Anything, view.ActionRefresh).Return(&view.Result{Action: view.ActionRefresh, Accepted: true}, nil).Once()
	trigger.On("StartOrResume", mock.Anything).Return(&view.Result{
		Action:   view.ActionResume,
		Accepted: true,
		Outcome:  models.StartOutcomeStarted,
		Message:  "재개했습니다",
	}, nil).Once()

	s := NewService(bus, arbor.NewLogger())
	require.NoError(t, s.Register("0 6 * * *", trigger))

	record, err := s.TriggerNow(models.JobKindReports)
	require.NoError(t, err)
	assert.Equal(t, "resume", record.Action)
	assert.Equal(t, models.StartOutcomeStarted, record.Outcome)
	assert.Empty(t, record.Error)

	select {
	case got := <-published:
		assert.Equal(t, models.JobKindReports, got.Kind)
		assert.Equal(t, "0 6 * * *", got.Schedule)
	case <-time.After(time.Second):
		t.Fatal("trigger not published")
	}

	statuses := s.Statuses()
	require.Len(t, statuses, 1)
	require.NotNil(t, statuses[0].LastTrigger)
	assert.Equal(t, "resume", statuses[0].LastTrigger.Action)
	trigger.AssertExpectations(t)
}

func TestTriggerNow_SkipsRunningJob(t *testing.T) {
	trigger := newTrigger(models.JobKindNews)
	trigger.On("Press", mock.Anything, view.ActionRefresh).Return(&view.Result{Accepted: true}, nil)
	trigger.On("StartOrResume", mock.Anything).Return(nil, fmt.Errorf("news start: %w", view.ErrControlUnavailable))

	s := NewService(nil, arbor.NewLogger())
	require.NoError(t, s.Register("0 6 * * *", trigger))

	record, err := s.TriggerNow(models.JobKindNews)
	require.NoError(t, err)
	assert.Empty(t, record.Action)
	assert.Empty(t, record.Error)
	assert.Equal(t, "job is already running", record.Message)
}

func TestTriggerNow_RefreshFailureSkipsStart(t *testing.T) {
	trigger := newTrigger(models.JobKindNews)
	trigger.On("Press", mock.Anything, view.ActionRefresh).Return(nil, errors.New("backend unreachable"))

	s := NewService(nil, arbor.NewLogger())
	require.NoError(t, s.Register("0 6 * * *", trigger))

	record, err := s.TriggerNow(models.JobKindNews)
	require.NoError(t, err)
	assert.Contains(t, record.Error, "backend unreachable")
	trigger.AssertNotCalled(t, "StartOrResume", mock.Anything)
}

func TestTriggerNow_RecoversFromPanic(t *testing.T) {
	trigger := newTrigger(models.JobKindNews)
	trigger.On("Press", mock.Anything, view.ActionRefresh).Return(&view.Result{}, nil)
	trigger.On("StartOrResume", mock.Anything).Run(func(mock.Arguments) { panic("boom") })

	s := NewService(nil, arbor.NewLogger())
	require.NoError(t, s.Register("0 6 * * *", trigger))

	record, err := s.TriggerNow(models.JobKindNews)
	require.NoError(t, err)
	assert.Contains(t, record.Error, "panic")
}

func TestTriggerNow_UnknownKind(t *testing.T) {
	s := NewService(nil, arbor.NewLogger())
	_, err := s.TriggerNow(models.JobKindNews)
	assert.ErrorIs(t, err, registry.ErrUnknownKind)
	assert.ErrorIs(t, s.SetEnabled(models.JobKindNews, false), registry.ErrUnknownKind)
}

func TestExecute_DisabledScheduleDoesNothing(t *testing.T) {
	trigger := newTrigger(models.JobKindFundNews)
	s := NewService(nil, arbor.NewLogger())
	require.NoError(t, s.Register("0 6 * * *", trigger))
	require.NoError(t, s.SetEnabled(models.JobKindFundNews, false))

	s.execute(models.JobKindFundNews)

	trigger.AssertNotCalled(t, "Press", mock.Anything, mock.Anything)
	assert.Nil(t, s.Statuses()[0].NextRun)
}

func TestStartStop_ReportsNextRun(t *testing.T) {
	seoul := time.FixedZone("KST", 9*3600)
	s := NewService(nil, arbor.NewLogger(), WithLocation(seoul))
	require.NoError(t, s.Register("0 6 * * *", newTrigger(models.JobKindNews)))

	s.Start()
	defer s.Stop()
	assert.True(t, s.IsRunning())

	status := s.Statuses()[0]
	require.NotNil(t, status.NextRun)
	assert.Equal(t, 6, status.NextRun.In(seoul).Hour())

	s.Stop()
	assert.False(t, s.IsRunning())
}
