package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pipewatch/internal/models"
)

var errNetwork = errors.New("connection reset by peer")

func newsSpec() models.JobKindSpec {
	spec, _ := models.LookupJobKind(models.JobKindNews)
	return spec
}

func newTestMonitor(t *testing.T, spec models.JobKindSpec, client *scriptedClient, gate gateFunc) (*Monitor, *manualScheduler, *recordingNotifier) {
	t.Helper()
	sched := &manualScheduler{}
	notifier := &recordingNotifier{}
	m := New(Config{Spec: spec}, client, gate,
		WithScheduler(sched),
		WithNotifier(notifier),
		WithLogger(arbor.NewLogger()),
	)
	t.Cleanup(m.Close)
	return m, sched, notifier
}

func TestMount_FetchesExactlyOnce(t *testing.T) {
	client := newScriptedClient(models.JobKindNews, ok(idle()))
	m, sched, _ := newTestMonitor(t, newsSpec(), client, allowAll())

	assert.Equal(t, PhaseIdle, m.View().Phase)
	assert.Equal(t, "상태 확인 중", m.View().Label)

	require.NoError(t, m.Mount(context.Background()))
	require.NoError(t, m.Mount(context.Background()))

	statusCalls, _, _ := client.calls()
	assert.Equal(t, 1, statusCalls)
	assert.Equal(t, PhaseInactive, m.View().Phase)
	assert.Equal(t, 0, sched.Created(), "idle job must not be polled")
}

func TestMount_AttachesToRunningJob(t *testing.T) {
	client := newScriptedClient(models.JobKindNews, ok(running(10, 1, 10)))
	m, sched, _ := newTestMonitor(t, newsSpec(), client, allowAll())

	require.NoError(t, m.Mount(context.Background()))

	assert.True(t, m.IsPolling())
	assert.Equal(t, 1, sched.Active())
	assert.Equal(t, DefaultPollInterval, sched.handle(0).interval)
	assert.Equal(t, PhaseActive, m.View().Phase)
}

func TestMount_FailureKeepsIdleAndReportsMonitoringError(t *testing.T) {
	client := newScriptedClient(models.JobKindNews, statusResult{err: errNetwork})
	m, _, _ := newTestMonitor(t, newsSpec(), client, allowAll())

	err := m.Mount(context.Background())
	require.ErrorIs(t, err, errNetwork)

	view := m.View()
	assert.Equal(t, PhaseIdle, view.Phase)
	assert.Contains(t, view.MonitoringError, "connection reset")
	assert.Empty(t, view.ErrorMessage, "a fetch failure is not a job failure")
}

// Status sequence 40 -> 70 -> 100 ends in Completed after the third poll.
func TestScenario_RunToCompletion(t *testing.T) {
	client := newScriptedClient(models.JobKindNews, ok(idle()))
	m, sched, notifier := newTestMonitor(t, newsSpec(), client, allowAll())
	ctx := context.Background()

	require.NoError(t, m.Mount(ctx))

	resp, err := m.Start(ctx, false)
	require.NoError(t, err)
	assert.True(t, resp.Accepted())
	assert.True(t, m.IsPolling())
	assert.Equal(t, PhaseActive, m.View().Phase, "accepted start shows active before the first poll")

	client.push(
		ok(running(40, 4, 10)),
		ok(running(70, 7, 10)),
		ok(&models.JobStatus{IsRunning: false, Progress: 100, ProcessedUnits: 10, TotalUnits: 10}),
	)

	sched.Tick()
	assert.Equal(t, 40, m.View().Percent)
	sched.Tick()
	assert.Equal(t, 70, m.View().Percent)
	sched.Tick()

	view := m.View()
	assert.Equal(t, PhaseCompleted, view.Phase)
	assert.Equal(t, "수집 완료", view.Label)
	assert.Equal(t, ColorSuccess, view.Color)
	assert.False(t, view.IsPolling)
	assert.Equal(t, 1, sched.handle(0).cancels, "timer cleared exactly once")

	// No fourth poll: neither through the scheduler nor a late callback
	sched.Tick()
	sched.handle(0).fn()

	statusCalls, _, _ := client.calls()
	assert.Equal(t, 4, statusCalls, "mount + three polls")
	assert.Equal(t, 1, sched.handle(0).cancels)
	assert.Contains(t, notifier.codes(), models.NoticeCompleted)
}

// already_collected_today is surfaced verbatim and does not poll.
func TestScenario_AlreadyCollectedToday(t *testing.T) {
	client := newScriptedClient(models.JobKindNews, ok(idle()))
	client.startResp = &models.StartResponse{
		Status:  models.StartOutcomeAlreadyCollectedToday,
		Message: "오늘 이미 뉴스 수집을 완료했습니다. 내일 다시 시도해주세요.",
	}
	m, sched, notifier := newTestMonitor(t, newsSpec(), client, allowAll())
	ctx := context.Background()
	require.NoError(t, m.Mount(ctx))

	resp, err := m.Start(ctx, false)
	require.NoError(t, err)
	assert.False(t, resp.Accepted())

	notice := notifier.last()
	assert.Equal(t, models.NoticeWarning, notice.Level)
	assert.Equal(t, models.NoticeRejected, notice.Code)
	assert.Equal(t, "오늘 이미 뉴스 수집을 완료했습니다. 내일 다시 시도해주세요.", notice.Message)
	assert.Equal(t, models.JobKindNews, notice.Kind)

	assert.False(t, m.IsPolling())
	assert.Equal(t, 0, sched.Created())
	assert.Equal(t, PhaseInactive, m.View().Phase)
}

// Start against a running job never adds a timer nor touches start_time.
func TestStart_IdempotentWhileRunning(t *testing.T) {
	startedAt, err := models.ParseTimestamp("2025-03-01T09:00:00")
	require.NoError(t, err)
	status := running(30, 3, 10)
	status.StartTime = &startedAt

	client := newScriptedClient(models.JobKindNews, ok(status))
	client.startResp = &models.StartResponse{Status: models.StartOutcomeRunning, Message: "이미 실행 중입니다"}
	m, sched, notifier := newTestMonitor(t, newsSpec(), client, allowAll())
	ctx := context.Background()

	require.NoError(t, m.Mount(ctx))
	require.Equal(t, 1, sched.Active())

	for i := 0; i < 3; i++ {
		resp, err := m.Start(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, models.StartOutcomeRunning, resp.Status)
	}

	assert.Equal(t, 1, sched.Created())
	assert.Equal(t, 1, sched.Active())
	assert.Equal(t, startedAt.Time, m.Snapshot().Status.StartTime.Time)
	assert.Equal(t, models.NoticeAlreadyRunning, notifier.last().Code)
	assert.Equal(t, "이미 실행 중입니다", notifier.last().Message)
}

func TestStart_RepeatedAcceptanceKeepsOneTimer(t *testing.T) {
	client := newScriptedClient(models.JobKindNews, ok(idle()))
	m, sched, _ := newTestMonitor(t, newsSpec(), client, allowAll())
	ctx := context.Background()

	_, err := m.Start(ctx, false)
	require.NoError(t, err)
	_, err = m.Start(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 1, sched.Created())
	assert.Equal(t, 1, sched.Active())
}

func TestStart_SendsResumeAndParams(t *testing.T) {
	client := newScriptedClient(models.JobKindNews, ok(idle()))
	sched := &manualScheduler{}
	m := New(Config{Spec: newsSpec(), Params: map[string]any{"days_back": 7}}, client, allowAll(), WithScheduler(sched))
	defer m.Close()

	_, err := m.Start(context.Background(), true)
	require.NoError(t, err)

	require.Len(t, client.startReqs, 1)
	assert.True(t, client.startReqs[0].Resume)
	assert.Equal(t, 7, client.startReqs[0].Params["days_back"])
}

func TestStart_CommunicationFailureChangesNothing(t *testing.T) {
	client := newScriptedClient(models.JobKindNews, ok(idle()))
	client.startResp = nil
	client.startErr = errNetwork
	m, sched, notifier := newTestMonitor(t, newsSpec(), client, allowAll())
	ctx := context.Background()
	require.NoError(t, m.Mount(ctx))

	_, err := m.Start(ctx, false)
	require.ErrorIs(t, err, errNetwork)

	assert.False(t, m.IsPolling())
	assert.Equal(t, 0, sched.Created())
	assert.False(t, m.Snapshot().IsSubmitting)
	assert.Equal(t, PhaseInactive, m.View().Phase)
	assert.Equal(t, models.NoticeCommunicationFailure, notifier.last().Code)
}

func TestStart_DuplicateSubmissionRefused(t *testing.T) {
	client := newScriptedClient(models.JobKindNews, ok(idle()))
	client.startWait = make(chan struct{})
	m, _, _ := newTestMonitor(t, newsSpec(), client, allowAll())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := m.Start(context.Background(), false)
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool { return m.Snapshot().IsSubmitting }, time.Second, time.Millisecond)

	_, err := m.Start(context.Background(), false)
	assert.ErrorIs(t, err, ErrCommandInFlight)
	_, err = m.Stop(context.Background())
	assert.ErrorIs(t, err, ErrCommandInFlight)

	close(client.startWait)
	wg.Wait()

	_, startCalls, stopCalls := client.calls()
	assert.Equal(t, 1, startCalls)
	assert.Equal(t, 0, stopCalls)
	assert.False(t, m.Snapshot().IsSubmitting)
}

// A denied capability dispatches no request.
func TestCapabilityGate_ShortCircuitsNetwork(t *testing.T) {
	client := newScriptedClient(models.JobKindNews, ok(idle()))
	var asked []string
	gate := gateFunc(func(name string) bool {
		asked = append(asked, name)
		return false
	})
	m, sched, notifier := newTestMonitor(t, newsSpec(), client, gate)
	ctx := context.Background()

	_, err := m.Start(ctx, false)
	assert.ErrorIs(t, err, ErrCapabilityDenied)
	_, err = m.Start(ctx, true)
	assert.ErrorIs(t, err, ErrCapabilityDenied)
	_, err = m.Stop(ctx)
	assert.ErrorIs(t, err, ErrCapabilityDenied)

	statusCalls, startCalls, stopCalls := client.calls()
	assert.Equal(t, 0, statusCalls)
	assert.Equal(t, 0, startCalls)
	assert.Equal(t, 0, stopCalls)
	assert.Equal(t, 0, sched.Created())
	assert.Equal(t, []string{"news.start", "news.start", "news.stop"}, asked)
	assert.Equal(t, models.NoticeCapabilityDenied, notifier.last().Code)
	assert.Equal(t, models.NoticeWarning, notifier.last().Level)
	assert.Equal(t, PhaseIdle, m.View().Phase, "state unchanged")
}

func TestCapabilityGate_CustomCapabilityNames(t *testing.T) {
	client := newScriptedClient(models.JobKindNews, ok(idle()))
	gate := gateFunc(func(name string) bool { return name == "collect:run" })
	m := New(Config{Spec: newsSpec(), StartCapability: "collect:run"}, client, gate, WithScheduler(&manualScheduler{}))
	defer m.Close()

	_, err := m.Start(context.Background(), false)
	assert.NoError(t, err)
	_, err = m.Stop(context.Background())
	assert.ErrorIs(t, err, ErrCapabilityDenied)
}

// The true -> false transition clears the timer once and later ticks do nothing.
func TestPolling_StopsOnceOnTermination(t *testing.T) {
	client := newScriptedClient(models.JobKindNews, ok(running(50, 5, 10)))
	m, sched, _ := newTestMonitor(t, newsSpec(), client, allowAll())
	ctx := context.Background()
	require.NoError(t, m.Mount(ctx))

	client.push(ok(&models.JobStatus{IsRunning: false, Progress: 60, ProcessedUnits: 6, TotalUnits: 10, CanResume: true}))
	sched.Tick()

	assert.False(t, m.IsPolling())
	assert.Equal(t, PhaseResumable, m.View().Phase)
	assert.Equal(t, 1, sched.handle(0).cancels)

	for i := 0; i < 3; i++ {
		sched.handle(0).fn()
	}
	statusCalls, _, _ := client.calls()
	assert.Equal(t, 2, statusCalls)

	// A manual refresh is a new explicit read, not a resumed loop
	require.NoError(t, m.Refresh(ctx))
	statusCalls, _, _ = client.calls()
	assert.Equal(t, 3, statusCalls)
	assert.False(t, m.IsPolling())
}

// A slow poll answered after a newer refresh is discarded.
func TestPolling_StaleResponseDiscarded(t *testing.T) {
	release := make(chan struct{})
	client := newScriptedClient(models.JobKindNews,
		ok(running(10, 1, 10)),
		statusResult{status: running(30, 3, 10), wait: release},
		ok(running(60, 6, 10)),
	)
	m, sched, _ := newTestMonitor(t, newsSpec(), client, allowAll())
	ctx := context.Background()
	require.NoError(t, m.Mount(ctx))

	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.Tick()
	}()
	require.Eventually(t, func() bool {
		calls, _, _ := client.calls()
		return calls == 2
	}, time.Second, time.Millisecond)

	// The in-flight guard keeps a second tick from issuing another poll
	sched.Tick()
	calls, _, _ := client.calls()
	assert.Equal(t, 2, calls)

	require.NoError(t, m.Refresh(ctx))
	assert.Equal(t, 6, m.Snapshot().Status.ProcessedUnits)

	close(release)
	<-done

	assert.Equal(t, 6, m.Snapshot().Status.ProcessedUnits, "older response must not overwrite newer snapshot")
	assert.Equal(t, 60, m.View().Percent)
	assert.True(t, m.IsPolling())
}

func TestPolling_TransientFailureKeepsLoopAndStatus(t *testing.T) {
	client := newScriptedClient(models.JobKindNews, ok(running(20, 2, 10)))
	m, sched, notifier := newTestMonitor(t, newsSpec(), client, allowAll())
	ctx := context.Background()
	require.NoError(t, m.Mount(ctx))

	client.push(
		statusResult{err: errNetwork},
		statusResult{err: errNetwork},
		ok(running(40, 4, 10)),
	)

	sched.Tick()
	view := m.View()
	assert.True(t, view.IsPolling)
	assert.Equal(t, 20, view.Percent, "last known good status retained")
	assert.Equal(t, PhaseActive, view.Phase)
	assert.NotEmpty(t, view.MonitoringError)
	assert.Empty(t, view.ErrorMessage)

	sched.Tick()
	assert.Equal(t, 2, m.Snapshot().ConsecutiveFailures)

	failureNotices := 0
	for _, code := range notifier.codes() {
		if code == models.NoticeCommunicationFailure {
			failureNotices++
		}
	}
	assert.Equal(t, 1, failureNotices, "one notice per failure streak")

	sched.Tick()
	view = m.View()
	assert.Equal(t, 40, view.Percent)
	assert.Empty(t, view.MonitoringError)
	assert.Equal(t, 0, m.Snapshot().ConsecutiveFailures)
}

func TestPolling_FailureNoticeThreshold(t *testing.T) {
	client := newScriptedClient(models.JobKindNews, ok(running(20, 2, 10)))
	sched := &manualScheduler{}
	notifier := &recordingNotifier{}
	m := New(Config{Spec: newsSpec(), FailureNoticeAfter: 3}, client, allowAll(), WithScheduler(sched), WithNotifier(notifier))
	defer m.Close()
	require.NoError(t, m.Mount(context.Background()))

	client.push(statusResult{err: errNetwork})
	sched.Tick()
	sched.Tick()
	assert.Empty(t, notifier.codes())

	sched.Tick()
	assert.Equal(t, []models.NoticeCode{models.NoticeCommunicationFailure}, notifier.codes())
}

func TestPolling_JobFailureIsErrored(t *testing.T) {
	client := newScriptedClient(models.JobKindNews, ok(running(20, 2, 10)))
	m, sched, notifier := newTestMonitor(t, newsSpec(), client, allowAll())
	ctx := context.Background()
	require.NoError(t, m.Mount(ctx))

	msg := "LLM quota exhausted"
	client.push(ok(&models.JobStatus{IsRunning: false, Progress: 20, ErrorMessage: &msg, CanResume: true}))
	sched.Tick()

	view := m.View()
	assert.Equal(t, PhaseErrored, view.Phase)
	assert.Equal(t, "오류 발생", view.Label)
	assert.Equal(t, msg, view.ErrorMessage)
	assert.Empty(t, view.MonitoringError)
	assert.True(t, view.CanResume)
	assert.False(t, view.IsPolling)

	assert.Equal(t, models.NoticeJobFailed, notifier.last().Code)
	assert.Equal(t, msg, notifier.last().Message)

	// The same failure seen again by a refresh is not announced twice
	require.NoError(t, m.Refresh(ctx))
	jobFailed := 0
	for _, code := range notifier.codes() {
		if code == models.NoticeJobFailed {
			jobFailed++
		}
	}
	assert.Equal(t, 1, jobFailed)
}

func TestStop_KeepsPollingUntilServerStops(t *testing.T) {
	client := newScriptedClient(models.JobKindNews, ok(running(20, 2, 10)))
	m, sched, notifier := newTestMonitor(t, newsSpec(), client, allowAll())
	ctx := context.Background()
	require.NoError(t, m.Mount(ctx))

	resp, err := m.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stop requested", resp.Message)
	assert.Equal(t, models.NoticeStopRequested, notifier.last().Code)

	assert.True(t, m.IsPolling())
	assert.Equal(t, PhaseActive, m.View().Phase, "stop only requests cancellation")

	client.push(ok(running(25, 2, 10)), ok(&models.JobStatus{Progress: 25, CanResume: true}))
	sched.Tick()
	assert.True(t, m.IsPolling())
	sched.Tick()
	assert.False(t, m.IsPolling())
	assert.Equal(t, PhaseResumable, m.View().Phase)
	assert.Equal(t, 1, sched.Created())
}

func TestStop_WhenNotWatchingStartsWatching(t *testing.T) {
	client := newScriptedClient(models.JobKindNews, ok(running(20, 2, 10)))
	m, sched, _ := newTestMonitor(t, newsSpec(), client, allowAll())
	ctx := context.Background()
	require.NoError(t, m.Mount(ctx))

	m.StopWatching()
	require.False(t, m.IsPolling())

	_, err := m.Stop(ctx)
	require.NoError(t, err)
	assert.True(t, m.IsPolling())
	assert.Equal(t, 2, sched.Created())
	assert.Equal(t, 1, sched.Active())
}

func TestStopWatching_LeavesServerAlone(t *testing.T) {
	client := newScriptedClient(models.JobKindNews, ok(running(20, 2, 10)))
	m, sched, _ := newTestMonitor(t, newsSpec(), client, allowAll())
	ctx := context.Background()
	require.NoError(t, m.Mount(ctx))

	m.StopWatching()
	m.StopWatching()

	assert.False(t, m.IsPolling())
	assert.Equal(t, 1, sched.handle(0).cancels)
	_, _, stopCalls := client.calls()
	assert.Equal(t, 0, stopCalls)

	// The cached snapshot still says running; it is a cache, not the truth
	assert.Equal(t, PhaseActive, m.View().Phase)

	sched.handle(0).fn()
	statusCalls, _, _ := client.calls()
	assert.Equal(t, 1, statusCalls)
}

// Teardown while polling results in zero further status reads.
func TestClose_StopsPolling(t *testing.T) {
	client := newScriptedClient(models.JobKindNews, ok(running(20, 2, 10)))
	m, sched, _ := newTestMonitor(t, newsSpec(), client, allowAll())
	ctx := context.Background()
	require.NoError(t, m.Mount(ctx))
	sched.Tick()
	before, _, _ := client.calls()

	m.Close()
	m.Close()

	assert.Equal(t, 0, sched.Active())
	assert.Equal(t, 1, sched.handle(0).cancels)
	for i := 0; i < 5; i++ {
		sched.Tick()
		sched.handle(0).fn()
	}

	after, _, _ := client.calls()
	assert.Equal(t, before, after)

	_, err := m.Start(ctx, false)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Refresh(ctx), ErrClosed)
}

func TestClose_DiscardsInFlightResponse(t *testing.T) {
	release := make(chan struct{})
	client := newScriptedClient(models.JobKindNews,
		ok(running(20, 2, 10)),
		statusResult{status: running(90, 9, 10), wait: release},
	)
	m, sched, _ := newTestMonitor(t, newsSpec(), client, allowAll())
	require.NoError(t, m.Mount(context.Background()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.Tick()
	}()
	require.Eventually(t, func() bool {
		calls, _, _ := client.calls()
		return calls == 2
	}, time.Second, time.Millisecond)

	m.Close()
	close(release)
	<-done

	assert.Equal(t, 20, m.View().Percent)
}

// Monitors of different kinds keep independent snapshots.
func TestScenario_IndependentKinds(t *testing.T) {
	fundSpec, _ := models.LookupJobKind(models.JobKindFundNews)

	newsClient := newScriptedClient(models.JobKindNews, ok(running(10, 3, 30)))
	fundClient := newScriptedClient(models.JobKindFundNews, ok(running(50, 40, 80)))
	news, newsSched, _ := newTestMonitor(t, newsSpec(), newsClient, allowAll())
	fund, fundSched, _ := newTestMonitor(t, fundSpec, fundClient, allowAll())
	ctx := context.Background()

	require.NoError(t, news.Mount(ctx))
	require.NoError(t, fund.Mount(ctx))

	newsClient.push(ok(running(20, 6, 30)))
	fundClient.push(ok(running(60, 48, 80)))

	newsSched.Tick()
	assert.Equal(t, 6, news.Snapshot().Status.ProcessedUnits)
	assert.Equal(t, 40, fund.Snapshot().Status.ProcessedUnits)

	fundSched.Tick()
	assert.Equal(t, 6, news.Snapshot().Status.ProcessedUnits)
	assert.Equal(t, 48, fund.Snapshot().Status.ProcessedUnits)

	news.StopWatching()
	assert.True(t, fund.IsPolling())
}

func TestOnChange_ReceivesIncreasingRevisions(t *testing.T) {
	client := newScriptedClient(models.JobKindNews, ok(running(10, 1, 10)))
	m, sched, _ := newTestMonitor(t, newsSpec(), client, allowAll())

	var mu sync.Mutex
	var views []View
	m.OnChange(func(v View) {
		mu.Lock()
		defer mu.Unlock()
		views = append(views, v)
	})

	require.NoError(t, m.Mount(context.Background()))
	client.push(ok(running(20, 2, 10)))
	sched.Tick()

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(views), 2)
	for i := 1; i < len(views); i++ {
		assert.Greater(t, views[i].Revision, views[i-1].Revision)
	}
	assert.Equal(t, 20, views[len(views)-1].Percent)
}

func TestView_ElapsedUsesClockWhileRunning(t *testing.T) {
	started := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	status := running(30, 3, 10)
	status.StartTime = &models.Timestamp{Time: started}

	client := newScriptedClient(models.JobKindNews, ok(status))
	m := New(Config{Spec: newsSpec()}, client, allowAll(),
		WithScheduler(&manualScheduler{}),
		WithLogger(arbor.NewLogger()),
		WithClock(func() time.Time { return started.Add(90 * time.Second) }),
	)
	t.Cleanup(m.Close)

	require.NoError(t, m.Mount(context.Background()))
	assert.Equal(t, 90*time.Second, m.View().Elapsed())
}

// A run that ends before the first poll still reports completion.
func TestScenario_CompletesBeforeFirstPoll(t *testing.T) {
	client := newScriptedClient(models.JobKindNews, ok(idle()))
	m, sched, notifier := newTestMonitor(t, newsSpec(), client, allowAll())
	ctx := context.Background()
	require.NoError(t, m.Mount(ctx))

	resp, err := m.Start(ctx, false)
	require.NoError(t, err)
	require.True(t, resp.Accepted())

	client.push(ok(&models.JobStatus{IsRunning: false, Progress: 100, ProcessedUnits: 3, TotalUnits: 3}))
	sched.Tick()

	assert.Equal(t, PhaseCompleted, m.View().Phase)
	assert.False(t, m.IsPolling())
	assert.Equal(t, []models.NoticeCode{models.NoticeStarted, models.NoticeCompleted}, notifier.codes())
}

// A stopped run just short of 100 is resumable and raises no completion.
func TestScenario_StoppedNearEndIsNotCompleted(t *testing.T) {
	client := newScriptedClient(models.JobKindNews, ok(running(98, 98, 100)))
	m, sched, notifier := newTestMonitor(t, newsSpec(), client, allowAll())
	ctx := context.Background()
	require.NoError(t, m.Mount(ctx))
	require.True(t, m.IsPolling())

	client.push(ok(&models.JobStatus{IsRunning: false, Progress: 99.6, ProcessedUnits: 99, TotalUnits: 100, CanResume: true}))
	sched.Tick()

	view := m.View()
	assert.Equal(t, PhaseResumable, view.Phase)
	assert.Equal(t, 99, view.Percent, "an unfinished run never displays 100")
	assert.NotContains(t, notifier.codes(), models.NoticeCompleted)
}
