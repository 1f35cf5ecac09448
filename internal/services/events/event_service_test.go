package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pipewatch/internal/interfaces"
	"github.com/ternarybob/pipewatch/internal/models"
	"github.com/ternarybob/pipewatch/internal/monitor"
)

func TestService_PublishDeliversToSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	defer svc.Close()

	received := make(chan interfaces.Event, 2)
	handler := func(ctx context.Context, event interfaces.Event) error {
		received <- event
		return nil
	}
	require.NoError(t, svc.Subscribe(interfaces.EventJobNotice, handler))
	require.NoError(t, svc.Subscribe(interfaces.EventJobNotice, handler))

	notice := models.Notice{Kind: models.JobKindNews, Code: models.NoticeStarted}
	require.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventJobNotice, Payload: notice}))

	for i := 0; i < 2; i++ {
		select {
		case event := <-received:
			assert.Equal(t, notice, event.Payload)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestService_PublishWithoutSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	assert.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventJobUpdated}))
	assert.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventJobUpdated}))
}

func TestService_PublishSyncJoinsErrors(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	boom := errors.New("socket closed")

	var calls int
	var mu sync.Mutex
	require.NoError(t, svc.Subscribe(interfaces.EventJobUpdated, func(ctx context.Context, event interfaces.Event) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}))
	require.NoError(t, svc.Subscribe(interfaces.EventJobUpdated, func(ctx context.Context, event interfaces.Event) error {
		return boom
	}))

	err := svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventJobUpdated})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestService_SubscribeValidation(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	assert.Error(t, svc.Subscribe(interfaces.EventJobNotice, nil))

	require.NoError(t, svc.Close())
	err := svc.Subscribe(interfaces.EventJobNotice, func(context.Context, interfaces.Event) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNotifier_PublishesNoticeAfterCallerCancels(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	got := make(chan error, 1)
	require.NoError(t, svc.Subscribe(interfaces.EventJobNotice, func(ctx context.Context, event interfaces.Event) error {
		got <- ctx.Err()
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	NewNotifier(svc, arbor.NewLogger()).Notify(ctx, models.Notice{Kind: models.JobKindReports, Code: models.NoticeCompleted})

	select {
	case err := <-got:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("notice not published")
	}
}

func TestViewPublisher(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	got := make(chan monitor.View, 1)
	require.NoError(t, svc.Subscribe(interfaces.EventJobUpdated, func(ctx context.Context, event interfaces.Event) error {
		got <- event.Payload.(monitor.View)
		return nil
	}))

	ViewPublisher(svc, arbor.NewLogger())(monitor.View{Kind: models.JobKindEmbeddings, Revision: 4})

	select {
	case v := <-got:
		assert.Equal(t, uint64(4), v.Revision)
	case <-time.After(time.Second):
		t.Fatal("view not published")
	}
}

func TestLoggerSubscriber_HandlesEveryPayload(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	require.NoError(t, SubscribeLoggerToAllEvents(svc, arbor.NewLogger()))

	ctx := context.Background()
	for _, event := range []interfaces.Event{
		{Type: interfaces.EventJobNotice, Payload: models.Notice{Level: models.NoticeError, Code: models.NoticeJobFailed}},
		{Type: interfaces.EventJobUpdated, Payload: monitor.View{Kind: models.JobKindNews}},
		{Type: interfaces.EventScheduledTrigger, Payload: models.ScheduledTrigger{Kind: models.JobKindNews, Error: "denied"}},
		{Type: interfaces.EventJobUpdated, Payload: nil},
	} {
		assert.NoError(t, svc.PublishSync(ctx, event))
	}
}

func TestNotifier_DeliversNoticesInOrder(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	defer svc.Close()

	var mu sync.Mutex
	var codes []models.NoticeCode
	require.NoError(t, svc.Subscribe(interfaces.EventJobNotice, func(ctx context.Context, event interfaces.Event) error {
		time.Sleep(time.Millisecond)
		mu.Lock()
		codes = append(codes, event.Payload.(models.Notice).Code)
		mu.Unlock()
		return nil
	}))

	notifier := NewNotifier(svc, arbor.NewLogger())
	ctx := context.Background()
	notifier.Notify(ctx, models.Notice{Kind: models.JobKindReports, Code: models.NoticeStarted})
	notifier.Notify(ctx, models.Notice{Kind: models.JobKindReports, Code: models.NoticeStopRequested})
	notifier.Notify(ctx, models.Notice{Kind: models.JobKindReports, Code: models.NoticeCompleted})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []models.NoticeCode{models.NoticeStarted, models.NoticeStopRequested, models.NoticeCompleted}, codes)
}
