package events

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pipewatch/internal/interfaces"
	"github.com/ternarybob/pipewatch/internal/models"
	"github.com/ternarybob/pipewatch/internal/monitor"
)

// Notifier publishes monitor notices as job_notice events
type Notifier struct {
	events interfaces.EventService
	logger arbor.ILogger
}

// NewNotifier creates a notifier backed by events
func NewNotifier(events interfaces.EventService, logger arbor.ILogger) *Notifier {
	return &Notifier{events: events, logger: logger}
}

// Notify publishes notice and waits for the subscribers, so notices reach
// them in the order they were raised. Delivery outlives the command that
// raised it.
func (n *Notifier) Notify(ctx context.Context, notice models.Notice) {
	event := interfaces.Event{Type: interfaces.EventJobNotice, Payload: notice}
	if err := n.events.PublishSync(context.WithoutCancel(ctx), event); err != nil {
		n.logger.Warn().Err(err).Str("kind", string(notice.Kind)).Msg("Failed to publish job notice")
	}
}

// ViewPublisher returns a monitor change listener that publishes job_updated events
func ViewPublisher(events interfaces.EventService, logger arbor.ILogger) func(monitor.View) {
	return func(v monitor.View) {
		event := interfaces.Event{Type: interfaces.EventJobUpdated, Payload: v}
		if err := events.Publish(context.Background(), event); err != nil {
			logger.Warn().Err(err).Str("kind", string(v.Kind)).Msg("Failed to publish job update")
		}
	}
}
