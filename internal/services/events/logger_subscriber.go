package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pipewatch/internal/interfaces"
	"github.com/ternarybob/pipewatch/internal/models"
	"github.com/ternarybob/pipewatch/internal/monitor"
)

// NewLoggerSubscriber creates an event handler that logs every event with
// the structured fields of its payload
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		switch p := event.Payload.(type) {
		case models.Notice:
			entry := logger.Info()
			switch p.Level {
			case models.NoticeError:
				entry = logger.Error()
			case models.NoticeWarning:
				entry = logger.Warn()
			}
			entry.
				Str("kind", string(p.Kind)).
				Str("code", string(p.Code)).
				Str("notice", p.Message).
				Msg("Job notice")

		case monitor.View:
			logger.Debug().
				Str("kind", string(p.Kind)).
				Str("phase", string(p.Phase)).
				Int("percent", p.Percent).
				Bool("polling", p.IsPolling).
				Int64("revision", int64(p.Revision)).
				Msg("Job view updated")

		case models.ScheduledTrigger:
			entry := logger.Info()
			if p.Error != "" {
				entry = logger.Warn().Str("error", p.Error)
			}
			entry.
				Str("kind", string(p.Kind)).
				Str("action", p.Action).
				Str("outcome", string(p.Outcome)).
				Msg("Scheduled trigger")

		default:
			logger.Debug().
				Str("event_type", string(event.Type)).
				Str("payload", fmt.Sprintf("%T", event.Payload)).
				Msg("Event published")
		}
		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := []interfaces.EventType{
		interfaces.EventJobUpdated,
		interfaces.EventJobNotice,
		interfaces.EventScheduledTrigger,
	}

	for _, eventType := range eventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Debug().
		Int("event_type_count", len(eventTypes)).
		Msg("Logger subscribed to all event types")

	return nil
}
