package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	// EventJobUpdated carries a monitor's derived view after every reconciliation or flag change
	EventJobUpdated EventType = "job_updated"
	// EventJobNotice carries a user-facing notice (toast) raised by a monitor
	EventJobNotice EventType = "job_notice"
	// EventScheduledTrigger is published when the scheduler presses a control
	EventScheduledTrigger EventType = "scheduled_trigger"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
