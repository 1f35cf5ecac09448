package common

import (
	"github.com/google/uuid"
)

// NewRequestID generates a correlation ID sent as X-Request-ID on backend calls
// Format: req_<uuid>
func NewRequestID() string {
	return "req_" + uuid.New().String()
}

// NewInstanceID generates the ID a console process reports to WebSocket
// clients so they can detect a restart
func NewInstanceID() string {
	return uuid.New().String()
}
