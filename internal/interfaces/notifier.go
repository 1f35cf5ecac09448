package interfaces

import (
	"context"

	"github.com/ternarybob/pipewatch/internal/models"
)

// Notifier delivers user-facing notices raised by job monitors
type Notifier interface {
	Notify(ctx context.Context, notice models.Notice)
}
