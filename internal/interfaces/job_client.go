package interfaces

import (
	"context"

	"github.com/ternarybob/pipewatch/internal/models"
)

// JobStatusClient is the I/O boundary to one job kind's backend endpoints.
// Implementations hold no job state.
type JobStatusClient interface {
	// Kind returns the job kind this client is bound to
	Kind() models.JobKind

	// GetStatus reads the current snapshot. "No job yet" is a normal
	// not-running status, never an error.
	GetStatus(ctx context.Context) (*models.JobStatus, error)

	// Start requests a launch. A refusal (already running, already
	// collected today) is a successful call with an unaccepted response.
	Start(ctx context.Context, req models.StartRequest) (*models.StartResponse, error)

	// Stop requests cooperative cancellation
	Stop(ctx context.Context) (*models.StopResponse, error)
}
