package broadcast

import (
	"context"

	"github.com/OneClickTag/tracksync/internal/core/domain"
)

// Broadcaster publishes batch progress events to the real-time channel.
// Delivery is fire-and-forget: implementations log failures and never return
// them, so broadcasting can never roll back a state change.
type Broadcaster interface {
	Publish(ctx context.Context, event domain.ProgressEvent)
}

// Noop discards all events. Used when no Redis is configured and in tests.
type Noop struct{}

func (Noop) Publish(ctx context.Context, event domain.ProgressEvent) {}
