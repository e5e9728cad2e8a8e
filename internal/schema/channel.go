package schema

import (
	"context"

	"github.com/tidelark/tidelark/internal/bus"
)

// Channel is one chat-platform adapter (telegram, slack, cli, …).
// Start blocks until ctx is cancelled; Send delivers one outbound message.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
}
