package bus

import (
	"context"

	"github.com/yungbote/coursegen/internal/realtime"
)

// Bus carries realtime messages between processes. Replay returns the most
// recent messages of one channel, oldest first.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Replay(ctx context.Context, channel string, limit int) ([]realtime.SSEMessage, error)
	Close() error
}
