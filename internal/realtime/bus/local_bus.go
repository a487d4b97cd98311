package bus

import (
	"context"
	"sync"

	"github.com/yungbote/coursegen/internal/platform/logger"
	"github.com/yungbote/coursegen/internal/realtime"
)

// localBus is the in-process bus used when no redis address is configured.
// It keeps a bounded backlog per channel.
type localBus struct {
	log     *logger.Logger
	mu      sync.RWMutex
	subs    []func(realtime.SSEMessage)
	backlog map[string][]realtime.SSEMessage
	max     int
}

func NewLocalBus(log *logger.Logger, maxBacklog int) Bus {
	if maxBacklog <= 0 {
		maxBacklog = 500
	}
	return &localBus{
		log:     log.With("service", "LocalSSEBus"),
		backlog: map[string][]realtime.SSEMessage{},
		max:     maxBacklog,
	}
}

func (b *localBus) Publish(ctx context.Context, msg realtime.SSEMessage) error {
	b.mu.Lock()
	if msg.Channel != "" {
		q := append(b.backlog[msg.Channel], msg)
		if len(q) > b.max {
			q = q[len(q)-b.max:]
		}
		b.backlog[msg.Channel] = q
	}
	subs := append([]func(realtime.SSEMessage){}, b.subs...)
	b.mu.Unlock()

	for _, fn := range subs {
		fn(msg)
	}
	return nil
}

func (b *localBus) StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error {
	if onMsg == nil {
		return nil
	}
	b.mu.Lock()
	b.subs = append(b.subs, onMsg)
	b.mu.Unlock()
	return nil
}

func (b *localBus) Replay(ctx context.Context, channel string, limit int) ([]realtime.SSEMessage, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q := b.backlog[channel]
	if limit > 0 && len(q) > limit {
		q = q[len(q)-limit:]
	}
	return append([]realtime.SSEMessage(nil), q...), nil
}

func (b *localBus) Close() error { return nil }
