package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/coursegen/internal/platform/logger"
	"github.com/yungbote/coursegen/internal/realtime"
)

type Config struct {
	Addr         string
	Channel      string
	StreamMaxLen int64
}

type redisBus struct {
	log       *logger.Logger
	rdb       *goredis.Client
	channel   string
	streamMax int64
}

// NewRedisBus publishes on one pub/sub channel and appends every message to a
// capped stream per realtime channel so late subscribers can catch up.
func NewRedisBus(log *logger.Logger, cfg Config) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	ch := strings.TrimSpace(cfg.Channel)
	if ch == "" {
		ch = "coursegen:sse"
	}
	maxLen := cfg.StreamMaxLen
	if maxLen <= 0 {
		maxLen = 500
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisBus{
		log:       log.With("service", "RedisSSEBus"),
		rdb:       rdb,
		channel:   ch,
		streamMax: maxLen,
	}, nil
}

func (b *redisBus) streamKey(channel string) string {
	return b.channel + ":stream:" + channel
}

func (b *redisBus) Publish(ctx context.Context, msg realtime.SSEMessage) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis SSE bus not initialized")
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if msg.Channel != "" {
		err := b.rdb.XAdd(ctx, &goredis.XAddArgs{
			Stream: b.streamKey(msg.Channel),
			MaxLen: b.streamMax,
			Approx: true,
			Values: map[string]interface{}{"msg": string(raw)},
		}).Err()
		if err != nil {
			b.log.Warn("redis stream append failed", "channel", msg.Channel, "error", err)
		}
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *redisBus) Replay(ctx context.Context, channel string, limit int) ([]realtime.SSEMessage, error) {
	if b == nil || b.rdb == nil {
		return nil, fmt.Errorf("redis SSE bus not initialized")
	}
	if channel == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	entries, err := b.rdb.XRevRangeN(ctx, b.streamKey(channel), "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis replay: %w", err)
	}
	out := make([]realtime.SSEMessage, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		raw, _ := entries[i].Values["msg"].(string)
		var msg realtime.SSEMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			b.log.Warn("bad redis stream entry", "id", entries[i].ID, "error", err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (b *redisBus) StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis SSE bus not initialized")
	}
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var msg realtime.SSEMessage
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					b.log.Warn("bad redis SSE payload", "error", err)
					continue
				}
				onMsg(msg)
			}
		}
	}()
	return nil
}

func (b *redisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
