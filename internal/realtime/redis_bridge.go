package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// PubSub is implemented by redisclient.Client.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RedisBridge carries changes between processes. The worker owns the single
// Postgres listener and relays into Redis; every API instance subscribes and
// feeds its local hub.
type RedisBridge struct {
	ps      PubSub
	channel string
	log     *slog.Logger
}

func NewRedisBridge(ps PubSub, channel string, log *slog.Logger) *RedisBridge {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBridge{ps: ps, channel: channel, log: log}
}

// Relay returns a Sink that publishes each change to Redis. Publish errors
// are logged; realtime delivery is best effort.
func (b *RedisBridge) Relay(ctx context.Context) Sink {
	return SinkFunc(func(c Change) {
		payload, err := json.Marshal(c)
		if err != nil {
			b.log.ErrorContext(ctx, "realtime_relay_marshal_failed", "table", c.Table, "err", err)
			return
		}
		if err := b.ps.Publish(ctx, b.channel, payload); err != nil {
			b.log.WarnContext(ctx, "realtime_relay_publish_failed", "table", c.Table, "change_id", c.ChangeID, "err", err)
		}
	})
}

// Subscribe feeds Redis messages into sink until ctx ends or the
// subscription drops. Callers wrap it in their own retry loop.
func (b *RedisBridge) Subscribe(ctx context.Context, sink Sink) error {
	msgs, err := b.ps.Subscribe(ctx, b.channel)
	if err != nil {
		return err
	}

	b.log.InfoContext(ctx, "realtime_redis_subscribed", "channel", b.channel)

	for payload := range msgs {
		c, err := ParseChange(payload)
		if err != nil {
			b.log.WarnContext(ctx, "realtime_bad_payload", "channel", b.channel, "err", err)
			continue
		}
		sink.Publish(c)
	}

	return ctx.Err()
}

// Run keeps Subscribe alive, retrying with capped exponential backoff.
func (b *RedisBridge) Run(ctx context.Context, sink Sink) error {
	backoff := 500 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for {
		err := b.Subscribe(ctx, sink)
		if ctx.Err() != nil {
			return nil
		}

		b.log.WarnContext(ctx, "realtime_redis_disconnected", "channel", b.channel, "err", err, "retry_in_ms", backoff.Milliseconds())

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
