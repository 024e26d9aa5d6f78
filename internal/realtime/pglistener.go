package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Conn is the slice of *pgxpool.Conn the listener needs.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Release()
}

// Acquirer hands out dedicated connections. LISTEN state lives on the
// connection, so it is held for as long as the listener runs.
type Acquirer interface {
	Acquire(ctx context.Context) (Conn, error)
}

type poolAcquirer struct{ pool *pgxpool.Pool }

func (p poolAcquirer) Acquire(ctx context.Context) (Conn, error) {
	c, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return pooledConn{c}, nil
}

type pooledConn struct{ *pgxpool.Conn }

func (c pooledConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	return c.Conn.Conn().WaitForNotification(ctx)
}

func PoolAcquirer(pool *pgxpool.Pool) Acquirer {
	return poolAcquirer{pool: pool}
}

type PGListener struct {
	acq     Acquirer
	channel string
	sink    Sink
	log     *slog.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewPGListener(acq Acquirer, channel string, sink Sink, log *slog.Logger) *PGListener {
	if log == nil {
		log = slog.Default()
	}
	return &PGListener{
		acq:        acq,
		channel:    channel,
		sink:       sink,
		log:        log,
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
}

// Run listens until ctx ends, reconnecting with exponential backoff. It
// returns nil on cancellation.
func (l *PGListener) Run(ctx context.Context) error {
	backoff := l.minBackoff

	for {
		connected, err := l.listenOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = l.minBackoff
		}

		l.log.WarnContext(ctx, "realtime_listener_disconnected",
			"channel", l.channel,
			"err", err,
			"retry_in_ms", backoff.Milliseconds(),
		)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}

		backoff *= 2
		if backoff > l.maxBackoff {
			backoff = l.maxBackoff
		}
	}
}

// listenOnce reports whether LISTEN succeeded before the connection failed.
func (l *PGListener) listenOnce(ctx context.Context) (bool, error) {
	conn, err := l.acq.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return false, fmt.Errorf("listen: %w", err)
	}
	l.log.InfoContext(ctx, "realtime_listener_started", "channel", l.channel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true, err
			}
			return true, fmt.Errorf("wait: %w", err)
		}

		c, err := ParseChange([]byte(n.Payload))
		if err != nil {
			l.log.WarnContext(ctx, "realtime_bad_payload", "channel", n.Channel, "err", err)
			continue
		}
		l.sink.Publish(c)
	}
}
