package listener

import (
	"context"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// Channel is the NOTIFY channel raised by the votes table triggers.
const Channel = "votes_changed"

// PGListener bridges PostgreSQL LISTEN/NOTIFY into a Hub.
type PGListener struct {
	dsn    string
	hub    *Hub
	logger *slog.Logger
}

// NewPG builds a listener over the given connection string.
func NewPG(dsn string, hub *Hub, logger *slog.Logger) *PGListener {
	return &PGListener{dsn: dsn, hub: hub, logger: logger}
}

// Run listens until ctx is cancelled. Connection drops are retried by the
// underlying pq listener; a reconnect fires a synthetic notification so
// subscribers re-read state they may have missed while disconnected.
func (l *PGListener) Run(ctx context.Context) error {
	pql := pq.NewListener(l.dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			l.logger.Warn("postgres listener event", "event", int(ev), "error", err)
		}
		if ev == pq.ListenerEventReconnected {
			l.hub.Notify()
		}
	})
	defer pql.Close()

	if err := pql.Listen(Channel); err != nil {
		return err
	}
	l.logger.Info("listening for vote changes", "channel", Channel)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-pql.Notify:
			// n is nil when the connection was re-established; the
			// reconnect callback already notified subscribers.
			if n != nil {
				l.hub.Notify()
			}
		case <-time.After(90 * time.Second):
			// Liveness probe per pq listener guidance.
			go func() {
				_ = pql.Ping()
			}()
		}
	}
}
