package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "eventpush/pkg/logx"
)

// Store is the persistence API used by the dispatcher and the admin surface.
type Store interface {
	CreateEvent(ctx context.Context, in NewEvent) (Event, error)
	GetEvent(ctx context.Context, id int64) (Event, error)
	// ListEvents returns every event ordered by event_datetime (then id).
	ListEvents(ctx context.Context) ([]Event, error)
	// ListPending returns events with sent=false. Order is unspecified.
	ListPending(ctx context.Context) ([]Event, error)
	CountPending(ctx context.Context) (int, error)
	DeleteEvent(ctx context.Context, id int64) error
	// MarkSent flips sent to true. It reports false when the event no longer
	// exists or was already sent; the row is never recreated.
	MarkSent(ctx context.Context, id int64, at time.Time) (bool, error)

	AppendAudit(ctx context.Context, e AuditEntry) error
	PruneAudit(ctx context.Context, before time.Time) (int64, error)

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)

	Ping(ctx context.Context) error
	Close() error
}

// Open initializes the configured store. An empty driver means sqlite.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
