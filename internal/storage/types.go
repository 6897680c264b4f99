package storage

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("event not found")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (pure Go driver)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default (5s)
}

// Event is a scheduled publication.
//
// EventDatetime and PublishDatetime are kept as the operator typed them.
// Only PublishDatetime is interpreted (see ParseDateTime); EventDatetime is a
// display and sort key.
type Event struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	EventDatetime   string     `json:"event_datetime"`
	PublishDatetime string     `json:"publish_datetime"`
	DisplayText     string     `json:"display_text"`
	Deadline        *string    `json:"deadline"`
	Sent            bool       `json:"sent"`
	CreatedAt       time.Time  `json:"created_at"`
	SentAt          *time.Time `json:"sent_at"`
}

// NewEvent is the admin input for CreateEvent. An empty Deadline is stored as NULL.
type NewEvent struct {
	Name            string
	EventDatetime   string
	PublishDatetime string
	DisplayText     string
	Deadline        string
}

// AuditEntry records an operator action or a dispatch outcome.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At      time.Time
	Actor   string // "admin" or "dispatcher"
	Remote  string
	Action  string // e.g. "event.create", "event.delete", "event.push"
	EventID int64
	OK      bool
	Error   string
	TookMS  int64
	Meta    string
}
