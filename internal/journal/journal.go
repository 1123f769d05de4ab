package journal

import (
	"context"
	"errors"
	"time"
)

// Entry kinds.
const (
	KindConnection   = "connection"
	KindFaultRaised  = "fault_raised"
	KindFaultCleared = "fault_cleared"
)

var (
	// ErrSerialRequired indicates an entry or query without an appliance serial.
	ErrSerialRequired = errors.New("journal: serial is required")

	// ErrKindRequired indicates an entry without a kind.
	ErrKindRequired = errors.New("journal: kind is required")

	// ErrInvalidRetention indicates a non-positive prune age.
	ErrInvalidRetention = errors.New("journal: retention must be positive")
)

// Entry is one journal row.
type Entry struct {
	ID     int64  `json:"id"`
	Serial string `json:"serial"`
	Kind   string `json:"kind"`

	// Subject names what changed: the transport for connection entries,
	// the fault code for fault entries.
	Subject string `json:"subject,omitempty"`

	Previous string `json:"previous,omitempty"`
	Current  string `json:"current,omitempty"`
	Detail   string `json:"detail,omitempty"`

	// CreatedAt is always UTC.
	CreatedAt time.Time `json:"created_at"`
}

// Query selects journal entries.
type Query struct {
	Serial string

	// Kind filters by entry kind when set.
	Kind string

	// Limit caps the number of entries (default 50, max 500).
	Limit int
}

// Repository stores and retrieves journal entries.
//
// Implementations must be safe for concurrent use.
type Repository interface {
	// Record appends an entry. A zero CreatedAt is stamped with the current time.
	Record(ctx context.Context, entry Entry) error

	// List returns entries matching q, newest first.
	List(ctx context.Context, q Query) ([]Entry, error)

	// Prune deletes entries older than olderThan and returns how many were removed.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}
