package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	// timeLayout is fixed width so created_at sorts and compares as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// SQLiteRepository implements Repository on the journal table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on an open database whose schema
// has been migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Record inserts one entry.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - entry: the entry to persist; Serial and Kind are required
//
// Returns:
//   - error: ErrSerialRequired, ErrKindRequired, or the database error
func (r *SQLiteRepository) Record(ctx context.Context, entry Entry) error {
	if entry.Serial == "" {
		return ErrSerialRequired
	}
	if entry.Kind == "" {
		return ErrKindRequired
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO journal (serial, kind, subject, previous, current, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Serial,
		entry.Kind,
		entry.Subject,
		entry.Previous,
		entry.Current,
		entry.Detail,
		formatTime(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

// List returns entries for q.Serial ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - q: serial (required), optional kind filter and limit (default 50, max 500)
//
// Returns:
//   - []Entry: matching entries, never nil
//   - error: ErrSerialRequired or the query error
func (r *SQLiteRepository) List(ctx context.Context, q Query) ([]Entry, error) {
	if q.Serial == "" {
		return nil, ErrSerialRequired
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var sb strings.Builder
	sb.WriteString(`SELECT id, serial, kind, subject, previous, current, detail, created_at
		 FROM journal
		 WHERE serial = ?`)
	args := []any{q.Serial}
	if q.Kind != "" {
		sb.WriteString(" AND kind = ?")
		args = append(args, q.Kind)
	}
	sb.WriteString(" ORDER BY created_at DESC, id DESC LIMIT ?")
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Serial, &e.Kind, &e.Subject, &e.Previous, &e.Current, &e.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than olderThan.
//
// Returns:
//   - int64: number of rows deleted
//   - error: ErrInvalidRetention or the database error
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := formatTime(r.now().Add(-olderThan))
	result, err := r.db.ExecContext(ctx, "DELETE FROM journal WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting journal entries: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
