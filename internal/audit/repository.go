package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Actions recorded in the journal.
const (
	ActionFilterApply = "filter.apply"
	ActionFilterClear = "filter.clear"
	ActionRuleSave    = "rule.save"
	ActionRuleLoad    = "rule.load"
	ActionRuleDelete  = "rule.delete"
	ActionPublish     = "mqtt.publish"
	ActionSubscribe   = "mqtt.subscribe"
	ActionUnsubscribe = "mqtt.unsubscribe"
)

// Sources of journal entries.
const (
	SourceShell = "shell"
	SourceCLI   = "cli"
	SourceAPI   = "api"
)

// List limits.
const (
	DefaultLimit = 20
	MaxLimit     = 200
)

// ErrInvalidEntry is returned when an entry has no action.
var ErrInvalidEntry = errors.New("audit: invalid entry")

// Entry is one journal line.
type Entry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Subject   string    `json:"subject,omitempty"` // rule name or topic
	Detail    string    `json:"detail,omitempty"`  // rule text or payload summary
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter selects journal entries. Zero values match everything.
type Filter struct {
	Action  string
	Subject string
	Limit   int // default DefaultLimit, max MaxLimit
}

// Repository stores journal entries.
type Repository interface {
	Record(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

// SQLiteRepository implements Repository using the activity_log table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a journal over db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts e, filling ID, CreatedAt and Source when empty.
func (r *SQLiteRepository) Record(ctx context.Context, e *Entry) error {
	if e.Action == "" {
		return fmt.Errorf("%w: action is required", ErrInvalidEntry)
	}
	if e.ID == "" {
		e.ID = "act-" + uuid.NewString()[:8]
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Source == "" {
		e.Source = SourceShell
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO activity_log (id, action, subject, detail, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Action, nullableString(e.Subject), nullableString(e.Detail),
		e.Source, e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting activity: %w", err)
	}
	return nil
}

// nullableString maps "" to NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns matching entries, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) ([]Entry, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}

	var conditions []string
	var args []any
	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.Subject != "" {
		conditions = append(conditions, "subject = ?")
		args = append(args, filter.Subject)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, action, subject, detail, source, created_at FROM activity_log %s ORDER BY created_at DESC, rowid DESC LIMIT ?",
		where,
	)
	args = append(args, filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var subject, detail sql.NullString
		var createdAt string

		if err := rows.Scan(&e.ID, &e.Action, &subject, &detail, &e.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		e.Subject = subject.String
		e.Detail = detail.String

		e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing activity timestamp %q: %w", createdAt, err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity: %w", err)
	}
	return entries, nil
}
