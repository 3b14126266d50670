package rule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxNameLength bounds saved rule names.
const maxNameLength = 64

// Saved is a named rule stored for reuse across shell sessions.
type Saved struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository persists saved rules.
type Repository interface {
	// Save stores query under name, replacing an existing entry when
	// overwrite is true. The query must parse.
	Save(ctx context.Context, name, query string, overwrite bool) (*Saved, error)

	// Get returns the saved rule with the given name, or ErrRuleNotFound.
	Get(ctx context.Context, name string) (*Saved, error)

	// List returns all saved rules ordered by name.
	List(ctx context.Context) ([]Saved, error)

	// Delete removes the named rule, or returns ErrRuleNotFound.
	Delete(ctx context.Context, name string) error
}

// savedColumns is the SELECT column list for saved rule queries.
const savedColumns = `id, name, query, created_at, updated_at`

// SQLiteRepository implements Repository using the saved_rules table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save validates and stores a rule. The stored text is the canonical
// rendering of the parsed rule.
func (r *SQLiteRepository) Save(ctx context.Context, name, query string, overwrite bool) (*Saved, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return nil, err
	}

	def, err := Parse(query)
	if err != nil {
		return nil, err
	}
	canonical, err := def.Canonical()
	if err != nil {
		return nil, err
	}

	existing, err := r.Get(ctx, name)
	switch {
	case err == nil && !overwrite:
		return nil, fmt.Errorf("%w: %s", ErrRuleExists, name)
	case err != nil && !errors.Is(err, ErrRuleNotFound):
		return nil, err
	}

	now := time.Now().UTC()
	saved := &Saved{
		ID:        uuid.New().String(),
		Name:      name,
		Query:     canonical,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if existing != nil {
		saved.ID = existing.ID
		saved.CreatedAt = existing.CreatedAt
		_, err = r.db.ExecContext(ctx,
			`UPDATE saved_rules SET query = ?, updated_at = ? WHERE id = ?`,
			saved.Query, saved.UpdatedAt.Format(time.RFC3339), saved.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("updating saved rule: %w", err)
		}
		return saved, nil
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO saved_rules (`+savedColumns+`) VALUES (?, ?, ?, ?, ?)`,
		saved.ID,
		saved.Name,
		saved.Query,
		saved.CreatedAt.Format(time.RFC3339),
		saved.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: %s", ErrRuleExists, name)
		}
		return nil, fmt.Errorf("inserting saved rule: %w", err)
	}

	return saved, nil
}

// Get retrieves a saved rule by name.
func (r *SQLiteRepository) Get(ctx context.Context, name string) (*Saved, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+savedColumns+` FROM saved_rules WHERE name = ?`, name)

	saved, err := scanSaved(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, name)
		}
		return nil, fmt.Errorf("querying saved rule: %w", err)
	}
	return saved, nil
}

// List retrieves all saved rules ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Saved, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+savedColumns+` FROM saved_rules ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying saved rules: %w", err)
	}
	defer rows.Close()

	var out []Saved
	for rows.Next() {
		saved, err := scanSaved(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning saved rule: %w", err)
		}
		out = append(out, *saved)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating saved rules: %w", err)
	}
	return out, nil
}

// Delete removes a saved rule by name.
func (r *SQLiteRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM saved_rules WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting saved rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, name)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSaved(s scanner) (*Saved, error) {
	var saved Saved
	var createdAt, updatedAt string
	if err := s.Scan(&saved.ID, &saved.Name, &saved.Query, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	saved.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	saved.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &saved, nil
}

func validateName(name string) error {
	if name == "" || len(name) > maxNameLength {
		return fmt.Errorf("%w: must be 1-%d characters", ErrInvalidName, maxNameLength)
	}
	if strings.IndexFunc(name, func(r rune) bool { return r == ' ' || r == '\t' }) >= 0 {
		return fmt.Errorf("%w: must not contain whitespace", ErrInvalidName)
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
