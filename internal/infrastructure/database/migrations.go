package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"time"
)

// MigrationsFS holds the migration files. The migrations package sets it
// to its embedded files; tests may substitute any fs.FS. Nil means there
// are no migrations.
var MigrationsFS fs.FS

// MigrationsDir is the directory within MigrationsFS holding the files.
var MigrationsDir = "."

// ErrNoDownMigration is returned by MigrateDown when the latest applied
// migration has no .down.sql file.
var ErrNoDownMigration = errors.New("database: migration has no down SQL")

// migrationFile matches YYYYMMDD_HHMMSS[_name].up.sql and .down.sql.
var migrationFile = regexp.MustCompile(`^(\d{8}_\d{6})(?:_([A-Za-z0-9_]+))?\.(up|down)\.sql$`)

// Migration is one schema change, read from an up file and an optional
// down file sharing a version prefix.
type Migration struct {
	Version string // YYYYMMDD_HHMMSS
	Name    string
	UpSQL   string
	DownSQL string
}

// MigrationRecord is a row of schema_migrations.
type MigrationRecord struct {
	Version   string
	AppliedAt time.Time
}

// migrationPlan sets the applied history beside the migrations on disk.
type migrationPlan struct {
	available []Migration // ordered by version
	applied   []MigrationRecord
	pending   []Migration
}

// Migrate applies all pending migrations in version order and returns
// how many were applied by this call.
//
// Each migration runs in its own transaction. When migration N fails the
// earlier ones stay committed, N is rolled back, and the count returned
// is the number committed before the failure. Running Migrate again
// resumes at N.
func (db *DB) Migrate(ctx context.Context) (int, error) {
	plan, err := db.plan(ctx)
	if err != nil {
		return 0, err
	}

	for i, m := range plan.pending {
		err := db.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
				m.Version, time.Now().UTC().Format(time.RFC3339),
			)
			return err
		})
		if err != nil {
			return i, fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
	}

	return len(plan.pending), nil
}

// MigrateDown reverts the most recently applied migration with its down
// SQL and returns it. It returns nil, nil when nothing is applied.
func (db *DB) MigrateDown(ctx context.Context) (*Migration, error) {
	plan, err := db.plan(ctx)
	if err != nil {
		return nil, err
	}
	if len(plan.applied) == 0 {
		return nil, nil
	}

	latest := plan.applied[len(plan.applied)-1].Version
	i := sort.Search(len(plan.available), func(i int) bool {
		return plan.available[i].Version >= latest
	})
	if i == len(plan.available) || plan.available[i].Version != latest {
		return nil, fmt.Errorf("migration %s is applied but its files are missing", latest)
	}

	m := plan.available[i]
	if m.DownSQL == "" {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNoDownMigration, m.Version, m.Name)
	}

	err = db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.DownSQL); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = ?`, m.Version)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reverting migration %s (%s): %w", m.Version, m.Name, err)
	}
	return &m, nil
}

// MigrationStatus reports which migrations are applied and which are still
// pending. The `rules status` command prints it.
func (db *DB) MigrationStatus(ctx context.Context) ([]MigrationRecord, []Migration, error) {
	plan, err := db.plan(ctx)
	if err != nil {
		return nil, nil, err
	}
	return plan.applied, plan.pending, nil
}

func (db *DB) plan(ctx context.Context) (*migrationPlan, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("creating migrations table: %w", err)
	}

	available, err := loadMigrations()
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}
	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	done := make(map[string]bool, len(applied))
	for _, r := range applied {
		done[r.Version] = true
	}

	plan := &migrationPlan{available: available, applied: applied}
	for _, m := range available {
		if !done[m.Version] {
			plan.pending = append(plan.pending, m)
		}
	}
	return plan, nil
}

func (db *DB) appliedMigrations(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := db.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	var records []MigrationRecord
	for rows.Next() {
		var (
			r         MigrationRecord
			appliedAt string
		)
		if err := rows.Scan(&r.Version, &appliedAt); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		r.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt) //nolint:errcheck // written by Migrate
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}
	return records, nil
}

// inTx runs fn in a transaction, committing only when fn succeeds.
func (db *DB) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck // fn's error is the one reported
		return err
	}
	return tx.Commit()
}

// loadMigrations reads MigrationsFS and pairs up/down files by version.
// Files not named like migrations are ignored.
func loadMigrations() ([]Migration, error) {
	if MigrationsFS == nil {
		return nil, nil
	}

	entries, err := fs.ReadDir(MigrationsFS, MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	byVersion := make(map[string]*Migration)
	hasUp := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		f, ok := parseMigrationFilename(entry.Name())
		if !ok {
			continue
		}

		data, err := fs.ReadFile(MigrationsFS, path.Join(MigrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		m := byVersion[f.version]
		if m == nil {
			m = &Migration{Version: f.version, Name: f.name}
			byVersion[f.version] = m
		}
		if f.up {
			m.UpSQL = string(data)
			hasUp[f.version] = true
		} else {
			m.DownSQL = string(data)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for version, m := range byVersion {
		if !hasUp[version] {
			return nil, fmt.Errorf("migration %s (%s) has a down file but no up file", m.Version, m.Name)
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// migrationFilename is a parsed migration file name.
type migrationFilename struct {
	version string
	name    string // the version again when the file has no name part
	up      bool
}

func parseMigrationFilename(filename string) (migrationFilename, bool) {
	m := migrationFile.FindStringSubmatch(filename)
	if m == nil {
		return migrationFilename{}, false
	}
	f := migrationFilename{version: m[1], name: m[2], up: m[3] == "up"}
	if f.name == "" {
		f.name = f.version
	}
	return f, true
}
