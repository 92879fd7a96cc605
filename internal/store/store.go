// Package store persists calls, conversation turns and exception contacts.
//
// It runs against PostgreSQL in production and SQLite for local development
// and tests; the backend is chosen from the DSN. All statements are single-row
// atomic operations, so webhook handlers for different calls can share one
// Store without coordination.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
	_ "modernc.org/sqlite"             // registers "sqlite" driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// timeFormat is how timestamps are stored, portable across both backends.
// Fixed-width fractional seconds keep the TEXT column's lexicographic order
// identical to chronological order, which ORDER BY start_time relies on.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store persists concierge data to PostgreSQL or SQLite.
type Store struct {
	db *sql.DB
}

// Open connects to the database at dsn and applies pending migrations.
// A postgres:// or postgresql:// DSN selects the pgx driver; anything else
// is treated as a SQLite path (":memory:" included).
func Open(dsn string) (*Store, error) {
	driver := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "pgx"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store open: %w", err)
	}
	if driver == "sqlite" {
		// A second pooled connection to a :memory: database would be a fresh,
		// unmigrated database.
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store ping: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM schema_version`)
	if err = row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		for _, stmt := range splitStatements(string(data)) {
			if _, execErr := db.Exec(stmt); execErr != nil {
				return fmt.Errorf("migration %d: %w", i, execErr)
			}
		}
		if _, execErr := db.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// splitStatements breaks a migration file into individual statements; the
// SQLite driver executes one statement per Exec call.
func splitStatements(script string) []string {
	parts := strings.Split(script, ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
