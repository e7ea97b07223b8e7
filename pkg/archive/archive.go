// Package archive provides a durable append-only record of every
// exchanged turn, separate from the bounded reply-context history. It is
// optional: the message path never depends on it, and archive failures
// never reach the user.
//
// Two backends share the database/sql surface: an embedded SQLite file
// (the default, no external service needed) and Postgres for deployments
// that already run one.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Archive is a turn archive over SQLite or Postgres.
type Archive struct {
	db     *sql.DB
	driver string
}

// Stats holds archive counts for diagnostics.
type Stats struct {
	Turns         int `json:"turns"`
	Conversations int `json:"conversations"`
}

// Open connects to the archive database. driver is "sqlite" or "pgx";
// dsn is a file path for SQLite or a postgres:// URL for pgx.
func Open(ctx context.Context, driver, dsn string) (*Archive, error) {
	switch driver {
	case "", "sqlite":
		driver = "sqlite"
		// WAL for concurrent diagnostics reads, shared busy timeout.
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dsn)
	case "pgx":
	default:
		return nil, fmt.Errorf("unsupported archive driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping archive db: %w", err)
	}

	a := &Archive{db: db, driver: driver}
	if err := a.init(ctx); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("archive opened", "driver", driver)
	return a, nil
}

// Close closes the archive database.
func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) init(ctx context.Context) error {
	schema := `CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id TEXT NOT NULL,
		speaker TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`
	if a.driver == "pgx" {
		schema = `CREATE TABLE IF NOT EXISTS turns (
			id BIGSERIAL PRIMARY KEY,
			chat_id TEXT NOT NULL,
			speaker TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`
	}
	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create turns table: %w", err)
	}

	idx := `CREATE INDEX IF NOT EXISTS idx_turns_chat ON turns (chat_id, created_at)`
	if _, err := a.db.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("create turns index: %w", err)
	}
	return nil
}

// Record appends one turn to the archive.
func (a *Archive) Record(ctx context.Context, chatID, speaker, text string) error {
	query := `INSERT INTO turns (chat_id, speaker, text, created_at) VALUES (?, ?, ?, ?)`
	if a.driver == "pgx" {
		query = `INSERT INTO turns (chat_id, speaker, text, created_at) VALUES ($1, $2, $3, $4)`
	}
	_, err := a.db.ExecContext(ctx, query, chatID, speaker, text, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record turn: %w", err)
	}
	return nil
}

// Stats returns total turn and distinct conversation counts.
func (a *Archive) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	row := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT chat_id) FROM turns`)
	if err := row.Scan(&s.Turns, &s.Conversations); err != nil {
		return Stats{}, fmt.Errorf("archive stats: %w", err)
	}
	return s, nil
}
