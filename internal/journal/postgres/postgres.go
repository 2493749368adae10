// Package postgres implements a [journal.Journal] backed by a PostgreSQL
// journal_entries table.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/murmur/internal/journal"
)

// Schema is the SQL DDL for the journal_entries table. Execute it via
// [Journal.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS journal_entries (
    id          BIGSERIAL PRIMARY KEY,
    kind        TEXT        NOT NULL,
    at          TIMESTAMPTZ NOT NULL,
    user_text   TEXT        NOT NULL DEFAULT '',
    reply       TEXT        NOT NULL DEFAULT '',
    display     TEXT        NOT NULL DEFAULT '',
    trigger     TEXT        NOT NULL DEFAULT '',
    outcome     TEXT        NOT NULL DEFAULT '',
    reminder_id TEXT        NOT NULL DEFAULT '',
    due         TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_journal_entries_at ON journal_entries(at);
`

// DB is the database interface used by [Journal]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Journal is a [journal.Journal] that writes to PostgreSQL.
// All methods are safe for concurrent use.
type Journal struct {
	db   DB
	pool *pgxpool.Pool
}

// Compile-time interface check.
var _ journal.Journal = (*Journal)(nil)

// New wraps an existing connection or pool. The caller owns db and is
// responsible for calling [Journal.Migrate] before the first write.
func New(db DB) *Journal {
	return &Journal{db: db}
}

// Open creates a connection pool for dsn, verifies it with a ping and runs
// [Journal.Migrate]. Close releases the pool.
func Open(ctx context.Context, dsn string) (*Journal, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("journal: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}

	j := &Journal{db: pool, pool: pool}
	if err := j.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return j, nil
}

// Migrate executes the [Schema] DDL, creating the table and index if they do
// not already exist.
func (j *Journal) Migrate(ctx context.Context) error {
	if _, err := j.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("journal: migrate: %w", err)
	}
	return nil
}

// Record implements [journal.Journal].
func (j *Journal) Record(ctx context.Context, e journal.Entry) error {
	const q = `
		INSERT INTO journal_entries
		    (kind, at, user_text, reply, display, trigger, outcome, reminder_id, due)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := j.db.Exec(ctx, q,
		string(e.Kind),
		e.At,
		e.User,
		e.Reply,
		e.Display,
		e.Trigger,
		e.Outcome,
		e.ReminderID,
		nullableTime(e.Due),
	)
	if err != nil {
		return fmt.Errorf("journal: record: %w", err)
	}
	return nil
}

// Recent implements [journal.Journal]. Entries are returned oldest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]journal.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
		SELECT kind, at, user_text, reply, display, trigger, outcome, reminder_id, due
		FROM   (SELECT * FROM journal_entries ORDER BY at DESC, id DESC LIMIT $1) recent
		ORDER  BY at, id`

	rows, err := j.db.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (journal.Entry, error) {
		var (
			e    journal.Entry
			kind string
			due  *time.Time
		)
		if err := row.Scan(&kind, &e.At, &e.User, &e.Reply, &e.Display, &e.Trigger, &e.Outcome, &e.ReminderID, &due); err != nil {
			return journal.Entry{}, err
		}
		e.Kind = journal.Kind(kind)
		if due != nil {
			e.Due = *due
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal: scan: %w", err)
	}
	return entries, nil
}

// Ping checks the pool connection. It is a no-op for journals built with [New].
func (j *Journal) Ping(ctx context.Context) error {
	if j.pool == nil {
		return nil
	}
	return j.pool.Ping(ctx)
}

// Close releases the pool opened by [Open]. Journals built with [New] leave
// the caller's connection open.
func (j *Journal) Close() error {
	if j.pool != nil {
		j.pool.Close()
	}
	return nil
}

// nullableTime maps the zero time to SQL NULL.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
