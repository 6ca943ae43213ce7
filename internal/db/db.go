package db

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	DefaultSQLitePath = "convostore.db"
)

var (
	// ErrNotFound is returned when an operation targets a conversation that does not exist.
	ErrNotFound = errors.New("conversation not found")
	// ErrInvalidArgument is returned for out-of-range paging arguments.
	ErrInvalidArgument = errors.New("invalid argument")
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id INTEGER NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
    ON messages(conversation_id, created_at, id);`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS conversations (
    id BIGSERIAL PRIMARY KEY,
    title TEXT,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id BIGSERIAL PRIMARY KEY,
    conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
    ON messages(conversation_id, created_at, id);`

// Options selects the backing store.
type Options struct {
	Driver string // sqlite3 or postgres
	DSN    string // file path for sqlite3, connection string for postgres
}

// Database is the relational store for conversations and their messages.
// Queries are written with ? placeholders and rebound for postgres.
type Database struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens the store and makes sure the schema exists.
func New(ctx context.Context, opts Options) (*Database, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	dsn := opts.DSN
	switch driver {
	case DriverSQLite:
		if dsn == "" {
			dsn = DefaultSQLitePath
		}
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
		if dsn == "" {
			return nil, errors.New("postgres driver requires a dsn")
		}
	default:
		return nil, errors.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s database", driver)
	}
	if driver == DriverSQLite {
		// A single writer connection keeps sqlite from returning "database is locked".
		conn.SetMaxOpenConns(1)
	}

	d := &Database{db: conn, driver: driver, now: time.Now}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "connect to %s database", driver)
	}
	if err := d.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return d, nil
}

// Migrate creates the tables and indexes if they are missing. It is safe to run repeatedly.
func (d *Database) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if d.driver == DriverPostgres {
		schema = postgresSchema
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "create schema")
		}
	}
	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Driver reports the dialect in use.
func (d *Database) Driver() string {
	return d.driver
}

// rebind rewrites ? placeholders into $1, $2, ... for postgres.
func (d *Database) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	return rebindDollar(query)
}

func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// timestamp returns the current time in the precision both dialects round-trip.
func (d *Database) timestamp() time.Time {
	return d.now().UTC().Truncate(time.Microsecond)
}

// sqliteDSN turns on foreign keys, waits on locks and takes the write lock at BEGIN.
func sqliteDSN(dsn string) string {
	params := []string{"_foreign_keys=on", "_busy_timeout=5000", "_txlock=immediate"}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}
