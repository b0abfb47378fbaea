// Package sqlite provides the SQLite implementation of the store: schema
// initialization, the savepoint row writer and the foreign-key healer.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrations are applied in this order; later scripts reference tables created
// by earlier ones.
var migrations = []string{
	"001_locations.sql",
	"002_evse_ids.sql",
	"003_connector_groups.sql",
	"004_availability_log.sql",
	"005_availability_aggregated.sql",
	"006_latest_revision_views.sql",
	"007_price_groups.sql",
	"008_price_time_slots.sql",
}

// DefaultBusyTimeout is how long a connection waits for a lock before failing.
const DefaultBusyTimeout = 30 * time.Second

// Config holds configuration for the SQLite store.
type Config struct {
	// Path to the SQLite database file. The parent directory is created.
	Path string

	// ReadOnly opens the database in read-only mode and skips schema setup.
	ReadOnly bool

	// BusyTimeout bounds lock waits. Defaults to DefaultBusyTimeout.
	BusyTimeout time.Duration

	// MaxOpenConns caps the pool. Defaults to 4 so resolver reads can proceed
	// alongside one writer under WAL.
	MaxOpenConns int
}

// Store owns the database handle.
type Store struct {
	db      *sql.DB
	path    string
	cfg     Config
	logger  *zap.Logger
	created []string
}

// Exists reports whether a database file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Open opens (creating if needed) the database and, unless read-only, applies
// the schema. Failure to open is fatal for the caller's run.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite: Path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = DefaultBusyTimeout
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 4
	}

	if !cfg.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	existed := Exists(cfg.Path)

	db, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", cfg.Path, err)
	}

	s := &Store{
		db:     db,
		path:   cfg.Path,
		cfg:    cfg,
		logger: logger.With(zap.String("db", cfg.Path)),
	}

	if existed {
		s.logger.Debug("database exists, adding tables that do not exist")
	} else {
		s.logger.Debug("database initialized, adding tables")
	}

	if !cfg.ReadOnly {
		created, err := s.InitSchema(ctx)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
		s.created = created
	}

	return s, nil
}

// dsn enables foreign keys and the busy timeout on every pooled connection.
// PRAGMA foreign_keys is a no-op inside a transaction, so it has to be set at
// connect time.
func dsn(cfg Config) string {
	params := fmt.Sprintf("?_foreign_keys=on&_busy_timeout=%d", cfg.BusyTimeout.Milliseconds())
	if cfg.ReadOnly {
		params += "&mode=ro"
	}
	return "file:" + cfg.Path + params
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DB returns the underlying pool. Pipelines begin their transactions on it.
func (s *Store) DB() *sql.DB {
	return s.db
}

// CreatedTables returns the tables created when the store was opened.
func (s *Store) CreatedTables() []string {
	return s.created
}

// ────────────────────────────────────────────────────────────────────────────────
// Schema Initialization
// ────────────────────────────────────────────────────────────────────────────────

// InitSchema applies every migration in order and switches the database to WAL
// journaling. It is idempotent and returns the names of newly created tables.
func (s *Store) InitSchema(ctx context.Context) ([]string, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	before, err := tableNames(ctx, conn)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("tables before migrations", zap.Strings("tables", before))

	for _, name := range migrations {
		script, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		s.logger.Debug("executing migration", zap.String("script", name))
		if _, err := conn.ExecContext(ctx, string(script)); err != nil {
			return nil, fmt.Errorf("execute migration %s: %w", name, err)
		}
	}

	after, err := tableNames(ctx, conn)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("tables after migrations", zap.Strings("tables", after))

	var added []string
	for _, name := range after {
		if !slices.Contains(before, name) {
			added = append(added, name)
		}
	}
	if len(added) > 0 {
		s.logger.Info("new tables added", zap.Strings("tables", added))
	} else {
		s.logger.Debug("no new tables were added")
	}

	var mode string
	if err := conn.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&mode); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	s.logger.Info("database initialized",
		zap.String("journal_mode", mode),
		zap.Duration("busy_timeout", s.cfg.BusyTimeout),
	)

	return added, nil
}

func tableNames(ctx context.Context, q *sql.Conn) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
