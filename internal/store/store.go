// Package store is the on-device persistence layer: one SQLite database
// holding every farm entity, the sync queue and the cached credential. All
// writes go through the write queue, so the database only ever sees one
// writer; reads go straight to the pool.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/farmkeeper/farmkeeper/internal/common"
	"github.com/farmkeeper/farmkeeper/internal/logging"
	"github.com/farmkeeper/farmkeeper/internal/retryx"
	"github.com/farmkeeper/farmkeeper/internal/serializer"

	_ "modernc.org/sqlite"
)

// Config holds local-store settings.
type Config struct {
	// Path is the database file. An empty path opens an in-memory database
	// directly (used by tests).
	Path string

	// BusyTimeout is how long a connection waits on a locked database.
	BusyTimeout time.Duration

	// InitAttempts and InitBaseDelay control the open/schema retry policy
	// before the in-memory fallback kicks in.
	InitAttempts  uint64
	InitBaseDelay time.Duration
}

// Store owns the local database: schema, entity rows, sync queue and the
// credential row. It is safe for concurrent use.
type Store struct {
	db        *sql.DB
	writes    *serializer.Queue
	log       logging.Logger
	ephemeral bool

	now func() time.Time
}

// Open opens (or creates) the database and brings the schema up to date.
// Persistent-storage failures are retried with backoff; if the path stays
// unusable the store falls back to an in-memory database so the app remains
// usable for the session, and Ephemeral reports true.
func Open(ctx context.Context, cfg Config, writes *serializer.Queue, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Nop{}
	}

	s := &Store{
		writes: writes,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}

	err := retryx.Do(ctx, cfg.InitAttempts, cfg.InitBaseDelay, func(ctx context.Context) error {
		db, err := openDB(ctx, dsnFor(cfg.Path, cfg.BusyTimeout))
		if err != nil {
			return err
		}
		s.db = db
		return nil
	})
	if err != nil {
		log.Error(ctx, "persistent store unavailable, falling back to in-memory database",
			"path", cfg.Path, "error", err)

		token, tokenErr := common.MakeRandHexString(4)
		if tokenErr != nil {
			return nil, tokenErr
		}
		mem := fmt.Sprintf("file:fallback-%s?mode=memory&cache=shared", token)
		db, memErr := openDB(ctx, dsnFor(mem, cfg.BusyTimeout))
		if memErr != nil {
			return nil, fmt.Errorf("in-memory fallback: %w", memErr)
		}
		s.db = db
		s.ephemeral = true
	}

	return s, nil
}

// dsnFor appends the connection pragmas every connection needs. journal_mode
// is persistent but harmless to re-apply; busy_timeout and foreign_keys are
// per-connection, so they must ride on the DSN rather than a one-off Exec.
func dsnFor(path string, busyTimeout time.Duration) string {
	if path == "" {
		path = "file::memory:?cache=shared"
	}
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		path, sep, busyTimeout.Milliseconds())
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return db, nil
}

// Ephemeral reports whether the store fell back to an in-memory database.
// Data written to an ephemeral store does not survive the process.
func (s *Store) Ephemeral() bool { return s.ephemeral }

// Close closes the underlying database. The write queue is owned by the
// caller and closed separately, before the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// write runs fn through the write queue. Every mutating statement in this
// package goes through here.
func (s *Store) write(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	if s.writes == nil {
		return fn(ctx)
	}
	return s.writes.Do(ctx, label, fn)
}
