package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// entityDDL builds the CREATE TABLE statement for an entity table. Every
// entity table shares the sync bookkeeping columns; domainCols appends the
// kind-specific ones.
func entityDDL(table string, domainCols string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		local_id     INTEGER PRIMARY KEY AUTOINCREMENT,
		server_id    INTEGER,
		client_token TEXT NOT NULL UNIQUE,
		needs_sync   INTEGER NOT NULL DEFAULT 0,
		is_deleted   INTEGER NOT NULL DEFAULT 0,
		created_at   TIMESTAMP NOT NULL,
		updated_at   TIMESTAMP NOT NULL,
		last_sync    TIMESTAMP,
		%s
	)`, table, domainCols)
}

// schemaStatements is every DDL statement the store needs, all idempotent.
// Re-running them against an existing database is the whole migration
// story for fresh columns added in later releases; see ensureColumns.
var schemaStatements = []string{
	entityDDL("farms", `
		name         TEXT NOT NULL,
		location     TEXT NOT NULL DEFAULT '',
		notes        TEXT NOT NULL DEFAULT ''`),

	entityDDL("flocks", `
		farm_local_id INTEGER NOT NULL REFERENCES farms(local_id),
		name          TEXT NOT NULL,
		breed         TEXT NOT NULL DEFAULT '',
		acquired_on   TIMESTAMP NOT NULL,
		initial_count INTEGER NOT NULL DEFAULT 0,
		notes         TEXT NOT NULL DEFAULT ''`),

	entityDDL("feed_records", `
		flock_local_id INTEGER NOT NULL REFERENCES flocks(local_id),
		date           TIMESTAMP NOT NULL,
		feed_type      TEXT NOT NULL DEFAULT '',
		quantity_kg    REAL NOT NULL DEFAULT 0,
		unit_cost      REAL NOT NULL DEFAULT 0,
		notes          TEXT NOT NULL DEFAULT ''`),

	entityDDL("production_records", `
		flock_local_id INTEGER NOT NULL REFERENCES flocks(local_id),
		date           TIMESTAMP NOT NULL,
		eggs_collected INTEGER NOT NULL DEFAULT 0,
		eggs_damaged   INTEGER NOT NULL DEFAULT 0,
		notes          TEXT NOT NULL DEFAULT ''`),

	entityDDL("mortality_records", `
		flock_local_id INTEGER NOT NULL REFERENCES flocks(local_id),
		date           TIMESTAMP NOT NULL,
		count          INTEGER NOT NULL DEFAULT 0,
		cause          TEXT NOT NULL DEFAULT '',
		notes          TEXT NOT NULL DEFAULT ''`),

	entityDDL("health_records", `
		flock_local_id INTEGER NOT NULL REFERENCES flocks(local_id),
		date           TIMESTAMP NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		treatment      TEXT NOT NULL DEFAULT '',
		cost           REAL NOT NULL DEFAULT 0,
		notes          TEXT NOT NULL DEFAULT ''`),

	entityDDL("water_records", `
		flock_local_id INTEGER NOT NULL REFERENCES flocks(local_id),
		date           TIMESTAMP NOT NULL,
		liters         REAL NOT NULL DEFAULT 0,
		notes          TEXT NOT NULL DEFAULT ''`),

	entityDDL("weight_records", `
		flock_local_id   INTEGER NOT NULL REFERENCES flocks(local_id),
		date             TIMESTAMP NOT NULL,
		sample_size      INTEGER NOT NULL DEFAULT 0,
		avg_weight_grams REAL NOT NULL DEFAULT 0,
		notes            TEXT NOT NULL DEFAULT ''`),

	entityDDL("expenses", `
		flock_local_id INTEGER NOT NULL REFERENCES flocks(local_id),
		date           TIMESTAMP NOT NULL,
		category       TEXT NOT NULL DEFAULT '',
		amount         REAL NOT NULL DEFAULT 0,
		notes          TEXT NOT NULL DEFAULT ''`),

	`CREATE TABLE IF NOT EXISTS sync_queue (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		kind          TEXT NOT NULL,
		local_id      INTEGER NOT NULL,
		server_id     INTEGER,
		operation     TEXT NOT NULL,
		payload       BLOB NOT NULL,
		sync_status   TEXT NOT NULL DEFAULT 'pending',
		retry_count   INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS credentials (
		id            INTEGER PRIMARY KEY CHECK (id = 1),
		email         TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		profile       BLOB NOT NULL,
		stored_at     TIMESTAMP NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_flocks_farm ON flocks(farm_local_id)`,
	`CREATE INDEX IF NOT EXISTS idx_feed_flock_date ON feed_records(flock_local_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_production_flock_date ON production_records(flock_local_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_mortality_flock_date ON mortality_records(flock_local_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_health_flock_date ON health_records(flock_local_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_water_flock_date ON water_records(flock_local_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_weight_flock_date ON weight_records(flock_local_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_flock_date ON expenses(flock_local_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_status_created ON sync_queue(sync_status, created_at)`,

	// At most one live queue entry may exist per row; the replay logic
	// depends on it and the partial index makes it a hard guarantee.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_live_row
		ON sync_queue(kind, local_id) WHERE sync_status IN ('pending', 'syncing')`,
}

// ensureColumns lists columns added after the first release. ALTER TABLE is
// additive-only; existing databases pick these up on the next start, fresh
// databases already have them from CREATE TABLE.
var ensureColumns = []struct {
	table, column, ddl string
}{
	{"flocks", "breed", "TEXT NOT NULL DEFAULT ''"},
	{"feed_records", "unit_cost", "REAL NOT NULL DEFAULT 0"},
	{"health_records", "cost", "REAL NOT NULL DEFAULT 0"},
}

// createSchema brings the database up to date. It is idempotent: every
// statement tolerates prior runs, so there is no version counter to keep.
func createSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}

	for _, c := range ensureColumns {
		if err := ensureColumn(ctx, db, c.table, c.column, c.ddl); err != nil {
			return err
		}
	}
	return nil
}

// ensureColumn adds a column if the table predates it. SQLite has no ADD
// COLUMN IF NOT EXISTS, so a duplicate-column error is the success case for
// databases that already have it.
func ensureColumn(ctx context.Context, db *sql.DB, table, column, ddl string) error {
	if err := validColumns(table, []string{column}); err != nil {
		return err
	}

	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, ddl)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		if strings.Contains(err.Error(), "duplicate column name") {
			return nil
		}
		return fmt.Errorf("failed to add %s.%s: %w", table, column, err)
	}
	return nil
}
