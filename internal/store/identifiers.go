package store

import (
	"errors"
	"fmt"

	"github.com/farmkeeper/farmkeeper/internal/models"
)

// SQL strings in this package interpolate table and column names directly,
// so every identifier must come from the allow-list below. Values always
// bind through placeholders.
var (
	ErrUnknownTable  = errors.New("table not allow-listed")
	ErrUnknownColumn = errors.New("column not allow-listed")
)

// metaColumns is the sync bookkeeping every entity table carries, in the
// order selects scan them.
var metaColumns = []string{
	"local_id",
	"server_id",
	"client_token",
	"needs_sync",
	"is_deleted",
	"created_at",
	"updated_at",
	"last_sync",
}

// domainColumns lists each kind's entity-specific columns in select order.
// identifiers.go, schema.go and records.go all derive from this single map.
var domainColumns = map[models.Kind][]string{
	models.KindFarm:       {"name", "location", "notes"},
	models.KindFlock:      {"farm_local_id", "name", "breed", "acquired_on", "initial_count", "notes"},
	models.KindFeed:       {"flock_local_id", "date", "feed_type", "quantity_kg", "unit_cost", "notes"},
	models.KindProduction: {"flock_local_id", "date", "eggs_collected", "eggs_damaged", "notes"},
	models.KindMortality:  {"flock_local_id", "date", "count", "cause", "notes"},
	models.KindHealth:     {"flock_local_id", "date", "description", "treatment", "cost", "notes"},
	models.KindWater:      {"flock_local_id", "date", "liters", "notes"},
	models.KindWeight:     {"flock_local_id", "date", "sample_size", "avg_weight_grams", "notes"},
	models.KindExpense:    {"flock_local_id", "date", "category", "amount", "notes"},
}

const (
	queueTable       = "sync_queue"
	credentialsTable = "credentials"
)

var allowedTables = buildAllowList()

func buildAllowList() map[string]map[string]struct{} {
	t := make(map[string]map[string]struct{}, len(domainColumns)+2)

	for kind, cols := range domainColumns {
		set := make(map[string]struct{}, len(metaColumns)+len(cols))
		for _, c := range metaColumns {
			set[c] = struct{}{}
		}
		for _, c := range cols {
			set[c] = struct{}{}
		}
		t[kind.Table()] = set
	}

	t[queueTable] = columnSet(
		"id", "kind", "local_id", "server_id", "operation", "payload",
		"sync_status", "retry_count", "error_message", "created_at",
	)
	t[credentialsTable] = columnSet("id", "email", "password_hash", "profile", "stored_at")

	return t
}

func columnSet(cols ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		set[c] = struct{}{}
	}
	return set
}

// validTable rejects any table name outside the allow-list.
func validTable(table string) error {
	if _, ok := allowedTables[table]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return nil
}

// validColumns rejects any column not allow-listed for the table.
func validColumns(table string, cols []string) error {
	set, ok := allowedTables[table]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	for _, c := range cols {
		if _, ok := set[c]; !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, c)
		}
	}
	return nil
}

// selectColumns returns the full scan order for a kind: meta columns first,
// then the kind's domain columns.
func selectColumns(k models.Kind) []string {
	cols := make([]string, 0, len(metaColumns)+len(domainColumns[k]))
	cols = append(cols, metaColumns...)
	cols = append(cols, domainColumns[k]...)
	return cols
}
