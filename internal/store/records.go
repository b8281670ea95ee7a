package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/farmkeeper/farmkeeper/internal/common"
	"github.com/farmkeeper/farmkeeper/internal/dbx"
	"github.com/farmkeeper/farmkeeper/internal/models"
)

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

// domainFields returns the entity-specific column values for r. The switch
// is exhaustive over record types.
func domainFields(r models.Record) (map[string]any, error) {
	switch v := r.(type) {
	case *models.Farm:
		return map[string]any{
			"name":     v.Name,
			"location": v.Location,
			"notes":    v.Notes,
		}, nil
	case *models.Flock:
		return map[string]any{
			"farm_local_id": v.FarmLocalID,
			"name":          v.Name,
			"breed":         v.Breed,
			"acquired_on":   v.AcquiredOn,
			"initial_count": v.InitialCount,
			"notes":         v.Notes,
		}, nil
	case *models.FeedRecord:
		return map[string]any{
			"flock_local_id": v.FlockLocalID,
			"date":           v.Date,
			"feed_type":      v.FeedType,
			"quantity_kg":    v.QuantityKg,
			"unit_cost":      v.UnitCost,
			"notes":          v.Notes,
		}, nil
	case *models.ProductionRecord:
		return map[string]any{
			"flock_local_id": v.FlockLocalID,
			"date":           v.Date,
			"eggs_collected": v.EggsCollected,
			"eggs_damaged":   v.EggsDamaged,
			"notes":          v.Notes,
		}, nil
	case *models.MortalityRecord:
		return map[string]any{
			"flock_local_id": v.FlockLocalID,
			"date":           v.Date,
			"count":          v.Count,
			"cause":          v.Cause,
			"notes":          v.Notes,
		}, nil
	case *models.HealthRecord:
		return map[string]any{
			"flock_local_id": v.FlockLocalID,
			"date":           v.Date,
			"description":    v.Description,
			"treatment":      v.Treatment,
			"cost":           v.Cost,
			"notes":          v.Notes,
		}, nil
	case *models.WaterRecord:
		return map[string]any{
			"flock_local_id": v.FlockLocalID,
			"date":           v.Date,
			"liters":         v.Liters,
			"notes":          v.Notes,
		}, nil
	case *models.WeightRecord:
		return map[string]any{
			"flock_local_id":   v.FlockLocalID,
			"date":             v.Date,
			"sample_size":      v.SampleSize,
			"avg_weight_grams": v.AvgWeightGrams,
			"notes":            v.Notes,
		}, nil
	case *models.Expense:
		return map[string]any{
			"flock_local_id": v.FlockLocalID,
			"date":           v.Date,
			"category":       v.Category,
			"amount":         v.Amount,
			"notes":          v.Notes,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %T", models.ErrUnknownKind, r)
	}
}

// metaFields returns the sync bookkeeping column values shared by every
// entity table. local_id is never written; SQLite assigns it.
func metaFields(m *models.SyncMeta) map[string]any {
	return map[string]any{
		"server_id":    nullInt64(m.ServerID),
		"client_token": m.ClientToken,
		"needs_sync":   m.NeedsSync,
		"is_deleted":   m.IsDeleted,
		"created_at":   m.CreatedAt,
		"updated_at":   m.UpdatedAt,
		"last_sync":    nullTime(m.LastSync),
	}
}

func allFields(r models.Record) (map[string]any, error) {
	fields, err := domainFields(r)
	if err != nil {
		return nil, err
	}
	for k, v := range metaFields(r.Meta()) {
		fields[k] = v
	}
	return fields, nil
}

// scanRecord reads one row, laid out in selectColumns order, into a fresh
// record of kind k.
func scanRecord(rows *sql.Rows, k models.Kind) (models.Record, error) {
	rec, err := models.NewRecord(k)
	if err != nil {
		return nil, err
	}

	m := rec.Meta()
	var serverID sql.NullInt64
	var lastSync sql.NullTime

	dest := []any{
		&m.LocalID, &serverID, &m.ClientToken, &m.NeedsSync, &m.IsDeleted,
		&m.CreatedAt, &m.UpdatedAt, &lastSync,
	}

	switch v := rec.(type) {
	case *models.Farm:
		dest = append(dest, &v.Name, &v.Location, &v.Notes)
	case *models.Flock:
		dest = append(dest, &v.FarmLocalID, &v.Name, &v.Breed, &v.AcquiredOn, &v.InitialCount, &v.Notes)
	case *models.FeedRecord:
		dest = append(dest, &v.FlockLocalID, &v.Date, &v.FeedType, &v.QuantityKg, &v.UnitCost, &v.Notes)
	case *models.ProductionRecord:
		dest = append(dest, &v.FlockLocalID, &v.Date, &v.EggsCollected, &v.EggsDamaged, &v.Notes)
	case *models.MortalityRecord:
		dest = append(dest, &v.FlockLocalID, &v.Date, &v.Count, &v.Cause, &v.Notes)
	case *models.HealthRecord:
		dest = append(dest, &v.FlockLocalID, &v.Date, &v.Description, &v.Treatment, &v.Cost, &v.Notes)
	case *models.WaterRecord:
		dest = append(dest, &v.FlockLocalID, &v.Date, &v.Liters, &v.Notes)
	case *models.WeightRecord:
		dest = append(dest, &v.FlockLocalID, &v.Date, &v.SampleSize, &v.AvgWeightGrams, &v.Notes)
	case *models.Expense:
		dest = append(dest, &v.FlockLocalID, &v.Date, &v.Category, &v.Amount, &v.Notes)
	}

	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("failed to scan %s row: %w", k, err)
	}

	if serverID.Valid {
		id := serverID.Int64
		m.ServerID = &id
	}
	if lastSync.Valid {
		ts := lastSync.Time.UTC()
		m.LastSync = &ts
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()

	return rec, nil
}

// parentColumn maps a kind to the column referencing its parent.
func parentColumn(k models.Kind) (string, error) {
	parent, ok := k.Parent()
	if !ok {
		return "", fmt.Errorf("kind %q has no parent", k)
	}
	if parent == models.KindFarm {
		return "farm_local_id", nil
	}
	return "flock_local_id", nil
}

// dateColumn maps a kind to the column its From/To filters bound.
func dateColumn(k models.Kind) string {
	switch k {
	case models.KindFarm:
		return "created_at"
	case models.KindFlock:
		return "acquired_on"
	default:
		return "date"
	}
}

// listOrder fixes the ordering of visible lists per kind.
func listOrder(k models.Kind) []orderTerm {
	switch k {
	case models.KindFarm:
		return []orderTerm{{col: "name"}, {col: "local_id"}}
	case models.KindFlock:
		return []orderTerm{{col: "acquired_on", desc: true}, {col: "local_id", desc: true}}
	default:
		return []orderTerm{{col: "date", desc: true}, {col: "local_id", desc: true}}
	}
}

// ListOptions filter typed reads.
type ListOptions struct {
	// ParentLocalID restricts flocks to one farm, or records to one flock.
	ParentLocalID *int64

	// From (inclusive) and To (exclusive) bound the kind's date column.
	From *time.Time
	To   *time.Time

	// IncludeDeleted adds tombstoned rows; only sync internals want them.
	IncludeDeleted bool

	// Limit caps the result set; 0 applies the default cap. All disables
	// the cap entirely.
	Limit int
	All   bool
}

func (o ListOptions) conds(k models.Kind) ([]cond, error) {
	var conds []cond
	if !o.IncludeDeleted {
		conds = append(conds, eq("is_deleted", false))
	}
	if o.ParentLocalID != nil {
		col, err := parentColumn(k)
		if err != nil {
			return nil, err
		}
		conds = append(conds, eq(col, *o.ParentLocalID))
	}
	if o.From != nil {
		conds = append(conds, gte(dateColumn(k), *o.From))
	}
	if o.To != nil {
		conds = append(conds, lt(dateColumn(k), *o.To))
	}
	return conds, nil
}

// ListRecords returns rows of a kind, newest first for dated kinds. Results
// are capped at the default limit unless opts says otherwise.
func (s *Store) ListRecords(ctx context.Context, k models.Kind, opts ListOptions) ([]models.Record, error) {
	conds, err := opts.conds(k)
	if err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if opts.All {
		limit = 0
	}

	rows, err := queryRows(ctx, s.db, k.Table(), selectColumns(k), conds, listOrder(k), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows, k)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRecord returns one visible (non-tombstoned) row by local id.
func (s *Store) GetRecord(ctx context.Context, k models.Kind, localID int64) (models.Record, error) {
	return getRecordTx(ctx, s.db, k, localID, false)
}

func getRecordTx(ctx context.Context, q dbx.DBTX, k models.Kind, localID int64, includeDeleted bool) (models.Record, error) {
	conds := []cond{eq("local_id", localID)}
	if !includeDeleted {
		conds = append(conds, eq("is_deleted", false))
	}
	return oneRecord(ctx, q, k, conds)
}

// FindByServerID returns the row mirroring a backend identity, tombstoned or
// not. The sync merge uses it to decide between insert and update.
func (s *Store) FindByServerID(ctx context.Context, k models.Kind, serverID int64) (models.Record, error) {
	return findByServerIDTx(ctx, s.db, k, serverID)
}

func findByServerIDTx(ctx context.Context, q dbx.DBTX, k models.Kind, serverID int64) (models.Record, error) {
	return oneRecord(ctx, q, k, []cond{eq("server_id", serverID)})
}

// findByTokenTx matches a row by its idempotency token. The merge needs it
// to recognize a create that reached the backend before its local
// confirmation landed.
func findByTokenTx(ctx context.Context, q dbx.DBTX, k models.Kind, token string) (models.Record, error) {
	return oneRecord(ctx, q, k, []cond{eq("client_token", token)})
}

func oneRecord(ctx context.Context, q dbx.DBTX, k models.Kind, conds []cond) (models.Record, error) {
	rows, err := queryRows(ctx, q, k.Table(), selectColumns(k), conds, nil, 1)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", k, common.ErrNotFound)
	}
	return scanRecord(rows, k)
}

// localIDsTx lists local ids matching conds, tombstones included; cascade
// walks use it to visit a whole subtree.
func localIDsTx(ctx context.Context, q dbx.DBTX, k models.Kind, conds []cond) ([]int64, error) {
	rows, err := queryRows(ctx, q, k.Table(), []string{"local_id"}, conds, []orderTerm{{col: "local_id"}}, 0)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
