package store

import (
	"context"
	"fmt"
	"time"
)

// ProductionSummary aggregates egg production for one flock over [From, To).
type ProductionSummary struct {
	FlockLocalID  int64     `json:"flock_local_id"`
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	EggsCollected int64     `json:"eggs_collected"`
	EggsDamaged   int64     `json:"eggs_damaged"`
	DaysRecorded  int64     `json:"days_recorded"`
}

// FeedSummary aggregates feed usage and cost for one flock over [From, To).
type FeedSummary struct {
	FlockLocalID int64     `json:"flock_local_id"`
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
	QuantityKg   float64   `json:"quantity_kg"`
	TotalCost    float64   `json:"total_cost"`
	DaysRecorded int64     `json:"days_recorded"`
}

// summaryWindow builds the shared WHERE tail for the aggregate queries. A
// zero From or To leaves that side of the range open.
func summaryWindow(flockLocalID int64, from, to time.Time) (string, []any) {
	clause := " WHERE flock_local_id = ? AND is_deleted = 0"
	args := []any{flockLocalID}
	if !from.IsZero() {
		clause += " AND date >= ?"
		args = append(args, from)
	}
	if !to.IsZero() {
		clause += " AND date < ?"
		args = append(args, to)
	}
	return clause, args
}

// ProductionSummary sums a flock's production records over the window.
// Tombstoned rows are excluded; pending rows count, so offline entries show
// up in totals immediately.
func (s *Store) ProductionSummary(ctx context.Context, flockLocalID int64, from, to time.Time) (*ProductionSummary, error) {
	where, args := summaryWindow(flockLocalID, from, to)
	query := `SELECT
			COALESCE(SUM(eggs_collected), 0),
			COALESCE(SUM(eggs_damaged), 0),
			COUNT(DISTINCT date(date))
		FROM production_records` + where

	sum := ProductionSummary{FlockLocalID: flockLocalID, From: from, To: to}
	row := s.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&sum.EggsCollected, &sum.EggsDamaged, &sum.DaysRecorded); err != nil {
		return nil, fmt.Errorf("failed to summarize production: %w", err)
	}
	return &sum, nil
}

// FeedSummary sums a flock's feed records over the window.
func (s *Store) FeedSummary(ctx context.Context, flockLocalID int64, from, to time.Time) (*FeedSummary, error) {
	where, args := summaryWindow(flockLocalID, from, to)
	query := `SELECT
			COALESCE(SUM(quantity_kg), 0),
			COALESCE(SUM(quantity_kg * unit_cost), 0),
			COUNT(DISTINCT date(date))
		FROM feed_records` + where

	sum := FeedSummary{FlockLocalID: flockLocalID, From: from, To: to}
	row := s.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&sum.QuantityKg, &sum.TotalCost, &sum.DaysRecorded); err != nil {
		return nil, fmt.Errorf("failed to summarize feed: %w", err)
	}
	return &sum, nil
}
