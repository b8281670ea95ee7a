package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/farmkeeper/farmkeeper/internal/common"
	"github.com/farmkeeper/farmkeeper/internal/dbx"
	"github.com/farmkeeper/farmkeeper/internal/models"
)

// ErrEntryNotPending reports a claim on a queue entry some other path
// already claimed or closed. Replay workers treat it as "skip".
var ErrEntryNotPending = errors.New("queue entry not pending")

// queueColumns is the sync_queue scan order.
var queueColumns = []string{
	"id", "kind", "local_id", "server_id", "operation", "payload",
	"sync_status", "retry_count", "error_message", "created_at",
}

func liveEntryConds(k models.Kind, localID int64) []cond {
	return []cond{
		eq("kind", string(k)),
		eq("local_id", localID),
		in("sync_status", string(models.SyncPending), string(models.SyncInFlight)),
	}
}

// enqueueTx inserts a queue entry snapshotting rec. The partial unique index
// on live entries turns a double enqueue into a constraint error instead of
// a divergent replay.
func (s *Store) enqueueTx(ctx context.Context, tx dbx.DBTX, rec models.Record, op models.Operation) error {
	env, err := models.Wrap(rec)
	if err != nil {
		return err
	}
	m := rec.Meta()
	_, err = insertRow(ctx, tx, queueTable, map[string]any{
		"kind":          string(rec.Kind()),
		"local_id":      m.LocalID,
		"server_id":     nullInt64(m.ServerID),
		"operation":     string(op),
		"payload":       []byte(env.Data),
		"sync_status":   string(models.SyncPending),
		"retry_count":   0,
		"error_message": "",
		"created_at":    s.now(),
	})
	return err
}

func scanEntry(rows *sql.Rows) (*models.QueueEntry, error) {
	var (
		e        models.QueueEntry
		kind     string
		op       string
		status   string
		serverID sql.NullInt64
	)
	err := rows.Scan(&e.ID, &kind, &e.LocalID, &serverID, &op, &e.Payload,
		&status, &e.RetryCount, &e.ErrorMessage, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan queue entry: %w", err)
	}
	e.Kind = models.Kind(kind)
	e.Operation = models.Operation(op)
	e.Status = models.SyncStatus(status)
	e.CreatedAt = e.CreatedAt.UTC()
	if serverID.Valid {
		e.ServerID = &serverID.Int64
	}
	return &e, nil
}

func oneEntry(ctx context.Context, q dbx.DBTX, conds []cond) (*models.QueueEntry, error) {
	rows, err := queryRows(ctx, q, queueTable, queueColumns, conds,
		[]orderTerm{{col: "id"}}, 1)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("queue entry: %w", common.ErrNotFound)
	}
	return scanEntry(rows)
}

func liveEntryTx(ctx context.Context, q dbx.DBTX, k models.Kind, localID int64) (*models.QueueEntry, error) {
	return oneEntry(ctx, q, liveEntryConds(k, localID))
}

func entryByIDTx(ctx context.Context, q dbx.DBTX, id int64) (*models.QueueEntry, error) {
	return oneEntry(ctx, q, []cond{eq("id", id)})
}

func markEntryTx(ctx context.Context, q dbx.DBTX, id int64, fields map[string]any) error {
	_, err := updateRows(ctx, q, queueTable, fields, []cond{eq("id", id)})
	return err
}

// entriesByStatus lists queue entries in replay order: oldest change first.
func (s *Store) entriesByStatus(ctx context.Context, status models.SyncStatus) ([]models.QueueEntry, error) {
	rows, err := queryRows(ctx, s.db, queueTable, queueColumns,
		[]cond{eq("sync_status", string(status))},
		[]orderTerm{{col: "created_at"}, {col: "id"}}, 0)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// PendingEntries returns the changes awaiting replay, oldest first.
func (s *Store) PendingEntries(ctx context.Context) ([]models.QueueEntry, error) {
	return s.entriesByStatus(ctx, models.SyncPending)
}

// FailedEntries returns the changes parked after exhausting their retries.
func (s *Store) FailedEntries(ctx context.Context) ([]models.QueueEntry, error) {
	return s.entriesByStatus(ctx, models.SyncFailed)
}

// QueueCounts reports how many entries sit in each status.
func (s *Store) QueueCounts(ctx context.Context) (map[models.SyncStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT sync_status, COUNT(*) FROM sync_queue GROUP BY sync_status")
	if err != nil {
		return nil, fmt.Errorf("failed to count queue entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.SyncStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan queue count: %w", err)
		}
		counts[models.SyncStatus(status)] = n
	}
	return counts, rows.Err()
}

// ClaimEntry moves a pending entry to syncing and returns the snapshot as of
// the claim. Only claimed snapshots may be sent: ConfirmEntry compares the
// sent payload against the stored one to detect edits made mid-flight.
func (s *Store) ClaimEntry(ctx context.Context, id int64) (*models.QueueEntry, error) {
	var claimed *models.QueueEntry
	err := s.write(ctx, "claim-entry", func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			cur, err := entryByIDTx(ctx, tx, id)
			if err != nil {
				return err
			}
			if cur.Status != models.SyncPending {
				return fmt.Errorf("queue entry %d is %s: %w", id, cur.Status, ErrEntryNotPending)
			}
			if err := markEntryTx(ctx, tx, id, map[string]any{
				"sync_status": string(models.SyncInFlight),
			}); err != nil {
				return err
			}
			cur.Status = models.SyncInFlight
			claimed = cur
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ConfirmEntry records that the backend accepted the sent snapshot. The
// usual outcome marks the entry synced and clears the row's needs_sync, but
// local activity during the round trip changes it:
//
//   - the stored payload differs from the sent one: the row was edited while
//     in flight, so the entry requeues as a pending update of the new state;
//   - the row was tombstoned: the entry requeues as its pending delete;
//   - the row is gone: nothing left to reconcile, the entry just closes.
//
// serverID carries the backend identity for creates and updates; deletes
// pass nil. A confirmed delete also purges the local tombstone.
func (s *Store) ConfirmEntry(ctx context.Context, sent models.QueueEntry, serverID *int64) error {
	return s.write(ctx, "confirm-entry "+string(sent.Kind), func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			cur, err := entryByIDTx(ctx, tx, sent.ID)
			if err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return nil
				}
				return err
			}
			if cur.Status != models.SyncInFlight {
				// Closed out by a purge while the attempt was running.
				return nil
			}

			now := s.now()

			if sent.Operation == models.OpDelete {
				if err := markEntryTx(ctx, tx, cur.ID, map[string]any{
					"sync_status":   string(models.SyncDone),
					"error_message": "",
				}); err != nil {
					return err
				}
				return s.cascadeTx(ctx, tx, sent.Kind, sent.LocalID, true)
			}

			if serverID == nil {
				return fmt.Errorf("confirm %s %s: missing server id", sent.Operation, sent.Kind)
			}

			rec, err := getRecordTx(ctx, tx, sent.Kind, sent.LocalID, true)
			if err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return markEntryTx(ctx, tx, cur.ID, map[string]any{
						"sync_status":   string(models.SyncDone),
						"error_message": "",
					})
				}
				return err
			}

			if rec.Meta().IsDeleted {
				if _, err := updateRows(ctx, tx, sent.Kind.Table(),
					map[string]any{"server_id": nullInt64(serverID), "last_sync": nullTime(&now)},
					[]cond{eq("local_id", sent.LocalID)}); err != nil {
					return err
				}
				return markEntryTx(ctx, tx, cur.ID, map[string]any{
					"operation":     string(models.OpDelete),
					"sync_status":   string(models.SyncPending),
					"server_id":     nullInt64(serverID),
					"retry_count":   0,
					"error_message": "",
				})
			}

			if !bytes.Equal(cur.Payload, sent.Payload) {
				if _, err := updateRows(ctx, tx, sent.Kind.Table(),
					map[string]any{"server_id": nullInt64(serverID), "last_sync": nullTime(&now)},
					[]cond{eq("local_id", sent.LocalID)}); err != nil {
					return err
				}
				return markEntryTx(ctx, tx, cur.ID, map[string]any{
					"operation":     string(models.OpUpdate),
					"sync_status":   string(models.SyncPending),
					"server_id":     nullInt64(serverID),
					"retry_count":   0,
					"error_message": "",
				})
			}

			if _, err := updateRows(ctx, tx, sent.Kind.Table(),
				map[string]any{
					"server_id":  nullInt64(serverID),
					"needs_sync": false,
					"last_sync":  nullTime(&now),
				},
				[]cond{eq("local_id", sent.LocalID)}); err != nil {
				return err
			}
			return markEntryTx(ctx, tx, cur.ID, map[string]any{
				"sync_status":   string(models.SyncDone),
				"server_id":     nullInt64(serverID),
				"error_message": "",
			})
		})
	})
}

// FailEntry records a failed replay attempt. The entry goes back to pending
// until its attempts reach maxAttempts, then parks as failed; the return
// value reports whether it parked. maxAttempts <= 0 means retry forever.
func (s *Store) FailEntry(ctx context.Context, id int64, cause error, maxAttempts int) (parked bool, err error) {
	err = s.write(ctx, "fail-entry", func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			cur, err := entryByIDTx(ctx, tx, id)
			if err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return nil
				}
				return err
			}
			if cur.Status != models.SyncInFlight {
				return nil
			}

			attempts := cur.RetryCount + 1
			status := models.SyncPending
			if maxAttempts > 0 && attempts >= maxAttempts {
				status = models.SyncFailed
				parked = true
			}
			return markEntryTx(ctx, tx, id, map[string]any{
				"sync_status":   string(status),
				"retry_count":   attempts,
				"error_message": cause.Error(),
			})
		})
	})
	if err != nil {
		return false, err
	}
	return parked, nil
}

// FailEntryPermanent parks an entry immediately, bypassing the retry budget.
// Used when the backend rejected the change outright and retrying the same
// snapshot cannot succeed.
func (s *Store) FailEntryPermanent(ctx context.Context, id int64, cause error) error {
	return s.write(ctx, "fail-entry-permanent", func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			cur, err := entryByIDTx(ctx, tx, id)
			if err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return nil
				}
				return err
			}
			if cur.Status != models.SyncInFlight {
				return nil
			}
			return markEntryTx(ctx, tx, id, map[string]any{
				"sync_status":   string(models.SyncFailed),
				"retry_count":   cur.RetryCount + 1,
				"error_message": cause.Error(),
			})
		})
	})
}

// ReleaseEntry puts a claimed entry back to pending without consuming an
// attempt. Used when a pass aborts before actually sending, for example on
// an open circuit.
func (s *Store) ReleaseEntry(ctx context.Context, id int64) error {
	return s.write(ctx, "release-entry", func(ctx context.Context) error {
		_, err := updateRows(ctx, s.db, queueTable,
			map[string]any{"sync_status": string(models.SyncPending)},
			[]cond{eq("id", id), eq("sync_status", string(models.SyncInFlight))})
		return err
	})
}

// RetryFailed re-arms every parked entry with a fresh retry budget and
// returns how many it re-armed.
func (s *Store) RetryFailed(ctx context.Context) (int, error) {
	var n int64
	err := s.write(ctx, "retry-failed", func(ctx context.Context) error {
		var err error
		n, err = updateRows(ctx, s.db, queueTable,
			map[string]any{
				"sync_status":   string(models.SyncPending),
				"retry_count":   0,
				"error_message": "",
			},
			[]cond{eq("sync_status", string(models.SyncFailed))})
		return err
	})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
