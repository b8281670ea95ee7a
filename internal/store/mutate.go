package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/farmkeeper/farmkeeper/internal/common"
	"github.com/farmkeeper/farmkeeper/internal/dbx"
	"github.com/farmkeeper/farmkeeper/internal/models"
)

// ErrMissingClientToken guards the idempotency invariant: no row enters the
// store without its replay token.
var ErrMissingClientToken = errors.New("record has no client token")

// ApplyLocalCreate inserts rec as a pending create and queues it for replay,
// in one transaction. The store fills LocalID and timestamps and marks the
// row needs_sync; the caller must have set ClientToken.
func (s *Store) ApplyLocalCreate(ctx context.Context, rec models.Record) error {
	if rec.Meta().ClientToken == "" {
		return ErrMissingClientToken
	}

	return s.write(ctx, "local-create "+string(rec.Kind()), func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			now := s.now()
			m := rec.Meta()
			m.ServerID = nil
			m.NeedsSync = true
			m.IsDeleted = false
			m.CreatedAt = now
			m.UpdatedAt = now
			m.LastSync = nil

			fields, err := allFields(rec)
			if err != nil {
				return err
			}
			id, err := insertRow(ctx, tx, rec.Kind().Table(), fields)
			if err != nil {
				return err
			}
			m.LocalID = id

			return s.enqueueTx(ctx, tx, rec, models.OpCreate)
		})
	})
}

// ApplyLocalUpdate updates rec's domain fields, marks the row needs_sync and
// folds the change into the row's live queue entry (or queues a fresh
// UPDATE), in one transaction. At most one live entry exists per row, so a
// burst of offline edits replays as a single call.
func (s *Store) ApplyLocalUpdate(ctx context.Context, rec models.Record) error {
	return s.write(ctx, "local-update "+string(rec.Kind()), func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			now := s.now()
			m := rec.Meta()
			m.NeedsSync = true
			m.UpdatedAt = now

			fields, err := domainFields(rec)
			if err != nil {
				return err
			}
			fields["needs_sync"] = true
			fields["updated_at"] = now

			n, err := updateRows(ctx, tx, rec.Kind().Table(), fields,
				[]cond{eq("local_id", m.LocalID), eq("is_deleted", false)})
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("%s %d: %w", rec.Kind(), m.LocalID, common.ErrNotFound)
			}

			env, err := models.Wrap(rec)
			if err != nil {
				return err
			}

			live, err := liveEntryTx(ctx, tx, rec.Kind(), m.LocalID)
			if err != nil && !errors.Is(err, common.ErrNotFound) {
				return err
			}
			if live != nil {
				// Refresh the snapshot; a pending CREATE stays a CREATE.
				_, err = updateRows(ctx, tx, queueTable,
					map[string]any{"payload": []byte(env.Data), "server_id": nullInt64(m.ServerID)},
					[]cond{eq("id", live.ID)})
				return err
			}
			return s.enqueueTx(ctx, tx, rec, models.OpUpdate)
		})
	})
}

// ApplyLocalDelete removes an entity while offline. Children go first, in
// one transaction: never-synced rows are purged outright together with their
// queued create; synced rows become tombstones with a queued DELETE
// superseding any pending update. Queue order is children before parents, so
// the FIFO replay deletes in dependency order.
func (s *Store) ApplyLocalDelete(ctx context.Context, k models.Kind, localID int64) error {
	return s.write(ctx, "local-delete "+string(k), func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			return s.cascadeTx(ctx, tx, k, localID, false)
		})
	})
}

// ApplyRemoteCreate mirrors a create the backend already accepted: the row
// arrives synced (ServerID set by the caller), with no queue entry.
func (s *Store) ApplyRemoteCreate(ctx context.Context, rec models.Record) error {
	m := rec.Meta()
	if m.ClientToken == "" {
		return ErrMissingClientToken
	}
	if m.ServerID == nil {
		return errors.New("remote create without server id")
	}

	return s.write(ctx, "remote-create "+string(rec.Kind()), func(ctx context.Context) error {
		now := s.now()
		m.NeedsSync = false
		m.IsDeleted = false
		m.CreatedAt = now
		m.UpdatedAt = now
		m.LastSync = &now

		fields, err := allFields(rec)
		if err != nil {
			return err
		}
		id, err := insertRow(ctx, s.db, rec.Kind().Table(), fields)
		if err != nil {
			return err
		}
		m.LocalID = id
		return nil
	})
}

// ApplyRemoteUpdate mirrors an update the backend already accepted.
func (s *Store) ApplyRemoteUpdate(ctx context.Context, rec models.Record) error {
	return s.write(ctx, "remote-update "+string(rec.Kind()), func(ctx context.Context) error {
		now := s.now()
		m := rec.Meta()
		m.NeedsSync = false
		m.UpdatedAt = now
		m.LastSync = &now

		fields, err := domainFields(rec)
		if err != nil {
			return err
		}
		fields["needs_sync"] = false
		fields["updated_at"] = now
		fields["last_sync"] = nullTime(&now)

		n, err := updateRows(ctx, s.db, rec.Kind().Table(), fields,
			[]cond{eq("local_id", m.LocalID), eq("is_deleted", false)})
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%s %d: %w", rec.Kind(), m.LocalID, common.ErrNotFound)
		}
		return nil
	})
}

// ApplyRemoteDelete mirrors a delete the backend already accepted: the row
// and its subtree are purged physically, children first.
func (s *Store) ApplyRemoteDelete(ctx context.Context, k models.Kind, localID int64) error {
	return s.write(ctx, "remote-delete "+string(k), func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			return s.cascadeTx(ctx, tx, k, localID, true)
		})
	})
}

// cascadeTx walks the subtree under (k, localID) and deletes it bottom-up.
// purge=true removes rows physically (the backend already confirmed);
// purge=false is the offline path: tombstone synced rows and queue DELETEs,
// cancel never-synced rows entirely.
func (s *Store) cascadeTx(ctx context.Context, tx dbx.DBTX, k models.Kind, localID int64, purge bool) error {
	switch k {
	case models.KindFarm:
		flockIDs, err := localIDsTx(ctx, tx, models.KindFlock, []cond{eq("farm_local_id", localID)})
		if err != nil {
			return err
		}
		for _, fid := range flockIDs {
			if err := s.cascadeTx(ctx, tx, models.KindFlock, fid, purge); err != nil {
				return err
			}
		}
	case models.KindFlock:
		for _, rk := range models.Kinds() {
			if parent, ok := rk.Parent(); !ok || parent != models.KindFlock {
				continue
			}
			recIDs, err := localIDsTx(ctx, tx, rk, []cond{eq("flock_local_id", localID)})
			if err != nil {
				return err
			}
			for _, rid := range recIDs {
				if err := s.deleteOneTx(ctx, tx, rk, rid, purge); err != nil {
					return err
				}
			}
		}
	}
	return s.deleteOneTx(ctx, tx, k, localID, purge)
}

// deleteOneTx deletes a single row per the cascade rules. Rows already gone
// are fine: deletes are idempotent.
func (s *Store) deleteOneTx(ctx context.Context, tx dbx.DBTX, k models.Kind, localID int64, purge bool) error {
	rec, err := getRecordTx(ctx, tx, k, localID, true)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return err
	}
	m := rec.Meta()

	if purge {
		if _, err := deleteRows(ctx, tx, k.Table(), []cond{eq("local_id", localID)}); err != nil {
			return err
		}
		// Any live entry for the row is moot now; close it out.
		_, err := updateRows(ctx, tx, queueTable,
			map[string]any{"sync_status": string(models.SyncDone)},
			liveEntryConds(k, localID))
		return err
	}

	live, err := liveEntryTx(ctx, tx, k, localID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}

	// A never-synced row whose create has not left the device cancels out:
	// drop the row and the queued create, nothing to replay.
	if m.ServerID == nil && (live == nil || live.Status == models.SyncPending) {
		if live != nil {
			if _, err := deleteRows(ctx, tx, queueTable, []cond{eq("id", live.ID)}); err != nil {
				return err
			}
		}
		_, err := deleteRows(ctx, tx, k.Table(), []cond{eq("local_id", localID)})
		return err
	}

	// Synced (or mid-flight) rows become tombstones awaiting remote delete.
	now := s.now()
	if _, err := updateRows(ctx, tx, k.Table(),
		map[string]any{"is_deleted": true, "needs_sync": true, "updated_at": now},
		[]cond{eq("local_id", localID)}); err != nil {
		return err
	}

	if live != nil && live.Status == models.SyncInFlight {
		// The entry is being replayed right now; confirmEntry sees the
		// tombstone and requeues the delete itself.
		return nil
	}
	if live != nil {
		// A pending update is superseded by the delete.
		if _, err := deleteRows(ctx, tx, queueTable, []cond{eq("id", live.ID)}); err != nil {
			return err
		}
	}

	rec.Meta().IsDeleted = true
	rec.Meta().NeedsSync = true
	rec.Meta().UpdatedAt = now
	return s.enqueueTx(ctx, tx, rec, models.OpDelete)
}

// MergeRemote upserts a remote snapshot into the local mirror. New backend
// rows are inserted as synced; rows with pending local changes are left
// untouched until the queue replays (the local edit wins for now). Rows are
// matched by server_id first, then by idempotency token, so a create the
// backend accepted before the local confirmation landed adopts its server
// identity instead of gaining a second mirror. Callers must set ClientToken
// on records that may be inserted.
func (s *Store) MergeRemote(ctx context.Context, k models.Kind, recs []models.Record) (added, updated int, err error) {
	err = s.write(ctx, "merge "+string(k), func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			for _, rec := range recs {
				m := rec.Meta()
				if m.ServerID == nil {
					continue
				}

				local, err := findByServerIDTx(ctx, tx, k, *m.ServerID)
				if err != nil && !errors.Is(err, common.ErrNotFound) {
					return err
				}
				if local == nil && m.ClientToken != "" {
					// A create that reached the backend but was never
					// confirmed locally still carries the same token.
					local, err = findByTokenTx(ctx, tx, k, m.ClientToken)
					if err != nil && !errors.Is(err, common.ErrNotFound) {
						return err
					}
				}

				now := s.now()
				if local == nil {
					if m.ClientToken == "" {
						return ErrMissingClientToken
					}
					m.NeedsSync = false
					m.IsDeleted = false
					if m.CreatedAt.IsZero() {
						m.CreatedAt = now
					}
					m.UpdatedAt = now
					m.LastSync = &now

					fields, err := allFields(rec)
					if err != nil {
						return err
					}
					id, err := insertRow(ctx, tx, k.Table(), fields)
					if err != nil {
						return err
					}
					m.LocalID = id
					added++
					continue
				}

				lm := local.Meta()
				if lm.ServerID == nil {
					// Token match on a pending create: adopt the backend
					// identity so the queued replay confirms against this
					// row instead of minting a duplicate mirror.
					if _, err := updateRows(ctx, tx, k.Table(),
						map[string]any{"server_id": nullInt64(m.ServerID)},
						[]cond{eq("local_id", lm.LocalID)}); err != nil {
						return err
					}
					lm.ServerID = m.ServerID
				}
				if lm.NeedsSync || lm.IsDeleted {
					continue
				}

				fields, err := domainFields(rec)
				if err != nil {
					return err
				}
				fields["updated_at"] = now
				fields["last_sync"] = nullTime(&now)

				if _, err := updateRows(ctx, tx, k.Table(), fields,
					[]cond{eq("local_id", lm.LocalID)}); err != nil {
					return err
				}
				m.LocalID = lm.LocalID
				updated++
			}
			return nil
		})
	})
	if err != nil {
		return 0, 0, err
	}
	return added, updated, nil
}
