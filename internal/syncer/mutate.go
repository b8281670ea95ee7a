package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/farmkeeper/farmkeeper/internal/breaker"
	"github.com/farmkeeper/farmkeeper/internal/common"
	"github.com/farmkeeper/farmkeeper/internal/models"
	"github.com/farmkeeper/farmkeeper/internal/remote"
)

// retryable reports whether a remote failure should route the operation to
// the local fallback. Validation and auth rejections surface to the caller
// instead; retrying the same payload cannot fix them.
func retryable(err error) bool {
	return errors.Is(err, breaker.ErrOpen) ||
		errors.Is(err, remote.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// noteFailure feeds a remote failure back into the connectivity verdict, so
// routing flips to offline before the next scheduled probe.
func (o *Orchestrator) noteFailure(err error) {
	if errors.Is(err, remote.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		o.monitor.MarkOffline(err)
	}
}

// parentFor loads the local parent row of a child record. Farms return nil.
func (o *Orchestrator) parentFor(ctx context.Context, rec models.Record) (models.Record, error) {
	child, ok := rec.(models.Child)
	if !ok {
		return nil, nil
	}
	parentKind, _ := rec.Kind().Parent()
	parent, err := o.store.GetRecord(ctx, parentKind, child.ParentLocalID())
	if err != nil {
		return nil, fmt.Errorf("%s parent: %w", rec.Kind(), err)
	}
	return parent, nil
}

// parentServerID returns the backend identity of a child's parent, or ok
// false when the record has no remote-creatable parent yet.
func parentServerID(rec models.Record, parent models.Record) (int64, bool) {
	if _, isChild := rec.(models.Child); !isChild {
		return 0, true
	}
	if parent == nil || parent.Meta().ServerID == nil {
		return 0, false
	}
	return *parent.Meta().ServerID, true
}

// Create routes a new record: remote first when the backend is reachable,
// otherwise (or on a retryable remote failure) the record lands locally with
// a queued CREATE. Either way rec comes back with its local identity filled
// in and exactly one <kind>.created event is published.
func (o *Orchestrator) Create(ctx context.Context, rec models.Record) error {
	m := rec.Meta()
	if m.ClientToken == "" {
		m.ClientToken = uuid.NewString()
	}

	parent, err := o.parentFor(ctx, rec)
	if err != nil {
		return err
	}

	if o.Online() && o.remote.Authenticated() {
		if psid, ok := parentServerID(rec, parent); ok {
			var item *remote.Item
			err := o.api.Do(ctx, func(ctx context.Context) error {
				var err error
				item, err = o.remote.Create(ctx, rec, psid)
				return err
			})
			switch {
			case err == nil:
				m.ServerID = item.Record.Meta().ServerID
				if err := o.store.ApplyRemoteCreate(ctx, rec); err != nil {
					return err
				}
				o.invalidate(rec.Kind(), false)
				o.publishChange(models.OpCreate, rec, false)
				return nil
			case !retryable(err):
				return err
			default:
				o.log.Warn(ctx, "remote create failed, keeping change local",
					"kind", rec.Kind(), "error", err)
				o.noteFailure(err)
			}
		}
	}

	if err := o.store.ApplyLocalCreate(ctx, rec); err != nil {
		return err
	}
	o.invalidate(rec.Kind(), false)
	o.publishChange(models.OpCreate, rec, true)
	return nil
}

// Update routes an edit of an existing row, addressed by rec's LocalID. The
// row's identity fields (token, server id, creation time) come from the
// stored row, so callers only fill domain fields.
func (o *Orchestrator) Update(ctx context.Context, rec models.Record) error {
	m := rec.Meta()
	if m.LocalID == 0 {
		return fmt.Errorf("update %s: no local id", rec.Kind())
	}
	cur, err := o.store.GetRecord(ctx, rec.Kind(), m.LocalID)
	if err != nil {
		return err
	}
	cm := cur.Meta()
	m.ClientToken = cm.ClientToken
	m.ServerID = cm.ServerID
	m.CreatedAt = cm.CreatedAt
	m.LastSync = cm.LastSync

	if o.Online() && o.remote.Authenticated() && m.ServerID != nil {
		parent, err := o.parentFor(ctx, rec)
		if err != nil {
			return err
		}
		if psid, ok := parentServerID(rec, parent); ok {
			var item *remote.Item
			err := o.api.Do(ctx, func(ctx context.Context) error {
				var err error
				item, err = o.remote.Update(ctx, *m.ServerID, rec, psid)
				return err
			})
			switch {
			case err == nil:
				m.ServerID = item.Record.Meta().ServerID
				if err := o.store.ApplyRemoteUpdate(ctx, rec); err != nil {
					return err
				}
				o.invalidate(rec.Kind(), false)
				o.publishChange(models.OpUpdate, rec, false)
				return nil
			case !retryable(err):
				return err
			default:
				o.log.Warn(ctx, "remote update failed, keeping change local",
					"kind", rec.Kind(), "local_id", m.LocalID, "error", err)
				o.noteFailure(err)
			}
		}
	}

	if err := o.store.ApplyLocalUpdate(ctx, rec); err != nil {
		return err
	}
	o.invalidate(rec.Kind(), false)
	o.publishChange(models.OpUpdate, rec, true)
	return nil
}

// Delete routes a removal. Online deletes confirm against the backend and
// purge the subtree; offline deletes tombstone synced rows (queued DELETE)
// and cancel never-synced ones outright. The <kind>.deleted event carries the
// row as it was before removal.
func (o *Orchestrator) Delete(ctx context.Context, k models.Kind, localID int64) error {
	cur, err := o.store.GetRecord(ctx, k, localID)
	if err != nil {
		return err
	}
	m := cur.Meta()

	if o.Online() && o.remote.Authenticated() && m.ServerID != nil {
		err := o.api.Do(ctx, func(ctx context.Context) error {
			return o.remote.Delete(ctx, k, *m.ServerID)
		})
		if errors.Is(err, common.ErrNotFound) {
			// Already gone on the backend; converge locally.
			err = nil
		}
		switch {
		case err == nil:
			if err := o.store.ApplyRemoteDelete(ctx, k, localID); err != nil {
				return err
			}
			o.invalidate(k, true)
			m.IsDeleted = true
			o.publishChange(models.OpDelete, cur, false)
			return nil
		case !retryable(err):
			return err
		default:
			o.log.Warn(ctx, "remote delete failed, keeping change local",
				"kind", k, "local_id", localID, "error", err)
			o.noteFailure(err)
		}
	}

	if err := o.store.ApplyLocalDelete(ctx, k, localID); err != nil {
		return err
	}
	o.invalidate(k, true)
	m.IsDeleted = true
	m.NeedsSync = true
	o.publishChange(models.OpDelete, cur, true)
	return nil
}
