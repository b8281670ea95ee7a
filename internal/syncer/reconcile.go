package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/farmkeeper/farmkeeper/internal/breaker"
	"github.com/farmkeeper/farmkeeper/internal/common"
	"github.com/farmkeeper/farmkeeper/internal/events"
	"github.com/farmkeeper/farmkeeper/internal/models"
	"github.com/farmkeeper/farmkeeper/internal/remote"
	"github.com/farmkeeper/farmkeeper/internal/store"
)

// errWaitingOnParent marks an entry that cannot be sent yet because its
// parent has not reached the backend. Skipping it costs no retry.
var errWaitingOnParent = errors.New("entry waiting on unsynced parent")

// SyncReport summarizes one reconciliation pass. It rides on the data.synced
// event and on the status screen.
type SyncReport struct {
	StartedAt  time.Time
	FinishedAt time.Time

	// Synced counts entries the backend confirmed.
	Synced int
	// Skipped counts entries left pending without consuming a retry:
	// waiting on a parent, or claimed by a racing path.
	Skipped int
	// Retried counts entries that failed but stay eligible for the next
	// pass; Parked counts entries moved to failed for manual review.
	Retried int
	Parked  int

	// Aborted is set when the pass stopped before the end of the queue:
	// open circuit, lost session, store trouble or cancellation.
	Aborted bool
}

// Run drives background reconciliation until ctx ends: one pass per ticker
// interval, plus one whenever RequestSync fires. Callers own the goroutine.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-o.syncKick:
		}
		if !o.Online() || !o.remote.Authenticated() {
			continue
		}
		if _, err := o.SyncNow(ctx); err != nil && !errors.Is(err, context.Canceled) {
			o.log.Error(ctx, "reconciliation pass failed", "error", err)
		}
	}
}

// RequestSync schedules a reconciliation pass on the Run loop. Never blocks.
func (o *Orchestrator) RequestSync() {
	select {
	case o.syncKick <- struct{}{}:
	default:
	}
}

// SyncNow runs one reconciliation pass to completion: every pending queue
// entry, oldest change first, replayed against the backend. At most one pass
// runs at a time; a concurrent call waits its turn. Cancellation takes
// effect between entries, never mid-entry.
func (o *Orchestrator) SyncNow(ctx context.Context) (*SyncReport, error) {
	o.passMu.Lock()
	defer o.passMu.Unlock()

	report := &SyncReport{StartedAt: time.Now().UTC()}

	entries, err := o.store.PendingEntries(ctx)
	if err != nil {
		return nil, err
	}

	for i := range entries {
		if ctx.Err() != nil {
			report.Aborted = true
			break
		}
		if stop := o.replayEntry(ctx, entries[i], report); stop {
			report.Aborted = true
			break
		}
	}

	report.FinishedAt = time.Now().UTC()
	o.mu.Lock()
	o.lastSync = report
	o.mu.Unlock()

	if report.Synced > 0 {
		// Server ids moved under cached reads; drop everything.
		o.cache.InvalidateAll()
	}
	o.bus.Publish(events.Event{Name: events.DataSynced, Data: *report})
	o.log.Info(ctx, "reconciliation pass finished",
		"synced", report.Synced, "skipped", report.Skipped,
		"retried", report.Retried, "parked", report.Parked,
		"aborted", report.Aborted)
	return report, nil
}

// replayEntry claims, sends and settles one queue entry. The return value
// asks the pass to stop: open circuit, expired session or store trouble make
// the remaining entries pointless this round.
func (o *Orchestrator) replayEntry(ctx context.Context, e models.QueueEntry, report *SyncReport) (stop bool) {
	claimed, err := o.store.ClaimEntry(ctx, e.ID)
	if err != nil {
		if errors.Is(err, store.ErrEntryNotPending) {
			report.Skipped++
			return false
		}
		o.log.Error(ctx, "failed to claim queue entry", "entry", e.ID, "error", err)
		return true
	}

	serverID, err := o.send(ctx, claimed)
	switch {
	case err == nil:
		if cErr := o.store.ConfirmEntry(ctx, *claimed, serverID); cErr != nil {
			o.log.Error(ctx, "failed to confirm queue entry", "entry", claimed.ID, "error", cErr)
			return true
		}
		report.Synced++
		return false

	case errors.Is(err, errWaitingOnParent):
		_ = o.store.ReleaseEntry(ctx, claimed.ID)
		report.Skipped++
		return false

	case errors.Is(err, breaker.ErrOpen):
		_ = o.store.ReleaseEntry(ctx, claimed.ID)
		return true

	case errors.Is(err, common.ErrUnauthorized):
		_ = o.store.ReleaseEntry(ctx, claimed.ID)
		o.log.Warn(ctx, "session rejected during sync, pass aborted", "entry", claimed.ID)
		return true

	case errors.Is(err, context.Canceled):
		_ = o.store.ReleaseEntry(ctx, claimed.ID)
		return true

	case retryable(err):
		o.noteFailure(err)
		parked, fErr := o.store.FailEntry(ctx, claimed.ID, err, o.cfg.MaxAttempts)
		if fErr != nil {
			o.log.Error(ctx, "failed to record replay failure", "entry", claimed.ID, "error", fErr)
			return true
		}
		if parked {
			report.Parked++
			o.log.Warn(ctx, "queue entry parked after exhausting retries",
				"entry", claimed.ID, "kind", claimed.Kind, "op", claimed.Operation, "error", err)
		} else {
			report.Retried++
		}
		return false

	default:
		// Rejected outright; the same snapshot can never succeed.
		if fErr := o.store.FailEntryPermanent(ctx, claimed.ID, err); fErr != nil {
			o.log.Error(ctx, "failed to park queue entry", "entry", claimed.ID, "error", fErr)
			return true
		}
		report.Parked++
		o.log.Warn(ctx, "queue entry rejected by backend, parked for review",
			"entry", claimed.ID, "kind", claimed.Kind, "op", claimed.Operation, "error", err)
		return false
	}
}

// send replays one claimed entry against the backend and returns the server
// id the row should carry (nil for deletes).
func (o *Orchestrator) send(ctx context.Context, e *models.QueueEntry) (*int64, error) {
	rec, err := e.DecodePayload()
	if err != nil {
		return nil, err
	}

	var psid int64
	if child, ok := rec.(models.Child); ok && e.Operation != models.OpDelete {
		parentKind, _ := e.Kind.Parent()
		parent, err := o.store.GetRecord(ctx, parentKind, child.ParentLocalID())
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				// Parent tombstoned or purged under the child; the delete
				// entries ahead of this one will settle it.
				return nil, errWaitingOnParent
			}
			return nil, err
		}
		if parent.Meta().ServerID == nil {
			return nil, errWaitingOnParent
		}
		psid = *parent.Meta().ServerID
	}

	switch e.Operation {
	case models.OpCreate:
		var item *remote.Item
		err := o.sync.Do(ctx, func(ctx context.Context) error {
			var err error
			item, err = o.remote.Create(ctx, rec, psid)
			return err
		})
		if err != nil {
			return nil, err
		}
		return item.Record.Meta().ServerID, nil

	case models.OpUpdate:
		sid := e.ServerID
		if sid == nil {
			cur, err := o.store.GetRecord(ctx, e.Kind, e.LocalID)
			if err != nil || cur.Meta().ServerID == nil {
				return nil, errWaitingOnParent
			}
			sid = cur.Meta().ServerID
		}
		var item *remote.Item
		err := o.sync.Do(ctx, func(ctx context.Context) error {
			var err error
			item, err = o.remote.Update(ctx, *sid, rec, psid)
			return err
		})
		if err != nil {
			return nil, err
		}
		return item.Record.Meta().ServerID, nil

	default: // models.OpDelete
		if e.ServerID == nil {
			return nil, errWaitingOnParent
		}
		err := o.sync.Do(ctx, func(ctx context.Context) error {
			return o.remote.Delete(ctx, e.Kind, *e.ServerID)
		})
		if errors.Is(err, common.ErrNotFound) {
			// Already gone remotely; the delete converged.
			err = nil
		}
		return nil, err
	}
}
