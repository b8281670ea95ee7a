package syncer

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/farmkeeper/farmkeeper/internal/cache"
	"github.com/farmkeeper/farmkeeper/internal/common"
	"github.com/farmkeeper/farmkeeper/internal/models"
	"github.com/farmkeeper/farmkeeper/internal/remote"
	"github.com/farmkeeper/farmkeeper/internal/store"
)

func fmtTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// listKey canonicalizes a list read into a cache key. Keys start with the
// kind's table plus a dot, which is exactly the prefix mutations invalidate.
func listKey(k models.Kind, opts store.ListOptions) string {
	params := []string{
		"from=" + fmtTime(opts.From),
		"to=" + fmtTime(opts.To),
	}
	if opts.ParentLocalID != nil {
		params = append(params, "parent="+strconv.FormatInt(*opts.ParentLocalID, 10))
	}
	if opts.All {
		params = append(params, "all=1")
	} else if opts.Limit > 0 {
		params = append(params, "limit="+strconv.Itoa(opts.Limit))
	}
	return cache.Key(k.Table()+".list", params...)
}

// List reads rows of a kind. Online it refreshes the local mirror from the
// backend first and caches the merged snapshot; offline, or when the remote
// read fails, it serves the latest local snapshot without surfacing the
// remote error. The local store read is the only failure a caller sees.
func (o *Orchestrator) List(ctx context.Context, k models.Kind, opts store.ListOptions) ([]models.Record, error) {
	key := listKey(k, opts)
	fresh := false

	if o.Online() && o.remote.Authenticated() {
		if v, ok := o.cache.Get(key); ok {
			if recs, ok := v.([]models.Record); ok {
				return recs, nil
			}
		}
		if err := o.refresh(ctx, k); err != nil {
			o.log.Warn(ctx, "remote read failed, serving local snapshot",
				"kind", k, "error", err)
			o.noteFailure(err)
		} else {
			fresh = true
		}
	}

	recs, err := o.store.ListRecords(ctx, k, opts)
	if err != nil {
		return nil, err
	}
	if fresh {
		o.cache.Put(key, recs, 0)
	}
	return recs, nil
}

// Get reads one row by its local identity, straight from the store. Local
// ids mean nothing to the backend, so there is no remote side to prefer.
func (o *Orchestrator) Get(ctx context.Context, k models.Kind, localID int64) (models.Record, error) {
	return o.store.GetRecord(ctx, k, localID)
}

// refresh pulls the backend's rows of one kind and merges them into the
// local mirror. Rows whose parent is not mirrored locally yet are skipped;
// the next refresh after the parent lands picks them up.
func (o *Orchestrator) refresh(ctx context.Context, k models.Kind) error {
	var items []remote.Item
	err := o.api.Do(ctx, func(ctx context.Context) error {
		var err error
		items, err = o.remote.List(ctx, k)
		return err
	})
	if err != nil {
		return err
	}

	recs := make([]models.Record, 0, len(items))
	for _, it := range items {
		rec := it.Record
		if it.ParentServerID > 0 {
			parentKind, _ := k.Parent()
			parent, err := o.store.FindByServerID(ctx, parentKind, it.ParentServerID)
			if err != nil {
				if errors.Is(err, common.ErrNotFound) {
					continue
				}
				return err
			}
			if err := models.SetParentLocalID(rec, parent.Meta().LocalID); err != nil {
				return err
			}
		}
		if rec.Meta().ClientToken == "" {
			rec.Meta().ClientToken = uuid.NewString()
		}
		recs = append(recs, rec)
	}

	added, updated, err := o.store.MergeRemote(ctx, k, recs)
	if err != nil {
		return err
	}
	if added > 0 || updated > 0 {
		o.log.Debug(ctx, "merged remote snapshot", "kind", k,
			"added", added, "updated", updated)
	}
	return nil
}

// ProductionSummary returns a flock's egg production over [from, to),
// computed locally so offline entries count immediately. Results stay cached
// until the TTL or until any production record under the flock mutates.
func (o *Orchestrator) ProductionSummary(ctx context.Context, flockLocalID int64, from, to time.Time) (*store.ProductionSummary, error) {
	key := cache.Key(models.KindProduction.Table()+".summary",
		"flock="+strconv.FormatInt(flockLocalID, 10),
		"from="+fmtTime(&from), "to="+fmtTime(&to))
	if v, ok := o.cache.Get(key); ok {
		if s, ok := v.(*store.ProductionSummary); ok {
			return s, nil
		}
	}
	s, err := o.store.ProductionSummary(ctx, flockLocalID, from, to)
	if err != nil {
		return nil, err
	}
	o.cache.Put(key, s, o.cfg.SummaryTTL)
	return s, nil
}

// FeedSummary returns a flock's feed usage and cost over [from, to), cached
// like ProductionSummary.
func (o *Orchestrator) FeedSummary(ctx context.Context, flockLocalID int64, from, to time.Time) (*store.FeedSummary, error) {
	key := cache.Key(models.KindFeed.Table()+".summary",
		"flock="+strconv.FormatInt(flockLocalID, 10),
		"from="+fmtTime(&from), "to="+fmtTime(&to))
	if v, ok := o.cache.Get(key); ok {
		if s, ok := v.(*store.FeedSummary); ok {
			return s, nil
		}
	}
	s, err := o.store.FeedSummary(ctx, flockLocalID, from, to)
	if err != nil {
		return nil, err
	}
	o.cache.Put(key, s, o.cfg.SummaryTTL)
	return s, nil
}
