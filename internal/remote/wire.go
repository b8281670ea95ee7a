package remote

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/farmkeeper/farmkeeper/internal/models"
)

// Item is one record as the backend returns it: the decoded record plus the
// server identity of its parent, which callers map back onto a local row.
type Item struct {
	Record         models.Record
	ParentServerID int64
}

// collection maps a kind to its URL path segment: feed_records becomes
// feed-records.
func collection(k models.Kind) string {
	return strings.ReplaceAll(k.Table(), "_", "-")
}

// localOnlyKeys never travel on the wire. They are local identities and sync
// bookkeeping that mean nothing to the backend. created_at stays: the server
// keeps the capture time of rows recorded offline.
var localOnlyKeys = []string{
	"local_id", "server_id", "needs_sync", "is_deleted", "last_sync",
	"updated_at", "farm_local_id", "flock_local_id",
}

// parentWireKey returns the request field carrying the parent's server id.
func parentWireKey(k models.Kind) (string, bool) {
	parent, ok := k.Parent()
	if !ok {
		return "", false
	}
	if parent == models.KindFarm {
		return "farm_id", true
	}
	return "flock_id", true
}

// encodeBody turns a record into the request payload: domain fields plus the
// parent server id, minus everything local. withToken keeps client_token in
// the body; creates send it, updates do not.
func encodeBody(rec models.Record, parentServerID int64, withToken bool) (map[string]any, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", rec.Kind(), err)
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", rec.Kind(), err)
	}
	for _, k := range localOnlyKeys {
		delete(m, k)
	}
	if !withToken {
		delete(m, "client_token")
	}
	if key, ok := parentWireKey(rec.Kind()); ok {
		if parentServerID <= 0 {
			return nil, fmt.Errorf("%s requires a synced parent", rec.Kind())
		}
		m[key] = parentServerID
	}
	return m, nil
}

// decodeItem turns a response payload back into a record. The server id and
// the parent's server id come out of the body; local bookkeeping fields are
// reset so the caller decides how the record lands in the store.
func decodeItem(k models.Kind, raw []byte) (*Item, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode %s record: %w", k, err)
	}
	id, ok := m["id"].(float64)
	if !ok || id <= 0 {
		return nil, fmt.Errorf("%s record carried no id", k)
	}
	item := &Item{}
	if key, ok := parentWireKey(k); ok {
		if pid, ok := m[key].(float64); ok {
			item.ParentServerID = int64(pid)
		}
		delete(m, key)
	}
	delete(m, "id")
	for _, lk := range localOnlyKeys {
		delete(m, lk)
	}
	rec, err := models.NewRecord(k)
	if err != nil {
		return nil, err
	}
	buf, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s record: %w", k, err)
	}
	if err := json.Unmarshal(buf, rec); err != nil {
		return nil, fmt.Errorf("failed to decode %s record: %w", k, err)
	}
	meta := rec.Meta()
	serverID := int64(id)
	meta.ServerID = &serverID
	meta.LocalID = 0
	meta.NeedsSync = false
	meta.IsDeleted = false
	item.Record = rec
	return item, nil
}
