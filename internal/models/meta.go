package models

import "time"

// SyncMeta is the bookkeeping every locally persisted row carries. The local
// store assigns LocalID; the backend assigns ServerID once the row has been
// pushed. A row with NeedsSync and no ServerID is a pending create; with a
// ServerID it is a pending update; IsDeleted marks a tombstone awaiting a
// remote delete.
type SyncMeta struct {
	// LocalID is the autoincrement identity in the local store.
	LocalID int64 `json:"local_id"`

	// ServerID is the backend identity, nil until the row has synced.
	ServerID *int64 `json:"server_id,omitempty"`

	// ClientToken is a client-generated idempotency token, assigned once at
	// local creation and never changed. The backend uses it to recognize a
	// replayed create.
	ClientToken string `json:"client_token"`

	// NeedsSync marks local changes the backend has not seen yet.
	NeedsSync bool `json:"needs_sync"`

	// IsDeleted marks the row as deleted locally while the remote delete is
	// still pending.
	IsDeleted bool `json:"is_deleted"`

	// CreatedAt and UpdatedAt are local wall-clock times in UTC.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// LastSync is the time this row last round-tripped with the backend.
	LastSync *time.Time `json:"last_sync,omitempty"`
}

// Synced reports whether the row exists on the backend.
func (m *SyncMeta) Synced() bool { return m.ServerID != nil }

// Record is implemented by every entity persisted in the local store.
type Record interface {
	Kind() Kind
	Meta() *SyncMeta
}

// Child is implemented by records that reference a parent entity by its
// local identity.
type Child interface {
	Record
	ParentLocalID() int64
}
