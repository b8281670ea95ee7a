package models

import "time"

// Operation is the pending change type carried by a sync-queue entry.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// SyncStatus tracks a queue entry through its lifecycle.
type SyncStatus string

const (
	// SyncPending: waiting for a reconciliation pass.
	SyncPending SyncStatus = "pending"
	// SyncInFlight: a pass is replaying this entry right now.
	SyncInFlight SyncStatus = "syncing"
	// SyncDone: the backend confirmed the change.
	SyncDone SyncStatus = "synced"
	// SyncFailed: gave up after the retry ceiling or a permanent rejection.
	SyncFailed SyncStatus = "failed"
)

// QueueEntry is one pending local change awaiting replay against the
// backend. Payload holds an Envelope snapshot of the record at the time the
// change was queued; the row itself remains the source of truth for
// identities (server IDs are resolved again at replay time).
type QueueEntry struct {
	ID           int64
	Kind         Kind
	LocalID      int64
	ServerID     *int64
	Operation    Operation
	Payload      []byte
	Status       SyncStatus
	RetryCount   int
	ErrorMessage string
	CreatedAt    time.Time
}

// DecodePayload restores the record snapshot carried by the entry.
func (q *QueueEntry) DecodePayload() (Record, error) {
	env := Envelope{Kind: q.Kind, Data: q.Payload}
	return env.Decode()
}
