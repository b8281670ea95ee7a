package syncer

import (
	"context"

	"github.com/farmkeeper/farmkeeper/internal/breaker"
	"github.com/farmkeeper/farmkeeper/internal/cache"
	"github.com/farmkeeper/farmkeeper/internal/models"
	"github.com/farmkeeper/farmkeeper/internal/netx"
	"github.com/farmkeeper/farmkeeper/internal/serializer"
)

// Status is the health snapshot behind the status screen: connectivity,
// breaker states, queue backlog and the diagnostics of the supporting
// machinery.
type Status struct {
	Online       bool
	Connectivity netx.Status
	LoggedIn     bool

	// Ephemeral warns that the store fell back to memory: local writes
	// will not survive the process.
	Ephemeral bool

	Breakers []breaker.Stats
	Queue    map[models.SyncStatus]int
	Writes   serializer.Stats
	Cache    cache.Stats
	LastSync *SyncReport
}

// Status gathers a point-in-time snapshot.
func (o *Orchestrator) Status(ctx context.Context) (*Status, error) {
	counts, err := o.store.QueueCounts(ctx)
	if err != nil {
		return nil, err
	}

	st := &Status{
		Online:       o.Online(),
		Connectivity: o.monitor.Status(),
		LoggedIn:     o.LoggedIn(),
		Ephemeral:    o.store.Ephemeral(),
		Queue:        counts,
		Cache:        o.cache.Stats(),
	}
	for _, b := range o.breakers.All() {
		st.Breakers = append(st.Breakers, b.Stats())
	}
	if o.writes != nil {
		st.Writes = o.writes.Stats()
	}

	o.mu.Lock()
	st.LastSync = o.lastSync
	o.mu.Unlock()
	return st, nil
}

// FailedEntries lists the queue entries parked for manual review.
func (o *Orchestrator) FailedEntries(ctx context.Context) ([]models.QueueEntry, error) {
	return o.store.FailedEntries(ctx)
}

// RetryFailed re-arms every parked entry and kicks a pass. Returns how many
// entries went back to pending.
func (o *Orchestrator) RetryFailed(ctx context.Context) (int, error) {
	n, err := o.store.RetryFailed(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		o.RequestSync()
	}
	return n, nil
}
