package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmkeeper/farmkeeper/internal/common"
	"github.com/farmkeeper/farmkeeper/internal/models"
)

func pendingFor(t *testing.T, s *Store, k models.Kind, localID int64) []models.QueueEntry {
	t.Helper()
	entries, err := s.PendingEntries(context.Background())
	require.NoError(t, err)

	var out []models.QueueEntry
	for _, e := range entries {
		if e.Kind == k && e.LocalID == localID {
			out = append(out, e)
		}
	}
	return out
}

func TestApplyLocalUpdate_CoalescesIntoPendingCreate(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	farm := seedFarm(t, s)
	entries := pendingFor(t, s, models.KindFarm, farm.LocalID)
	require.Len(t, entries, 1)
	require.Equal(t, models.OpCreate, entries[0].Operation)

	farm.Name = "Hilltop East"
	require.NoError(t, s.ApplyLocalUpdate(ctx, farm))
	farm.Name = "Hilltop East II"
	require.NoError(t, s.ApplyLocalUpdate(ctx, farm))

	// Still a single pending create, now carrying the latest snapshot.
	entries = pendingFor(t, s, models.KindFarm, farm.LocalID)
	require.Len(t, entries, 1)
	assert.Equal(t, models.OpCreate, entries[0].Operation)

	rec, err := entries[0].DecodePayload()
	require.NoError(t, err)
	assert.Equal(t, "Hilltop East II", rec.(*models.Farm).Name)

	got, err := s.GetRecord(ctx, models.KindFarm, farm.LocalID)
	require.NoError(t, err)
	assert.Equal(t, "Hilltop East II", got.(*models.Farm).Name)
	assert.True(t, got.Meta().NeedsSync)
}

func TestApplyLocalUpdate_QueuesUpdateForSyncedRow(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	farm := seedSyncedFarm(t, s, 42)
	require.False(t, farm.NeedsSync)

	farm.Notes = "fence repaired"
	require.NoError(t, s.ApplyLocalUpdate(ctx, farm))

	entries := pendingFor(t, s, models.KindFarm, farm.LocalID)
	require.Len(t, entries, 1)
	assert.Equal(t, models.OpUpdate, entries[0].Operation)
	require.NotNil(t, entries[0].ServerID)
	assert.EqualValues(t, 42, *entries[0].ServerID)

	got, err := s.GetRecord(ctx, models.KindFarm, farm.LocalID)
	require.NoError(t, err)
	assert.True(t, got.Meta().NeedsSync)
}

func TestApplyLocalUpdate_NotFound(t *testing.T) {
	s := setupStore(t)

	ghost := newFarm("Ghost")
	ghost.LocalID = 999
	err := s.ApplyLocalUpdate(context.Background(), ghost)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestApplyLocalDelete_CancelsNeverSyncedRow(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	farm := seedFarm(t, s)
	require.NoError(t, s.ApplyLocalDelete(ctx, models.KindFarm, farm.LocalID))

	// The row and its queued create cancel out: nothing remains locally and
	// nothing will be replayed.
	all, err := s.ListRecords(ctx, models.KindFarm, ListOptions{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, all)

	pending, err := s.PendingEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestApplyLocalDelete_TombstonesSyncedRow(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	farm := seedSyncedFarm(t, s, 42)
	require.NoError(t, s.ApplyLocalDelete(ctx, models.KindFarm, farm.LocalID))

	_, err := s.GetRecord(ctx, models.KindFarm, farm.LocalID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	all, err := s.ListRecords(ctx, models.KindFarm, ListOptions{IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Meta().IsDeleted)
	assert.True(t, all[0].Meta().NeedsSync)

	entries := pendingFor(t, s, models.KindFarm, farm.LocalID)
	require.Len(t, entries, 1)
	assert.Equal(t, models.OpDelete, entries[0].Operation)
	require.NotNil(t, entries[0].ServerID)
	assert.EqualValues(t, 42, *entries[0].ServerID)
}

func TestApplyLocalDelete_SupersedesPendingUpdate(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	farm := seedSyncedFarm(t, s, 42)
	farm.Notes = "fence repaired"
	require.NoError(t, s.ApplyLocalUpdate(ctx, farm))
	require.NoError(t, s.ApplyLocalDelete(ctx, models.KindFarm, farm.LocalID))

	// The pending update is pointless now; only the delete replays.
	entries := pendingFor(t, s, models.KindFarm, farm.LocalID)
	require.Len(t, entries, 1)
	assert.Equal(t, models.OpDelete, entries[0].Operation)
}

func TestApplyLocalDelete_CascadesChildrenFirst(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	farm := seedSyncedFarm(t, s, 1)

	flockID := int64(10)
	flock := newFlock(farm.LocalID, "Spring batch", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	flock.ServerID = &flockID
	require.NoError(t, s.ApplyRemoteCreate(ctx, flock))

	prodID := int64(100)
	prod := &models.ProductionRecord{
		SyncMeta:      models.SyncMeta{ClientToken: uuid.NewString(), ServerID: &prodID},
		FlockLocalID:  flock.LocalID,
		Date:          time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		EggsCollected: 120,
	}
	require.NoError(t, s.ApplyRemoteCreate(ctx, prod))

	require.NoError(t, s.ApplyLocalDelete(ctx, models.KindFarm, farm.LocalID))

	for _, k := range []models.Kind{models.KindFarm, models.KindFlock, models.KindProduction} {
		all, err := s.ListRecords(ctx, k, ListOptions{IncludeDeleted: true})
		require.NoError(t, err)
		require.Len(t, all, 1, "kind %s", k)
		assert.True(t, all[0].Meta().IsDeleted, "kind %s", k)
	}

	// Replay order must delete the subtree bottom-up.
	pending, err := s.PendingEntries(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, models.KindProduction, pending[0].Kind)
	assert.Equal(t, models.KindFlock, pending[1].Kind)
	assert.Equal(t, models.KindFarm, pending[2].Kind)
	for _, e := range pending {
		assert.Equal(t, models.OpDelete, e.Operation)
	}
}

func TestApplyRemoteDelete_PurgesSubtree(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	farm := seedSyncedFarm(t, s, 1)
	flock := seedFlock(t, s, farm.LocalID)
	prod := &models.ProductionRecord{
		SyncMeta:      models.SyncMeta{ClientToken: uuid.NewString()},
		FlockLocalID:  flock.LocalID,
		Date:          time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		EggsCollected: 120,
	}
	require.NoError(t, s.ApplyLocalCreate(ctx, prod))

	require.NoError(t, s.ApplyRemoteDelete(ctx, models.KindFarm, farm.LocalID))

	for _, k := range []models.Kind{models.KindFarm, models.KindFlock, models.KindProduction} {
		all, err := s.ListRecords(ctx, k, ListOptions{IncludeDeleted: true})
		require.NoError(t, err)
		assert.Empty(t, all, "kind %s", k)
	}

	// Queue entries for the purged rows are closed, not left dangling.
	pending, err := s.PendingEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestApplyRemoteUpdate_ClearsNeedsSync(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	farm := seedSyncedFarm(t, s, 42)
	farm.Name = "Hilltop North"
	require.NoError(t, s.ApplyRemoteUpdate(ctx, farm))

	got, err := s.GetRecord(ctx, models.KindFarm, farm.LocalID)
	require.NoError(t, err)
	assert.Equal(t, "Hilltop North", got.(*models.Farm).Name)
	assert.False(t, got.Meta().NeedsSync)
	assert.NotNil(t, got.Meta().LastSync)
}

func TestMergeRemote(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	mirrored := seedSyncedFarm(t, s, 1)
	edited := seedSyncedFarm(t, s, 2)
	edited.Notes = "local edit"
	require.NoError(t, s.ApplyLocalUpdate(ctx, edited))

	sid1, sid2, sid3 := int64(1), int64(2), int64(3)
	incoming := []models.Record{
		&models.Farm{
			SyncMeta: models.SyncMeta{ServerID: &sid1, ClientToken: uuid.NewString()},
			Name:     "Hilltop renamed",
		},
		&models.Farm{
			SyncMeta: models.SyncMeta{ServerID: &sid2, ClientToken: uuid.NewString()},
			Name:     "Remote wins?",
		},
		&models.Farm{
			SyncMeta: models.SyncMeta{ServerID: &sid3, ClientToken: uuid.NewString()},
			Name:     "Brand new",
		},
	}

	added, updated, err := s.MergeRemote(ctx, models.KindFarm, incoming)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, updated)

	// The clean mirror took the remote name.
	got, err := s.GetRecord(ctx, models.KindFarm, mirrored.LocalID)
	require.NoError(t, err)
	assert.Equal(t, "Hilltop renamed", got.(*models.Farm).Name)
	assert.False(t, got.Meta().NeedsSync)

	// The row with a pending local edit kept it.
	got, err = s.GetRecord(ctx, models.KindFarm, edited.LocalID)
	require.NoError(t, err)
	assert.Equal(t, "local edit", got.(*models.Farm).Notes)
	assert.True(t, got.Meta().NeedsSync)

	// The unseen backend row arrived already synced.
	fresh, err := s.FindByServerID(ctx, models.KindFarm, 3)
	require.NoError(t, err)
	assert.False(t, fresh.Meta().NeedsSync)
	assert.NotNil(t, fresh.Meta().LastSync)
}

// A create can reach the backend without the local confirmation landing
// (crash between the remote call and ConfirmEntry). The next snapshot then
// carries a row with the same idempotency token; the merge must recognise it
// instead of inserting a second mirror.
func TestMergeRemote_AdoptsUnconfirmedCreate(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	farm := seedFarm(t, s)

	sid := int64(77)
	incoming := []models.Record{
		&models.Farm{
			SyncMeta: models.SyncMeta{ServerID: &sid, ClientToken: farm.ClientToken},
			Name:     farm.Name,
			Location: farm.Location,
		},
	}

	added, updated, err := s.MergeRemote(ctx, models.KindFarm, incoming)
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Zero(t, updated)

	all, err := s.ListRecords(ctx, models.KindFarm, ListOptions{IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, all, 1)

	// The pending row adopted the backend identity but keeps its local edit
	// state: the queued create still replays and confirms against it.
	got := all[0]
	require.NotNil(t, got.Meta().ServerID)
	assert.Equal(t, sid, *got.Meta().ServerID)
	assert.True(t, got.Meta().NeedsSync)
	require.Len(t, pendingFor(t, s, models.KindFarm, farm.LocalID), 1)

	// A genuinely new backend row with a fresh token still inserts.
	sid2 := int64(78)
	added, _, err = s.MergeRemote(ctx, models.KindFarm, []models.Record{
		&models.Farm{
			SyncMeta: models.SyncMeta{ServerID: &sid2, ClientToken: uuid.NewString()},
			Name:     "Riverside",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, added)
}
