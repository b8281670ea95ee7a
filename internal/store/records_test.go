package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmkeeper/farmkeeper/internal/common"
	"github.com/farmkeeper/farmkeeper/internal/models"
)

func TestApplyLocalCreate_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	farm := newFarm("Hilltop")
	require.NoError(t, s.ApplyLocalCreate(ctx, farm))

	assert.Positive(t, farm.LocalID)
	assert.True(t, farm.NeedsSync)
	assert.Nil(t, farm.ServerID)
	assert.Nil(t, farm.LastSync)
	assert.WithinDuration(t, time.Now(), farm.CreatedAt, 5*time.Second)

	got, err := s.GetRecord(ctx, models.KindFarm, farm.LocalID)
	require.NoError(t, err)

	gotFarm, ok := got.(*models.Farm)
	require.True(t, ok)
	assert.Equal(t, farm.Name, gotFarm.Name)
	assert.Equal(t, farm.Location, gotFarm.Location)
	assert.Equal(t, farm.ClientToken, gotFarm.ClientToken)
	assert.True(t, gotFarm.NeedsSync)
	assert.True(t, farm.CreatedAt.Equal(gotFarm.CreatedAt))
}

func TestApplyLocalCreate_RequiresClientToken(t *testing.T) {
	s := setupStore(t)

	err := s.ApplyLocalCreate(context.Background(), &models.Farm{Name: "Hilltop"})
	assert.ErrorIs(t, err, ErrMissingClientToken)
}

func TestApplyLocalCreate_AllKinds(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	farm := seedFarm(t, s)
	flock := seedFlock(t, s, farm.LocalID)
	day := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)

	records := []models.Record{
		&models.FeedRecord{FlockLocalID: flock.LocalID, Date: day, FeedType: "layer mash", QuantityKg: 25, UnitCost: 0.8},
		&models.ProductionRecord{FlockLocalID: flock.LocalID, Date: day, EggsCollected: 180, EggsDamaged: 3},
		&models.MortalityRecord{FlockLocalID: flock.LocalID, Date: day, Count: 1, Cause: "unknown"},
		&models.HealthRecord{FlockLocalID: flock.LocalID, Date: day, Description: "vaccination", Treatment: "ND vaccine", Cost: 40},
		&models.WaterRecord{FlockLocalID: flock.LocalID, Date: day, Liters: 60},
		&models.WeightRecord{FlockLocalID: flock.LocalID, Date: day, SampleSize: 12, AvgWeightGrams: 1850},
		&models.Expense{FlockLocalID: flock.LocalID, Date: day, Category: "bedding", Amount: 35.5},
	}

	for _, rec := range records {
		rec.Meta().ClientToken = uuid.NewString()
		require.NoError(t, s.ApplyLocalCreate(ctx, rec), "kind %s", rec.Kind())

		got, err := s.GetRecord(ctx, rec.Kind(), rec.Meta().LocalID)
		require.NoError(t, err, "kind %s", rec.Kind())
		assert.Equal(t, rec.Meta().ClientToken, got.Meta().ClientToken)

		child, ok := got.(models.Child)
		require.True(t, ok)
		assert.Equal(t, flock.LocalID, child.ParentLocalID())
	}
}

func TestGetRecord_NotFound(t *testing.T) {
	s := setupStore(t)

	_, err := s.GetRecord(context.Background(), models.KindFarm, 12345)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestListRecords_ParentAndDateFilters(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	farm := seedFarm(t, s)
	flockA := seedFlock(t, s, farm.LocalID)
	flockB := newFlock(farm.LocalID, "Autumn batch", time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, s.ApplyLocalCreate(ctx, flockB))

	days := []time.Time{
		time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC),
	}
	for _, day := range days {
		rec := &models.ProductionRecord{
			SyncMeta:      models.SyncMeta{ClientToken: uuid.NewString()},
			FlockLocalID:  flockA.LocalID,
			Date:          day,
			EggsCollected: 100,
		}
		require.NoError(t, s.ApplyLocalCreate(ctx, rec))
	}
	other := &models.ProductionRecord{
		SyncMeta:      models.SyncMeta{ClientToken: uuid.NewString()},
		FlockLocalID:  flockB.LocalID,
		Date:          days[0],
		EggsCollected: 50,
	}
	require.NoError(t, s.ApplyLocalCreate(ctx, other))

	t.Run("by parent, newest first", func(t *testing.T) {
		got, err := s.ListRecords(ctx, models.KindProduction, ListOptions{ParentLocalID: &flockA.LocalID})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.True(t, got[0].(*models.ProductionRecord).Date.Equal(days[2]))
		assert.True(t, got[2].(*models.ProductionRecord).Date.Equal(days[0]))
	})

	t.Run("date window is half-open", func(t *testing.T) {
		got, err := s.ListRecords(ctx, models.KindProduction, ListOptions{
			ParentLocalID: &flockA.LocalID,
			From:          &days[0],
			To:            &days[2],
		})
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, rec := range got {
			assert.True(t, rec.(*models.ProductionRecord).Date.Before(days[2]))
		}
	})

	t.Run("limit caps results", func(t *testing.T) {
		got, err := s.ListRecords(ctx, models.KindProduction, ListOptions{
			ParentLocalID: &flockA.LocalID,
			Limit:         2,
		})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}

func TestListRecords_ExcludesTombstonesByDefault(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	farm := seedSyncedFarm(t, s, 77)
	require.NoError(t, s.ApplyLocalDelete(ctx, models.KindFarm, farm.LocalID))

	visible, err := s.ListRecords(ctx, models.KindFarm, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, visible)

	all, err := s.ListRecords(ctx, models.KindFarm, ListOptions{IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Meta().IsDeleted)

	_, err = s.GetRecord(ctx, models.KindFarm, farm.LocalID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestFindByServerID(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	farm := seedSyncedFarm(t, s, 42)

	got, err := s.FindByServerID(ctx, models.KindFarm, 42)
	require.NoError(t, err)
	assert.Equal(t, farm.LocalID, got.Meta().LocalID)

	_, err = s.FindByServerID(ctx, models.KindFarm, 43)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}
