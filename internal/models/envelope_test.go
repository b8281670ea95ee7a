package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapDecode_Farm(t *testing.T) {
	src := &Farm{Name: "Meadow", Location: "Kiambu", Notes: "main site"}
	src.LocalID = 7
	src.ClientToken = "tok-farm"
	src.NeedsSync = true

	env, err := Wrap(src)
	require.NoError(t, err)
	require.Equal(t, KindFarm, env.Kind)

	out, err := env.Decode()
	require.NoError(t, err)

	got, ok := out.(*Farm)
	require.True(t, ok)
	assert.Equal(t, src, got)
}

func TestWrapDecode_EveryKindRoundTrips(t *testing.T) {
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	records := []Record{
		&Farm{Name: "f"},
		&Flock{FarmLocalID: 1, Name: "layers", Breed: "isa brown", AcquiredOn: date, InitialCount: 200},
		&FeedRecord{FlockLocalID: 2, Date: date, FeedType: "mash", QuantityKg: 50, UnitCost: 0.4},
		&ProductionRecord{FlockLocalID: 2, Date: date, EggsCollected: 180, EggsDamaged: 3},
		&MortalityRecord{FlockLocalID: 2, Date: date, Count: 2, Cause: "heat"},
		&HealthRecord{FlockLocalID: 2, Date: date, Description: "vaccination", Treatment: "newcastle", Cost: 15},
		&WaterRecord{FlockLocalID: 2, Date: date, Liters: 120},
		&WeightRecord{FlockLocalID: 2, Date: date, SampleSize: 10, AvgWeightGrams: 1450},
		&Expense{FlockLocalID: 2, Date: date, Category: "medicine", Amount: 30},
	}

	require.Len(t, records, len(Kinds()), "every kind must be covered")

	for _, src := range records {
		t.Run(string(src.Kind()), func(t *testing.T) {
			env, err := Wrap(src)
			require.NoError(t, err)

			out, err := env.Decode()
			require.NoError(t, err)
			require.Equal(t, src.Kind(), out.Kind())
			assert.Equal(t, src, out)
		})
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	env := Envelope{Kind: Kind("tractor"), Data: []byte(`{}`)}
	_, err := env.Decode()
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestDecode_MalformedPayload(t *testing.T) {
	env := Envelope{Kind: KindFarm, Data: []byte(`{not json`)}
	_, err := env.Decode()
	require.Error(t, err)
}

func TestQueueEntry_DecodePayload(t *testing.T) {
	src := &WaterRecord{FlockLocalID: 4, Date: time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC), Liters: 80}
	env, err := Wrap(src)
	require.NoError(t, err)

	entry := &QueueEntry{Kind: env.Kind, Payload: env.Data, Operation: OpCreate}
	out, err := entry.DecodePayload()
	require.NoError(t, err)
	assert.Equal(t, src, out)
}
