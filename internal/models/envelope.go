package models

import (
	"encoding/json"
	"fmt"
)

// Envelope is the tagged payload stored in the sync queue and carried by
// domain events: Kind discriminates which concrete record Data holds.
type Envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Wrap snapshots a record into an Envelope.
func Wrap(r Record) (Envelope, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Kind: r.Kind(), Data: b}, nil
}

// NewRecord returns an empty record of the given kind. The switch is
// exhaustive over Kinds; an unknown kind is an error, never a silent
// fallback.
func NewRecord(k Kind) (Record, error) {
	switch k {
	case KindFarm:
		return &Farm{}, nil
	case KindFlock:
		return &Flock{}, nil
	case KindFeed:
		return &FeedRecord{}, nil
	case KindProduction:
		return &ProductionRecord{}, nil
	case KindMortality:
		return &MortalityRecord{}, nil
	case KindHealth:
		return &HealthRecord{}, nil
	case KindWater:
		return &WaterRecord{}, nil
	case KindWeight:
		return &WeightRecord{}, nil
	case KindExpense:
		return &Expense{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
}

// Decode restores the concrete record held by the envelope.
func (e Envelope) Decode() (Record, error) {
	r, err := NewRecord(e.Kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(e.Data, r); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", e.Kind, err)
	}
	return r, nil
}
