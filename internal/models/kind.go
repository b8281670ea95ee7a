// Package models defines the farm-domain entities kept in the local store
// and synced with the backend.
package models

import (
	"errors"
	"fmt"
)

// ErrUnknownKind is returned when a kind tag does not match any entity.
var ErrUnknownKind = errors.New("unknown entity kind")

// Kind classifies an entity kind.
type Kind string

const (
	KindFarm       Kind = "farm"
	KindFlock      Kind = "flock"
	KindFeed       Kind = "feed"
	KindProduction Kind = "production"
	KindMortality  Kind = "mortality"
	KindHealth     Kind = "health"
	KindWater      Kind = "water"
	KindWeight     Kind = "weight"
	KindExpense    Kind = "expense"
)

// Kinds lists every entity kind, parents before children, so anything that
// walks entities in this order touches a parent before its dependents.
func Kinds() []Kind {
	return []Kind{
		KindFarm,
		KindFlock,
		KindFeed,
		KindProduction,
		KindMortality,
		KindHealth,
		KindWater,
		KindWeight,
		KindExpense,
	}
}

// Table returns the local table holding rows of this kind.
func (k Kind) Table() string {
	switch k {
	case KindFarm:
		return "farms"
	case KindFlock:
		return "flocks"
	case KindFeed:
		return "feed_records"
	case KindProduction:
		return "production_records"
	case KindMortality:
		return "mortality_records"
	case KindHealth:
		return "health_records"
	case KindWater:
		return "water_records"
	case KindWeight:
		return "weight_records"
	case KindExpense:
		return "expenses"
	default:
		return ""
	}
}

// Parent returns the kind this kind's rows reference. Flocks belong to
// farms; every record kind belongs to a flock. ok is false for farms.
func (k Kind) Parent() (parent Kind, ok bool) {
	switch k {
	case KindFarm:
		return "", false
	case KindFlock:
		return KindFarm, true
	default:
		return KindFlock, true
	}
}

// Valid reports whether k names a known entity kind.
func (k Kind) Valid() bool {
	return k.Table() != ""
}

// ParseKind converts a string tag into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}
