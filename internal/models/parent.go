package models

import "fmt"

// SetParentLocalID points a child record at its parent's local identity.
// The switch is exhaustive over record types; farms have no parent.
func SetParentLocalID(r Record, localID int64) error {
	switch v := r.(type) {
	case *Flock:
		v.FarmLocalID = localID
	case *FeedRecord:
		v.FlockLocalID = localID
	case *ProductionRecord:
		v.FlockLocalID = localID
	case *MortalityRecord:
		v.FlockLocalID = localID
	case *HealthRecord:
		v.FlockLocalID = localID
	case *WaterRecord:
		v.FlockLocalID = localID
	case *WeightRecord:
		v.FlockLocalID = localID
	case *Expense:
		v.FlockLocalID = localID
	default:
		return fmt.Errorf("%s has no parent", r.Kind())
	}
	return nil
}
