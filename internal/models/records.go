package models

import "time"

// FeedRecord logs feed given to a flock on a given day.
type FeedRecord struct {
	SyncMeta
	FlockLocalID int64     `json:"flock_local_id"`
	Date         time.Time `json:"date"`
	FeedType     string    `json:"feed_type"`
	QuantityKg   float64   `json:"quantity_kg"`
	UnitCost     float64   `json:"unit_cost"`
	Notes        string    `json:"notes,omitempty"`
}

func (*FeedRecord) Kind() Kind             { return KindFeed }
func (r *FeedRecord) Meta() *SyncMeta      { return &r.SyncMeta }
func (r *FeedRecord) ParentLocalID() int64 { return r.FlockLocalID }

// ProductionRecord logs eggs collected from a flock on a given day.
type ProductionRecord struct {
	SyncMeta
	FlockLocalID  int64     `json:"flock_local_id"`
	Date          time.Time `json:"date"`
	EggsCollected int64     `json:"eggs_collected"`
	EggsDamaged   int64     `json:"eggs_damaged"`
	Notes         string    `json:"notes,omitempty"`
}

func (*ProductionRecord) Kind() Kind             { return KindProduction }
func (r *ProductionRecord) Meta() *SyncMeta      { return &r.SyncMeta }
func (r *ProductionRecord) ParentLocalID() int64 { return r.FlockLocalID }

// MortalityRecord logs bird losses in a flock.
type MortalityRecord struct {
	SyncMeta
	FlockLocalID int64     `json:"flock_local_id"`
	Date         time.Time `json:"date"`
	Count        int64     `json:"count"`
	Cause        string    `json:"cause"`
	Notes        string    `json:"notes,omitempty"`
}

func (*MortalityRecord) Kind() Kind             { return KindMortality }
func (r *MortalityRecord) Meta() *SyncMeta      { return &r.SyncMeta }
func (r *MortalityRecord) ParentLocalID() int64 { return r.FlockLocalID }

// HealthRecord logs a treatment or observation for a flock.
type HealthRecord struct {
	SyncMeta
	FlockLocalID int64     `json:"flock_local_id"`
	Date         time.Time `json:"date"`
	Description  string    `json:"description"`
	Treatment    string    `json:"treatment"`
	Cost         float64   `json:"cost"`
	Notes        string    `json:"notes,omitempty"`
}

func (*HealthRecord) Kind() Kind             { return KindHealth }
func (r *HealthRecord) Meta() *SyncMeta      { return &r.SyncMeta }
func (r *HealthRecord) ParentLocalID() int64 { return r.FlockLocalID }

// WaterRecord logs water consumption for a flock.
type WaterRecord struct {
	SyncMeta
	FlockLocalID int64     `json:"flock_local_id"`
	Date         time.Time `json:"date"`
	Liters       float64   `json:"liters"`
	Notes        string    `json:"notes,omitempty"`
}

func (*WaterRecord) Kind() Kind             { return KindWater }
func (r *WaterRecord) Meta() *SyncMeta      { return &r.SyncMeta }
func (r *WaterRecord) ParentLocalID() int64 { return r.FlockLocalID }

// WeightRecord logs an average-weight sampling for a flock.
type WeightRecord struct {
	SyncMeta
	FlockLocalID   int64     `json:"flock_local_id"`
	Date           time.Time `json:"date"`
	SampleSize     int64     `json:"sample_size"`
	AvgWeightGrams float64   `json:"avg_weight_grams"`
	Notes          string    `json:"notes,omitempty"`
}

func (*WeightRecord) Kind() Kind             { return KindWeight }
func (r *WeightRecord) Meta() *SyncMeta      { return &r.SyncMeta }
func (r *WeightRecord) ParentLocalID() int64 { return r.FlockLocalID }

// Expense logs money spent on a flock.
type Expense struct {
	SyncMeta
	FlockLocalID int64     `json:"flock_local_id"`
	Date         time.Time `json:"date"`
	Category     string    `json:"category"`
	Amount       float64   `json:"amount"`
	Notes        string    `json:"notes,omitempty"`
}

func (*Expense) Kind() Kind             { return KindExpense }
func (r *Expense) Meta() *SyncMeta      { return &r.SyncMeta }
func (r *Expense) ParentLocalID() int64 { return r.FlockLocalID }
