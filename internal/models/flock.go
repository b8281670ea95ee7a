package models

import "time"

// Flock is a batch of birds raised together on a farm.
type Flock struct {
	SyncMeta
	FarmLocalID  int64     `json:"farm_local_id"`
	Name         string    `json:"name"`
	Breed        string    `json:"breed"`
	AcquiredOn   time.Time `json:"acquired_on"`
	InitialCount int64     `json:"initial_count"`
	Notes        string    `json:"notes,omitempty"`
}

func (*Flock) Kind() Kind             { return KindFlock }
func (f *Flock) Meta() *SyncMeta      { return &f.SyncMeta }
func (f *Flock) ParentLocalID() int64 { return f.FarmLocalID }
