package models

// Farm is a production site: a named location that groups flocks.
type Farm struct {
	SyncMeta
	Name     string `json:"name"`
	Location string `json:"location"`
	Notes    string `json:"notes,omitempty"`
}

func (*Farm) Kind() Kind        { return KindFarm }
func (f *Farm) Meta() *SyncMeta { return &f.SyncMeta }
