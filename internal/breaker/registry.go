package breaker

import (
	"sort"
	"sync"

	"github.com/farmkeeper/farmkeeper/internal/logging"
)

// Registry hands out one breaker per dependency name, creating them on
// demand. Each name can carry its own settings; everything else gets the
// registry defaults.
type Registry struct {
	defaults Settings
	log      logging.Logger

	mu        sync.Mutex
	overrides map[string]Settings
	breakers  map[string]*Breaker
}

// NewRegistry builds a registry whose breakers default to the given settings.
func NewRegistry(defaults Settings, log logging.Logger) *Registry {
	if log == nil {
		log = logging.Nop{}
	}
	return &Registry{
		defaults:  defaults.withDefaults(),
		log:       log,
		overrides: make(map[string]Settings),
		breakers:  make(map[string]*Breaker),
	}
}

// Configure sets per-name settings. It only affects breakers not yet created.
func (r *Registry) Configure(name string, s Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[name] = s.withDefaults()
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	settings := r.defaults
	if s, ok := r.overrides[name]; ok {
		settings = s
	}
	b := New(name, settings, r.log)
	r.breakers[name] = b
	return b
}

// All returns every breaker created so far, sorted by name for stable
// status output.
func (r *Registry) All() []*Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
