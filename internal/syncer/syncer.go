// Package syncer is the façade every feature calls. It routes each mutation
// and read online or offline based on the connectivity verdict, keeps the
// sync queue draining in the background, and owns the session across the
// remote API and the offline credential vault.
package syncer

import (
	"errors"
	"sync"
	"time"

	"github.com/farmkeeper/farmkeeper/internal/breaker"
	"github.com/farmkeeper/farmkeeper/internal/cache"
	"github.com/farmkeeper/farmkeeper/internal/events"
	"github.com/farmkeeper/farmkeeper/internal/logging"
	"github.com/farmkeeper/farmkeeper/internal/models"
	"github.com/farmkeeper/farmkeeper/internal/netx"
	"github.com/farmkeeper/farmkeeper/internal/remote"
	"github.com/farmkeeper/farmkeeper/internal/serializer"
	"github.com/farmkeeper/farmkeeper/internal/store"
	"github.com/farmkeeper/farmkeeper/internal/vault"
)

// Breaker names, one per remote dependency path. Foreground calls and the
// background reconciliation worker trip independently so a struggling sync
// pass does not lock users out of direct operations.
const (
	BreakerAPI  = "remote-api"
	BreakerSync = "sync-worker"
)

const (
	defaultSyncInterval = time.Minute
	defaultMaxAttempts  = 5
	defaultSummaryTTL   = 24 * time.Hour
)

// Config carries the orchestrator's tunables.
type Config struct {
	// SyncInterval is the reconciliation ticker period.
	SyncInterval time.Duration

	// MaxAttempts is the retry ceiling per queue entry; past it the entry
	// is parked as failed and surfaced for manual review.
	MaxAttempts int

	// SummaryTTL bounds how long cached analytics stay fresh.
	SummaryTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.SyncInterval <= 0 {
		c.SyncInterval = defaultSyncInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.SummaryTTL <= 0 {
		c.SummaryTTL = defaultSummaryTTL
	}
	return c
}

// Deps are the orchestrator's collaborators. Everything is injected; the
// orchestrator owns no global state.
type Deps struct {
	Store    *store.Store
	Writes   *serializer.Queue
	Remote   remote.Client
	Breakers *breaker.Registry
	Cache    *cache.Cache
	Vault    *vault.Vault
	Monitor  *netx.Monitor
	Bus      *events.Bus
	Log      logging.Logger
}

func (d Deps) validate() error {
	switch {
	case d.Store == nil:
		return errors.New("syncer: missing store")
	case d.Remote == nil:
		return errors.New("syncer: missing remote client")
	case d.Breakers == nil:
		return errors.New("syncer: missing breaker registry")
	case d.Cache == nil:
		return errors.New("syncer: missing cache")
	case d.Vault == nil:
		return errors.New("syncer: missing vault")
	case d.Monitor == nil:
		return errors.New("syncer: missing connectivity monitor")
	case d.Bus == nil:
		return errors.New("syncer: missing event bus")
	}
	return nil
}

// RecordChange is the payload of every <kind>.created/updated/deleted event.
// Pending is true while the change still awaits its replay to the backend.
type RecordChange struct {
	Kind     models.Kind
	LocalID  int64
	ServerID *int64
	Record   models.Record
	Pending  bool
}

// Orchestrator routes operations between the remote API and the local store.
type Orchestrator struct {
	store    *store.Store
	writes   *serializer.Queue
	remote   remote.Client
	breakers *breaker.Registry
	cache    *cache.Cache
	vault    *vault.Vault
	monitor  *netx.Monitor
	bus      *events.Bus
	log      logging.Logger
	cfg      Config

	api  *breaker.Breaker
	sync *breaker.Breaker

	// passMu serializes reconciliation passes; at most one runs at a time.
	passMu   sync.Mutex
	syncKick chan struct{}

	mu       sync.Mutex
	profile  *models.Profile
	lastSync *SyncReport
}

func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	log := deps.Log
	if log == nil {
		log = logging.Nop{}
	}
	o := &Orchestrator{
		store:    deps.Store,
		writes:   deps.Writes,
		remote:   deps.Remote,
		breakers: deps.Breakers,
		cache:    deps.Cache,
		vault:    deps.Vault,
		monitor:  deps.Monitor,
		bus:      deps.Bus,
		log:      log.With("component", "syncer"),
		cfg:      cfg.withDefaults(),
		api:      deps.Breakers.Get(BreakerAPI),
		sync:     deps.Breakers.Get(BreakerSync),
		syncKick: make(chan struct{}, 1),
	}
	// Coming back online is the moment queued work becomes sendable.
	o.monitor.OnChange(func(online bool) {
		if online {
			o.RequestSync()
		}
	})
	return o, nil
}

// Online reports the current connectivity verdict without probing.
func (o *Orchestrator) Online() bool { return o.monitor.Online() }

// Profile returns the profile of the active session, nil when logged out.
func (o *Orchestrator) Profile() *models.Profile {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.profile
}

func (o *Orchestrator) setProfile(p *models.Profile) {
	o.mu.Lock()
	o.profile = p
	o.mu.Unlock()
}

// publishChange emits exactly one domain event per successful mutation,
// with the same shape whether the write landed remotely or locally.
func (o *Orchestrator) publishChange(op models.Operation, rec models.Record, pending bool) {
	meta := rec.Meta()
	o.bus.Publish(events.Event{
		Name: events.Name(rec.Kind(), op),
		Data: RecordChange{
			Kind:     rec.Kind(),
			LocalID:  meta.LocalID,
			ServerID: meta.ServerID,
			Record:   rec,
			Pending:  pending,
		},
	})
}

// invalidate drops cached reads for a kind; cascade extends to every kind
// whose rows a cascade delete of k can touch.
func (o *Orchestrator) invalidate(k models.Kind, cascade bool) {
	o.cache.InvalidatePrefix(k.Table() + ".")
	if !cascade {
		return
	}
	for _, child := range models.Kinds() {
		parent, ok := child.Parent()
		if !ok {
			continue
		}
		if parent == k || k == models.KindFarm {
			o.cache.InvalidatePrefix(child.Table() + ".")
		}
	}
}
