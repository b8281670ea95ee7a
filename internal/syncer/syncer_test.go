package syncer

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/farmkeeper/farmkeeper/internal/breaker"
	"github.com/farmkeeper/farmkeeper/internal/cache"
	"github.com/farmkeeper/farmkeeper/internal/common"
	"github.com/farmkeeper/farmkeeper/internal/events"
	"github.com/farmkeeper/farmkeeper/internal/models"
	"github.com/farmkeeper/farmkeeper/internal/netx"
	"github.com/farmkeeper/farmkeeper/internal/remote"
	"github.com/farmkeeper/farmkeeper/internal/serializer"
	"github.com/farmkeeper/farmkeeper/internal/store"
	"github.com/farmkeeper/farmkeeper/internal/vault"
)

// fakeRemote is an in-memory stand-in for the backend: per-kind rows keyed
// by server id, idempotency-token replay on create, switchable failure
// modes.
type fakeRemote struct {
	mu          sync.Mutex
	authed      bool
	unavailable bool
	createErr   error
	loginErr    error
	password    string
	profile     models.Profile

	nextID  int64
	rows    map[models.Kind]map[int64]models.Record
	parents map[int64]int64
	byToken map[string]int64

	createCalls   int
	createParents []int64
	deleted       []int64
}

var _ remote.Client = (*fakeRemote)(nil)

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		password: "hunter22",
		profile:  models.Profile{UserID: 9, Email: "ana@greenfield.example"},
		rows:     make(map[models.Kind]map[int64]models.Record),
		parents:  make(map[int64]int64),
		byToken:  make(map[string]int64),
	}
}

func (f *fakeRemote) setUnavailable(v bool) {
	f.mu.Lock()
	f.unavailable = v
	f.mu.Unlock()
}

func (f *fakeRemote) gate() error {
	if f.unavailable {
		return fmt.Errorf("dial tcp: %w", remote.ErrUnavailable)
	}
	return nil
}

func clone(rec models.Record) models.Record {
	env, err := models.Wrap(rec)
	if err != nil {
		panic(err)
	}
	out, err := env.Decode()
	if err != nil {
		panic(err)
	}
	return out
}

func (f *fakeRemote) Login(_ context.Context, email string, password []byte, _ int64) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.gate(); err != nil {
		return nil, err
	}
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	if email != f.profile.Email || string(password) != f.password {
		return nil, fmt.Errorf("login: %w", common.ErrUnauthorized)
	}
	f.authed = true
	p := f.profile
	return &p, nil
}

func (f *fakeRemote) Register(context.Context, string, string, []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gate()
}

func (f *fakeRemote) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gate()
}

func (f *fakeRemote) List(_ context.Context, kind models.Kind) ([]remote.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.gate(); err != nil {
		return nil, err
	}
	var items []remote.Item
	for id, rec := range f.rows[kind] {
		items = append(items, remote.Item{Record: clone(rec), ParentServerID: f.parents[id]})
	}
	return items, nil
}

func (f *fakeRemote) Create(_ context.Context, rec models.Record, parentServerID int64) (*remote.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if err := f.gate(); err != nil {
		return nil, err
	}
	if f.createErr != nil {
		return nil, f.createErr
	}

	token := rec.Meta().ClientToken
	if id, ok := f.byToken[token]; ok {
		// Replayed create: answer with the row already held.
		return &remote.Item{Record: clone(f.rows[rec.Kind()][id]), ParentServerID: f.parents[id]}, nil
	}

	f.nextID++
	id := f.nextID
	stored := clone(rec)
	stored.Meta().ServerID = &id
	if f.rows[rec.Kind()] == nil {
		f.rows[rec.Kind()] = make(map[int64]models.Record)
	}
	f.rows[rec.Kind()][id] = stored
	f.parents[id] = parentServerID
	f.byToken[token] = id
	f.createParents = append(f.createParents, parentServerID)
	return &remote.Item{Record: clone(stored), ParentServerID: parentServerID}, nil
}

func (f *fakeRemote) Update(_ context.Context, serverID int64, rec models.Record, parentServerID int64) (*remote.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.gate(); err != nil {
		return nil, err
	}
	if _, ok := f.rows[rec.Kind()][serverID]; !ok {
		return nil, fmt.Errorf("%s %d: %w", rec.Kind(), serverID, common.ErrNotFound)
	}
	stored := clone(rec)
	stored.Meta().ServerID = &serverID
	f.rows[rec.Kind()][serverID] = stored
	return &remote.Item{Record: clone(stored), ParentServerID: parentServerID}, nil
}

func (f *fakeRemote) Delete(_ context.Context, kind models.Kind, serverID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.gate(); err != nil {
		return err
	}
	if _, ok := f.rows[kind][serverID]; !ok {
		return fmt.Errorf("%s %d: %w", kind, serverID, common.ErrNotFound)
	}
	delete(f.rows[kind], serverID)
	f.deleted = append(f.deleted, serverID)
	return nil
}

func (f *fakeRemote) Authenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authed
}

func (f *fakeRemote) Logout() {
	f.mu.Lock()
	f.authed = false
	f.mu.Unlock()
}

func (f *fakeRemote) rowCount(kind models.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows[kind])
}

type harness struct {
	o       *Orchestrator
	remote  *fakeRemote
	store   *store.Store
	monitor *netx.Monitor
	bus     *events.Bus
	reg     *breaker.Registry
	cache   *cache.Cache
}

func setup(t *testing.T, cfg Config) *harness {
	t.Helper()
	ctx := context.Background()

	writes := serializer.New(8, 0, nil)
	t.Cleanup(writes.Close)

	st, err := store.Open(ctx, store.Config{Path: filepath.Join(t.TempDir(), "farm.db")}, writes, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	fr := newFakeRemote()
	mon := netx.NewMonitor(fr, time.Hour, time.Second, nil)
	reg := breaker.NewRegistry(breaker.Settings{FailureThreshold: 50, Cooldown: time.Hour}, nil)
	bus := events.NewBus(nil)
	t.Cleanup(bus.Close)
	c := cache.New(time.Hour, nil)

	o, err := New(Deps{
		Store:    st,
		Writes:   writes,
		Remote:   fr,
		Breakers: reg,
		Cache:    c,
		Vault:    vault.New(st, nil, nil),
		Monitor:  mon,
		Bus:      bus,
	}, cfg)
	require.NoError(t, err)

	return &harness{o: o, remote: fr, store: st, monitor: mon, bus: bus, reg: reg, cache: c}
}

// goOnline makes the backend reachable with a live session and lets the
// monitor observe it.
func (h *harness) goOnline(t *testing.T) {
	t.Helper()
	h.remote.setUnavailable(false)
	h.remote.mu.Lock()
	h.remote.authed = true
	h.remote.mu.Unlock()
	require.True(t, h.monitor.ForceCheck(context.Background()))
}

func (h *harness) goOffline(t *testing.T) {
	t.Helper()
	h.remote.setUnavailable(true)
	require.False(t, h.monitor.ForceCheck(context.Background()))
}

func (h *harness) pendingFor(t *testing.T, k models.Kind, localID int64) []models.QueueEntry {
	t.Helper()
	entries, err := h.store.PendingEntries(context.Background())
	require.NoError(t, err)
	var out []models.QueueEntry
	for _, e := range entries {
		if e.Kind == k && e.LocalID == localID {
			out = append(out, e)
		}
	}
	return out
}

func newFarm(name string) *models.Farm {
	return &models.Farm{Name: name, Location: "Valley Rd 7"}
}

func newFlock(farmLocalID int64, name string) *models.Flock {
	return &models.Flock{
		FarmLocalID:  farmLocalID,
		Name:         name,
		Breed:        "Lohmann Brown",
		AcquiredOn:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		InitialCount: 200,
	}
}

// drain collects every event currently buffered on ch.
func drain(ch <-chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func eventNames(evts []events.Event) []string {
	names := make([]string, 0, len(evts))
	for _, e := range evts {
		names = append(names, e.Name)
	}
	return names
}
