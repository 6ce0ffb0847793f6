package registry

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symsync/internal/api"
	"symsync/internal/config"
	"symsync/internal/reconciler"
)

type dirs struct {
	base string
}

func newDirs(t *testing.T) dirs {
	return dirs{base: t.TempDir()}
}

func (d dirs) mk(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(d.base, name)
	require.NoError(t, os.MkdirAll(p, 0o755))
	return p
}

func (d dirs) path(parts ...string) string {
	return filepath.Join(append([]string{d.base}, parts...)...)
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	settings := config.Default().Settings
	settings.DebounceMillis = 20
	r := New(Options{Settings: settings, Metrics: reconciler.NewMetrics()})
	t.Cleanup(func() { _ = r.StopAll() })
	return r
}

func TestAddLink(t *testing.T) {
	d := newDirs(t)
	a := d.mk(t, "A")
	r := newRegistry(t)

	cfg, err := r.AddLink(api.LinkConfig{Name: "one", Target: d.path("T"), Sources: []string{a + "/"}})
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.ID)
	assert.Equal(t, []string{a}, cfg.Sources)
	assert.Equal(t, api.DefaultRescanInterval, cfg.RescanInterval)

	info, err := r.Get(cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, api.StateStopped, info.Status.State)
}

func TestAddLink_Invariants(t *testing.T) {
	d := newDirs(t)
	a := d.mk(t, "A")
	b := d.mk(t, "B")
	r := newRegistry(t)

	_, err := r.AddLink(api.LinkConfig{Target: d.path("T"), Sources: []string{a}})
	require.NoError(t, err)

	tests := []struct {
		name string
		cfg  api.LinkConfig
		kind api.ErrorKind
	}{
		{"duplicate target", api.LinkConfig{Target: d.path("T") + "/", Sources: []string{b}}, api.KindDuplicateTarget},
		{"duplicate source", api.LinkConfig{Target: d.path("U"), Sources: []string{b, b}}, api.KindDuplicateSource},
		{"target inside source", api.LinkConfig{Target: filepath.Join(b, "T"), Sources: []string{b}}, api.KindInvalidPath},
		{"missing source", api.LinkConfig{Target: d.path("U"), Sources: []string{d.path("nope")}}, api.KindInvalidPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.AddLink(tt.cfg)
			require.Error(t, err)
			assert.Equal(t, tt.kind, api.KindOf(err))
			assert.Len(t, r.List(), 1, "registry must not change on a rejected add")
		})
	}

	_, statErr := os.Stat(d.path("U"))
	assert.True(t, os.IsNotExist(statErr), "rejected add must not touch the filesystem")
}

func TestUpdateLink(t *testing.T) {
	d := newDirs(t)
	a := d.mk(t, "A")
	b := d.mk(t, "B")
	r := newRegistry(t)

	one, err := r.AddLink(api.LinkConfig{Name: "one", Target: d.path("T1"), Sources: []string{a}})
	require.NoError(t, err)
	two, err := r.AddLink(api.LinkConfig{Name: "two", Target: d.path("T2"), Sources: []string{b}})
	require.NoError(t, err)

	// Moving onto another link's target is rejected and leaves both intact.
	bad := two
	bad.Target = one.Target
	_, err = r.UpdateLink(two.ID, bad)
	assert.True(t, api.IsKind(err, api.KindDuplicateTarget))
	info, _ := r.Get(two.ID)
	assert.Equal(t, d.path("T2"), info.Config.Target)

	require.NoError(t, r.Start(context.Background(), one.ID))
	upd := one
	upd.Name = "renamed"
	_, err = r.UpdateLink(one.ID, upd)
	assert.True(t, api.IsKind(err, api.KindLinkActive))

	require.NoError(t, r.Stop(one.ID))
	got, err := r.UpdateLink(one.ID, upd)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)

	_, err = r.UpdateLink("missing", upd)
	assert.True(t, api.IsKind(err, api.KindNotFound))
}

func TestStartStopDelete(t *testing.T) {
	d := newDirs(t)
	a := d.mk(t, "A")
	require.NoError(t, os.WriteFile(filepath.Join(a, "x"), nil, 0o644))
	r := newRegistry(t)

	cfg, err := r.AddLink(api.LinkConfig{Target: d.path("T"), Sources: []string{a}})
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background(), cfg.ID))
	info, _ := r.Get(cfg.ID)
	assert.Equal(t, api.StateWatching, info.Status.State)
	assert.True(t, info.Config.Active)
	_, err = os.Lstat(d.path("T", "x"))
	require.NoError(t, err)

	require.NoError(t, r.Stop(cfg.ID))
	info, _ = r.Get(cfg.ID)
	assert.False(t, info.Config.Active)
	_, err = os.Lstat(d.path("T", "x"))
	assert.NoError(t, err, "Stop must leave links in place")

	require.NoError(t, r.DeleteLink(cfg.ID))
	_, err = os.Lstat(d.path("T", "x"))
	assert.True(t, os.IsNotExist(err))
	_, err = r.Get(cfg.ID)
	assert.True(t, api.IsKind(err, api.KindNotFound))
	assert.Empty(t, r.List())
}

func TestSubscribe(t *testing.T) {
	d := newDirs(t)
	a := d.mk(t, "A")
	r := newRegistry(t)

	var mu sync.Mutex
	var states []api.LinkState
	unsubscribe := r.Subscribe(func(u api.StatusUpdate) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, u.State)
	})

	cfg, err := r.AddLink(api.LinkConfig{Target: d.path("T"), Sources: []string{a}})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background(), cfg.ID))
	require.NoError(t, r.Stop(cfg.ID))

	mu.Lock()
	assert.Equal(t, []api.LinkState{api.StateStarting, api.StateWatching, api.StateStopped}, states)
	mu.Unlock()

	unsubscribe()
	require.NoError(t, r.Start(context.Background(), cfg.ID))
	mu.Lock()
	assert.Len(t, states, 3)
	mu.Unlock()
}

func TestSerializeRestore(t *testing.T) {
	d := newDirs(t)
	a := d.mk(t, "A")
	b := d.mk(t, "B")
	require.NoError(t, os.WriteFile(filepath.Join(a, "x"), nil, 0o644))
	r := newRegistry(t)

	active, err := r.AddLink(api.LinkConfig{Name: "active", Target: d.path("T1"), Sources: []string{a}, RescanInterval: 90 * time.Second})
	require.NoError(t, err)
	idle, err := r.AddLink(api.LinkConfig{Name: "idle", Target: d.path("T2"), Sources: []string{b}})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background(), active.ID))
	require.NoError(t, r.StopAll())

	snap := r.Serialize()
	require.Len(t, snap.Links, 2)
	assert.Equal(t, active.ID, snap.Links[0].ID)
	assert.True(t, snap.Links[0].Active, "StopAll keeps active flags")
	assert.Equal(t, 90, snap.Links[0].RescanSeconds)
	assert.NotEmpty(t, snap.Links[0].Log)
	assert.False(t, snap.Links[1].Active)

	restored := newRegistry(t)
	require.NoError(t, restored.Restore(context.Background(), snap))

	list := restored.List()
	require.Len(t, list, 2)
	assert.Equal(t, active.ID, list[0].Config.ID)
	assert.Equal(t, api.StateWatching, list[0].Status.State)
	assert.Equal(t, idle.ID, list[1].Config.ID)
	assert.Equal(t, api.StateStopped, list[1].Status.State)

	tail, err := restored.Tail(active.ID, 0)
	require.NoError(t, err)
	assert.Greater(t, len(tail), len(snap.Links[0].Log), "restored log keeps persisted entries")
}

func TestLoad_SkipsConflictingLinks(t *testing.T) {
	d := newDirs(t)
	a := d.mk(t, "A")
	r := newRegistry(t)

	snap := config.Snapshot{Links: []config.LinkSpec{
		{ID: "one", Target: d.path("T"), Sources: []string{a}},
		{ID: "two", Target: d.path("T"), Sources: []string{a}},
	}}
	err := r.Load(snap)
	require.Error(t, err)
	assert.True(t, api.IsKind(err, api.KindDuplicateTarget))
	assert.Len(t, r.List(), 1)
}

func TestRestore_FailedStartStaysRegistered(t *testing.T) {
	d := newDirs(t)
	r := newRegistry(t)

	snap := config.Snapshot{Links: []config.LinkSpec{
		{ID: "gone", Target: d.path("T"), Sources: []string{d.path("missing")}, Active: true},
	}}
	err := r.Restore(context.Background(), snap)
	require.Error(t, err)

	info, err := r.Get("gone")
	require.NoError(t, err)
	assert.Equal(t, api.StateError, info.Status.State)
}

func TestResolve(t *testing.T) {
	d := newDirs(t)
	a := d.mk(t, "A")
	b := d.mk(t, "B")
	r := newRegistry(t)
	ids := []string{"aaaa-0001", "aaaa-0002"}
	r.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	_, err := r.AddLink(api.LinkConfig{Name: "music", Target: d.path("T1"), Sources: []string{a}})
	require.NoError(t, err)
	_, err = r.AddLink(api.LinkConfig{Name: "photos", Target: d.path("T2"), Sources: []string{b}})
	require.NoError(t, err)

	id, err := r.Resolve("photos")
	require.NoError(t, err)
	assert.Equal(t, "aaaa-0002", id)

	id, err = r.Resolve("aaaa-0001")
	require.NoError(t, err)
	assert.Equal(t, "aaaa-0001", id)

	_, err = r.Resolve("aaaa")
	assert.True(t, api.IsKind(err, api.KindInvalidConfig))

	_, err = r.Resolve("video")
	assert.True(t, api.IsKind(err, api.KindNotFound))
}

func TestSetActive(t *testing.T) {
	d := newDirs(t)
	a := d.mk(t, "A")
	r := newRegistry(t)

	cfg, err := r.AddLink(api.LinkConfig{Target: d.path("T"), Sources: []string{a}, Active: true})
	require.NoError(t, err)
	assert.True(t, cfg.Active)

	require.NoError(t, r.SetActive(cfg.ID, false))
	info, err := r.Get(cfg.ID)
	require.NoError(t, err)
	assert.False(t, info.Config.Active)
	assert.Equal(t, api.StateStopped, info.Status.State, "flag only, nothing started")

	assert.True(t, api.IsKind(r.SetActive("missing", true), api.KindNotFound))
}

func TestStart_AfterConcurrentDeleteDoesNotRevive(t *testing.T) {
	d := newDirs(t)
	a := d.mk(t, "A")
	require.NoError(t, os.WriteFile(filepath.Join(a, "x"), nil, 0o644))
	r := newRegistry(t)

	cfg, err := r.AddLink(api.LinkConfig{Target: d.path("T"), Sources: []string{a}})
	require.NoError(t, err)

	// Replay Start with a delete landing between its lookup and the
	// controller start.
	l, err := r.lookup(cfg.ID)
	require.NoError(t, err)
	require.NoError(t, r.DeleteLink(cfg.ID))

	err = l.ctrl.Start(context.Background())
	assert.True(t, api.IsKind(err, api.KindNotFound), "got %v", err)
	assert.Equal(t, api.StateStopped, l.ctrl.State())
	_, err = os.Lstat(d.path("T", "x"))
	assert.True(t, os.IsNotExist(err), "deleted link recreated its symlink")
}

func TestSetInterval(t *testing.T) {
	d := newDirs(t)
	a := d.mk(t, "A")
	r := newRegistry(t)

	cfg, err := r.AddLink(api.LinkConfig{Target: d.path("T"), Sources: []string{a}})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background(), cfg.ID))

	require.NoError(t, r.SetInterval(cfg.ID, 90*time.Second))
	info, err := r.Get(cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, info.Config.RescanInterval)
	assert.Equal(t, 90*time.Second, info.Status.Config.RescanInterval)
	assert.Equal(t, api.StateWatching, info.Status.State)

	assert.True(t, api.IsKind(r.SetInterval(cfg.ID, time.Millisecond), api.KindInvalidConfig))
	assert.True(t, api.IsKind(r.SetInterval(cfg.ID, 2*time.Hour), api.KindInvalidConfig))
	assert.True(t, api.IsKind(r.SetInterval("missing", time.Minute), api.KindNotFound))
}

func TestMetrics(t *testing.T) {
	d := newDirs(t)
	a := d.mk(t, "A")
	require.NoError(t, os.WriteFile(filepath.Join(a, "x"), nil, 0o644))
	r := newRegistry(t)

	cfg, err := r.AddLink(api.LinkConfig{Target: d.path("T"), Sources: []string{a}})
	require.NoError(t, err)

	m, err := r.Metrics(cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, m.LinkID)
	assert.Zero(t, m.Passes)

	_, err = r.Sync(context.Background(), cfg.ID)
	require.NoError(t, err)
	m, err = r.Metrics(cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Passes)
	assert.Equal(t, int64(1), m.Added)
	assert.Equal(t, int64(1), r.MetricsSummary().TotalPasses)

	_, err = r.Metrics("missing")
	assert.True(t, api.IsKind(err, api.KindNotFound))
}

func TestSubscribeActivity(t *testing.T) {
	d := newDirs(t)
	a := d.mk(t, "A")
	require.NoError(t, os.WriteFile(filepath.Join(a, "x"), nil, 0o644))
	r := newRegistry(t)

	var mu sync.Mutex
	var got []api.ActivityEntry
	unsubscribe := r.SubscribeActivity(func(e api.ActivityEntry) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})

	// Restored history is not replayed to subscribers.
	restored := api.LinkConfig{ID: "restored", Target: d.path("U"), Sources: []string{d.mk(t, "B")}}
	require.NoError(t, r.Load(config.Snapshot{
		Settings: r.Settings(),
		Links:    []config.LinkSpec{config.NewLinkSpec(restored, []api.ActivityEntry{{Kind: api.ActivityAdded, Path: "old"}})},
	}))
	mu.Lock()
	assert.Empty(t, got)
	mu.Unlock()

	cfg, err := r.AddLink(api.LinkConfig{Target: d.path("T"), Sources: []string{a}})
	require.NoError(t, err)
	_, err = r.Sync(context.Background(), cfg.ID)
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, got, 1)
	assert.Equal(t, api.ActivityAdded, got[0].Kind)
	assert.Equal(t, cfg.ID, got[0].LinkID)
	assert.Equal(t, d.path("T", "x"), got[0].Path)
	mu.Unlock()

	unsubscribe()
	require.NoError(t, os.WriteFile(filepath.Join(a, "y"), nil, 0o644))
	_, err = r.Sync(context.Background(), cfg.ID)
	require.NoError(t, err)
	mu.Lock()
	assert.Len(t, got, 1)
	mu.Unlock()
}
