package app

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
)

type recordingNotifier struct {
	mu     sync.Mutex
	states []string
}

func (r *recordingNotifier) Notify(state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recordingNotifier) has(state string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.states {
		if s == state {
			return true
		}
	}
	return false
}

func writeSnapshot(t *testing.T, base string) string {
	t.Helper()
	src := filepath.Join(base, "A")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "x"), nil, 0o644))

	snap := config.Default()
	snap.Links = []config.LinkSpec{{
		ID:      "link-1",
		Name:    "a",
		Target:  filepath.Join(base, "T"),
		Sources: []string{src},
		Active:  true,
	}}
	path := filepath.Join(base, "links.yaml")
	require.NoError(t, config.Save(path, snap))
	return path
}

func TestNewApplication_LoadsWithoutStarting(t *testing.T) {
	base := t.TempDir()
	path := writeSnapshot(t, base)

	cfg := NewConfig(false, false, path)
	cfg.Silent = true
	application, err := NewApplication(cfg)
	require.NoError(t, err)

	assert.Equal(t, path, application.Path())
	require.NotNil(t, cfg.Snapshot)
	list := application.Registry().List()
	require.Len(t, list, 1)
	assert.Equal(t, api.StateStopped, list[0].Status.State)
}

func TestNewApplication_BadDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.yaml")
	require.NoError(t, os.WriteFile(path, []byte("links: [oops"), 0o644))

	cfg := NewConfig(false, false, path)
	cfg.Silent = true
	_, err := NewApplication(cfg)
	require.Error(t, err)
	var ce config.ConfigurationError
	assert.ErrorAs(t, err, &ce)
}

func TestRunDaemon(t *testing.T) {
	base := t.TempDir()
	path := writeSnapshot(t, base)

	cfg := NewConfig(false, false, path)
	cfg.Silent = true
	application, err := NewApplication(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	n := &recordingNotifier{}
	done := make(chan error, 1)
	go func() { done <- runDaemon(ctx, application, n) }()

	require.Eventually(t, func() bool { return n.has("READY=1") }, 3*time.Second, 10*time.Millisecond)
	_, err = os.Lstat(filepath.Join(base, "T", "x"))
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.True(t, n.has("STOPPING=1"))

	snap, err := config.Load(path)
	require.NoError(t, err)
	require.Len(t, snap.Links, 1)
	assert.True(t, snap.Links[0].Active)
	assert.NotEmpty(t, snap.Links[0].Log)
}
