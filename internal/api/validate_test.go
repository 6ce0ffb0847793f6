package api

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithin(t *testing.T) {
	sep := string(filepath.Separator)
	root := sep + "data"
	tests := []struct {
		path, dir string
		want      bool
	}{
		{root, root, true},
		{root + sep + "a", root, true},
		{root + "2", root, false},
		{sep + "data" + sep + "a", sep, true},
		{sep + "other", root, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Within(tt.path, tt.dir), "%s in %s", tt.path, tt.dir)
	}
}

func TestNormalizeLink(t *testing.T) {
	base := t.TempDir()
	a := filepath.Join(base, "A")
	b := filepath.Join(base, "B")
	target := filepath.Join(base, "T")

	tests := []struct {
		name string
		cfg  LinkConfig
		kind ErrorKind
	}{
		{"valid", LinkConfig{Target: target, Sources: []string{a, b}}, ""},
		{"no sources", LinkConfig{Target: target}, KindInvalidConfig},
		{"empty target", LinkConfig{Sources: []string{a}}, KindInvalidPath},
		{"duplicate source", LinkConfig{Target: target, Sources: []string{a, a + string(filepath.Separator)}}, KindDuplicateSource},
		{"target equals source", LinkConfig{Target: a, Sources: []string{a}}, KindInvalidPath},
		{"target inside source", LinkConfig{Target: filepath.Join(a, "T"), Sources: []string{a}}, KindInvalidPath},
		{"source inside target", LinkConfig{Target: base, Sources: []string{a}}, KindInvalidPath},
		{"interval too small", LinkConfig{Target: target, Sources: []string{a}, RescanInterval: time.Millisecond}, KindInvalidConfig},
		{"interval too large", LinkConfig{Target: target, Sources: []string{a}, RescanInterval: 2 * time.Hour}, KindInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NormalizeLink(tt.cfg)
			if tt.kind == "" {
				require.NoError(t, err)
				assert.Equal(t, DefaultRescanInterval, out.RescanInterval)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestNormalizeLinkDoesNotAlias(t *testing.T) {
	base := t.TempDir()
	cfg := LinkConfig{Target: filepath.Join(base, "T"), Sources: []string{filepath.Join(base, "A") + "/"}}
	out, err := NormalizeLink(cfg)
	require.NoError(t, err)
	out.Sources[0] = "changed"
	assert.NotEqual(t, "changed", cfg.Sources[0])
}

func TestCheckSources(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "dir")
	file := filepath.Join(base, "file")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	assert.NoError(t, CheckSources(LinkConfig{Sources: []string{dir}}))
	assert.True(t, IsKind(CheckSources(LinkConfig{Sources: []string{file}}), KindInvalidPath))
	assert.True(t, IsKind(CheckSources(LinkConfig{Sources: []string{filepath.Join(base, "nope")}}), KindInvalidPath))
}

func TestErrorMatching(t *testing.T) {
	err := NewError(KindDuplicateTarget, "addLink", "/t", nil)
	wrapped := Errorf(KindFatal, "x", "", "outer: %w", err)

	assert.True(t, IsKind(err, KindDuplicateTarget))
	assert.ErrorIs(t, err, &Error{Kind: KindDuplicateTarget})
	assert.ErrorIs(t, wrapped, &Error{Kind: KindDuplicateTarget})
	assert.Equal(t, KindFatal, KindOf(wrapped))
	assert.Equal(t, CategoryConfiguration, KindDuplicateTarget.Category())
	assert.Equal(t, CategoryFatal, KindFatal.Category())
	assert.Equal(t, "addLink: DuplicateTarget /t", err.Error())
	assert.False(t, IsKind(nil, KindFatal))
}
