package symlink

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symsync/internal/api"
)

// faultFS fails Symlink and Remove with a fixed error.
type faultFS struct {
	FS
	err error
}

func (f faultFS) Symlink(string, string) error { return f.err }
func (f faultFS) Remove(string) error          { return f.err }

func setup(t *testing.T) (src, target string) {
	t.Helper()
	root := t.TempDir()
	src = filepath.Join(root, "src")
	target = filepath.Join(root, "target")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "dir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "file.txt"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(target, 0o755))
	return src, target
}

func TestCreate(t *testing.T) {
	src, target := setup(t)
	ops := New(nil)

	require.NoError(t, ops.Create(target, "file.txt", filepath.Join(src, "file.txt")))
	require.NoError(t, ops.Create(target, "dir", filepath.Join(src, "dir")))

	dest, err := os.Readlink(filepath.Join(target, "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(src, "file.txt"), dest)

	// second call is a no-op
	require.NoError(t, ops.Create(target, "file.txt", filepath.Join(src, "file.txt")))
}

func TestCreateNeverOverwrites(t *testing.T) {
	src, target := setup(t)
	ops := New(nil)

	occupied := filepath.Join(target, "file.txt")
	require.NoError(t, os.WriteFile(occupied, []byte("user data"), 0o644))

	err := ops.Create(target, "file.txt", filepath.Join(src, "file.txt"))
	require.Error(t, err)
	assert.True(t, api.IsKind(err, api.KindAlreadyExists))

	data, err := os.ReadFile(occupied)
	require.NoError(t, err)
	assert.Equal(t, "user data", string(data))
}

func TestCreateWrongSymlinkIsRefused(t *testing.T) {
	src, target := setup(t)
	ops := New(nil)

	require.NoError(t, os.Symlink(filepath.Join(src, "dir"), filepath.Join(target, "file.txt")))
	err := ops.Create(target, "file.txt", filepath.Join(src, "file.txt"))
	assert.True(t, api.IsKind(err, api.KindAlreadyExists))
}

func TestCreateMissingSource(t *testing.T) {
	src, target := setup(t)
	err := New(nil).Create(target, "gone", filepath.Join(src, "gone"))
	assert.True(t, api.IsKind(err, api.KindInvalidPath))
}

func TestCreatePermissionDenied(t *testing.T) {
	src, target := setup(t)
	ops := New(faultFS{FS: NewOS(), err: &fs.PathError{Op: "symlink", Path: target, Err: fs.ErrPermission}})

	err := ops.Create(target, "file.txt", filepath.Join(src, "file.txt"))
	assert.True(t, api.IsKind(err, api.KindPermissionDenied))
	assert.Equal(t, api.CategoryFilesystem, api.KindOf(err).Category())
}

func TestRemove(t *testing.T) {
	src, target := setup(t)
	ops := New(nil)

	require.NoError(t, ops.Create(target, "dir", filepath.Join(src, "dir")))
	require.NoError(t, ops.Remove(target, "dir"))
	_, err := os.Lstat(filepath.Join(target, "dir"))
	assert.True(t, os.IsNotExist(err))

	// source untouched
	_, err = os.Stat(filepath.Join(src, "dir"))
	assert.NoError(t, err)

	// absent is fine
	assert.NoError(t, ops.Remove(target, "dir"))
}

func TestRemoveRefusesRealFiles(t *testing.T) {
	_, target := setup(t)
	require.NoError(t, os.WriteFile(filepath.Join(target, "keep"), nil, 0o644))

	err := New(nil).Remove(target, "keep")
	assert.True(t, api.IsKind(err, api.KindAlreadyExists))
	_, statErr := os.Stat(filepath.Join(target, "keep"))
	assert.NoError(t, statErr)
}

func TestVerify(t *testing.T) {
	src, target := setup(t)
	ops := New(nil)
	file := filepath.Join(src, "file.txt")
	dir := filepath.Join(src, "dir")

	assert.Equal(t, api.EntryMissing, ops.Verify(target, "file.txt", file))

	require.NoError(t, ops.Create(target, "file.txt", file))
	assert.Equal(t, api.EntryLinked, ops.Verify(target, "file.txt", file))

	// points elsewhere
	assert.Equal(t, api.EntryBroken, ops.Verify(target, "file.txt", dir))

	// dangling
	require.NoError(t, os.Remove(file))
	assert.Equal(t, api.EntryBroken, ops.Verify(target, "file.txt", file))

	require.NoError(t, os.Mkdir(filepath.Join(target, "real"), 0o755))
	assert.Equal(t, api.EntryConflicted, ops.Verify(target, "real", dir))
}

func TestVerifyRelativeLink(t *testing.T) {
	src, target := setup(t)
	rel, err := filepath.Rel(target, filepath.Join(src, "dir"))
	require.NoError(t, err)
	require.NoError(t, os.Symlink(rel, filepath.Join(target, "dir")))

	ops := New(nil)
	assert.Equal(t, api.EntryLinked, ops.Verify(target, "dir", filepath.Join(src, "dir")))

	dest, ok := ops.Destination(target, "dir")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(src, "dir"), dest)

	_, ok = ops.Destination(target, "missing")
	assert.False(t, ok)
}
