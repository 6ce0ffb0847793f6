// Package symlink creates, verifies and removes the individual symlinks that
// make up a mirror. It holds no locks; a target directory is owned by exactly
// one link controller.
package symlink

import (
	"errors"
	"io/fs"
	"path/filepath"

	"symsync/internal/api"
)

// Operations performs single-entry symlink work against an FS.
type Operations struct {
	fs FS
}

// New creates Operations over fsys. A nil fsys means the host filesystem.
func New(fsys FS) *Operations {
	if fsys == nil {
		fsys = NewOS()
	}
	return &Operations{fs: fsys}
}

// FS returns the filesystem the operations run against.
func (o *Operations) FS() FS {
	return o.fs
}

// Create makes targetDir/name a symlink to sourcePath. An existing correct
// link is left alone. Anything else occupying the name is never replaced.
func (o *Operations) Create(targetDir, name, sourcePath string) error {
	linkPath := filepath.Join(targetDir, name)

	if _, err := o.fs.Stat(sourcePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return api.NewError(api.KindInvalidPath, "create", sourcePath, err)
		}
		return classify("create", sourcePath, err)
	}

	info, err := o.fs.Lstat(linkPath)
	switch {
	case err == nil:
		if info.Mode()&fs.ModeSymlink != 0 && o.pointsTo(targetDir, linkPath, sourcePath) {
			return nil
		}
		return api.Errorf(api.KindAlreadyExists, "create", linkPath, "name is occupied")
	case !errors.Is(err, fs.ErrNotExist):
		return classify("create", linkPath, err)
	}

	if err := o.fs.Symlink(sourcePath, linkPath); err != nil {
		return classify("create", linkPath, err)
	}
	return nil
}

// Remove deletes targetDir/name if it is a symlink. A missing entry is not an
// error; a regular file or directory is refused.
func (o *Operations) Remove(targetDir, name string) error {
	linkPath := filepath.Join(targetDir, name)

	info, err := o.fs.Lstat(linkPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return classify("remove", linkPath, err)
	}
	if info.Mode()&fs.ModeSymlink == 0 {
		return api.Errorf(api.KindAlreadyExists, "remove", linkPath, "refusing to remove non-symlink")
	}
	if err := o.fs.Remove(linkPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return classify("remove", linkPath, err)
	}
	return nil
}

// Verify reports the status of targetDir/name against expectedSource.
func (o *Operations) Verify(targetDir, name, expectedSource string) api.EntryStatus {
	linkPath := filepath.Join(targetDir, name)

	info, err := o.fs.Lstat(linkPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return api.EntryMissing
		}
		return api.EntryBroken
	}
	if info.Mode()&fs.ModeSymlink == 0 {
		return api.EntryConflicted
	}
	if !o.pointsTo(targetDir, linkPath, expectedSource) {
		return api.EntryBroken
	}
	if _, err := o.fs.Stat(linkPath); err != nil {
		return api.EntryBroken
	}
	return api.EntryLinked
}

// Destination returns the absolute path targetDir/name points to. ok is false
// when the entry is absent or not a symlink.
func (o *Operations) Destination(targetDir, name string) (string, bool) {
	linkPath := filepath.Join(targetDir, name)
	info, err := o.fs.Lstat(linkPath)
	if err != nil || info.Mode()&fs.ModeSymlink == 0 {
		return "", false
	}
	dest, err := o.fs.Readlink(linkPath)
	if err != nil {
		return "", false
	}
	return resolve(targetDir, dest), true
}

func (o *Operations) pointsTo(targetDir, linkPath, expected string) bool {
	dest, err := o.fs.Readlink(linkPath)
	if err != nil {
		return false
	}
	return resolve(targetDir, dest) == filepath.Clean(expected)
}

func resolve(dir, dest string) string {
	if !filepath.IsAbs(dest) {
		dest = filepath.Join(dir, dest)
	}
	return filepath.Clean(dest)
}

func classify(op, path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return api.NewError(api.KindPermissionDenied, op, path, err)
	case errors.Is(err, fs.ErrExist):
		return api.NewError(api.KindAlreadyExists, op, path, err)
	default:
		return api.NewError(api.KindFilesystem, op, path, err)
	}
}
