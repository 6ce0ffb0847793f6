package api

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// NormalizePath returns the absolute, cleaned form of p.
func NormalizePath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", Errorf(KindInvalidPath, "normalize", p, "path is empty")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", NewError(KindInvalidPath, "normalize", p, err)
	}
	return filepath.Clean(abs), nil
}

// Within reports whether path equals dir or lies below it. Both must be
// normalized.
func Within(path, dir string) bool {
	if path == dir {
		return true
	}
	prefix := dir
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// NormalizeLink returns cfg with normalized paths and a defaulted interval,
// after checking the invariants that concern a single link: at least one
// source, no duplicate sources, and no overlap between the target and any
// source.
func NormalizeLink(cfg LinkConfig) (LinkConfig, error) {
	out := cfg.Clone()

	target, err := NormalizePath(cfg.Target)
	if err != nil {
		return cfg, NewError(KindInvalidPath, "validate", cfg.Target, errors.New("target path is invalid"))
	}
	out.Target = target

	if len(cfg.Sources) == 0 {
		return cfg, Errorf(KindInvalidConfig, "validate", target, "at least one source directory is required")
	}

	seen := make(map[string]struct{}, len(cfg.Sources))
	for i, s := range cfg.Sources {
		src, err := NormalizePath(s)
		if err != nil {
			return cfg, err
		}
		if _, dup := seen[src]; dup {
			return cfg, Errorf(KindDuplicateSource, "validate", src, "source listed more than once")
		}
		seen[src] = struct{}{}
		if Within(target, src) || Within(src, target) {
			return cfg, Errorf(KindInvalidPath, "validate", src, "target %s overlaps source", target)
		}
		out.Sources[i] = src
	}

	if out.RescanInterval == 0 {
		out.RescanInterval = DefaultRescanInterval
	}
	if out.RescanInterval < MinRescanInterval || out.RescanInterval > MaxRescanInterval {
		return cfg, Errorf(KindInvalidConfig, "validate", target,
			"rescan interval %s outside %s..%s", out.RescanInterval, MinRescanInterval, MaxRescanInterval)
	}
	return out, nil
}

// CheckSources verifies that every source is an existing directory.
func CheckSources(cfg LinkConfig) error {
	for _, src := range cfg.Sources {
		info, err := os.Stat(src)
		switch {
		case errors.Is(err, fs.ErrPermission):
			return NewError(KindPermissionDenied, "validate", src, err)
		case err != nil:
			return NewError(KindInvalidPath, "validate", src, err)
		case !info.IsDir():
			return NewError(KindInvalidPath, "validate", src, fmt.Errorf("not a directory"))
		}
	}
	return nil
}
