package config

import (
	"fmt"
	"path/filepath"
	"time"

	"symsync/internal/api"
	"symsync/pkg/logging"
)

// Validate checks the structure of snap. Cross-link invariants that need the
// filesystem are enforced again when links are registered. path is only used
// for error context.
func Validate(snap Snapshot, path string) error {
	errs := NewConfigurationErrorCollection()

	s := snap.Settings
	if s.DebounceMillis < 0 {
		errs.Add(NewConfigurationError(path, "settings.debounceMs", ErrorTypeValidation,
			"must not be negative", "remove the field to use the default of 500"))
	}
	if s.RescanSeconds != 0 && !intervalInRange(s.RescanSeconds) {
		errs.Add(NewConfigurationError(path, "settings.rescanSeconds", ErrorTypeValidation,
			fmt.Sprintf("%d is outside 1..3600", s.RescanSeconds)))
	}
	if s.LogRetention < 0 || s.SnapshotLogTail < 0 {
		errs.Add(NewConfigurationError(path, "settings", ErrorTypeValidation,
			"log sizes must not be negative"))
	}
	if s.LogLevel != "" {
		if _, ok := logging.ParseLevel(s.LogLevel); !ok {
			errs.Add(NewConfigurationError(path, "settings.logLevel", ErrorTypeValidation,
				fmt.Sprintf("unknown level %q", s.LogLevel), "use one of debug, info, warn, error"))
		}
	}

	ids := make(map[string]int)
	targets := make(map[string]int)
	for i, l := range snap.Links {
		field := fmt.Sprintf("links[%d]", i)
		if l.ID == "" {
			errs.Add(NewConfigurationError(path, field+".id", ErrorTypeValidation, "id is required",
				"add the link with 'symsync link add' instead of editing the file"))
		} else if prev, dup := ids[l.ID]; dup {
			errs.Add(NewConfigurationError(path, field+".id", ErrorTypeValidation,
				fmt.Sprintf("duplicate id, also used by links[%d]", prev)))
		} else {
			ids[l.ID] = i
		}

		if l.Target == "" {
			errs.Add(NewConfigurationError(path, field+".target", ErrorTypeValidation, "target is required"))
		} else {
			target := filepath.Clean(l.Target)
			if !filepath.IsAbs(target) {
				errs.Add(NewConfigurationError(path, field+".target", ErrorTypeValidation,
					"target must be an absolute path"))
			}
			if prev, dup := targets[target]; dup {
				errs.Add(NewConfigurationError(path, field+".target", ErrorTypeValidation,
					fmt.Sprintf("target %s is also used by links[%d]", target, prev),
					"every link needs its own target directory"))
			} else {
				targets[target] = i
			}
		}

		if len(l.Sources) == 0 {
			errs.Add(NewConfigurationError(path, field+".sources", ErrorTypeValidation,
				"at least one source is required"))
		}
		for j, src := range l.Sources {
			if !filepath.IsAbs(src) {
				errs.Add(NewConfigurationError(path, fmt.Sprintf("%s.sources[%d]", field, j), ErrorTypeValidation,
					"source must be an absolute path"))
			}
		}

		if l.RescanSeconds != 0 && !intervalInRange(l.RescanSeconds) {
			errs.Add(NewConfigurationError(path, field+".rescanSeconds", ErrorTypeValidation,
				fmt.Sprintf("%d is outside 1..3600", l.RescanSeconds)))
		}
	}

	if errs.HasErrors() {
		return *errs
	}
	return nil
}

func intervalInRange(seconds int) bool {
	d := time.Duration(seconds) * time.Second
	return d >= api.MinRescanInterval && d <= api.MaxRescanInterval
}
