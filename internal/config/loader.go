package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"symsync/pkg/logging"
)

// Format is a snapshot codec.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// configHome is swapped in tests.
var configHome = func() string { return xdg.ConfigHome }

// DefaultPath returns the default snapshot location.
func DefaultPath() string {
	return filepath.Join(configHome(), appDirName, defaultFileName)
}

// FormatFor picks the codec from the file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", NewConfigurationError(path, "", ErrorTypeFormat,
			fmt.Sprintf("unsupported file extension %q", filepath.Ext(path)),
			"use a .yaml, .yml or .toml file")
	}
}

// Load reads the snapshot at path. A missing file yields Default().
func Load(path string) (Snapshot, error) {
	format, err := FormatFor(path)
	if err != nil {
		return Snapshot{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No snapshot found at %s, using defaults", path)
			return Default(), nil
		}
		return Snapshot{}, NewConfigurationError(path, "", ErrorTypeIO, err.Error(),
			"check that the file is readable by the current user")
	}

	snap, err := Decode(data, format)
	if err != nil {
		ce := NewConfigurationError(path, "", ErrorTypeParse, err.Error(),
			"fix the syntax error or move the file aside to start from defaults")
		return Snapshot{}, ce
	}

	if err := Validate(snap, path); err != nil {
		return Snapshot{}, err
	}
	logging.Info("ConfigLoader", "Loaded %d link(s) from %s", len(snap.Links), path)
	return snap, nil
}

// Decode parses data in the given format, starting from default settings.
func Decode(data []byte, format Format) (Snapshot, error) {
	snap := Default()
	var err error
	switch format {
	case FormatTOML:
		err = toml.Unmarshal(data, &snap)
	default:
		err = yaml.Unmarshal(data, &snap)
	}
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Encode serializes snap in the given format.
func Encode(snap Snapshot, format Format) ([]byte, error) {
	if format == FormatTOML {
		return toml.Marshal(snap)
	}
	return yaml.Marshal(snap)
}

func baseName(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}
