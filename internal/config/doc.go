// Package config loads and saves the symsync snapshot document.
//
// The snapshot holds global settings and every configured link, including a
// bounded tail of each link's activity log. It is read once at startup to
// restore the registry and written back on shutdown and after offline edits.
//
// # Location
//
// The default document is $XDG_CONFIG_HOME/symsync/links.yaml. The --config
// flag points at any other file.
//
// # Formats
//
// The codec follows the file extension: .yaml and .yml use YAML, .toml uses
// TOML. Both encode the same Snapshot structure.
//
// # Errors
//
// Problems with the document itself are reported as ConfigurationError
// values, grouped in a ConfigurationErrorCollection when validation finds
// several at once. Each error carries suggestions for fixing it.
package config
