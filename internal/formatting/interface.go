// Package formatting renders links, activity logs and reconcile reports for
// the command line and the interactive console.
package formatting

import (
	"fmt"
	"io"
	"strings"
	"time"

	"symsync/internal/api"
	"symsync/internal/reconciler"
	"symsync/internal/registry"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatTable OutputFormat = "table" // Rich table output
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
)

// ParseFormat maps a --output flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
	}
}

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	Quiet  bool // Suppress decorative elements
	Color  bool // Enable colored output
}

// Formatter writes symsync views to w.
type Formatter interface {
	FormatLinks(w io.Writer, links []LinkView) error
	FormatActivity(w io.Writer, entries []ActivityView) error
	FormatReport(w io.Writer, report ReportView) error
}

// New creates the formatter for options.Format.
func New(options Options) Formatter {
	switch options.Format {
	case FormatJSON:
		return &encodingFormatter{encode: encodeJSON}
	case FormatYAML:
		return &encodingFormatter{encode: encodeYAML}
	default:
		return NewTableFormatter(options)
	}
}

// LinkView is the serializable shape of one link.
type LinkView struct {
	ID             string   `json:"id" yaml:"id"`
	Name           string   `json:"name" yaml:"name"`
	Target         string   `json:"target" yaml:"target"`
	Sources        []string `json:"sources" yaml:"sources"`
	RescanInterval string   `json:"rescanInterval" yaml:"rescanInterval"`
	Active         bool     `json:"active" yaml:"active"`
	State          string   `json:"state" yaml:"state"`
	Message        string   `json:"message,omitempty" yaml:"message,omitempty"`
	LastReconcile  string   `json:"lastReconcile,omitempty" yaml:"lastReconcile,omitempty"`
}

// NewLinkViews converts registry info into views, keeping order.
func NewLinkViews(infos []registry.LinkInfo) []LinkView {
	views := make([]LinkView, 0, len(infos))
	for _, info := range infos {
		v := LinkView{
			ID:             info.Config.ID,
			Name:           info.Config.DisplayName(),
			Target:         info.Config.Target,
			Sources:        append([]string(nil), info.Config.Sources...),
			RescanInterval: info.Config.RescanInterval.String(),
			Active:         info.Config.Active,
			State:          string(info.Status.State),
			Message:        info.Status.Message,
		}
		if !info.Status.LastReconcile.IsZero() {
			v.LastReconcile = info.Status.LastReconcile.Format(time.RFC3339)
		}
		views = append(views, v)
	}
	return views
}

// ActivityView is the serializable shape of one activity entry.
type ActivityView struct {
	Time    time.Time `json:"time" yaml:"time"`
	Link    string    `json:"link" yaml:"link"`
	Kind    string    `json:"kind" yaml:"kind"`
	Path    string    `json:"path,omitempty" yaml:"path,omitempty"`
	Outcome string    `json:"outcome" yaml:"outcome"`
}

// NewActivityViews labels entries with the link's display name.
func NewActivityViews(link string, entries []api.ActivityEntry) []ActivityView {
	views := make([]ActivityView, 0, len(entries))
	for _, e := range entries {
		views = append(views, ActivityView{
			Time:    e.Time,
			Link:    link,
			Kind:    string(e.Kind),
			Path:    e.Path,
			Outcome: e.Outcome,
		})
	}
	return views
}

// EntryView is one mirrored name in a report.
type EntryView struct {
	Name   string `json:"name" yaml:"name"`
	Status string `json:"status" yaml:"status"`
	Source string `json:"source" yaml:"source"`
	Dir    bool   `json:"dir" yaml:"dir"`
}

// ReportView is the serializable shape of one reconcile pass.
type ReportView struct {
	Link       string      `json:"link" yaml:"link"`
	Added      int         `json:"added" yaml:"added"`
	Removed    int         `json:"removed" yaml:"removed"`
	Repaired   int         `json:"repaired" yaml:"repaired"`
	Conflicted int         `json:"conflicted" yaml:"conflicted"`
	Failed     int         `json:"failed" yaml:"failed"`
	Duration   string      `json:"duration" yaml:"duration"`
	Entries    []EntryView `json:"entries" yaml:"entries"`
}

// NewReportView flattens a report; entries are sorted by name.
func NewReportView(link string, r reconciler.Report) ReportView {
	v := ReportView{
		Link:       link,
		Added:      r.Added,
		Removed:    r.Removed,
		Repaired:   r.Repaired,
		Conflicted: r.Conflicted,
		Failed:     r.Failed,
		Duration:   r.Duration.Round(time.Millisecond).String(),
		Entries:    []EntryView{},
	}
	if r.State == nil {
		return v
	}
	for _, e := range r.State.Sorted() {
		v.Entries = append(v.Entries, EntryView{
			Name:   e.Name,
			Status: string(e.Status),
			Source: e.SourcePath,
			Dir:    e.IsDir,
		})
	}
	return v
}
