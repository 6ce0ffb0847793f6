package formatting

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"symsync/internal/api"
	pkgstrings "symsync/pkg/strings"
)

// TableFormatter provides rich table output formatting
type TableFormatter struct {
	options Options
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(options Options) *TableFormatter {
	return &TableFormatter{
		options: options,
	}
}

// FormatLinks renders one row per link.
func (f *TableFormatter) FormatLinks(w io.Writer, links []LinkView) error {
	if len(links) == 0 {
		_, err := io.WriteString(w, f.formatEmptyMessage("📋", "No links configured"))
		return err
	}

	t := f.createTable(w)
	t.AppendHeader(f.header("ID", "NAME", "TARGET", "SOURCES", "INTERVAL", "ACTIVE", "STATE"))
	for _, l := range links {
		sources := make([]string, 0, len(l.Sources))
		for _, s := range l.Sources {
			sources = append(sources, pkgstrings.TruncatePath(s, pkgstrings.DefaultPathMaxLen))
		}
		active := "no"
		if l.Active {
			active = "yes"
		}
		t.AppendRow(table.Row{
			shortID(l.ID),
			l.Name,
			pkgstrings.TruncatePath(l.Target, pkgstrings.DefaultPathMaxLen),
			strings.Join(sources, "\n"),
			l.RescanInterval,
			active,
			f.colorize(stateColor(l.State), l.State),
		})
	}
	t.Render()

	if !f.options.Quiet {
		f.formatTotal(w, len(links), "links")
	}
	return nil
}

// FormatActivity renders entries oldest first.
func (f *TableFormatter) FormatActivity(w io.Writer, entries []ActivityView) error {
	if len(entries) == 0 {
		_, err := io.WriteString(w, f.formatEmptyMessage("📋", "No activity recorded"))
		return err
	}

	t := f.createTable(w)
	t.AppendHeader(f.header("TIME", "LINK", "KIND", "PATH", "OUTCOME"))
	for _, e := range entries {
		t.AppendRow(table.Row{
			e.Time.Local().Format("2006-01-02 15:04:05"),
			e.Link,
			f.colorize(kindColor(e.Kind), e.Kind),
			pkgstrings.TruncatePath(e.Path, pkgstrings.DefaultPathMaxLen),
			pkgstrings.TruncateLine(e.Outcome, pkgstrings.DefaultOutcomeMaxLen),
		})
	}
	t.Render()
	return nil
}

// FormatReport prints the pass summary and, unless quiet, the mirror table.
func (f *TableFormatter) FormatReport(w io.Writer, r ReportView) error {
	fmt.Fprintf(w, "%s %s: %s %d, %s %d, %s %d, %s %d, %s %d (%s)\n",
		f.colorize(text.Colors{text.FgHiGreen}, "✓"),
		r.Link,
		"added", r.Added,
		"removed", r.Removed,
		"repaired", r.Repaired,
		f.colorize(text.Colors{text.FgYellow}, "conflicted"), r.Conflicted,
		f.colorize(text.Colors{text.FgRed}, "failed"), r.Failed,
		r.Duration)

	if f.options.Quiet || len(r.Entries) == 0 {
		return nil
	}

	t := f.createTable(w)
	t.AppendHeader(f.header("NAME", "TYPE", "STATUS", "SOURCE"))
	for _, e := range r.Entries {
		kind := "file"
		if e.Dir {
			kind = "dir"
		}
		t.AppendRow(table.Row{
			e.Name,
			kind,
			f.colorize(statusColor(e.Status), e.Status),
			pkgstrings.TruncatePath(e.Source, pkgstrings.DefaultPathMaxLen),
		})
	}
	t.Render()
	return nil
}

// Helper methods

// createTable creates a new table with standard styling
func (f *TableFormatter) createTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	// Headers are upper-case already and may carry colour codes.
	t.Style().Format.Header = text.FormatDefault
	return t
}

func (f *TableFormatter) header(names ...string) table.Row {
	row := make(table.Row, 0, len(names))
	for _, n := range names {
		row = append(row, f.colorize(text.Colors{text.FgHiCyan}, n))
	}
	return row
}

// formatEmptyMessage formats empty result messages
func (f *TableFormatter) formatEmptyMessage(icon, message string) string {
	yellow := text.Colors{text.FgYellow}
	return fmt.Sprintf("%s %s\n", f.colorize(yellow, icon), f.colorize(yellow, message))
}

func (f *TableFormatter) formatTotal(w io.Writer, n int, noun string) {
	fmt.Fprintf(w, "\n%s %s %s\n",
		f.colorize(text.Colors{text.FgHiBlue}, "Total:"),
		f.colorize(text.Colors{text.FgHiWhite}, fmt.Sprint(n)),
		f.colorize(text.Colors{text.FgHiBlue}, noun))
}

func (f *TableFormatter) colorize(c text.Colors, s string) string {
	if !f.options.Color || len(c) == 0 {
		return s
	}
	return c.Sprint(s)
}

func stateColor(state string) text.Colors {
	switch api.LinkState(state) {
	case api.StateWatching:
		return text.Colors{text.FgGreen}
	case api.StateStarting:
		return text.Colors{text.FgYellow}
	case api.StateError:
		return text.Colors{text.FgRed, text.Bold}
	default:
		return text.Colors{text.FgHiBlack}
	}
}

func statusColor(status string) text.Colors {
	switch api.EntryStatus(status) {
	case api.EntryLinked:
		return text.Colors{text.FgGreen}
	case api.EntryMissing:
		return text.Colors{text.FgYellow}
	case api.EntryConflicted, api.EntryBroken:
		return text.Colors{text.FgRed}
	}
	return nil
}

func kindColor(kind string) text.Colors {
	switch api.ActivityKind(kind) {
	case api.ActivityAdded, api.ActivityRepaired:
		return text.Colors{text.FgGreen}
	case api.ActivityConflicted, api.ActivityWarning:
		return text.Colors{text.FgYellow}
	case api.ActivityFailed:
		return text.Colors{text.FgRed}
	case api.ActivityState:
		return text.Colors{text.FgHiBlue}
	}
	return nil
}

// shortID keeps the first uuid group, enough for registry prefix lookup.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i >= 4 {
		return id[:i]
	}
	return id
}

// StatusLine renders a status update for the interactive console.
func StatusLine(u api.StatusUpdate, color bool) string {
	f := &TableFormatter{options: Options{Color: color}}
	return fmt.Sprintf("%s %s %s",
		u.Time.Local().Format("15:04:05"),
		u.Name,
		f.colorize(stateColor(string(u.State)), u.Message))
}

// ActivityLine renders an activity entry for the interactive console, e.g.
// "12:00:01 media Added /T/notes.txt linked file /A/notes.txt".
func ActivityLine(link string, e api.ActivityEntry, color bool) string {
	f := &TableFormatter{options: Options{Color: color}}
	line := fmt.Sprintf("%s %s %s %s",
		e.Time.Local().Format("15:04:05"),
		link,
		f.colorize(kindColor(string(e.Kind)), string(e.Kind)),
		e.Path)
	if e.Outcome != "" {
		line += " " + e.Outcome
	}
	return line
}
