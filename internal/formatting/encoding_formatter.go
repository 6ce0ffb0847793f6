package formatting

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

// encodingFormatter emits views as JSON or YAML documents for scripting.
type encodingFormatter struct {
	encode func(w io.Writer, v interface{}) error
}

func (f *encodingFormatter) FormatLinks(w io.Writer, links []LinkView) error {
	if links == nil {
		links = []LinkView{}
	}
	return f.encode(w, links)
}

func (f *encodingFormatter) FormatActivity(w io.Writer, entries []ActivityView) error {
	if entries == nil {
		entries = []ActivityView{}
	}
	return f.encode(w, entries)
}

func (f *encodingFormatter) FormatReport(w io.Writer, report ReportView) error {
	return f.encode(w, report)
}

func encodeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func encodeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
