package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Writer streams commit views
type Writer interface {
	Write(v *CommitView) error
	// Close flushes buffered output
	Close() error
}

// NewWriter returns the writer for format: jsonl, yaml or table
func NewWriter(format string, w io.Writer) (Writer, error) {
	switch format {
	case "jsonl":
		return &jsonlWriter{enc: json.NewEncoder(w)}, nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		return &yamlWriter{enc: enc}, nil
	case "table":
		return newTableWriter(w), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// jsonlWriter writes one JSON object per line
type jsonlWriter struct {
	enc *json.Encoder
}

func (w *jsonlWriter) Write(v *CommitView) error { return w.enc.Encode(v) }

func (w *jsonlWriter) Close() error { return nil }

// yamlWriter writes one YAML document per commit
type yamlWriter struct {
	enc *yaml.Encoder
}

func (w *yamlWriter) Write(v *CommitView) error { return w.enc.Encode(v) }

func (w *yamlWriter) Close() error { return w.enc.Close() }

// tableWriter prints one fixed-width row per commit so rows line up while
// the walk is still streaming
type tableWriter struct {
	w             io.Writer
	headerWritten bool
}

const tableRow = "%-7s  %-10s  %-15s  %5s  %-13s  %-8s  %-8s  %-8s  %s\n"

func newTableWriter(w io.Writer) *tableWriter {
	return &tableWriter{w: w}
}

func (w *tableWriter) Write(v *CommitView) error {
	if !w.headerWritten {
		w.headerWritten = true
		if _, err := fmt.Fprintf(w.w, tableRow,
			"COMMIT", "DATE", "AUTHOR", "FILES", "LINES", "DMM SIZE", "DMM CPLX", "DMM INTF", "MESSAGE"); err != nil {
			return err
		}
	}

	shortSHA := v.Hash
	if len(shortSHA) > 7 {
		shortSHA = shortSHA[:7]
	}
	author := truncate(v.Author.Name, 15)
	subject := truncate(strings.SplitN(v.Msg, "\n", 2)[0], 60)

	_, err := fmt.Fprintf(w.w, tableRow,
		shortSHA,
		v.AuthorDate.Format("2006-01-02"),
		author,
		fmt.Sprint(v.Files),
		fmt.Sprintf("+%d -%d", v.Insertions, v.Deletions),
		score(v.DMMUnitSize),
		score(v.DMMUnitComplexity),
		score(v.DMMUnitInterfacing),
		subject)
	return err
}

func (w *tableWriter) Close() error { return nil }

// truncate shortens s to max runes, ending in "..." when cut
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func score(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
