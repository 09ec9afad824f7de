/**
 * Output writers for page records
 *
 * Per page N of input <base>:
 *   json  → <base>_page<N>.json   full record
 *   yaml  → <base>_page<N>.yaml   full record
 *   csv   → <base>_page<N>.csv    parsed fields as key,value rows
 *           <base>_page<N>_table<K>.csv for each table
 */

package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/adverant/nexus/bharatdoc-worker/internal/layout"
	"github.com/adverant/nexus/bharatdoc-worker/internal/processor"
)

// Supported formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatYAML = "yaml"
)

// Writer writes page records to a directory.
type Writer struct {
	Dir     string
	Formats []string
}

// NewWriter creates the output directory if needed.
func NewWriter(dir string, formats []string) (*Writer, error) {
	for _, f := range formats {
		if f != FormatJSON && f != FormatCSV && f != FormatYAML {
			return nil, fmt.Errorf("unknown output format %q", f)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir %s: %w", dir, err)
	}
	return &Writer{Dir: dir, Formats: formats}, nil
}

// BaseName strips directory and extension from an input path.
func BaseName(inputPath string) string {
	base := filepath.Base(inputPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// WritePages writes every page in every configured format and returns the
// paths written, in order.
func (w *Writer) WritePages(base string, pages []*processor.PageRecord) ([]string, error) {
	var written []string
	for _, page := range pages {
		prefix := filepath.Join(w.Dir, fmt.Sprintf("%s_page%d", base, page.PageNumber))

		for _, format := range w.Formats {
			switch format {
			case FormatJSON:
				path := prefix + ".json"
				if err := WriteJSON(path, page); err != nil {
					return written, err
				}
				written = append(written, path)
			case FormatYAML:
				path := prefix + ".yaml"
				if err := WriteYAML(path, page); err != nil {
					return written, err
				}
				written = append(written, path)
			case FormatCSV:
				path := prefix + ".csv"
				if err := WriteFieldsCSV(path, page.ParsedFields); err != nil {
					return written, err
				}
				written = append(written, path)

				tables, err := WriteTablesCSV(prefix+"_table", page.Tables)
				written = append(written, tables...)
				if err != nil {
					return written, err
				}
			}
		}
	}
	return written, nil
}

// WriteJSON writes v as two-space indented JSON. Non-ASCII text is kept as is.
func WriteJSON(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// WriteYAML writes v as YAML.
func WriteYAML(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// WriteFieldsCSV writes a key,value header followed by one row per field,
// sorted by key.
func WriteFieldsCSV(path string, fields map[string]string) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys)+1)
	rows = append(rows, []string{"key", "value"})
	for _, k := range keys {
		rows = append(rows, []string{k, fields[k]})
	}
	return writeCSV(path, rows)
}

// WriteTablesCSV writes table K (1-based) to <prefix><K>.csv.
func WriteTablesCSV(prefix string, tables []layout.Table) ([]string, error) {
	written := make([]string, 0, len(tables))
	for i, table := range tables {
		path := fmt.Sprintf("%s%d.csv", prefix, i+1)
		if err := writeCSV(path, table); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
