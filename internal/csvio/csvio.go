// Package csvio loads and saves the CSV tables passed between pipeline
// stages. Source extracts arrive with UTF-8 BOMs and far more columns
// than the pipeline needs, so reads strip the BOM and support column
// selection by header name.
package csvio

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/fsutil"
)

// Table is a CSV file held in memory: a header row plus data rows.
// Every row has exactly len(Header) fields.
type Table struct {
	Header []string
	Rows   [][]string
}

// Read loads a CSV file into a Table. A leading UTF-8 BOM is stripped
// (government statistical extracts are commonly saved as "utf-8-sig").
func Read(fs fsutil.FileSystem, path string) (*Table, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("file %s is empty", path)
	}

	t := &Table{Header: records[0]}
	for _, row := range records[1:] {
		if len(row) != len(t.Header) {
			return nil, fmt.Errorf("file %s: row has %d fields, header has %d", path, len(row), len(t.Header))
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Col returns the index of the named column. Matching is
// case-insensitive since header casing varies between extract vintages.
func (t *Table) Col(name string) (int, error) {
	for i, h := range t.Header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("column %q not found (have %v)", name, t.Header)
}

// Select returns a new Table containing only the named columns, in the
// order given. Missing columns are a schema mismatch and fatal.
func (t *Table) Select(cols ...string) (*Table, error) {
	idx := make([]int, len(cols))
	for i, c := range cols {
		j, err := t.Col(c)
		if err != nil {
			return nil, err
		}
		idx[i] = j
	}

	out := &Table{Header: append([]string(nil), cols...)}
	for _, row := range t.Rows {
		sel := make([]string, len(idx))
		for i, j := range idx {
			sel[i] = row[j]
		}
		out.Rows = append(out.Rows, sel)
	}
	return out, nil
}

// Write saves a Table as CSV, creating the output directory if needed.
// Files are fully rewritten each run; nothing is appended.
func Write(fs fsutil.FileSystem, path string, t *Table) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	if err := fs.WriteFile(path, buf.Bytes(), os.FileMode(0644)); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// FetchLatest returns the path of the newest file in dir matching
// pattern. Release files carry the year and version in the name, so the
// lexically last match is the latest release.
func FetchLatest(fs fsutil.FileSystem, dir, pattern string) (string, error) {
	matches, err := fs.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no files matching %q in %s", pattern, dir)
	}
	return matches[len(matches)-1], nil
}
