// Package tables pivots grouped series into the publication-ready
// cross-tabulated tables: PFA-by-year custody counts per sentence-length
// category with period-over-period change, offence proportions for the
// latest year, and the imprisonment-rate table.
package tables

import (
	"sort"
	"strconv"

	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/csvio"
)

// Matrix is a pivoted table: one row per label (PFA), one column per
// year or category. Cells are nullable; a nil cell serializes as an
// empty CSV field, keeping missing values distinct from zero.
type Matrix struct {
	IndexName string
	Columns   []string
	RowLabels []string

	cells map[string]map[string]*float64
}

// NewMatrix creates an empty Matrix whose leading CSV column is named
// indexName.
func NewMatrix(indexName string) *Matrix {
	return &Matrix{IndexName: indexName, cells: make(map[string]map[string]*float64)}
}

// Set stores a value, registering the row and column on first use.
func (m *Matrix) Set(row, col string, v float64) {
	if _, ok := m.cells[row]; !ok {
		m.cells[row] = make(map[string]*float64)
		m.RowLabels = append(m.RowLabels, row)
	}
	if !containsString(m.Columns, col) {
		m.Columns = append(m.Columns, col)
	}
	m.cells[row][col] = &v
}

// Get returns the cell value, or nil if the cell is missing.
func (m *Matrix) Get(row, col string) *float64 {
	if r, ok := m.cells[row]; ok {
		return r[col]
	}
	return nil
}

// SortRows orders the rows with a comparison function.
func (m *Matrix) SortRows(less func(a, b string) bool) {
	sort.SliceStable(m.RowLabels, func(i, j int) bool { return less(m.RowLabels[i], m.RowLabels[j]) })
}

// SortColumns orders the columns lexically, which for zero-padded year
// labels is chronological order.
func (m *Matrix) SortColumns() {
	sort.Strings(m.Columns)
}

// Table flattens the Matrix to a CSV table. Whole numbers are written
// without a decimal point; missing cells are empty fields.
func (m *Matrix) Table() *csvio.Table {
	t := &csvio.Table{Header: append([]string{m.IndexName}, m.Columns...)}
	for _, row := range m.RowLabels {
		fields := make([]string, 0, len(m.Columns)+1)
		fields = append(fields, row)
		for _, col := range m.Columns {
			fields = append(fields, formatCell(m.Get(row, col)))
		}
		t.Rows = append(t.Rows, fields)
	}
	return t
}

func formatCell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
