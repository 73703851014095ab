package tables

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/aggregate"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/sentencing"
)

// Category selects which sentence lengths contribute to a custody
// table.
type Category string

const (
	CategoryAll          Category = "all"
	CategorySixMonths    Category = "6 months"
	CategoryTwelveMonths Category = "12 months"
)

// Categories lists the published table categories in output order.
var Categories = []Category{CategoryAll, CategorySixMonths, CategoryTwelveMonths}

const indexPFA = "pfa"

// changeColumn names the period-over-period change column appended by
// AppendPercentChange.
const changeColumn = "% change"

// Buckets returns the sentence-length buckets the category covers: all
// custodial sentences, sentences under 6 months, or sentences under 12
// months. An unrecognized category is a configuration error and fails.
func (c Category) Buckets() ([]string, error) {
	switch c {
	case CategoryAll:
		return sentencing.BucketOrder, nil
	case CategorySixMonths:
		return []string{sentencing.BucketUnder6Months}, nil
	case CategoryTwelveMonths:
		return []string{sentencing.BucketUnder6Months, sentencing.Bucket6ToUnder12}, nil
	}
	return nil, fmt.Errorf("unknown table category %q", string(c))
}

// Slug returns the filename-safe form of the category used in output
// file templates.
func (c Category) Slug() (string, error) {
	switch c {
	case CategoryAll:
		return "all", nil
	case CategorySixMonths:
		return "six_months", nil
	case CategoryTwelveMonths:
		return "12_months", nil
	}
	return "", fmt.Errorf("unknown table category %q", string(c))
}

// SelectCategory reduces per-bucket custody counts to one row per
// PFA-year covering only the category's buckets.
func SelectCategory(rows []aggregate.PFAYearCount, c Category) ([]aggregate.PFAYearCount, error) {
	buckets, err := c.Buckets()
	if err != nil {
		return nil, err
	}
	totals := make(map[string]*aggregate.PFAYearCount)
	var order []string
	for _, r := range rows {
		if !containsString(buckets, r.Key) {
			continue
		}
		k := fmt.Sprintf("%s\x00%d", r.PFA, r.Year)
		if t, ok := totals[k]; ok {
			t.Total += r.Total
			continue
		}
		totals[k] = &aggregate.PFAYearCount{PFA: r.PFA, Year: r.Year, Total: r.Total}
		order = append(order, k)
	}
	sort.Strings(order)
	out := make([]aggregate.PFAYearCount, 0, len(order))
	for _, k := range order {
		out = append(out, *totals[k])
	}
	return out, nil
}

// Crosstab pivots PFA-year counts into a Matrix with one row per PFA
// and one column per year.
func Crosstab(rows []aggregate.PFAYearCount) *Matrix {
	m := NewMatrix(indexPFA)
	for _, r := range rows {
		m.Set(r.PFA, strconv.Itoa(r.Year), float64(r.Total))
	}
	m.SortColumns()
	m.SortRows(func(a, b string) bool { return a < b })
	return m
}

// AppendPercentChange adds a change column comparing the last year
// column against the first: (last-first)/first x 100, rounded to one
// decimal place. The cell is left missing when either endpoint is
// missing or the first value is zero, so a series starting at zero
// never produces an infinite change.
func (m *Matrix) AppendPercentChange() {
	if len(m.Columns) < 2 {
		return
	}
	first, last := m.Columns[0], m.Columns[len(m.Columns)-1]
	m.Columns = append(m.Columns, changeColumn)
	for _, row := range m.RowLabels {
		a, b := m.Get(row, first), m.Get(row, last)
		if a == nil || b == nil || *a == 0 {
			continue
		}
		m.cells[row][changeColumn] = roundPtr((*b-*a)/(*a)*100, 1)
	}
}

// OffenceProportions pivots latest-year custody counts by offence into
// row-normalized proportions rounded to three decimal places. A PFA
// with no custodial sentences in the year has every cell missing.
func OffenceProportions(rows []aggregate.PFAYearCount) *Matrix {
	totals := make(map[string]float64)
	for _, r := range rows {
		totals[r.PFA] += float64(r.Total)
	}
	m := NewMatrix(indexPFA)
	for _, r := range rows {
		if totals[r.PFA] <= 0 {
			continue
		}
		m.Set(r.PFA, r.Key, round(float64(r.Total)/totals[r.PFA], 3))
	}
	m.SortColumns()
	m.SortRows(func(a, b string) bool { return a < b })
	return m
}

// RateTable pivots imprisonment rates into a PFA-by-year Matrix sorted
// ascending by the latest year's rate, with PFAs missing a latest rate
// last. Missing rates stay missing in the output.
func RateTable(rates []aggregate.RateRow) *Matrix {
	m := NewMatrix(indexPFA)
	for _, r := range rates {
		if r.RatePer100k == nil {
			// Register the row so the PFA appears even when
			// every rate is missing.
			if _, ok := m.cells[r.PFA]; !ok {
				m.cells[r.PFA] = make(map[string]*float64)
				m.RowLabels = append(m.RowLabels, r.PFA)
			}
			if !containsString(m.Columns, strconv.Itoa(r.Year)) {
				m.Columns = append(m.Columns, strconv.Itoa(r.Year))
			}
			continue
		}
		m.Set(r.PFA, strconv.Itoa(r.Year), *r.RatePer100k)
	}
	m.SortColumns()
	if len(m.Columns) == 0 {
		return m
	}
	latest := m.Columns[len(m.Columns)-1]
	m.SortRows(func(a, b string) bool {
		va, vb := m.Get(a, latest), m.Get(b, latest)
		switch {
		case va == nil && vb == nil:
			return a < b
		case va == nil:
			return false
		case vb == nil:
			return true
		case *va != *vb:
			return *va < *vb
		}
		return a < b
	})
	return m
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

func roundPtr(v float64, places int) *float64 {
	r := round(v, places)
	return &r
}
