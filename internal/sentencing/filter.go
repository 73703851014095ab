package sentencing

import (
	"fmt"
	"sort"
)

// FilterSet is the typed include/exclude configuration applied after
// cleaning. Include keeps rows whose column value is in the allowed
// set; exclude drops rows whose value is in the forbidden set. All
// filters are conjunctive and commute, so column order is irrelevant.
type FilterSet struct {
	Include map[Column][]string
	Exclude map[Column][]string
}

// Validate rejects filters that reference unrecognised columns. Called
// at configuration load so misconfiguration cannot surface mid-run as a
// silently empty table.
func (f FilterSet) Validate() error {
	for _, m := range []map[Column][]string{f.Include, f.Exclude} {
		cols := make([]string, 0, len(m))
		for c := range m {
			cols = append(cols, string(c))
		}
		sort.Strings(cols)
		for _, c := range cols {
			if !validColumns[Column(c)] {
				return fmt.Errorf("filter references unknown column %q", c)
			}
		}
	}
	return nil
}

// Apply returns the records passing every configured filter.
func (f FilterSet) Apply(recs []Record) ([]Record, error) {
	var out []Record
	for _, r := range recs {
		keep, err := f.match(r)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f FilterSet) match(r Record) (bool, error) {
	for col, allowed := range f.Include {
		v, err := r.field(col)
		if err != nil {
			return false, err
		}
		if !contains(allowed, v) {
			return false, nil
		}
	}
	for col, forbidden := range f.Exclude {
		v, err := r.field(col)
		if err != nil {
			return false, err
		}
		if contains(forbidden, v) {
			return false, nil
		}
	}
	return true, nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
