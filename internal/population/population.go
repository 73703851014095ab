// Package population cleans ONS mid-year population estimates into one
// adult-women population figure per local authority per year.
package population

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/csvio"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/fsutil"
)

// Record is one raw estimate row: the population of a single-year age
// band for one sex in one local authority.
type Record struct {
	LACode     string
	LAName     string
	Year       int
	Sex        string
	Age        int
	Population int
}

// LAYearTotal is the cleaned output: total adult-women population for
// one local authority in one year.
type LAYearTotal struct {
	LACode     string
	LAName     string
	Year       int
	Population int
}

// minAdultAge is the age threshold for the adult population figure.
const minAdultAge = 18

// Load reads an ONS v4 observation file. Rows whose age is not numeric
// (banded totals) are skipped; "90+" is treated as 90, matching the
// open-ended top band of the estimates.
func Load(fs fsutil.FileSystem, path string) ([]Record, error) {
	table, err := csvio.Read(fs, path)
	if err != nil {
		return nil, fmt.Errorf("population estimates: %w", err)
	}

	cols := map[string]int{}
	for name, alias := range map[string]string{
		"v4_0":                     "population",
		"calendar-years":           "year",
		"administrative-geography": "la_code",
		"geography":                "la_name",
		"sex":                      "sex",
		"age":                      "age",
	} {
		i, err := table.Col(name)
		if err != nil {
			return nil, fmt.Errorf("population estimates %s: %w", path, err)
		}
		cols[alias] = i
	}

	var recs []Record
	for i, row := range table.Rows {
		age, ok := parseAge(row[cols["age"]])
		if !ok {
			continue
		}

		year, err := strconv.Atoi(strings.TrimSpace(row[cols["year"]]))
		if err != nil {
			return nil, fmt.Errorf("population estimates %s row %d: bad year %q", path, i+2, row[cols["year"]])
		}
		pop, err := strconv.Atoi(strings.TrimSpace(row[cols["population"]]))
		if err != nil {
			return nil, fmt.Errorf("population estimates %s row %d: bad population %q", path, i+2, row[cols["population"]])
		}
		if pop < 0 {
			return nil, fmt.Errorf("population estimates %s row %d: negative population %d", path, i+2, pop)
		}

		recs = append(recs, Record{
			LACode:     strings.TrimSpace(row[cols["la_code"]]),
			LAName:     strings.TrimSpace(row[cols["la_name"]]),
			Year:       year,
			Sex:        strings.TrimSpace(row[cols["sex"]]),
			Age:        age,
			Population: pop,
		})
	}
	return recs, nil
}

func parseAge(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "90+" {
		return 90, true
	}
	age, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return age, true
}

// Clean restricts raw estimates to the adult-women slice and sums ages
// into one figure per LA per year. National and regional aggregate rows
// (rendered in upper case in the source) are dropped first, since they
// duplicate the LA-level figures.
func Clean(recs []Record) []LAYearTotal {
	dropped := aggregateCodes(recs)
	if len(dropped) > 0 {
		log.Printf("population clean: dropping %d aggregate geography codes", len(dropped))
	}

	type key struct {
		laCode, laName string
		year           int
	}
	totals := make(map[key]int)
	for _, r := range recs {
		if dropped[r.LACode] {
			continue
		}
		if r.Sex != "Female" || r.Age < minAdultAge {
			continue
		}
		totals[key{r.LACode, r.LAName, r.Year}] += r.Population
	}

	out := make([]LAYearTotal, 0, len(totals))
	for k, pop := range totals {
		out = append(out, LAYearTotal{LACode: k.laCode, LAName: k.laName, Year: k.year, Population: pop})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LACode != out[j].LACode {
			return out[i].LACode < out[j].LACode
		}
		return out[i].Year < out[j].Year
	})
	return out
}

// aggregateCodes finds the geography codes of national/regional rows,
// identified by all-uppercase names in the source.
func aggregateCodes(recs []Record) map[string]bool {
	codes := make(map[string]bool)
	for _, r := range recs {
		if r.LAName != "" && r.LAName == strings.ToUpper(r.LAName) && r.LAName != strings.ToLower(r.LAName) {
			codes[r.LACode] = true
		}
	}
	return codes
}

// YearRange returns the min and max year of the cleaned totals. Source
// files cover inconsistent year ranges between releases, so joins
// against other vintages must restrict to the overlap.
func YearRange(totals []LAYearTotal) (min, max int, err error) {
	if len(totals) == 0 {
		return 0, 0, fmt.Errorf("no population rows to take year range from")
	}
	min, max = totals[0].Year, totals[0].Year
	for _, t := range totals[1:] {
		if t.Year < min {
			min = t.Year
		}
		if t.Year > max {
			max = t.Year
		}
	}
	return min, max, nil
}
