// Package aggregate groups normalised sentencing records and population
// totals to Police Force Area granularity and combines them into the
// imprisonment-rate series. Every grouping is checked for count
// conservation: a grouped table whose total differs from its input total
// halts the run rather than feeding corrupt figures downstream.
package aggregate

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/sentencing"
)

// ErrCountConservation marks a grouped table whose total drifted from
// its input total. Callers treat it as fatal.
var ErrCountConservation = errors.New("count conservation violated")

// PFAYearCount is one cell of a grouped sentencing table. Key is the
// grouping value: an outcome, a sentence-length bucket, or an offence
// group depending on the table.
type PFAYearCount struct {
	PFA   string
	Year  int
	Key   string
	Total int
}

type groupKey struct {
	pfa  string
	year int
	key  string
}

func group(recs []sentencing.Record, keyFn func(sentencing.Record) string) []PFAYearCount {
	totals := make(map[groupKey]int)
	for _, r := range recs {
		totals[groupKey{r.PFA, r.Year, keyFn(r)}] += r.Count
	}

	out := make([]PFAYearCount, 0, len(totals))
	for k, total := range totals {
		out = append(out, PFAYearCount{PFA: k.pfa, Year: k.year, Key: k.key, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.PFA != b.PFA {
			return a.PFA < b.PFA
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Key < b.Key
	})
	return out
}

func sumTotals(rows []PFAYearCount) int {
	total := 0
	for _, r := range rows {
		total += r.Total
	}
	return total
}

func checkConservation(stage string, in, out int) error {
	if in != out {
		return fmt.Errorf("%s: grouped total %d does not match input total %d: %w", stage, out, in, ErrCountConservation)
	}
	return nil
}

// ByOutcome groups records by (PFA, year, outcome).
func ByOutcome(recs []sentencing.Record) ([]PFAYearCount, error) {
	rows := group(recs, func(r sentencing.Record) string { return r.Outcome })
	if err := checkConservation("group by outcome", sentencing.TotalCount(recs), sumTotals(rows)); err != nil {
		return nil, err
	}
	return rows, nil
}

func custodyOnly(recs []sentencing.Record) []sentencing.Record {
	var out []sentencing.Record
	for _, r := range recs {
		if r.Outcome == sentencing.OutcomeImmediateCustody {
			out = append(out, r)
		}
	}
	return out
}

// ByLengthBucket groups immediate-custody records by (PFA, year,
// simplified sentence-length bucket).
func ByLengthBucket(recs []sentencing.Record) ([]PFAYearCount, error) {
	custody := custodyOnly(recs)
	rows := group(custody, func(r sentencing.Record) string {
		return sentencing.LengthBucket(r.SentenceLen)
	})
	if err := checkConservation("group by sentence length", sentencing.TotalCount(custody), sumTotals(rows)); err != nil {
		return nil, err
	}
	return rows, nil
}

// CustodyTotals groups immediate-custody records by (PFA, year), the
// series behind the "all custodial sentences" table and the rate
// calculation.
func CustodyTotals(recs []sentencing.Record) ([]PFAYearCount, error) {
	custody := custodyOnly(recs)
	rows := group(custody, func(sentencing.Record) string { return sentencing.OutcomeImmediateCustody })
	if err := checkConservation("custody totals", sentencing.TotalCount(custody), sumTotals(rows)); err != nil {
		return nil, err
	}
	return rows, nil
}

// ByOffenceLatestYear groups immediate-custody records in the single
// latest year by (PFA, offence group). The year used is returned.
func ByOffenceLatestYear(recs []sentencing.Record) ([]PFAYearCount, int, error) {
	custody := custodyOnly(recs)
	if len(custody) == 0 {
		return nil, 0, fmt.Errorf("no immediate custody records to group by offence")
	}

	latest := custody[0].Year
	for _, r := range custody {
		if r.Year > latest {
			latest = r.Year
		}
	}

	var latestRecs []sentencing.Record
	for _, r := range custody {
		if r.Year == latest {
			latestRecs = append(latestRecs, r)
		}
	}

	rows := group(latestRecs, func(r sentencing.Record) string { return r.Offence })
	if err := checkConservation("group by offence", sentencing.TotalCount(latestRecs), sumTotals(rows)); err != nil {
		return nil, 0, err
	}
	return rows, latest, nil
}

// FilterYears keeps rows with year >= from. The published tables start
// part-way through the series.
func FilterYears(rows []PFAYearCount, from int) []PFAYearCount {
	var out []PFAYearCount
	for _, r := range rows {
		if r.Year >= from {
			out = append(out, r)
		}
	}
	return out
}
