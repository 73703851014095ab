package aggregate

import (
	"log"
	"math"
	"sort"

	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/geography"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/population"
)

// PFAYearPopulation is the adult-women population of a PFA in one year.
type PFAYearPopulation struct {
	PFA        string
	Year       int
	Population int
}

// UnmatchedCode is an LA code that could not be joined to a PFA. These
// go to the audit side-channel; their rows are excluded from the joined
// aggregates but never silently lost.
type UnmatchedCode struct {
	Code   string
	Name   string
	Detail string
}

// PopulationByPFA joins LA-year population totals to PFAs through the
// reconciler and sums to (PFA, year). Codes the reconciler cannot match
// are returned separately for the audit trail.
func PopulationByPFA(totals []population.LAYearTotal, rec *geography.Reconciler) ([]PFAYearPopulation, []UnmatchedCode) {
	type key struct {
		pfa  string
		year int
	}
	sums := make(map[key]int)
	seen := make(map[string]bool)
	var unmatched []UnmatchedCode

	for _, t := range totals {
		res := rec.Lookup(t.LACode)
		switch res.Kind {
		case geography.Matched:
			sums[key{res.PFAName, t.Year}] += t.Population
		default:
			if !seen[t.LACode] {
				seen[t.LACode] = true
				unmatched = append(unmatched, UnmatchedCode{
					Code:   t.LACode,
					Name:   t.LAName,
					Detail: res.Kind.String(),
				})
			}
		}
	}

	out := make([]PFAYearPopulation, 0, len(sums))
	for k, pop := range sums {
		out = append(out, PFAYearPopulation{PFA: k.pfa, Year: k.year, Population: pop})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PFA != out[j].PFA {
			return out[i].PFA < out[j].PFA
		}
		return out[i].Year < out[j].Year
	})

	if len(unmatched) > 0 {
		log.Printf("population join: %d LA codes unmatched against vintage %s",
			len(unmatched), rec.Target().Vintage)
	}
	return out, unmatched
}

// RateRow is one cell of the imprisonment-rate table. RatePer100k is
// nil when the rate is undefined: zero or missing population, or no
// custody figure for the (PFA, year). A nil rate is serialized as an
// empty field, never as zero.
type RateRow struct {
	PFA          string
	Year         int
	CustodyCount int
	Population   int
	RatePer100k  *float64
}

// ratePer100kUnit is the standard population unit for reported rates.
const ratePer100kUnit = 100000

// Rates combines custody totals and PFA population into the
// imprisonment-rate series. The output covers the union of (PFA, year)
// cells present on either side, so a missing population or custody
// figure surfaces as a row with a missing rate rather than a dropped
// row.
func Rates(custody []PFAYearCount, pop []PFAYearPopulation) []RateRow {
	type key struct {
		pfa  string
		year int
	}

	custodyBy := make(map[key]int)
	for _, c := range custody {
		custodyBy[key{c.PFA, c.Year}] += c.Total
	}
	popBy := make(map[key]int)
	for _, p := range pop {
		popBy[key{p.PFA, p.Year}] = p.Population
	}

	cells := make(map[key]bool)
	for k := range custodyBy {
		cells[k] = true
	}
	for k := range popBy {
		cells[k] = true
	}

	rows := make([]RateRow, 0, len(cells))
	for k := range cells {
		row := RateRow{PFA: k.pfa, Year: k.year}
		count, haveCustody := custodyBy[k]
		row.CustodyCount = count
		row.Population = popBy[k]

		if haveCustody && row.Population > 0 {
			rate := round1(float64(count) / float64(row.Population) * ratePer100kUnit)
			row.RatePer100k = &rate
		} else {
			log.Printf("rate undefined for %s %d (custody present: %v, population: %d)",
				k.pfa, k.year, haveCustody, row.Population)
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].PFA != rows[j].PFA {
			return rows[i].PFA < rows[j].PFA
		}
		return rows[i].Year < rows[j].Year
	})
	return rows
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
