package pipeline

import (
	"strconv"
	"strings"

	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/aggregate"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/csvio"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/population"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/sentencing"
)

// expandTemplate fills {name} placeholders in an output filename
// template. Unknown placeholders are left intact so a typo shows up in
// the filename instead of vanishing.
func expandTemplate(template string, vars map[string]string) string {
	for name, value := range vars {
		template = strings.ReplaceAll(template, "{"+name+"}", value)
	}
	return template
}

func recordsTable(recs []sentencing.Record) *csvio.Table {
	t := &csvio.Table{
		Header: []string{"year", "pfa", "sex", "age_group", "offence", "outcome", "sentence_len", "count"},
	}
	for _, r := range recs {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(r.Year), r.PFA, r.Sex, r.AgeGroup,
			r.Offence, r.Outcome, r.SentenceLen, strconv.Itoa(r.Count),
		})
	}
	return t
}

func countsTable(rows []aggregate.PFAYearCount, keyHeader string) *csvio.Table {
	t := &csvio.Table{Header: []string{"pfa", "year", keyHeader, "count"}}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{r.PFA, strconv.Itoa(r.Year), r.Key, strconv.Itoa(r.Total)})
	}
	return t
}

func laTotalsTable(totals []population.LAYearTotal) *csvio.Table {
	t := &csvio.Table{Header: []string{"la_code", "la_name", "year", "population"}}
	for _, lt := range totals {
		t.Rows = append(t.Rows, []string{lt.LACode, lt.LAName, strconv.Itoa(lt.Year), strconv.Itoa(lt.Population)})
	}
	return t
}

func ratesLongTable(rates []aggregate.RateRow) *csvio.Table {
	t := &csvio.Table{Header: []string{"pfa", "year", "custody_count", "population", "rate_per_100k"}}
	for _, r := range rates {
		rate := ""
		if r.RatePer100k != nil {
			rate = strconv.FormatFloat(*r.RatePer100k, 'f', -1, 64)
		}
		t.Rows = append(t.Rows, []string{
			r.PFA, strconv.Itoa(r.Year), strconv.Itoa(r.CustodyCount),
			strconv.Itoa(r.Population), rate,
		})
	}
	return t
}

func populationTable(pop []aggregate.PFAYearPopulation) *csvio.Table {
	t := &csvio.Table{Header: []string{"pfa", "year", "population"}}
	for _, p := range pop {
		t.Rows = append(t.Rows, []string{p.PFA, strconv.Itoa(p.Year), strconv.Itoa(p.Population)})
	}
	return t
}

// populationForYears restricts the population series to the years the
// custody series covers, so the rate table's columns line up with the
// published custody years.
func populationForYears(pop []aggregate.PFAYearPopulation, custody []aggregate.PFAYearCount) []aggregate.PFAYearPopulation {
	years := make(map[int]bool)
	for _, c := range custody {
		years[c.Year] = true
	}
	out := make([]aggregate.PFAYearPopulation, 0, len(pop))
	for _, p := range pop {
		if years[p.Year] {
			out = append(out, p)
		}
	}
	return out
}

func yearBounds(rows []aggregate.PFAYearCount) (min, max int) {
	for i, r := range rows {
		if i == 0 || r.Year < min {
			min = r.Year
		}
		if i == 0 || r.Year > max {
			max = r.Year
		}
	}
	return min, max
}
