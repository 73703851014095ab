package sentencing

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/csvio"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/fsutil"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/geography"
)

// headerAliases maps the raw column headers of both extract vintages
// onto the unified schema. The 2009-2019 court-outcomes extract and the
// later outcomes-by-offence extract name the same columns differently.
var headerAliases = map[string]string{
	"year":                      "year",
	"year of appearance":        "year",
	"police force area":         "pfa",
	"sex":                       "sex",
	"age group":                 "age_group",
	"offence group":             "offence",
	"outcome":                   "outcome",
	"sentence outcome":          "outcome",
	"custodial sentence length": "sentence_len",
	"sentenced":                 "freq",
	"count":                     "freq",
}

// Load reads one or more sentencing extracts and concatenates them into
// a single record set. Each file may use either vintage's column
// naming. Negative counts and unparseable years are schema errors.
func Load(fs fsutil.FileSystem, paths ...string) ([]Record, error) {
	var recs []Record
	for _, path := range paths {
		fileRecs, err := loadFile(fs, path)
		if err != nil {
			return nil, err
		}
		log.Printf("loaded %d sentencing rows from %s", len(fileRecs), path)
		recs = append(recs, fileRecs...)
	}
	return recs, nil
}

func loadFile(fs fsutil.FileSystem, path string) ([]Record, error) {
	table, err := csvio.Read(fs, path)
	if err != nil {
		return nil, fmt.Errorf("sentencing extract: %w", err)
	}

	cols := make(map[string]int)
	for i, h := range table.Header {
		if canonical, ok := headerAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			cols[canonical] = i
		}
	}
	for _, required := range []string{"year", "pfa", "sex", "age_group", "offence", "outcome", "sentence_len", "freq"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("sentencing extract %s: no column mapping to %q", path, required)
		}
	}

	recs := make([]Record, 0, len(table.Rows))
	for i, row := range table.Rows {
		year, err := strconv.Atoi(strings.TrimSpace(row[cols["year"]]))
		if err != nil {
			return nil, fmt.Errorf("sentencing extract %s row %d: bad year %q", path, i+2, row[cols["year"]])
		}
		count, err := strconv.Atoi(strings.TrimSpace(row[cols["freq"]]))
		if err != nil {
			return nil, fmt.Errorf("sentencing extract %s row %d: bad count %q", path, i+2, row[cols["freq"]])
		}
		if count < 0 {
			return nil, fmt.Errorf("sentencing extract %s row %d: negative count %d", path, i+2, count)
		}

		recs = append(recs, Record{
			Year:        year,
			PFA:         strings.TrimSpace(row[cols["pfa"]]),
			Sex:         strings.TrimSpace(row[cols["sex"]]),
			AgeGroup:    strings.TrimSpace(row[cols["age_group"]]),
			Offence:     strings.TrimSpace(row[cols["offence"]]),
			Outcome:     strings.TrimSpace(row[cols["outcome"]]),
			SentenceLen: strings.TrimSpace(row[cols["sentence_len"]]),
			Count:       count,
		})
	}
	return recs, nil
}

// NormalizeResult reports the row accounting of a Normalize call for
// the audit trail.
type NormalizeResult struct {
	RowsIn  int
	RowsOut int
}

// Normalize cleans loaded records with the rule set, canonicalises PFA
// names (the extracts render the Metropolitan force's name differently
// between vintages), then applies the configured filters.
func Normalize(recs []Record, rules RuleSet, filters FilterSet) ([]Record, NormalizeResult, error) {
	res := NormalizeResult{RowsIn: len(recs)}

	cleaned := rules.Apply(recs)
	for i := range cleaned {
		cleaned[i].PFA = geography.CanonicalPFAName(cleaned[i].PFA)
	}

	filtered, err := filters.Apply(cleaned)
	if err != nil {
		return nil, res, err
	}
	res.RowsOut = len(filtered)

	log.Printf("sentencing normalize: %d rows in, %d rows after filters", res.RowsIn, res.RowsOut)
	return filtered, res, nil
}
