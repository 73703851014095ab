// Package sentencing normalises Ministry of Justice sentencing-outcome
// extracts. Two dataset vintages with different column names and
// digit-coded category labels are unified into one schema, cleaned with
// declarative replacement rules, and reduced with typed include/exclude
// filters.
package sentencing

import "fmt"

// Canonical sentence outcome labels, as they appear after the numeric
// code prefixes are stripped.
const (
	OutcomeImmediateCustody  = "Immediate Custody"
	OutcomeCommunitySentence = "Community Sentence"
	OutcomeSuspendedSentence = "Suspended Sentence"
)

// Record is one normalised sentencing-outcome row: the number of women
// sentenced for a (year, PFA, demographic, offence, outcome, length)
// combination.
type Record struct {
	Year        int
	PFA         string
	Sex         string
	AgeGroup    string
	Offence     string
	Outcome     string
	SentenceLen string
	Count       int
}

// Column names a filterable column of a Record. The set is closed so
// misconfigured filters fail at load time, not at first use.
type Column string

const (
	ColPFA         Column = "pfa"
	ColSex         Column = "sex"
	ColAgeGroup    Column = "age_group"
	ColOffence     Column = "offence"
	ColOutcome     Column = "outcome"
	ColSentenceLen Column = "sentence_len"
)

var validColumns = map[Column]bool{
	ColPFA:         true,
	ColSex:         true,
	ColAgeGroup:    true,
	ColOffence:     true,
	ColOutcome:     true,
	ColSentenceLen: true,
}

// ValidColumn reports whether name is a recognised filter column.
func ValidColumn(name string) bool {
	return validColumns[Column(name)]
}

func (r Record) field(c Column) (string, error) {
	switch c {
	case ColPFA:
		return r.PFA, nil
	case ColSex:
		return r.Sex, nil
	case ColAgeGroup:
		return r.AgeGroup, nil
	case ColOffence:
		return r.Offence, nil
	case ColOutcome:
		return r.Outcome, nil
	case ColSentenceLen:
		return r.SentenceLen, nil
	default:
		return "", fmt.Errorf("unknown filter column %q", string(c))
	}
}

// TotalCount sums the counts of a record slice. Stages use it to verify
// that grouping conserves counts.
func TotalCount(recs []Record) int {
	total := 0
	for _, r := range recs {
		total += r.Count
	}
	return total
}
