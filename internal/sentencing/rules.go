package sentencing

import (
	"fmt"
	"regexp"
)

// Rule is one declarative text substitution: a regex pattern and its
// replacement, applied to every value of a column.
type Rule struct {
	Pattern     string
	Replacement string

	re *regexp.Regexp
}

// RuleSet holds the ordered substitution rules for each column. Rules
// run in sequence; later rules see the output of earlier ones.
type RuleSet map[Column][]Rule

// NewRuleSet compiles a set of substitution rules. A pattern that fails
// to compile is a configuration error.
func NewRuleSet(rules map[Column][]Rule) (RuleSet, error) {
	rs := make(RuleSet, len(rules))
	for col, list := range rules {
		if !validColumns[col] {
			return nil, fmt.Errorf("replacement rules reference unknown column %q", string(col))
		}
		compiled := make([]Rule, len(list))
		for i, r := range list {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				return nil, fmt.Errorf("bad replacement pattern %q for column %s: %w", r.Pattern, col, err)
			}
			compiled[i] = Rule{Pattern: r.Pattern, Replacement: r.Replacement, re: re}
		}
		rs[col] = compiled
	}
	return rs, nil
}

// DefaultRules returns the substitutions needed to clean the MoJ
// extracts: every categorical column carries a "NN: " code prefix, and
// the sentence-length labels changed wording between vintages.
func DefaultRules() RuleSet {
	codePrefix := Rule{Pattern: `^\d\d: `, Replacement: ""}

	rs, err := NewRuleSet(map[Column][]Rule{
		ColSex:      {codePrefix},
		ColAgeGroup: {codePrefix},
		ColOffence:  {codePrefix},
		ColOutcome:  {codePrefix},
		ColSentenceLen: {
			codePrefix,
			{Pattern: `Custody - `, Replacement: ""},
			{Pattern: `Over`, Replacement: "More than"},
			{Pattern: `Life$`, Replacement: "Life sentence"},
		},
	})
	if err != nil {
		panic(err) // static rules; cannot fail
	}
	return rs
}

// Apply runs every rule against every record and returns the cleaned
// records. Input records are not modified.
func (rs RuleSet) Apply(recs []Record) []Record {
	out := make([]Record, len(recs))
	for i, r := range recs {
		r.Sex = rs.apply(ColSex, r.Sex)
		r.AgeGroup = rs.apply(ColAgeGroup, r.AgeGroup)
		r.Offence = rs.apply(ColOffence, r.Offence)
		r.Outcome = rs.apply(ColOutcome, r.Outcome)
		r.SentenceLen = rs.apply(ColSentenceLen, r.SentenceLen)
		r.PFA = rs.apply(ColPFA, r.PFA)
		out[i] = r
	}
	return out
}

func (rs RuleSet) apply(col Column, value string) string {
	for _, rule := range rs[col] {
		value = rule.re.ReplaceAllString(value, rule.Replacement)
	}
	return value
}
