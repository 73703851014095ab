// Package geography reconciles Local Authority Districts (LADs) with
// Police Force Areas (PFAs). The ONS lookup table that links the two is
// reissued each time local government boundaries change, so the package
// models each issue as a separate vintage and makes cross-vintage
// differences explicit rather than letting joins silently drop rows.
package geography

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/csvio"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/fsutil"
)

// Entry is one row of a cleaned LA-to-PFA lookup.
type Entry struct {
	LACode  string
	LAName  string
	PFACode string
	PFAName string
}

// Mapping is the cleaned lookup table for a single vintage. Within a
// vintage each LA code maps to exactly one PFA.
type Mapping struct {
	Vintage string
	entries map[string]Entry
}

// Options controls which lookup rows are dropped during load.
type Options struct {
	// DropCodePrefixes removes aggregate geographies that sit above LA
	// level (E10 counties, E11 metropolitan counties). These duplicate
	// information already present at LA granularity.
	DropCodePrefixes []string

	// ExcludePFAs removes areas with no ordinary policing relevance
	// (the City of London force).
	ExcludePFAs []string
}

// DefaultOptions returns the exclusions used by the published analysis.
func DefaultOptions() Options {
	return Options{
		DropCodePrefixes: []string{"E10", "E11"},
		ExcludePFAs:      []string{"London, City of"},
	}
}

// canonicalPFANames maps PFA name renderings that differ between source
// datasets onto one canonical string. Both the sentencing extracts and
// the ONS lookups are normalised through this table, so downstream joins
// never depend on coincidental spelling.
var canonicalPFANames = map[string]string{
	"Devon & Cornwall":    "Devon and Cornwall",
	"Dyfed-Powys":         "Dyfed Powys",
	"Metropolitan Police": "London",
}

// CanonicalPFAName returns the canonical rendering of a PFA name.
func CanonicalPFAName(name string) string {
	name = strings.TrimSpace(name)
	if canonical, ok := canonicalPFANames[name]; ok {
		return canonical
	}
	return name
}

// Lookup column headers carry the vintage in the name (LAD24CD,
// PFA24NM, ...), so detection is pattern-based and any issue loads.
var (
	laCodeCol  = regexp.MustCompile(`(?i)^LAD(\d{2})CD$`)
	laNameCol  = regexp.MustCompile(`(?i)^LAD\d{2}NM$`)
	pfaCodeCol = regexp.MustCompile(`(?i)^PFA\d{2}CD$`)
	pfaNameCol = regexp.MustCompile(`(?i)^PFA\d{2}NM$`)
)

// Load reads an ONS LA-to-PFA lookup CSV and produces a cleaned Mapping.
// The vintage is taken from the column headers (e.g. LAD24CD gives
// vintage "24"). Duplicate LA codes with conflicting PFA assignments are
// a fatal data error.
func Load(fs fsutil.FileSystem, path string, opts Options) (*Mapping, error) {
	table, err := csvio.Read(fs, path)
	if err != nil {
		return nil, fmt.Errorf("geography lookup: %w", err)
	}

	laCode, laName, pfaCode, pfaName := -1, -1, -1, -1
	vintage := ""
	for i, h := range table.Header {
		h = strings.TrimSpace(h)
		switch {
		case laCodeCol.MatchString(h):
			laCode = i
			vintage = laCodeCol.FindStringSubmatch(h)[1]
		case laNameCol.MatchString(h):
			laName = i
		case pfaCodeCol.MatchString(h):
			pfaCode = i
		case pfaNameCol.MatchString(h):
			pfaName = i
		}
	}
	if laCode < 0 || laName < 0 || pfaCode < 0 || pfaName < 0 {
		return nil, fmt.Errorf("geography lookup %s: unrecognised columns %v", path, table.Header)
	}

	m := &Mapping{Vintage: vintage, entries: make(map[string]Entry)}
	for _, row := range table.Rows {
		e := Entry{
			LACode:  strings.TrimSpace(row[laCode]),
			LAName:  strings.TrimSpace(row[laName]),
			PFACode: strings.TrimSpace(row[pfaCode]),
			PFAName: CanonicalPFAName(row[pfaName]),
		}

		if dropCode(e.LACode, opts.DropCodePrefixes) || excludedPFA(e.PFAName, opts.ExcludePFAs) {
			continue
		}

		if prev, ok := m.entries[e.LACode]; ok && prev.PFACode != e.PFACode {
			return nil, fmt.Errorf("geography lookup %s: LA code %s maps to both %s and %s",
				path, e.LACode, prev.PFAName, e.PFAName)
		}
		m.entries[e.LACode] = e
	}

	return m, nil
}

func dropCode(code string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

func excludedPFA(name string, excluded []string) bool {
	for _, x := range excluded {
		// Exclusion lists are written against source spellings.
		if name == x || name == CanonicalPFAName(x) {
			return true
		}
	}
	return false
}

// Entry returns the lookup entry for an LA code, if present.
func (m *Mapping) Entry(laCode string) (Entry, bool) {
	e, ok := m.entries[laCode]
	return e, ok
}

// Len returns the number of LA codes in the mapping.
func (m *Mapping) Len() int { return len(m.entries) }

// LACodes returns all LA codes in the mapping.
func (m *Mapping) LACodes() []string {
	codes := make([]string, 0, len(m.entries))
	for c := range m.entries {
		codes = append(codes, c)
	}
	return codes
}
