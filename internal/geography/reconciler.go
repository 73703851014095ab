package geography

import "sort"

// MatchKind classifies the outcome of an LA code lookup.
type MatchKind int

const (
	// Matched means the code resolves to one PFA in the target vintage.
	Matched MatchKind = iota

	// Unmatched means no loaded vintage knows the code. Typical causes
	// are aggregate geographies and codes retired by reorganisation.
	Unmatched

	// AmbiguousAcrossVintages means the code resolves to different PFAs
	// in different loaded vintages, so a cross-era comparison cannot use
	// it code-for-code.
	AmbiguousAcrossVintages
)

func (k MatchKind) String() string {
	switch k {
	case Matched:
		return "matched"
	case Unmatched:
		return "unmatched"
	case AmbiguousAcrossVintages:
		return "ambiguous-across-vintages"
	default:
		return "unknown"
	}
}

// LookupResult is the outcome of resolving an LA code to a PFA. Callers
// must branch on Kind; PFAName and PFACode are only set when Matched.
type LookupResult struct {
	Kind    MatchKind
	PFACode string
	PFAName string

	// Vintage is the vintage that produced the match.
	Vintage string
}

// Reconciler resolves LA codes against one or more lookup vintages. The
// first vintage is the target; later vintages are consulted only to
// detect codes whose meaning shifted between issues.
type Reconciler struct {
	vintages []*Mapping
}

// NewReconciler creates a Reconciler. At least one mapping is required;
// the first is the target vintage.
func NewReconciler(vintages ...*Mapping) *Reconciler {
	return &Reconciler{vintages: vintages}
}

// Lookup resolves an LA code. A code present in several vintages with
// the same PFA assignment matches normally; conflicting assignments are
// reported as ambiguous rather than silently resolved.
func (r *Reconciler) Lookup(laCode string) LookupResult {
	var found []LookupResult
	for _, m := range r.vintages {
		if e, ok := m.Entry(laCode); ok {
			found = append(found, LookupResult{
				Kind:    Matched,
				PFACode: e.PFACode,
				PFAName: e.PFAName,
				Vintage: m.Vintage,
			})
		}
	}

	switch len(found) {
	case 0:
		return LookupResult{Kind: Unmatched}
	case 1:
		return found[0]
	}

	for _, f := range found[1:] {
		if f.PFACode != found[0].PFACode {
			return LookupResult{Kind: AmbiguousAcrossVintages, Vintage: found[0].Vintage}
		}
	}
	return found[0]
}

// Target returns the target-vintage mapping.
func (r *Reconciler) Target() *Mapping { return r.vintages[0] }

// VintageDiff reports how LA codes moved between two lookup issues.
type VintageDiff struct {
	// OnlyInOld lists codes retired by the newer issue (districts merged
	// into unitary authorities, for example).
	OnlyInOld []string

	// OnlyInNew lists codes introduced by the newer issue.
	OnlyInNew []string

	// Reassigned lists codes present in both issues but assigned to a
	// different PFA. Comparisons across the two eras must resample to a
	// common geography for these.
	Reassigned []string
}

// Compare diffs two lookup vintages for QA. Counts drawn from an
// old-vintage dataset can only be compared code-for-code against a
// new-vintage dataset for codes absent from all three lists.
func Compare(old, new *Mapping) VintageDiff {
	var d VintageDiff
	for code, oldEntry := range old.entries {
		newEntry, ok := new.entries[code]
		switch {
		case !ok:
			d.OnlyInOld = append(d.OnlyInOld, code)
		case oldEntry.PFACode != newEntry.PFACode:
			d.Reassigned = append(d.Reassigned, code)
		}
	}
	for code := range new.entries {
		if _, ok := old.entries[code]; !ok {
			d.OnlyInNew = append(d.OnlyInNew, code)
		}
	}

	sort.Strings(d.OnlyInOld)
	sort.Strings(d.OnlyInNew)
	sort.Strings(d.Reassigned)
	return d
}
