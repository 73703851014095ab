package aggregate

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/sentencing"
)

func rec(year int, pfa, offence, outcome, length string, count int) sentencing.Record {
	return sentencing.Record{
		Year:        year,
		PFA:         pfa,
		Sex:         "Female",
		AgeGroup:    "Adults",
		Offence:     offence,
		Outcome:     outcome,
		SentenceLen: length,
		Count:       count,
	}
}

func TestByOutcome(t *testing.T) {
	recs := []sentencing.Record{
		rec(2010, "Gwent", "Drug offences", sentencing.OutcomeImmediateCustody, "6 months", 5),
		rec(2010, "Gwent", "Theft offences", sentencing.OutcomeImmediateCustody, "6 months", 2),
		rec(2010, "Gwent", "Drug offences", sentencing.OutcomeCommunitySentence, "", 3),
		rec(2011, "Gwent", "Drug offences", sentencing.OutcomeImmediateCustody, "6 months", 1),
	}

	rows, err := ByOutcome(recs)
	if err != nil {
		t.Fatalf("ByOutcome failed: %v", err)
	}

	want := []PFAYearCount{
		{PFA: "Gwent", Year: 2010, Key: sentencing.OutcomeCommunitySentence, Total: 3},
		{PFA: "Gwent", Year: 2010, Key: sentencing.OutcomeImmediateCustody, Total: 7},
		{PFA: "Gwent", Year: 2011, Key: sentencing.OutcomeImmediateCustody, Total: 1},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("ByOutcome mismatch (-want +got):\n%s", diff)
	}
}

func TestByOutcome_ConservesCounts(t *testing.T) {
	recs := []sentencing.Record{
		rec(2010, "Gwent", "Drug offences", sentencing.OutcomeImmediateCustody, "6 months", 5),
		rec(2010, "Kent", "Drug offences", sentencing.OutcomeSuspendedSentence, "", 4),
		rec(2012, "Kent", "Fraud offences", sentencing.OutcomeCommunitySentence, "", 9),
	}

	rows, err := ByOutcome(recs)
	if err != nil {
		t.Fatalf("ByOutcome failed: %v", err)
	}

	if got, want := sumTotals(rows), sentencing.TotalCount(recs); got != want {
		t.Errorf("grouped total %d, input total %d", got, want)
	}
}

func TestByLengthBucket_CustodyOnly(t *testing.T) {
	recs := []sentencing.Record{
		rec(2010, "Gwent", "Drug offences", sentencing.OutcomeImmediateCustody, "Up to and including 1 month", 5),
		rec(2010, "Gwent", "Drug offences", sentencing.OutcomeImmediateCustody, "6 months", 2),
		rec(2010, "Gwent", "Drug offences", sentencing.OutcomeImmediateCustody, "Life sentence", 1),
		rec(2010, "Gwent", "Drug offences", sentencing.OutcomeCommunitySentence, "", 30),
	}

	rows, err := ByLengthBucket(recs)
	if err != nil {
		t.Fatalf("ByLengthBucket failed: %v", err)
	}

	want := []PFAYearCount{
		{PFA: "Gwent", Year: 2010, Key: sentencing.Bucket12OrMore, Total: 1},
		{PFA: "Gwent", Year: 2010, Key: sentencing.Bucket6ToUnder12, Total: 2},
		{PFA: "Gwent", Year: 2010, Key: sentencing.BucketUnder6Months, Total: 5},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("ByLengthBucket mismatch (-want +got):\n%s", diff)
	}
}

func TestCustodyTotals(t *testing.T) {
	recs := []sentencing.Record{
		rec(2010, "Gwent", "Drug offences", sentencing.OutcomeImmediateCustody, "6 months", 5),
		rec(2010, "Gwent", "Theft offences", sentencing.OutcomeImmediateCustody, "Life sentence", 4),
		rec(2010, "Gwent", "Drug offences", sentencing.OutcomeCommunitySentence, "", 100),
	}

	rows, err := CustodyTotals(recs)
	if err != nil {
		t.Fatalf("CustodyTotals failed: %v", err)
	}

	if len(rows) != 1 || rows[0].Total != 9 {
		t.Errorf("expected one Gwent/2010 row with total 9, got %+v", rows)
	}
}

func TestByOffenceLatestYear(t *testing.T) {
	recs := []sentencing.Record{
		rec(2020, "Gwent", "Drug offences", sentencing.OutcomeImmediateCustody, "6 months", 5),
		rec(2021, "Gwent", "Drug offences", sentencing.OutcomeImmediateCustody, "6 months", 3),
		rec(2021, "Gwent", "Theft offences", sentencing.OutcomeImmediateCustody, "6 months", 7),
		rec(2021, "Gwent", "Theft offences", sentencing.OutcomeCommunitySentence, "", 50),
	}

	rows, year, err := ByOffenceLatestYear(recs)
	if err != nil {
		t.Fatalf("ByOffenceLatestYear failed: %v", err)
	}

	if year != 2021 {
		t.Errorf("expected latest year 2021, got %d", year)
	}
	want := []PFAYearCount{
		{PFA: "Gwent", Year: 2021, Key: "Drug offences", Total: 3},
		{PFA: "Gwent", Year: 2021, Key: "Theft offences", Total: 7},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("ByOffenceLatestYear mismatch (-want +got):\n%s", diff)
	}
}

func TestByOffenceLatestYear_NoCustody(t *testing.T) {
	recs := []sentencing.Record{
		rec(2020, "Gwent", "Drug offences", sentencing.OutcomeCommunitySentence, "", 5),
	}

	if _, _, err := ByOffenceLatestYear(recs); err == nil {
		t.Fatal("expected error with no custody records")
	}
}

func TestFilterYears(t *testing.T) {
	rows := []PFAYearCount{
		{PFA: "Gwent", Year: 2012, Total: 1},
		{PFA: "Gwent", Year: 2014, Total: 2},
		{PFA: "Gwent", Year: 2015, Total: 3},
	}

	got := FilterYears(rows, 2014)
	if len(got) != 2 || got[0].Year != 2014 {
		t.Errorf("unexpected filtered rows: %+v", got)
	}
}

func TestConservationViolationError(t *testing.T) {
	err := checkConservation("group by outcome", 10, 9)
	if err == nil {
		t.Fatal("expected error for drifted totals")
	}
	if !errors.Is(err, ErrCountConservation) {
		t.Errorf("error should wrap ErrCountConservation: %v", err)
	}
}
