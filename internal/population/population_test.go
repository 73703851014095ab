package population

import (
	"fmt"
	"testing"

	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/fsutil"
)

const onsFixture = `v4_0,calendar-years,Time,administrative-geography,Geography,sex,Sex,age,Age
500,2020,2020,W06000019,Blaenau Gwent,2,Female,17,17
1200,2020,2020,W06000019,Blaenau Gwent,2,Female,18,18
800,2020,2020,W06000019,Blaenau Gwent,2,Female,90+,90+
900,2020,2020,W06000019,Blaenau Gwent,1,Male,18,18
3000,2020,2020,W06000021,Monmouthshire,2,Female,40,40
2500,2021,2021,W06000021,Monmouthshire,2,Female,40,40
99999,2020,2020,W92000004,WALES,2,Female,18,18
100,2020,2020,W06000019,Blaenau Gwent,2,Female,Total,Total
`

func loadFixture(t *testing.T) []Record {
	t.Helper()
	fs := fsutil.NewMemoryFileSystem()
	if err := fs.WriteFile("raw/ons.csv", []byte(onsFixture), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	recs, err := Load(fs, "raw/ons.csv")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return recs
}

func TestLoad_SkipsNonNumericAges(t *testing.T) {
	recs := loadFixture(t)

	// The "Total" age row is a banded duplicate and must not load.
	if len(recs) != 7 {
		t.Fatalf("expected 7 rows, got %d", len(recs))
	}
}

func TestLoad_ParsesOpenEndedAgeBand(t *testing.T) {
	recs := loadFixture(t)

	found := false
	for _, r := range recs {
		if r.Age == 90 {
			found = true
		}
	}
	if !found {
		t.Error("expected 90+ band to load as age 90")
	}
}

func TestLoad_MissingColumn(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	if err := fs.WriteFile("raw/bad.csv", []byte("a,b\n1,2\n"), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	if _, err := Load(fs, "raw/bad.csv"); err == nil {
		t.Fatal("expected error for missing columns")
	}
}

func TestClean_AdultWomenOnly(t *testing.T) {
	totals := Clean(loadFixture(t))

	var blaenau *LAYearTotal
	for i := range totals {
		if totals[i].LACode == "W06000019" && totals[i].Year == 2020 {
			blaenau = &totals[i]
		}
	}
	if blaenau == nil {
		t.Fatal("expected a Blaenau Gwent 2020 total")
	}

	// 1200 (age 18) + 800 (90+). Age 17 and the male row are excluded.
	if blaenau.Population != 2000 {
		t.Errorf("expected 2000, got %d", blaenau.Population)
	}
}

func TestClean_DropsNationalAggregates(t *testing.T) {
	totals := Clean(loadFixture(t))

	for _, tot := range totals {
		if tot.LACode == "W92000004" {
			t.Error("expected WALES aggregate row to be dropped")
		}
	}
}

func TestClean_OneRowPerLAYear(t *testing.T) {
	totals := Clean(loadFixture(t))

	seen := make(map[string]bool)
	for _, tot := range totals {
		key := fmt.Sprintf("%s/%d", tot.LACode, tot.Year)
		if seen[key] {
			t.Errorf("duplicate LA-year total for %s %d", tot.LACode, tot.Year)
		}
		seen[key] = true
	}
}

func TestYearRange(t *testing.T) {
	totals := Clean(loadFixture(t))

	min, max, err := YearRange(totals)
	if err != nil {
		t.Fatalf("YearRange failed: %v", err)
	}
	if min != 2020 || max != 2021 {
		t.Errorf("expected 2020-2021, got %d-%d", min, max)
	}
}

func TestYearRange_Empty(t *testing.T) {
	if _, _, err := YearRange(nil); err == nil {
		t.Fatal("expected error for empty totals")
	}
}
