package pipeline

import (
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/auditdb"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/config"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/csvio"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/fsutil"
)

const lookupFixture = `LAD24CD,LAD24NM,PFA24CD,PFA24NM
W06000019,Blaenau Gwent,W15000002,Gwent
W06000018,Caerphilly,W15000002,Gwent
E06000001,Hartlepool,E23000007,Cleveland
`

const sentencingFixture = `Police Force Area,Year,Sex,Age group,Offence group,Outcome,Custodial sentence length,Sentenced
Gwent,2021,Female,Adults,07: Theft offences,01: Immediate Custody,01: Up to and including 1 month,3
Gwent,2021,Female,Adults,07: Theft offences,01: Immediate Custody,04: Over 3 months and up to 6 months,1
Gwent,2021,Female,Adults,03: Drug offences,01: Immediate Custody,12: Over 4 years,1
Gwent,2021,Female,Adults,07: Theft offences,02: Community Sentence,Not applicable,3
Gwent,2021,Male,Adults,07: Theft offences,01: Immediate Custody,01: Up to and including 1 month,7
Not known,2021,Female,Adults,07: Theft offences,01: Immediate Custody,01: Up to and including 1 month,2
Gwent,2020,Female,Adults,07: Theft offences,01: Immediate Custody,01: Up to and including 1 month,4
`

const populationFixture = `v4_0,calendar-years,administrative-geography,geography,sex,age
50000,2021,W06000019,Blaenau Gwent,Female,30
50000,2021,W06000018,Caerphilly,Female,45
50000,2020,W06000019,Blaenau Gwent,Female,30
50000,2020,W06000018,Caerphilly,Female,45
1500000,2021,W92000004,WALES,Female,30
1000,2021,E06000999,Old District,Female,40
`

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Datasets = config.DatasetsConfig{
		Sentencing:       []string{"sentencing_*.csv"},
		Population:       "population_*.csv",
		GeographyLookups: []string{"la_pfa_2024.csv"},
	}
	return cfg
}

func testFS(t *testing.T) *fsutil.MemoryFileSystem {
	t.Helper()
	fs := fsutil.NewMemoryFileSystem()
	for path, content := range map[string]string{
		"data/raw/la_pfa_2024.csv":          lookupFixture,
		"data/raw/sentencing_2017_2021.csv": sentencingFixture,
		"data/raw/population_2021_v1.csv":   populationFixture,
	} {
		if err := fs.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to seed %s: %v", path, err)
		}
	}
	return fs
}

func readTable(t *testing.T, fs fsutil.FileSystem, path string) *csvio.Table {
	t.Helper()
	table, err := csvio.Read(fs, path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return table
}

func cellFor(t *testing.T, table *csvio.Table, pfa, col string) string {
	t.Helper()
	ci, err := table.Col(col)
	if err != nil {
		t.Fatalf("no column %q: %v", col, err)
	}
	for _, row := range table.Rows {
		if row[0] == pfa {
			return row[ci]
		}
	}
	t.Fatalf("no row for %q", pfa)
	return ""
}

func TestRunEndToEnd(t *testing.T) {
	fs := testFS(t)
	p := New(testConfig(), fs, nil)

	res, err := p.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	wantOutputs := []string{
		"data/processed/population_pfa.csv",
		"data/processed/counts_by_outcome.csv",
		"data/processed/counts_by_sentence_length.csv",
		"data/processed/counts_by_offence_2021.csv",
		"data/processed/imprisonment_rate_series.csv",
		"data/processed/custody_all_2020_2021.csv",
		"data/processed/custody_six_months_2020_2021.csv",
		"data/processed/custody_12_months_2020_2021.csv",
		"data/processed/imprisonment_rate_2020_2021.csv",
		"data/processed/offence_proportions_2021.csv",
	}
	if diff := cmp.Diff(wantOutputs, res.Outputs); diff != "" {
		t.Fatalf("outputs (-want +got):\n%s", diff)
	}

	// All custodial sentences: male, unknown-PFA and non-custodial
	// rows are out; 3+1+1 custodial sentences remain in 2021.
	all := readTable(t, fs, "data/processed/custody_all_2020_2021.csv")
	if got := cellFor(t, all, "Gwent", "2021"); got != "5" {
		t.Errorf("Gwent 2021 custody = %q, want 5", got)
	}
	if got := cellFor(t, all, "Gwent", "2020"); got != "4" {
		t.Errorf("Gwent 2020 custody = %q, want 4", got)
	}
	if got := cellFor(t, all, "Gwent", "% change"); got != "25" {
		t.Errorf("Gwent change = %q, want 25", got)
	}

	// 100,000 adult women and 5 custodial sentences: rate 5 per
	// 100,000. Cleveland has a lookup entry but no data at all, so it
	// never appears.
	rates := readTable(t, fs, "data/processed/imprisonment_rate_2020_2021.csv")
	if got := cellFor(t, rates, "Gwent", "2021"); got != "5" {
		t.Errorf("Gwent 2021 rate = %q, want 5", got)
	}
	for _, row := range rates.Rows {
		if row[0] == "Cleveland" {
			t.Error("Cleveland should not appear without custody or population rows")
		}
	}

	offences := readTable(t, fs, "data/processed/offence_proportions_2021.csv")
	if got := cellFor(t, offences, "Gwent", "Theft offences"); got != "0.8" {
		t.Errorf("theft proportion = %q, want 0.8", got)
	}
	if got := cellFor(t, offences, "Gwent", "Drug offences"); got != "0.2" {
		t.Errorf("drug proportion = %q, want 0.2", got)
	}

	// The long-form series carries the joined inputs behind each
	// rate, with community and suspended sentences kept separate.
	series := readTable(t, fs, "data/processed/imprisonment_rate_series.csv")
	found := false
	for _, row := range series.Rows {
		if row[0] == "Gwent" && row[1] == "2021" {
			found = true
			if row[2] != "5" || row[3] != "100000" || row[4] != "5" {
				t.Errorf("Gwent 2021 series row = %v", row)
			}
		}
	}
	if !found {
		t.Error("no Gwent 2021 row in rate series")
	}

	// Interim stage outputs are kept for inspection.
	if !fs.Exists("data/interim/sentencing_normalised.csv") {
		t.Error("missing interim normalised sentencing output")
	}
	if !fs.Exists("data/interim/population_la.csv") {
		t.Error("missing interim LA population output")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	fs := testFS(t)
	cfg := testConfig()

	if _, err := New(cfg, fs, nil).Run(); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	first, err := fs.ReadFile("data/processed/imprisonment_rate_2020_2021.csv")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := New(cfg, fs, nil).Run(); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	second, err := fs.ReadFile("data/processed/imprisonment_rate_2020_2021.csv")
	if err != nil {
		t.Fatal(err)
	}

	if string(first) != string(second) {
		t.Error("reruns should produce byte-identical outputs")
	}
}

func setupAuditDB(t *testing.T) *auditdb.DB {
	t.Helper()
	fname := strings.ReplaceAll(t.Name(), "/", "_") + ".db"
	_ = os.Remove(fname)
	t.Cleanup(func() {
		_ = os.Remove(fname)
		_ = os.Remove(fname + "-shm")
		_ = os.Remove(fname + "-wal")
	})

	db, err := auditdb.NewDB(fname)
	if err != nil {
		t.Fatalf("failed to open audit DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.MigrateUp("../auditdb/migrations"); err != nil {
		t.Fatalf("failed to migrate audit DB: %v", err)
	}
	return db
}

func TestRunRecordsAuditTrail(t *testing.T) {
	fs := testFS(t)
	audit := setupAuditDB(t)

	res, err := New(testConfig(), fs, audit).Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.RunID == "" {
		t.Fatal("expected a run ID with audit enabled")
	}

	run, err := audit.GetRun(res.RunID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Status != auditdb.StatusCompleted {
		t.Errorf("run status = %q, want completed", run.Status)
	}

	counts, err := audit.StageCounts(res.RunID)
	if err != nil {
		t.Fatalf("StageCounts failed: %v", err)
	}
	stages := make(map[string]auditdb.StageCount)
	for _, sc := range counts {
		stages[sc.Stage] = sc
	}
	for _, stage := range []string{StageGeography, StageSentencing, StagePopulation, StageJoin, StageRates, StageTables} {
		if _, ok := stages[stage]; !ok {
			t.Errorf("no stage count recorded for %s", stage)
		}
	}
	if sc := stages[StageSentencing]; sc.RowsIn != 7 || sc.RowsOut != 5 {
		t.Errorf("sentencing stage counts = %d in, %d out; want 7 in, 5 out", sc.RowsIn, sc.RowsOut)
	}

	unmatched, err := audit.UnmatchedCodes(res.RunID)
	if err != nil {
		t.Fatalf("UnmatchedCodes failed: %v", err)
	}
	if len(unmatched) != 1 || unmatched[0].Code != "E06000999" {
		t.Errorf("unmatched codes = %+v, want just E06000999", unmatched)
	}
}

func TestRunFailureIsRecorded(t *testing.T) {
	fs := testFS(t)
	// Conflicting PFA assignment for one LA code is a fatal data
	// error.
	bad := lookupFixture + "W06000019,Blaenau Gwent,W15000003,Dyfed Powys\n"
	if err := fs.WriteFile("data/raw/la_pfa_2024.csv", []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	audit := setupAuditDB(t)

	_, err := New(testConfig(), fs, audit).Run()
	if err == nil {
		t.Fatal("expected run to fail on conflicting lookup")
	}

	runs, err := audit.Query("SELECT run_id FROM runs WHERE status = ?", auditdb.StatusFailed)
	if err != nil {
		t.Fatalf("failed to query runs: %v", err)
	}
	defer runs.Close()
	if !runs.Next() {
		t.Error("expected a failed run in the audit trail")
	}
}

func TestRunFailsWithoutSentencingFiles(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	if err := fs.WriteFile("data/raw/la_pfa_2024.csv", []byte(lookupFixture), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := New(testConfig(), fs, nil).Run()
	if err == nil {
		t.Fatal("expected error when no sentencing files match")
	}
	if !strings.Contains(err.Error(), "sentencing") {
		t.Errorf("error should name the missing dataset, got: %v", err)
	}
}

func TestRunToStopsAfterStage(t *testing.T) {
	fs := testFS(t)

	res, err := New(testConfig(), fs, nil).RunTo(StageSentencing)
	if err != nil {
		t.Fatalf("RunTo failed: %v", err)
	}

	if !fs.Exists("data/interim/sentencing_normalised.csv") {
		t.Error("sentencing stage output missing")
	}
	if len(res.Outputs) != 0 {
		t.Errorf("outputs = %v, want none before the population stage", res.Outputs)
	}
	if fs.Exists("data/processed/counts_by_outcome.csv") {
		t.Error("later stage output should not exist")
	}
}

func TestRunToRejectsUnknownStage(t *testing.T) {
	fs := testFS(t)

	if _, err := New(testConfig(), fs, nil).RunTo("charts"); err == nil {
		t.Fatal("expected error for unknown stage")
	}
}

func TestExpandTemplate(t *testing.T) {
	got := expandTemplate("custody_{category}_{min_year}_{max_year}.csv", map[string]string{
		"category": "all",
		"min_year": "2014",
		"max_year": "2021",
	})
	if got != "custody_all_2014_2021.csv" {
		t.Errorf("expandTemplate = %q", got)
	}

	// Unknown placeholders stay visible.
	got = expandTemplate("rate_{yaer}.csv", map[string]string{"year": "2021"})
	if got != "rate_{yaer}.csv" {
		t.Errorf("expandTemplate = %q", got)
	}
}
