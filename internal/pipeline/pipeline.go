// Package pipeline runs the full batch: load and reconcile geography
// lookups, normalise the sentencing extracts, clean the population
// estimates, join and aggregate to police force areas, and write the
// publication tables. Every stage logs its row accounting and, when an
// audit store is attached, persists it per run.
package pipeline

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/aggregate"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/auditdb"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/config"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/csvio"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/fsutil"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/geography"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/population"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/sentencing"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/tables"
)

// Stage names as recorded in the audit trail, in execution order.
const (
	StageGeography  = "geography"
	StageSentencing = "sentencing"
	StagePopulation = "population"
	StageJoin       = "join"
	StageRates      = "rates"
	StageTables     = "tables"
)

var stageOrder = []string{StageGeography, StageSentencing, StagePopulation, StageJoin, StageRates, StageTables}

const (
	idxGeography = iota
	idxSentencing
	idxPopulation
	idxJoin
	idxRates
	idxTables
)

func stageIndex(stage string) (int, error) {
	for i, s := range stageOrder {
		if s == stage {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q (stages: %v)", stage, stageOrder)
}

type Pipeline struct {
	cfg   *config.Config
	fs    fsutil.FileSystem
	audit *auditdb.DB
}

// New wires a pipeline onto a filesystem and, optionally, an audit
// store. audit may be nil; row accounting is then only logged.
func New(cfg *config.Config, fs fsutil.FileSystem, audit *auditdb.DB) *Pipeline {
	return &Pipeline{cfg: cfg, fs: fs, audit: audit}
}

// Result summarises one completed run.
type Result struct {
	RunID   string
	Outputs []string
}

// Run executes every stage in order. Schema errors, conflicting
// geography assignments, and count-conservation failures abort the run;
// unmatched geography codes and missing rates do not.
func (p *Pipeline) Run() (*Result, error) {
	return p.RunTo(StageTables)
}

// RunTo executes stages in order and stops after the named stage,
// leaving that stage's outputs on disk for inspection.
func (p *Pipeline) RunTo(lastStage string) (*Result, error) {
	stop, err := stageIndex(lastStage)
	if err != nil {
		return nil, err
	}

	res := &Result{}

	if p.audit != nil {
		runID, err := p.audit.CreateRun(p.cfg.Hash())
		if err != nil {
			return nil, fmt.Errorf("failed to start audit run: %w", err)
		}
		res.RunID = runID
		log.Printf("pipeline run %s started", runID)
	}

	err = p.run(res, stop)

	if p.audit != nil {
		status, detail := auditdb.StatusCompleted, ""
		if err != nil {
			status, detail = auditdb.StatusFailed, err.Error()
		}
		if ferr := p.audit.FinishRun(res.RunID, status, detail); ferr != nil {
			log.Printf("failed to record run outcome: %v", ferr)
		}
	}

	if err != nil {
		return nil, err
	}
	log.Printf("pipeline finished: %d output tables", len(res.Outputs))
	return res, nil
}

func (p *Pipeline) run(res *Result, stop int) error {
	rec, err := p.loadReconciler(res.RunID)
	if err != nil {
		return err
	}
	if stop <= idxGeography {
		return nil
	}

	recs, err := p.loadSentencing(res.RunID)
	if err != nil {
		return err
	}
	if stop <= idxSentencing {
		return nil
	}

	// The population stage includes the PFA join; stopping at either
	// leaves the matched population on disk.
	pop, err := p.loadPopulation(res, rec)
	if err != nil {
		return err
	}
	if stop <= idxJoin {
		return nil
	}

	return p.buildTables(res, recs, pop, stop)
}

// loadReconciler loads every configured lookup vintage, newest first,
// so retired LA codes in older datasets still resolve to a force.
func (p *Pipeline) loadReconciler(runID string) (*geography.Reconciler, error) {
	paths := p.cfg.Datasets.GeographyLookups
	opts := p.cfg.GeographyOptions()

	vintages := make([]*geography.Mapping, 0, len(paths))
	for i := len(paths) - 1; i >= 0; i-- {
		m, err := geography.Load(p.fs, filepath.Join(p.cfg.Paths.Raw, paths[i]), opts)
		if err != nil {
			return nil, err
		}
		log.Printf("geography lookup %s: vintage %s, %d local authorities", paths[i], m.Vintage, m.Len())
		vintages = append(vintages, m)
	}

	// Vintage QA: surface boundary changes between the two newest
	// lookups before anything joins against them.
	if len(vintages) > 1 {
		diff := geography.Compare(vintages[1], vintages[0])
		log.Printf("geography vintage %s -> %s: %d codes retired, %d new, %d reassigned",
			vintages[1].Vintage, vintages[0].Vintage,
			len(diff.OnlyInOld), len(diff.OnlyInNew), len(diff.Reassigned))
	}

	if err := p.recordStage(runID, StageGeography, len(paths), vintages[0].Len()); err != nil {
		return nil, err
	}
	return geography.NewReconciler(vintages...), nil
}

func (p *Pipeline) loadSentencing(runID string) ([]sentencing.Record, error) {
	var paths []string
	for _, pattern := range p.cfg.Datasets.Sentencing {
		matches, err := p.fs.Glob(filepath.Join(p.cfg.Paths.Raw, pattern))
		if err != nil {
			return nil, fmt.Errorf("bad sentencing pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no sentencing files matching %q in %s", pattern, p.cfg.Paths.Raw)
		}
		paths = append(paths, matches...)
	}

	recs, err := sentencing.Load(p.fs, paths...)
	if err != nil {
		return nil, err
	}

	normalized, nr, err := sentencing.Normalize(recs, sentencing.DefaultRules(), p.cfg.FilterSet())
	if err != nil {
		return nil, err
	}
	if err := p.recordStage(runID, StageSentencing, nr.RowsIn, nr.RowsOut); err != nil {
		return nil, err
	}

	interim := filepath.Join(p.cfg.Paths.Interim, "sentencing_normalised.csv")
	if err := csvio.Write(p.fs, interim, recordsTable(normalized)); err != nil {
		return nil, err
	}
	return normalized, nil
}

func (p *Pipeline) loadPopulation(res *Result, rec *geography.Reconciler) ([]aggregate.PFAYearPopulation, error) {
	runID := res.RunID
	path, err := csvio.FetchLatest(p.fs, p.cfg.Paths.Raw, p.cfg.Datasets.Population)
	if err != nil {
		return nil, err
	}
	log.Printf("population estimates: using %s", path)

	raw, err := population.Load(p.fs, path)
	if err != nil {
		return nil, err
	}
	totals := population.Clean(raw)
	if err := p.recordStage(runID, StagePopulation, len(raw), len(totals)); err != nil {
		return nil, err
	}

	pop, unmatched := aggregate.PopulationByPFA(totals, rec)
	for _, uc := range unmatched {
		log.Printf("unmatched geography code %s (%s): %s", uc.Code, uc.Name, uc.Detail)
		if p.audit != nil {
			err := p.audit.RecordUnmatchedCode(auditdb.UnmatchedCode{
				RunID:  runID,
				Stage:  StageJoin,
				Code:   uc.Code,
				Name:   uc.Name,
				Detail: uc.Detail,
			})
			if err != nil {
				return nil, err
			}
		}
	}
	if err := p.recordStage(runID, StageJoin, len(totals), len(pop)); err != nil {
		return nil, err
	}
	matched := filepath.Join(p.cfg.Paths.Interim, "population_pfa_matched.csv")
	if err := csvio.Write(p.fs, matched, populationTable(pop)); err != nil {
		return nil, err
	}

	if target := p.cfg.Projection.TargetYear; target > 0 {
		extended, method, err := aggregate.ExtendPopulation(pop, target)
		if err != nil {
			return nil, err
		}
		if len(extended) > len(pop) {
			log.Printf("population projected to %d using %s", target, method)
		}
		pop = extended
	}

	interim := filepath.Join(p.cfg.Paths.Interim, "population_la.csv")
	if err := csvio.Write(p.fs, interim, laTotalsTable(totals)); err != nil {
		return nil, err
	}
	out := filepath.Join(p.cfg.Paths.Processed, "population_pfa.csv")
	if err := csvio.Write(p.fs, out, populationTable(pop)); err != nil {
		return nil, err
	}
	res.Outputs = append(res.Outputs, out)
	return pop, nil
}

func (p *Pipeline) buildTables(res *Result, recs []sentencing.Record, pop []aggregate.PFAYearPopulation, stop int) error {
	byOutcome, err := aggregate.ByOutcome(recs)
	if err != nil {
		return err
	}
	byBucket, err := aggregate.ByLengthBucket(recs)
	if err != nil {
		return err
	}
	custody, err := aggregate.CustodyTotals(recs)
	if err != nil {
		return err
	}
	byOffence, latestYear, err := aggregate.ByOffenceLatestYear(recs)
	if err != nil {
		return err
	}

	// Long-form count series, one row per (PFA, year, category).
	longForm := []struct {
		name      string
		keyHeader string
		rows      []aggregate.PFAYearCount
	}{
		{"counts_by_outcome.csv", "outcome", byOutcome},
		{"counts_by_sentence_length.csv", "sentence_length", byBucket},
		{expandTemplate("counts_by_offence_{year}.csv", map[string]string{"year": fmt.Sprint(latestYear)}), "offence", byOffence},
	}
	for _, lf := range longForm {
		path := filepath.Join(p.cfg.Paths.Processed, lf.name)
		if err := csvio.Write(p.fs, path, countsTable(lf.rows, lf.keyHeader)); err != nil {
			return err
		}
		res.Outputs = append(res.Outputs, path)
	}

	// Imprisonment-rate series over the published year range.
	custodyRows := aggregate.FilterYears(custody, p.cfg.Tables.YearFrom)
	rates := aggregate.Rates(custodyRows, populationForYears(pop, custodyRows))
	if err := p.recordStage(res.RunID, StageRates, len(custodyRows), len(rates)); err != nil {
		return err
	}
	seriesPath := filepath.Join(p.cfg.Paths.Processed, "imprisonment_rate_series.csv")
	if err := csvio.Write(p.fs, seriesPath, ratesLongTable(rates)); err != nil {
		return err
	}
	res.Outputs = append(res.Outputs, seriesPath)
	if stop <= idxRates {
		return nil
	}

	rowsIn := len(byBucket) + len(custody) + len(byOffence)
	written := 0

	// Custody tables, one per configured sentence-length category.
	for _, cat := range p.cfg.TableCategories() {
		rows, err := tables.SelectCategory(byBucket, cat)
		if err != nil {
			return err
		}
		rows = aggregate.FilterYears(rows, p.cfg.Tables.YearFrom)
		if len(rows) == 0 {
			return fmt.Errorf("no custody rows for category %q after year filter", cat)
		}

		m := tables.Crosstab(rows)
		m.AppendPercentChange()

		slug, err := cat.Slug()
		if err != nil {
			return err
		}
		minYear, maxYear := yearBounds(rows)
		path, err := p.writeProcessed(p.cfg.Outputs.CustodyTable, map[string]string{
			"category": slug,
			"min_year": fmt.Sprint(minYear),
			"max_year": fmt.Sprint(maxYear),
		}, m)
		if err != nil {
			return err
		}
		res.Outputs = append(res.Outputs, path)
		written += len(rows)
	}

	// Rate publication table, sorted by the latest year.
	minYear, maxYear := yearBounds(custodyRows)
	path, err := p.writeProcessed(p.cfg.Outputs.RateTable, map[string]string{
		"min_year": fmt.Sprint(minYear),
		"max_year": fmt.Sprint(maxYear),
	}, tables.RateTable(rates))
	if err != nil {
		return err
	}
	res.Outputs = append(res.Outputs, path)
	written += len(rates)

	// Offence proportions for the latest year.
	path, err = p.writeProcessed(p.cfg.Outputs.OffencesTable, map[string]string{
		"year": fmt.Sprint(latestYear),
	}, tables.OffenceProportions(byOffence))
	if err != nil {
		return err
	}
	res.Outputs = append(res.Outputs, path)
	written += len(byOffence)

	if err := p.recordStage(res.RunID, StageTables, rowsIn, written); err != nil {
		return err
	}
	return nil
}

func (p *Pipeline) writeProcessed(template string, vars map[string]string, m *tables.Matrix) (string, error) {
	path := filepath.Join(p.cfg.Paths.Processed, expandTemplate(template, vars))
	if err := csvio.Write(p.fs, path, m.Table()); err != nil {
		return "", err
	}
	log.Printf("wrote %s (%d rows)", path, len(m.RowLabels))
	return path, nil
}

func (p *Pipeline) recordStage(runID, stage string, rowsIn, rowsOut int) error {
	log.Printf("stage %s: %d rows in, %d rows out", stage, rowsIn, rowsOut)
	if p.audit == nil {
		return nil
	}
	return p.audit.RecordStageCount(auditdb.StageCount{
		RunID:   runID,
		Stage:   stage,
		RowsIn:  rowsIn,
		RowsOut: rowsOut,
	})
}
