package aggregate

import (
	"fmt"
	"log"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// The sentencing series is published roughly a year ahead of the
// matching mid-year population estimates, so the rate for the latest
// year needs a projected population. Three methods are candidates;
// each run backtests them against the last actual year and uses the
// one with the lowest mean absolute percentage error.

// Method identifies a population projection method.
type Method string

const (
	MethodLinearTrend   Method = "linear-trend"
	MethodCAGR          Method = "cagr"
	MethodMovingAverage Method = "moving-average"
)

const (
	trendYears      = 5 // fit window for the linear trend
	cagrBaseYears   = 5 // base period for compound annual growth
	movingAvgWindow = 3 // year-over-year changes averaged
	minTrendPoints  = 3
)

type yearSeries struct {
	years  []float64
	values []float64
}

func seriesByPFA(pop []PFAYearPopulation) map[string]yearSeries {
	byPFA := make(map[string][]PFAYearPopulation)
	for _, p := range pop {
		byPFA[p.PFA] = append(byPFA[p.PFA], p)
	}

	out := make(map[string]yearSeries, len(byPFA))
	for pfa, rows := range byPFA {
		sort.Slice(rows, func(i, j int) bool { return rows[i].Year < rows[j].Year })
		s := yearSeries{}
		for _, r := range rows {
			s.years = append(s.years, float64(r.Year))
			s.values = append(s.values, float64(r.Population))
		}
		out[pfa] = s
	}
	return out
}

func (s yearSeries) truncateBefore(year int) yearSeries {
	out := yearSeries{}
	for i, y := range s.years {
		if int(y) < year {
			out.years = append(out.years, y)
			out.values = append(out.values, s.values[i])
		}
	}
	return out
}

// projectLinear fits a least-squares line through the last trendYears
// points and extrapolates to targetYear.
func projectLinear(s yearSeries, targetYear int) (float64, bool) {
	from := targetYear - trendYears
	var xs, ys []float64
	for i, y := range s.years {
		if int(y) >= from && int(y) < targetYear {
			xs = append(xs, y)
			ys = append(ys, s.values[i])
		}
	}
	if len(xs) < minTrendPoints {
		return 0, false
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	return alpha + beta*float64(targetYear), true
}

// projectCAGR extrapolates with the compound annual growth rate over
// the cagrBaseYears period ending at the last year before targetYear.
func projectCAGR(s yearSeries, targetYear int) (float64, bool) {
	if len(s.years) == 0 {
		return 0, false
	}
	endYear := int(s.years[len(s.years)-1])
	if endYear >= targetYear {
		endYear = targetYear - 1
	}
	startYear := endYear - cagrBaseYears + 1

	var startVal, endVal float64
	haveStart, haveEnd := false, false
	for i, y := range s.years {
		switch int(y) {
		case startYear:
			startVal, haveStart = s.values[i], true
		case endYear:
			endVal, haveEnd = s.values[i], true
		}
	}
	if !haveStart || !haveEnd || startVal <= 0 || endYear <= startYear {
		return 0, false
	}

	cagr := math.Pow(endVal/startVal, 1/float64(endYear-startYear)) - 1
	return endVal * math.Pow(1+cagr, float64(targetYear-endYear)), true
}

// projectMovingAverage extrapolates with the mean of the last
// movingAvgWindow year-over-year changes.
func projectMovingAverage(s yearSeries, targetYear int) (float64, bool) {
	var years []float64
	var values []float64
	for i, y := range s.years {
		if int(y) < targetYear {
			years = append(years, y)
			values = append(values, s.values[i])
		}
	}
	if len(values) < movingAvgWindow+1 {
		return 0, false
	}

	var changes []float64
	for i := 1; i < len(values); i++ {
		changes = append(changes, values[i]-values[i-1])
	}
	if len(changes) > movingAvgWindow {
		changes = changes[len(changes)-movingAvgWindow:]
	}
	avgChange := stat.Mean(changes, nil)

	latest := values[len(values)-1]
	latestYear := years[len(years)-1]
	return latest + avgChange*(float64(targetYear)-latestYear), true
}

func project(m Method, s yearSeries, targetYear int) (float64, bool) {
	switch m {
	case MethodLinearTrend:
		return projectLinear(s, targetYear)
	case MethodCAGR:
		return projectCAGR(s, targetYear)
	case MethodMovingAverage:
		return projectMovingAverage(s, targetYear)
	}
	return 0, false
}

// backtest predicts actualYear for every PFA from the data before it
// and returns the mean absolute percentage error against the actuals.
func backtest(m Method, byPFA map[string]yearSeries, actualYear int) (float64, bool) {
	var errs []float64
	for _, s := range byPFA {
		var actual float64
		have := false
		for i, y := range s.years {
			if int(y) == actualYear {
				actual, have = s.values[i], true
			}
		}
		if !have || actual == 0 {
			continue
		}

		pred, ok := project(m, s.truncateBefore(actualYear), actualYear)
		if !ok {
			continue
		}
		errs = append(errs, math.Abs(pred-actual)/actual*100)
	}
	if len(errs) == 0 {
		return 0, false
	}
	return stat.Mean(errs, nil), true
}

// SelectBestMethod backtests the three projection methods against
// actualYear and returns the one with the lowest MAPE, along with the
// per-method scores.
func SelectBestMethod(pop []PFAYearPopulation, actualYear int) (Method, map[Method]float64, error) {
	byPFA := seriesByPFA(pop)

	scores := make(map[Method]float64)
	for _, m := range []Method{MethodLinearTrend, MethodCAGR, MethodMovingAverage} {
		if mape, ok := backtest(m, byPFA, actualYear); ok {
			scores[m] = mape
		}
	}
	if len(scores) == 0 {
		return "", nil, fmt.Errorf("population series too short to backtest projections against %d", actualYear)
	}

	best := Method("")
	for _, m := range []Method{MethodLinearTrend, MethodCAGR, MethodMovingAverage} {
		mape, ok := scores[m]
		if !ok {
			continue
		}
		if best == "" || mape < scores[best] {
			best = m
		}
	}

	for m, mape := range scores {
		log.Printf("projection backtest %s: MAPE %.5f%%", m, mape)
	}
	log.Printf("projection method selected: %s (MAPE %.5f%%)", best, scores[best])
	return best, scores, nil
}

// ExtendPopulation appends a projected population for targetYear to
// each PFA's series, using the method that backtests best against the
// last actual year. Projections are floored at zero and rounded to
// whole persons.
func ExtendPopulation(pop []PFAYearPopulation, targetYear int) ([]PFAYearPopulation, Method, error) {
	if len(pop) == 0 {
		return nil, "", fmt.Errorf("no population rows to project from")
	}

	lastActual := pop[0].Year
	for _, p := range pop {
		if p.Year > lastActual {
			lastActual = p.Year
		}
	}
	if targetYear <= lastActual {
		return pop, "", nil
	}

	best, _, err := SelectBestMethod(pop, lastActual)
	if err != nil {
		return nil, "", err
	}

	byPFA := seriesByPFA(pop)
	extended := append([]PFAYearPopulation(nil), pop...)
	for pfa, s := range byPFA {
		proj, ok := project(best, s, targetYear)
		if !ok {
			log.Printf("projection: series for %s too short, no %d figure", pfa, targetYear)
			continue
		}
		extended = append(extended, PFAYearPopulation{
			PFA:        pfa,
			Year:       targetYear,
			Population: int(math.Max(math.Round(proj), 0)),
		})
	}

	sort.Slice(extended, func(i, j int) bool {
		if extended[i].PFA != extended[j].PFA {
			return extended[i].PFA < extended[j].PFA
		}
		return extended[i].Year < extended[j].Year
	})
	return extended, best, nil
}
