package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// summary describes the distribution of one metric's per-frame scores.
type summary struct {
	Min, Max     float64
	Mean, Median float64
	StdDev       float64
	// Harmonic is the harmonic mean, NaN unless every score is positive and
	// finite.
	Harmonic float64
}

func summarize(values []float64) summary {
	sorted := slices.Clone(values)
	sort.Float64s(sorted)

	mean, std := stat.PopMeanStdDev(sorted, nil)
	s := summary{
		Min:      floats.Min(sorted),
		Max:      floats.Max(sorted),
		Mean:     mean,
		Median:   stat.Quantile(0.5, stat.Empirical, sorted, nil),
		StdDev:   std,
		Harmonic: math.NaN(),
	}
	if sorted[0] > 0 && !math.IsInf(sorted[len(sorted)-1], 1) {
		s.Harmonic = stat.HarmonicMean(sorted, nil)
	}
	return s
}

func printSummary(w io.Writer, names []string, scores map[string][]float64) {
	if len(scores) == 0 {
		fmt.Fprintln(w, "No scores to report")
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Metric summary")
	fmt.Fprintln(w, "==============")

	for _, name := range names {
		values := scores[name]
		if len(values) == 0 {
			continue
		}
		printMetricSummary(w, name, summarize(values))
	}

	if len(names) > 1 {
		printCorrelations(w, scores, names, defaultCorrelationMethods())
	}
}

func printMetricSummary(w io.Writer, name string, s summary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, name)
	fmt.Fprintln(w, strings.Repeat("-", len(name)))

	fmt.Fprintf(w, "  min      : %.6f\n", s.Min)
	fmt.Fprintf(w, "  max      : %.6f\n", s.Max)
	fmt.Fprintf(w, "  average  : %.6f\n", s.Mean)
	fmt.Fprintf(w, "  median   : %.6f\n", s.Median)
	fmt.Fprintf(w, "  stddev   : %.6f\n", s.StdDev)
	if !math.IsNaN(s.Harmonic) {
		fmt.Fprintf(w, "  harmonic : %.6f\n", s.Harmonic)
	}
}

// ----------------------------------------------------------------------------
// Correlations
// ----------------------------------------------------------------------------

type CorrelationMethod struct {
	Name string
	Fn   func(x, y []float64) float64
}

func defaultCorrelationMethods() []CorrelationMethod {
	return []CorrelationMethod{
		{"Pearson", pearsonCorrelation},
		{"Spearman", spearmanCorrelation},
		{"Kendall", kendallTauCorrelation},
	}
}

func printCorrelations(w io.Writer, scores map[string][]float64,
	names []string, methods []CorrelationMethod) {
	maxLen := 0
	for _, name := range names {
		maxLen = max(maxLen, len(name))
	}

	formatStr := fmt.Sprintf("  %%-%ds ↔ %%-%ds : %% .6f\n", maxLen, maxLen)

	for _, method := range methods {
		fmt.Fprintln(w)
		fmt.Fprintln(w, method.Name, "correlations")
		fmt.Fprintln(w, strings.Repeat("=", len(method.Name)+13))

		for i := 0; i < len(names); i++ {
			for j := i + 1; j < len(names); j++ {
				a, b := names[i], names[j]
				x, y := scores[a], scores[b]

				if len(x) == 0 || len(y) == 0 || len(x) != len(y) {
					continue
				}

				fmt.Fprintf(w, formatStr, a, b, math.Abs(method.Fn(x, y)))
			}
		}
	}
}

// pearsonCorrelation is 0 when either series is constant or not finite.
func pearsonCorrelation(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) || !allFinite(x) || !allFinite(y) {
		return 0
	}
	if floats.Max(x) == floats.Min(x) || floats.Max(y) == floats.Min(y) {
		return 0
	}
	return stat.Correlation(x, y, nil)
}

func spearmanCorrelation(x, y []float64) float64 {
	if len(x) != len(y) {
		return 0
	}
	return pearsonCorrelation(ranks(x), ranks(y))
}

func kendallTauCorrelation(x, y []float64) float64 {
	n := len(x)
	if n < 2 || n != len(y) {
		return 0
	}

	var concordant, discordant float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := (x[i] - x[j]) * (y[i] - y[j])
			if d > 0 {
				concordant++
			} else if d < 0 {
				discordant++
			}
		}
	}

	return (concordant - discordant) / (float64(n*(n-1)) / 2)
}

// ranks assigns 1-based ranks, giving tied values their mean rank.
func ranks(values []float64) []float64 {
	n := len(values)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return values[order[i]] < values[order[j]]
	})

	out := make([]float64, n)
	for i := 0; i < n; {
		j := i + 1
		for j < n && values[order[j]] == values[order[i]] {
			j++
		}
		rank := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			out[order[k]] = rank
		}
		i = j
	}
	return out
}

func allFinite(values []float64) bool {
	for _, v := range values {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return false
		}
	}
	return true
}
