package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/GreatValueCreamSoda/yuvmetrics/comparator"
	"github.com/GreatValueCreamSoda/yuvmetrics/metrics"
)

var displayNames = map[string]string{
	"psnr":      "PSNR",
	"apsnr":     "APSNR",
	"psnrhvs":   "PSNR HVS",
	"ssim":      "SSIM",
	"msssim":    "MSSSIM",
	"ciede2000": "CIEDE2000",
}

func displayName(metric string) string {
	if name, ok := displayNames[metric]; ok {
		return name
	}
	return metric
}

// displayResult applies the optional decibel mapping to similarity and
// colour difference scores. PSNR family results are already in decibels.
func displayResult(metric string, r metrics.Result, decibels bool) metrics.Result {
	if !decibels {
		return r
	}
	switch metric {
	case "ssim", "msssim":
		p, _ := r.Planar()
		return metrics.PlanarResult(metrics.PlaneResult{
			Y:   metrics.ToDecibels(p.Y),
			U:   metrics.ToDecibels(p.U),
			V:   metrics.ToDecibels(p.V),
			Avg: metrics.ToDecibels(p.Avg),
		})
	case "ciede2000":
		v, _ := r.Scalar()
		return metrics.ScalarResult(metrics.CIEDEToDecibels(v))
	}
	return r
}

// formatResult renders one result on a single line.
func formatResult(name string, r metrics.Result) string {
	if p, ok := r.Planar(); ok {
		return fmt.Sprintf("%s →  Y: %.4f U/Cb: %.4f V/Cr: %.4f Avg value: %.4f",
			name, p.Y, p.U, p.V, p.Avg)
	}
	v, _ := r.Scalar()
	return fmt.Sprintf("%s →  %.4f", name, v)
}

type report struct {
	metric string
	result metrics.Result
	frames []comparator.FrameScore
}

func collectReports(contexts []*comparator.Context, decibels, perFrame bool) (
	[]report, error) {
	reports := make([]report, 0, len(contexts))
	for _, c := range contexts {
		r, err := c.Result()
		if err != nil {
			return nil, err
		}
		rep := report{metric: c.Metric, result: displayResult(c.Metric, r, decibels)}

		if perFrame {
			frames, err := c.Frames()
			if err != nil {
				return nil, err
			}
			for _, f := range frames {
				rep.frames = append(rep.frames, comparator.FrameScore{
					Index:  f.Index,
					Result: displayResult(c.Metric, f.Result, decibels),
				})
			}
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

func writeText(w io.Writer, reports []report) {
	for _, rep := range reports {
		for _, f := range rep.frames {
			fmt.Fprintf(w, "frame %d: %s\n", f.Index,
				formatResult(displayName(rep.metric), f.Result))
		}
		fmt.Fprintln(w, formatResult(displayName(rep.metric), rep.result))
	}
}

type jsonMetric struct {
	Result metrics.Result          `json:"result"`
	Frames []comparator.FrameScore `json:"frames,omitempty"`
}

func writeJSON(w io.Writer, reports []report) error {
	out := make(map[string]jsonMetric, len(reports))
	for _, rep := range reports {
		out[rep.metric] = jsonMetric{Result: rep.result, Frames: rep.frames}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// statisticSeries picks the value summarised per frame: the weighted
// average for planar metrics, the scalar otherwise.
func statisticSeries(frames []comparator.FrameScore) []float64 {
	series := make([]float64, len(frames))
	for i, f := range frames {
		if p, ok := f.Result.Planar(); ok {
			series[i] = p.Avg
		} else {
			series[i], _ = f.Result.Scalar()
		}
	}
	return series
}
