// Package metrics implements full-reference quality metrics over pairs of
// decoded video frames.
//
// Every metric follows the same two step shape. ComputeFrame scores one frame
// pair and returns a FrameSample holding whatever the metric needs to later
// fold frames together (squared error sums for PSNR, linear indices for
// SSIM). FrameResult and VideoResult turn one or many samples into the
// reported Result. Metrics hold no state, so a single value may be shared by
// any number of goroutines.
package metrics

import (
	"encoding/json"
	"math"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/GreatValueCreamSoda/yuvmetrics/video"
)

// Kind tags the shape of a Result.
type Kind int

const (
	// KindPlanar results carry one score per plane plus a weighted average.
	KindPlanar Kind = iota
	// KindScalar results carry a single number for the whole frame.
	KindScalar
)

func (k Kind) String() string {
	if k == KindScalar {
		return "scalar"
	}
	return "planar"
}

// PlaneResult holds per-plane scores and their weighted average.
type PlaneResult struct {
	Y   float64 `json:"y"`
	U   float64 `json:"u"`
	V   float64 `json:"v"`
	Avg float64 `json:"avg"`
}

// Result is either a PlaneResult or a single scalar, depending on Kind.
type Result struct {
	kind   Kind
	planar PlaneResult
	scalar float64
}

// PlanarResult wraps per-plane scores.
func PlanarResult(p PlaneResult) Result { return Result{kind: KindPlanar, planar: p} }

// ScalarResult wraps a single score.
func ScalarResult(v float64) Result { return Result{kind: KindScalar, scalar: v} }

func (r Result) Kind() Kind { return r.kind }

// Planar returns the per-plane scores. ok is false for scalar results.
func (r Result) Planar() (PlaneResult, bool) {
	return r.planar, r.kind == KindPlanar
}

// Scalar returns the single score. ok is false for planar results.
func (r Result) Scalar() (float64, bool) {
	return r.scalar, r.kind == KindScalar
}

// MarshalJSON encodes planar results as an object and scalar results as a
// bare number. Infinite scores, which identical planes produce for the PSNR
// family, are written as the strings "+Inf" and "-Inf".
func (r Result) MarshalJSON() ([]byte, error) {
	if r.kind == KindScalar {
		return jsonFloat(r.scalar), nil
	}
	p := r.planar
	out := make([]byte, 0, 96)
	for i, f := range []struct {
		name string
		v    float64
	}{{"y", p.Y}, {"u", p.U}, {"v", p.V}, {"avg", p.Avg}} {
		if i == 0 {
			out = append(out, '{')
		} else {
			out = append(out, ',')
		}
		out = strconv.AppendQuote(out, f.name)
		out = append(out, ':')
		out = append(out, jsonFloat(f.v)...)
	}
	return append(out, '}'), nil
}

func jsonFloat(v float64) []byte {
	switch {
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`)
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`)
	case math.IsNaN(v):
		return []byte(`"NaN"`)
	}
	b, _ := json.Marshal(v)
	return b
}

// FrameSample is the intermediate output of scoring one frame pair.
//
// Plane holds one value per plane whose meaning is private to the metric
// that produced it. Count holds sample counts for metrics that pool sums
// across frames. Scalar is used by scalar metrics only.
type FrameSample struct {
	Index  int
	Plane  [3]float64
	Count  [3]float64
	Scalar float64
}

// Metric is the capability every quality metric implements.
type Metric interface {
	// Name is the canonical lower-case identifier, e.g. "psnr".
	Name() string
	Kind() Kind
	// Check reports whether frames described by h can be scored at all.
	Check(h video.VideoHeader) error
	ComputeFrame(h video.VideoHeader, a, b *video.Frame) (FrameSample, error)
	FrameResult(h video.VideoHeader, s FrameSample) Result
	VideoResult(h video.VideoHeader, samples []FrameSample) Result
}

// checkPair verifies both frames match the header's plane geometry.
func checkPair(h video.VideoHeader, a, b *video.Frame) error {
	for p := range 3 {
		w, ht := h.PlaneDimensions(p)
		pa, pb := a.Plane(p), b.Plane(p)
		if pa.Width != w || pa.Height != ht || !pa.SameShape(pb) {
			return video.Errorf(video.ErrDimensionMismatch, "compute",
				"plane %d is %dx%d and %dx%d, header needs %dx%d", p,
				pa.Width, pa.Height, pb.Width, pb.Height, w, ht)
		}
	}
	return nil
}

// forEachPlane runs fn for the planes that exist in h concurrently.
func forEachPlane(h video.VideoHeader, fn func(p int) error) error {
	var group errgroup.Group
	for p := range h.NumPlanes() {
		group.Go(func() error { return fn(p) })
	}
	return group.Wait()
}

// weightedAverage folds plane scores with the chroma weight of the sampling.
func weightedAverage(h video.VideoHeader, y, u, v float64) float64 {
	cw := h.ChromaSampling.ChromaWeight()
	return (y + cw*(u+v)) / (1 + 2*cw)
}

// meanPlanes averages the Plane field of samples.
func meanPlanes(samples []FrameSample) [3]float64 {
	var sum [3]float64
	if len(samples) == 0 {
		return sum
	}
	for _, s := range samples {
		for p := range sum {
			sum[p] += s.Plane[p]
		}
	}
	for p := range sum {
		sum[p] /= float64(len(samples))
	}
	return sum
}

// linearPlanar reports plane values that are already in the score domain
// (SSIM, MS-SSIM) with a chroma weighted average.
func linearPlanar(h video.VideoHeader, v [3]float64) Result {
	return PlanarResult(PlaneResult{
		Y: v[0], U: v[1], V: v[2],
		Avg: weightedAverage(h, v[0], v[1], v[2]),
	})
}

// ToDecibels maps a similarity index in [0, 1) onto a logarithmic scale,
// 10*log10(1/(1-score)). A perfect score maps to +Inf.
func ToDecibels(score float64) float64 {
	return -10 * math.Log10(1-score)
}

// CIEDEToDecibels maps a mean CIEDE2000 distance onto the 45 - 20*log10(dE)
// scale used by several encoder test suites. A zero distance maps to +Inf.
func CIEDEToDecibels(deltaE float64) float64 {
	return 45 - 20*math.Log10(deltaE)
}
