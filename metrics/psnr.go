package metrics

import (
	"math"

	"github.com/GreatValueCreamSoda/yuvmetrics/video"
)

// PSNR is the peak signal-to-noise ratio against the theoretical peak of the
// bit depth. A video score is the mean of the per-frame scores. Identical
// planes score +Inf.
type PSNR struct{}

func (PSNR) Name() string                  { return "psnr" }
func (PSNR) Kind() Kind                    { return KindPlanar }
func (PSNR) Check(video.VideoHeader) error { return nil }

// ComputeFrame records the sum of squared errors and the sample count of
// each plane.
func (PSNR) ComputeFrame(h video.VideoHeader, a, b *video.Frame) (
	FrameSample, error) {
	if err := checkPair(h, a, b); err != nil {
		return FrameSample{}, err
	}

	s := FrameSample{Index: a.Index}
	err := forEachPlane(h, func(p int) error {
		pa, pb := a.Plane(p), b.Plane(p)
		s.Plane[p] = float64(squaredError(pa, pb))
		s.Count[p] = float64(pa.Width * pa.Height)
		return nil
	})
	return s, err
}

func (PSNR) FrameResult(h video.VideoHeader, s FrameSample) Result {
	return PlanarResult(psnrFromSums(h, s.Plane, s.Count))
}

func (PSNR) VideoResult(h video.VideoHeader, samples []FrameSample) Result {
	var sum PlaneResult
	if len(samples) == 0 {
		return PlanarResult(sum)
	}
	for _, s := range samples {
		r := psnrFromSums(h, s.Plane, s.Count)
		sum.Y += r.Y
		sum.U += r.U
		sum.V += r.V
		sum.Avg += r.Avg
	}
	n := float64(len(samples))
	return PlanarResult(PlaneResult{
		Y: sum.Y / n, U: sum.U / n, V: sum.V / n, Avg: sum.Avg / n,
	})
}

// APSNR pools squared errors and sample counts over every frame of a video
// before converting to decibels once. For a single frame it equals PSNR.
type APSNR struct{}

func (APSNR) Name() string                  { return "apsnr" }
func (APSNR) Kind() Kind                    { return KindPlanar }
func (APSNR) Check(video.VideoHeader) error { return nil }

func (APSNR) ComputeFrame(h video.VideoHeader, a, b *video.Frame) (
	FrameSample, error) {
	return PSNR{}.ComputeFrame(h, a, b)
}

func (APSNR) FrameResult(h video.VideoHeader, s FrameSample) Result {
	return PSNR{}.FrameResult(h, s)
}

// VideoResult sums the per-frame partials in index order.
func (APSNR) VideoResult(h video.VideoHeader, samples []FrameSample) Result {
	var sse, count [3]float64
	for _, s := range samples {
		for p := range 3 {
			sse[p] += s.Plane[p]
			count[p] += s.Count[p]
		}
	}
	return PlanarResult(psnrFromSums(h, sse, count))
}

func squaredError(a, b *video.Plane) uint64 {
	var sse uint64
	for y := range a.Height {
		ra, rb := a.Row(y), b.Row(y)
		for x := range ra {
			d := int64(ra[x]) - int64(rb[x])
			sse += uint64(d * d)
		}
	}
	return sse
}

// psnrFromSums converts per-plane error sums to decibels. Avg uses the
// error pooled over all planes, which weights each plane by its sample
// count.
func psnrFromSums(h video.VideoHeader, sse, count [3]float64) PlaneResult {
	peak := float64(h.SampleMax())
	return PlaneResult{
		Y:   psnr(sse[0], count[0], peak),
		U:   psnr(sse[1], count[1], peak),
		V:   psnr(sse[2], count[2], peak),
		Avg: psnr(sse[0]+sse[1]+sse[2], count[0]+count[1]+count[2], peak),
	}
}

// psnr is 10*log10(peak^2 / mse). Zero error, including an absent plane,
// gives +Inf.
func psnr(sse, count, peak float64) float64 {
	if sse == 0 || count == 0 {
		return math.Inf(1)
	}
	return 10 * math.Log10(peak*peak*count/sse)
}
