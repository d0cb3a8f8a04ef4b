package metrics

import (
	"math"
	"math/bits"

	"github.com/GreatValueCreamSoda/yuvmetrics/video"
)

// MSSSIM is multi-scale SSIM. The contrast-structure term is taken at every
// scale but the last, where the full SSIM is used, and the terms are combined
// as a weighted geometric mean.
//
// Planes too small for five scales use as many as fit, with the weights of
// the remaining scales renormalised to sum to one.
type MSSSIM struct{}

func (MSSSIM) Name() string                  { return "msssim" }
func (MSSSIM) Kind() Kind                    { return KindPlanar }
func (MSSSIM) Check(video.VideoHeader) error { return nil }

// msssimWeights are the published per-scale exponents, finest scale first.
var msssimWeights = [5]float64{0.0448, 0.2856, 0.3001, 0.2363, 0.1333}

const msssimKernelWeight = 1 << 10

var msssimKernel = gaussianKernel(1.5, 5, msssimKernelWeight)

func (MSSSIM) ComputeFrame(h video.VideoHeader, a, b *video.Frame) (
	FrameSample, error) {
	if err := checkPair(h, a, b); err != nil {
		return FrameSample{}, err
	}

	s := FrameSample{Index: a.Index, Plane: [3]float64{1, 1, 1}}
	err := forEachPlane(h, func(p int) error {
		s.Plane[p] = planeMSSSIM(a.Plane(p), b.Plane(p))
		return nil
	})
	return s, err
}

func (MSSSIM) FrameResult(h video.VideoHeader, s FrameSample) Result {
	return linearPlanar(h, s.Plane)
}

func (MSSSIM) VideoResult(h video.VideoHeader, samples []FrameSample) Result {
	return linearPlanar(h, meanPlanes(samples))
}

// msssimScales is the number of scales a width x height plane supports:
// the pyramid stops before either side would shrink to zero.
func msssimScales(width, height int) int {
	side := min(width, height)
	if side <= 0 {
		return 0
	}
	return min(len(msssimWeights), bits.Len(uint(side)))
}

func planeMSSSIM(pa, pb *video.Plane) float64 {
	width, height := pa.Width, pa.Height
	scales := msssimScales(width, height)
	if scales == 0 {
		return 1
	}

	var weightSum float64
	for _, w := range msssimWeights[:scales] {
		weightSum += w
	}

	a, b := planeFloats(pa), planeFloats(pb)
	peak := float64(pa.SampleMax())
	score := 1.0
	for i := range scales {
		if i > 0 {
			a = downscale2x2(a, width, height)
			b = downscale2x2(b, width, height)
			width, height = width/2, height/2
		}

		ssim, cs := planeSSIM(a, b, width, height, peak, msssimKernel)
		term := cs
		if i == scales-1 {
			term = ssim
		}
		score *= math.Pow(max(term, 0), msssimWeights[i]/weightSum)
	}
	return score
}

// downscale2x2 halves both dimensions by averaging 2x2 blocks. Odd trailing
// rows and columns are dropped.
func downscale2x2(in []float64, width, height int) []float64 {
	outW, outH := width/2, height/2
	out := make([]float64, outW*outH)
	for j := range outH {
		r0 := in[2*j*width:]
		r1 := in[min(2*j+1, height-1)*width:]
		for i := range outW {
			i0, i1 := 2*i, min(2*i+1, width-1)
			out[j*outW+i] = (r0[i0] + r0[i1] + r1[i0] + r1[i1]) * 0.25
		}
	}
	return out
}
