package metrics

import (
	"math"
	"math/bits"

	"github.com/GreatValueCreamSoda/yuvmetrics/video"
)

// SSIM is the structural similarity index of each plane, computed with a
// separable integer Gaussian window whose width scales with the plane
// height. Scores are reported as raw indices in [-1, 1]; identical planes
// score 1.
type SSIM struct{}

func (SSIM) Name() string                  { return "ssim" }
func (SSIM) Kind() Kind                    { return KindPlanar }
func (SSIM) Check(video.VideoHeader) error { return nil }

const (
	ssimK1 = 0.01 * 0.01
	ssimK2 = 0.03 * 0.03

	ssimKernelWeight = 1 << 8
)

func (SSIM) ComputeFrame(h video.VideoHeader, a, b *video.Frame) (
	FrameSample, error) {
	if err := checkPair(h, a, b); err != nil {
		return FrameSample{}, err
	}

	s := FrameSample{Index: a.Index, Plane: [3]float64{1, 1, 1}}
	err := forEachPlane(h, func(p int) error {
		pa, pb := a.Plane(p), b.Plane(p)
		if pa.Empty() {
			return nil
		}
		kernel := gaussianKernel(float64(pa.Height)*1.5/256,
			min(pa.Width, pa.Height), ssimKernelWeight)
		s.Plane[p], _ = planeSSIM(planeFloats(pa), planeFloats(pb),
			pa.Width, pa.Height, float64(pa.SampleMax()), kernel)
		return nil
	})
	return s, err
}

func (SSIM) FrameResult(h video.VideoHeader, s FrameSample) Result {
	return linearPlanar(h, s.Plane)
}

func (SSIM) VideoResult(h video.VideoHeader, samples []FrameSample) Result {
	return linearPlanar(h, meanPlanes(samples))
}

// gaussianKernel builds a symmetric integer kernel whose taps sum to weight.
// The kernel reaches as far as the Gaussian stays above half a unit of
// weight, but never beyond maxLen-1 taps on either side.
func gaussianKernel(sigma float64, maxLen, weight int) []float64 {
	scale := 1 / (math.Sqrt(2*math.Pi) * sigma)
	nhisigma2 := -0.5 / (sigma * sigma)
	s := math.Sqrt(0.5*math.Pi) * sigma / float64(weight)

	length := 0
	if s < 1 {
		length = int(math.Floor(sigma * math.Sqrt(-2*math.Log(s))))
	}
	length = max(min(length, maxLen-1), 0)

	kernel := make([]float64, 2*length+1)
	var sum int
	for ci := 1; ci <= length; ci++ {
		v := int(float64(weight)*scale*math.Exp(nhisigma2*float64(ci*ci)) + 0.5)
		kernel[length-ci] = float64(v)
		kernel[length+ci] = float64(v)
		sum += v
	}
	kernel[length] = float64(weight - 2*sum)
	return kernel
}

// planeFloats copies the plane's samples out as packed float64s.
func planeFloats(p *video.Plane) []float64 {
	out := make([]float64, 0, p.Width*p.Height)
	for y := range p.Height {
		for _, v := range p.Row(y) {
			out = append(out, float64(v))
		}
	}
	return out
}

// ssimMoments are window-weighted sums over a neighbourhood.
type ssimMoments struct {
	mux, muy   float64
	x2, xy, y2 float64
	w          float64
}

// planeSSIM returns the mean SSIM and the mean contrast-structure term of
// two packed planes.
//
// The window is applied horizontally to each row as it is reached and the
// filtered rows are kept in a ring buffer just deep enough for the vertical
// pass. Taps falling outside the plane are dropped, so border windows carry
// less total weight and count for less in the mean.
func planeSSIM(a, b []float64, width, height int, peak float64,
	kernel []float64) (float64, float64) {
	if width == 0 || height == 0 {
		return 1, 1
	}

	klen := len(kernel)
	offset := klen >> 1
	ringSize := 1 << bits.Len(uint(klen-1))
	ringMask := ringSize - 1
	lines := make([][]ssimMoments, ringSize)
	for i := range lines {
		lines[i] = make([]ssimMoments, width)
	}

	var ssim, cs, ssimw float64
	for y := 0; y < height+offset; y++ {
		if y < height {
			buf := lines[y&ringMask]
			rowA := a[y*width : (y+1)*width]
			rowB := b[y*width : (y+1)*width]
			for x := range width {
				var m ssimMoments
				kMin := max(offset-x, 0)
				kMax := klen - max(x+offset+1-width, 0)
				for k := kMin; k < kMax; k++ {
					w := kernel[k]
					pa, pb := rowA[x+k-offset], rowB[x+k-offset]
					m.mux += w * pa
					m.muy += w * pb
					m.x2 += w * pa * pa
					m.xy += w * pa * pb
					m.y2 += w * pb * pb
					m.w += w
				}
				buf[x] = m
			}
		}

		if y < offset {
			continue
		}
		kMin := max(klen-(y+1), 0)
		kMax := klen - max(y+1-height, 0)
		for x := range width {
			var m ssimMoments
			for k := kMin; k < kMax; k++ {
				line := lines[(y+1+k-klen)&ringMask][x]
				w := kernel[k]
				m.mux += w * line.mux
				m.muy += w * line.muy
				m.x2 += w * line.x2
				m.xy += w * line.xy
				m.y2 += w * line.y2
				m.w += w * line.w
			}

			w := m.w
			c1 := peak * peak * ssimK1 * w * w
			c2 := peak * peak * ssimK2 * w * w
			mx2 := m.mux * m.mux
			mxy := m.mux * m.muy
			my2 := m.muy * m.muy
			csTmp := w * (c2 + 2*(m.xy*w-mxy)) /
				(m.x2*w - mx2 + m.y2*w - my2 + c2)
			cs += csTmp
			ssim += csTmp * (2*mxy + c1) / (mx2 + my2 + c1)
			ssimw += w
		}
	}

	return ssim / ssimw, cs / ssimw
}
