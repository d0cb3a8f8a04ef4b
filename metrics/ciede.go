package metrics

import (
	"math"

	pixfmts "github.com/GreatValueCreamSoda/gopixfmts"
	"golang.org/x/sync/errgroup"

	"github.com/GreatValueCreamSoda/yuvmetrics/video"
)

// CIEDE2000 is the mean CIEDE2000 colour difference over all pixels. Each
// Y'CbCr sample is taken back to R'G'B' with the matrix of the header,
// linearised with its transfer characteristic and converted to CIE L*a*b*
// under D65. Chroma is upsampled by repetition. Identical frames score 0.
type CIEDE2000 struct{}

func (CIEDE2000) Name() string { return "ciede2000" }
func (CIEDE2000) Kind() Kind   { return KindScalar }

// Check rejects matrices and transfer characteristics the conversion does
// not model.
func (CIEDE2000) Check(h video.VideoHeader) error {
	_, err := newColorConverter(h)
	return err
}

// ΔE2000 weighting factors for lightness, chroma and hue.
const (
	ciedeKL = 0.65
	ciedeKC = 1.0
	ciedeKH = 4.0
)

func (CIEDE2000) ComputeFrame(h video.VideoHeader, a, b *video.Frame) (
	FrameSample, error) {
	conv, err := newColorConverter(h)
	if err != nil {
		return FrameSample{}, err
	}
	if err := checkPair(h, a, b); err != nil {
		return FrameSample{}, err
	}

	ssx, ssy, _ := h.ChromaSampling.Decimation()
	rows := make([]float64, h.Height)

	// Rows are independent; split them into bands scored concurrently.
	var group errgroup.Group
	bands := max(1, min(h.Height, 8))
	for band := range bands {
		group.Go(func() error {
			for y := band; y < h.Height; y += bands {
				rows[y] = conv.rowDeltaE(a, b, y, ssx, ssy)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return FrameSample{}, err
	}

	var sum float64
	for _, r := range rows {
		sum += r
	}
	return FrameSample{
		Index:  a.Index,
		Scalar: sum / float64(h.Width*h.Height),
	}, nil
}

func (CIEDE2000) FrameResult(_ video.VideoHeader, s FrameSample) Result {
	return ScalarResult(s.Scalar)
}

// VideoResult is the mean of the per-frame distances.
func (CIEDE2000) VideoResult(_ video.VideoHeader, samples []FrameSample) Result {
	if len(samples) == 0 {
		return ScalarResult(0)
	}
	var sum float64
	for _, s := range samples {
		sum += s.Scalar
	}
	return ScalarResult(sum / float64(len(samples)))
}

// ----------------------------------------------------------------------------
// Colour conversion
// ----------------------------------------------------------------------------

type lab struct{ l, a, b float64 }

// colorConverter maps integer Y'CbCr samples to L*a*b*.
type colorConverter struct {
	yOffset, yScale float64
	cOffset, cScale float64

	// Inverse matrix coefficients.
	crToR, cbToG, crToG, cbToB float64

	linearize func(float64) float64
	mono      bool
}

func newColorConverter(h video.VideoHeader) (*colorConverter, error) {
	kr, kb, ok := matrixCoefficients(h.ColorMatrix)
	if !ok {
		return nil, video.Errorf(video.ErrUnsupportedColorSpace, "ciede2000",
			"matrix %d is not supported", int(h.ColorMatrix))
	}
	linearize, ok := transferFunction(h.ColorTransfer)
	if !ok {
		return nil, video.Errorf(video.ErrUnsupportedColorSpace, "ciede2000",
			"transfer characteristic %d is not supported",
			int(h.ColorTransfer))
	}

	c := &colorConverter{
		linearize: linearize,
		mono:      h.ChromaSampling == video.ChromaSampling400,
	}

	peak := float64(h.SampleMax())
	if h.FullRange() {
		c.yOffset, c.yScale = 0, 1/peak
		c.cOffset, c.cScale = float64(int(1)<<(h.BitDepth-1)), 1/peak
	} else {
		s := float64(int(1) << (h.BitDepth - 8))
		c.yOffset, c.yScale = 16*s, 1/(219*s)
		c.cOffset, c.cScale = 128*s, 1/(224*s)
	}

	kg := 1 - kr - kb
	c.crToR = 2 * (1 - kr)
	c.cbToB = 2 * (1 - kb)
	c.cbToG = 2 * kb * (1 - kb) / kg
	c.crToG = 2 * kr * (1 - kr) / kg
	return c, nil
}

func matrixCoefficients(m pixfmts.ColorSpace) (kr, kb float64, ok bool) {
	switch m {
	case pixfmts.ColorSpaceBT709:
		return 0.2126, 0.0722, true
	case pixfmts.ColorSpaceBT470BG, pixfmts.ColorSpaceSMPTE170M:
		return 0.299, 0.114, true
	case pixfmts.ColorSpaceBT2020_NCL:
		return 0.2627, 0.0593, true
	default:
		return 0, 0, false
	}
}

// transferFunction returns the EOTF used to linearise R'G'B'. The zero
// value means the stream did not say and is treated like BT.709, which
// shares the sRGB curve for this purpose.
func transferFunction(trc pixfmts.ColorTransferCharacteristic) (
	func(float64) float64, bool) {
	if trc == 0 {
		return srgbToLinear, true
	}
	switch trc {
	case pixfmts.ColorTransferCharacteristicBT709,
		pixfmts.ColorTransferCharacteristicIEC61966_2_1,
		pixfmts.ColorTransferCharacteristicSMPTE170M:
		return srgbToLinear, true
	case pixfmts.ColorTransferCharacteristicGamma22:
		return powerCurve(2.2), true
	case pixfmts.ColorTransferCharacteristicGamma28:
		return powerCurve(2.8), true
	case pixfmts.ColorTransferCharacteristicLinear:
		return func(c float64) float64 { return c }, true
	default:
		return nil, false
	}
}

func srgbToLinear(c float64) float64 {
	if c > 10.0/255.0 {
		return math.Pow((c+0.055)/1.055, 2.4)
	}
	return c / 12.92
}

// powerCurve keeps the sign so out of gamut negatives stay finite.
func powerCurve(gamma float64) func(float64) float64 {
	return func(c float64) float64 {
		return math.Copysign(math.Pow(math.Abs(c), gamma), c)
	}
}

// toLab converts one Y'CbCr sample.
func (c *colorConverter) toLab(y, u, v uint16) lab {
	luma := (float64(y) - c.yOffset) * c.yScale
	var cb, cr float64
	if !c.mono {
		cb = (float64(u) - c.cOffset) * c.cScale
		cr = (float64(v) - c.cOffset) * c.cScale
	}

	r := luma + c.crToR*cr
	g := luma - c.cbToG*cb - c.crToG*cr
	b := luma + c.cbToB*cb
	return rgbToLab(c.linearize(r), c.linearize(g), c.linearize(b))
}

// rowDeltaE sums the ΔE of one luma row.
func (c *colorConverter) rowDeltaE(fa, fb *video.Frame, y, ssx, ssy int) float64 {
	ya, yb := fa.Plane(0).Row(y), fb.Plane(0).Row(y)
	var ua, va, ub, vb []uint16
	if !c.mono {
		cy := y >> ssy
		ua, va = fa.Plane(1).Row(cy), fa.Plane(2).Row(cy)
		ub, vb = fb.Plane(1).Row(cy), fb.Plane(2).Row(cy)
	}

	var sum float64
	for x := range ya {
		var u1, v1, u2, v2 uint16
		if !c.mono {
			cx := x >> ssx
			u1, v1, u2, v2 = ua[cx], va[cx], ub[cx], vb[cx]
		}
		if ya[x] == yb[x] && u1 == u2 && v1 == v2 {
			continue
		}
		sum += deltaE2000(c.toLab(ya[x], u1, v1), c.toLab(yb[x], u2, v2))
	}
	return sum
}

// D65 reference white.
const (
	whiteX = 0.95047
	whiteZ = 1.08883

	labEpsilon = 216.0 / 24389.0
	labKappa   = 24389.0 / 27.0
)

// rgbToLab converts linear-light BT.709 primaries to L*a*b*.
func rgbToLab(r, g, b float64) lab {
	x := 0.4124564390896921*r + 0.357576077643909*g + 0.18043748326639894*b
	y := 0.21267285140562248*r + 0.715152155287818*g + 0.07217499330655958*b
	z := 0.019333895582329317*r + 0.119192025881303*g + 0.9503040785363677*b

	fx, fy, fz := labF(x/whiteX), labF(y), labF(z/whiteZ)
	return lab{
		l: 116*fy - 16,
		a: 500 * (fx - fy),
		b: 200 * (fy - fz),
	}
}

func labF(t float64) float64 {
	if t > labEpsilon {
		return math.Cbrt(t)
	}
	return (labKappa*t + 16) / 116
}

// deltaE2000 is the CIEDE2000 difference (Sharma, Wu and Dalal 2005) with
// the kL, kC and kH weights above.
func deltaE2000(c1, c2 lab) float64 {
	return deltaE2000K(c1, c2, ciedeKL, ciedeKC, ciedeKH)
}

func deltaE2000K(c1, c2 lab, kl, kc, kh float64) float64 {
	const pow25to7 = 6103515625.0 // 25^7

	cab1 := math.Hypot(c1.a, c1.b)
	cab2 := math.Hypot(c2.a, c2.b)
	cabMean7 := math.Pow((cab1+cab2)/2, 7)
	g := 0.5 * (1 - math.Sqrt(cabMean7/(cabMean7+pow25to7)))

	ap1, ap2 := (1+g)*c1.a, (1+g)*c2.a
	cp1, cp2 := math.Hypot(ap1, c1.b), math.Hypot(ap2, c2.b)
	hp1, hp2 := hueAngle(c1.b, ap1), hueAngle(c2.b, ap2)

	dLp := c2.l - c1.l
	dCp := cp2 - cp1

	cpProduct := cp1 * cp2
	var dhp float64
	if cpProduct != 0 {
		dhp = hp2 - hp1
		if dhp > 180 {
			dhp -= 360
		} else if dhp < -180 {
			dhp += 360
		}
	}
	dHp := 2 * math.Sqrt(cpProduct) * math.Sin(degToRad(dhp/2))

	lpMean := (c1.l + c2.l) / 2
	cpMean := (cp1 + cp2) / 2
	hpMean := hp1 + hp2
	if cpProduct != 0 {
		hpMean /= 2
		if math.Abs(hp1-hp2) > 180 {
			if hp1+hp2 < 360 {
				hpMean += 180
			} else {
				hpMean -= 180
			}
		}
	}

	t := 1 - 0.17*math.Cos(degToRad(hpMean-30)) +
		0.24*math.Cos(degToRad(2*hpMean)) +
		0.32*math.Cos(degToRad(3*hpMean+6)) -
		0.20*math.Cos(degToRad(4*hpMean-63))
	dTheta := 30 * math.Exp(-math.Pow((hpMean-275)/25, 2))
	cpMean7 := math.Pow(cpMean, 7)
	rc := 2 * math.Sqrt(cpMean7/(cpMean7+pow25to7))
	lm := (lpMean - 50) * (lpMean - 50)
	sl := 1 + 0.015*lm/math.Sqrt(20+lm)
	sc := 1 + 0.045*cpMean
	sh := 1 + 0.015*cpMean*t
	rt := -math.Sin(degToRad(2*dTheta)) * rc

	lTerm := dLp / (kl * sl)
	cTerm := dCp / (kc * sc)
	hTerm := dHp / (kh * sh)
	return math.Sqrt(lTerm*lTerm + cTerm*cTerm + hTerm*hTerm + rt*cTerm*hTerm)
}

// hueAngle is atan2(b, a') in degrees within [0, 360).
func hueAngle(b, ap float64) float64 {
	if b == 0 && ap == 0 {
		return 0
	}
	h := math.Atan2(b, ap) * 180 / math.Pi
	if h < 0 {
		h += 360
	}
	return h
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }
