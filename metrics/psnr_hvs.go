package metrics

import (
	"math"

	"github.com/GreatValueCreamSoda/yuvmetrics/video"
)

// PSNRHVS is PSNR computed on 8x8 DCT coefficients weighted by a contrast
// sensitivity function, with between-coefficient contrast masking.
//
// Blocks are visited on a 7 sample grid, so neighbouring blocks overlap by
// one row and column, and blocks that would cross the right or bottom edge
// are skipped. A plane narrower or shorter than a block is scored as one
// block padded by repeating its last row and column.
type PSNRHVS struct{}

func (PSNRHVS) Name() string                  { return "psnrhvs" }
func (PSNRHVS) Kind() Kind                    { return KindPlanar }
func (PSNRHVS) Check(video.VideoHeader) error { return nil }

// ComputeFrame records the normalised weighted error of each plane.
func (PSNRHVS) ComputeFrame(h video.VideoHeader, a, b *video.Frame) (
	FrameSample, error) {
	if err := checkPair(h, a, b); err != nil {
		return FrameSample{}, err
	}

	s := FrameSample{Index: a.Index}
	err := forEachPlane(h, func(p int) error {
		s.Plane[p] = planePSNRHVS(a.Plane(p), b.Plane(p), hvsTables[p])
		return nil
	})
	return s, err
}

func (PSNRHVS) FrameResult(h video.VideoHeader, s FrameSample) Result {
	return hvsResult(h, s.Plane)
}

// VideoResult averages the linear errors before converting to decibels.
func (PSNRHVS) VideoResult(h video.VideoHeader, samples []FrameSample) Result {
	return hvsResult(h, meanPlanes(samples))
}

func hvsResult(h video.VideoHeader, v [3]float64) Result {
	return PlanarResult(PlaneResult{
		Y:   hvsDecibels(v[0]),
		U:   hvsDecibels(v[1]),
		V:   hvsDecibels(v[2]),
		Avg: hvsDecibels(weightedAverage(h, v[0], v[1], v[2])),
	})
}

func hvsDecibels(score float64) float64 { return -10 * math.Log10(score) }

// Contrast sensitivity of each DCT coefficient at the point of
// transparency, for luma and for 4:2:0 chroma.
var csfY = [8][8]float64{
	{1.6193873005, 2.2901594831, 2.08509755623, 1.48366094411, 1.00227514334, 0.678296995242, 0.466224900598, 0.3265091542},
	{2.2901594831, 1.94321815382, 2.04793073064, 1.68731108984, 1.2305666963, 0.868920337363, 0.61280991668, 0.436405793551},
	{2.08509755623, 2.04793073064, 1.34329019223, 1.09205635862, 0.875748795257, 0.670882927016, 0.501731932449, 0.372504254596},
	{1.48366094411, 1.68731108984, 1.09205635862, 0.772819797575, 0.605636379554, 0.48309405692, 0.380429446972, 0.295774038565},
	{1.00227514334, 1.2305666963, 0.875748795257, 0.605636379554, 0.448996256676, 0.352889268808, 0.283006984131, 0.226951348204},
	{0.678296995242, 0.868920337363, 0.670882927016, 0.48309405692, 0.352889268808, 0.27032073436, 0.215017739696, 0.17408067321},
	{0.466224900598, 0.61280991668, 0.501731932449, 0.380429446972, 0.283006984131, 0.215017739696, 0.168869545842, 0.136153931001},
	{0.3265091542, 0.436405793551, 0.372504254596, 0.295774038565, 0.226951348204, 0.17408067321, 0.136153931001, 0.109083846276},
}

var csfCb420 = [8][8]float64{
	{1.91113096927, 2.46074210438, 1.18284184739, 1.14982565193, 1.05017074788, 0.898018824055, 0.74725392039, 0.615105596242},
	{2.46074210438, 1.58529308355, 1.21363250036, 1.38190029285, 1.33100189972, 1.17428548929, 0.996404342439, 0.830890433625},
	{1.18284184739, 1.21363250036, 0.978712413627, 1.02624506078, 1.03145147362, 0.960060382087, 0.849823426169, 0.731221236837},
	{1.14982565193, 1.38190029285, 1.02624506078, 0.861317501629, 0.801821139099, 0.751437590932, 0.685398513368, 0.608694761374},
	{1.05017074788, 1.33100189972, 1.03145147362, 0.801821139099, 0.676555426187, 0.605503172737, 0.55002013668, 0.495804539034},
	{0.898018824055, 1.17428548929, 0.960060382087, 0.751437590932, 0.605503172737, 0.514674450957, 0.454353482512, 0.407050308965},
	{0.74725392039, 0.996404342439, 0.849823426169, 0.685398513368, 0.55002013668, 0.454353482512, 0.389234902883, 0.342353999733},
	{0.615105596242, 0.830890433625, 0.731221236837, 0.608694761374, 0.495804539034, 0.407050308965, 0.342353999733, 0.295530605237},
}

var csfCr420 = [8][8]float64{
	{2.03871978502, 2.62502345193, 1.26180942886, 1.11019789803, 1.01397751469, 0.867069376285, 0.721500455585, 0.593906509971},
	{2.62502345193, 1.69112867013, 1.17180569821, 1.3342742857, 1.28513006198, 1.13381474809, 0.962064122248, 0.802254508198},
	{1.26180942886, 1.17180569821, 0.944981930573, 0.990876405848, 0.995903384143, 0.926972725286, 0.820534991409, 0.706020324706},
	{1.11019789803, 1.3342742857, 0.990876405848, 0.831632933426, 0.77418706195, 0.725539939514, 0.661776842059, 0.587716619023},
	{1.01397751469, 1.28513006198, 0.995903384143, 0.77418706195, 0.653238524286, 0.584635025748, 0.531064164893, 0.478717061273},
	{0.867069376285, 1.13381474809, 0.926972725286, 0.725539939514, 0.584635025748, 0.496936637883, 0.438694579826, 0.393021669543},
	{0.721500455585, 0.962064122248, 0.820534991409, 0.661776842059, 0.531064164893, 0.438694579826, 0.375820256136, 0.330555063063},
	{0.593906509971, 0.802254508198, 0.706020324706, 0.587716619023, 0.478717061273, 0.393021669543, 0.330555063063, 0.285345396658},
}

// csfMultiplier scales the CSF into the PSNR-HVS-M masking table once
// squared.
const csfMultiplier = 0.3885746225901003

type hvsTable struct {
	csf  [8][8]float64
	mask [8][8]float64
}

var hvsTables = [3]*hvsTable{
	newHVSTable(csfY), newHVSTable(csfCb420), newHVSTable(csfCr420),
}

func newHVSTable(csf [8][8]float64) *hvsTable {
	t := &hvsTable{csf: csf}
	for i := range 8 {
		for j := range 8 {
			m := csf[i][j] * csfMultiplier
			t.mask[i][j] = m * m
		}
	}
	return t
}

const hvsStep = 7

// planePSNRHVS returns the mean squared CSF weighted error of the plane's
// DCT coefficients, normalised by the squared sample peak.
func planePSNRHVS(a, b *video.Plane, t *hvsTable) float64 {
	if a.Width == 0 || a.Height == 0 {
		return 0
	}

	var (
		result float64
		blocks int
		blockA [64]int64
		blockB [64]int64
	)

	score := func(x, y int) {
		loadBlock(a, x, y, &blockA)
		loadBlock(b, x, y, &blockB)
		result += blockError(&blockA, &blockB, t)
		blocks++
	}

	for y := 0; y < a.Height-hvsStep; y += hvsStep {
		for x := 0; x < a.Width-hvsStep; x += hvsStep {
			score(x, y)
		}
	}
	if blocks == 0 {
		score(0, 0)
	}

	peak := float64(a.SampleMax())
	return result / float64(blocks*64) / (peak * peak)
}

// loadBlock copies the 8x8 block at (x, y), repeating the last row and
// column where the block overhangs the plane.
func loadBlock(p *video.Plane, x, y int, block *[64]int64) {
	for i := range 8 {
		row := p.Row(min(y+i, p.Height-1))
		for j := range 8 {
			block[i*8+j] = int64(row[min(x+j, p.Width-1)])
		}
	}
}

// blockError transforms both blocks in place and returns their summed
// squared CSF weighted error after contrast masking.
func blockError(blockA, blockB *[64]int64, t *hvsTable) float64 {
	gvarA := blockVarianceRatio(blockA)
	gvarB := blockVarianceRatio(blockB)

	fdct8x8(blockA)
	fdct8x8(blockB)

	var maskA, maskB float64
	for i := range 8 {
		j0 := 0
		if i == 0 {
			j0 = 1
		}
		for j := j0; j < 8; j++ {
			ca, cb := float64(blockA[i*8+j]), float64(blockB[i*8+j])
			maskA += ca * ca * t.mask[i][j]
			maskB += cb * cb * t.mask[i][j]
		}
	}
	maskA = math.Sqrt(maskA*gvarA) / 32
	maskB = math.Sqrt(maskB*gvarB) / 32
	mask := max(maskA, maskB)

	var sum float64
	for i := range 8 {
		for j := range 8 {
			diff := blockA[i*8+j] - blockB[i*8+j]
			if diff < 0 {
				diff = -diff
			}
			err := float64(diff)
			if i != 0 || j != 0 {
				err = max(0, err-mask/t.mask[i][j])
			}
			weighted := err * t.csf[i][j]
			sum += weighted * weighted
		}
	}
	return sum
}

// blockVarianceRatio returns the summed variance of the four 4x4 quadrants
// over the variance of the whole 8x8 block. Flat blocks return 0.
func blockVarianceRatio(block *[64]int64) float64 {
	var gmean float64
	var means [4]float64
	for i := range 8 {
		for j := range 8 {
			v := float64(block[i*8+j])
			gmean += v
			means[quadrant(i, j)] += v
		}
	}
	gmean /= 64
	for q := range means {
		means[q] /= 16
	}

	var gvar float64
	var vars [4]float64
	for i := range 8 {
		for j := range 8 {
			v := float64(block[i*8+j])
			q := quadrant(i, j)
			gvar += (v - gmean) * (v - gmean)
			vars[q] += (v - means[q]) * (v - means[q])
		}
	}
	gvar *= 64.0 / 63.0
	for q := range vars {
		vars[q] *= 16.0 / 15.0
	}
	if gvar > 0 {
		gvar = (vars[0] + vars[1] + vars[2] + vars[3]) / gvar
	}
	return gvar
}

func quadrant(i, j int) int { return ((i & 12) >> 2) + ((j & 12) >> 1) }

// fdct8x8 is the daala integer 8x8 forward DCT, applied in place. Columns
// are transformed into a transposed scratch block, then rows.
func fdct8x8(data *[64]int64) {
	var z [64]int64
	for i := range 8 {
		fdct8(z[8*i:], data[i:])
	}
	for i := range 8 {
		fdct8(data[8*i:], z[i:])
	}
}

// fdct8 transforms eight inputs spaced 8 apart in x into eight consecutive
// outputs in y.
func fdct8(y, x []int64) {
	var t, th [8]int64
	t[0] = x[0]
	t[4] = x[1*8]
	t[2] = x[2*8]
	t[6] = x[3*8]
	t[7] = x[4*8]
	t[3] = x[5*8]
	t[5] = x[6*8]
	t[1] = x[7*8]

	t[1] = t[0] - t[1]
	th[1] = dctHalf(t[1])
	t[0] -= th[1]
	t[4] += t[5]
	th[4] = dctHalf(t[4])
	t[5] -= th[4]
	t[3] = t[2] - t[3]
	t[2] -= dctHalf(t[3])
	t[6] += t[7]
	th[6] = dctHalf(t[6])
	t[7] = th[6] - t[7]

	// 4-point type-II DCT
	t[0] += th[6]
	t[6] = t[0] - t[6]
	t[2] = th[4] - t[2]
	t[4] = t[2] - t[4]

	// 2-point type-II DCT
	t[0] -= (t[4]*13573 + 16384) >> 15
	t[4] += (t[0]*11585 + 8192) >> 14
	t[0] -= (t[4]*13573 + 16384) >> 15

	// 2-point type-IV DST
	t[6] -= (t[2]*21895 + 16384) >> 15
	t[2] += (t[6]*15137 + 8192) >> 14
	t[6] -= (t[2]*21895 + 16384) >> 15

	// 4-point type-IV DST
	t[3] += (t[5]*19195 + 16384) >> 15
	t[5] += (t[3]*11585 + 8192) >> 14
	t[3] -= (t[5]*7489 + 4096) >> 13
	t[7] = dctHalf(t[5]) - t[7]
	t[5] -= t[7]
	t[3] = th[1] - t[3]
	t[1] -= t[3]
	t[7] += (t[1]*3227 + 16384) >> 15
	t[1] -= (t[7]*6393 + 16384) >> 15
	t[7] += (t[1]*3227 + 16384) >> 15
	t[5] += (t[3]*2485 + 4096) >> 13
	t[3] -= (t[5]*18205 + 16384) >> 15
	t[5] += (t[3]*2485 + 4096) >> 13

	copy(y[:8], t[:])
}

// dctHalf divides by two rounding towards zero.
func dctHalf(a int64) int64 { return (int64(uint64(a)>>63) + a) >> 1 }
