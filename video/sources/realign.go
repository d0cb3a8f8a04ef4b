package sources

import "github.com/GreatValueCreamSoda/yuvmetrics/video"

// realignTaps is a 6-tap Lanczos-derived half-sample shift, in 1/128 units,
// applied at offsets -2..+3.
var realignTaps = [6]int{4, -17, 114, 35, -9, 1}

// realignChroma shifts a chroma plane half a sample to the right so that
// horizontally co-sited chroma lines up with the centred siting the
// metrics assume. Out of range taps are clamped to the row's edges.
//
// scratch must hold at least one row of samples.
func realignChroma(p *video.Plane, scratch []uint16) {
	if p.Empty() {
		return
	}

	peak := p.SampleMax()
	last := p.Width - 1
	in := scratch[:p.Width]

	for y := range p.Height {
		out := p.Row(y)
		copy(in, out)

		for x := range out {
			sum := 64
			for k, tap := range realignTaps {
				sx := min(max(x+k-2, 0), last)
				sum += tap * int(in[sx])
			}
			out[x] = uint16(min(max(sum>>7, 0), peak))
		}
	}
}
