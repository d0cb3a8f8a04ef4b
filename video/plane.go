package video

import "fmt"

// Plane is a 2D grid of samples for one colour channel.
//
// Samples are stored widened to uint16 whatever the bit depth so every
// metric shares one code path. Stride is in samples and is at least Width.
// A Plane is never mutated once a decode step has returned it, so it may be
// read from several goroutines at once.
type Plane struct {
	Width, Height int
	Stride        int
	BitDepth      int
	Data          []uint16
}

// NewPlane allocates a tightly packed plane.
func NewPlane(width, height, bitDepth int) Plane {
	return Plane{
		Width:    width,
		Height:   height,
		Stride:   width,
		BitDepth: bitDepth,
		Data:     make([]uint16, width*height),
	}
}

// Empty reports whether the plane holds no samples, as the chroma planes of
// a monochrome stream do.
func (p *Plane) Empty() bool { return p.Width == 0 || p.Height == 0 }

// Row returns the samples of row y without the stride padding.
func (p *Plane) Row(y int) []uint16 {
	start := y * p.Stride
	return p.Data[start : start+p.Width]
}

// SampleMax is the theoretical peak value for the plane's bit depth.
func (p *Plane) SampleMax() int { return (1 << p.BitDepth) - 1 }

// SampleBytes is the on-disk width of one sample.
func (p *Plane) SampleBytes() int {
	if p.BitDepth > 8 {
		return 2
	}
	return 1
}

// SameShape reports whether two planes can be compared sample by sample.
func (p *Plane) SameShape(o *Plane) bool {
	return p.Width == o.Width && p.Height == o.Height &&
		p.BitDepth == o.BitDepth
}

// ReadRaw fills the plane from packed raw bytes, one or two bytes per sample
// (little-endian), clamping each sample to the bit depth's range.
func (p *Plane) ReadRaw(src []byte) error {
	bytes := p.SampleBytes()
	if len(src) < p.Width*p.Height*bytes {
		return fmt.Errorf("raw plane needs %d bytes, have %d",
			p.Width*p.Height*bytes, len(src))
	}

	peak := uint16(p.SampleMax())
	for y := range p.Height {
		row := p.Row(y)
		in := src[y*p.Width*bytes:]
		if bytes == 1 {
			for x := range row {
				row[x] = uint16(in[x])
			}
			continue
		}
		for x := range row {
			row[x] = min(uint16(in[2*x])|uint16(in[2*x+1])<<8, peak)
		}
	}
	return nil
}
