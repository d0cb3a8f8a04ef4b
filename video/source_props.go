package video

import (
	"fmt"

	pixfmts "github.com/GreatValueCreamSoda/gopixfmts"
)

// ChromaSampling describes how the U and V planes are decimated relative to
// the luma plane.
type ChromaSampling int

const (
	ChromaSampling420 ChromaSampling = iota
	ChromaSampling422
	ChromaSampling444
	ChromaSampling400
)

func (c ChromaSampling) String() string {
	switch c {
	case ChromaSampling420:
		return "4:2:0"
	case ChromaSampling422:
		return "4:2:2"
	case ChromaSampling444:
		return "4:4:4"
	case ChromaSampling400:
		return "4:0:0"
	default:
		return fmt.Sprintf("ChromaSampling(%d)", int(c))
	}
}

// Decimation returns the log2 horizontal and vertical chroma decimation. ok
// is false for 4:0:0, which carries no chroma planes.
func (c ChromaSampling) Decimation() (ssx, ssy int, ok bool) {
	switch c {
	case ChromaSampling420:
		return 1, 1, true
	case ChromaSampling422:
		return 1, 0, true
	case ChromaSampling444:
		return 0, 0, true
	default:
		return 0, 0, false
	}
}

// ChromaDimensions returns the size of a chroma plane for a luma plane of
// width by height samples.
func (c ChromaSampling) ChromaDimensions(width, height int) (int, int) {
	ssx, ssy, ok := c.Decimation()
	if !ok {
		return 0, 0
	}
	return (width + ssx) >> ssx, (height + ssy) >> ssy
}

// ChromaWeight is the relative weight of each chroma plane when planar
// scores are folded into a single average. It reflects the share of samples
// a chroma plane holds relative to luma.
func (c ChromaSampling) ChromaWeight() float64 {
	switch c {
	case ChromaSampling420:
		return 0.25
	case ChromaSampling422:
		return 0.5
	case ChromaSampling444:
		return 1.0
	default:
		return 0
	}
}

// ChromaPosition is where chroma samples sit relative to luma samples.
type ChromaPosition int

const (
	ChromaPositionUnknown ChromaPosition = iota
	// Chroma sits between the luma samples on both axes (JPEG / MPEG-1).
	ChromaPositionBilateral
	// Chroma is interpolated between luma rows (PAL-DV).
	ChromaPositionInterpolated
	// Chroma is horizontally co-sited with luma and vertically centred
	// (MPEG-2 4:2:0, all 4:2:2).
	ChromaPositionVertical
	// Chroma is co-sited with the top-left luma sample.
	ChromaPositionColocated
)

func (p ChromaPosition) String() string {
	switch p {
	case ChromaPositionBilateral:
		return "bilateral"
	case ChromaPositionInterpolated:
		return "interpolated"
	case ChromaPositionVertical:
		return "vertical"
	case ChromaPositionColocated:
		return "colocated"
	default:
		return "unknown"
	}
}

// ChromaLocation maps the position onto the libavutil enum.
func (p ChromaPosition) ChromaLocation() pixfmts.ChromaLocation {
	switch p {
	case ChromaPositionBilateral:
		return pixfmts.ChromaLocationCenter
	case ChromaPositionVertical:
		return pixfmts.ChromaLocationLeft
	case ChromaPositionColocated, ChromaPositionInterpolated:
		return pixfmts.ChromaLocationTopLeft
	default:
		return pixfmts.ChromaLocation(0)
	}
}

// Rational is a fraction used for frame rates and pixel aspect ratios.
type Rational struct {
	Num int
	Den int
}

// NewRational creates a rational number, substituting 1 for a zero
// denominator.
func NewRational(num, den int) Rational {
	if den == 0 {
		den = 1
	}
	return Rational{Num: num, Den: den}
}

// Float64 returns the floating point value, or 0 when undefined.
func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) String() string { return fmt.Sprintf("%d:%d", r.Num, r.Den) }

// Supported sample bit depths.
const (
	MinBitDepth = 8
	MaxBitDepth = 16
)

// Upper bounds on the stream geometry. A 16K 4:4:4 16-bit frame fits.
const (
	MaxDimension = 1 << 15
	MaxFrameSize = 1 << 30
)

// VideoHeader is the immutable description of a raw video stream, parsed
// once when the stream is opened.
//
// The colour fields use the libavutil enums so the header can be handed to
// tooling built on ffmpeg. A zero ColorTransfer means the stream did not
// declare one.
type VideoHeader struct {
	Width, Height  int
	BitDepth       int
	ChromaSampling ChromaSampling
	ChromaPosition ChromaPosition
	FrameRate      Rational
	PixelAspect    Rational
	Interlacing    byte

	ColorRange     pixfmts.ColorRange
	ColorMatrix    pixfmts.ColorSpace
	ColorTransfer  pixfmts.ColorTransferCharacteristic
	ChromaLocation pixfmts.ChromaLocation
}

// Validate checks the structural invariants of the header.
func (h VideoHeader) Validate() error {
	if h.Width <= 0 || h.Height <= 0 {
		return Errorf(ErrHeaderParse, "validate",
			"invalid dimensions %dx%d", h.Width, h.Height)
	}
	if h.Width > MaxDimension || h.Height > MaxDimension {
		return Errorf(ErrHeaderParse, "validate",
			"dimensions %dx%d exceed %d", h.Width, h.Height, MaxDimension)
	}
	if h.BitDepth < MinBitDepth || h.BitDepth > MaxBitDepth {
		return Errorf(ErrHeaderParse, "validate",
			"unsupported bit depth %d", h.BitDepth)
	}
	switch h.ChromaSampling {
	case ChromaSampling420, ChromaSampling422, ChromaSampling444,
		ChromaSampling400:
	default:
		return Errorf(ErrHeaderParse, "validate",
			"unknown chroma sampling %d", int(h.ChromaSampling))
	}

	var size int64
	for p := range 3 {
		w, ht := h.PlaneDimensions(p)
		size += int64(w) * int64(ht)
	}
	if size *= int64(h.SampleBytes()); size > MaxFrameSize {
		return Errorf(ErrHeaderParse, "validate",
			"frame size of %d bytes exceeds %d", size, MaxFrameSize)
	}
	return nil
}

// NumPlanes is 1 for monochrome streams and 3 otherwise.
func (h VideoHeader) NumPlanes() int {
	if h.ChromaSampling == ChromaSampling400 {
		return 1
	}
	return 3
}

// PlaneDimensions returns the width and height of plane 0 (Y), 1 (U) or
// 2 (V). Absent planes report 0x0.
func (h VideoHeader) PlaneDimensions(plane int) (int, int) {
	switch plane {
	case 0:
		return h.Width, h.Height
	case 1, 2:
		return h.ChromaSampling.ChromaDimensions(h.Width, h.Height)
	default:
		return 0, 0
	}
}

// SampleBytes is the on-disk size of one sample.
func (h VideoHeader) SampleBytes() int {
	if h.BitDepth > 8 {
		return 2
	}
	return 1
}

// SampleMax is the theoretical peak sample value, 2^depth - 1.
func (h VideoHeader) SampleMax() int { return (1 << h.BitDepth) - 1 }

// FrameSize is the byte size of one frame payload, all planes included.
// Validate bounds it to MaxFrameSize.
func (h VideoHeader) FrameSize() int {
	var size int
	for p := range 3 {
		w, ht := h.PlaneDimensions(p)
		size += w * ht
	}
	return size * h.SampleBytes()
}

// FullRange reports whether samples use the full code range.
func (h VideoHeader) FullRange() bool {
	return h.ColorRange == pixfmts.ColorRangeJPEG
}

// CanCompare checks that two streams share the geometry needed for a
// sample-by-sample comparison.
func CanCompare(a, b VideoHeader) error {
	switch {
	case a.Width != b.Width || a.Height != b.Height:
		return Errorf(ErrDimensionMismatch, "compare",
			"resolution %dx%d differs from %dx%d",
			a.Width, a.Height, b.Width, b.Height)
	case a.ChromaSampling != b.ChromaSampling:
		return Errorf(ErrDimensionMismatch, "compare",
			"chroma sampling %s differs from %s",
			a.ChromaSampling, b.ChromaSampling)
	case a.BitDepth != b.BitDepth:
		return Errorf(ErrDimensionMismatch, "compare",
			"bit depth %d differs from %d", a.BitDepth, b.BitDepth)
	}
	return nil
}
