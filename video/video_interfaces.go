package video

import "errors"

// Frame is one decoded picture: a Y, U and V plane plus the position of the
// picture in its source. Monochrome frames carry empty U and V planes.
type Frame struct {
	Index  int
	planes [3]Plane
}

// NewFrame allocates a frame whose planes match the header's geometry.
func NewFrame(h VideoHeader) *Frame {
	var f Frame
	for i := range f.planes {
		w, ht := h.PlaneDimensions(i)
		f.planes[i] = NewPlane(w, ht, h.BitDepth)
	}
	return &f
}

// FrameFromPlanes builds a frame from existing planes. The planes become
// owned by the frame.
func FrameFromPlanes(index int, y, u, v Plane) (*Frame, error) {
	if y.Empty() {
		return nil, errors.New("luma plane must not be empty")
	}
	if u.Width != v.Width || u.Height != v.Height {
		return nil, errors.New("chroma planes must share dimensions")
	}
	return &Frame{Index: index, planes: [3]Plane{y, u, v}}, nil
}

// Plane returns plane 0 (Y), 1 (U) or 2 (V), or nil for other indices.
func (f *Frame) Plane(i int) *Plane {
	if i < 0 || i > 2 {
		return nil
	}
	return &f.planes[i]
}

// Planes returns pointers to all three planes.
func (f *Frame) Planes() [3]*Plane {
	return [3]*Plane{&f.planes[0], &f.planes[1], &f.planes[2]}
}

// Source is a finite, restartable sequence of decoded frames.
//
// Next fills the caller's frame with the next picture and returns io.EOF
// once the sequence is exhausted. Seek repositions the sequence so the next
// call to Next returns the frame at index. A Source is not safe for
// concurrent use, but separate Sources are fully independent.
type Source interface {
	Header() VideoHeader
	NumFrames() int
	Next(*Frame) error
	Seek(index int) error
	Close() error
}
