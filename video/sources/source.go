package sources

import (
	"errors"
	"fmt"
	"io"
	"os"

	pixfmts "github.com/GreatValueCreamSoda/gopixfmts"
	"github.com/sirupsen/logrus"

	"github.com/GreatValueCreamSoda/yuvmetrics/internal/logger"
	"github.com/GreatValueCreamSoda/yuvmetrics/internal/telemetry"
	"github.com/GreatValueCreamSoda/yuvmetrics/video"
)

const formatName = "y4m"

// Option tunes how a Y4MSource decodes its stream.
type Option func(*options)

type options struct {
	realignChroma bool
	transfer      *pixfmts.ColorTransferCharacteristic
	matrix        *pixfmts.ColorSpace
	logger        logrus.FieldLogger
}

// WithChromaRealignment toggles the half-sample shift applied to
// horizontally co-sited chroma. Enabled by default.
func WithChromaRealignment(enabled bool) Option {
	return func(o *options) { o.realignChroma = enabled }
}

// WithColorTransfer overrides the transfer characteristic, which Y4M cannot
// declare itself.
func WithColorTransfer(trc pixfmts.ColorTransferCharacteristic) Option {
	return func(o *options) { o.transfer = &trc }
}

// WithColorMatrix overrides the YUV matrix, BT.709 unless set.
func WithColorMatrix(matrix pixfmts.ColorSpace) Option {
	return func(o *options) { o.matrix = &matrix }
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.logger = l }
}

// frameSpan locates one frame's payload. err is set when the frame cannot be
// decoded; the error is reported when the frame is reached. unchecked spans
// were placed arithmetically and their FRAME marker is verified on decode.
type frameSpan struct {
	payload   int64
	err       error
	unchecked bool
}

// bareMarker is the FRAME line written by virtually every encoder.
const bareMarker = frameMagic + "\n"

// Y4MSource reads frames from a YUV4MPEG2 stream.
//
// The stream is indexed when it is opened so the number of frames is known
// up front and Seek is a constant time operation. When the first frame uses
// a bare FRAME marker the offsets are computed from the frame size and each
// marker is checked as its frame is decoded. Frames are decoded lazily, one
// per call to Next.
type Y4MSource struct {
	name   string
	r      io.ReaderAt
	closer io.Closer
	closed bool

	size   int64
	header video.VideoHeader
	frames []frameSpan
	next   int

	// verified counts the leading frames whose markers have been checked.
	verified int

	raw     []byte
	scratch []uint16

	opts options
	log  logrus.FieldLogger
}

// Open opens the Y4M file at path.
//
// Fails with video.ErrIO when the file cannot be read and with
// video.ErrHeaderParse when the stream header is malformed.
func Open(path string, opts ...Option) (*Y4MSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, video.NewError(video.ErrIO, "open", path, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, video.NewError(video.ErrIO, "stat", path, err)
	}

	source, err := NewReader(file, stat.Size(), path, opts...)
	if err != nil {
		file.Close()
		return nil, err
	}
	source.closer = file
	return source, nil
}

// NewReader reads a Y4M stream of size bytes from r. name is used in errors
// and logs only.
func NewReader(r io.ReaderAt, size int64, name string, opts ...Option) (
	*Y4MSource, error) {
	s := &Y4MSource{name: name, r: r, size: size}
	s.opts.realignChroma = true
	for _, opt := range opts {
		opt(&s.opts)
	}
	s.log = logger.WithComponent(logger.OrDiscard(s.opts.logger), "y4m")

	line, headerLen, err := readHeaderLine(io.NewSectionReader(r, 0, size))
	if err != nil {
		if errors.Is(err, errNoTerminator) ||
			errors.Is(err, errMissingSignature) {
			return nil, video.NewError(video.ErrHeaderParse, "open", name, err)
		}
		return nil, video.NewError(video.ErrIO, "open", name, err)
	}

	if s.header, err = parseHeader(line); err != nil {
		return nil, video.NewError(video.ErrHeaderParse, "open", name, err)
	}
	if s.opts.transfer != nil {
		s.header.ColorTransfer = *s.opts.transfer
	}
	if s.opts.matrix != nil {
		s.header.ColorMatrix = *s.opts.matrix
	}
	if err := s.header.Validate(); err != nil {
		return nil, video.NewError(video.ErrHeaderParse, "open", name, err)
	}

	if err := s.index(int64(headerLen)); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"source":     name,
		"width":      s.header.Width,
		"height":     s.header.Height,
		"chroma":     s.header.ChromaSampling.String(),
		"siting":     s.header.ChromaPosition.String(),
		"depth":      s.header.BitDepth,
		"fps":        s.header.FrameRate.Float64(),
		"frames":     len(s.frames),
		"realign":    s.realigns(),
		"full_range": s.header.FullRange(),
	}).Debug("opened y4m source")

	return s, nil
}

// index records where each payload starts. Streams whose first marker is
// bare are laid out arithmetically; anything else is walked marker by marker.
func (s *Y4MSource) index(offset int64) error {
	if offset >= s.size {
		return nil
	}
	line, err := s.readFrameLine(offset, s.size)
	if err != nil || line != len(bareMarker) {
		return s.walk(offset)
	}

	stride := int64(len(bareMarker) + s.header.FrameSize())
	full := (s.size - offset) / stride
	for n := range full {
		s.frames = append(s.frames, frameSpan{
			payload:   offset + n*stride + int64(len(bareMarker)),
			unchecked: n > 0,
		})
	}
	return s.walk(offset + full*stride)
}

// walk reads FRAME markers from offset to the end of the stream. A truncated
// or corrupt frame ends the walk and is kept as a failing entry so the error
// surfaces when the frame is decoded.
func (s *Y4MSource) walk(offset int64) error {
	frameSize := int64(s.header.FrameSize())
	for offset < s.size {
		line, err := s.readFrameLine(offset, s.size)
		if err != nil {
			if !errors.Is(err, video.ErrDecode) {
				return err
			}
			s.frames = append(s.frames, frameSpan{payload: offset, err: err})
			return nil
		}

		payload := offset + int64(line)
		if payload+frameSize > s.size {
			s.frames = append(s.frames, frameSpan{
				payload: payload,
				err: video.NewError(video.ErrDecode, "next", s.name,
					fmt.Errorf("frame %d has %d of %d bytes: %w",
						len(s.frames), s.size-payload, frameSize,
						io.ErrUnexpectedEOF)),
			})
			return nil
		}

		s.frames = append(s.frames, frameSpan{payload: payload})
		offset = payload + frameSize
	}
	return nil
}

// verifyMarker checks the FRAME marker in front of an arithmetically placed
// frame. A marker carrying parameters shifts every later frame, so the rest
// of the stream is walked again from there.
func (s *Y4MSource) verifyMarker(index int) error {
	offset := s.frames[index].payload - int64(len(bareMarker))
	var marker [len(bareMarker)]byte
	if n, err := s.r.ReadAt(marker[:], offset); n < len(marker) {
		return video.NewError(video.ErrIO, "next", s.name, err)
	}
	if string(marker[:]) == bareMarker {
		s.frames[index].unchecked = false
		return nil
	}

	before := len(s.frames)
	s.frames = s.frames[:index]
	if err := s.walk(offset); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"source": s.name,
		"frame":  index,
		"before": before,
		"after":  len(s.frames),
	}).Debug("re-indexed y4m frames after a non-bare marker")
	return nil
}

// readFrameLine validates the FRAME line starting at offset and returns its
// length including the newline.
func (s *Y4MSource) readFrameLine(offset, size int64) (int, error) {
	buf := make([]byte, min(int64(maxHeaderLen), size-offset))
	n, err := s.r.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, video.NewError(video.ErrIO, "index", s.name, err)
	}
	buf = buf[:n]

	end := -1
	for i, b := range buf {
		if b == '\n' {
			end = i
			break
		}
	}
	if end < 0 {
		cause := io.ErrUnexpectedEOF
		if len(buf) >= maxHeaderLen {
			cause = errNoTerminator
		}
		return 0, video.NewError(video.ErrDecode, "next", s.name,
			fmt.Errorf("frame %d header: %w", len(s.frames), cause))
	}

	if err := parseFrameLine(buf[:end]); err != nil {
		return 0, video.NewError(video.ErrDecode, "next", s.name,
			fmt.Errorf("frame %d: %w", len(s.frames), err))
	}
	return end + 1, nil
}

func (s *Y4MSource) realigns() bool {
	return s.opts.realignChroma &&
		s.header.ChromaPosition == video.ChromaPositionVertical
}

// Header returns the parsed stream header.
func (s *Y4MSource) Header() video.VideoHeader { return s.header }

// NumFrames is the number of frames in the stream, counting a trailing
// truncated frame.
func (s *Y4MSource) NumFrames() int { return len(s.frames) }

// Name is the path or name the source was opened with.
func (s *Y4MSource) Name() string { return s.name }

// Next decodes the next frame into frame, which must have been allocated for
// this source's header. It returns io.EOF after the last frame and an error
// matching video.ErrDecode for truncated or corrupt frame data.
func (s *Y4MSource) Next(frame *video.Frame) error {
	if s.closed {
		return video.NewError(video.ErrIO, "next", s.name,
			errors.New("source is closed"))
	}
	if s.next >= len(s.frames) {
		return io.EOF
	}

	if err := s.decode(s.next, frame); err != nil {
		telemetry.RecordDecodeError(formatName)
		return err
	}
	telemetry.RecordFrameDecoded(formatName)
	s.next++
	return nil
}

func (s *Y4MSource) decode(index int, frame *video.Frame) error {
	if err := s.checkFrame(frame); err != nil {
		return err
	}

	// Markers are verified in stream order so a parameterised marker is
	// found before any frame placed after it is trusted.
	for s.verified <= index && s.verified < len(s.frames) {
		if s.frames[s.verified].unchecked {
			if err := s.verifyMarker(s.verified); err != nil {
				return err
			}
		}
		s.verified++
	}
	if index >= len(s.frames) {
		return video.NewError(video.ErrDecode, "next", s.name,
			fmt.Errorf("frame %d: %w", index, io.ErrUnexpectedEOF))
	}

	span := s.frames[index]
	if span.err != nil {
		return span.err
	}

	// The buffers are sized on first use, once the stream is known to hold
	// a full frame.
	if s.raw == nil {
		s.raw = make([]byte, s.header.FrameSize())
		cw, _ := s.header.PlaneDimensions(1)
		s.scratch = make([]uint16, cw)
	}

	n, err := s.r.ReadAt(s.raw, span.payload)
	if n < len(s.raw) {
		if err == nil || errors.Is(err, io.EOF) {
			return video.NewError(video.ErrDecode, "next", s.name,
				fmt.Errorf("frame %d: %w", index, io.ErrUnexpectedEOF))
		}
		return video.NewError(video.ErrIO, "next", s.name, err)
	}

	offset := 0
	for p, plane := range frame.Planes() {
		size := plane.Width * plane.Height * plane.SampleBytes()
		if err := plane.ReadRaw(s.raw[offset : offset+size]); err != nil {
			return video.NewError(video.ErrDecode, "next", s.name, err)
		}
		if p > 0 && s.realigns() {
			realignChroma(plane, s.scratch)
		}
		offset += size
	}

	frame.Index = index
	return nil
}

func (s *Y4MSource) checkFrame(frame *video.Frame) error {
	for p, plane := range frame.Planes() {
		w, h := s.header.PlaneDimensions(p)
		if plane.Width != w || plane.Height != h ||
			plane.BitDepth != s.header.BitDepth {
			return video.Errorf(video.ErrDimensionMismatch, "next",
				"frame plane %d is %dx%d@%d, stream needs %dx%d@%d", p,
				plane.Width, plane.Height, plane.BitDepth, w, h,
				s.header.BitDepth)
		}
	}
	return nil
}

// Seek positions the source so the next call to Next returns frame index.
// Seeking to NumFrames is allowed and makes Next return io.EOF.
func (s *Y4MSource) Seek(index int) error {
	if index < 0 || index > len(s.frames) {
		return video.NewError(video.ErrDecode, "seek", s.name,
			fmt.Errorf("frame %d outside [0, %d]: %w", index, len(s.frames),
				io.ErrUnexpectedEOF))
	}
	s.next = index
	return nil
}

// Close releases the underlying file. It is safe to call more than once.
func (s *Y4MSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

var _ video.Source = (*Y4MSource)(nil)
