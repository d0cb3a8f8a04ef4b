package sources

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	pixfmts "github.com/GreatValueCreamSoda/gopixfmts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GreatValueCreamSoda/yuvmetrics/video"
)

// y4mStream builds a stream whose frame n has every sample set to base+n.
func y4mStream(header string, frameSize, frames int, base byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(header + "\n")
	for n := range frames {
		buf.WriteString("FRAME\n")
		buf.Write(bytes.Repeat([]byte{base + byte(n)}, frameSize))
	}
	return buf.Bytes()
}

func openBytes(t *testing.T, data []byte, opts ...Option) (*Y4MSource, error) {
	t.Helper()
	return NewReader(bytes.NewReader(data), int64(len(data)), "mem.y4m", opts...)
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		sampling video.ChromaSampling
		position video.ChromaPosition
		depth    int
	}{
		{"default", "YUV4MPEG2 W4 H2 F25:1", video.ChromaSampling420,
			video.ChromaPositionBilateral, 8},
		{"mpeg2", "YUV4MPEG2 W4 H2 F25:1 C420mpeg2", video.ChromaSampling420,
			video.ChromaPositionVertical, 8},
		{"paldv", "YUV4MPEG2 W4 H2 F25:1 C420paldv", video.ChromaSampling420,
			video.ChromaPositionInterpolated, 8},
		{"420p10", "YUV4MPEG2 W4 H2 F25:1 C420p10", video.ChromaSampling420,
			video.ChromaPositionColocated, 10},
		{"422", "YUV4MPEG2 W4 H2 F30000:1001 C422", video.ChromaSampling422,
			video.ChromaPositionVertical, 8},
		{"444p12", "YUV4MPEG2 W4 H2 F25:1 C444p12 Ip A1:1", video.ChromaSampling444,
			video.ChromaPositionColocated, 12},
		{"mono", "YUV4MPEG2 W4 H2 F25:1 Cmono", video.ChromaSampling400,
			video.ChromaPositionUnknown, 8},
		{"mono16", "YUV4MPEG2 W4 H2 F25:1 Cmono16", video.ChromaSampling400,
			video.ChromaPositionUnknown, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := parseHeader(tt.line)
			require.NoError(t, err)
			assert.Equal(t, 4, h.Width)
			assert.Equal(t, 2, h.Height)
			assert.Equal(t, tt.sampling, h.ChromaSampling)
			assert.Equal(t, tt.position, h.ChromaPosition)
			assert.Equal(t, tt.depth, h.BitDepth)
			assert.Equal(t, tt.position.ChromaLocation(), h.ChromaLocation)
		})
	}
}

func TestParseHeaderFields(t *testing.T) {
	h, err := parseHeader(
		"YUV4MPEG2 W1920 H1080 F30000:1001 Ib A1:1 XYSCSS=420JPEG XCOLORRANGE=FULL")
	require.NoError(t, err)
	assert.Equal(t, video.Rational{Num: 30000, Den: 1001}, h.FrameRate)
	assert.Equal(t, video.Rational{Num: 1, Den: 1}, h.PixelAspect)
	assert.Equal(t, byte('b'), h.Interlacing)
	assert.Equal(t, pixfmts.ColorRangeJPEG, h.ColorRange)
	assert.True(t, h.FullRange())
}

func TestParseHeaderErrors(t *testing.T) {
	for _, line := range []string{
		"YUV4MPEG W4 H2 F25:1",
		"YUV4MPEG2 H2 F25:1",
		"YUV4MPEG2 W4 F25:1",
		"YUV4MPEG2 W4 H2",
		"YUV4MPEG2 W4 H2 F25",
		"YUV4MPEG2 W4 H2 F0:1",
		"YUV4MPEG2 Wx H2 F25:1",
		"YUV4MPEG2 W4 H2 F25:1 C411",
		"YUV4MPEG2 W4 H2 F25:1 C420q10",
		"YUV4MPEG2 W4 H2 F25:1 XCOLORRANGE=WIDE",
	} {
		t.Run(line, func(t *testing.T) {
			_, err := parseHeader(line)
			assert.Error(t, err)
		})
	}
}

func TestParseFrameLine(t *testing.T) {
	assert.NoError(t, parseFrameLine([]byte("FRAME")))
	assert.NoError(t, parseFrameLine([]byte("FRAME Ip XFOO=1")))
	assert.Error(t, parseFrameLine([]byte("FRAMES")))
	assert.Error(t, parseFrameLine([]byte("FRAM")))
}

func TestOpenZeroDimensions(t *testing.T) {
	for _, header := range []string{
		"YUV4MPEG2 W0 H2 F25:1",
		"YUV4MPEG2 W4 H0 F25:1",
	} {
		_, err := openBytes(t, []byte(header+"\n"))
		require.Error(t, err)
		assert.ErrorIs(t, err, video.ErrHeaderParse)
	}
}

func TestOpenHeaderFailures(t *testing.T) {
	tests := map[string][]byte{
		"empty":          nil,
		"bad signature":  []byte("RIFF W4 H2 F25:1\nFRAME\n"),
		"unterminated":   []byte("YUV4MPEG2 W4 H2 F25:1"),
		"bit depth 18":   []byte("YUV4MPEG2 W4 H2 F25:1 C444p18\n"),
		"bad chroma tag": []byte("YUV4MPEG2 W4 H2 F25:1 Cyuyv\n"),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := openBytes(t, data)
			assert.ErrorIs(t, err, video.ErrHeaderParse)
		})
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.y4m"))
	require.Error(t, err)
	assert.ErrorIs(t, err, video.ErrIO)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadFrames(t *testing.T) {
	data := y4mStream("YUV4MPEG2 W4 H2 F25:1 C420jpeg", 12, 3, 10)
	src, err := openBytes(t, data)
	require.NoError(t, err)
	defer src.Close()

	require.Equal(t, 3, src.NumFrames())
	frame := video.NewFrame(src.Header())
	for n := range 3 {
		require.NoError(t, src.Next(frame))
		assert.Equal(t, n, frame.Index)
		assert.Equal(t, uint16(10+n), frame.Plane(0).Row(1)[3])
		assert.Equal(t, 2, frame.Plane(1).Width)
		assert.Equal(t, 1, frame.Plane(2).Height)
		assert.Equal(t, uint16(10+n), frame.Plane(2).Row(0)[1])
	}
	assert.ErrorIs(t, src.Next(frame), io.EOF)
}

func TestFrameParametersAreIgnored(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("YUV4MPEG2 W2 H2 F25:1 C444\n")
	buf.WriteString("FRAME Ip XCUSTOM=1\n")
	buf.Write(bytes.Repeat([]byte{7}, 12))
	buf.WriteString("FRAME\n")
	buf.Write(bytes.Repeat([]byte{9}, 12))

	src, err := openBytes(t, buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, 2, src.NumFrames())

	frame := video.NewFrame(src.Header())
	require.NoError(t, src.Next(frame))
	assert.Equal(t, uint16(7), frame.Plane(1).Row(0)[0])
	require.NoError(t, src.Next(frame))
	assert.Equal(t, uint16(9), frame.Plane(2).Row(1)[1])
}

func TestSeek(t *testing.T) {
	data := y4mStream("YUV4MPEG2 W4 H4 F25:1 C444", 48, 4, 0)
	src, err := openBytes(t, data)
	require.NoError(t, err)

	frame := video.NewFrame(src.Header())
	require.NoError(t, src.Seek(2))
	require.NoError(t, src.Next(frame))
	assert.Equal(t, 2, frame.Index)
	assert.Equal(t, uint16(2), frame.Plane(0).Row(0)[0])

	require.NoError(t, src.Seek(0))
	require.NoError(t, src.Next(frame))
	assert.Equal(t, 0, frame.Index)

	require.NoError(t, src.Seek(4))
	assert.ErrorIs(t, src.Next(frame), io.EOF)

	err = src.Seek(5)
	assert.ErrorIs(t, err, video.ErrDecode)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.ErrorIs(t, src.Seek(-1), video.ErrDecode)
}

func TestTruncatedFrame(t *testing.T) {
	data := y4mStream("YUV4MPEG2 W4 H2 F25:1", 12, 2, 0)
	data = data[:len(data)-5]

	src, err := openBytes(t, data)
	require.NoError(t, err)
	require.Equal(t, 2, src.NumFrames())

	frame := video.NewFrame(src.Header())
	require.NoError(t, src.Next(frame))
	err = src.Next(frame)
	require.Error(t, err)
	assert.ErrorIs(t, err, video.ErrDecode)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestCorruptFrameMarker(t *testing.T) {
	data := y4mStream("YUV4MPEG2 W2 H2 F25:1 C444", 12, 1, 0)
	data = append(data, []byte("FRAMX\n")...)
	data = append(data, bytes.Repeat([]byte{1}, 12)...)

	src, err := openBytes(t, data)
	require.NoError(t, err)

	frame := video.NewFrame(src.Header())
	require.NoError(t, src.Next(frame))
	assert.ErrorIs(t, src.Next(frame), video.ErrDecode)
}

func TestHighBitDepth(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("YUV4MPEG2 W2 H1 F25:1 C444p10\n")
	buf.WriteString("FRAME\n")
	// 0x3FF, 0x0102, then an out of range 0xFFFF that must clamp to 1023.
	buf.Write([]byte{0xFF, 0x03, 0x02, 0x01})
	buf.Write([]byte{0xFF, 0xFF, 0x00, 0x00})
	buf.Write([]byte{0x10, 0x00, 0x20, 0x00})

	src, err := openBytes(t, buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, 10, src.Header().BitDepth)
	require.Equal(t, 12, src.Header().FrameSize())

	frame := video.NewFrame(src.Header())
	require.NoError(t, src.Next(frame))
	assert.Equal(t, []uint16{1023, 258}, frame.Plane(0).Data)
	assert.Equal(t, []uint16{1023, 0}, frame.Plane(1).Data)
	assert.Equal(t, []uint16{16, 32}, frame.Plane(2).Data)
}

func TestRealignConstantPlane(t *testing.T) {
	data := y4mStream("YUV4MPEG2 W8 H2 F25:1 C422", 32, 1, 100)
	src, err := openBytes(t, data)
	require.NoError(t, err)
	require.Equal(t, video.ChromaPositionVertical, src.Header().ChromaPosition)

	frame := video.NewFrame(src.Header())
	require.NoError(t, src.Next(frame))
	for _, s := range frame.Plane(1).Data {
		assert.Equal(t, uint16(100), s)
	}
}

func TestRealignShiftsEdges(t *testing.T) {
	p := video.NewPlane(6, 1, 8)
	copy(p.Data, []uint16{0, 0, 0, 255, 255, 255})
	realignChroma(&p, make([]uint16, 6))

	row := p.Row(0)
	assert.Equal(t, uint16(0), row[1])
	assert.Equal(t, uint16(255), row[5])
	// The step is pulled half a sample left: the sample before it rises.
	assert.Greater(t, row[2], uint16(0))
	assert.Less(t, row[2], uint16(255))
	for _, s := range row {
		assert.LessOrEqual(t, s, uint16(255))
	}
}

func TestRealignmentCanBeDisabled(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("YUV4MPEG2 W4 H1 F25:1 C422\n")
	buf.WriteString("FRAME\n")
	buf.Write([]byte{1, 2, 3, 4})
	buf.Write([]byte{0, 255})
	buf.Write([]byte{0, 255})

	src, err := openBytes(t, buf.Bytes(), WithChromaRealignment(false))
	require.NoError(t, err)
	frame := video.NewFrame(src.Header())
	require.NoError(t, src.Next(frame))
	assert.Equal(t, []uint16{0, 255}, frame.Plane(1).Data)
}

func TestMonochrome(t *testing.T) {
	data := y4mStream("YUV4MPEG2 W3 H3 F25:1 Cmono", 9, 1, 42)
	src, err := openBytes(t, data)
	require.NoError(t, err)
	require.Equal(t, 1, src.Header().NumPlanes())

	frame := video.NewFrame(src.Header())
	require.NoError(t, src.Next(frame))
	assert.True(t, frame.Plane(1).Empty())
	assert.Equal(t, uint16(42), frame.Plane(0).Row(2)[2])
}

func TestColorOverrides(t *testing.T) {
	data := y4mStream("YUV4MPEG2 W2 H2 F25:1 C444", 12, 1, 0)
	src, err := openBytes(t, data,
		WithColorTransfer(pixfmts.ColorTransferCharacteristicGamma22),
		WithColorMatrix(pixfmts.ColorSpaceBT470BG))
	require.NoError(t, err)
	assert.Equal(t, pixfmts.ColorTransferCharacteristicGamma22,
		src.Header().ColorTransfer)
	assert.Equal(t, pixfmts.ColorSpaceBT470BG, src.Header().ColorMatrix)
}

func TestFrameShapeMismatch(t *testing.T) {
	data := y4mStream("YUV4MPEG2 W4 H2 F25:1 C444", 24, 1, 0)
	src, err := openBytes(t, data)
	require.NoError(t, err)

	other := src.Header()
	other.Width = 2
	err = src.Next(video.NewFrame(other))
	assert.ErrorIs(t, err, video.ErrDimensionMismatch)
}

func TestOpenFileAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.y4m")
	require.NoError(t, os.WriteFile(path,
		y4mStream("YUV4MPEG2 W4 H2 F25:1", 12, 2, 0), 0o644))

	src, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, src.Name())
	assert.Equal(t, 2, src.NumFrames())

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())

	err = src.Next(video.NewFrame(src.Header()))
	assert.ErrorIs(t, err, video.ErrIO)
}

type failingReaderAt struct{}

func (failingReaderAt) ReadAt([]byte, int64) (int, error) {
	return 0, errors.New("device unplugged")
}

func TestReadFailureIsIOError(t *testing.T) {
	_, err := NewReader(failingReaderAt{}, 100, "broken.y4m")
	require.Error(t, err)
	assert.ErrorIs(t, err, video.ErrIO)
	assert.Contains(t, err.Error(), "broken.y4m")
}

func ExampleOpen() {
	src, err := Open("reference.y4m")
	if err != nil {
		fmt.Println(errors.Is(err, video.ErrIO))
		return
	}
	defer src.Close()
	// Output: true
}

func TestOpenHugeDimensions(t *testing.T) {
	for _, header := range []string{
		"YUV4MPEG2 W1000000000 H1000000000 F25:1 C420",
		"YUV4MPEG2 W2000000000 H2000000000 F25:1 C444p16",
		"YUV4MPEG2 W32768 H32768 F25:1 C444",
	} {
		t.Run(header, func(t *testing.T) {
			data := []byte(header + "\nFRAME\n")
			_, err := openBytes(t, data)
			require.Error(t, err)
			assert.ErrorIs(t, err, video.ErrHeaderParse)
		})
	}
}

func TestHeaderOnlyStreamHasNoFrames(t *testing.T) {
	src, err := openBytes(t, []byte("YUV4MPEG2 W8192 H8192 F25:1 C420\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, src.NumFrames())
	assert.Nil(t, src.raw)

	frame := video.NewFrame(video.VideoHeader{Width: 2, Height: 2, BitDepth: 8,
		ChromaSampling: video.ChromaSampling420})
	assert.ErrorIs(t, src.Next(frame), io.EOF)
}

func TestBareMarkersAreLaidOutArithmetically(t *testing.T) {
	data := y4mStream("YUV4MPEG2 W2 H2 F25:1 C444", 12, 4, 20)
	src, err := openBytes(t, data)
	require.NoError(t, err)
	require.Equal(t, 4, src.NumFrames())

	assert.False(t, src.frames[0].unchecked)
	for _, span := range src.frames[1:] {
		assert.True(t, span.unchecked)
	}

	frame := video.NewFrame(src.Header())
	require.NoError(t, src.Seek(3))
	require.NoError(t, src.Next(frame))
	assert.Equal(t, uint16(23), frame.Plane(0).Row(1)[1])
	assert.False(t, src.frames[3].unchecked)
}

func TestLaterFrameParametersReindex(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("YUV4MPEG2 W2 H2 F25:1 C444\n")
	for n, marker := range []string{"FRAME\n", "FRAME Ip\n", "FRAME\n"} {
		buf.WriteString(marker)
		buf.Write(bytes.Repeat([]byte{byte(40 + n)}, 12))
	}

	src, err := openBytes(t, buf.Bytes())
	require.NoError(t, err)

	frame := video.NewFrame(src.Header())
	for n := range 3 {
		require.NoError(t, src.Next(frame), "frame %d", n)
		assert.Equal(t, uint16(40+n), frame.Plane(2).Row(1)[0])
	}
	assert.Equal(t, 3, src.NumFrames())
	assert.ErrorIs(t, src.Next(frame), io.EOF)

	// Seeking straight past the parameterised marker still lands on frame 2.
	fresh, err := openBytes(t, buf.Bytes())
	require.NoError(t, err)
	require.NoError(t, fresh.Seek(2))
	require.NoError(t, fresh.Next(frame))
	assert.Equal(t, 2, frame.Index)
	assert.Equal(t, uint16(42), frame.Plane(0).Row(0)[0])
}
