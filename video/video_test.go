package video_test

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GreatValueCreamSoda/yuvmetrics/video"
)

func testHeader(cs video.ChromaSampling, depth int) video.VideoHeader {
	return video.VideoHeader{
		Width:          33,
		Height:         17,
		BitDepth:       depth,
		ChromaSampling: cs,
		FrameRate:      video.NewRational(30, 1),
	}
}

func TestChromaDimensions(t *testing.T) {
	tests := []struct {
		cs   video.ChromaSampling
		w, h int
	}{
		{video.ChromaSampling420, 17, 9},
		{video.ChromaSampling422, 17, 17},
		{video.ChromaSampling444, 33, 17},
		{video.ChromaSampling400, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.cs.String(), func(t *testing.T) {
			w, h := testHeader(tt.cs, 8).PlaneDimensions(1)
			assert.Equal(t, tt.w, w)
			assert.Equal(t, tt.h, h)
		})
	}
}

func TestFrameSize(t *testing.T) {
	h := testHeader(video.ChromaSampling420, 8)
	assert.Equal(t, 33*17+2*17*9, h.FrameSize())

	h.BitDepth = 10
	assert.Equal(t, 2*(33*17+2*17*9), h.FrameSize())

	h.ChromaSampling = video.ChromaSampling400
	assert.Equal(t, 2*33*17, h.FrameSize())
	assert.Equal(t, 1, h.NumPlanes())
}

func TestValidate(t *testing.T) {
	h := testHeader(video.ChromaSampling444, 8)
	require.NoError(t, h.Validate())

	h.Width = 0
	assert.ErrorIs(t, h.Validate(), video.ErrHeaderParse)

	h = testHeader(video.ChromaSampling444, 18)
	assert.ErrorIs(t, h.Validate(), video.ErrHeaderParse)
}

func TestValidateBoundsGeometry(t *testing.T) {
	h := testHeader(video.ChromaSampling444, 16)
	h.Width, h.Height = 15360, 8640
	require.NoError(t, h.Validate())

	h.Width = video.MaxDimension + 1
	assert.ErrorIs(t, h.Validate(), video.ErrHeaderParse)

	h.Width, h.Height = video.MaxDimension, video.MaxDimension
	assert.ErrorIs(t, h.Validate(), video.ErrHeaderParse, "frame size cap")

	h.Width, h.Height = 2_000_000_000, 2_000_000_000
	assert.ErrorIs(t, h.Validate(), video.ErrHeaderParse)
}

func TestCanCompare(t *testing.T) {
	a := testHeader(video.ChromaSampling420, 8)

	b := a
	require.NoError(t, video.CanCompare(a, b))

	b.Width++
	assert.ErrorIs(t, video.CanCompare(a, b), video.ErrDimensionMismatch)

	b = a
	b.ChromaSampling = video.ChromaSampling444
	assert.ErrorIs(t, video.CanCompare(a, b), video.ErrDimensionMismatch)

	b = a
	b.BitDepth = 10
	assert.ErrorIs(t, video.CanCompare(a, b), video.ErrDimensionMismatch)
}

func TestErrorUnwrapsKindAndCause(t *testing.T) {
	err := video.NewError(video.ErrDecode, "next", "a.y4m",
		io.ErrUnexpectedEOF)

	assert.ErrorIs(t, err, video.ErrDecode)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NotErrorIs(t, err, video.ErrIO)
	assert.Equal(t, "a.y4m: next: decode error: unexpected EOF", err.Error())

	var typed *video.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, "next", typed.Op)
}

func TestPlaneReadRaw(t *testing.T) {
	t.Run("8 bit", func(t *testing.T) {
		p := video.NewPlane(2, 2, 8)
		require.NoError(t, p.ReadRaw([]byte{1, 2, 3, 255}))
		assert.Equal(t, []uint16{1, 2, 3, 255}, p.Data)
	})

	t.Run("10 bit little endian clamps", func(t *testing.T) {
		p := video.NewPlane(2, 1, 10)
		require.NoError(t, p.ReadRaw([]byte{0xff, 0x03, 0xff, 0xff}))
		assert.Equal(t, []uint16{1023, 1023}, p.Data)
	})

	t.Run("short input", func(t *testing.T) {
		p := video.NewPlane(2, 2, 8)
		assert.Error(t, p.ReadRaw([]byte{1, 2}))
	})
}

func TestPlaneRowDropsPadding(t *testing.T) {
	p := video.Plane{Width: 2, Height: 2, Stride: 3, BitDepth: 8,
		Data: []uint16{1, 2, 99, 3, 4, 99}}
	assert.Equal(t, []uint16{3, 4}, p.Row(1))
}
