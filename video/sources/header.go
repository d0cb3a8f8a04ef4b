package sources

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	pixfmts "github.com/GreatValueCreamSoda/gopixfmts"

	"github.com/GreatValueCreamSoda/yuvmetrics/video"
)

const (
	streamMagic = "YUV4MPEG2"
	frameMagic  = "FRAME"

	// Longest stream or frame header line accepted.
	maxHeaderLen = 4096
)

var (
	// errNoTerminator marks a header line that never reached its newline.
	errNoTerminator = errors.New("header line is not terminated")

	errMissingSignature = errors.New("missing " + streamMagic + " signature")
)

// readHeaderLine reads the stream header line, returning it without the
// trailing newline and the number of bytes it occupied.
func readHeaderLine(r io.Reader) (string, int, error) {
	br := bufio.NewReaderSize(io.LimitReader(r, maxHeaderLen), maxHeaderLen)
	line, err := br.ReadString('\n')
	switch {
	case err == nil:
		return strings.TrimSuffix(line, "\n"), len(line), nil
	case errors.Is(err, io.EOF):
		if len(line) == 0 {
			return "", 0, errMissingSignature
		}
		return "", 0, errNoTerminator
	default:
		return "", 0, err
	}
}

// parseHeader decodes a YUV4MPEG2 stream header line.
//
// W, H and F are mandatory. A missing C tag means 8 bit 4:2:0 with JPEG
// chroma siting. Unknown tags are skipped.
func parseHeader(line string) (video.VideoHeader, error) {
	h := video.VideoHeader{
		BitDepth:       8,
		ChromaSampling: video.ChromaSampling420,
		ChromaPosition: video.ChromaPositionBilateral,
		Interlacing:    '?',
		ColorRange:     pixfmts.ColorRangeMPEG,
		ColorMatrix:    pixfmts.ColorSpaceBT709,
	}

	fields := strings.Split(line, " ")
	if fields[0] != streamMagic {
		return h, fmt.Errorf("bad signature %q", fields[0])
	}

	var haveWidth, haveHeight, haveRate bool
	for _, field := range fields[1:] {
		if field == "" {
			continue
		}
		tag, value := field[0], field[1:]

		var err error
		switch tag {
		case 'W':
			h.Width, err = strconv.Atoi(value)
			haveWidth = true
		case 'H':
			h.Height, err = strconv.Atoi(value)
			haveHeight = true
		case 'F':
			h.FrameRate, err = parseRatio(value)
			if err == nil && (h.FrameRate.Num <= 0 || h.FrameRate.Den <= 0) {
				err = fmt.Errorf("frame rate must be positive")
			}
			haveRate = true
		case 'A':
			h.PixelAspect, err = parseRatio(value)
		case 'I':
			if len(value) != 1 {
				err = fmt.Errorf("interlacing must be one character")
			} else {
				h.Interlacing = value[0]
			}
		case 'C':
			h.ChromaSampling, h.ChromaPosition, h.BitDepth, err =
				parseColorspace(value)
		case 'X':
			err = parseExtension(&h, value)
		}
		if err != nil {
			return h, fmt.Errorf("tag %q: %w", field, err)
		}
	}

	switch {
	case !haveWidth:
		return h, errors.New("missing width")
	case !haveHeight:
		return h, errors.New("missing height")
	case !haveRate:
		return h, errors.New("missing frame rate")
	}

	h.ChromaLocation = h.ChromaPosition.ChromaLocation()
	return h, nil
}

func parseRatio(s string) (video.Rational, error) {
	num, den, ok := strings.Cut(s, ":")
	if !ok {
		return video.Rational{}, fmt.Errorf("ratio %q lacks ':'", s)
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return video.Rational{}, err
	}
	d, err := strconv.Atoi(den)
	if err != nil {
		return video.Rational{}, err
	}
	return video.Rational{Num: n, Den: d}, nil
}

// parseColorspace maps a C tag to sampling, siting and bit depth.
func parseColorspace(tag string) (video.ChromaSampling, video.ChromaPosition,
	int, error) {
	switch tag {
	case "420jpeg":
		return video.ChromaSampling420, video.ChromaPositionBilateral, 8, nil
	case "420paldv":
		return video.ChromaSampling420, video.ChromaPositionInterpolated, 8,
			nil
	case "420mpeg2":
		return video.ChromaSampling420, video.ChromaPositionVertical, 8, nil
	}

	var base, depthSuffix string
	switch {
	case strings.HasPrefix(tag, "mono"):
		base, depthSuffix = "mono", tag[4:]
	case len(tag) >= 3:
		base, depthSuffix = tag[:3], tag[3:]
		if depthSuffix != "" {
			var ok bool
			if depthSuffix, ok = strings.CutPrefix(depthSuffix, "p"); !ok {
				return 0, 0, 0, fmt.Errorf("unsupported colorspace %q", tag)
			}
		}
	default:
		return 0, 0, 0, fmt.Errorf("unsupported colorspace %q", tag)
	}

	depth := 8
	if depthSuffix != "" {
		var err error
		if depth, err = strconv.Atoi(depthSuffix); err != nil {
			return 0, 0, 0, fmt.Errorf("unsupported colorspace %q", tag)
		}
	}

	switch base {
	case "mono":
		return video.ChromaSampling400, video.ChromaPositionUnknown, depth, nil
	case "420":
		return video.ChromaSampling420, video.ChromaPositionColocated, depth,
			nil
	case "422":
		return video.ChromaSampling422, video.ChromaPositionVertical, depth,
			nil
	case "444":
		return video.ChromaSampling444, video.ChromaPositionColocated, depth,
			nil
	default:
		return 0, 0, 0, fmt.Errorf("unsupported colorspace %q", tag)
	}
}

// parseExtension understands the XCOLORRANGE extension written by ffmpeg.
// Other extensions are ignored.
func parseExtension(h *video.VideoHeader, value string) error {
	key, arg, ok := strings.Cut(value, "=")
	if !ok || key != "COLORRANGE" {
		return nil
	}
	switch arg {
	case "FULL":
		h.ColorRange = pixfmts.ColorRangeJPEG
	case "LIMITED":
		h.ColorRange = pixfmts.ColorRangeMPEG
	default:
		return fmt.Errorf("unknown color range %q", arg)
	}
	return nil
}

// parseFrameLine checks a FRAME line (without its newline). Frame parameters
// are accepted and ignored.
func parseFrameLine(line []byte) error {
	rest, ok := strings.CutPrefix(string(line), frameMagic)
	if !ok || (rest != "" && rest[0] != ' ') {
		return fmt.Errorf("bad frame marker %q", truncate(string(line), 16))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
