package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GreatValueCreamSoda/yuvmetrics/comparator"
	"github.com/GreatValueCreamSoda/yuvmetrics/internal/config"
	"github.com/GreatValueCreamSoda/yuvmetrics/metrics"
)

func writeTestVideo(t *testing.T, name string, frames, offset int) string {
	t.Helper()
	const w, h = 16, 16

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "YUV4MPEG2 W%d H%d F25:1 Ip A1:1 C420jpeg\n", w, h)
	for n := range frames {
		buf.WriteString("FRAME\n")
		for p, dims := range [3][2]int{{w, h}, {w / 2, h / 2}, {w / 2, h / 2}} {
			for y := range dims[1] {
				for x := range dims[0] {
					v := 60 + (x*9+y*5+p*13)%120
					if (x+y)%2 == 0 {
						v += offset * (n + 1)
					} else {
						v -= offset * (n + 1)
					}
					buf.WriteByte(byte(v))
				}
			}
		}
	}

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestParseSettingsPositional(t *testing.T) {
	s, err := parseSettings("yuvmetrics", []string{"-m", "psnr,ssim", "ref.y4m",
		"dist.y4m"})
	require.NoError(t, err)

	assert.Equal(t, "ref.y4m", s.referenceVideo)
	assert.Equal(t, "dist.y4m", s.distortionVideo)
	assert.Equal(t, []string{"psnr", "ssim"}, s.metrics)
	assert.Equal(t, -1, s.frame)
	assert.True(t, s.progress)
}

func TestParseSettingsFlags(t *testing.T) {
	s, err := parseSettings("yuvmetrics", []string{"-r", "a.y4m", "-d", "b.y4m",
		"--frame", "3", "--json", "-m", "psnr", "-m", "ciede"})
	require.NoError(t, err)

	assert.Equal(t, "a.y4m", s.referenceVideo)
	assert.Equal(t, "b.y4m", s.distortionVideo)
	assert.Equal(t, 3, s.frame)
	assert.True(t, s.json)
	assert.Equal(t, []string{"psnr", "ciede"}, s.metrics)
}

func TestParseSettingsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing distorted", []string{"ref.y4m"}},
		{"extra argument", []string{"a", "b", "c"}},
		{"negative frame", []string{"--frame", "-2", "a", "b"}},
		{"unknown flag", []string{"--bogus", "a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSettings("yuvmetrics", tt.args)
			assert.Error(t, err)
		})
	}
}

func TestParseSettingsHelp(t *testing.T) {
	s, err := parseSettings("yuvmetrics", []string{"--help"})
	require.NoError(t, err)
	assert.True(t, s.help)

	var out bytes.Buffer
	cliUsage(&out, s.fs)
	assert.Contains(t, out.String(), "Usage: yuvmetrics")
	assert.Contains(t, out.String(), "Color Options")
	assert.Contains(t, out.String(), "--no-chroma-realign")
}

func TestApplyOverridesOnlyChangedFlags(t *testing.T) {
	s, err := parseSettings("yuvmetrics", []string{"--frames", "5",
		"--no-chroma-realign", "--transfer", "srgb", "--telemetry-addr",
		"127.0.0.1:0", "a", "b"})
	require.NoError(t, err)

	cfg := config.Default()
	threads := cfg.Compare.Threads
	require.NoError(t, s.apply(cfg))

	assert.Equal(t, 5, cfg.Compare.FrameLimit)
	assert.Equal(t, threads, cfg.Compare.Threads)
	assert.False(t, cfg.Compare.RealignChroma)
	assert.Equal(t, "srgb", cfg.Compare.Transfer)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "127.0.0.1:0", cfg.Telemetry.ListenAddr)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestApplyRejectsInvalidValues(t *testing.T) {
	s, err := parseSettings("yuvmetrics", []string{"--matrix", "xyz", "a", "b"})
	require.NoError(t, err)
	assert.Error(t, s.apply(config.Default()))
}

func TestSelectedMetrics(t *testing.T) {
	s := &cliSettings{metrics: []string{"psnr-hvs", "PSNR", "psnr_hvs", "de2000"}}
	ms, err := s.selectedMetrics()
	require.NoError(t, err)

	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.Name()
	}
	assert.Equal(t, []string{"psnrhvs", "psnr", "ciede2000"}, names)

	all, err := (&cliSettings{}).selectedMetrics()
	require.NoError(t, err)
	assert.Len(t, all, len(metrics.Default.Names()))

	_, err = (&cliSettings{metrics: []string{"vmaf"}}).selectedMetrics()
	assert.ErrorIs(t, err, metrics.ErrUnknownMetric)
}

func TestFormatResult(t *testing.T) {
	planar := metrics.PlanarResult(metrics.PlaneResult{Y: 40, U: 42.5, V: 43,
		Avg: 41})
	assert.Equal(t,
		"PSNR →  Y: 40.0000 U/Cb: 42.5000 V/Cr: 43.0000 Avg value: 41.0000",
		formatResult("PSNR", planar))
	assert.Equal(t, "CIEDE2000 →  1.2500",
		formatResult("CIEDE2000", metrics.ScalarResult(1.25)))
}

func TestDisplayResultDecibels(t *testing.T) {
	ssim := metrics.PlanarResult(metrics.PlaneResult{Y: 0.99, U: 0.9, V: 0.9,
		Avg: 0.99})
	p, _ := displayResult("ssim", ssim, true).Planar()
	assert.InDelta(t, 20, p.Y, 1e-9)
	assert.InDelta(t, 10, p.U, 1e-9)

	v, _ := displayResult("ciede2000", metrics.ScalarResult(1), true).Scalar()
	assert.InDelta(t, 45, v, 1e-9)

	psnr := metrics.PlanarResult(metrics.PlaneResult{Y: 30})
	assert.Equal(t, psnr, displayResult("psnr", psnr, true))
	assert.Equal(t, ssim, displayResult("ssim", ssim, false))
}

func TestStatisticSeries(t *testing.T) {
	frames := []comparator.FrameScore{
		{Index: 0, Result: metrics.PlanarResult(metrics.PlaneResult{Avg: 3})},
		{Index: 1, Result: metrics.ScalarResult(7)},
	}
	assert.Equal(t, []float64{3, 7}, statisticSeries(frames))
}

func TestSummarize(t *testing.T) {
	s := summarize([]float64{4, 1, 2, 3})
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
	assert.InDelta(t, 2.5, s.Mean, 1e-12)
	assert.Equal(t, 2.0, s.Median)
	assert.InDelta(t, math.Sqrt(1.25), s.StdDev, 1e-12)
	assert.InDelta(t, 4/(1+0.5+1.0/3+0.25), s.Harmonic, 1e-12)

	s = summarize([]float64{0, 1})
	assert.True(t, math.IsNaN(s.Harmonic))

	s = summarize([]float64{30, math.Inf(1)})
	assert.True(t, math.IsNaN(s.Harmonic))
}

func TestRanksAverageTies(t *testing.T) {
	assert.Equal(t, []float64{1, 2.5, 2.5, 4}, ranks([]float64{1, 5, 5, 9}))
	assert.Equal(t, []float64{3, 1, 2}, ranks([]float64{9, -1, 0}))
}

func TestCorrelations(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{2, 4, 6, 8, 10}
	rev := []float64{5, 4, 3, 2, 1}

	assert.InDelta(t, 1, pearsonCorrelation(x, y), 1e-12)
	assert.InDelta(t, -1, pearsonCorrelation(x, rev), 1e-12)
	assert.Equal(t, 0.0, pearsonCorrelation(x, []float64{3, 3, 3, 3, 3}))
	assert.Equal(t, 0.0, pearsonCorrelation(x, []float64{1, 2, math.Inf(1), 4, 5}))

	// Spearman only sees the ordering.
	assert.InDelta(t, 1, spearmanCorrelation(x, []float64{1, 10, 100, 1000,
		10000}), 1e-12)

	assert.InDelta(t, 1, kendallTauCorrelation(x, y), 1e-12)
	assert.InDelta(t, -1, kendallTauCorrelation(x, rev), 1e-12)
	assert.Equal(t, 0.0, kendallTauCorrelation(x[:1], y[:1]))
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	printSummary(&out, []string{"psnr", "ssim"}, map[string][]float64{
		"psnr": {30, 32, 34},
		"ssim": {0.9, 0.95, 0.97},
	})

	text := out.String()
	assert.Contains(t, text, "Metric summary")
	assert.Contains(t, text, "median   : 32.000000")
	assert.Contains(t, text, "Pearson correlations")
	assert.Contains(t, text, "Kendall correlations")
}

func TestRunText(t *testing.T) {
	ref := writeTestVideo(t, "ref.y4m", 3, 0)
	dist := writeTestVideo(t, "dist.y4m", 3, 2)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), "yuvmetrics", []string{"-m", "psnr,ciede",
		"--progress=false", ref, dist}, &stdout, &stderr)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "PSNR →  Y: "), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "CIEDE2000 →  "), lines[1])

	assert.Contains(t, stderr.String(), "Metric summary")
}

func TestRunJSONPerFrame(t *testing.T) {
	ref := writeTestVideo(t, "ref.y4m", 3, 0)
	dist := writeTestVideo(t, "dist.y4m", 3, 1)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), "yuvmetrics", []string{"-m", "psnr",
		"--json", "--per-frame", "--no-stats", "--progress=false", ref, dist},
		&stdout, &stderr)
	require.NoError(t, err)

	var out map[string]struct {
		Result metrics.PlaneResult `json:"result"`
		Frames []struct {
			Index  int                 `json:"index"`
			Result metrics.PlaneResult `json:"result"`
		} `json:"frames"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	require.Contains(t, out, "psnr")

	psnr := out["psnr"]
	require.Len(t, psnr.Frames, 3)
	for i, f := range psnr.Frames {
		assert.Equal(t, i, f.Index)
	}
	assert.Greater(t, psnr.Frames[0].Result.Y, psnr.Frames[2].Result.Y)
	assert.NotContains(t, stderr.String(), "Metric summary")
}

func TestRunSingleFrame(t *testing.T) {
	ref := writeTestVideo(t, "ref.y4m", 3, 0)
	dist := writeTestVideo(t, "dist.y4m", 3, 1)

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), "yuvmetrics", []string{"-m",
		"apsnr", "--frame", "1", ref, dist}, &stdout, &stderr))

	assert.Equal(t, 1, strings.Count(stdout.String(), "APSNR →"))
	assert.Empty(t, stderr.String())

	err := run(context.Background(), "yuvmetrics", []string{"-m", "apsnr",
		"--frame", "7", ref, dist}, &stdout, &stderr)
	assert.Error(t, err)
}

func TestRunMissingInput(t *testing.T) {
	ref := writeTestVideo(t, "ref.y4m", 1, 0)
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), "yuvmetrics", []string{ref,
		filepath.Join(t.TempDir(), "missing.y4m")}, &stdout, &stderr)
	assert.Error(t, err)
}
