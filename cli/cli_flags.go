package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/GreatValueCreamSoda/yuvmetrics/internal/config"
	"github.com/GreatValueCreamSoda/yuvmetrics/metrics"
)

type cliSettings struct {
	referenceVideo, distortionVideo string
	metrics                         []string
	configPath                      string

	frame      int // -1 scores the whole video
	frameLimit int
	threads    int
	perFrame   bool

	noRealign bool
	transfer  string
	matrix    string

	json     bool
	decibels bool
	noStats  bool
	progress bool

	logLevel      string
	telemetryAddr string

	help bool

	fs *pflag.FlagSet
}

func parseSettings(name string, args []string) (*cliSettings, error) {
	var settings cliSettings
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false
	settings.fs = fs

	// General Flags
	fs.StringVarP(&settings.referenceVideo, "reference", "r", "", "The reference video path the distorted video will be compared against")
	fs.StringVarP(&settings.distortionVideo, "distortion", "d", "", "The distorted video path that will be compared to the reference")
	fs.StringSliceVarP(&settings.metrics, "metric", "m", nil, fmt.Sprintf("Metric to compute, repeatable or comma separated [%s]. Empty runs all", strings.Join(metrics.Default.Names(), ", ")))
	fs.StringVarP(&settings.configPath, "config", "c", "", "YAML configuration file. Flags override its values")
	fs.BoolVarP(&settings.help, "help", "h", false, "Show this help message")

	// Frame selection
	fs.IntVar(&settings.frame, "frame", -1, "Score only the frame at this index instead of the whole video")
	fs.IntVar(&settings.frameLimit, "frames", 0, "Compare at most this many frames. 0 compares all")
	fs.IntVar(&settings.threads, "frame-threads", 0, "Number of frames to process in parallel. 0 uses the config value")
	addFlagToHelpGroup(fs, "Frame Options", "frame", "frames", "frame-threads")

	// Colour handling
	fs.BoolVar(&settings.noRealign, "no-chroma-realign", false, "Disable the half sample shift of co-sited chroma")
	fs.StringVar(&settings.transfer, "transfer", "", "Transfer characteristic used by CIEDE2000 [bt709, srgb, smpte170m, gamma22, gamma28, linear]")
	fs.StringVar(&settings.matrix, "matrix", "", "YUV matrix used by CIEDE2000 [bt709, bt470bg, smpte170m, bt2020nc]")
	addFlagToHelpGroup(fs, "Color Options", "no-chroma-realign", "transfer", "matrix")

	// Output Settings
	fs.BoolVar(&settings.json, "json", false, "Print results as JSON")
	fs.BoolVar(&settings.perFrame, "per-frame", false, "Also print the score of every frame")
	fs.BoolVar(&settings.decibels, "decibels", false, "Show SSIM, MS-SSIM and CIEDE2000 on a decibel scale")
	fs.BoolVar(&settings.noStats, "no-stats", false, "Skip the per frame summary statistics")
	fs.BoolVar(&settings.progress, "progress", true, "Show a progress bar while scoring")
	addFlagToHelpGroup(fs, "Output Options", "json", "per-frame", "decibels", "no-stats", "progress")

	// Diagnostics
	fs.StringVar(&settings.logLevel, "log-level", "", "Log level [debug, info, warn, error]. Empty uses the config value")
	fs.StringVar(&settings.telemetryAddr, "telemetry-addr", "", "Serve Prometheus metrics on this address while running")
	addFlagToHelpGroup(fs, "Diagnostic Options", "log-level", "telemetry-addr")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if settings.help {
		return &settings, nil
	}

	positional := fs.Args()
	if settings.referenceVideo == "" && len(positional) > 0 {
		settings.referenceVideo, positional = positional[0], positional[1:]
	}
	if settings.distortionVideo == "" && len(positional) > 0 {
		settings.distortionVideo, positional = positional[0], positional[1:]
	}
	if len(positional) > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s",
			strings.Join(positional, " "))
	}

	if settings.referenceVideo == "" || settings.distortionVideo == "" {
		return nil, errors.New("a reference and a distorted video are required")
	}

	if settings.frame < -1 {
		return nil, fmt.Errorf("invalid frame index %d", settings.frame)
	}

	return &settings, nil
}

// apply overrides the loaded configuration with the flags that were set.
func (s *cliSettings) apply(cfg *config.Config) error {
	if s.fs.Changed("frames") {
		cfg.Compare.FrameLimit = s.frameLimit
	}
	if s.fs.Changed("frame-threads") && s.threads > 0 {
		cfg.Compare.Threads = s.threads
	}
	if s.fs.Changed("per-frame") {
		cfg.Compare.PerFrame = s.perFrame
	}
	if s.noRealign {
		cfg.Compare.RealignChroma = false
	}
	if s.transfer != "" {
		cfg.Compare.Transfer = s.transfer
	}
	if s.matrix != "" {
		cfg.Compare.Matrix = s.matrix
	}
	if s.logLevel != "" {
		cfg.Logging.Level = s.logLevel
	}
	if s.telemetryAddr != "" {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.ListenAddr = s.telemetryAddr
	}
	return cfg.Validate()
}

// selectedMetrics resolves the requested metric names, or every registered
// metric when none were given.
func (s *cliSettings) selectedMetrics() ([]metrics.Metric, error) {
	names := s.metrics
	if len(names) == 0 {
		names = metrics.Default.Names()
	}

	var selected []metrics.Metric
	seen := make(map[string]bool)
	for _, name := range names {
		m, err := metrics.Default.Lookup(name)
		if err != nil {
			return nil, err
		}
		if seen[m.Name()] {
			continue
		}
		seen[m.Name()] = true
		selected = append(selected, m)
	}
	return selected, nil
}
