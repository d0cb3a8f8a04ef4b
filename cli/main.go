// Command yuvmetrics scores a distorted Y4M video against its reference.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/GreatValueCreamSoda/yuvmetrics/comparator"
	"github.com/GreatValueCreamSoda/yuvmetrics/internal/config"
	"github.com/GreatValueCreamSoda/yuvmetrics/internal/logger"
	"github.com/GreatValueCreamSoda/yuvmetrics/internal/telemetry"
	"github.com/GreatValueCreamSoda/yuvmetrics/video/sources"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, filepath.Base(os.Args[0]), os.Args[1:], os.Stdout,
		os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, name string, args []string, stdout,
	stderr io.Writer) error {
	settings, err := parseSettings(name, args)
	if err != nil {
		return err
	}
	if settings.help {
		cliUsage(stderr, settings.fs)
		return nil
	}

	cfg, err := config.Load(settings.configPath)
	if err != nil {
		return err
	}
	if err := settings.apply(cfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return err
	}

	if cfg.Telemetry.Enabled {
		shutdown := serveTelemetry(cfg.Telemetry, log)
		defer shutdown()
	}

	ms, err := settings.selectedMetrics()
	if err != nil {
		return err
	}

	srcOpts, err := sourceOptions(cfg.Compare, log)
	if err != nil {
		return err
	}

	ref, err := sources.Open(settings.referenceVideo, srcOpts...)
	if err != nil {
		return err
	}
	defer ref.Close()

	dist, err := sources.Open(settings.distortionVideo, srcOpts...)
	if err != nil {
		return err
	}
	defer dist.Close()

	frameMode := settings.frame >= 0

	var bar *progressbar.ProgressBar
	opts := comparator.Options{
		Threads:    cfg.Compare.Threads,
		FrameLimit: cfg.Compare.FrameLimit,
		// Per-frame scores feed the summary statistics.
		PerFrame: !frameMode,
		Logger:   log,
		Progress: func(done, total int) {
			if bar != nil {
				_ = bar.Set(done)
			}
		},
	}

	var comp *comparator.Comparator
	if frameMode {
		comp, err = comparator.NewFrameComparator(ref, dist, ms, settings.frame,
			opts)
	} else {
		comp, err = comparator.NewComparator(ref, dist, ms, opts)
	}
	if err != nil {
		return err
	}

	if settings.progress && !frameMode {
		bar = progressbar.NewOptions(
			comp.NumFrames(),
			progressbar.OptionSetWriter(stderr),
			progressbar.OptionSetDescription("Computing metrics"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
		)
		defer fmt.Fprintln(stderr)
	}

	contexts, err := comp.Run(ctx)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range contexts {
			c.Release()
		}
	}()

	showFrames := cfg.Compare.PerFrame && !frameMode
	reports, err := collectReports(contexts, settings.decibels, showFrames)
	if err != nil {
		return err
	}

	if settings.json {
		if err := writeJSON(stdout, reports); err != nil {
			return err
		}
	} else {
		writeText(stdout, reports)
	}

	if !frameMode && !settings.noStats && comp.NumFrames() > 1 {
		names := make([]string, 0, len(contexts))
		scores := make(map[string][]float64, len(contexts))
		for _, c := range contexts {
			frames, err := c.Frames()
			if err != nil {
				return err
			}
			names = append(names, c.Metric)
			scores[c.Metric] = statisticSeries(frames)
		}
		printSummary(stderr, names, scores)
	}

	return nil
}

func sourceOptions(cfg config.CompareConfig, log logrus.FieldLogger) (
	[]sources.Option, error) {
	opts := []sources.Option{
		sources.WithLogger(log),
		sources.WithChromaRealignment(cfg.RealignChroma),
	}

	trc, ok, err := cfg.ColorTransfer()
	if err != nil {
		return nil, err
	}
	if ok {
		opts = append(opts, sources.WithColorTransfer(trc))
	}

	matrix, ok, err := cfg.ColorMatrix()
	if err != nil {
		return nil, err
	}
	if ok {
		opts = append(opts, sources.WithColorMatrix(matrix))
	}
	return opts, nil
}

// serveTelemetry exposes the Prometheus registry until the returned function
// is called.
func serveTelemetry(cfg config.TelemetryConfig, log logrus.FieldLogger) func() {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, telemetry.Handler())
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	entry := logger.WithComponent(log, "telemetry").WithField("addr", cfg.ListenAddr)
	go func() {
		entry.Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			entry.WithError(err).Error("metrics server stopped")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
