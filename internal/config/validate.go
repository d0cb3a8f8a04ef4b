package config

import (
	"fmt"
	"strings"

	pixfmts "github.com/GreatValueCreamSoda/gopixfmts"
)

func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Compare.Validate(); err != nil {
		return fmt.Errorf("compare config: %w", err)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry config: %w", err)
	}

	return nil
}

func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		return fmt.Errorf("invalid log level: %q", l.Level)
	}

	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("invalid log format: %q", l.Format)
	}

	if l.Output == "" {
		return fmt.Errorf("log output is required")
	}

	if l.MaxSize < 0 || l.MaxBackups < 0 || l.MaxAge < 0 {
		return fmt.Errorf("log rotation limits must not be negative")
	}

	return nil
}

func (c *CompareConfig) Validate() error {
	if c.Threads < 1 {
		return fmt.Errorf("threads must be positive, got %d", c.Threads)
	}

	if c.FrameLimit < 0 {
		return fmt.Errorf("frame_limit must not be negative, got %d",
			c.FrameLimit)
	}

	if _, _, err := c.ColorTransfer(); err != nil {
		return err
	}

	if _, _, err := c.ColorMatrix(); err != nil {
		return err
	}

	return nil
}

func (t *TelemetryConfig) Validate() error {
	if !t.Enabled {
		return nil
	}

	if t.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required when telemetry is enabled")
	}

	if !strings.HasPrefix(t.Path, "/") {
		return fmt.Errorf("path must start with '/', got %q", t.Path)
	}

	return nil
}

var transferNames = map[string]pixfmts.ColorTransferCharacteristic{
	"bt709":     pixfmts.ColorTransferCharacteristicBT709,
	"srgb":      pixfmts.ColorTransferCharacteristicIEC61966_2_1,
	"smpte170m": pixfmts.ColorTransferCharacteristicSMPTE170M,
	"gamma22":   pixfmts.ColorTransferCharacteristicGamma22,
	"gamma28":   pixfmts.ColorTransferCharacteristicGamma28,
	"linear":    pixfmts.ColorTransferCharacteristicLinear,
	"pq":        pixfmts.ColorTransferCharacteristicSMPTE2084,
	"hlg":       pixfmts.ColorTransferCharacteristicARIB_STD_B67,
}

var matrixNames = map[string]pixfmts.ColorSpace{
	"bt709":     pixfmts.ColorSpaceBT709,
	"bt470bg":   pixfmts.ColorSpaceBT470BG,
	"smpte170m": pixfmts.ColorSpaceSMPTE170M,
	"bt2020nc":  pixfmts.ColorSpaceBT2020_NCL,
}

// ColorTransfer resolves the configured transfer name. ok is false when
// none is configured.
func (c *CompareConfig) ColorTransfer() (
	trc pixfmts.ColorTransferCharacteristic, ok bool, err error) {
	if c.Transfer == "" {
		return 0, false, nil
	}
	trc, ok = transferNames[strings.ToLower(c.Transfer)]
	if !ok {
		return 0, false, fmt.Errorf("unknown transfer %q", c.Transfer)
	}
	return trc, true, nil
}

// ColorMatrix resolves the configured matrix name. ok is false when none is
// configured.
func (c *CompareConfig) ColorMatrix() (
	matrix pixfmts.ColorSpace, ok bool, err error) {
	if c.Matrix == "" {
		return 0, false, nil
	}
	matrix, ok = matrixNames[strings.ToLower(c.Matrix)]
	if !ok {
		return 0, false, fmt.Errorf("unknown matrix %q", c.Matrix)
	}
	return matrix, true, nil
}
