package comparator

import (
	"context"
	"errors"

	"github.com/GreatValueCreamSoda/yuvmetrics/metrics"
	"github.com/GreatValueCreamSoda/yuvmetrics/video"
	"github.com/GreatValueCreamSoda/yuvmetrics/video/sources"
)

// CalculateVideo scores the Y4M file at distPath against refPath with one
// metric over up to opts.FrameLimit frames.
func CalculateVideo(ctx context.Context, metric metrics.Metric, refPath,
	distPath string, opts Options) (*Context, error) {
	ref, dist, err := openPair(refPath, distPath, opts)
	if err != nil {
		return nil, err
	}
	defer ref.Close()
	defer dist.Close()

	return CompareSources(ctx, metric, ref, dist, opts)
}

// CalculateFrame scores the single frame at index of both files.
func CalculateFrame(ctx context.Context, metric metrics.Metric, refPath,
	distPath string, index int, opts Options) (*Context, error) {
	ref, dist, err := openPair(refPath, distPath, opts)
	if err != nil {
		return nil, err
	}
	defer ref.Close()
	defer dist.Close()

	c, err := NewFrameComparator(ref, dist, []metrics.Metric{metric}, index, opts)
	if err != nil {
		return nil, err
	}
	return runOne(ctx, c)
}

// CompareSources scores two already opened sources in video mode. The
// sources are left open.
func CompareSources(ctx context.Context, metric metrics.Metric, ref,
	dist video.Source, opts Options) (*Context, error) {
	c, err := NewComparator(ref, dist, []metrics.Metric{metric}, opts)
	if err != nil {
		return nil, err
	}
	return runOne(ctx, c)
}

func runOne(ctx context.Context, c *Comparator) (*Context, error) {
	contexts, err := c.Run(ctx)
	if err != nil {
		return nil, err
	}
	return contexts[0], nil
}

// openPair opens both inputs, closing the first if the second fails.
func openPair(refPath, distPath string, opts Options) (ref, dist *sources.Y4MSource,
	err error) {
	srcOpts := append([]sources.Option{sources.WithLogger(opts.Logger)},
		opts.Sources...)

	if ref, err = sources.Open(refPath, srcOpts...); err != nil {
		return nil, nil, err
	}
	if dist, err = sources.Open(distPath, srcOpts...); err != nil {
		return nil, nil, errors.Join(err, ref.Close())
	}
	return ref, dist, nil
}
