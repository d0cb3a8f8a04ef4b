// Package comparator scores a distorted video against its reference with one
// or more metrics and returns the aggregated results as Contexts.
package comparator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/GreatValueCreamSoda/yuvmetrics/blockingpool"
	"github.com/GreatValueCreamSoda/yuvmetrics/internal/logger"
	"github.com/GreatValueCreamSoda/yuvmetrics/internal/telemetry"
	"github.com/GreatValueCreamSoda/yuvmetrics/metrics"
	"github.com/GreatValueCreamSoda/yuvmetrics/video"
	"github.com/GreatValueCreamSoda/yuvmetrics/video/sources"
)

// ProgressCallback is invoked each time a frame pair has been scored by
// every metric.
type ProgressCallback func(done int, total int)

// Options control a comparison run. The zero value compares every frame
// using one worker per CPU.
type Options struct {
	// Threads is the number of frame pairs scored concurrently.
	Threads int
	// FrameLimit caps the number of frames compared in video mode. Zero
	// means all frames.
	FrameLimit int
	// PerFrame keeps the individual frame scores on the Context.
	PerFrame bool
	Logger   logrus.FieldLogger
	Progress ProgressCallback
	// Sources are applied when a comparison opens its inputs by path.
	Sources []sources.Option
}

// framePair is one frame of each video with their shared index.
type framePair struct {
	index int
	a, b  *video.Frame
}

// metricResult holds every metric's sample for one frame pair, in the order
// of Comparator.metrics.
type metricResult struct {
	index   int
	samples []metrics.FrameSample
}

// Comparator orchestrates the concurrent comparison of two video sources using
// a set of metrics.
//
// It reads frames from both sources in parallel, pairs them, computes the
// requested metrics on each pair using a configurable number of worker
// goroutines, and reduces the per-frame samples into one Context per metric.
//
// A Comparator runs once.
type Comparator struct {
	videoA, videoB video.Source
	header         video.VideoHeader
	metrics        []metrics.Metric

	// Frames [start, start+numFrames) are compared.
	mode      Mode
	start     int
	numFrames int

	frameThreads           int
	framePoolA, framePoolB blockingpool.BlockingPool[*video.Frame]

	// Internal channels for the pipeline stages.
	videoAFrameChan, videoBFrameChan chan *video.Frame
	fPairChan                        chan framePair
	scoresChan                       chan metricResult

	// samples[m][i] is metric m's sample for frame start+i. Only the
	// aggregation goroutine writes to it.
	samples [][]metrics.FrameSample

	ctx      context.Context
	runID    uuid.UUID
	perFrame bool
	progress ProgressCallback
	log      logrus.FieldLogger
	ran      bool
}

// NewComparator prepares a video mode comparison of every frame the two
// sources have in common, capped by opts.FrameLimit.
//
// The sources must share geometry and every metric must accept their
// colour description. Differing frame counts are not an error: the longer
// source is truncated and a warning is logged.
func NewComparator(videoA, videoB video.Source, ms []metrics.Metric,
	opts Options) (*Comparator, error) {
	c, err := newComparator(videoA, videoB, ms, opts)
	if err != nil {
		return nil, err
	}

	na, nb := videoA.NumFrames(), videoB.NumFrames()
	c.numFrames = min(na, nb)
	if na != nb {
		c.log.WithFields(logrus.Fields{
			"reference_frames": na,
			"distorted_frames": nb,
			"compared_frames":  c.numFrames,
		}).Warn("frame counts differ, truncating to the shorter video")
	}
	if opts.FrameLimit > 0 {
		c.numFrames = min(c.numFrames, opts.FrameLimit)
	}
	if c.numFrames == 0 {
		return nil, video.Errorf(video.ErrDecode, "compare",
			"no frame pairs to compare")
	}

	c.allocate()
	return c, nil
}

// NewFrameComparator prepares a frame mode comparison of the frames at
// index. An index outside either source fails with video.ErrDecode.
func NewFrameComparator(videoA, videoB video.Source, ms []metrics.Metric,
	index int, opts Options) (*Comparator, error) {
	c, err := newComparator(videoA, videoB, ms, opts)
	if err != nil {
		return nil, err
	}

	if index < 0 || index >= videoA.NumFrames() || index >= videoB.NumFrames() {
		return nil, video.NewError(video.ErrDecode, "compare", "",
			fmt.Errorf("frame %d is outside %d and %d frame videos: %w", index,
				videoA.NumFrames(), videoB.NumFrames(), io.ErrUnexpectedEOF))
	}

	c.mode = ModeFrame
	c.start = index
	c.numFrames = 1
	c.frameThreads = 1

	c.allocate()
	return c, nil
}

func newComparator(videoA, videoB video.Source, ms []metrics.Metric,
	opts Options) (*Comparator, error) {
	if videoA == nil || videoB == nil {
		return nil, errors.New("either video a or video b was passed as a nil ptr")
	}

	if len(ms) < 1 {
		return nil, errors.New("at least one metric must be passed to measure with")
	}

	if opts.Threads < 0 {
		return nil, errors.New("frame threads must not be negative")
	}

	if opts.FrameLimit < 0 {
		return nil, errors.New("frame limit must not be negative")
	}

	header := videoA.Header()
	if err := video.CanCompare(header, videoB.Header()); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(ms))
	for _, m := range ms {
		if m == nil {
			return nil, errors.New("metric must be non nil")
		}
		if seen[m.Name()] {
			return nil, fmt.Errorf("duplicate metric %q", m.Name())
		}
		seen[m.Name()] = true
		if err := m.Check(header); err != nil {
			return nil, fmt.Errorf("%s computation failed: %w", m.Name(), err)
		}
	}

	threads := opts.Threads
	if threads == 0 {
		threads = runtime.NumCPU()
	}

	runID := uuid.New()
	return &Comparator{
		videoA:       videoA,
		videoB:       videoB,
		header:       header,
		metrics:      ms,
		frameThreads: threads,
		runID:        runID,
		perFrame:     opts.PerFrame,
		progress:     opts.Progress,
		log: logger.WithComponent(logger.OrDiscard(opts.Logger), "comparator").
			WithField("run_id", runID.String()),
	}, nil
}

// allocate sizes the pipeline channels and frame pools for the frame count
// and thread count.
func (c *Comparator) allocate() {
	c.frameThreads = max(1, min(c.frameThreads, c.numFrames))

	c.videoAFrameChan = make(chan *video.Frame, 1)
	c.videoBFrameChan = make(chan *video.Frame, 1)
	c.fPairChan = make(chan framePair, c.frameThreads/2)
	c.scoresChan = make(chan metricResult, c.frameThreads)

	// One buffer in each reader queue, one per pair queue slot plus the
	// pairing stage, one per metric worker.
	totalBuffers := 1 + (c.frameThreads/2 + 1) + c.frameThreads

	hA, hB := c.videoA.Header(), c.videoB.Header()
	c.framePoolA = blockingpool.NewFilledBlockingPool(totalBuffers,
		func() *video.Frame { return video.NewFrame(hA) })
	c.framePoolB = blockingpool.NewFilledBlockingPool(totalBuffers,
		func() *video.Frame { return video.NewFrame(hB) })

	c.samples = make([][]metrics.FrameSample, len(c.metrics))
	for i := range c.samples {
		c.samples[i] = make([]metrics.FrameSample, c.numFrames)
	}
}

// NumFrames is the number of frame pairs the run will score.
func (c *Comparator) NumFrames() int { return c.numFrames }

// RunID identifies the run in logs and on the returned Contexts.
func (c *Comparator) RunID() uuid.UUID { return c.runID }

// Run starts the comparison pipeline.
//
// It spawns reader threads for both videos, a frame-pairing goroutine, the
// requested number of metric computation workers, and a final aggregation
// goroutine. Run blocks until all frames have been processed and returns one
// Context per metric, in the order the metrics were given.
//
// If parentCtx is cancelled or any stage fails, no Context is returned.
func (c *Comparator) Run(parentCtx context.Context) ([]*Context, error) {
	if c.ran {
		return nil, errors.New("comparator has already run")
	}
	c.ran = true

	names := make([]string, len(c.metrics))
	for i, m := range c.metrics {
		names[i] = m.Name()
	}
	log := c.log.WithFields(logrus.Fields{
		"metrics": names,
		"mode":    c.mode.String(),
		"frames":  c.numFrames,
		"threads": c.frameThreads,
	})
	log.Info("comparison started")
	began := time.Now()

	err := c.run(parentCtx)
	for _, name := range names {
		telemetry.RecordRun(name, err)
	}
	if err != nil {
		log.WithError(err).Error("comparison failed")
		return nil, err
	}

	if idle := c.idleBuffers(); idle != 2*c.framePoolA.Cap() {
		log.WithFields(logrus.Fields{
			"idle":     idle,
			"capacity": 2 * c.framePoolA.Cap(),
		}).Warn("frame buffers were not returned to their pools")
	}

	contexts := c.reduce()
	log.WithField("elapsed", time.Since(began).String()).Info("comparison finished")
	return contexts, nil
}

// idleBuffers counts the frame buffers currently back in both pools.
func (c *Comparator) idleBuffers() int {
	return c.framePoolA.Len() + c.framePoolB.Len()
}

func (c *Comparator) run(parentCtx context.Context) error {
	for _, src := range []video.Source{c.videoA, c.videoB} {
		if err := src.Seek(c.start); err != nil {
			return err
		}
	}

	group, ctx := errgroup.WithContext(parentCtx)
	c.ctx = ctx

	group.Go(func() error {
		defer close(c.videoAFrameChan)
		defer close(c.videoBFrameChan)
		return c.spawnReaderThreads()
	})

	group.Go(func() error {
		defer close(c.fPairChan)
		return c.spawnFramePairThreads()
	})

	group.Go(func() error {
		defer close(c.scoresChan)
		return c.spawnMetricsThreads()
	})

	completed := 0
	group.Go(func() (err error) {
		completed, err = c.aggregateResults()
		return err
	})

	if err := group.Wait(); err != nil {
		return err
	}
	// Stages exit quietly when the context ends, so a cancelled run can
	// finish without an error from any of them.
	if err := parentCtx.Err(); err != nil {
		return err
	}
	if completed != c.numFrames {
		return fmt.Errorf("scored %d of %d frame pairs", completed, c.numFrames)
	}
	return nil
}

// ----------------------------------------------------------------------------
// Reader Threads
// ----------------------------------------------------------------------------

// spawnReaderThreads starts two goroutines that decode frames from the two
// video sources and send them on their respective channels.
//
// When both readers finish, the frame channels are closed.
func (c *Comparator) spawnReaderThreads() error {
	group, ctx := errgroup.WithContext(c.ctx)

	group.Go(func() error {
		return c.readerThread(ctx, c.videoA, c.videoAFrameChan, &c.framePoolA)
	})
	group.Go(func() error {
		return c.readerThread(ctx, c.videoB, c.videoBFrameChan, &c.framePoolB)
	})

	return group.Wait() // if any reader fails, ctx is cancelled automatically
}

// readerThread decodes numFrames frames from src into frameChan, reusing
// buffers obtained from framePool.
func (c *Comparator) readerThread(ctx context.Context, src video.Source,
	frameChan chan *video.Frame, framePool *blockingpool.BlockingPool[*video.Frame]) error {
	for range c.numFrames {
		frame, err := framePool.GetContext(ctx)
		if err != nil {
			return err
		}

		if err := src.Next(frame); err != nil {
			_ = framePool.PutContext(ctx, frame)
			if errors.Is(err, io.EOF) {
				// The source promised more frames than it delivered.
				err = video.NewError(video.ErrDecode, "next", "",
					io.ErrUnexpectedEOF)
			}
			return err
		}

		select {
		case <-ctx.Done():
			_ = framePool.PutContext(ctx, frame)
			return ctx.Err()
		case frameChan <- frame:
		}
	}

	return nil
}

// ----------------------------------------------------------------------------
// Frame Pair Threads
// ----------------------------------------------------------------------------

// spawnFramePairThreads consumes one frame from each video channel, pairs
// them, and sends the pair on fPairChan.
func (c *Comparator) spawnFramePairThreads() error {
	for range c.numFrames {
		var a, b *video.Frame

		select {
		case <-c.ctx.Done():
			return c.ctx.Err()
		case a = <-c.videoAFrameChan:
			if a == nil {
				return nil
			}
		}

		select {
		case <-c.ctx.Done():
			return c.ctx.Err()
		case b = <-c.videoBFrameChan:
			if b == nil {
				return nil
			}
		}

		if a.Index != b.Index {
			return fmt.Errorf("paired frames %d and %d out of step",
				a.Index, b.Index)
		}

		select {
		case <-c.ctx.Done():
			return c.ctx.Err()
		case c.fPairChan <- framePair{a.Index, a, b}:
		}
	}
	return nil
}

// ----------------------------------------------------------------------------
// Metric Threads
// ----------------------------------------------------------------------------

// spawnMetricsThreads starts frameThreads goroutines that each run
// metricThread, consuming frame pairs and producing metricResult values.
func (c *Comparator) spawnMetricsThreads() error {
	group, ctx := errgroup.WithContext(c.ctx)

	for range c.frameThreads {
		group.Go(func() error { return c.metricThread(ctx) })
	}

	return group.Wait()
}

// metricThread consumes frame pairs from fPairChan, computes all requested
// metrics for each pair, and sends a metricResult on scoresChan.
//
// Returns the first error encountered, which triggers context cancellation
// upstream.
func (c *Comparator) metricThread(ctx context.Context) error {
	for pair := range withContext(ctx, c.fPairChan) {
		samples, err := c.computeFrameMetrics(ctx, pair)
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case c.scoresChan <- metricResult{pair.index, samples}:
		}
	}
	return nil
}

// computeFrameMetrics runs every metric on one frame pair concurrently and
// returns both frames to their pools.
func (c *Comparator) computeFrameMetrics(ctx context.Context, pair framePair) (
	[]metrics.FrameSample, error) {
	defer c.framePoolA.Put(pair.a)
	defer c.framePoolB.Put(pair.b)

	samples := make([]metrics.FrameSample, len(c.metrics))
	group, _ := errgroup.WithContext(ctx)

	for i, metric := range c.metrics {
		group.Go(func() error {
			began := time.Now()
			s, err := metric.ComputeFrame(c.header, pair.a, pair.b)
			if err != nil {
				return fmt.Errorf("%s computation failed: %w", metric.Name(), err)
			}
			telemetry.ObserveFrameScored(metric.Name(), time.Since(began))
			s.Index = pair.index
			samples[i] = s
			return nil
		})
	}

	return samples, group.Wait()
}

// ----------------------------------------------------------------------------
// Aggregation Threads
// ----------------------------------------------------------------------------

// aggregateResults consumes every metricResult from scoresChan and files the
// samples by frame index. It returns the number of frame pairs received.
func (c *Comparator) aggregateResults() (int, error) {
	completed := 0
	for res := range withContext(c.ctx, c.scoresChan) {
		slot := res.index - c.start
		if slot < 0 || slot >= c.numFrames {
			return completed, fmt.Errorf("aggregated index %d outside of "+
				"frames [%d, %d)", res.index, c.start, c.start+c.numFrames)
		}
		for m, s := range res.samples {
			c.samples[m][slot] = s
		}
		completed++
		if c.progress != nil {
			c.progress(completed, c.numFrames)
		}
	}
	return completed, nil
}

// reduce turns the filed samples into one Context per metric. Samples are
// combined in frame order so results do not depend on scheduling.
func (c *Comparator) reduce() []*Context {
	contexts := make([]*Context, len(c.metrics))
	for i, m := range c.metrics {
		samples := c.samples[i]
		out := &Context{
			RunID:        c.runID,
			Metric:       m.Name(),
			Kind:         m.Kind(),
			Mode:         c.mode,
			FramesScored: len(samples),
		}

		if c.mode == ModeFrame {
			out.result = m.FrameResult(c.header, samples[0])
		} else {
			out.result = m.VideoResult(c.header, samples)
		}

		if c.perFrame {
			out.frames = make([]FrameScore, len(samples))
			for j, s := range samples {
				out.frames[j] = FrameScore{
					Index:  s.Index,
					Result: m.FrameResult(c.header, s),
				}
			}
		}
		contexts[i] = out
	}
	return contexts
}

// withContext returns a new read-only channel that mirrors values from the
// input channel ch until either ch is closed or ctx is cancelled, at which
// point the returned channel is closed.
func withContext[T any](ctx context.Context, ch <-chan T) <-chan T {
	out := make(chan T, 1) // buffered to avoid blocking on send

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
