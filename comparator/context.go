package comparator

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/GreatValueCreamSoda/yuvmetrics/metrics"
)

// ErrReleased is returned when reading a Context after Release.
var ErrReleased = errors.New("comparator: context has been released")

// Mode tells whether a Context scores a whole video or a single frame.
type Mode int

const (
	ModeVideo Mode = iota
	ModeFrame
)

func (m Mode) String() string {
	if m == ModeFrame {
		return "frame"
	}
	return "video"
}

// FrameScore is the result of one frame pair within a video run.
type FrameScore struct {
	Index  int            `json:"index"`
	Result metrics.Result `json:"result"`
}

// Context holds the outcome of one metric over one comparison. It is owned
// by the caller, who calls Release once the scores have been consumed.
type Context struct {
	RunID        uuid.UUID
	Metric       string
	Kind         metrics.Kind
	Mode         Mode
	FramesScored int

	mu       sync.Mutex
	released bool
	result   metrics.Result
	frames   []FrameScore
}

// Result returns the aggregated score: the video score in video mode, the
// frame score in frame mode.
func (c *Context) Result() (metrics.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return metrics.Result{}, ErrReleased
	}
	return c.result, nil
}

// Frames returns the per-frame scores in index order. It is empty unless
// the run was started with Options.PerFrame.
func (c *Context) Frames() ([]FrameScore, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil, ErrReleased
	}
	return c.frames, nil
}

// Release drops the held scores. Calling it more than once is harmless.
func (c *Context) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
	c.result = metrics.Result{}
	c.frames = nil
}

func (c *Context) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

type contextJSON struct {
	RunID        string         `json:"run_id"`
	Mode         string         `json:"mode"`
	FramesScored int            `json:"frames_scored"`
	Result       metrics.Result `json:"result"`
	Frames       []FrameScore   `json:"frames,omitempty"`
}

func (c *Context) MarshalJSON() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil, ErrReleased
	}
	return json.Marshal(contextJSON{
		RunID:        c.RunID.String(),
		Mode:         c.Mode.String(),
		FramesScored: c.FramesScored,
		Result:       c.result,
		Frames:       c.frames,
	})
}
