package video

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/plate.report/internal/timeutil"
)

// SyntheticSource generates placeholder frames without any camera or file
// input. Used by benchmarks, load tests, and smoke runs where the detection
// capability is also stubbed out.
type SyntheticSource struct {
	count    int
	width    int
	height   int
	interval time.Duration
	seq      int64
	clock    timeutil.Clock
	closed   bool
}

// SyntheticConfig controls frame generation.
type SyntheticConfig struct {
	// Count is the number of frames to produce. Zero or negative means
	// unlimited.
	Count int

	// Width and Height are the reported frame dimensions.
	Width  int
	Height int

	// Interval is the spacing between frame timestamps. The source sleeps
	// this long between frames so downstream pacing sees realistic gaps.
	Interval time.Duration
}

// NewSyntheticSource creates a generator with the given config. Zero-value
// dimensions default to 1280x720.
func NewSyntheticSource(cfg SyntheticConfig, clock timeutil.Clock) *SyntheticSource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg.Width <= 0 {
		cfg.Width = 1280
	}
	if cfg.Height <= 0 {
		cfg.Height = 720
	}
	return &SyntheticSource{
		count:    cfg.Count,
		width:    cfg.Width,
		height:   cfg.Height,
		interval: cfg.Interval,
		clock:    clock,
	}
}

// Next produces the next synthetic frame. The payload is a small
// deterministic marker rather than real image bytes; synthetic runs pair
// this source with a stub detector that never inspects pixels.
func (s *SyntheticSource) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed {
		return nil, ErrExhausted
	}
	if s.count > 0 && s.seq >= int64(s.count) {
		return nil, ErrExhausted
	}

	if s.interval > 0 && s.seq > 0 {
		s.clock.Sleep(s.interval)
	}

	s.seq++
	return &Frame{
		Seq:       s.seq,
		Timestamp: s.clock.Now(),
		Data:      []byte(fmt.Sprintf("synthetic-frame-%06d", s.seq)),
		Width:     s.width,
		Height:    s.height,
		SourceID:  "synthetic",
	}, nil
}

// Close stops generation; subsequent Next calls return ErrExhausted.
func (s *SyntheticSource) Close() error {
	s.closed = true
	return nil
}
