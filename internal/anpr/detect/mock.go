package detect

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/plate.report/internal/anpr/video"
)

// MockDetector implements Detector for testing with scripted responses.
type MockDetector struct {
	mu sync.Mutex

	// Responses maps frame sequence numbers to canned detections.
	Responses map[int64][]Detection

	// Errs maps frame sequence numbers to injected failures.
	Errs map[int64]error

	// Default is returned for frames with no scripted entry.
	Default []Detection

	// Delay simulates inference latency per call.
	Delay time.Duration

	calls []int64
}

// NewMockDetector creates an empty scripted detector.
func NewMockDetector() *MockDetector {
	return &MockDetector{
		Responses: make(map[int64][]Detection),
		Errs:      make(map[int64]error),
	}
}

// Detect returns the scripted response for the frame's sequence number.
func (m *MockDetector) Detect(ctx context.Context, frame *video.Frame) ([]Detection, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, frame.Seq)

	if err, ok := m.Errs[frame.Seq]; ok {
		return nil, err
	}
	if dets, ok := m.Responses[frame.Seq]; ok {
		out := make([]Detection, len(dets))
		copy(out, dets)
		return out, nil
	}
	out := make([]Detection, len(m.Default))
	copy(out, m.Default)
	return out, nil
}

// Calls returns the frame sequence numbers seen so far, in call order.
func (m *MockDetector) Calls() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, len(m.calls))
	copy(out, m.calls)
	return out
}

// SimulatedDetector fabricates a single vehicle driving across the frame,
// one detection per frame. Paired with the synthetic source it gives an
// end-to-end smoke run with no sidecar attached.
type SimulatedDetector struct {
	// Step is the horizontal movement in pixels per frame.
	Step int

	// BoxW and BoxH are the fabricated vehicle dimensions.
	BoxW int
	BoxH int
}

// Detect produces one deterministic detection sliding left to right,
// wrapping when it leaves the frame.
func (d *SimulatedDetector) Detect(ctx context.Context, frame *video.Frame) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	step := d.Step
	if step <= 0 {
		step = 12
	}
	w, h := d.BoxW, d.BoxH
	if w <= 0 {
		w = 240
	}
	if h <= 0 {
		h = 160
	}

	span := frame.Width - w
	if span < 1 {
		span = 1
	}
	x := int(frame.Seq) * step % span
	y := frame.Height / 3

	return []Detection{{
		Box:        video.Rect{X: x, Y: y, W: w, H: h},
		Confidence: 0.9,
		FrameSeq:   frame.Seq,
		Label:      "car",
		Color:      "white",
	}}, nil
}
