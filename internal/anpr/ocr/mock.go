package ocr

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/plate.report/internal/anpr/video"
)

// MockReader implements Reader for testing with scripted responses keyed by
// the image payload, so outcomes stay deterministic regardless of worker
// scheduling.
type MockReader struct {
	mu sync.Mutex

	// Responses maps image payloads to canned readings.
	Responses map[string]Reading

	// Errs maps image payloads to injected failures.
	Errs map[string]error

	// Default is returned for images with no scripted entry.
	Default Reading

	// Delay simulates inference latency per call.
	Delay time.Duration

	calls int
}

// NewMockReader creates an empty scripted reader.
func NewMockReader() *MockReader {
	return &MockReader{
		Responses: make(map[string]Reading),
		Errs:      make(map[string]error),
	}
}

// Read returns the scripted response for the image payload.
func (m *MockReader) Read(ctx context.Context, image []byte, region video.Rect) (Reading, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return Reading{}, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	key := string(image)
	if err, ok := m.Errs[key]; ok {
		return Reading{}, err
	}
	if reading, ok := m.Responses[key]; ok {
		return reading, nil
	}
	return m.Default, nil
}

// Calls returns how many reads have been issued.
func (m *MockReader) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// SimulatedReader fabricates a fixed plate reading. Paired with the
// simulated detector it completes a no-sidecar smoke pipeline.
type SimulatedReader struct {
	// Plate is the fabricated registration. Empty uses a sample plate.
	Plate string

	// Confidence is the fabricated score. Zero uses 0.92.
	Confidence float64
}

// Read returns the fabricated reading.
func (r *SimulatedReader) Read(ctx context.Context, image []byte, region video.Rect) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}
	plate := r.Plate
	if plate == "" {
		plate = "KA01AB1234"
	}
	conf := r.Confidence
	if conf <= 0 {
		conf = 0.92
	}
	return Reading{Text: plate, Confidence: conf}, nil
}
