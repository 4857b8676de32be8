package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/plate.report/internal/anpr/detect"
	"github.com/banshee-data/plate.report/internal/anpr/ocr"
	"github.com/banshee-data/plate.report/internal/anpr/track"
	"github.com/banshee-data/plate.report/internal/anpr/video"
	"github.com/banshee-data/plate.report/internal/config"
)

func ptrString(v string) *string { return &v }

// testStats is a counting StatsRecorder so tests can assert throughput
// accounting without pulling in the monitor package.
type testStats struct {
	mu            sync.Mutex
	captured      int
	skipped       int
	dropped       int
	detections    int
	spawned       int
	evicted       int
	ocrDispatched int
	candidates    int
	readings      int
	failures      map[string]int
}

func newTestStats() *testStats {
	return &testStats{failures: make(map[string]int)}
}

func (s *testStats) AddFrameCaptured() { s.mu.Lock(); s.captured++; s.mu.Unlock() }
func (s *testStats) AddFrameSkipped()  { s.mu.Lock(); s.skipped++; s.mu.Unlock() }
func (s *testStats) AddFrameDropped()  { s.mu.Lock(); s.dropped++; s.mu.Unlock() }

func (s *testStats) AddDetections(count int) {
	s.mu.Lock()
	s.detections += count
	s.mu.Unlock()
}

func (s *testStats) AddTrackEvents(spawned, evicted int) {
	s.mu.Lock()
	s.spawned += spawned
	s.evicted += evicted
	s.mu.Unlock()
}

func (s *testStats) AddOCRDispatched()    { s.mu.Lock(); s.ocrDispatched++; s.mu.Unlock() }
func (s *testStats) AddCandidate()        { s.mu.Lock(); s.candidates++; s.mu.Unlock() }
func (s *testStats) AddReadingConfirmed() { s.mu.Lock(); s.readings++; s.mu.Unlock() }

func (s *testStats) AddStageFailure(stage string) {
	s.mu.Lock()
	s.failures[stage]++
	s.mu.Unlock()
}

func (s *testStats) snapshot() testStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	failures := make(map[string]int, len(s.failures))
	for k, v := range s.failures {
		failures[k] = v
	}
	return testStats{
		captured:      s.captured,
		skipped:       s.skipped,
		dropped:       s.dropped,
		detections:    s.detections,
		spawned:       s.spawned,
		evicted:       s.evicted,
		ocrDispatched: s.ocrDispatched,
		candidates:    s.candidates,
		readings:      s.readings,
		failures:      failures,
	}
}

// awaitStopped collects events from a subscription until EventStopped
// arrives, failing the test if the pipeline does not stop in time.
func awaitStopped(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var got []Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case evt := <-events:
			got = append(got, evt)
			if evt.Kind == EventStopped {
				return got
			}
		case <-deadline:
			t.Fatalf("pipeline did not stop; collected %d events", len(got))
		}
	}
}

func countKind(events []Event, kind EventKind) int {
	n := 0
	for _, evt := range events {
		if evt.Kind == kind {
			n++
		}
	}
	return n
}

func findKind(events []Event, kind EventKind) (Event, bool) {
	for _, evt := range events {
		if evt.Kind == kind {
			return evt, true
		}
	}
	return Event{}, false
}

// ---------------------------------------------------------------------------
// End to end
// ---------------------------------------------------------------------------

func TestCoordinator_ConfirmsReadingEndToEnd(t *testing.T) {
	t.Parallel()

	source := video.NewSyntheticSource(video.SyntheticConfig{
		Count:    12,
		Width:    1280,
		Height:   720,
		Interval: 20 * time.Millisecond,
	}, nil)

	detector := detect.NewMockDetector()
	detector.Default = []detect.Detection{{
		Box:        video.Rect{X: 200, Y: 200, W: 240, H: 160},
		Confidence: 0.9,
		Label:      "car",
		Color:      "blue",
	}}

	reader := ocr.NewMockReader()
	reader.Default = ocr.Reading{Text: "ka01 ab 1234", Confidence: 0.95}

	stats := newTestStats()
	coord, err := New(Config{
		Source:   source,
		Detector: detector,
		Reader:   reader,
		Stats:    stats,
	})
	require.NoError(t, err)

	subID, events := coord.Events().Subscribe()
	defer coord.Events().Unsubscribe(subID)

	require.NoError(t, coord.Start(context.Background()))
	got := awaitStopped(t, events)

	require.NotEmpty(t, got)
	assert.Equal(t, EventStarted, got[0].Kind)
	assert.Equal(t, EventStopped, got[len(got)-1].Kind)
	assert.Equal(t, 1, countKind(got, EventStarted))
	assert.Equal(t, 1, countKind(got, EventStopped))
	assert.Equal(t, 1, countKind(got, EventSourceExhausted))
	assert.Equal(t, 0, countKind(got, EventStageFatal))

	// The same vehicle is visible in every frame, so exactly one episode
	// confirms and it emits exactly one reading.
	require.Equal(t, 1, countKind(got, EventReading))
	evt, _ := findKind(got, EventReading)
	require.NotNil(t, evt.Reading)
	reading := *evt.Reading
	assert.Equal(t, "KA01AB1234", reading.Text)
	assert.InDelta(t, 0.95, reading.Confidence, 1e-9)
	assert.Equal(t, int64(1), reading.TrackID)
	assert.Equal(t, "synthetic", reading.SourceID)
	assert.Equal(t, 3, reading.Candidates)
	assert.Equal(t, "car", reading.Label)
	assert.Equal(t, "blue", reading.Color)
	assert.NotEmpty(t, reading.EventID)
	assert.False(t, reading.FirstSeen.IsZero())
	assert.True(t, reading.LastSeen.After(reading.FirstSeen))

	assert.False(t, coord.Running())

	trk, ok := coord.Tracker().GetTrack(reading.TrackID)
	require.True(t, ok)
	assert.Equal(t, track.TrackActive, trk.State)
	assert.Equal(t, track.ReadingConfirmed, trk.Reading)

	snap := stats.snapshot()
	assert.Equal(t, 12, snap.captured)
	assert.Equal(t, 0, snap.skipped)
	assert.Equal(t, 0, snap.dropped)
	assert.Equal(t, 12, snap.detections)
	assert.Equal(t, 1, snap.spawned)
	assert.Equal(t, 3, snap.ocrDispatched)
	assert.Equal(t, 3, snap.candidates)
	assert.Equal(t, 1, snap.readings)
	assert.Empty(t, snap.failures)
}

// ---------------------------------------------------------------------------
// Backpressure
// ---------------------------------------------------------------------------

func TestCoordinator_DropsOldestUnderBackpressure(t *testing.T) {
	t.Parallel()

	// Frames arrive in a burst while detection is slow, so the frame queue
	// overflows and sheds its oldest entries.
	source := video.NewSyntheticSource(video.SyntheticConfig{Count: 30}, nil)
	detector := detect.NewMockDetector()
	detector.Delay = 15 * time.Millisecond

	stats := newTestStats()
	coord, err := New(Config{
		Source:   source,
		Detector: detector,
		Reader:   ocr.NewMockReader(),
		Stats:    stats,
	})
	require.NoError(t, err)

	subID, events := coord.Events().Subscribe()
	defer coord.Events().Unsubscribe(subID)

	require.NoError(t, coord.Start(context.Background()))
	got := awaitStopped(t, events)

	assert.Equal(t, 1, countKind(got, EventSourceExhausted))
	assert.Equal(t, 0, countKind(got, EventReading))

	snap := stats.snapshot()
	assert.Equal(t, 30, snap.captured)
	assert.Greater(t, snap.dropped, 0)

	// Every captured frame is either dropped or detected, and the newest
	// frame is never the one shed.
	calls := detector.Calls()
	assert.Equal(t, 30-snap.dropped, len(calls))
	assert.Contains(t, calls, int64(30))
}

// ---------------------------------------------------------------------------
// Stage failure
// ---------------------------------------------------------------------------

func TestCoordinator_StageFatalAfterConsecutiveDetectorFailures(t *testing.T) {
	t.Parallel()

	source := video.NewSyntheticSource(video.SyntheticConfig{
		Interval: 2 * time.Millisecond,
	}, nil)

	errInfer := errors.New("inference backend unavailable")
	detector := detect.NewMockDetector()
	detector.Errs[1] = errInfer
	detector.Errs[2] = errInfer
	detector.Errs[3] = errInfer

	stats := newTestStats()
	coord, err := New(Config{
		Source:   source,
		Detector: detector,
		Reader:   ocr.NewMockReader(),
		Stats:    stats,
	})
	require.NoError(t, err)

	subID, events := coord.Events().Subscribe()
	defer coord.Events().Unsubscribe(subID)

	require.NoError(t, coord.Start(context.Background()))
	got := awaitStopped(t, events)

	require.Equal(t, 1, countKind(got, EventStageFatal))
	fatal, _ := findKind(got, EventStageFatal)
	assert.Equal(t, "detect", fatal.Stage)
	assert.Contains(t, fatal.Message, "inference backend unavailable")

	// The source never ran dry; the pipeline stopped itself.
	assert.Equal(t, 0, countKind(got, EventSourceExhausted))
	assert.Equal(t, 3, countKind(got, EventDiagnostic))
	assert.Equal(t, EventStopped, got[len(got)-1].Kind)
	assert.False(t, coord.Running())

	snap := stats.snapshot()
	assert.Equal(t, 3, snap.failures["detect"])
}

// ---------------------------------------------------------------------------
// Stop
// ---------------------------------------------------------------------------

func TestCoordinator_StopQuiesces(t *testing.T) {
	t.Parallel()

	source := video.NewSyntheticSource(video.SyntheticConfig{
		Interval: 2 * time.Millisecond,
	}, nil)

	stats := newTestStats()
	coord, err := New(Config{
		Source:   source,
		Detector: detect.NewMockDetector(),
		Reader:   ocr.NewMockReader(),
		Stats:    stats,
	})
	require.NoError(t, err)

	subID, events := coord.Events().Subscribe()
	defer coord.Events().Unsubscribe(subID)

	require.NoError(t, coord.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)

	done := coord.Done()
	start := time.Now()
	coord.Stop()
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second, "drain should finish well under the timeout")
	select {
	case <-done:
	default:
		t.Fatal("done channel not closed after Stop returned")
	}
	assert.False(t, coord.Running())

	got := awaitStopped(t, events)
	assert.Equal(t, 1, countKind(got, EventStarted))
	assert.Equal(t, 1, countKind(got, EventStopped))
	assert.Equal(t, 0, countKind(got, EventStageFatal))
	assert.Greater(t, stats.snapshot().captured, 0)

	// Stopping again is a no-op.
	coord.Stop()
}

func TestCoordinator_StopAbandonsStuckWorkAfterDrainTimeout(t *testing.T) {
	t.Parallel()

	// Detection hangs far past the drain timeout, so Stop must give up on
	// the in-flight work instead of waiting it out.
	source := video.NewSyntheticSource(video.SyntheticConfig{Count: 8}, nil)
	detector := detect.NewMockDetector()
	detector.Delay = 10 * time.Second

	coord, err := New(Config{
		Source:   source,
		Detector: detector,
		Reader:   ocr.NewMockReader(),
		Tuning:   &config.TuningConfig{DrainTimeout: ptrString("50ms")},
	})
	require.NoError(t, err)

	subID, events := coord.Events().Subscribe()
	defer coord.Events().Unsubscribe(subID)

	require.NoError(t, coord.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	coord.Stop()
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 45*time.Millisecond, "drain timer should have fired")
	assert.Less(t, elapsed, 2*time.Second, "abort must not wait for the stuck detector")
	assert.False(t, coord.Running())

	got := awaitStopped(t, events)
	assert.Equal(t, 1, countKind(got, EventStopped))
}

// ---------------------------------------------------------------------------
// Lifecycle and construction
// ---------------------------------------------------------------------------

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	source := video.NewSyntheticSource(video.SyntheticConfig{Count: 1}, nil)
	detector := detect.NewMockDetector()
	reader := ocr.NewMockReader()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"all missing", Config{}},
		{"no source", Config{Detector: detector, Reader: reader}},
		{"no detector", Config{Source: source, Reader: reader}},
		{"no reader", Config{Source: source, Detector: detector}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.ErrorIs(t, err, ErrNotConfigured)
		})
	}

	t.Run("bad plate pattern", func(t *testing.T) {
		_, err := New(Config{
			Source:   source,
			Detector: detector,
			Reader:   reader,
			Tuning:   &config.TuningConfig{PlatePattern: ptrString("[unclosed")},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid plate format")
	})
}

func TestCoordinator_StartTwiceAndRestart(t *testing.T) {
	t.Parallel()

	source := video.NewSyntheticSource(video.SyntheticConfig{
		Interval: 2 * time.Millisecond,
	}, nil)

	coord, err := New(Config{
		Source:   source,
		Detector: detect.NewMockDetector(),
		Reader:   ocr.NewMockReader(),
	})
	require.NoError(t, err)

	require.NoError(t, coord.Start(context.Background()))
	assert.True(t, coord.Running())
	assert.ErrorIs(t, coord.Start(context.Background()), ErrAlreadyRunning)

	coord.Stop()
	assert.False(t, coord.Running())

	// A stopped coordinator can be started again and keeps its tracker, so
	// track identity is continuous across runs.
	require.NoError(t, coord.Start(context.Background()))
	assert.True(t, coord.Running())
	coord.Stop()
}

func TestFailGate(t *testing.T) {
	t.Parallel()

	gate := newFailGate(3)
	assert.False(t, gate.fail())
	assert.False(t, gate.fail())
	assert.True(t, gate.fail(), "third consecutive failure trips the gate")
	assert.False(t, gate.fail(), "the gate trips only once")

	gate = newFailGate(3)
	gate.fail()
	gate.fail()
	gate.ok()
	assert.False(t, gate.fail(), "a success resets the consecutive count")

	assert.Equal(t, 1, newFailGate(0).limit)
}
