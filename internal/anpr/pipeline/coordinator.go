package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/plate.report/internal/anpr/aggregate"
	"github.com/banshee-data/plate.report/internal/anpr/detect"
	"github.com/banshee-data/plate.report/internal/anpr/ocr"
	"github.com/banshee-data/plate.report/internal/anpr/track"
	"github.com/banshee-data/plate.report/internal/anpr/video"
	"github.com/banshee-data/plate.report/internal/config"
	"github.com/banshee-data/plate.report/internal/eventbus"
	"github.com/banshee-data/plate.report/internal/timeutil"
)

var (
	// ErrAlreadyRunning is returned by Start on a running coordinator.
	ErrAlreadyRunning = errors.New("pipeline already running")

	// ErrNotConfigured is returned when a required collaborator is missing.
	ErrNotConfigured = errors.New("pipeline requires a source, a detector, and a reader")
)

// Config holds the collaborators and tuning for a coordinator.
type Config struct {
	// Source supplies frames. Required.
	Source video.Source

	// Detector is the vehicle-detection capability. Required.
	Detector detect.Detector

	// Reader is the text-recognition capability. Required.
	Reader ocr.Reader

	// Tuning supplies thresholds and queue sizes. Nil uses defaults.
	Tuning *config.TuningConfig

	// Stats receives throughput counters. Nil discards them.
	Stats StatsRecorder

	// Clock drives capture pacing and the drain timer. Nil uses real time.
	Clock timeutil.Clock
}

// Coordinator drives the staged pipeline: capture, detection, tracking,
// recognition, and aggregation, connected by bounded queues. Consumers
// observe it exclusively through the event bus and the snapshot accessors;
// all track mutation happens on the coordinator's own tracking loop.
type Coordinator struct {
	cfg    Config
	tuning *config.TuningConfig
	clock  timeutil.Clock
	stats  StatsRecorder
	format *ocr.Format

	tracker *track.Tracker
	agg     *aggregate.Aggregator
	bus     *eventbus.Bus[Event]

	// srcID is learned from the first batch and stamped onto reading
	// events. Touched only from the tracking loop.
	srcID string

	mu            sync.Mutex
	running       bool
	cancelCapture context.CancelFunc
	cancelRun     context.CancelFunc
	done          chan struct{}
}

// New creates a coordinator. The tracker and aggregator are built from the
// tuning config and live for the coordinator's lifetime, so track identity
// is continuous across restarts of the same coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Source == nil || cfg.Detector == nil || cfg.Reader == nil {
		return nil, ErrNotConfigured
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Stats == nil {
		cfg.Stats = nopStats{}
	}
	format, err := ocr.FormatFromTuning(cfg.Tuning)
	if err != nil {
		return nil, fmt.Errorf("invalid plate format: %w", err)
	}

	return &Coordinator{
		cfg:     cfg,
		tuning:  cfg.Tuning,
		clock:   cfg.Clock,
		stats:   cfg.Stats,
		format:  format,
		tracker: track.NewTracker(track.ConfigFromTuning(cfg.Tuning)),
		agg:     aggregate.New(aggregate.ConfigFromTuning(cfg.Tuning)),
		bus:     eventbus.New[Event](64),
	}, nil
}

// Events returns the bus carrying lifecycle, diagnostic, and reading
// events. Subscribe before Start to observe EventStarted.
func (c *Coordinator) Events() *eventbus.Bus[Event] { return c.bus }

// Tracker returns the live tracker for snapshot reads and runtime tuning.
func (c *Coordinator) Tracker() *track.Tracker { return c.tracker }

// Aggregator returns the live aggregator for runtime tuning.
func (c *Coordinator) Aggregator() *aggregate.Aggregator { return c.agg }

// Running reports whether the pipeline is currently processing.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Done returns a channel closed when the current run has fully quiesced.
// Valid after Start.
func (c *Coordinator) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Start launches the pipeline stages. It returns immediately; progress is
// reported on the event bus. The pipeline stops on Stop, on source
// exhaustion, or on a stage-fatal error, emitting EventStopped in every
// case.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	capCtx, cancelCapture := context.WithCancel(runCtx)
	done := make(chan struct{})

	c.running = true
	c.cancelRun = cancelRun
	c.cancelCapture = cancelCapture
	c.done = done
	c.mu.Unlock()

	queueCap := c.tuning.GetQueueCapacity()
	frames := make(chan *video.Frame, queueCap)
	batches := make(chan detect.Batch, queueCap)
	jobs := make(chan ocr.Job, queueCap)
	results := make(chan ocr.Result, queueCap)

	detStage := detect.NewStage(c.cfg.Detector, detect.StageConfig{
		Workers:       c.tuning.GetDetectWorkers(),
		MinConfidence: c.tuning.GetMinDetectionConfidence(),
		ROI:           roiRect(c.tuning.GetROI()),
	})
	ocrStage := ocr.NewStage(c.cfg.Reader, ocr.StageConfig{
		Workers:       c.tuning.GetOCRWorkers(),
		MinConfidence: c.tuning.GetMinOCRConfidence(),
		Timeout:       c.tuning.GetOCRTimeout(),
		Format:        c.format,
	})

	go c.captureLoop(capCtx, frames)
	go detStage.Run(runCtx, frames, batches)
	go ocrStage.Run(runCtx, jobs, results)
	go func() {
		c.trackLoop(runCtx, batches, jobs, results)
		cancelRun()
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		c.emit(Event{Kind: EventStopped})
		close(done)
	}()

	diagf("pipeline started: queue %d, detect workers %d, ocr workers %d",
		queueCap, c.tuning.GetDetectWorkers(), c.tuning.GetOCRWorkers())
	c.emit(Event{Kind: EventStarted})
	return nil
}

// Stop cancels frame capture and waits for in-flight work to drain, up to
// the configured drain timeout; work still outstanding at the deadline is
// abandoned. Safe to call when not running, and more than once.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancelCapture := c.cancelCapture
	cancelRun := c.cancelRun
	done := c.done
	c.mu.Unlock()

	cancelCapture()

	timer := c.clock.NewTimer(c.tuning.GetDrainTimeout())
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C():
		opsf("stop: drain timeout after %v, abandoning in-flight work", c.tuning.GetDrainTimeout())
		cancelRun()
		<-done
	}
}

// captureLoop pulls frames from the source, applies the stride and
// frame-rate limits, and feeds the detection queue. It owns the frames
// channel and closes it on exit.
func (c *Coordinator) captureLoop(ctx context.Context, frames chan *video.Frame) {
	defer close(frames)

	var minInterval time.Duration
	if maxFPS := c.tuning.GetMaxFrameRate(); maxFPS > 0 {
		minInterval = time.Duration(float64(time.Second) / maxFPS)
	}
	stride := c.tuning.GetFrameStride()
	gate := newFailGate(c.tuning.GetStageFailureLimit())

	var captured uint64
	var lastEmit time.Time
	for {
		if ctx.Err() != nil {
			return
		}
		frame, err := c.cfg.Source.Next(ctx)
		if err != nil {
			if errors.Is(err, video.ErrExhausted) {
				diagf("capture: source exhausted after %d frames", captured)
				c.emit(Event{Kind: EventSourceExhausted, Stage: "capture"})
				return
			}
			if ctx.Err() != nil {
				return
			}
			opsf("capture: %v", err)
			c.stats.AddStageFailure("capture")
			c.emit(Event{Kind: EventDiagnostic, Stage: "capture", Message: err.Error()})
			if gate.fail() {
				opsf("capture: %d consecutive failures, stopping", gate.limit)
				c.emit(Event{Kind: EventStageFatal, Stage: "capture", Message: err.Error()})
				return
			}
			continue
		}
		gate.ok()
		captured++
		c.stats.AddFrameCaptured()

		if stride > 1 && (captured-1)%uint64(stride) != 0 {
			c.stats.AddFrameSkipped()
			continue
		}
		if minInterval > 0 {
			now := c.clock.Now()
			if !lastEmit.IsZero() && now.Sub(lastEmit) < minInterval {
				c.stats.AddFrameSkipped()
				tracef("capture: throttled frame %d", frame.Seq)
				continue
			}
			lastEmit = now
		}
		c.offerFrame(ctx, frames, frame)
	}
}

// offerFrame enqueues without ever blocking capture: when the queue is full
// the oldest queued frame is discarded to make room, so the newest frame is
// never the one dropped.
func (c *Coordinator) offerFrame(ctx context.Context, frames chan *video.Frame, f *video.Frame) {
	for {
		select {
		case frames <- f:
			return
		default:
		}
		select {
		case old := <-frames:
			c.stats.AddFrameDropped()
			tracef("capture: dropped frame %d (queue full)", old.Seq)
		default:
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// trackLoop is the single goroutine that mutates track state. It consumes
// detection batches in frame order, dispatches plate crops, folds
// recognition results into the aggregator, and publishes reading events.
func (c *Coordinator) trackLoop(ctx context.Context, batches <-chan detect.Batch, jobs chan<- ocr.Job, results <-chan ocr.Result) {
	detGate := newFailGate(c.tuning.GetStageFailureLimit())
	ocrGate := newFailGate(c.tuning.GetStageFailureLimit())

	jobsOpen := true
	closeJobs := func() {
		if jobsOpen {
			close(jobs)
			jobsOpen = false
		}
	}
	defer closeJobs()

	for batches != nil || results != nil {
		select {
		case <-ctx.Done():
			// Hard abort. The stages exit on the same context; drain the
			// results channel so the recognition pool can unwind.
			closeJobs()
			for results != nil {
				if _, ok := <-results; !ok {
					results = nil
				}
			}
			return

		case batch, ok := <-batches:
			if !ok {
				batches = nil
				closeJobs()
				continue
			}
			c.handleBatch(batch, jobs, detGate)

		case res, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			c.handleResult(res, ocrGate)
		}
	}
}

// handleBatch advances track state by one frame and dispatches any crops
// that became ready.
func (c *Coordinator) handleBatch(batch detect.Batch, jobs chan<- ocr.Job, detGate *failGate) {
	if batch.Err != nil {
		opsf("detect: frame %d: %v", batch.FrameSeq, batch.Err)
		c.stats.AddStageFailure("detect")
		c.emit(Event{Kind: EventDiagnostic, Stage: "detect", Message: batch.Err.Error()})
		if detGate.fail() {
			opsf("detect: %d consecutive failures, stopping", detGate.limit)
			c.emit(Event{Kind: EventStageFatal, Stage: "detect", Message: batch.Err.Error()})
			c.requestStop()
		}
	} else {
		detGate.ok()
		c.stats.AddDetections(len(batch.Detections))
	}

	if batch.Frame == nil {
		return
	}
	c.srcID = batch.Frame.SourceID

	// A failed detection still ages every track by one miss.
	sum := c.tracker.Update(batch.Detections, batch.Frame)
	c.stats.AddTrackEvents(len(sum.Spawned), len(sum.Evicted))
	for _, id := range sum.Evicted {
		c.agg.Evict(id)
	}
	if len(sum.Spawned) > 0 || len(sum.Evicted) > 0 {
		tracef("track: frame %d matched %d spawned %d evicted %d",
			batch.FrameSeq, sum.Matched, len(sum.Spawned), len(sum.Evicted))
	}

	for _, cj := range c.tracker.TakeReadyCrops() {
		job := ocr.Job{
			TrackID:  cj.TrackID,
			FrameSeq: cj.Crop.FrameSeq,
			Image:    cj.Crop.Image,
			Region:   cj.Crop.Box,
		}
		select {
		case jobs <- job:
			c.stats.AddOCRDispatched()
		default:
			// Queue full: hand the crop back so a later frame retries.
			c.tracker.ReleaseCrop(cj.TrackID)
		}
	}
}

// handleResult folds one recognition outcome back into track and
// aggregation state, emitting a reading event on confirmation.
func (c *Coordinator) handleResult(res ocr.Result, ocrGate *failGate) {
	c.tracker.CompleteOCR(res.TrackID)

	if res.Err != nil {
		opsf("ocr: %v", res.Err)
		c.stats.AddStageFailure("ocr")
		c.emit(Event{Kind: EventDiagnostic, Stage: "ocr", Message: res.Err.Error()})
		if ocrGate.fail() {
			opsf("ocr: %d consecutive failures, stopping", ocrGate.limit)
			c.emit(Event{Kind: EventStageFatal, Stage: "ocr", Message: res.Err.Error()})
			c.requestStop()
		}
		return
	}
	ocrGate.ok()

	if res.Candidate == nil {
		tracef("ocr: track %d yielded no usable text", res.TrackID)
		return
	}
	c.stats.AddCandidate()

	trk, ok := c.tracker.GetTrack(res.TrackID)
	if !ok || trk.State != track.TrackActive {
		// The vehicle left while the read was in flight; its episode is
		// closed and can no longer emit.
		return
	}

	evt, confirmed := c.agg.Add(*res.Candidate, aggregate.TrackInfo{
		Label:     trk.Label,
		Color:     trk.Color,
		Box:       trk.Box,
		FirstSeen: trk.FirstSeen,
		LastSeen:  trk.LastSeen,
	})
	if !confirmed {
		return
	}
	c.tracker.MarkReadingConfirmed(evt.TrackID)
	evt.SourceID = c.srcID
	c.stats.AddReadingConfirmed()
	diagf("reading confirmed: track %d %q (%.2f, %d candidates)",
		evt.TrackID, evt.Text, evt.Confidence, evt.Candidates)
	c.emit(Event{Kind: EventReading, Reading: &evt})
}

// requestStop begins a graceful shutdown from inside the pipeline: capture
// stops, queued work drains, and EventStopped follows.
func (c *Coordinator) requestStop() {
	c.mu.Lock()
	cancel := c.cancelCapture
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Coordinator) emit(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = c.clock.Now()
	}
	c.bus.Publish(evt)
}

func roiRect(roi *config.ROI) *video.Rect {
	if roi == nil {
		return nil
	}
	return &video.Rect{X: roi.X, Y: roi.Y, W: roi.Width, H: roi.Height}
}

// failGate trips after a run of consecutive failures in one stage.
type failGate struct {
	limit int
	run   int
}

func newFailGate(limit int) *failGate {
	if limit < 1 {
		limit = 1
	}
	return &failGate{limit: limit}
}

func (g *failGate) ok() { g.run = 0 }

// fail records one failure and reports whether this one tripped the gate.
// Failures past the threshold do not re-trip.
func (g *failGate) fail() bool {
	g.run++
	return g.run == g.limit
}
