package detect

import (
	"context"
	"sort"
	"sync"

	"github.com/banshee-data/plate.report/internal/anpr/video"
)

// StageConfig tunes the detection stage.
type StageConfig struct {
	// Workers is the number of concurrent detector invocations. Results
	// are re-sequenced into frame order regardless of worker count.
	Workers int

	// MinConfidence drops detections scoring below this floor before they
	// reach the tracker.
	MinConfidence float64

	// ROI, when set, drops detections whose box center falls outside the
	// region of interest.
	ROI *video.Rect
}

// Stage runs detector invocations over incoming frames and emits one Batch
// per frame, in frame order, with detections filtered and sorted by
// descending confidence.
type Stage struct {
	det Detector
	cfg StageConfig
}

// NewStage creates a detection stage. Workers below 1 default to 1.
func NewStage(det Detector, cfg StageConfig) *Stage {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Stage{det: det, cfg: cfg}
}

// Run consumes frames until in closes or ctx is done, closing out on
// return. Every frame received produces exactly one batch on out; detector
// failures produce a batch with Err set and zero detections so downstream
// track aging still happens.
func (s *Stage) Run(ctx context.Context, in <-chan *video.Frame, out chan<- Batch) {
	defer close(out)

	if s.cfg.Workers == 1 {
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-in:
				if !ok {
					return
				}
				if !send(ctx, out, s.process(ctx, frame)) {
					return
				}
			}
		}
	}

	// Concurrent path: a dispatcher assigns dense tickets in arrival
	// order, workers process in parallel, and the collector below emits
	// batches strictly by ticket so frame order is preserved.
	type job struct {
		ticket uint64
		frame  *video.Frame
	}
	type result struct {
		ticket uint64
		batch  Batch
	}

	jobs := make(chan job)
	results := make(chan result, s.cfg.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				select {
				case results <- result{ticket: j.ticket, batch: s.process(ctx, j.frame)}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		var ticket uint64
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-in:
				if !ok {
					return
				}
				select {
				case jobs <- job{ticket: ticket, frame: frame}:
					ticket++
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	pending := make(map[uint64]Batch)
	var next uint64
	for r := range results {
		pending[r.ticket] = r.batch
		for {
			batch, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if !send(ctx, out, batch) {
				// Drain remaining results so workers can exit.
				for range results {
				}
				return
			}
			next++
		}
	}
}

func send(ctx context.Context, out chan<- Batch, b Batch) bool {
	select {
	case out <- b:
		return true
	case <-ctx.Done():
		return false
	}
}

// process invokes the detector for one frame and applies the stage filters.
func (s *Stage) process(ctx context.Context, frame *video.Frame) Batch {
	batch := Batch{
		FrameSeq:  frame.Seq,
		Timestamp: frame.Timestamp,
		Frame:     frame,
	}

	detections, err := s.det.Detect(ctx, frame)
	if err != nil {
		batch.Err = err
		return batch
	}

	kept := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if d.Confidence < s.cfg.MinConfidence {
			continue
		}
		if s.cfg.ROI != nil && !d.Box.CenterIn(*s.cfg.ROI) {
			continue
		}
		d.FrameSeq = frame.Seq
		kept = append(kept, d)
	}

	// Highest confidence first; stable so the detector's own ordering
	// breaks ties deterministically.
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Confidence > kept[j].Confidence
	})

	batch.Detections = kept
	return batch
}
