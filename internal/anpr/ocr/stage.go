package ocr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/plate.report/internal/anpr/video"
	"github.com/banshee-data/plate.report/internal/monitoring"
)

// Job is one dispatched plate crop awaiting recognition.
type Job struct {
	TrackID  int64
	FrameSeq int64
	Image    []byte
	Region   video.Rect
}

// Result is the outcome of one read. Candidate is nil when the read produced
// nothing usable: a capability error, a low-confidence reading, or text that
// failed the plausibility gate.
type Result struct {
	TrackID   int64
	Candidate *Candidate
	Err       error
}

// StageConfig tunes the recognition stage.
type StageConfig struct {
	// Workers is the number of concurrent recognition calls.
	Workers int

	// MinConfidence discards readings scoring below this floor.
	MinConfidence float64

	// Timeout bounds each recognition call. Zero disables the bound.
	Timeout time.Duration

	// Format post-processes recognized text. Nil uses DefaultFormat.
	Format *Format
}

// Stage runs recognition calls on a bounded worker pool. Results are not
// re-sequenced: the dispatch gate upstream allows at most one outstanding
// read per track, so per-track ordering is inherent.
type Stage struct {
	reader Reader
	cfg    StageConfig
}

// NewStage creates a recognition stage. Workers below 1 default to 1.
func NewStage(reader Reader, cfg StageConfig) *Stage {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Format == nil {
		cfg.Format = DefaultFormat()
	}
	return &Stage{reader: reader, cfg: cfg}
}

// Run consumes jobs until in closes or ctx is done, closing out on return.
// Every job accepted produces exactly one result, so the upstream dispatch
// gate can always be released.
func (s *Stage) Run(ctx context.Context, in <-chan Job, out chan<- Result) {
	defer close(out)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-in:
					if !ok {
						return
					}
					res := s.process(ctx, job)
					select {
					case out <- res:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}

// process runs one recognition call and post-processes the reading.
func (s *Stage) process(ctx context.Context, job Job) Result {
	res := Result{TrackID: job.TrackID}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	reading, err := s.reader.Read(ctx, job.Image, job.Region)
	if err != nil {
		res.Err = fmt.Errorf("recognition failed for track %d: %w", job.TrackID, err)
		return res
	}
	if reading.Confidence < s.cfg.MinConfidence {
		monitoring.Debugf("ocr: dropping low-confidence reading %q (%.2f) for track %d", reading.Text, reading.Confidence, job.TrackID)
		return res
	}
	text, ok := s.cfg.Format.Refine(reading.Text)
	if !ok {
		monitoring.Debugf("ocr: dropping implausible reading %q for track %d", reading.Text, job.TrackID)
		return res
	}

	res.Candidate = &Candidate{
		Text:       text,
		Confidence: reading.Confidence,
		TrackID:    job.TrackID,
		FrameSeq:   job.FrameSeq,
	}
	return res
}
