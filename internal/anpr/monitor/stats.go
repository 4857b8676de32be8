package monitor

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// StatsSnapshot represents a snapshot of current statistics
type StatsSnapshot struct {
	FramesPerSec     float64
	DetectionsPerSec float64
	ReadsPerSec      float64
	DroppedCount     int64
	ReadingCount     int64
	Timestamp        time.Time
}

// IntervalCounts holds the counters accumulated since the last reset.
type IntervalCounts struct {
	Frames     int64
	Skipped    int64
	Dropped    int64
	Detections int64
	Spawned    int64
	Evicted    int64
	OCRReads   int64
	Candidates int64
	Readings   int64
	Failures   int64
}

// TotalCounts holds the counters accumulated since startup. Unlike
// IntervalCounts these are never reset.
type TotalCounts struct {
	Frames        int64
	Skipped       int64
	Dropped       int64
	Detections    int64
	TracksSpawned int64
	TracksEvicted int64
	OCRReads      int64
	Candidates    int64
	Readings      int64
	StageFailures map[string]int64
}

// PipelineStats tracks pipeline statistics with thread-safe operations.
// It satisfies the pipeline's stats recorder interface.
type PipelineStats struct {
	mu             sync.Mutex
	interval       IntervalCounts
	totals         TotalCounts
	lastReset      time.Time
	startTime      time.Time
	latestSnapshot *StatsSnapshot
}

// NewPipelineStats creates a new PipelineStats instance
func NewPipelineStats() *PipelineStats {
	now := time.Now()
	return &PipelineStats{
		totals:    TotalCounts{StageFailures: make(map[string]int64)},
		lastReset: now,
		startTime: now,
	}
}

// AddFrameCaptured increments the captured frame count
func (ps *PipelineStats) AddFrameCaptured() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.interval.Frames++
	ps.totals.Frames++
}

// AddFrameSkipped increments the stride-skipped frame count
func (ps *PipelineStats) AddFrameSkipped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.interval.Skipped++
	ps.totals.Skipped++
}

// AddFrameDropped increments the backpressure-dropped frame count
func (ps *PipelineStats) AddFrameDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.interval.Dropped++
	ps.totals.Dropped++
}

// AddDetections increments the detection count
func (ps *PipelineStats) AddDetections(count int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.interval.Detections += int64(count)
	ps.totals.Detections += int64(count)
}

// AddTrackEvents increments the spawned and evicted track counts
func (ps *PipelineStats) AddTrackEvents(spawned, evicted int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.interval.Spawned += int64(spawned)
	ps.interval.Evicted += int64(evicted)
	ps.totals.TracksSpawned += int64(spawned)
	ps.totals.TracksEvicted += int64(evicted)
}

// AddOCRDispatched increments the dispatched read count
func (ps *PipelineStats) AddOCRDispatched() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.interval.OCRReads++
	ps.totals.OCRReads++
}

// AddCandidate increments the accepted candidate count
func (ps *PipelineStats) AddCandidate() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.interval.Candidates++
	ps.totals.Candidates++
}

// AddReadingConfirmed increments the confirmed reading count
func (ps *PipelineStats) AddReadingConfirmed() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.interval.Readings++
	ps.totals.Readings++
}

// AddStageFailure increments the failure count for one stage
func (ps *PipelineStats) AddStageFailure(stage string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.interval.Failures++
	ps.totals.StageFailures[stage]++
}

// GetAndReset returns the interval counters and resets them
func (ps *PipelineStats) GetAndReset() (IntervalCounts, time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	duration := now.Sub(ps.lastReset)
	counts := ps.interval

	ps.interval = IntervalCounts{}
	ps.lastReset = now

	return counts, duration
}

// LogStats logs formatted statistics and stores snapshot for web interface
func (ps *PipelineStats) LogStats() {
	counts, duration := ps.GetAndReset()
	if counts.Frames > 0 || counts.Dropped > 0 {
		framesPerSec := float64(counts.Frames) / duration.Seconds()
		detectionsPerSec := float64(counts.Detections) / duration.Seconds()
		readsPerSec := float64(counts.OCRReads) / duration.Seconds()

		// Store snapshot for web interface
		ps.mu.Lock()
		ps.latestSnapshot = &StatsSnapshot{
			FramesPerSec:     framesPerSec,
			DetectionsPerSec: detectionsPerSec,
			ReadsPerSec:      readsPerSec,
			DroppedCount:     counts.Dropped,
			ReadingCount:     counts.Readings,
			Timestamp:        time.Now(),
		}
		ps.mu.Unlock()

		logMsg := fmt.Sprintf("ANPR stats (/sec): %.1f frames, %.1f detections, %.2f reads",
			framesPerSec, detectionsPerSec, readsPerSec)

		if counts.Readings > 0 {
			logMsg += fmt.Sprintf(", %d plates confirmed", counts.Readings)
		}
		if counts.Dropped > 0 {
			logMsg += fmt.Sprintf(", %d dropped on capture", counts.Dropped)
		}
		if counts.Failures > 0 {
			logMsg += fmt.Sprintf(", %d stage failures", counts.Failures)
		}

		log.Print(logMsg)
	}
}

// GetUptime returns the time since the stats were created
func (ps *PipelineStats) GetUptime() time.Duration {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return time.Since(ps.startTime)
}

// GetLatestSnapshot returns the most recent stats snapshot for web interface
func (ps *PipelineStats) GetLatestSnapshot() *StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.latestSnapshot == nil {
		return nil
	}
	// Return a copy to avoid race conditions
	snapshot := *ps.latestSnapshot
	return &snapshot
}

// Totals returns a copy of the cumulative counters.
func (ps *PipelineStats) Totals() TotalCounts {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	totals := ps.totals
	totals.StageFailures = make(map[string]int64, len(ps.totals.StageFailures))
	for stage, n := range ps.totals.StageFailures {
		totals.StageFailures[stage] = n
	}
	return totals
}

// FormatWithCommas formats a number with thousands separators
func FormatWithCommas(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}
