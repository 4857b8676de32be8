package pipeline

// StatsRecorder receives pipeline throughput counters. Implementations must
// be safe for concurrent use; the monitor package provides the standard one.
type StatsRecorder interface {
	AddFrameCaptured()
	AddFrameSkipped()
	AddFrameDropped()
	AddDetections(count int)
	AddTrackEvents(spawned, evicted int)
	AddOCRDispatched()
	AddCandidate()
	AddReadingConfirmed()
	AddStageFailure(stage string)
}

// nopStats is used when no recorder is configured.
type nopStats struct{}

func (nopStats) AddFrameCaptured()       {}
func (nopStats) AddFrameSkipped()        {}
func (nopStats) AddFrameDropped()        {}
func (nopStats) AddDetections(int)       {}
func (nopStats) AddTrackEvents(int, int) {}
func (nopStats) AddOCRDispatched()       {}
func (nopStats) AddCandidate()           {}
func (nopStats) AddReadingConfirmed()    {}
func (nopStats) AddStageFailure(string)  {}
