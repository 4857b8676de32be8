package track

import (
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/plate.report/internal/anpr/detect"
	"github.com/banshee-data/plate.report/internal/anpr/video"
	"github.com/banshee-data/plate.report/internal/config"
	"github.com/banshee-data/plate.report/internal/monitoring"
)

// Config holds tracker tuning parameters.
type Config struct {
	// IoUThreshold is the minimum intersection-over-union for a detection
	// to be considered a match for a track.
	IoUThreshold float64

	// MissLimit is the number of consecutive unmatched frames after which
	// a track is evicted.
	MissLimit int

	// MinCropArea is the minimum bounding-box area, in square pixels, for
	// a matched detection to yield a usable plate crop. Smaller boxes are
	// too far away to read.
	MinCropArea int

	// MaxTracks caps simultaneously active tracks. Detections that would
	// exceed the cap do not spawn tracks.
	MaxTracks int

	// EvictedGrace is how long evicted tracks remain visible in
	// snapshots before being dropped entirely.
	EvictedGrace time.Duration
}

// DefaultConfig returns the tracker defaults used when no tuning file is
// provided.
func DefaultConfig() Config {
	return Config{
		IoUThreshold: 0.3,
		MissLimit:    10,
		MinCropArea:  2500,
		MaxTracks:    64,
		EvictedGrace: 5 * time.Second,
	}
}

// ConfigFromTuning builds a tracker Config from the shared tuning file.
func ConfigFromTuning(t *config.TuningConfig) Config {
	return Config{
		IoUThreshold: t.GetIoUThreshold(),
		MissLimit:    t.GetTrackMissLimit(),
		MinCropArea:  t.GetMinCropArea(),
		MaxTracks:    t.GetMaxTracks(),
		EvictedGrace: t.GetEvictedGrace(),
	}
}

// UpdateSummary reports what one frame's update did, so the coordinator can
// notify the aggregator about evictions and account for captured crops.
type UpdateSummary struct {
	Matched       int
	Spawned       []int64
	Evicted       []int64
	CropsCaptured int
}

// CropJob is a dispatched plate crop awaiting recognition.
type CropJob struct {
	TrackID int64
	Crop    PlateCrop
}

// Tracker maintains vehicle identities across frames. All mutating methods
// must be called from a single goroutine in frame order; read snapshots may
// be taken concurrently.
type Tracker struct {
	mu      sync.RWMutex
	tracks  map[int64]*Track
	nextID  int64
	lastSeq int64
	cfg     Config
}

// NewTracker creates a tracker. Zero-value config fields are replaced with
// defaults.
func NewTracker(cfg Config) *Tracker {
	def := DefaultConfig()
	if cfg.IoUThreshold <= 0 {
		cfg.IoUThreshold = def.IoUThreshold
	}
	if cfg.MissLimit <= 0 {
		cfg.MissLimit = def.MissLimit
	}
	if cfg.MinCropArea < 0 {
		cfg.MinCropArea = def.MinCropArea
	}
	if cfg.MaxTracks <= 0 {
		cfg.MaxTracks = def.MaxTracks
	}
	if cfg.EvictedGrace <= 0 {
		cfg.EvictedGrace = def.EvictedGrace
	}
	return &Tracker{
		tracks: make(map[int64]*Track),
		nextID: 1,
		cfg:    cfg,
	}
}

// pair is a candidate association between a live track and a detection.
type pair struct {
	trackID int64
	detIdx  int
	iou     float64
	misses  int
}

// Update associates one frame's detections with live tracks and advances
// the lifecycle of every track. It implements greedy one-to-one matching:
// all (track, detection) pairs above the IoU threshold are sorted by
// descending overlap and consumed greedily, so each track matches at most
// one detection and vice versa. Ties prefer the track with fewer misses,
// then the older track, making the outcome deterministic.
func (t *Tracker) Update(dets []detect.Detection, frame *video.Frame) UpdateSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	seq := frame.Seq
	now := frame.Timestamp
	var sum UpdateSummary

	if seq < t.lastSeq {
		// Callers guarantee non-decreasing order; a regression here means
		// a re-sequencing bug upstream.
		monitoring.Logf("tracker: frame seq went backwards (%d after %d)", seq, t.lastSeq)
	}
	t.lastSeq = seq

	// Step 1: age all active tracks by one frame.
	active := make([]*Track, 0, len(t.tracks))
	for _, trk := range t.tracks {
		if trk.State == TrackActive {
			trk.Age++
			active = append(active, trk)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	// Step 2: score every (track, detection) pair above the threshold.
	var pairs []pair
	for _, trk := range active {
		for di, d := range dets {
			iou := trk.Box.IoU(d.Box)
			if iou >= t.cfg.IoUThreshold {
				pairs = append(pairs, pair{trackID: trk.ID, detIdx: di, iou: iou, misses: trk.Misses})
			}
		}
	}

	// Step 3: order pairs for greedy consumption. Higher IoU wins; equal
	// IoU prefers fewer misses, then the lower (older) track ID, then the
	// earlier detection.
	sort.Slice(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.iou != b.iou {
			return a.iou > b.iou
		}
		if a.misses != b.misses {
			return a.misses < b.misses
		}
		if a.trackID != b.trackID {
			return a.trackID < b.trackID
		}
		return a.detIdx < b.detIdx
	})

	// Step 4: greedy one-to-one assignment.
	matchedTracks := make(map[int64]bool)
	matchedDets := make(map[int]bool)
	for _, p := range pairs {
		if matchedTracks[p.trackID] || matchedDets[p.detIdx] {
			continue
		}
		matchedTracks[p.trackID] = true
		matchedDets[p.detIdx] = true

		trk := t.tracks[p.trackID]
		d := dets[p.detIdx]
		trk.Box = d.Box
		trk.LastSeenSeq = seq
		trk.LastSeen = now
		trk.Hits++
		trk.Misses = 0
		if d.Label != "" {
			trk.Label = d.Label
		}
		if d.Color != "" {
			trk.Color = d.Color
		}
		if t.captureCrop(trk, d, frame) {
			sum.CropsCaptured++
		}
		sum.Matched++
	}

	// Step 5: unmatched tracks take a miss; at the limit they are evicted.
	for _, trk := range active {
		if matchedTracks[trk.ID] {
			continue
		}
		trk.Misses++
		if trk.Misses >= t.cfg.MissLimit {
			trk.State = TrackEvicted
			trk.EvictedAt = now
			trk.Crop = nil
			trk.CropFresh = false
			sum.Evicted = append(sum.Evicted, trk.ID)
		}
	}

	// Step 6: unmatched detections spawn new tracks, up to the cap.
	activeCount := 0
	for _, trk := range t.tracks {
		if trk.State == TrackActive {
			activeCount++
		}
	}
	for di, d := range dets {
		if matchedDets[di] {
			continue
		}
		if activeCount >= t.cfg.MaxTracks {
			monitoring.Debugf("tracker: at capacity (%d), not spawning for detection %d of frame %d", t.cfg.MaxTracks, di, seq)
			continue
		}
		trk := t.spawnTrack(d, frame)
		if t.captureCrop(trk, d, frame) {
			sum.CropsCaptured++
		}
		activeCount++
		sum.Spawned = append(sum.Spawned, trk.ID)
	}

	// Step 7: drop evicted tracks that have aged past the grace window.
	for id, trk := range t.tracks {
		if trk.State == TrackEvicted && now.Sub(trk.EvictedAt) > t.cfg.EvictedGrace {
			delete(t.tracks, id)
		}
	}

	return sum
}

// spawnTrack creates a track for an unmatched detection. IDs come from a
// monotonic counter and are never reused.
func (t *Tracker) spawnTrack(d detect.Detection, frame *video.Frame) *Track {
	trk := &Track{
		ID:          t.nextID,
		State:       TrackActive,
		Reading:     ReadingCollecting,
		Box:         d.Box,
		Label:       d.Label,
		Color:       d.Color,
		FirstSeq:    frame.Seq,
		LastSeenSeq: frame.Seq,
		FirstSeen:   frame.Timestamp,
		LastSeen:    frame.Timestamp,
		Age:         1,
		Hits:        1,
	}
	t.nextID++
	t.tracks[trk.ID] = trk
	return trk
}

// captureCrop stores a plate crop on the track when the detection passes
// the quality gate. A fresh crop replaces any undispatched predecessor;
// with a read outstanding the fresh crop waits its turn.
func (t *Tracker) captureCrop(trk *Track, d detect.Detection, frame *video.Frame) bool {
	if d.Box.Area() < t.cfg.MinCropArea {
		return false
	}
	trk.Crop = &PlateCrop{
		FrameSeq: frame.Seq,
		Box:      d.Box,
		Image:    frame.Data,
		Area:     d.Box.Area(),
	}
	trk.CropFresh = true
	return true
}

// TakeReadyCrops returns jobs for every track that has a fresh crop, no
// outstanding read, and no confirmed reading, marking each as dispatched.
// Results are ordered by track ID for determinism.
func (t *Tracker) TakeReadyCrops() []CropJob {
	t.mu.Lock()
	defer t.mu.Unlock()

	var jobs []CropJob
	for _, trk := range t.tracks {
		if trk.State != TrackActive || !trk.CropFresh || trk.OCRPending || trk.Crop == nil {
			continue
		}
		if trk.Reading == ReadingConfirmed {
			// The episode already produced its event; stop burning OCR
			// capacity on this vehicle.
			continue
		}
		trk.CropFresh = false
		trk.OCRPending = true
		jobs = append(jobs, CropJob{TrackID: trk.ID, Crop: *trk.Crop})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].TrackID < jobs[j].TrackID })
	return jobs
}

// ReleaseCrop undoes a TakeReadyCrops dispatch that could not be queued, so
// the crop is retried on a later frame.
func (t *Tracker) ReleaseCrop(trackID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	trk, ok := t.tracks[trackID]
	if !ok || !trk.OCRPending {
		return
	}
	trk.OCRPending = false
	if trk.Crop != nil {
		trk.CropFresh = true
	}
}

// CompleteOCR clears the outstanding-read flag after a recognition call
// finishes, successfully or not. The consumed crop slot is cleared unless
// a fresh crop arrived while the read was in flight.
func (t *Tracker) CompleteOCR(trackID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	trk, ok := t.tracks[trackID]
	if !ok {
		return
	}
	trk.OCRPending = false
	if !trk.CropFresh {
		trk.Crop = nil
	}
}

// MarkReadingConfirmed records that the aggregator emitted a reading event
// for this track.
func (t *Tracker) MarkReadingConfirmed(trackID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if trk, ok := t.tracks[trackID]; ok {
		trk.Reading = ReadingConfirmed
	}
}

// ActiveTracks returns snapshot copies of all active tracks, ordered by ID.
func (t *Tracker) ActiveTracks() []Track {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Track, 0, len(t.tracks))
	for _, trk := range t.tracks {
		if trk.State == TrackActive {
			out = append(out, trk.snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Tracks returns snapshot copies of all tracks including evicted ones still
// in their grace window, ordered by ID.
func (t *Tracker) Tracks() []Track {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Track, 0, len(t.tracks))
	for _, trk := range t.tracks {
		out = append(out, trk.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetTrack returns a snapshot of one track.
func (t *Tracker) GetTrack(id int64) (Track, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	trk, ok := t.tracks[id]
	if !ok {
		return Track{}, false
	}
	return trk.snapshot(), true
}

// Counts returns total, active, and evicted track counts.
func (t *Tracker) Counts() (total, active, evicted int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, trk := range t.tracks {
		total++
		switch trk.State {
		case TrackActive:
			active++
		case TrackEvicted:
			evicted++
		}
	}
	return total, active, evicted
}

// PendingOCRCount returns how many tracks have a read outstanding.
func (t *Tracker) PendingOCRCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, trk := range t.tracks {
		if trk.OCRPending {
			n++
		}
	}
	return n
}

// UpdateConfig applies fn to the tracker configuration under the lock.
// Used by the params endpoint for runtime tuning.
func (t *Tracker) UpdateConfig(fn func(*Config)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.cfg)
}

// GetConfig returns a copy of the current configuration.
func (t *Tracker) GetConfig() Config {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cfg
}

// Reset drops all tracks. The ID counter is deliberately not reset so IDs
// stay unique across a tracker's lifetime.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracks = make(map[int64]*Track)
	t.lastSeq = 0
}
