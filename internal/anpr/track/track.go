package track

import (
	"time"

	"github.com/banshee-data/plate.report/internal/anpr/video"
)

// TrackState is the lifecycle state of a track.
type TrackState int

const (
	// TrackActive tracks are live and eligible for matching.
	TrackActive TrackState = iota

	// TrackEvicted tracks have exceeded the miss limit. Eviction is
	// terminal: the track is kept briefly for observability but never
	// matches again and emits no further events.
	TrackEvicted
)

// String returns a human-readable state name.
func (s TrackState) String() string {
	switch s {
	case TrackActive:
		return "active"
	case TrackEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// ReadingState is the plate-reading progress of a track's current episode.
type ReadingState int

const (
	// ReadingCollecting means candidate texts are still being tallied.
	ReadingCollecting ReadingState = iota

	// ReadingConfirmed means a reading event has been emitted for this
	// track. Confirmation is not revocable within the episode.
	ReadingConfirmed
)

// String returns a human-readable reading state name.
func (s ReadingState) String() string {
	switch s {
	case ReadingCollecting:
		return "collecting"
	case ReadingConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// PlateCrop is the plate region captured from a frame, handed to the OCR
// stage. Image is the full encoded frame buffer; Box locates the vehicle
// within it so the recognition sidecar can crop precisely.
type PlateCrop struct {
	FrameSeq int64
	Box      video.Rect
	Image    []byte
	Area     int
}

// Track is one vehicle identity maintained across frames. IDs are assigned
// from a monotonically increasing counter and are never reused within a
// tracker's lifetime.
type Track struct {
	ID      int64
	State   TrackState
	Reading ReadingState

	// Box is the most recently matched bounding box.
	Box video.Rect

	// Label and Color are the latest vehicle attributes reported by the
	// detection capability, empty when unsupported.
	Label string
	Color string

	FirstSeq    int64
	LastSeenSeq int64
	FirstSeen   time.Time
	LastSeen    time.Time

	// Age counts frames processed since the track was created, matched
	// or not.
	Age int

	// Hits counts frames where a detection matched this track.
	Hits int

	// Misses counts consecutive frames without a match; any match resets
	// it to zero.
	Misses int

	// Crop is the freshest usable plate crop, nil once consumed by a
	// completed read.
	Crop *PlateCrop

	// CropFresh marks a crop that has not yet been dispatched to OCR.
	CropFresh bool

	// OCRPending marks an outstanding recognition call. At most one read
	// is in flight per track.
	OCRPending bool

	// EvictedAt is the frame timestamp at which the track was evicted,
	// zero while active.
	EvictedAt time.Time
}

// snapshot returns a copy safe to hand outside the tracker lock. The crop
// buffer is withheld; only its metadata travels with the copy.
func (t *Track) snapshot() Track {
	c := *t
	if t.Crop != nil {
		c.Crop = &PlateCrop{
			FrameSeq: t.Crop.FrameSeq,
			Box:      t.Crop.Box,
			Area:     t.Crop.Area,
		}
	}
	return c
}
