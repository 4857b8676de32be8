// Package detect locates vehicle plates in frames via an external
// detection capability and prepares ordered detection batches for the
// tracker.
//
// The capability itself (typically an ML sidecar) is reached through the
// Detector interface; this package owns the worker pool, region-of-interest
// filtering, confidence ordering, and re-sequencing of concurrent results
// back into frame order.
package detect

import (
	"context"
	"time"

	"github.com/banshee-data/plate.report/internal/anpr/video"
)

// Detection is one plate-candidate region reported by the detector for a
// single frame.
type Detection struct {
	// Box is the bounding box in frame coordinates.
	Box video.Rect `json:"box"`

	// Confidence is the detector's score in [0, 1].
	Confidence float64 `json:"confidence"`

	// FrameSeq is the sequence number of the frame this detection came from.
	FrameSeq int64 `json:"frame_seq"`

	// Label is the vehicle class if the capability reports one ("car",
	// "truck", ...). Empty when unsupported.
	Label string `json:"label,omitempty"`

	// Color is the dominant vehicle color if the capability reports one.
	Color string `json:"color,omitempty"`
}

// Detector is the detection capability contract. Implementations must be
// safe for concurrent calls; the stage runs one invocation per worker.
type Detector interface {
	// Detect returns the plate-candidate regions found in the frame.
	// A frame with no vehicles yields an empty slice and nil error.
	Detect(ctx context.Context, frame *video.Frame) ([]Detection, error)
}

// Batch is the per-frame output of the detection stage. Ownership of the
// frame buffer moves with the batch so the tracker can capture plate crops
// from it.
type Batch struct {
	FrameSeq   int64
	Timestamp  time.Time
	Frame      *video.Frame
	Detections []Detection

	// Err records a non-fatal detection failure for this frame. The batch
	// still flows downstream with zero detections so tracks age normally.
	Err error
}
