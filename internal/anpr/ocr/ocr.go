// Package ocr wraps the external text-recognition capability and the plate
// format post-processing applied to its output.
//
// The recognition model itself is opaque: a Reader takes an encoded image
// plus the plate region within it and returns text with a confidence score.
// Everything else in this package is the pipeline's business: normalizing
// raw OCR text, correcting common character confusions against the expected
// plate format, and running reads on a bounded worker pool.
package ocr

import (
	"context"

	"github.com/banshee-data/plate.report/internal/anpr/video"
)

// Reading is the raw output of one recognition call.
type Reading struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Candidate is one post-processed plate reading attributed to a track. It is
// ephemeral: the aggregator consumes candidates and keeps only tallies.
type Candidate struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	TrackID    int64   `json:"track_id"`
	FrameSeq   int64   `json:"frame_seq"`
}

// Reader is the text-recognition capability. Implementations must be safe
// for concurrent calls; the stage runs several reads in parallel.
type Reader interface {
	// Read recognizes plate text within region of the encoded image.
	// A degraded crop should come back as low-confidence text rather than
	// an error; errors are reserved for capability failures.
	Read(ctx context.Context, image []byte, region video.Rect) (Reading, error)
}
