package video

import (
	"context"
	"errors"
	"time"
)

// ErrExhausted is returned by Source.Next when the underlying input has no
// more frames. It marks a clean terminal condition, not a failure.
var ErrExhausted = errors.New("frame source exhausted")

// Frame is a single image handed through the pipeline. The pixel data is an
// opaque encoded buffer (typically JPEG); stages pass it along without
// decoding and only the capability sidecars interpret the bytes.
//
// Ownership transfers with the frame: once a stage hands a Frame to the next
// queue it must not touch Data again. The tracker is the final owner and
// retains the buffer only while it backs a plate crop.
type Frame struct {
	// Seq is assigned by the source and strictly increases per source.
	Seq int64

	// Timestamp is the capture time reported by the source.
	Timestamp time.Time

	// Data is the encoded image buffer. Opaque to the pipeline.
	Data []byte

	// Width and Height are the pixel dimensions of the decoded image.
	Width  int
	Height int

	// SourceID identifies the producing source, e.g. "dir:./frames" or
	// "synthetic". Carried through to reading events for provenance.
	SourceID string
}

// Source produces frames in capture order. Implementations must assign
// strictly increasing Seq values and return ErrExhausted once the input
// ends. Next blocks until a frame is available, the source is exhausted,
// or ctx is done.
type Source interface {
	Next(ctx context.Context) (*Frame, error)
	Close() error
}
