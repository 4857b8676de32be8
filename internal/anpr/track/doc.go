// Package track owns vehicle identity across frames.
//
// Responsibilities: greedy IoU association of detections to tracks,
// track lifecycle (creation, aging, miss counting, eviction), plate
// crop capture, and the one-outstanding-read gate that feeds the OCR
// stage. Key types: Track, Tracker, PlateCrop.
//
// The tracker is logically single-threaded: all mutations happen from
// the coordinator's tracking loop, in frame order. The internal lock
// exists so HTTP handlers can take read snapshots concurrently.
package track
