// Package pipeline provides orchestration for the plate recognition
// pipeline.
//
// It wires the frame source, detection stage, tracker, recognition stage,
// and aggregator into a staged concurrent flow connected by bounded queues,
// and owns the lifecycle: start, cooperative stop, and timeout-bounded
// drain. The pipeline does not own domain logic — it delegates to the
// video, detect, track, ocr, and aggregate packages.
package pipeline
