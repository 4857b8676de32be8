package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/params endpoint so the same JSON can be
// used for both startup configuration and runtime updates. All fields
// are pointers so a partial document only overrides what it names.
type TuningConfig struct {
	// Capture params
	MaxFrameRate *float64 `json:"max_frame_rate,omitempty"` // frames/sec, 0 disables throttling
	FrameStride  *int     `json:"frame_stride,omitempty"`   // process every Nth frame

	// Detection params
	DetectWorkers          *int     `json:"detect_workers,omitempty"`
	MinDetectionConfidence *float64 `json:"min_detection_confidence,omitempty"`
	ROI                    *ROI     `json:"roi,omitempty"`

	// Tracker params
	IoUThreshold      *float64 `json:"iou_threshold,omitempty"`
	TrackMissLimit    *int     `json:"track_miss_limit,omitempty"`
	MinCropArea       *int     `json:"min_crop_area,omitempty"` // square pixels
	MaxTracks         *int     `json:"max_tracks,omitempty"`
	EvictedGraceNanos *int64   `json:"evicted_grace_nanos,omitempty"`

	// Plate reading params
	OCRWorkers        *int     `json:"ocr_workers,omitempty"`
	MinOCRConfidence  *float64 `json:"min_ocr_confidence,omitempty"`
	OCRTimeout        *string  `json:"ocr_timeout,omitempty"` // duration string like "2s"
	ConfirmationCount *int     `json:"confirmation_count,omitempty"`
	MinPlateLength    *int     `json:"min_plate_length,omitempty"`
	MaxPlateLength    *int     `json:"max_plate_length,omitempty"`
	PlatePattern      *string  `json:"plate_pattern,omitempty"` // regexp over normalized text

	// Coordinator params
	QueueCapacity     *int    `json:"queue_capacity,omitempty"`
	DrainTimeout      *string `json:"drain_timeout,omitempty"` // duration string like "2s"
	StageFailureLimit *int    `json:"stage_failure_limit,omitempty"`
}

// ROI restricts detections to a rectangular region of the frame.
// Coordinates are pixels with the origin at the top-left corner.
type ROI struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }
func ptrString(v string) *string    { return &v }

// DefaultTuningConfig returns a fully populated config using the built-in
// defaults. The on-disk defaults file carries the same values; this is the
// fallback when running from a directory where that file is not present.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		MaxFrameRate:           ptrFloat64(0),
		FrameStride:            ptrInt(1),
		DetectWorkers:          ptrInt(2),
		MinDetectionConfidence: ptrFloat64(0.25),
		IoUThreshold:           ptrFloat64(0.3),
		TrackMissLimit:         ptrInt(10),
		MinCropArea:            ptrInt(2500),
		MaxTracks:              ptrInt(64),
		EvictedGraceNanos:      ptrInt64(int64(5 * time.Second)),
		OCRWorkers:             ptrInt(2),
		MinOCRConfidence:       ptrFloat64(0.4),
		OCRTimeout:             ptrString("2s"),
		ConfirmationCount:      ptrInt(3),
		MinPlateLength:         ptrInt(6),
		MaxPlateLength:         ptrInt(10),
		PlatePattern:           ptrString(`^[A-Z]{2}[0-9]{1,2}[A-Z]{1,3}[0-9]{3,4}$`),
		QueueCapacity:          ptrInt(4),
		DrainTimeout:           ptrString("2s"),
		StageFailureLimit:      ptrInt(3),
	}
}

// LoadTuningConfig reads a tuning config from a JSON file. The file may be a
// partial document; unset fields fall back to defaults via the Get methods.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	if filepath.Ext(path) != ".json" {
		return nil, fmt.Errorf("config file must have .json extension: %s", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > 1<<20 {
		return nil, fmt.Errorf("config file too large (%d bytes, max 1MB)", info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg TuningConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config in %s: %w", path, err)
	}

	return &cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults file, searching upward
// from the working directory so tests running in package directories still
// find it. Panics if no candidate exists, since the defaults file shipping
// with the binary is a deployment requirement.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		filepath.Join("..", "..", DefaultConfigPath),
		filepath.Join("..", "..", "..", DefaultConfigPath),
		filepath.Join("..", "..", "..", "..", DefaultConfigPath),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadTuningConfig(path)
			if err != nil {
				panic(fmt.Sprintf("failed to load default config from %s: %v", path, err))
			}
			return cfg
		}
	}

	panic(fmt.Sprintf("default config file not found: %s (tried %d locations)", DefaultConfigPath, len(candidates)))
}

// Validate checks that all set fields are within acceptable ranges.
func (c *TuningConfig) Validate() error {
	if c.MaxFrameRate != nil && *c.MaxFrameRate < 0 {
		return fmt.Errorf("max_frame_rate must be >= 0, got %f", *c.MaxFrameRate)
	}
	if c.FrameStride != nil && *c.FrameStride < 1 {
		return fmt.Errorf("frame_stride must be >= 1, got %d", *c.FrameStride)
	}
	if c.DetectWorkers != nil && (*c.DetectWorkers < 1 || *c.DetectWorkers > 64) {
		return fmt.Errorf("detect_workers must be between 1 and 64, got %d", *c.DetectWorkers)
	}
	if c.MinDetectionConfidence != nil && (*c.MinDetectionConfidence < 0 || *c.MinDetectionConfidence > 1) {
		return fmt.Errorf("min_detection_confidence must be between 0 and 1, got %f", *c.MinDetectionConfidence)
	}
	if c.ROI != nil {
		if c.ROI.Width <= 0 || c.ROI.Height <= 0 {
			return fmt.Errorf("roi dimensions must be positive, got %dx%d", c.ROI.Width, c.ROI.Height)
		}
		if c.ROI.X < 0 || c.ROI.Y < 0 {
			return fmt.Errorf("roi origin must be non-negative, got (%d,%d)", c.ROI.X, c.ROI.Y)
		}
	}
	if c.IoUThreshold != nil && (*c.IoUThreshold <= 0 || *c.IoUThreshold >= 1) {
		return fmt.Errorf("iou_threshold must be between 0 and 1 exclusive, got %f", *c.IoUThreshold)
	}
	if c.TrackMissLimit != nil && *c.TrackMissLimit < 1 {
		return fmt.Errorf("track_miss_limit must be >= 1, got %d", *c.TrackMissLimit)
	}
	if c.MinCropArea != nil && *c.MinCropArea < 0 {
		return fmt.Errorf("min_crop_area must be >= 0, got %d", *c.MinCropArea)
	}
	if c.MaxTracks != nil && *c.MaxTracks < 1 {
		return fmt.Errorf("max_tracks must be >= 1, got %d", *c.MaxTracks)
	}
	if c.EvictedGraceNanos != nil && *c.EvictedGraceNanos < 0 {
		return fmt.Errorf("evicted_grace_nanos must be >= 0, got %d", *c.EvictedGraceNanos)
	}
	if c.OCRWorkers != nil && (*c.OCRWorkers < 1 || *c.OCRWorkers > 64) {
		return fmt.Errorf("ocr_workers must be between 1 and 64, got %d", *c.OCRWorkers)
	}
	if c.MinOCRConfidence != nil && (*c.MinOCRConfidence < 0 || *c.MinOCRConfidence > 1) {
		return fmt.Errorf("min_ocr_confidence must be between 0 and 1, got %f", *c.MinOCRConfidence)
	}
	if c.OCRTimeout != nil {
		d, err := time.ParseDuration(*c.OCRTimeout)
		if err != nil {
			return fmt.Errorf("invalid ocr_timeout: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("ocr_timeout must be positive, got %s", *c.OCRTimeout)
		}
	}
	if c.ConfirmationCount != nil && *c.ConfirmationCount < 1 {
		return fmt.Errorf("confirmation_count must be >= 1, got %d", *c.ConfirmationCount)
	}
	if c.MinPlateLength != nil && *c.MinPlateLength < 1 {
		return fmt.Errorf("min_plate_length must be >= 1, got %d", *c.MinPlateLength)
	}
	if c.MaxPlateLength != nil {
		min := 1
		if c.MinPlateLength != nil {
			min = *c.MinPlateLength
		}
		if *c.MaxPlateLength < min {
			return fmt.Errorf("max_plate_length must be >= min_plate_length, got %d < %d", *c.MaxPlateLength, min)
		}
	}
	if c.PlatePattern != nil {
		if _, err := regexp.Compile(*c.PlatePattern); err != nil {
			return fmt.Errorf("invalid plate_pattern: %w", err)
		}
	}
	if c.QueueCapacity != nil && (*c.QueueCapacity < 1 || *c.QueueCapacity > 1024) {
		return fmt.Errorf("queue_capacity must be between 1 and 1024, got %d", *c.QueueCapacity)
	}
	if c.DrainTimeout != nil {
		d, err := time.ParseDuration(*c.DrainTimeout)
		if err != nil {
			return fmt.Errorf("invalid drain_timeout: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("drain_timeout must be positive, got %s", *c.DrainTimeout)
		}
	}
	if c.StageFailureLimit != nil && *c.StageFailureLimit < 1 {
		return fmt.Errorf("stage_failure_limit must be >= 1, got %d", *c.StageFailureLimit)
	}
	return nil
}

// Merge overlays the set fields of other onto a copy of c and returns the
// copy. Used by the params endpoint to apply partial runtime updates.
func (c *TuningConfig) Merge(other *TuningConfig) *TuningConfig {
	merged := *c
	if other == nil {
		return &merged
	}
	if other.MaxFrameRate != nil {
		merged.MaxFrameRate = other.MaxFrameRate
	}
	if other.FrameStride != nil {
		merged.FrameStride = other.FrameStride
	}
	if other.DetectWorkers != nil {
		merged.DetectWorkers = other.DetectWorkers
	}
	if other.MinDetectionConfidence != nil {
		merged.MinDetectionConfidence = other.MinDetectionConfidence
	}
	if other.ROI != nil {
		merged.ROI = other.ROI
	}
	if other.IoUThreshold != nil {
		merged.IoUThreshold = other.IoUThreshold
	}
	if other.TrackMissLimit != nil {
		merged.TrackMissLimit = other.TrackMissLimit
	}
	if other.MinCropArea != nil {
		merged.MinCropArea = other.MinCropArea
	}
	if other.MaxTracks != nil {
		merged.MaxTracks = other.MaxTracks
	}
	if other.EvictedGraceNanos != nil {
		merged.EvictedGraceNanos = other.EvictedGraceNanos
	}
	if other.OCRWorkers != nil {
		merged.OCRWorkers = other.OCRWorkers
	}
	if other.MinOCRConfidence != nil {
		merged.MinOCRConfidence = other.MinOCRConfidence
	}
	if other.OCRTimeout != nil {
		merged.OCRTimeout = other.OCRTimeout
	}
	if other.ConfirmationCount != nil {
		merged.ConfirmationCount = other.ConfirmationCount
	}
	if other.MinPlateLength != nil {
		merged.MinPlateLength = other.MinPlateLength
	}
	if other.MaxPlateLength != nil {
		merged.MaxPlateLength = other.MaxPlateLength
	}
	if other.PlatePattern != nil {
		merged.PlatePattern = other.PlatePattern
	}
	if other.QueueCapacity != nil {
		merged.QueueCapacity = other.QueueCapacity
	}
	if other.DrainTimeout != nil {
		merged.DrainTimeout = other.DrainTimeout
	}
	if other.StageFailureLimit != nil {
		merged.StageFailureLimit = other.StageFailureLimit
	}
	return &merged
}

// GetMaxFrameRate returns the capture frame-rate cap, 0 meaning unlimited.
func (c *TuningConfig) GetMaxFrameRate() float64 {
	if c == nil || c.MaxFrameRate == nil {
		return 0
	}
	return *c.MaxFrameRate
}

// GetFrameStride returns the capture stride (process every Nth frame).
func (c *TuningConfig) GetFrameStride() int {
	if c == nil || c.FrameStride == nil {
		return 1
	}
	return *c.FrameStride
}

// GetDetectWorkers returns the detection worker count.
func (c *TuningConfig) GetDetectWorkers() int {
	if c == nil || c.DetectWorkers == nil {
		return 2
	}
	return *c.DetectWorkers
}

// GetMinDetectionConfidence returns the floor below which detections are discarded.
func (c *TuningConfig) GetMinDetectionConfidence() float64 {
	if c == nil || c.MinDetectionConfidence == nil {
		return 0.25
	}
	return *c.MinDetectionConfidence
}

// GetROI returns the detection region of interest, nil meaning the full frame.
func (c *TuningConfig) GetROI() *ROI {
	if c == nil {
		return nil
	}
	return c.ROI
}

// GetIoUThreshold returns the minimum overlap for a detection to match a track.
func (c *TuningConfig) GetIoUThreshold() float64 {
	if c == nil || c.IoUThreshold == nil {
		return 0.3
	}
	return *c.IoUThreshold
}

// GetTrackMissLimit returns the consecutive misses after which a track is evicted.
func (c *TuningConfig) GetTrackMissLimit() int {
	if c == nil || c.TrackMissLimit == nil {
		return 10
	}
	return *c.TrackMissLimit
}

// GetMinCropArea returns the minimum bounding-box area for a usable plate crop.
func (c *TuningConfig) GetMinCropArea() int {
	if c == nil || c.MinCropArea == nil {
		return 2500
	}
	return *c.MinCropArea
}

// GetMaxTracks returns the cap on simultaneously live tracks.
func (c *TuningConfig) GetMaxTracks() int {
	if c == nil || c.MaxTracks == nil {
		return 64
	}
	return *c.MaxTracks
}

// GetEvictedGrace returns how long evicted tracks stay visible in snapshots.
func (c *TuningConfig) GetEvictedGrace() time.Duration {
	if c == nil || c.EvictedGraceNanos == nil {
		return 5 * time.Second
	}
	return time.Duration(*c.EvictedGraceNanos)
}

// GetOCRWorkers returns the plate reader worker count.
func (c *TuningConfig) GetOCRWorkers() int {
	if c == nil || c.OCRWorkers == nil {
		return 2
	}
	return *c.OCRWorkers
}

// GetMinOCRConfidence returns the floor below which OCR results are discarded.
func (c *TuningConfig) GetMinOCRConfidence() float64 {
	if c == nil || c.MinOCRConfidence == nil {
		return 0.4
	}
	return *c.MinOCRConfidence
}

// GetOCRTimeout returns the per-call recognition deadline.
func (c *TuningConfig) GetOCRTimeout() time.Duration {
	if c == nil || c.OCRTimeout == nil {
		return 2 * time.Second
	}
	d, err := time.ParseDuration(*c.OCRTimeout)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// GetConfirmationCount returns how many times a text must repeat to confirm.
func (c *TuningConfig) GetConfirmationCount() int {
	if c == nil || c.ConfirmationCount == nil {
		return 3
	}
	return *c.ConfirmationCount
}

// GetMinPlateLength returns the minimum plausible normalized plate length.
func (c *TuningConfig) GetMinPlateLength() int {
	if c == nil || c.MinPlateLength == nil {
		return 6
	}
	return *c.MinPlateLength
}

// GetMaxPlateLength returns the maximum plausible normalized plate length.
func (c *TuningConfig) GetMaxPlateLength() int {
	if c == nil || c.MaxPlateLength == nil {
		return 10
	}
	return *c.MaxPlateLength
}

// GetPlatePattern returns the registration format regexp for normalized text.
func (c *TuningConfig) GetPlatePattern() string {
	if c == nil || c.PlatePattern == nil {
		return `^[A-Z]{2}[0-9]{1,2}[A-Z]{1,3}[0-9]{3,4}$`
	}
	return *c.PlatePattern
}

// GetQueueCapacity returns the bounded depth of inter-stage queues.
func (c *TuningConfig) GetQueueCapacity() int {
	if c == nil || c.QueueCapacity == nil {
		return 4
	}
	return *c.QueueCapacity
}

// GetDrainTimeout returns how long shutdown waits for in-flight work.
func (c *TuningConfig) GetDrainTimeout() time.Duration {
	if c == nil || c.DrainTimeout == nil {
		return 2 * time.Second
	}
	d, err := time.ParseDuration(*c.DrainTimeout)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// GetStageFailureLimit returns the consecutive failures that mark a stage fatal.
func (c *TuningConfig) GetStageFailureLimit() int {
	if c == nil || c.StageFailureLimit == nil {
		return 3
	}
	return *c.StageFailureLimit
}
