package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoding for DecodeConfig
	_ "image/png"  // register PNG decoding for DecodeConfig
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/banshee-data/plate.report/internal/monitoring"
	"github.com/banshee-data/plate.report/internal/timeutil"
)

// FileSource replays still images from a directory in lexical filename
// order. It is the standard offline input: drop numbered JPEG frames into a
// directory and point the daemon at it.
type FileSource struct {
	dir      string
	files    []string
	idx      int
	seq      int64
	clock    timeutil.Clock
	sourceID string
}

// imageExtensions are the filename extensions FileSource will consider.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// NewFileSource scans dir for image files and returns a source that replays
// them in lexical order. Returns an error if the directory cannot be read
// or contains no images.
func NewFileSource(dir string, clock timeutil.Clock) (*FileSource, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, fmt.Errorf("no image files found in %s", dir)
	}

	return &FileSource{
		dir:      dir,
		files:    files,
		clock:    clock,
		sourceID: "dir:" + dir,
	}, nil
}

// Len returns the number of image files the source will replay.
func (s *FileSource) Len() int {
	return len(s.files)
}

// Next returns the next image as a frame. Files that cannot be read or are
// not decodable images are skipped with a log line rather than failing the
// whole replay.
func (s *FileSource) Next(ctx context.Context) (*Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.idx >= len(s.files) {
			return nil, ErrExhausted
		}

		path := s.files[s.idx]
		s.idx++

		data, err := os.ReadFile(path)
		if err != nil {
			monitoring.Logf("skipping unreadable frame file %s: %v", path, err)
			continue
		}

		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			monitoring.Logf("skipping undecodable frame file %s: %v", path, err)
			continue
		}

		s.seq++
		return &Frame{
			Seq:       s.seq,
			Timestamp: s.clock.Now(),
			Data:      data,
			Width:     cfg.Width,
			Height:    cfg.Height,
			SourceID:  s.sourceID,
		}, nil
	}
}

// Close releases the source. FileSource holds no OS resources between reads
// so this only marks the source as finished.
func (s *FileSource) Close() error {
	s.idx = len(s.files)
	return nil
}
