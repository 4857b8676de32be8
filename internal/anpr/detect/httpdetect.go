package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/banshee-data/plate.report/internal/anpr/video"
	"github.com/banshee-data/plate.report/internal/httputil"
)

// HTTPDetector calls a detection sidecar over HTTP. The sidecar receives the
// encoded frame and returns candidate boxes; this keeps the heavyweight
// model runtime out of the daemon process.
type HTTPDetector struct {
	client  httputil.HTTPClient
	baseURL string
}

// NewHTTPDetector creates a detector client for the sidecar at baseURL
// (e.g. "http://127.0.0.1:8801"). A nil client uses the default HTTP client.
func NewHTTPDetector(baseURL string, client httputil.HTTPClient) *HTTPDetector {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	return &HTTPDetector{client: client, baseURL: baseURL}
}

// detectRequest is the wire format sent to the sidecar.
type detectRequest struct {
	FrameSeq int64  `json:"frame_seq"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Image    string `json:"image"` // base64-encoded frame buffer
}

// detectResponse is the wire format returned by the sidecar.
type detectResponse struct {
	Detections []struct {
		Box        video.Rect `json:"box"`
		Confidence float64    `json:"confidence"`
		Label      string     `json:"label"`
		Color      string     `json:"color"`
	} `json:"detections"`
}

// Detect posts the frame to the sidecar's /v1/detect endpoint and decodes
// the candidate regions.
func (d *HTTPDetector) Detect(ctx context.Context, frame *video.Frame) ([]Detection, error) {
	payload, err := json.Marshal(detectRequest{
		FrameSeq: frame.Seq,
		Width:    frame.Width,
		Height:   frame.Height,
		Image:    base64.StdEncoding.EncodeToString(frame.Data),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode detect request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v1/detect", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build detect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detect sidecar returned %d: %s", resp.StatusCode, string(body))
	}

	var decoded detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode detect response: %w", err)
	}

	detections := make([]Detection, 0, len(decoded.Detections))
	for _, d := range decoded.Detections {
		detections = append(detections, Detection{
			Box:        d.Box,
			Confidence: d.Confidence,
			FrameSeq:   frame.Seq,
			Label:      d.Label,
			Color:      d.Color,
		})
	}
	return detections, nil
}
