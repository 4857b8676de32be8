package ocr

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

// HTTPReader calls a recognition sidecar over HTTP. The sidecar receives the
// encoded frame plus the vehicle region and does its own plate localization
// and cropping; the daemon never touches pixels.
type HTTPReader struct {
	client  httputil.HTTPClient
	baseURL string
}

// NewHTTPReader creates a reader client for the sidecar at baseURL
// (e.g. "http://127.0.0.1:8802"). A nil client uses the default HTTP client.
func NewHTTPReader(baseURL string, client httputil.HTTPClient) *HTTPReader {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	return &HTTPReader{client: client, baseURL: baseURL}
}

// readRequest is the wire format sent to the sidecar.
type readRequest struct {
	Image string     `json:"image"` // base64-encoded frame buffer
	Box   video.Rect `json:"box"`   // vehicle region within the frame
}

// Read posts the crop to the sidecar's /v1/read endpoint and decodes the
// recognized text.
func (r *HTTPReader) Read(ctx context.Context, image []byte, region video.Rect) (Reading, error) {
	payload, err := json.Marshal(readRequest{
		Image: base64.StdEncoding.EncodeToString(image),
		Box:   region,
	})
	if err != nil {
		return Reading{}, fmt.Errorf("failed to encode read request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/read", bytes.NewReader(payload))
	if err != nil {
		return Reading{}, fmt.Errorf("failed to build read request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Reading{}, fmt.Errorf("read request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Reading{}, fmt.Errorf("ocr sidecar returned %d: %s", resp.StatusCode, string(body))
	}

	var decoded Reading
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Reading{}, fmt.Errorf("failed to decode read response: %w", err)
	}
	return decoded, nil
}
