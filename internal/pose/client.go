// Package pose provides pose estimators for person photos.
package pose

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/dunamismax/tryonflow/internal/codec"
	"github.com/dunamismax/tryonflow/internal/raster"
)

var ErrCardinality = errors.New("pose result has an unexpected number of landmarks")

// Client calls an HTTP pose service that answers with MediaPipe-style
// landmarks: {"landmarks": [{"x": .., "y": .., "visibility": ..}, ...]}.
// An empty list means no person was found.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

func NewClient(endpoint string, timeout time.Duration) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("pose endpoint is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{endpoint: endpoint, httpClient: &http.Client{Timeout: timeout}}, nil
}

type poseResponse struct {
	Landmarks []raster.Landmark `json:"landmarks"`
}

func (c *Client) EstimatePose(ctx context.Context, img image.Image) ([]raster.Landmark, error) {
	data, err := codec.Encode(img, codec.FormatJPEG, 0)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "person.jpg")
	if err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("build pose request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call pose service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		return nil, fmt.Errorf("pose service returned status=%d", resp.StatusCode)
	}

	var parsed poseResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode pose response: %w", err)
	}
	return validate(parsed.Landmarks)
}

func validate(points []raster.Landmark) ([]raster.Landmark, error) {
	if len(points) == 0 {
		return nil, nil
	}
	if len(points) != raster.PoseLandmarkCount {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCardinality, len(points), raster.PoseLandmarkCount)
	}
	return points, nil
}
