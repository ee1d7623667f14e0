// Package segment provides background removers for garment photos.
package segment

import (
	"bytes"
	"context"
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

const maxResultBytes = 64 << 20

var ErrSizeMismatch = errors.New("segmentation result size differs from input")

// Client calls a rembg-compatible HTTP server.
type Client struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

type ClientConfig struct {
	BaseURL string
	// Model selects a rembg session such as "u2net_cloth_seg"; empty keeps
	// the server default.
	Model   string
	Timeout time.Duration
}

func NewClient(cfg ClientConfig) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("segmentation base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint:   base + "/api/remove",
		model:      strings.TrimSpace(cfg.Model),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) RemoveBackground(ctx context.Context, img image.Image) (*image.NRGBA, error) {
	data, err := codec.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "input.png")
	if err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if c.model != "" {
		if err := writer.WriteField("model", c.model); err != nil {
			return nil, fmt.Errorf("build multipart body: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("build segmentation request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "image/png")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call segmentation service: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes))
	if err != nil {
		return nil, fmt.Errorf("read segmentation response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("segmentation service returned status=%d", resp.StatusCode)
	}

	out, _, err := codec.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("segmentation response: %w", err)
	}
	if out.Bounds().Size() != img.Bounds().Size() {
		return nil, fmt.Errorf("%w: got %v, want %v", ErrSizeMismatch, out.Bounds().Size(), img.Bounds().Size())
	}
	return raster.ToNRGBA(out), nil
}
