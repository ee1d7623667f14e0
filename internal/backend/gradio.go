// Package backend talks to a remote OOTDiffusion deployment through the
// Gradio HTTP API.
package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/dunamismax/tryonflow/internal/codec"
	"github.com/dunamismax/tryonflow/internal/domain"
)

const (
	DefaultSpaceURL = "https://levihsu-ootdiffusion.hf.space"

	endpointHD = "process_hd"
	endpointDC = "process_dc"

	maxResponseBytes = 64 << 20
)

var (
	// ErrNotConfigured is returned without any network traffic when no
	// access token is set.
	ErrNotConfigured = errors.New("generative backend is not configured")
	ErrNoResult      = errors.New("generative backend returned no image")
)

type Config struct {
	SpaceURL       string
	Token          string
	Timeout        time.Duration
	HDSteps        int
	DCSteps        int
	Samples        int
	GuidanceScale  float64
	Seed           int
	MaxAttempts    uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	HTTPClient     *http.Client
}

// StatusError is a non-retryable HTTP response from the space.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

type Client struct {
	baseURL        string
	token          string
	httpClient     *http.Client
	hdSteps        int
	dcSteps        int
	samples        int
	guidanceScale  float64
	seed           int
	maxAttempts    uint
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.SpaceURL), "/")
	if baseURL == "" {
		baseURL = DefaultSpaceURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 3 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		baseURL:        baseURL,
		token:          strings.TrimSpace(cfg.Token),
		httpClient:     httpClient,
		hdSteps:        cfg.HDSteps,
		dcSteps:        cfg.DCSteps,
		samples:        cfg.Samples,
		guidanceScale:  cfg.GuidanceScale,
		seed:           cfg.Seed,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.Named("backend"),
	}
	if c.hdSteps <= 0 {
		c.hdSteps = 40
	}
	if c.dcSteps <= 0 {
		c.dcSteps = 20
	}
	if c.samples <= 0 {
		c.samples = 1
	}
	if c.guidanceScale <= 0 {
		c.guidanceScale = 2.0
	}
	if c.seed == 0 {
		c.seed = -1
	}
	if c.maxAttempts == 0 {
		c.maxAttempts = 3
	}
	if c.initialBackoff <= 0 {
		c.initialBackoff = 500 * time.Millisecond
	}
	if c.maxBackoff < c.initialBackoff {
		c.maxBackoff = 10 * c.initialBackoff
	}
	return c
}

func (c *Client) Configured() bool {
	return c.token != ""
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Generate uploads both canvases and asks the HD endpoint for a result,
// retrying once on the DC endpoint with an explicit category.
func (c *Client) Generate(ctx context.Context, person, garment image.Image, category domain.Category) (image.Image, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	personRef, err := c.upload(ctx, "person.png", person)
	if err != nil {
		return nil, fmt.Errorf("upload person: %w", err)
	}
	garmentRef, err := c.upload(ctx, "garment.png", garment)
	if err != nil {
		return nil, fmt.Errorf("upload garment: %w", err)
	}

	img, hdErr := c.predict(ctx, endpointHD, []any{personRef, garmentRef, c.samples, c.hdSteps, c.guidanceScale, c.seed})
	if hdErr == nil {
		return img, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%s: %w", endpointHD, hdErr)
	}

	c.logger.Warn("hd endpoint failed, retrying with dc endpoint",
		zap.String("category", category.BackendLabel()),
		zap.Error(hdErr),
	)
	img, err = c.predict(ctx, endpointDC, []any{personRef, garmentRef, category.BackendLabel(), c.samples, c.dcSteps, c.guidanceScale, c.seed})
	if err != nil {
		return nil, fmt.Errorf("%s: %w (after %s: %v)", endpointDC, err, endpointHD, hdErr)
	}
	return img, nil
}

type fileData struct {
	Path     string            `json:"path"`
	URL      string            `json:"url,omitempty"`
	OrigName string            `json:"orig_name,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`
}

func (c *Client) upload(ctx context.Context, name string, img image.Image) (fileData, error) {
	data, err := codec.EncodePNG(img)
	if err != nil {
		return fileData{}, err
	}

	body, err := c.do(ctx, func() (*http.Request, error) {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		part, err := writer.CreateFormFile("files", name)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
		if err := writer.Close(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/gradio_api/upload", &buf)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return req, nil
	})
	if err != nil {
		return fileData{}, err
	}

	var paths []string
	if err := json.Unmarshal(body, &paths); err != nil {
		return fileData{}, fmt.Errorf("decode upload response: %w", err)
	}
	if len(paths) == 0 || paths[0] == "" {
		return fileData{}, errors.New("upload response carried no file path")
	}
	return fileData{
		Path:     paths[0],
		OrigName: name,
		Meta:     map[string]string{"_type": "gradio.FileData"},
	}, nil
}

func (c *Client) predict(ctx context.Context, endpoint string, args []any) (image.Image, error) {
	payload, err := json.Marshal(map[string]any{"data": args})
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", endpoint, err)
	}

	body, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/gradio_api/call/"+endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var call struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(body, &call); err != nil {
		return nil, fmt.Errorf("decode call response: %w", err)
	}
	if call.EventID == "" {
		return nil, errors.New("call response carried no event id")
	}

	stream, err := c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/gradio_api/call/"+endpoint+"/"+url.PathEscape(call.EventID), nil)
	})
	if err != nil {
		return nil, err
	}

	outputs, err := parseEventStream(stream)
	if err != nil {
		return nil, err
	}
	ref, err := firstGalleryImage(outputs)
	if err != nil {
		return nil, err
	}
	return c.download(ctx, ref)
}

func (c *Client) download(ctx context.Context, ref fileData) (image.Image, error) {
	target := ref.URL
	if target == "" {
		target = c.baseURL + "/gradio_api/file=" + ref.Path
	}

	data, err := c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("download result: %w", err)
	}
	img, _, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("download result: %w", err)
	}
	return img, nil
}

// do sends the request produced by build, retrying transport errors, 429 and
// 5xx responses with exponential backoff.
func (c *Client) do(ctx context.Context, build func() (*http.Request, error)) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialBackoff
	policy.MaxInterval = c.maxBackoff

	return backoff.Retry(ctx, func() ([]byte, error) {
		req, err := build()
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return nil, fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
		case resp.StatusCode >= 300:
			return nil, backoff.Permanent(&StatusError{
				Method: req.Method,
				Path:   req.URL.Path,
				Code:   resp.StatusCode,
				Body:   truncate(string(body), 256),
			})
		}
		return body, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(c.maxAttempts))
}

// parseEventStream returns the data of the "complete" event of a Gradio
// server-sent event stream.
func parseEventStream(stream []byte) (json.RawMessage, error) {
	scanner := bufio.NewScanner(bytes.NewReader(stream))
	scanner.Buffer(make([]byte, 0, 64*1024), maxResponseBytes)

	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			switch event {
			case "complete":
				return json.RawMessage(data), nil
			case "error":
				return nil, fmt.Errorf("space reported an error: %s", data)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event stream: %w", err)
	}
	return nil, errors.New("event stream ended without a result")
}

// firstGalleryImage digs the first image out of the endpoint outputs. The
// first output is a gallery whose items are either {image, caption} pairs
// or bare file references.
func firstGalleryImage(outputs json.RawMessage) (fileData, error) {
	var values []json.RawMessage
	if err := json.Unmarshal(outputs, &values); err != nil {
		return fileData{}, fmt.Errorf("decode outputs: %w", err)
	}
	if len(values) == 0 {
		return fileData{}, ErrNoResult
	}

	var gallery []json.RawMessage
	if err := json.Unmarshal(values[0], &gallery); err != nil {
		gallery = values[:1]
	}
	if len(gallery) == 0 {
		return fileData{}, ErrNoResult
	}

	var item struct {
		Image json.RawMessage `json:"image"`
	}
	if json.Unmarshal(gallery[0], &item) == nil && len(item.Image) > 0 {
		if ref, ok := parseFileRef(item.Image); ok {
			return ref, nil
		}
	}
	if ref, ok := parseFileRef(gallery[0]); ok {
		return ref, nil
	}
	return fileData{}, ErrNoResult
}

// parseFileRef accepts a bare path string or a FileData object.
func parseFileRef(raw json.RawMessage) (fileData, bool) {
	var path string
	if err := json.Unmarshal(raw, &path); err == nil {
		return fileData{Path: path}, path != ""
	}
	var ref fileData
	if err := json.Unmarshal(raw, &ref); err != nil {
		return fileData{}, false
	}
	return ref, ref.Path != "" || ref.URL != ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
