// Package transcription provides the batch fallback path. When the live
// streaming connection is unavailable, buffered audio is wrapped in a WAV
// container and posted to an HTTP transcription endpoint in fixed intervals.
// Latency is worse than streaming but the recording keeps producing text.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/anvret/vocifer/internal/audio"
)

const defaultTimeout = 30 * time.Second

// ErrNoAudio is returned by Transcribe when the sample buffer is empty.
var ErrNoAudio = errors.New("transcription: no audio to transcribe")

// Result is one batch transcription outcome.
type Result struct {
	// Text is the transcribed text, possibly empty when the server heard
	// nothing intelligible.
	Text string

	// Confidence is the server-reported recognition confidence, 0 when the
	// server omits it.
	Confidence float64

	// Elapsed is the round-trip time of the request.
	Elapsed time.Duration
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithAPIKey sets the bearer token attached to every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithTimeout bounds each transcription round trip. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client. Mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client submits WAV-encoded audio to a batch transcription endpoint.
// Safe for concurrent use.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a batch client for the given endpoint URL
// (e.g., "http://localhost:8080/transcribe"). endpoint must be non-empty.
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("transcription: endpoint must not be empty")
	}
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Transcribe encodes samples as a mono WAV file and posts it to the endpoint
// as multipart/form-data. The server's error body is carried into the returned
// error so callers can classify quota and rate-limit responses by message.
func (c *Client) Transcribe(ctx context.Context, samples []float32, sampleRate int) (Result, error) {
	if len(samples) == 0 {
		return Result{}, ErrNoAudio
	}

	wavData, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return Result{}, fmt.Errorf("transcription: encode wav: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return Result{}, fmt.Errorf("transcription: create form file: %w", err)
	}
	if _, err := fw.Write(wavData); err != nil {
		return Result{}, fmt.Errorf("transcription: write wav data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Result{}, fmt.Errorf("transcription: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return Result{}, fmt.Errorf("transcription: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("transcription: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("transcription: read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("transcription: server returned HTTP %d: %s",
			resp.StatusCode, firstLine(data))
	}

	var parsed struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Result{}, fmt.Errorf("transcription: parse JSON response: %w", err)
	}

	return Result{
		Text:       parsed.Text,
		Confidence: parsed.Confidence,
		Elapsed:    time.Since(start),
	}, nil
}

// firstLine truncates an error body to something loggable.
func firstLine(data []byte) string {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[:i]
	}
	if len(data) > 256 {
		data = data[:256]
	}
	return string(data)
}
