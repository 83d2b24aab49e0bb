// Package predict submits audio payloads to the remote voice classification
// endpoint.
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bosley/voiceguard/audio"
	"github.com/bosley/voiceguard/metrics"
)

const (
	DefaultBaseURL = "https://voiceguard-ai-t9hh.onrender.com/"

	predictPath = "predict"
	formField   = "file"
	userAgent   = "voiceguard/1.0"

	maxErrorBody = 4096
)

var (
	ErrNoPayload          = errors.New("no audio payload")
	ErrBackendUnreachable = errors.New("backend not reachable")
)

// Config contains prediction client configuration
type Config struct {
	// Base URL of the service; "predict" is appended unless already present.
	BaseURL string

	// Zero means no timeout beyond the caller's context.
	Timeout time.Duration

	HTTPClient *http.Client
	Metrics    *metrics.Metrics
}

type Client struct {
	endpoint   string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// NewClient creates a prediction client for the given base URL.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	endpoint, err := EndpointURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		metrics:    cfg.Metrics,
	}, nil
}

// EndpointURL joins base and the predict path without producing "//predict".
func EndpointURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid endpoint %q: scheme must be http or https", base)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid endpoint %q: missing host", base)
	}

	if strings.HasSuffix(strings.TrimRight(u.Path, "/"), "/"+predictPath) {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
		return u.String(), nil
	}
	return u.JoinPath(predictPath).String(), nil
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// Predict uploads the payload and decodes the classification. Every transport,
// status or decoding problem is reported as ErrBackendUnreachable.
func (c *Client) Predict(ctx context.Context, p *audio.Payload) (*Result, error) {
	if p == nil {
		return nil, ErrNoPayload
	}

	requestID := uuid.New().String()
	startTime := time.Now()
	c.metrics.ObserveRequest(p.Size())

	slog.Debug("Submitting audio for analysis",
		"requestID", requestID,
		"endpoint", c.endpoint,
		"name", p.Name,
		"bytes", p.Size())

	result, err := c.doRequest(ctx, requestID, p)
	elapsed := time.Since(startTime)
	if err != nil {
		c.metrics.ObserveFailure(elapsed)
		slog.Error("Prediction request failed",
			"error", err,
			"requestID", requestID,
			"elapsed", elapsed)
		return nil, fmt.Errorf("%w: %w", ErrBackendUnreachable, err)
	}

	c.metrics.ObservePrediction(result.Prediction, elapsed)
	slog.Info("Prediction received",
		"requestID", requestID,
		"prediction", result.Prediction,
		"confidence", result.Confidence.String(),
		"elapsed", elapsed)
	return result, nil
}

func (c *Client) doRequest(ctx context.Context, requestID string, p *audio.Payload) (*Result, error) {
	body, contentType, err := createMultipartBody(p)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}
	if result.Prediction == "" {
		return nil, fmt.Errorf("response carries no prediction")
	}
	return &result, nil
}

func createMultipartBody(p *audio.Payload) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	mimeType := p.MIMEType
	if mimeType == "" {
		mimeType = audio.MIMETypeWAV
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, formField, escapeQuotes(p.Name)))
	header.Set("Content-Type", mimeType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(p.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
