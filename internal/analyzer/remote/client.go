package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pca-viewer/internal/analyzer"
	"pca-viewer/internal/collector"
	"pca-viewer/internal/pca"
	"pca-viewer/internal/shared/telemetry"
)

// TimeoutMessage is shown when the service does not answer in time.
const TimeoutMessage = "request timed out"

const (
	placeholderMarker = "your-service-name"
	maxResponseBytes  = 32 << 20
)

// Client implements analyzer.Client against a single statically configured
// HTTP endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its Timeout wins over
// the one passed to NewClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient constructs a client. A zero timeout means requests only end when
// the caller's context does.
func NewClient(endpoint string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimSpace(endpoint),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether the endpoint looks like a real URL rather than
// the shipped placeholder.
func (c *Client) Configured() bool {
	return IsConfigured(c.endpoint)
}

// IsConfigured reports whether endpoint is usable.
func IsConfigured(endpoint string) bool {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" || strings.Contains(endpoint, placeholderMarker) {
		return false
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

type errorBody struct {
	Error string `json:"error"`
}

// Analyze posts every file as an xyz_files part and decodes the result.
func (c *Client) Analyze(ctx context.Context, files []collector.SelectedFile) (pca.Result, error) {
	if !c.Configured() {
		return pca.Result{}, analyzer.ErrNotConfigured
	}
	if len(files) == 0 {
		return pca.Result{}, analyzer.ErrNoFiles
	}

	body, contentType, err := encodeFiles(files)
	if err != nil {
		return pca.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return pca.Result{}, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	fields := map[string]any{
		"endpoint": redact(c.endpoint),
		"files":    len(files),
		"bytes":    body.Len(),
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		fields["duration_ms"] = msSince(start)
		fields["err"] = err.Error()
		telemetry.Error("analysis.request.failed", fields)
		msg := analyzer.GenericFailureMessage
		if IsTimeout(err) {
			msg = TimeoutMessage
		}
		return pca.Result{}, &analyzer.Error{Kind: analyzer.KindTransport, Message: msg, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	fields["status"] = resp.StatusCode
	fields["duration_ms"] = msSince(start)
	if err != nil {
		fields["err"] = err.Error()
		telemetry.Error("analysis.request.failed", fields)
		return pca.Result{}, &analyzer.Error{Kind: analyzer.KindTransport, Status: resp.StatusCode, Message: analyzer.GenericFailureMessage, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := serverMessage(raw)
		fields["server_message"] = msg
		telemetry.Error("analysis.request.rejected", fields)
		return pca.Result{}, &analyzer.Error{Kind: analyzer.KindServer, Status: resp.StatusCode, Message: msg}
	}

	result, err := pca.Decode(raw)
	if err != nil {
		fields["err"] = err.Error()
		telemetry.Error("analysis.response.malformed", fields)
		return pca.Result{}, &analyzer.Error{Kind: analyzer.KindMalformed, Status: resp.StatusCode, Message: "unexpected response from analysis service", Err: err}
	}

	fields["points"] = len(result.Points)
	fields["components"] = result.Components()
	telemetry.Info("analysis.request.complete", fields)
	return result, nil
}

func encodeFiles(files []collector.SelectedFile) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for _, f := range files {
		part, err := w.CreateFormFile(analyzer.FieldName, f.Name)
		if err != nil {
			return nil, "", fmt.Errorf("create part %s: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("write part %s: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

func serverMessage(raw []byte) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil {
		if msg := strings.TrimSpace(eb.Error); msg != "" {
			return msg
		}
	}
	return analyzer.GenericFailureMessage
}

// redact drops query strings and credentials before logging.
func redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// IsTimeout reports whether err came from the request deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "Client.Timeout")
}

var _ analyzer.Client = (*Client)(nil)
