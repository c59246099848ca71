package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/speech-async/internal/metrics"
)

const apiVersion = "v1beta1"

// ErrMissingName is returned when a submission response carries no operation name.
var ErrMissingName = errors.New("operation response has no name")

// Operation is a long-running operation as returned by the speech API.
// Only Name and Done are interpreted; Raw holds the payload verbatim.
type Operation struct {
	Name string          `json:"name"`
	Done bool            `json:"done"`
	Raw  json.RawMessage `json:"-"`
}

// APIError is a non-2xx response from the speech API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("speech API error (status %d): %s", e.StatusCode, e.Body)
}

// Client calls the Cloud Speech REST surface. The http.Client is expected to
// carry credentials already (see auth.NewHTTPClient).
type Client struct {
	endpoint string
	client   *http.Client
	log      zerolog.Logger
}

// NewClient creates a speech API client rooted at endpoint,
// e.g. "https://speech.googleapis.com".
func NewClient(endpoint string, httpClient *http.Client, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   httpClient,
		log:      log,
	}
}

// AsyncRecognize submits req and returns the handle of the resulting
// long-running operation. It is issued exactly once.
func (c *Client) AsyncRecognize(ctx context.Context, req RecognizeRequest) (*Operation, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := c.endpoint + "/" + apiVersion + "/speech:asyncrecognize"
	op, err := c.do(ctx, "async_recognize", http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	if op.Name == "" {
		return nil, ErrMissingName
	}

	c.log.Debug().Str("operation", op.Name).Str("uri", req.Audio.URI).Msg("recognition submitted")
	return op, nil
}

// GetOperation fetches the current state of the named operation.
func (c *Client) GetOperation(ctx context.Context, name string) (*Operation, error) {
	url := c.endpoint + "/" + apiVersion + "/operations/" + name
	return c.do(ctx, "get_operation", http.MethodGet, url, nil)
}

func (c *Client) do(ctx context.Context, method, httpMethod, url string, body []byte) (*Operation, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, httpMethod, url, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.APIRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("%s request: %w", method, err)
	}
	defer resp.Body.Close()
	metrics.APIRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var op Operation
	if err := json.Unmarshal(raw, &op); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	op.Raw = raw
	return &op, nil
}
