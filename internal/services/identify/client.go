package identify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"bundleeval/internal/services"
)

const aliveTimeout = time.Second

// HTTPDoer describes the HTTP client used to reach the service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Kind classifies a service response.
type Kind string

const (
	KindSuccess Kind = "success"
	KindIgnored Kind = "ignored"
	KindFailed  Kind = "failed"
)

// Outcome is the classified result of one identification request.
type Outcome struct {
	Kind       Kind
	StatusCode int
	// Payload is the response body for successful requests.
	Payload []byte
	// Message describes ignored and failed requests.
	Message string
}

// Request is the body sent to the identification endpoint.
type Request struct {
	Source string  `json:"source"`
	Map    *string `json:"map"`
}

// Client talks to one service instance over HTTP.
type Client struct {
	baseURL string
	headers map[string]string
	timeout time.Duration
	client  HTTPDoer
}

// NewClient returns a client for the service at baseURL. A nil doer uses
// http.DefaultClient.
func NewClient(baseURL string, headers map[string]string, timeout time.Duration, doer HTTPDoer) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		headers: headers,
		timeout: timeout,
		client:  doer,
	}
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Alive probes GET /alive and returns nil on any 2xx answer.
func (c *Client) Alive(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, aliveTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/alive", nil)
	if err != nil {
		return fmt.Errorf("build alive request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alive returned %d", resp.StatusCode)
	}
	return nil
}

// Identify posts one request to endpoint. Transport failures are returned as
// errors tagged services.ErrRequest; every HTTP answer becomes an Outcome.
func (c *Client) Identify(ctx context.Context, endpoint string, body Request) (Outcome, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrRequest, "identify", "encode request", "", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrRequest, "identify", "build request", "", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for _, name := range sortedKeys(c.headers) {
		req.Header.Set(name, c.headers[name])
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrRequest, "identify", "post "+endpoint, "", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrRequest, "identify", "read response", "", err)
	}
	return Classify(resp.StatusCode, data), nil
}

// Classify maps an HTTP status and body to an Outcome.
func Classify(status int, body []byte) Outcome {
	switch {
	case status == http.StatusNotImplemented:
		return Outcome{Kind: KindIgnored, StatusCode: status, Message: strings.TrimSpace(string(body))}
	case status >= http.StatusMultipleChoices || status < http.StatusOK:
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(status)
		}
		return Outcome{Kind: KindFailed, StatusCode: status, Message: msg}
	default:
		return Outcome{Kind: KindSuccess, StatusCode: status, Payload: body}
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
