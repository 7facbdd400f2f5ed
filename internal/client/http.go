package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alfredjeanlab/layoutsync/internal/model"
)

// HTTPClient implements LayoutsClient over the HTTP/JSON layouts API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ LayoutsClient = (*HTTPClient)(nil)

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithTimeout bounds every request. Zero leaves requests bounded only by
// their context.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		c.httpClient = hc
	}
}

// NewHTTPClient creates a client targeting baseURL (e.g. "http://localhost:8080").
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the remote authority's base URL.
func (c *HTTPClient) BaseURL() string { return c.baseURL }

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Layouts ---

func (c *HTTPClient) UpsertLayout(ctx context.Context, in *model.LayoutInput, auth http.Header) (*model.RemoteLayout, error) {
	var layout model.RemoteLayout
	if err := c.doJSON(ctx, http.MethodPost, "/layouts", auth, in, &layout); err != nil {
		return nil, err
	}
	return &layout, nil
}

func (c *HTTPClient) UpdateLayout(ctx context.Context, layoutType string, config json.RawMessage, auth http.Header) (*model.RemoteLayout, error) {
	var layout model.RemoteLayout
	body := &model.LayoutUpdate{Config: config}
	if err := c.doJSON(ctx, http.MethodPut, layoutPath(layoutType), auth, body, &layout); err != nil {
		return nil, err
	}
	return &layout, nil
}

func (c *HTTPClient) GetLayout(ctx context.Context, layoutType string, auth http.Header) (*model.RemoteLayout, error) {
	var layout model.RemoteLayout
	if err := c.doJSON(ctx, http.MethodGet, layoutPath(layoutType), auth, nil, &layout); err != nil {
		return nil, err
	}
	return &layout, nil
}

func (c *HTTPClient) ListLayouts(ctx context.Context, auth http.Header) ([]*model.RemoteLayout, error) {
	var layouts []*model.RemoteLayout
	if err := c.doJSON(ctx, http.MethodGet, "/layouts", auth, nil, &layouts); err != nil {
		return nil, err
	}
	return layouts, nil
}

func (c *HTTPClient) SyncLayouts(ctx context.Context, in []*model.LayoutInput, auth http.Header) (*model.SyncResult, error) {
	if in == nil {
		in = []*model.LayoutInput{}
	}
	var result model.SyncResult
	if err := c.doJSON(ctx, http.MethodPost, "/layouts/sync", auth, in, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) DeleteLayout(ctx context.Context, layoutType string, auth http.Header) error {
	return c.doJSON(ctx, http.MethodDelete, layoutPath(layoutType), auth, nil, nil)
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

func layoutPath(layoutType string) string {
	return "/layouts/" + url.PathEscape(layoutType)
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// auth is merged into the request headers. If result is nil, the response body
// is discarded.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, auth http.Header, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range auth {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	// 204 No Content carries no body.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		if json.Unmarshal(respBody, &errResp) == nil {
			if errResp.Error != "" {
				return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
			}
			if errResp.Detail != "" {
				return &APIError{StatusCode: resp.StatusCode, Message: errResp.Detail}
			}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
