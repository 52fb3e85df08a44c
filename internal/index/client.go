package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultRatePerSecond  = 8
	DefaultRateBurst      = 4

	maxResponseBytes = 8 * 1024 * 1024
)

// ClientOptions configures the HTTP indexer client.
type ClientOptions struct {
	BaseURL        string
	RequestTimeout time.Duration
	RatePerSecond  float64
	RateBurst      int
	HTTPClient     *http.Client
}

// Client talks to the external corpus indexer over HTTP. Calls are throttled
// by a local rate limiter; reservation and commit traffic never passes
// through here, so throttling cannot block other workers' transactions.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(opts ClientOptions) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("index base URL is required")
	}

	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	perSecond := opts.RatePerSecond
	if perSecond <= 0 {
		perSecond = DefaultRatePerSecond
	}
	burst := opts.RateBurst
	if burst < 1 {
		burst = DefaultRateBurst
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: base,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}, nil
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type rerankRequest struct {
	Query     string      `json:"query"`
	Documents []RerankDoc `json:"documents"`
}

func (c *Client) DenseSearch(ctx context.Context, query string, topK int) ([]ChunkHit, error) {
	return c.search(ctx, "dense", query, topK)
}

func (c *Client) SparseSearch(ctx context.Context, query string, topK int) ([]ChunkHit, error) {
	return c.search(ctx, "sparse", query, topK)
}

func (c *Client) search(ctx context.Context, mode, query string, topK int) ([]ChunkHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be > 0")
	}

	body, err := c.post(ctx, "search/"+mode, "/v1/search/"+mode, searchRequest{
		Query: query,
		TopK:  topK,
	})
	if err != nil {
		return nil, err
	}

	resp, err := validateSearchResponse(body)
	if err != nil {
		return nil, &BackendError{Op: "search/" + mode, Err: err}
	}
	return resp.Hits, nil
}

func (c *Client) Rerank(ctx context.Context, query string, docs []RerankDoc) ([]float64, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if len(docs) == 0 {
		return nil, nil
	}

	body, err := c.post(ctx, "rerank", "/v1/rerank", rerankRequest{
		Query:     query,
		Documents: docs,
	})
	if err != nil {
		return nil, err
	}

	resp, err := validateRerankResponse(body, len(docs))
	if err != nil {
		return nil, &BackendError{Op: "rerank", Err: err}
	}
	return resp.Scores, nil
}

func (c *Client) post(ctx context.Context, op, path string, payload any) ([]byte, error) {
	if c == nil || c.http == nil {
		return nil, fmt.Errorf("index client is not initialized")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for index rate limiter: %w", err)
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &BackendError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &BackendError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &BackendError{Op: op, Err: fmt.Errorf("status %d: %s", resp.StatusCode, truncateBody(body))}
	}

	return body, nil
}

func truncateBody(body []byte) string {
	const limit = 256
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) <= limit {
		return trimmed
	}
	return trimmed[:limit] + "..."
}
