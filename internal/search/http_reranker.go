package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// Cross-encoder service defaults.
const (
	DefaultRerankerEndpoint = "http://localhost:9659"
	DefaultRerankerModel    = "reranker-small"
	DefaultRerankerTimeout  = 30 * time.Second
)

// HTTPRerankerConfig configures the cross-encoder service client.
type HTTPRerankerConfig struct {
	// Endpoint is the rerank server URL (default: http://localhost:9659).
	Endpoint string

	// Model is the cross-encoder model alias (default: reranker-small).
	Model string

	// Timeout bounds each rerank request (default: 30s).
	Timeout time.Duration

	// SkipHealthCheck skips the startup probe (for testing).
	SkipHealthCheck bool
}

// DefaultHTTPRerankerConfig returns default reranker configuration.
func DefaultHTTPRerankerConfig() HTTPRerankerConfig {
	return HTTPRerankerConfig{
		Endpoint: DefaultRerankerEndpoint,
		Model:    DefaultRerankerModel,
		Timeout:  DefaultRerankerTimeout,
	}
}

// HTTPReranker scores query/document pairs against a cross-encoder
// service speaking a JSON POST /rerank protocol. Transport failures trip
// a circuit breaker so a dead backend is skipped cheaply.
type HTTPReranker struct {
	client   *http.Client
	config   HTTPRerankerConfig
	breaker  *gobreaker.CircuitBreaker
	endpoint string

	mu     sync.RWMutex
	closed bool
}

var _ Reranker = (*HTTPReranker)(nil)

// NewHTTPReranker creates a cross-encoder client and probes the backend
// unless the health check is skipped.
func NewHTTPReranker(ctx context.Context, cfg HTTPRerankerConfig) (*HTTPReranker, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultRerankerEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultRerankerModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultRerankerTimeout
	}

	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     30 * time.Second,
		},
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "reranker",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("reranker_breaker_state_change",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	r := &HTTPReranker{
		client:   client,
		config:   cfg,
		breaker:  breaker,
		endpoint: cfg.Endpoint,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := r.healthCheck(checkCtx); err != nil {
			return nil, fmt.Errorf("reranker health check failed: %w", err)
		}
	}

	slog.Debug("http_reranker_created",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("model", cfg.Model),
		slog.Duration("timeout", cfg.Timeout))

	return r, nil
}

func (r *HTTPReranker) healthCheck(ctx context.Context) error {
	url := r.endpoint + "/health"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to rerank server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("rerank server unhealthy (status %d): %s", resp.StatusCode, string(body))
	}

	return nil
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
	Model string `json:"model"`
	Count int    `json:"count"`
}

// Rerank scores candidates against the query. Raw logits from the
// backend are sigmoid-normalized into (0, 1). Any transport or protocol
// failure surfaces as ErrRerankUnavailable.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, candidates []RerankCandidate) ([]RerankResult, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, fmt.Errorf("%w: reranker is closed", ErrRerankUnavailable)
	}
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return []RerankResult{}, nil
	}

	documents := make([]string, len(candidates))
	for i, c := range candidates {
		documents[i] = c.Text
	}

	start := time.Now()
	raw, err := r.breaker.Execute(func() (interface{}, error) {
		return r.rerankOnce(ctx, query, documents)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRerankUnavailable, err)
	}
	resp := raw.(*rerankResponse)

	results := make([]RerankResult, 0, len(resp.Results))
	for _, item := range resp.Results {
		if item.Index < 0 || item.Index >= len(candidates) {
			return nil, fmt.Errorf("%w: result index %d out of range", ErrRerankUnavailable, item.Index)
		}
		results = append(results, RerankResult{
			DocID: candidates[item.Index].DocID,
			Score: sigmoid(item.Score),
		})
	}

	slog.Debug("rerank_complete",
		slog.Int("candidates", len(candidates)),
		slog.Int("scored", len(results)),
		slog.Duration("elapsed", time.Since(start)))

	return results, nil
}

func (r *HTTPReranker) rerankOnce(ctx context.Context, query string, documents []string) (*rerankResponse, error) {
	reqBody := rerankRequest{
		Query:     query,
		Documents: documents,
		Model:     r.config.Model,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, r.endpoint+"/rerank", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank failed (status %d): %s", resp.StatusCode, string(body))
	}

	var result rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}
	return &result, nil
}

// Available reports whether the backend can currently serve.
func (r *HTTPReranker) Available(ctx context.Context) bool {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return false
	}
	r.mu.RUnlock()

	if r.breaker.State() == gobreaker.StateOpen {
		return false
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return r.healthCheck(checkCtx) == nil
}

// Close releases idle connections. Subsequent calls report unavailable.
func (r *HTTPReranker) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if transport, ok := r.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}

	return nil
}
