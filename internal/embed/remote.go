package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// RemoteConfig configures a model-backed embedder.
type RemoteConfig struct {
	Host       string
	Model      string
	APIKey     string
	Dimensions int // 0 = detect with a sample request
	Timeout    time.Duration
	MaxRetries int
	BatchSize  int

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

func (c *RemoteConfig) applyDefaults() {
	c.Host = strings.TrimRight(c.Host, "/")
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchSize > MaxBatchSize {
		c.BatchSize = MaxBatchSize
	}
}

// statusError is a non-2xx response. 4xx responses other than 408/429 are not retried.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

func shouldRetry(err error) bool {
	if errors.Is(err, amerrors.ErrCircuitOpen) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= 500 || se.status == http.StatusTooManyRequests || se.status == http.StatusRequestTimeout
	}
	return true
}

// remote holds the transport shared by model backends: per-call timeout,
// bounded retry and a circuit breaker in front of the endpoint.
type remote struct {
	cfg     RemoteConfig
	client  *http.Client
	breaker *amerrors.CircuitBreaker

	mu     sync.RWMutex
	closed bool
}

func newRemote(name string, cfg RemoteConfig) *remote {
	client := cfg.HTTPClient
	if client == nil {
		// No client-level Timeout: each call gets its own context deadline.
		client = &http.Client{Transport: &http.Transport{
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     10 * time.Second,
		}}
	}
	return &remote{
		cfg:     cfg,
		client:  client,
		breaker: amerrors.NewCircuitBreaker(name),
	}
}

func (r *remote) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

func (r *remote) available() bool {
	return !r.isClosed() && r.breaker.State() != amerrors.StateOpen
}

func (r *remote) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	if t, ok := r.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

// postJSON sends body to path and decodes the response into out.
// Failures come back as ERR_301 (deadline) or ERR_302 (anything else).
func (r *remote) postJSON(ctx context.Context, path string, body, out any) error {
	if r.isClosed() {
		return fmt.Errorf("embedder is closed")
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	retryCfg := amerrors.DefaultRetryConfig()
	retryCfg.MaxRetries = r.cfg.MaxRetries
	retryCfg.Jitter = true
	retryCfg.ShouldRetry = func(err error) bool {
		return ctx.Err() == nil && shouldRetry(err)
	}

	_, err = amerrors.RetryWithResult(ctx, retryCfg, func() (struct{}, error) {
		return amerrors.CircuitExecute(r.breaker, func() (struct{}, error) {
			return struct{}{}, r.once(ctx, path, payload, out)
		})
	})
	if err != nil {
		return amerrors.TransientError(
			fmt.Sprintf("%s embedding request to %s failed", r.breaker.Name(), r.cfg.Host), err).
			WithDetail("model", r.cfg.Model)
	}
	return nil
}

func (r *remote) once(ctx context.Context, path string, payload []byte, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, r.cfg.Host+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// embedInBatches splits texts into BatchSize requests and checks the shape
// of every returned row.
func embedInBatches(ctx context.Context, batchSize, dims int, texts []string,
	call func(context.Context, []string) ([][]float32, error)) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		rows, err := call(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(rows) != end-start {
			return nil, amerrors.New(amerrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("backend returned %d embeddings for %d inputs", len(rows), end-start), nil)
		}
		for _, row := range rows {
			if dims > 0 && len(row) != dims {
				return nil, amerrors.New(amerrors.ErrCodeDimensionMismatch,
					fmt.Sprintf("backend returned %d-dim vector, expected %d", len(row), dims), nil)
			}
		}
		out = append(out, rows...)
	}
	return out, nil
}
