package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// HTTPConfig configures an HTTP-backed model adapter.
type HTTPConfig struct {
	ModelID string        `yaml:"model_id"`
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
	Retry   RetryConfig   `yaml:"-"`
}

// HTTPAdapter calls a completion endpoint over HTTP with retry and backoff.
// The request/response shape is the minimal completion contract; provider
// specific authentication or formatting stays outside this engine.
type HTTPAdapter struct {
	cfg    HTTPConfig
	client *http.Client
	logger *logrus.Logger
}

// NewHTTPAdapter creates an HTTP adapter for one completion endpoint.
func NewHTTPAdapter(cfg HTTPConfig, logger *logrus.Logger) *HTTPAdapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &HTTPAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// ID implements ModelAdapter.
func (a *HTTPAdapter) ID() string { return a.cfg.ModelID }

// Available implements ModelAdapter. The HTTP adapter itself is always
// willing; wrap it in a Breaker for health-gated availability.
func (a *HTTPAdapter) Available() bool { return true }

type completionRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id,omitempty"`
}

type completionResponse struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// Complete implements ModelAdapter.
func (a *HTTPAdapter) Complete(ctx context.Context, prompt, sessionID string) (string, error) {
	payload, err := json.Marshal(completionRequest{Prompt: prompt, SessionID: sessionID})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	body, err := doWithRetry(ctx, a.cfg.Retry, func() (string, int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL, bytes.NewReader(payload))
		if err != nil {
			return "", 0, err
		}
		req.Header.Set("Content-Type", "application/json")
		if a.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
		}

		resp, err := a.client.Do(req)
		if err != nil {
			return "", 0, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", resp.StatusCode, err
		}
		return string(data), resp.StatusCode, nil
	})
	if err != nil {
		a.logger.WithFields(logrus.Fields{
			"model": a.cfg.ModelID,
		}).WithError(err).Warn("completion call failed")
		return "", err
	}

	var parsed completionResponse
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("provider error: %s", parsed.Error)
	}
	return parsed.Content, nil
}

// CompleteStream implements ModelAdapter by issuing a blocking completion
// and delivering it as a single-chunk stream. Providers with native
// streaming plug in their own adapter implementation.
func (a *HTTPAdapter) CompleteStream(ctx context.Context, prompt, sessionID string) (*ChunkStream, error) {
	stream, chunks, errs := NewChunkStream(1)
	go func() {
		defer close(chunks)
		content, err := a.Complete(ctx, prompt, sessionID)
		if err != nil {
			errs <- err
			return
		}
		chunks <- Chunk{Content: content, Index: 0, Timestamp: time.Now()}
	}()
	return stream, nil
}
