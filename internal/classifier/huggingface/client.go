package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/veritas/backend/internal/classifier"
	"github.com/veritas/backend/internal/metrics"
	"github.com/veritas/backend/pkg/apperr"
	"github.com/veritas/backend/pkg/circuitbreaker"
	"github.com/veritas/backend/pkg/logger"
	"github.com/veritas/backend/pkg/retry"
)

const serviceName = "classifier"

type Config struct {
	Endpoint          string
	APIToken          string
	FakeLabel         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Retry             retry.Config
	CircuitBreaker    bool
}

// Client calls a hosted image-classification model (Hugging Face inference
// API or a compatible self-hosted endpoint).
type Client struct {
	endpoint    string
	apiToken    string
	fakeLabel   string
	httpClient  *http.Client
	limiter     *rate.Limiter
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewClient(cfg Config) *Client {
	if cfg.FakeLabel == "" {
		cfg.FakeLabel = classifier.DefaultFakeLabel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	logger.Info("Classifier client initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("fake_label", cfg.FakeLabel),
		zap.Float64("requests_per_second", cfg.RequestsPerSecond),
	)

	return &Client{
		endpoint:  cfg.Endpoint,
		apiToken:  cfg.APIToken,
		fakeLabel: cfg.FakeLabel,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:     limiter,
		cb:          circuitbreaker.ForCollaborator(serviceName, cfg.CircuitBreaker, logger.GetLogger(), onStateChange),
		retryConfig: cfg.Retry,
	}
}

// Classify sends one encoded image to the model and returns its label scores.
func (c *Client) Classify(ctx context.Context, image []byte) ([]classifier.Prediction, error) {
	if len(image) == 0 {
		return nil, apperr.Unsupported("empty image")
	}

	var predictions []classifier.Prediction

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Permanent(err)
			}

			preds, err := c.post(ctx, image)
			if err != nil {
				return err
			}
			predictions = preds
			return nil
		})
	})
	if err != nil {
		metrics.ExternalErrors.WithLabelValues(serviceName).Inc()
		return nil, apperr.External(serviceName, err)
	}

	logger.Debug("Image classified", zap.Int("labels", len(predictions)))

	return predictions, nil
}

// Score implements classifier.Scorer.
func (c *Client) Score(ctx context.Context, image []byte) (float64, error) {
	preds, err := c.Classify(ctx, image)
	if err != nil {
		return 0, err
	}
	return classifier.FakeScore(preds, c.fakeLabel), nil
}

func (c *Client) post(ctx context.Context, image []byte) ([]classifier.Prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(image))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", mimetype.Detect(image).String())
	req.Header.Set("Accept", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call classifier: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, errorMessage(body))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(statusErr)
		}
		return nil, statusErr
	}

	return parsePredictions(body)
}

// parsePredictions accepts both the flat [{label,score}] shape and the
// batched [[{label,score}]] shape some inference servers return.
func parsePredictions(body []byte) ([]classifier.Prediction, error) {
	var flat []classifier.Prediction
	if err := json.Unmarshal(body, &flat); err == nil {
		return flat, nil
	}

	var batched [][]classifier.Prediction
	if err := json.Unmarshal(body, &batched); err == nil {
		if len(batched) == 0 {
			return nil, nil
		}
		return batched[0], nil
	}

	return nil, retry.Permanent(fmt.Errorf("failed to parse classifier response: %s", truncate(string(body), 200)))
}

func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return truncate(strings.TrimSpace(string(body)), 200)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func onStateChange(name string, _ circuitbreaker.State, to circuitbreaker.State) {
	metrics.CircuitState.WithLabelValues(name).Set(float64(to))
}
