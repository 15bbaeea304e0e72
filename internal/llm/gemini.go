package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/veritas/backend/internal/metrics"
	"github.com/veritas/backend/pkg/apperr"
	"github.com/veritas/backend/pkg/circuitbreaker"
	"github.com/veritas/backend/pkg/logger"
	"github.com/veritas/backend/pkg/retry"
)

const (
	geminiService      = "gemini"
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel = "gemini-1.5-flash"
	geminiMaxTokens    = 1024
)

// GeminiClient calls the generateContent REST endpoint directly.
type GeminiClient struct {
	baseURL    string
	apiKey     string
	model      string
	cfg        Config
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
}

func NewGeminiClient(cfg Config) *GeminiClient {
	baseURL := geminiBaseURL
	if cfg.BaseURL != "" {
		baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = geminiMaxTokens
	}

	logger.Info("LLM client initialized",
		zap.String("provider", ProviderGemini),
		zap.String("model", normalizeModel(cfg.Model)),
	)

	return &GeminiClient{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      normalizeModel(cfg.Model),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cb:         newBreaker(geminiService, cfg.CircuitBreaker),
	}
}

func (c *GeminiClient) Name() string {
	return "Gemini"
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature     float32 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (r geminiResponse) firstText() string {
	for _, candidate := range r.Candidates {
		var sb strings.Builder
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}
		if text := strings.TrimSpace(sb.String()); text != "" {
			return text
		}
	}
	return ""
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", apperr.External(geminiService, errors.New("API key not configured"))
	}

	payload := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	payload.GenerationConfig.Temperature = c.cfg.Temperature
	payload.GenerationConfig.MaxOutputTokens = c.cfg.MaxTokens

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var text string
	err = c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.cfg.Retry, func() error {
			got, err := c.send(ctx, body)
			if err != nil {
				return err
			}
			text = got
			return nil
		})
	})
	if err != nil {
		metrics.ExternalErrors.WithLabelValues(geminiService).Inc()
		return "", apperr.External(geminiService, err)
	}

	return text, nil
}

func (c *GeminiClient) send(ctx context.Context, body []byte) (string, error) {
	url := fmt.Sprintf("%s/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call generateContent: %s", strings.ReplaceAll(err.Error(), c.apiKey, "REDACTED"))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var result geminiResponse
	decodeErr := json.Unmarshal(respBody, &result)

	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && result.Error != nil && result.Error.Message != "" {
			msg = result.Error.Message
		}
		statusErr := fmt.Errorf("status %d: %s", resp.StatusCode, msg)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return "", retry.Permanent(statusErr)
		}
		return "", statusErr
	}
	if decodeErr != nil {
		return "", retry.Permanent(fmt.Errorf("failed to parse response: %w", decodeErr))
	}

	text := result.firstText()
	if text == "" {
		return "", retry.Permanent(errors.New("empty response"))
	}
	return text, nil
}

func normalizeModel(model string) string {
	model = strings.TrimSpace(model)
	if model == "" {
		model = geminiDefaultModel
	}
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}
