package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/veritas/backend/internal/metrics"
	"github.com/veritas/backend/pkg/circuitbreaker"
	"github.com/veritas/backend/pkg/logger"
	"github.com/veritas/backend/pkg/retry"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Generator produces a free-text completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// Name is the provider's display name, used in user-facing error text.
	Name() string
}

type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	Retry       retry.Config

	// CircuitBreaker enables the shared breaker around provider calls.
	CircuitBreaker bool
}

func NewGenerator(cfg Config) (Generator, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderGemini, "":
		return NewGeminiClient(cfg), nil
	case ProviderOpenAI:
		return NewOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func newBreaker(service string, enabled bool) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.ForCollaborator(service, enabled, logger.GetLogger(), func(name string, _, to circuitbreaker.State) {
		metrics.CircuitState.WithLabelValues(name).Set(float64(to))
	})
}
