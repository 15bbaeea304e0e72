// Package app builds the service graph shared by the API server and the CLI.
package app

import (
	"time"

	"go.uber.org/zap"

	"github.com/veritas/backend/internal/classifier/huggingface"
	"github.com/veritas/backend/internal/detection"
	"github.com/veritas/backend/internal/factcheck"
	"github.com/veritas/backend/internal/llm"
	"github.com/veritas/backend/internal/media"
	statsredis "github.com/veritas/backend/internal/stats/redis"
	"github.com/veritas/backend/internal/verify"
	"github.com/veritas/backend/pkg/config"
	"github.com/veritas/backend/pkg/logger"
	"github.com/veritas/backend/pkg/retry"
)

type Services struct {
	Verifier *verify.Service
	Detector *detection.Detector
	Fetcher  *media.Fetcher
	Tools    media.Toolchain
	// Tallies is nil when redis is disabled or unreachable.
	Tallies *statsredis.Client
}

func (s *Services) Close() {
	if s.Tallies != nil {
		if err := s.Tallies.Close(); err != nil {
			logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
}

func NewServices(cfg *config.Config) (*Services, error) {
	retryConfig := retry.FromSettings(
		cfg.Retry.MaxAttempts,
		time.Duration(cfg.Retry.InitialDelayMs)*time.Millisecond,
		time.Duration(cfg.Retry.MaxDelayMs)*time.Millisecond,
		logger.GetLogger(),
	)

	var tallies *statsredis.Client
	if cfg.Redis.Enabled {
		client, err := statsredis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("Redis unavailable, usage tallies disabled", zap.Error(err))
		} else {
			tallies = client
		}
	}

	classifier := huggingface.NewClient(huggingface.Config{
		Endpoint:          cfg.Classifier.Endpoint,
		APIToken:          cfg.Classifier.APIToken,
		FakeLabel:         cfg.Classifier.FakeLabel,
		Timeout:           time.Duration(cfg.Classifier.TimeoutSec) * time.Second,
		RequestsPerSecond: cfg.Classifier.RequestsPerSecond,
		Retry:             retryConfig,
		CircuitBreaker:    cfg.Breaker.Enabled,
	})

	factChecker := factcheck.NewClient(factcheck.Config{
		Endpoint:       cfg.FactCheck.Endpoint,
		APIKey:         cfg.FactCheck.APIKey,
		LanguageCode:   cfg.FactCheck.LanguageCode,
		Timeout:        time.Duration(cfg.FactCheck.TimeoutSec) * time.Second,
		Retry:          retryConfig,
		CircuitBreaker: cfg.Breaker.Enabled,
	})

	generator, err := llm.NewGenerator(llm.Config{
		Provider:       cfg.LLM.Provider,
		Model:          cfg.LLM.Model,
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		Timeout:        time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		Retry:          retryConfig,
		CircuitBreaker: cfg.Breaker.Enabled,
	})
	if err != nil {
		return nil, err
	}

	tools := media.NewToolchain(cfg.Video.FFmpegPath, cfg.Video.FFprobePath)

	// Typed nil pointers must not reach the Recorder interfaces.
	var detectionRecorder detection.Recorder
	var verifyRecorder verify.Recorder
	if tallies != nil {
		detectionRecorder = tallies
		verifyRecorder = tallies
	}

	return &Services{
		Verifier: verify.NewService(factChecker, generator, verifyRecorder, verify.Config{
			MaxResults:       cfg.FactCheck.MaxResults,
			ResolveURLClaims: cfg.FactCheck.ResolveURLClaims,
			FetchTimeout:     time.Duration(cfg.FactCheck.TimeoutSec) * time.Second,
		}),
		Detector: detection.NewDetector(classifier, detection.ToolchainOpener(tools), detectionRecorder),
		Fetcher:  media.NewFetcher(cfg.Media.TmpDir, time.Duration(cfg.Media.DownloadTimeout)*time.Second),
		Tools:    tools,
		Tallies:  tallies,
	}, nil
}
