// Package verify checks a text claim against published fact checks and asks
// a language model for a short verdict.
package verify

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/veritas/backend/internal/claim"
	"github.com/veritas/backend/internal/factcheck"
	"github.com/veritas/backend/internal/llm"
	"github.com/veritas/backend/internal/metrics"
	"github.com/veritas/backend/pkg/logger"
	"github.com/veritas/backend/pkg/utils"
)

const (
	kind          = "text"
	NoDataMessage = "No direct fact checks found. Analysis based on AI evaluation."
	maxPageBytes  = 2 << 20
)

type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]factcheck.ClaimRecord, error)
	SearchImage(ctx context.Context, imageURL string, maxResults int) ([]factcheck.ClaimRecord, error)
}

// Recorder receives one outcome per verification.
type Recorder interface {
	RecordOutcome(ctx context.Context, kind, outcome string) error
}

type Config struct {
	MaxResults       int
	ResolveURLClaims bool
	FetchTimeout     time.Duration
}

type TextResult struct {
	Claim          string                  `json:"claim"`
	ResolvedFrom   string                  `json:"resolved_from,omitempty"`
	Analysis       string                  `json:"analysis"`
	SummaryFailed  bool                    `json:"summary_failed"`
	FactChecks     []factcheck.ClaimRecord `json:"fact_checks"`
	NoData         bool                    `json:"no_data"`
	Info           string                  `json:"info,omitempty"`
	FactCheckError string                  `json:"fact_check_error,omitempty"`
	ClaimHash      string                  `json:"claim_hash"`
}

type Service struct {
	search     Searcher
	generator  llm.Generator
	recorder   Recorder
	cfg        Config
	httpClient *http.Client
}

func NewService(search Searcher, generator llm.Generator, recorder Recorder, cfg Config) *Service {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	return &Service{
		search:     search,
		generator:  generator,
		recorder:   recorder,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.FetchTimeout},
	}
}

// Verify never fails on collaborator errors. A failed search counts as no
// data and a failed summary is reported inside Analysis.
func (s *Service) Verify(ctx context.Context, claimText string) *TextResult {
	start := time.Now()
	result := &TextResult{Claim: claimText}

	if s.cfg.ResolveURLClaims {
		if pageURL, ok := singleURL(claimText); ok {
			if resolved, err := s.resolveURLClaim(ctx, pageURL); err != nil {
				logger.Warn("Failed to resolve claim URL, using it verbatim", zap.Error(err))
			} else {
				result.Claim = resolved
				result.ResolvedFrom = pageURL.String()
			}
		}
	}

	result.ClaimHash = utils.Fingerprint(result.Claim)

	records, err := s.search.Search(ctx, claim.BuildSearchQuery(result.Claim), s.cfg.MaxResults)
	s.finish(ctx, result, records, err, start)
	return result
}

// VerifyImageContext searches fact checks that reference the image at
// imageURL and summarizes them.
func (s *Service) VerifyImageContext(ctx context.Context, imageURL string) *TextResult {
	start := time.Now()
	result := &TextResult{
		Claim:        claim.ImageContextClaim,
		ResolvedFrom: imageURL,
		ClaimHash:    utils.Fingerprint(imageURL),
	}

	records, err := s.search.SearchImage(ctx, imageURL, s.cfg.MaxResults)
	s.finish(ctx, result, records, err, start)
	return result
}

func (s *Service) finish(ctx context.Context, result *TextResult, records []factcheck.ClaimRecord, searchErr error, start time.Time) {
	if searchErr != nil {
		logger.Warn("Fact-check search failed, continuing without data",
			zap.String("claim_hash", result.ClaimHash),
			zap.Error(searchErr),
		)
		result.FactCheckError = searchErr.Error()
		records = nil
	}
	if records == nil {
		records = []factcheck.ClaimRecord{}
	}

	result.FactChecks = records
	result.NoData = len(records) == 0
	if result.NoData {
		result.Info = NoDataMessage
	}
	metrics.FactChecksFound.Observe(float64(len(records)))

	prompt := claim.BuildSummaryPrompt(result.Claim, records)
	analysis, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		logger.Warn("Summary generation failed",
			zap.String("claim_hash", result.ClaimHash),
			zap.String("provider", s.generator.Name()),
			zap.Error(err),
		)
		result.Analysis = fmt.Sprintf("Error with %s API: %s", s.generator.Name(), err)
		result.SummaryFailed = true
	} else {
		result.Analysis = PlainText(analysis)
	}

	outcome := "found"
	switch {
	case result.SummaryFailed:
		outcome = "summary_failed"
	case result.NoData:
		outcome = "no_data"
	}

	metrics.AnalysisTotal.WithLabelValues(kind, outcome).Inc()
	metrics.AnalysisDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if s.recorder != nil {
		if err := s.recorder.RecordOutcome(context.WithoutCancel(ctx), kind, outcome); err != nil {
			logger.Warn("Failed to record outcome", zap.Error(err))
		}
	}

	logger.Info("Claim verified",
		zap.String("claim_hash", result.ClaimHash),
		zap.Int("fact_checks", len(records)),
		zap.String("outcome", outcome),
	)
}

func (s *Service) resolveURLClaim(ctx context.Context, pageURL *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; veritas/1.0)")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, maxPageBytes), pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to extract article: %w", err)
	}

	title := strings.TrimSpace(article.Title)
	excerpt := strings.TrimSpace(article.Excerpt)
	switch {
	case title != "" && excerpt != "":
		return title + ". " + excerpt, nil
	case title != "":
		return title, nil
	case excerpt != "":
		return excerpt, nil
	}
	return "", fmt.Errorf("page has no title or excerpt")
}

// singleURL reports whether text is exactly one absolute http(s) URL.
func singleURL(text string) (*url.URL, bool) {
	text = strings.TrimSpace(text)
	if text == "" || strings.ContainsAny(text, " \t\n") {
		return nil, false
	}
	u, err := url.Parse(text)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, false
	}
	return u, true
}

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy
)

// PlainText strips all markup from model output and leaves readable text.
func PlainText(s string) string {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}
