package factcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/veritas/backend/internal/metrics"
	"github.com/veritas/backend/pkg/apperr"
	"github.com/veritas/backend/pkg/circuitbreaker"
	"github.com/veritas/backend/pkg/logger"
	"github.com/veritas/backend/pkg/retry"
)

const (
	serviceName     = "factcheck"
	DefaultEndpoint = "https://factchecktools.googleapis.com/v1alpha1"
)

// ClaimRecord is one published fact check matching a query.
type ClaimRecord struct {
	Text       string `json:"text"`
	Claimant   string `json:"claimant,omitempty"`
	Rating     string `json:"rating"`
	Publisher  string `json:"publisher"`
	ReviewURL  string `json:"review_url,omitempty"`
	ReviewDate string `json:"review_date,omitempty"`
}

type Config struct {
	Endpoint     string
	APIKey       string
	LanguageCode string
	Timeout      time.Duration
	Retry        retry.Config

	// CircuitBreaker enables the shared breaker around search calls.
	CircuitBreaker bool
}

// Client talks to the Google Fact Check Tools API.
type Client struct {
	endpoint     string
	apiKey       string
	languageCode string
	httpClient   *http.Client
	cb           *circuitbreaker.CircuitBreaker
	retryConfig  retry.Config
}

func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	if cfg.APIKey == "" {
		logger.Warn("Fact-check API key not configured, claim searches will return no data")
	}

	return &Client{
		endpoint:     strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:       cfg.APIKey,
		languageCode: cfg.LanguageCode,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cb: circuitbreaker.ForCollaborator(serviceName, cfg.CircuitBreaker, logger.GetLogger(), func(name string, _, to circuitbreaker.State) {
			metrics.CircuitState.WithLabelValues(name).Set(float64(to))
		}),
		retryConfig: cfg.Retry,
	}
}

func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// Search looks up published fact checks for a text query. An unconfigured
// client and an empty result both yield an empty slice, not an error.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]ClaimRecord, error) {
	params := url.Values{}
	params.Set("query", query)
	return c.search(ctx, "claims:search", params, maxResults)
}

// SearchImage looks up fact checks that reference a publicly reachable image.
func (c *Client) SearchImage(ctx context.Context, imageURL string, maxResults int) ([]ClaimRecord, error) {
	params := url.Values{}
	params.Set("imageUri", imageURL)
	return c.search(ctx, "claims:imageSearch", params, maxResults)
}

func (c *Client) search(ctx context.Context, method string, params url.Values, maxResults int) ([]ClaimRecord, error) {
	if !c.Enabled() {
		return []ClaimRecord{}, nil
	}

	params.Set("key", c.apiKey)
	if maxResults > 0 {
		params.Set("pageSize", strconv.Itoa(maxResults))
	}
	if c.languageCode != "" {
		params.Set("languageCode", c.languageCode)
	}
	searchURL := fmt.Sprintf("%s/%s?%s", c.endpoint, method, params.Encode())

	logger.Info("Searching fact checks", zap.String("method", method))

	var records []ClaimRecord
	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			got, err := c.fetch(ctx, searchURL)
			if err != nil {
				return err
			}
			records = got
			return nil
		})
	})
	if err != nil {
		metrics.ExternalErrors.WithLabelValues(serviceName).Inc()
		return nil, apperr.External(serviceName, err)
	}

	if maxResults > 0 && len(records) > maxResults {
		records = records[:maxResults]
	}

	logger.Info("Fact-check search completed", zap.Int("results", len(records)))

	return records, nil
}

type searchResponse struct {
	Claims []struct {
		Text        string `json:"text"`
		Claimant    string `json:"claimant"`
		ClaimReview []struct {
			Publisher struct {
				Name string `json:"name"`
				Site string `json:"site"`
			} `json:"publisher"`
			URL           string `json:"url"`
			Title         string `json:"title"`
			ReviewDate    string `json:"reviewDate"`
			TextualRating string `json:"textualRating"`
		} `json:"claimReview"`
	} `json:"claims"`
}

func (c *Client) fetch(ctx context.Context, searchURL string) ([]ClaimRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %s", redactKey(err.Error(), c.apiKey))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("search returned status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(statusErr)
		}
		return nil, statusErr
	}

	var searchResp searchResponse
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to parse response: %w", err))
	}

	records := make([]ClaimRecord, 0, len(searchResp.Claims))
	for _, claim := range searchResp.Claims {
		record := ClaimRecord{
			Text:     claim.Text,
			Claimant: claim.Claimant,
		}
		if len(claim.ClaimReview) > 0 {
			review := claim.ClaimReview[0]
			record.Rating = review.TextualRating
			record.Publisher = review.Publisher.Name
			record.ReviewURL = review.URL
			record.ReviewDate = review.ReviewDate
		}
		records = append(records, record)
	}

	return records, nil
}

// redactKey keeps the API key out of transport errors, which embed the URL.
func redactKey(msg, key string) string {
	if key == "" {
		return msg
	}
	return strings.ReplaceAll(msg, key, "REDACTED")
}
