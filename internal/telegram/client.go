package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/gifttrack/gifttrack-go/internal/conf"
	"github.com/gifttrack/gifttrack-go/internal/errors"
	"github.com/gifttrack/gifttrack-go/internal/logging"
)

// Package-level logger specific to the telegram service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar) // Dynamic level control
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "telegram.log")
	initialLevel := slog.LevelDebug
	serviceLevelVar.Set(initialLevel)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "telegram", serviceLevelVar)
	if err != nil {
		log.Printf("FATAL: Failed to initialize telegram file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "telegram")
		closeLogger = func() error { return nil }
	}
}

// Client provides methods for fetching gift data from the Telegram endpoints
type Client struct {
	config      Config
	httpClient  *http.Client
	cache       *cache.Cache
	rateLimiter *time.Ticker
	mu          sync.Mutex
	lastRequest time.Time
	debug       bool

	// Metrics
	metrics struct {
		apiCalls      int64
		cacheHits     int64
		cacheMisses   int64
		apiErrors     int64
		totalDuration time.Duration
		mu            sync.RWMutex
	}
}

// NewClient creates a new Telegram gift client
func NewClient(config Config) (*Client, error) {
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.BotBaseURL == "" {
		config.BotBaseURL = defaults.BotBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = defaults.CacheTTL
	}
	if config.RateLimitMS == 0 {
		config.RateLimitMS = defaults.RateLimitMS
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}

	settings := conf.GetSettings()
	debug := settings != nil && settings.Debug

	client := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		cache:       cache.New(config.CacheTTL, config.CacheTTL*2),
		rateLimiter: time.NewTicker(time.Duration(config.RateLimitMS) * time.Millisecond),
		debug:       debug,
	}

	logger.Info("Telegram gift client initialized",
		"base_url", config.BaseURL,
		"cache_ttl", config.CacheTTL,
		"rate_limit_ms", config.RateLimitMS,
		"debug", debug,
		"bot_token_configured", config.BotToken != "")

	return client, nil
}

// Close cleans up client resources
func (c *Client) Close() {
	c.rateLimiter.Stop()
	logger.Info("Closing Telegram gift client")

	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing telegram logger: %v", err)
		}
	}
}

// GetUnit retrieves the record of one numbered collectible unit. A nil record
// with nil error means the unit does not exist upstream; errors are transient
// failures worth retrying on the next cycle.
func (c *Client) GetUnit(ctx context.Context, giftType string, num int) (*UnitRecord, error) {
	slug := fmt.Sprintf("%s-%d", giftType, num)

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/%s?format=json", c.config.BaseURL, slug)

	var record UnitRecord
	err := c.doRequestWithRetry(reqCtx, http.MethodGet, url, &record)
	if err != nil {
		if errors.IsNotFound(err) {
			// Permanent absence, not a failure
			return nil, nil
		}
		return nil, err
	}

	record.Num = num
	record.Slug = slug
	return &record, nil
}

// botListingResponse is the bot API envelope around getAvailableGifts.
type botListingResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		Gifts []ListingGift `json:"gifts"`
	} `json:"result"`
	Description string `json:"description"`
}

// GetAvailableGifts retrieves the limited gifts currently in the bot listing.
// Unlimited gifts (no remaining count) are filtered out.
func (c *Client) GetAvailableGifts(ctx context.Context) ([]ListingGift, error) {
	if c.config.BotToken == "" {
		return nil, errors.Newf("bot token is required for the gift listing").
			Category(errors.CategoryConfiguration).
			Component("telegram").
			Build()
	}

	const cacheKey = "listing"
	if cached, found := c.cache.Get(cacheKey); found {
		if gifts, ok := cached.([]ListingGift); ok {
			c.metrics.mu.Lock()
			c.metrics.cacheHits++
			c.metrics.mu.Unlock()

			logger.Debug("Gift listing cache hit", "gifts", len(gifts))
			return gifts, nil
		}
	}

	c.metrics.mu.Lock()
	c.metrics.cacheMisses++
	c.metrics.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/bot%s/getAvailableGifts", c.config.BotBaseURL, c.config.BotToken)

	var resp botListingResponse
	if err := c.doRequestWithRetry(reqCtx, http.MethodGet, url, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, errors.Newf("gift listing request rejected: %s", resp.Description).
			Category(errors.CategoryNetwork).
			Component("telegram").
			Build()
	}

	limited := make([]ListingGift, 0, len(resp.Result.Gifts))
	for _, gift := range resp.Result.Gifts {
		if gift.RemainingCount != nil {
			limited = append(limited, gift)
		}
	}

	c.cache.Set(cacheKey, limited, cache.DefaultExpiration)

	logger.Debug("Gift listing fetched",
		"total", len(resp.Result.Gifts),
		"limited", len(limited))

	return limited, nil
}

// doRequest performs an HTTP request with rate limiting
func (c *Client) doRequest(ctx context.Context, method, url string, result any) error {
	// Rate limiting
	c.mu.Lock()
	select {
	case <-c.rateLimiter.C:
	case <-ctx.Done():
		c.mu.Unlock()
		return ctx.Err()
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	start := time.Now()

	c.metrics.mu.Lock()
	c.metrics.apiCalls++
	c.metrics.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, method, url, http.NoBody)
	if err != nil {
		c.metrics.mu.Lock()
		c.metrics.apiErrors++
		c.metrics.mu.Unlock()
		return errors.Newf("failed to create HTTP request: %w", err).
			Category(errors.CategoryNetwork).
			Context("method", method).
			Context("url", url).
			Component("telegram").
			Build()
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	if c.debug {
		logger.Debug("Telegram API request", "method", method, "url", url)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.mu.Lock()
		c.metrics.apiErrors++
		c.metrics.mu.Unlock()

		logger.Error("Telegram API request failed",
			"error", err,
			"method", method,
			"url", url)
		return errors.Newf("HTTP request failed: %w", err).
			Category(errors.CategoryNetwork).
			Context("method", method).
			Context("url", url).
			Component("telegram").
			Build()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Newf("failed to read response body: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", url).
			Context("status_code", resp.StatusCode).
			Component("telegram").
			Build()
	}

	if resp.StatusCode >= 400 {
		c.metrics.mu.Lock()
		c.metrics.apiErrors++
		c.metrics.mu.Unlock()

		if resp.StatusCode != http.StatusNotFound {
			logger.Warn("Telegram API error response",
				"status_code", resp.StatusCode,
				"url", url,
				"response_preview", preview(bodyBytes))
		}

		var apiErr Error
		detail := string(bodyBytes)
		if err := json.Unmarshal(bodyBytes, &apiErr); err == nil && apiErr.Description != "" {
			detail = apiErr.Description
		}

		return errors.Newf("telegram API error (status %d): %s", resp.StatusCode, detail).
			Category(getErrorCategory(resp.StatusCode)).
			Context("status_code", resp.StatusCode).
			Context("url", url).
			Component("telegram").
			Build()
	}

	if result != nil {
		if err := json.Unmarshal(bodyBytes, result); err != nil {
			logger.Error("Failed to parse Telegram API response",
				"error", err,
				"url", url,
				"response_size", len(bodyBytes),
				"response_preview", preview(bodyBytes))
			return errors.Newf("failed to parse response: %w", err).
				Category(errors.CategoryFileParsing).
				Context("url", url).
				Context("response_size", len(bodyBytes)).
				Component("telegram").
				Build()
		}
	}

	duration := time.Since(start)

	if c.debug {
		logger.Debug("Telegram API response",
			"status_code", resp.StatusCode,
			"url", url,
			"duration_ms", duration.Milliseconds(),
			"response_size", len(bodyBytes))
	}

	c.metrics.mu.Lock()
	c.metrics.totalDuration += duration
	c.metrics.mu.Unlock()

	return nil
}

// doRequestWithRetry wraps doRequest with retry logic for transient failures
func (c *Client) doRequestWithRetry(ctx context.Context, method, url string, result any) error {
	const maxRetries = 3
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := c.doRequest(ctx, method, url, result)
		if err == nil {
			return nil
		}

		// Check if error is retryable
		var enhancedErr *errors.EnhancedError
		if errors.As(err, &enhancedErr) {
			if enhancedErr.Category == errors.CategoryConfiguration ||
				enhancedErr.Category == errors.CategoryNotFound ||
				enhancedErr.Category == errors.CategoryValidation {
				return err
			}

			if statusCode, ok := enhancedErr.Context["status_code"].(int); ok {
				// Don't retry client errors except 429
				if statusCode >= 400 && statusCode < 500 && statusCode != 429 {
					return err
				}
			}
		}

		lastErr = err

		if ctx.Err() != nil {
			return lastErr
		}

		delay := time.Duration(attempt+1) * 500 * time.Millisecond
		if attempt < maxRetries-1 {
			logger.Warn("Telegram API request failed, retrying",
				"attempt", attempt+1,
				"max_retries", maxRetries,
				"delay_ms", delay.Milliseconds(),
				"url", url,
				"error", err.Error())

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return lastErr
}

// ClearCache clears all cached data
func (c *Client) ClearCache() {
	c.cache.Flush()
	logger.Info("Telegram client cache cleared")
}

// Metrics represents client performance metrics
type Metrics struct {
	APICalls      int64         `json:"api_calls"`
	CacheHits     int64         `json:"cache_hits"`
	CacheMisses   int64         `json:"cache_misses"`
	APIErrors     int64         `json:"api_errors"`
	TotalDuration time.Duration `json:"total_duration"`
	AvgDuration   time.Duration `json:"avg_duration"`
}

// GetMetrics returns current client metrics
func (c *Client) GetMetrics() Metrics {
	c.metrics.mu.RLock()
	defer c.metrics.mu.RUnlock()

	metrics := Metrics{
		APICalls:      c.metrics.apiCalls,
		CacheHits:     c.metrics.cacheHits,
		CacheMisses:   c.metrics.cacheMisses,
		APIErrors:     c.metrics.apiErrors,
		TotalDuration: c.metrics.totalDuration,
	}

	if metrics.APICalls > 0 {
		metrics.AvgDuration = time.Duration(int64(metrics.TotalDuration) / metrics.APICalls)
	}

	return metrics
}

func preview(body []byte) string {
	const maxPreview = 500
	if len(body) > maxPreview {
		return string(body[:maxPreview]) + "..."
	}
	return string(body)
}

// getErrorCategory determines the appropriate error category based on HTTP status code
func getErrorCategory(statusCode int) errors.ErrorCategory {
	switch statusCode {
	case 401, 403:
		return errors.CategoryConfiguration
	case 429:
		return errors.CategoryLimit
	case 404:
		return errors.CategoryNotFound
	default:
		return errors.CategoryNetwork
	}
}
