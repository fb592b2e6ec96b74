// Package websearch implements a client for the Google Custom Search JSON API.
package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"sleuth/internal/logging"
)

const defaultBaseURL = "https://www.googleapis.com/customsearch/v1"

// ErrRateLimited indicates the search API rejected the call with HTTP 429.
var ErrRateLimited = errors.New("search rate limit exceeded")

// APIError is a typed error carrying the HTTP-level failure from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("search API error (status %d): %s", e.StatusCode, e.Message)
}

// Config configures the search client.
type Config struct {
	APIKey   string
	EngineID string
	BaseURL  string
	Timeout  time.Duration
}

// Client talks to the Custom Search API. Safe for concurrent use.
type Client struct {
	apiKey     string
	engineID   string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a search client.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:   cfg.APIKey,
		engineID: cfg.EngineID,
		baseURL:  baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// wire format of the Custom Search JSON API response, reduced to the
// fields this assistant consumes.
type searchResponse struct {
	Items             []Item `json:"items"`
	SearchInformation struct {
		TotalResults string `json:"totalResults"`
	} `json:"searchInformation"`
	Queries struct {
		NextPage []struct {
			StartIndex int `json:"startIndex"`
		} `json:"nextPage"`
	} `json:"queries"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Search runs one query against the search service.
func (c *Client) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	if c.apiKey == "" || c.engineID == "" {
		return nil, &APIError{StatusCode: http.StatusUnauthorized, Message: "API key or engine id not configured"}
	}
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	start := time.Now()

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.engineID)
	params.Set("q", query)
	if opts.Count > 0 {
		// The API serves at most 10 results per page.
		count := opts.Count
		if count > 10 {
			count = 10
		}
		params.Set("num", strconv.Itoa(count))
	}
	if opts.StartIndex > 0 {
		params.Set("start", strconv.Itoa(opts.StartIndex))
	}
	if opts.Language != "" {
		params.Set("lr", opts.Language)
	}
	if opts.Region != "" {
		params.Set("gl", opts.Region)
	}
	if opts.SafeMode != "" {
		params.Set("safe", opts.SafeMode)
	}
	if opts.SiteRestriction != "" {
		params.Set("siteSearch", opts.SiteRestriction)
	}

	requestURL := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		logging.SearchWarn("rate limited: query=%q", query)
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, string(body))
	}

	var parsed searchResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr != nil && resp.StatusCode == http.StatusOK {
		return nil, fmt.Errorf("failed to decode search response: %w", jsonErr)
	}

	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	total, _ := strconv.ParseInt(parsed.SearchInformation.TotalResults, 10, 64)
	result := &Response{
		Items:        parsed.Items,
		TotalResults: total,
		HasNextPage:  len(parsed.Queries.NextPage) > 0,
	}

	logging.Search("query=%q results=%d total=%d in %v", query, len(result.Items), total, time.Since(start))
	return result, nil
}
