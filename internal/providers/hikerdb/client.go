package hikerdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultBaseURL = "https://api.hikerdb.com/v1"

	defaultTimeout     = 30 * time.Second
	maxRetries         = 3
	initialRetryDelay  = 1 * time.Second
	maxRetryDelay      = 30 * time.Second
	retryBackoffFactor = 2
)

// Client interfaces with the HikerDB trail database API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a new HikerDB API client.
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// SearchResponse represents one page of trail search results.
type SearchResponse struct {
	Trails   []TrailData `json:"trails"`
	NextPage *int        `json:"next_page"`
}

// TrailData represents a trail as returned by the HikerDB API.
// Lengths are in miles and elevations in feet; this provider is
// US-centric and reports imperial units only.
type TrailData struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	Summary       string  `json:"summary"`
	Difficulty    string  `json:"difficulty"` // color-coded: green, greenBlue, blue, blueBlack, black, dblack
	Stars         float64 `json:"stars"`
	Location      string  `json:"location"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	LengthMiles   float64 `json:"length"`
	AscentFeet    float64 `json:"ascent"`
	ConditionDate string  `json:"condition_date"`
}

// SearchParams narrows a point-radius trail query.
type SearchParams struct {
	Latitude   float64
	Longitude  float64
	RadiusKm   float64
	MaxResults int
	Page       int
}

// Search fetches one page of trails around a point. Rate-limit
// rejections and server errors are retried with exponential backoff.
func (c *Client) Search(ctx context.Context, params SearchParams) (*SearchResponse, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	u, err := url.Parse(c.baseURL + "/trails")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	q := u.Query()
	q.Set("lat", strconv.FormatFloat(params.Latitude, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(params.Longitude, 'f', -1, 64))
	if params.RadiusKm > 0 {
		q.Set("radius", strconv.FormatFloat(params.RadiusKm, 'f', -1, 64))
	}
	if params.MaxResults > 0 {
		q.Set("max_results", strconv.Itoa(params.MaxResults))
	}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	u.RawQuery = q.Encode()

	var resp *SearchResponse
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := calculateRetryDelay(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, lastErr = c.doSearchRequest(ctx, u.String())
		if lastErr == nil {
			return resp, nil
		}

		// Only retry on rate limits or server errors
		if !isRetryableError(lastErr) {
			return nil, lastErr
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doSearchRequest(ctx context.Context, url string) (*SearchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{Err: err}
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode == http.StatusUnauthorized:
		return nil, ErrInvalidAPIKey
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, &StatusError{StatusCode: httpResp.StatusCode}
	case httpResp.StatusCode >= 500:
		return nil, &StatusError{StatusCode: httpResp.StatusCode}
	case httpResp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", httpResp.StatusCode, string(body))
	}

	var resp SearchResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &resp, nil
}

func calculateRetryDelay(attempt int) time.Duration {
	delay := initialRetryDelay
	for i := 1; i < attempt; i++ {
		delay *= retryBackoffFactor
	}
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}
