// Package geosurvey fetches trail records from the national geo-survey
// open-data API. The API has no global query; trails are published per
// named region.
package geosurvey

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
	defaultBaseURL = "https://trails.geosurvey.gov/api"
	defaultTimeout = 30 * time.Second
)

// Client interfaces with the geo-survey trails API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new geo-survey client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL: baseURL,
	}
}

// TrailRecord represents a trail as published by the survey. The survey
// reports metric units.
type TrailRecord struct {
	TrailID       string          `json:"trail_id"`
	TrailName     string          `json:"trail_name"`
	Notes         string          `json:"notes"`
	DifficultyRaw string          `json:"difficulty_class"`
	Lat           float64         `json:"lat"`
	Lon           float64         `json:"lon"`
	LengthKm      float64         `json:"length_km"`
	ElevGainM     float64         `json:"elev_gain_m"`
	Region        string          `json:"region"`
	State         string          `json:"state"`
	Surface       string          `json:"surface"`
	Geometry      json.RawMessage `json:"geometry,omitempty"`
}

// RegionTrails fetches all trails published for one named region.
func (c *Client) RegionTrails(ctx context.Context, region string, limit int) ([]TrailRecord, error) {
	u, err := url.Parse(c.baseURL + "/regions/" + url.PathEscape(region) + "/trails")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if limit > 0 {
		q := u.Query()
		q.Set("limit", strconv.Itoa(limit))
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", httpResp.StatusCode, string(body))
	}

	var records []TrailRecord
	if err := json.NewDecoder(httpResp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return records, nil
}
