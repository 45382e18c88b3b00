// Package overpass queries the OpenStreetMap Overpass API for hiking
// routes inside a bounding box.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://overpass-api.de/api/interpreter"

	// Overpass queries are expensive server-side; give them room.
	defaultTimeout = 60 * time.Second
)

// Client interfaces with an Overpass API endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new Overpass client.
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

// QueryResponse is the Overpass JSON envelope.
type QueryResponse struct {
	Elements []Element `json:"elements"`
}

// Element is a single OSM way or relation from a query result.
type Element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Center *Center           `json:"center,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// Center is the computed centroid of a way or relation.
type Center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BoundingBox describes the query area as south,west,north,east.
type BoundingBox struct {
	South float64
	West  float64
	North float64
	East  float64
}

// buildQuery renders an OverpassQL query selecting hiking routes in the
// bounding box, with centroids so point coordinates come back even for
// relations.
func buildQuery(bbox BoundingBox, limit int) string {
	area := fmt.Sprintf("(%f,%f,%f,%f)", bbox.South, bbox.West, bbox.North, bbox.East)
	var b strings.Builder
	b.WriteString("[out:json][timeout:50];(")
	b.WriteString(`way["route"="hiking"]` + area + ";")
	b.WriteString(`relation["route"="hiking"]` + area + ";")
	b.WriteString(`way["highway"="path"]["sac_scale"]` + area + ";")
	b.WriteString(");")
	fmt.Fprintf(&b, "out center %d;", limit)
	return b.String()
}

// QueryHikingRoutes fetches hiking ways and relations inside the
// bounding box. Overpass has no pagination; one query returns up to
// limit elements.
func (c *Client) QueryHikingRoutes(ctx context.Context, bbox BoundingBox, limit int) ([]Element, error) {
	form := url.Values{}
	form.Set("data", buildQuery(bbox, limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", httpResp.StatusCode, string(body))
	}

	var resp QueryResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return resp.Elements, nil
}
