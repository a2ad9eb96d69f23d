package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultIGNURL    = "https://data.geopf.fr/geocodage/search"
	defaultUserAgent = "Kouskous2025-Geocoder/1.0"
	maxBodyBytes     = 1 << 20
)

// IGNClient queries the IGN Géoplateforme address search.
type IGNClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
	logger    *slog.Logger
}

// NewIGNClient builds a client. An empty baseURL uses the public endpoint.
func NewIGNClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *IGNClient {
	if baseURL == "" {
		baseURL = DefaultIGNURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IGNClient{baseURL: baseURL, userAgent: defaultUserAgent, http: httpClient, logger: logger}
}

type featureCollection struct {
	Features []struct {
		Geometry struct {
			Type        string    `json:"type"`
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Label string  `json:"label"`
			Score float64 `json:"score"`
		} `json:"properties"`
	} `json:"features"`
}

// Geocode returns the best match for address. The caller bounds it with ctx.
func (c *IGNClient) Geocode(ctx context.Context, address string) (Point, error) {
	q := url.Values{}
	q.Set("q", address)
	q.Set("limit", "1")
	q.Set("returntruegeometry", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Point{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Point{}, fmt.Errorf("geocoder request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Point{}, fmt.Errorf("read geocoder response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return Point{}, fmt.Errorf("geocoder status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var fc featureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		return Point{}, fmt.Errorf("decode geocoder response: %w", err)
	}
	if len(fc.Features) == 0 || len(fc.Features[0].Geometry.Coordinates) < 2 {
		return Point{}, ErrNoResult
	}
	f := fc.Features[0]
	c.logger.Debug("geocode.request.ok",
		"address", address,
		"label", f.Properties.Label,
		"score", f.Properties.Score,
	)
	return Point{Longitude: f.Geometry.Coordinates[0], Latitude: f.Geometry.Coordinates[1]}, nil
}
