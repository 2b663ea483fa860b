package mapbox

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/rescuecom-dashboard/internal/domain"
	"github.com/couchcryptid/rescuecom-dashboard/internal/observability"
	"github.com/go-resty/resty/v2"
)

const defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token    string
	language string
	http     *resty.Client
	baseURL  string
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewClient creates a Mapbox geocoding client. Results are requested in
// Italian, the language of the reporting app.
func NewClient(token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return newClient(defaultBaseURL, token, timeout, metrics, logger)
}

func newClient(baseURL, token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token:    token,
		language: "it",
		http:     resty.New().SetTimeout(timeout),
		baseURL:  baseURL,
		metrics:  metrics,
		logger:   logger,
	}
}

// ForwardGeocode converts a free-text place, e.g. "Piazza Duomo, Milano",
// to coordinates.
func (c *Client) ForwardGeocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(query))
	params := map[string]string{
		"limit": "1",
		"types": "address,poi,place,locality",
	}
	return c.doRequest(ctx, u, params, "forward")
}

// ReverseGeocode converts coordinates to place details.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (domain.GeocodingResult, error) {
	// Mapbox uses lng,lat order.
	coord := strconv.FormatFloat(lng, 'f', 6, 64) + "," + strconv.FormatFloat(lat, 'f', 6, 64)
	u := fmt.Sprintf("%s/%s.json", c.baseURL, coord)
	return c.doRequest(ctx, u, map[string]string{"limit": "1"}, "reverse")
}

func (c *Client) doRequest(ctx context.Context, fullURL string, params map[string]string, method string) (domain.GeocodingResult, error) {
	var body response
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("access_token", c.token).
		SetQueryParam("language", c.language).
		SetQueryParams(params).
		SetResult(&body).
		Get(fullURL)
	c.metrics.GeocodeAPIDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
		return domain.GeocodingResult{}, fmt.Errorf("%s geocode request: %w", method, err)
	}
	if resp.IsError() {
		c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
		return domain.GeocodingResult{}, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode(), resp.String())
	}

	if len(body.Features) == 0 {
		c.metrics.GeocodeRequests.WithLabelValues(method, "empty").Inc()
		c.logger.Debug("geocode returned no features", "method", method)
		return domain.GeocodingResult{}, nil
	}
	c.metrics.GeocodeRequests.WithLabelValues(method, "success").Inc()

	f := body.Features[0]
	result := domain.GeocodingResult{
		FormattedAddress: f.PlaceName,
		PlaceName:        f.Text,
		Confidence:       f.Relevance,
	}
	if len(f.Center) == 2 {
		result.Lng = f.Center[0]
		result.Lat = f.Center[1]
	}
	return result, nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lng, lat]
	PlaceName string    `json:"place_name"`
	Text      string    `json:"text"`
	Relevance float64   `json:"relevance"`
}
