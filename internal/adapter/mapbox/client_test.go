package mapbox

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/rescuecom-dashboard/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken         = "test-token"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testClient(baseURL string, timeout time.Duration) (*Client, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	return newClient(baseURL, testToken, timeout, metrics, slog.New(slog.NewTextHandler(io.Discard, nil))), metrics
}

func TestClient_ForwardGeocode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Piazza Duomo, Milano.json", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "it", r.URL.Query().Get("language"))
		assert.Equal(t, testToken, r.URL.Query().Get("access_token"))

		resp := response{
			Features: []feature{
				{
					Center:    []float64{9.1919, 45.4641},
					PlaceName: "Piazza del Duomo, 20122 Milano, Italia",
					Text:      "Piazza del Duomo",
					Relevance: 0.95,
				},
			},
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c, metrics := testClient(srv.URL, 5*time.Second)
	result, err := c.ForwardGeocode(context.Background(), "Piazza Duomo, Milano")
	require.NoError(t, err)

	assert.InDelta(t, 45.4641, result.Lat, 1e-9)
	assert.InDelta(t, 9.1919, result.Lng, 1e-9)
	assert.Equal(t, "Piazza del Duomo, 20122 Milano, Italia", result.FormattedAddress)
	assert.Equal(t, "Piazza del Duomo", result.PlaceName)
	assert.InDelta(t, 0.95, result.Confidence, 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeRequests.WithLabelValues("forward", "success")), 0)
}

func TestClient_ReverseGeocode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/14.250000,40.840000.json", r.URL.Path, "lng,lat order")

		resp := response{
			Features: []feature{
				{
					Center:    []float64{14.25, 40.84},
					PlaceName: "Via Toledo, 80134 Napoli, Italia",
					Text:      "Via Toledo",
					Relevance: 0.98,
				},
			},
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c, _ := testClient(srv.URL, 5*time.Second)
	result, err := c.ReverseGeocode(context.Background(), 40.84, 14.25)
	require.NoError(t, err)

	assert.Equal(t, "Via Toledo, 80134 Napoli, Italia", result.FormattedAddress)
	assert.Equal(t, "Via Toledo", result.PlaceName)
	assert.InDelta(t, 0.98, result.Confidence, 1e-9)
}

func TestClient_ForwardGeocode_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(response{Features: []feature{}}))
	}))
	defer srv.Close()

	c, metrics := testClient(srv.URL, 5*time.Second)
	result, err := c.ForwardGeocode(context.Background(), "Nowhere")
	require.NoError(t, err)
	assert.Zero(t, result.Lat)
	assert.Empty(t, result.FormattedAddress)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeRequests.WithLabelValues("forward", "empty")), 0)
}

func TestClient_ForwardGeocode_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Not Authorized"}`))
	}))
	defer srv.Close()

	c, metrics := testClient(srv.URL, 5*time.Second)
	_, err := c.ForwardGeocode(context.Background(), "Milano")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeRequests.WithLabelValues("forward", "error")), 0)
}

func TestClient_ForwardGeocode_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := testClient(srv.URL, 50*time.Millisecond)
	_, err := c.ForwardGeocode(context.Background(), "Milano")
	require.Error(t, err)
}
