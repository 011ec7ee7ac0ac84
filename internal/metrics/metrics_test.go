package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayuer/tubebot/internal/metrics"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollectorsExposed(t *testing.T) {
	metrics.IncEvent("command")
	metrics.IncEvent("")
	metrics.IncSession("resolved")
	metrics.ObserveCatalog("search", 0.2, nil)
	metrics.ObserveCatalog("trending", 0.1, errors.New("boom"))
	metrics.IncDownload("720p", "delivered")
	metrics.ObserveTrendingRefresh(nil, 1700000000)
	metrics.ObserveTrendingRefresh(errors.New("boom"), 0)

	body := scrape(t)
	for _, want := range []string{
		`tubebot_events_total{kind="command"}`,
		`tubebot_events_total{kind="unknown"}`,
		`tubebot_sessions_total{outcome="resolved"}`,
		`tubebot_catalog_requests_total{op="trending",result="error"}`,
		`tubebot_downloads_total{outcome="delivered",quality="720p"}`,
		`tubebot_trending_refresh_total{result="ok"}`,
		"tubebot_trending_last_refresh_timestamp_seconds ",
	} {
		assert.Contains(t, body, want)
	}
}
