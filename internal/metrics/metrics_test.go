package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentHandlerUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Get("/api/functionalities/{id}/history", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/functionalities/{id}/history", "418"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/functionalities/f-1/history", nil))
	require.Equal(t, http.StatusTeapot, rr.Code)

	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/functionalities/{id}/history", "418"))
	assert.Equal(t, before+1, after)
}

func TestRecordMutationAndFeedGauges(t *testing.T) {
	before := testutil.ToFloat64(boardMutations.WithLabelValues("move", "invalid"))
	RecordMutation("move", "invalid")
	assert.Equal(t, before+1, testutil.ToFloat64(boardMutations.WithLabelValues("move", "invalid")))

	start := testutil.ToFloat64(feedConnections)
	FeedConnected()
	FeedConnected()
	FeedDisconnected()
	assert.Equal(t, start+1, testutil.ToFloat64(feedConnections))
	FeedDisconnected()
}

func TestHandlerExposesRegistry(t *testing.T) {
	RecordFeedEvent("functionality.created")
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "moscow_feed_events_published_total"))
}
