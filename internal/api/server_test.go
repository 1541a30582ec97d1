package api

import (
	"encoding/json"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beecount-worker-go/internal/config"
	"beecount-worker-go/internal/models"
)

type staticStatus struct{}

func (staticStatus) Streams() []models.StreamStatus {
	return []models.StreamStatus{{HiveID: "h1"}}
}

func (staticStatus) Stream(hiveID string) (models.StreamStatus, bool) {
	return models.StreamStatus{HiveID: hiveID}, hiveID == "h1"
}

func (staticStatus) LastPublish() (time.Time, bool) { return time.Time{}, false }
func (staticStatus) PublisherConnected() bool       { return true }

func newTestServer(t *testing.T) *Server {
	t.Helper()

	s := NewServer(&config.Config{WorkerID: "w1", Version: "1.0.0", Port: 0}, Dependencies{Status: staticStatus{}})
	require.NoError(t, s.Setup())
	return s
}

func TestServer_RequestIDIsAssigned(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
}

func TestServer_RequestIDIsPropagated(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/streams/h1", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestServer_CORSPreflight(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/streams", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_HistoryWithoutJournal(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/streams/h1/history", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_UnknownRoute(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cameras", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_APIInfoListsEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/info", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Version   string            `json:"version"`
		SwaggerUI string            `json:"swagger_ui"`
		Endpoints map[string]string `json:"endpoints"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1.0.0", resp.Version)
	assert.Equal(t, "/docs/index.html", resp.SwaggerUI)
	assert.ElementsMatch(t, []string{
		"/",
		"/health",
		"/streams",
		"/streams/:hive_id",
		"/streams/:hive_id/history",
		"/system/stats",
	}, slices.Collect(maps.Values(resp.Endpoints)))
}

func TestServer_SwaggerDocument(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs/doc.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var doc struct {
		Swagger string                     `json:"swagger"`
		Paths   map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "2.0", doc.Swagger)
	for _, path := range []string{"/health", "/streams", "/streams/{hive_id}", "/streams/{hive_id}/history", "/system/stats"} {
		assert.Contains(t, doc.Paths, path)
	}
}

func TestServer_SwaggerUI(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs/index.html", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs", nil))
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/docs/index.html", rec.Header().Get("Location"))
}
