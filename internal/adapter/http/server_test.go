package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	httpadapter "github.com/couchcryptid/metget-build-service/internal/adapter/http"
	"github.com/couchcryptid/metget-build-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

func newTestServer(readyErr error) *httpadapter.Server {
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, domain.NewResolver(nil), slog.Default())
}

func serve(t *testing.T, srv *httpadapter.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := serve(t, newTestServer(nil), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := serve(t, newTestServer(nil), "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := serve(t, newTestServer(fmt.Errorf("catalog unavailable")), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServicesListsRegistry(t *testing.T) {
	rec := serve(t, newTestServer(nil), "/services")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, len(domain.Services()))

	byID := make(map[string]map[string]any, len(body))
	for _, s := range body {
		byID[s["id"].(string)] = s
	}
	require.Contains(t, byID, "coamps-ctcx")
	assert.Equal(t, "ensemble", byID["coamps-ctcx"]["scope"])
	assert.Equal(t, true, byID["coamps-ctcx"]["storm_required"])
	assert.Equal(t, "6h0m0s", byID["gfs-ncep"]["cycle_interval"])
	assert.Equal(t, "track", byID["nhc"]["scope"])
}

func TestDomainsListsPredefined(t *testing.T) {
	rec := serve(t, newTestServer(nil), "/domains")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]map[string]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body, "gom")
	assert.InDelta(t, -98.0, body["gom"]["x_init"], 1e-9)
	assert.InDelta(t, 0.1, body["gom"]["di"], 1e-9)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(t, newTestServer(nil), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
