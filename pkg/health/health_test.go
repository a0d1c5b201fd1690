package health

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHealth struct {
	live, ready error
}

func (f fakeHealth) LivenessCheck() error  { return f.live }
func (f fakeHealth) ReadinessCheck() error { return f.ready }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandler(t *testing.T) {
	h := NewHandler(fakeHealth{ready: errors.New("not connected to the sync engine")}, nil)

	assert.Equal(t, http.StatusOK, get(t, h, "/live").Code)

	rec := get(t, h, "/ready?full=1")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not connected to the sync engine")
}

func TestHandlerReady(t *testing.T) {
	h := NewHandler(fakeHealth{}, nil)
	assert.Equal(t, http.StatusOK, get(t, h, "/live").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/ready").Code)
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := NewHandler(fakeHealth{ready: errors.New("down")}, reg)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/ready").Code)

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "fsplugin_healthcheck_status" {
			found = true
		}
	}
	assert.True(t, found)
}
