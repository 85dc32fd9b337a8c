package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersIndependently(t *testing.T) {
	first := New()
	second := New()

	first.Connections.Inc()
	first.Inbound.WithLabelValues("AddCount").Add(2)

	assert.Equal(t, float64(1), testutil.ToFloat64(first.Connections))
	assert.Equal(t, float64(0), testutil.ToFloat64(second.Connections))
	assert.Equal(t, float64(2), testutil.ToFloat64(first.Inbound.WithLabelValues("AddCount")))
}

func TestHandlerServesCollectors(t *testing.T) {
	m := New()
	m.Dropped.Inc()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "countsync_outbound_dropped_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
