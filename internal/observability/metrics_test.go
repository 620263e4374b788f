package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_HandlerExposesCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.UploadedBytes.Add(42)
	m.QuotaRejections.WithLabelValues("quota").Inc()

	assert.Equal(t, float64(42), testutil.ToFloat64(m.UploadedBytes))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "nimbus_uploaded_bytes_total 42"))
	assert.True(t, strings.Contains(body, `nimbus_quota_rejections_total{reason="quota"} 1`))
}

func TestNewLogger(t *testing.T) {
	for _, prod := range []bool{true, false} {
		l, err := NewLogger(prod)
		require.NoError(t, err)
		l.Info("logger ready")
	}
}
