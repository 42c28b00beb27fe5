package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestParseBucketsCSV(t *testing.T) {
	require.Nil(t, ParseBucketsCSV(""))
	require.Equal(t, []float64{5, 50, 500}, ParseBucketsCSV("5,50,500"))
	require.Equal(t, []float64{10, 100}, ParseBucketsCSV(" 10 , 100 "))
	require.Equal(t, []float64{1}, ParseBucketsCSV("1,abc"))
}

func TestHTTPObsMiddlewareRecordsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewHTTPMetrics("test", nil, reg)

	obs := HTTPObs{Metrics: metrics}
	handler := obs.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payment-gateway/freedompay/check-status/", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestMustRegisterDomainMetricsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegisterDomainMetrics("test", reg)
	// A second call must not panic with duplicate registration.
	MustRegisterDomainMetrics("test", reg)
	require.NotNil(t, PaymentCreatedTotal)
}
