package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/artpar/tablecrud/adapters/metrics"
)

func TestNewWithRegistry(t *testing.T) {
	// Use a new registry to avoid conflicts with other tests
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	if m == nil {
		t.Fatal("NewWithRegistry returned nil")
	}
	if m.RequestsTotal == nil || m.RejectionsTotal == nil || m.StorageDuration == nil ||
		m.StorageErrors == nil || m.RequestDuration == nil || m.RequestsInFlight == nil {
		t.Error("collector has nil metrics")
	}

	// A second collector on its own registry must not panic.
	metrics.NewWithRegistry(prometheus.NewRegistry())
}

func TestRecordRequest(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	m.RecordRequest("create", 200)
	m.RecordRequest("create", 200)
	m.RecordRequest("create", 400)

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("create", "200")); got != 2 {
		t.Errorf("requests{create,200} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("create", "400")); got != 1 {
		t.Errorf("requests{create,400} = %v, want 1", got)
	}
}

func TestRecordRejection(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	m.RecordRejection("delete", "unscoped")

	if got := testutil.ToFloat64(m.RejectionsTotal.WithLabelValues("delete", "unscoped")); got != 1 {
		t.Errorf("rejections = %v, want 1", got)
	}
}

func TestObserveStorage(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	m.ObserveStorage("select", 5*time.Millisecond, nil)
	m.ObserveStorage("select", time.Millisecond, errors.New("boom"))

	if got := testutil.CollectAndCount(m.StorageDuration); got != 1 {
		t.Errorf("storage duration series = %d, want 1", got)
	}
	if got := testutil.ToFloat64(m.StorageErrors.WithLabelValues("select")); got != 1 {
		t.Errorf("storage errors = %v, want 1", got)
	}
}

func TestRecordReload(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	m.RecordReload(nil)
	m.RecordReload(errors.New("bad yaml"))

	if got := testutil.ToFloat64(m.ConfigReloads); got != 1 {
		t.Errorf("reloads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ConfigReloadErrors); got != 1 {
		t.Errorf("reload errors = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	m.RecordRequest("read", 200)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `tablecrud_requests_total{operation="read",status="200"} 1`) {
		t.Errorf("metrics output missing request counter:\n%s", body)
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{200, "2xx"},
		{201, "2xx"},
		{302, "3xx"},
		{400, "4xx"},
		{503, "5xx"},
		{100, "other"},
	}
	for _, tt := range tests {
		if got := metrics.StatusLabel(tt.status); got != tt.want {
			t.Errorf("StatusLabel(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestMiddleware(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	h := m.Middleware("/metrics")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/test/create", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))

	if got := testutil.CollectAndCount(m.RequestDuration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
	if got := testutil.ToFloat64(m.RequestsInFlight); got != 0 {
		t.Errorf("in flight = %v, want 0", got)
	}
}
