package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusHandler_ExposesSnapshot(t *testing.T) {
	m := New()
	m.Inc(Joins)
	m.Inc(Joins)
	m.Inc(DropNoTarget)

	rr := httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	if rr.Code != 200 {
		t.Fatalf("status=%d, want 200", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "# TYPE signal_relay_events_total counter") {
		t.Fatalf("missing TYPE header in body:\n%s", body)
	}
	if !strings.Contains(body, `signal_relay_events_total{event="joins"} 2`) {
		t.Fatalf("missing joins counter in body:\n%s", body)
	}
	if !strings.Contains(body, `signal_relay_events_total{event="drop_no_target"} 1`) {
		t.Fatalf("missing drop counter in body:\n%s", body)
	}
}

func TestPrometheusHandler_NilMetrics(t *testing.T) {
	rr := httptest.NewRecorder()
	PrometheusHandler(nil).ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != 500 {
		t.Fatalf("status=%d, want 500", rr.Code)
	}
}
