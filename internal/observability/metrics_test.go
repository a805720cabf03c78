package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", "200", time.Millisecond)
	m.ObserveCrisis("crisis", "self_harm", time.Millisecond, true)
	m.IncNotifyExhausted()
	m.AddEscalationsSwept(3)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("nil handler: want=404 got=%d", rec.Code)
	}
}

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveCrisis("crisis", "self_harm", 600*time.Millisecond, true)
	m.ObserveCrisis("general", "", time.Millisecond, false)
	if got := testutil.ToFloat64(m.crisisSlow); got != 1 {
		t.Fatalf("crisis slow: want=1 got=%v", got)
	}
	if got := testutil.ToFloat64(m.crisisVerdicts.WithLabelValues("general", "none")); got != 1 {
		t.Fatalf("general verdicts: want=1 got=%v", got)
	}

	m.IncNotifyAttempt("failed")
	m.IncNotifyAttempt("failed")
	m.IncNotifyExhausted()
	if got := testutil.ToFloat64(m.notifyAttempts.WithLabelValues("failed")); got != 2 {
		t.Fatalf("notify attempts: want=2 got=%v", got)
	}

	m.AddEscalationsSwept(0)
	m.AddEscalationsSwept(2)
	if got := testutil.ToFloat64(m.escalationsSwept); got != 2 {
		t.Fatalf("swept: want=2 got=%v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "careline_notification_exhausted_total 1") {
		t.Fatalf("exposition missing exhausted counter:\n%s", rec.Body.String())
	}
}
