package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(Signups.WithLabelValues("accepted"))
	Signups.WithLabelValues("accepted").Inc()
	after := testutil.ToFloat64(Signups.WithLabelValues("accepted"))
	if after-before != 1 {
		t.Fatalf("signups delta = %v, want 1", after-before)
	}
}

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	PendingTriggers.Set(3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "raidbot_pending_triggers 3") {
		t.Fatalf("metrics output missing pending triggers gauge")
	}
}

func TestTimerObserveDuration(t *testing.T) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_duration_seconds",
		Help: "Test duration histogram",
	})
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	timer.ObserveDuration(h)

	if n := testutil.CollectAndCount(h); n != 1 {
		t.Fatalf("collected %d series, want 1", n)
	}
	if timer.Duration() < 5*time.Millisecond {
		t.Fatalf("duration too short: %v", timer.Duration())
	}
}
