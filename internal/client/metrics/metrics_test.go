package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTransferCounters(t *testing.T) {
	m := New()

	m.TransferStarted("file")
	m.TransferStarted("file")
	m.TransferStarted("post")
	m.TransferCompleted("file", true, 200*time.Millisecond)
	m.TransferCompleted("file", false, 0)

	if got := testutil.ToFloat64(m.transfersStarted.WithLabelValues("file")); got != 2 {
		t.Errorf("expected 2 file starts, got %f", got)
	}
	if got := testutil.ToFloat64(m.transfersCompleted.WithLabelValues("file", "failure")); got != 1 {
		t.Errorf("expected 1 failed file, got %f", got)
	}
	if count := testutil.CollectAndCount(m.transferDuration); count == 0 {
		t.Error("expected a duration observation")
	}
}

func TestRequestGauge(t *testing.T) {
	m := New()

	m.RequestStarted()
	m.RequestStarted()
	m.RequestRecovered("rehydrated")
	if got := testutil.ToFloat64(m.recoveredTotal.WithLabelValues("rehydrated")); got != 1 {
		t.Errorf("expected 1 recovery, got %f", got)
	}
	if got := testutil.ToFloat64(m.requestsActive); got != 2 {
		t.Errorf("expected 2 active, got %f", got)
	}

	m.RequestCompleted(true, time.Second)
	m.RequestCompleted(false, time.Second)
	if got := testutil.ToFloat64(m.requestsActive); got != 0 {
		t.Errorf("expected 0 active, got %f", got)
	}
	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("failure")); got != 1 {
		t.Errorf("expected 1 failure, got %f", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.TransferStarted("file")
	m.TransferCompleted("file", true, time.Second)
	m.RequestStarted()
	m.RequestCompleted(true, time.Second)
	m.RequestRecovered("swept")
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m := New()
	m.TransferStarted("post")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `gophshare_transfers_started_total{kind="post"} 1`) {
		t.Fatalf("metric missing from output:\n%s", body)
	}
}
