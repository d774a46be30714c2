package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	pc := NewPrometheusCollector("ledger", reg)

	pc.RecordMovement("D")
	pc.RecordMovement("D")
	pc.RecordMovement("C")
	pc.RecordOperation("purchase", "business_rule", 10*time.Millisecond)
	pc.RecordOracleCall("http", "ticker_info", false, time.Second)
	pc.RecordOracleCache("ticker_info", true)
	pc.RecordCircuitState("oracle", CircuitOpen)
	pc.RecordRequest("POST", "/api/v1/investments", 201, time.Millisecond)

	if got := testutil.ToFloat64(pc.movements.WithLabelValues("D")); got != 2 {
		t.Errorf("debit movements = %v, want 2", got)
	}
	if got := testutil.ToFloat64(pc.operations.WithLabelValues("purchase", "business_rule")); got != 1 {
		t.Errorf("purchase operations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(pc.oracleCalls.WithLabelValues("http", "ticker_info", "failure")); got != 1 {
		t.Errorf("oracle failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(pc.circuitState.WithLabelValues("oracle")); got != float64(CircuitOpen) {
		t.Errorf("circuit state = %v, want open", got)
	}
	if got := testutil.ToFloat64(pc.requests.WithLabelValues("POST", "/api/v1/investments", "201")); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
}

func TestOrNoOp(t *testing.T) {
	if _, ok := OrNoOp(nil).(NoOpCollector); !ok {
		t.Fatal("nil collector should become NoOpCollector")
	}
	// must not panic
	OrNoOp(nil).RecordMovement("C")
}
