package metrics

import (
	"time"
)

// Collector receives the service's operational metrics. Implementations
// export them to a backend.
type Collector interface {
	// Ledger
	RecordMovement(kind string)
	RecordOperation(op string, class string, duration time.Duration)

	// Price oracle
	RecordOracleCall(source, op string, success bool, duration time.Duration)
	RecordOracleCache(op string, hit bool)
	RecordCircuitState(name string, state CircuitState)

	// HTTP
	RecordRequest(method, route string, status int, duration time.Duration)
}

// CircuitState mirrors the breaker states of the oracle.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector discards everything. It is the default when metrics are
// not wired.
type NoOpCollector struct{}

func (NoOpCollector) RecordMovement(string)                                {}
func (NoOpCollector) RecordOperation(string, string, time.Duration)        {}
func (NoOpCollector) RecordOracleCall(string, string, bool, time.Duration) {}
func (NoOpCollector) RecordOracleCache(string, bool)                       {}
func (NoOpCollector) RecordCircuitState(string, CircuitState)              {}
func (NoOpCollector) RecordRequest(string, string, int, time.Duration)     {}

// OrNoOp returns c, or a NoOpCollector when c is nil.
func OrNoOp(c Collector) Collector {
	if c == nil {
		return NoOpCollector{}
	}
	return c
}
