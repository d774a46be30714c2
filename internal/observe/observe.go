// Package observe records the outcome of service operations.
package observe

import (
	"time"

	"go.uber.org/zap"

	"github.com/kubesec-bank/invest-ledger/internal/errs"
	"github.com/kubesec-bank/invest-ledger/internal/logging"
	"github.com/kubesec-bank/invest-ledger/internal/metrics"
	"github.com/kubesec-bank/invest-ledger/internal/repository"
)

// Outcome is the metrics label for err: "ok" or its error class.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return errs.Classify(err).String()
}

// Done records op in m and logs failures outside the domain taxonomy.
// A store constraint violation here means a check in the service let an
// invariant slip and is logged as such.
func Done(m metrics.Collector, logger *logging.Logger, op string, start time.Time, err error) {
	m.RecordOperation(op, Outcome(err), time.Since(start))
	if !errs.IsInternal(err) {
		return
	}
	if repository.IsConstraintViolation(err) {
		logger.Error("invariant violation rejected by store", zap.String("operation", op), zap.Error(err))
		return
	}
	logger.Error("operation failed", zap.String("operation", op), zap.Error(err))
}
