// Package handlers exposes the ledger, investment and lifecycle services
// over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kubesec-bank/invest-ledger/internal/auth"
	"github.com/kubesec-bank/invest-ledger/internal/errs"
	"github.com/kubesec-bank/invest-ledger/internal/invest"
	"github.com/kubesec-bank/invest-ledger/internal/ledger"
	"github.com/kubesec-bank/invest-ledger/internal/lifecycle"
	"github.com/kubesec-bank/invest-ledger/internal/logging"
	"github.com/kubesec-bank/invest-ledger/internal/metrics"
	"github.com/kubesec-bank/invest-ledger/internal/middleware"
	"github.com/kubesec-bank/invest-ledger/internal/models"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	lifecycle *lifecycle.Service
	ledger    *ledger.Service
	invest    *invest.Service
	sessions  *auth.Sessions
	logger    *logging.Logger
}

func New(lc *lifecycle.Service, ls *ledger.Service, is *invest.Service, sessions *auth.Sessions, logger *logging.Logger) *Handler {
	return &Handler{
		lifecycle: lc,
		ledger:    ls,
		invest:    is,
		sessions:  sessions,
		logger:    logging.OrGlobal(logger).Named("handlers"),
	}
}

// RouterConfig carries the cross-cutting pieces of the router.
type RouterConfig struct {
	Metrics metrics.Collector
	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Health reports whether dependencies are reachable.
	Health func(ctx context.Context) error
	// Limiter throttles signup, confirmation and login. Nil disables throttling.
	Limiter *middleware.RateLimiter
}

// NewRouter wires every route.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Logging(h.logger), middleware.Metrics(cfg.Metrics))

	r.HandleFunc("/health", h.health(cfg.Health)).Methods(http.MethodGet)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	throttle := func(f http.HandlerFunc) http.Handler {
		if cfg.Limiter == nil {
			return f
		}
		return cfg.Limiter.Middleware(f)
	}

	public := r.PathPrefix("/api/v1").Subrouter()
	public.Handle("/signup", throttle(h.Signup)).Methods(http.MethodPost)
	public.Handle("/login", throttle(h.Login)).Methods(http.MethodPost)
	public.Handle("/identities/{id}/confirm", throttle(h.Confirm)).Methods(http.MethodPost)
	public.HandleFunc("/market/quote", h.Quote).Methods(http.MethodGet)
	public.HandleFunc("/market/search", h.Search).Methods(http.MethodGet)

	private := r.PathPrefix("/api/v1").Subrouter()
	private.Use(middleware.JWTAuth(h.sessions))
	private.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)
	private.HandleFunc("/users/me/deactivate", h.DeactivateIdentity).Methods(http.MethodPost)

	private.HandleFunc("/accounts", h.OpenAccount).Methods(http.MethodPost)
	private.HandleFunc("/accounts/me", h.GetAccount).Methods(http.MethodGet)
	private.HandleFunc("/accounts/{id}/movements", h.PostMovement).Methods(http.MethodPost)
	private.HandleFunc("/accounts/{id}/deactivate", h.DeactivateAccount).Methods(http.MethodPost)

	private.HandleFunc("/account/deposit", h.Deposit).Methods(http.MethodPost)
	private.HandleFunc("/account/withdraw", h.Withdraw).Methods(http.MethodPost)
	private.HandleFunc("/account/movements", h.Statement).Methods(http.MethodGet)
	private.HandleFunc("/account/score", h.CreditScore).Methods(http.MethodGet)

	private.HandleFunc("/investors", h.CreateProfile).Methods(http.MethodPost)
	private.HandleFunc("/investors/me", h.GetProfile).Methods(http.MethodGet)
	private.HandleFunc("/investors/{id}", h.DeleteProfile).Methods(http.MethodDelete)

	private.HandleFunc("/investments", h.Purchase).Methods(http.MethodPost)
	private.HandleFunc("/investments", h.ListPositions).Methods(http.MethodGet)
	private.HandleFunc("/investments/{id}", h.Redeem).Methods(http.MethodDelete)

	return r
}

func (h *Handler) health(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				h.logger.Warn("health check failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// caller resolves the authenticated identity of the request.
func (h *Handler) caller(r *http.Request) (models.Caller, error) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		return models.Caller{}, errs.ErrUnauthorized
	}
	id, err := claims.Identity()
	if err != nil {
		return models.Caller{}, errs.ErrUnauthorized
	}
	return h.lifecycle.Caller(r.Context(), id)
}

// fail writes err with the status of its class. Internal errors were already
// logged by the service that produced them.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	writeError(w, errs.HTTPStatus(err), errs.PublicMessage(err))
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Field("body", errs.ErrInvalidInput)
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, errs.Field("id", errs.ErrInvalidInput)
	}
	return id, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errs.Field(key, errs.ErrInvalidInput)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Error: message})
}
