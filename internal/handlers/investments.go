package handlers

import (
	"net/http"

	"github.com/kubesec-bank/invest-ledger/internal/invest"
	"github.com/kubesec-bank/invest-ledger/internal/models"
)

// CreateProfile handles POST /api/v1/investors
func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req models.CreateProfileRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}
	profile, err := h.invest.CreateProfile(r.Context(), caller, req.RiskTier, req.DeclaredNetWorth)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

// GetProfile handles GET /api/v1/investors/me
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	portfolio, err := h.invest.Profile(r.Context(), caller)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, portfolio)
}

// DeleteProfile handles DELETE /api/v1/investors/{id}
func (h *Handler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := h.invest.DeleteProfile(r.Context(), caller, id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Purchase handles POST /api/v1/investments
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req models.PurchaseRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}
	pricing, err := invest.NewPricing(req.Category, req.Ticker, req.Quantity, req.Amount)
	if err != nil {
		h.fail(w, err)
		return
	}
	position, err := h.invest.Purchase(r.Context(), caller, pricing)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, position)
}

// ListPositions handles GET /api/v1/investments
func (h *Handler) ListPositions(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	positions, err := h.invest.Positions(r.Context(), caller)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

// Redeem handles DELETE /api/v1/investments/{id}
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	m, err := h.invest.Redeem(r.Context(), caller, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Quote handles GET /api/v1/market/quote?ticker=
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	quote, err := h.invest.Quote(r.Context(), r.URL.Query().Get("ticker"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// Search handles GET /api/v1/market/search?q=
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	assets, err := h.invest.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": assets})
}
