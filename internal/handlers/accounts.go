package handlers

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/kubesec-bank/invest-ledger/internal/models"
)

const defaultStatementLimit = 50

// OpenAccount handles POST /api/v1/accounts
func (h *Handler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req models.OpenAccountRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}
	account, err := h.lifecycle.OpenAccount(r.Context(), caller, req.Branch, req.Number)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// GetAccount handles GET /api/v1/accounts/me
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	account, err := h.ledger.Account(r.Context(), caller)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// PostMovement handles POST /api/v1/accounts/{id}/movements
func (h *Handler) PostMovement(w http.ResponseWriter, r *http.Request) {
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
	var req models.MovementRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}
	m, err := h.ledger.PostMovement(r.Context(), caller, id, req.Kind, req.Amount)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// DeactivateAccount handles POST /api/v1/accounts/{id}/deactivate
func (h *Handler) DeactivateAccount(w http.ResponseWriter, r *http.Request) {
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
	var req models.PasswordRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if err := h.lifecycle.DeactivateAccount(r.Context(), caller, id, req.Password); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Deposit handles POST /api/v1/account/deposit
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.ledger.Deposit)
}

// Withdraw handles POST /api/v1/account/withdraw
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.ledger.Withdraw)
}

type moveFunc func(ctx context.Context, caller models.Caller, amount decimal.Decimal) (*models.Movement, error)

func (h *Handler) move(w http.ResponseWriter, r *http.Request, fn moveFunc) {
	caller, err := h.caller(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req models.AmountRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}
	m, err := fn(r.Context(), caller, req.Amount)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// Statement handles GET /api/v1/account/movements?limit=&offset=
func (h *Handler) Statement(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	limit, err := queryInt(r, "limit", defaultStatementLimit)
	if err != nil {
		h.fail(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		h.fail(w, err)
		return
	}
	movements, err := h.ledger.Statement(r.Context(), caller, limit, offset)
	if err != nil {
		h.fail(w, err)
		return
	}
	if movements == nil {
		movements = []models.Movement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"movements": movements,
		"limit":     limit,
		"offset":    offset,
	})
}

// CreditScore handles GET /api/v1/account/score
func (h *Handler) CreditScore(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	score, err := h.ledger.CreditScore(r.Context(), caller)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}
