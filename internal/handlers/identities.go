package handlers

import (
	"net/http"

	"github.com/kubesec-bank/invest-ledger/internal/middleware"
	"github.com/kubesec-bank/invest-ledger/internal/models"
)

// Signup handles POST /api/v1/signup. The confirmation code goes out in the
// identity.registered event, never in the response.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req models.SignupRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}
	identity, err := h.lifecycle.Register(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, identity)
}

// Confirm handles POST /api/v1/identities/{id}/confirm
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req models.ConfirmRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if err := h.lifecycle.Confirm(r.Context(), id, req.Code); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Login handles POST /api/v1/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}
	resp, err := h.lifecycle.Login(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout handles POST /api/v1/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.GetClaims(r.Context())
	if err := h.sessions.Logout(r.Context(), claims); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeactivateIdentity handles POST /api/v1/users/me/deactivate
func (h *Handler) DeactivateIdentity(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req models.PasswordRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if err := h.lifecycle.DeactivateIdentity(r.Context(), caller, req.Password); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
