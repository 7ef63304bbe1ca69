package httpapi

import (
	"net/http"

	domain "github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
)

type transferRequest struct {
	Handler string `json:"handler"`
	Amount  uint64 `json:"amount"`
}

func (h *handler) deposit(w http.ResponseWriter, r *http.Request) {
	var payload transferRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeBadRequest(w, err)
		return
	}
	handlerID, err := domain.ParsePrincipal(payload.Handler)
	if err != nil {
		writeError(w, err)
		return
	}
	acct, err := h.svc.Deposit(r.Context(), caller(r), handlerID, payload.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *handler) withdraw(w http.ResponseWriter, r *http.Request) {
	var payload transferRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeBadRequest(w, err)
		return
	}
	handlerID, err := domain.ParsePrincipal(payload.Handler)
	if err != nil {
		writeError(w, err)
		return
	}
	acct, err := h.svc.Withdraw(r.Context(), caller(r), handlerID, payload.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *handler) claim(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Handler string `json:"handler"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeBadRequest(w, err)
		return
	}
	handlerID, err := domain.ParsePrincipal(payload.Handler)
	if err != nil {
		writeError(w, err)
		return
	}
	reward, err := h.svc.ClaimRewards(r.Context(), caller(r), handlerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"reward": reward})
}
