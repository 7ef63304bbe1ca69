package httpapi

import (
	"net/http"

	domain "github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
)

func (h *handler) addProtocol(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ID   uint32 `json:"id"`
		Name string `json:"name"`
		APY  uint32 `json:"apy"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeBadRequest(w, err)
		return
	}
	s, err := h.svc.AddProtocol(r.Context(), caller(r), payload.ID, payload.Name, payload.APY)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *handler) updateProtocolStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var payload struct {
		Active bool `json:"active"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeBadRequest(w, err)
		return
	}
	s, err := h.svc.UpdateProtocolStatus(r.Context(), caller(r), id, payload.Active)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handler) updateProtocolAPY(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var payload struct {
		APY uint32 `json:"apy"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeBadRequest(w, err)
		return
	}
	s, err := h.svc.UpdateProtocolAPY(r.Context(), caller(r), id, payload.APY)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handler) setAllocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var payload struct {
		Weight uint32 `json:"weight"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeBadRequest(w, err)
		return
	}
	alloc, err := h.svc.SetAllocation(r.Context(), caller(r), id, payload.Weight)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alloc)
}

func (h *handler) setPlatformFee(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Bps uint32 `json:"bps"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := h.svc.SetPlatformFee(r.Context(), caller(r), payload.Bps); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint32{"platform_fee_bps": payload.Bps})
}

func (h *handler) setEmergencyShutdown(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Shutdown bool `json:"shutdown"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := h.svc.SetEmergencyShutdown(r.Context(), caller(r), payload.Shutdown); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"emergency_shutdown": payload.Shutdown})
}

func (h *handler) setDepositLimits(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Min uint64 `json:"min"`
		Max uint64 `json:"max"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := h.svc.SetDepositLimits(r.Context(), caller(r), payload.Min, payload.Max); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"min": payload.Min, "max": payload.Max})
}

func (h *handler) whitelistToken(w http.ResponseWriter, r *http.Request) {
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
	if err := h.svc.WhitelistToken(r.Context(), caller(r), handlerID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"handler": handlerID, "whitelisted": true})
}
