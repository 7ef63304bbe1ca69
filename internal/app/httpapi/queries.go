package httpapi

import (
	"fmt"
	"net/http"

	domain "github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
	"github.com/R3E-Network/yield_ledger/internal/middleware"
)

type protocolView struct {
	domain.Strategy
	Weight uint32 `json:"weight"`
}

func (h *handler) listProtocols(w http.ResponseWriter, _ *http.Request) {
	strategies := h.svc.ListProtocols()
	out := make([]protocolView, 0, len(strategies))
	for _, s := range strategies {
		alloc, err := h.svc.GetAllocation(s.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		out = append(out, protocolView{Strategy: s, Weight: alloc.Weight})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"protocols":    out,
		"weighted_apy": h.svc.WeightedAPY(),
	})
}

func (h *handler) getProtocol(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s, alloc, ok := h.svc.GetProtocol(id)
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "not-found", 0, fmt.Sprintf("strategy %d is not registered", id))
		return
	}
	writeJSON(w, http.StatusOK, protocolView{Strategy: s, Weight: alloc.Weight})
}

type accountView struct {
	domain.UserAccount
	Claimed       uint64 `json:"claimed"`
	PendingReward uint64 `json:"pending_reward"`
}

func (h *handler) getAccount(w http.ResponseWriter, r *http.Request) {
	p, err := pathPrincipal(r, "principal")
	if err != nil {
		writeError(w, err)
		return
	}
	pending, err := h.svc.PendingReward(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountView{
		UserAccount:   h.svc.GetUserDeposit(p),
		Claimed:       h.svc.GetRewardAccount(p).Claimed,
		PendingReward: pending,
	})
}

func (h *handler) getTVL(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{"total_value_locked": h.svc.GetTotalTVL()})
}

func (h *handler) getWhitelist(w http.ResponseWriter, r *http.Request) {
	p, err := pathPrincipal(r, "handler")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"handler": p, "whitelisted": h.svc.IsWhitelisted(p)})
}
