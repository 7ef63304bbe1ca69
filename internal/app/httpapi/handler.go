// Package httpapi exposes the yield ledger over HTTP: participant operations,
// read-only queries, the admin control plane, event history and health.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	domain "github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
	"github.com/R3E-Network/yield_ledger/internal/app/metrics"
	vaultsvc "github.com/R3E-Network/yield_ledger/internal/app/services/vault"
	"github.com/R3E-Network/yield_ledger/internal/app/storage"
	"github.com/R3E-Network/yield_ledger/internal/app/system"
	"github.com/R3E-Network/yield_ledger/internal/engine/events"
	"github.com/R3E-Network/yield_ledger/internal/middleware"
	"github.com/R3E-Network/yield_ledger/pkg/logger"
)

// HealthReporter is satisfied by system.Manager.
type HealthReporter interface {
	Health() []system.Health
	Healthy() bool
}

// Dependencies are the collaborators of the API. Service and Auth are
// required; the rest are optional.
type Dependencies struct {
	Service     *vaultsvc.Service
	Auth        *middleware.AuthMiddleware
	Events      *events.RingBuffer
	Journal     storage.JournalStore
	Health      HealthReporter
	RateLimiter *middleware.RateLimiter
	CORS        *middleware.CORSMiddleware
	Log         *logger.Logger
}

// handler bundles HTTP endpoints for the ledger service.
type handler struct {
	svc     *vaultsvc.Service
	events  *events.RingBuffer
	journal storage.JournalStore
	health  HealthReporter
	audit   *auditLog
	log     *logger.Logger
}

// NewHandler returns the router exposing the REST API.
func NewHandler(deps Dependencies) http.Handler {
	log := deps.Log
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{
		svc:     deps.Service,
		events:  deps.Events,
		journal: deps.Journal,
		health:  deps.Health,
		audit:   newAuditLog(200),
		log:     log,
	}
	authed := func(fn http.HandlerFunc) http.Handler { return deps.Auth.Handler(fn) }
	admin := func(fn http.HandlerFunc) http.Handler { return deps.Auth.Handler(h.audit.record(fn)) }

	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(log))
	if deps.RateLimiter != nil {
		r.Use(deps.RateLimiter.Handler)
	}

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Handle("/deposits", authed(h.deposit)).Methods(http.MethodPost)
	v1.Handle("/withdrawals", authed(h.withdraw)).Methods(http.MethodPost)
	v1.Handle("/claims", authed(h.claim)).Methods(http.MethodPost)

	v1.HandleFunc("/protocols", h.listProtocols).Methods(http.MethodGet)
	v1.HandleFunc("/protocols/{id:[0-9]+}", h.getProtocol).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{principal}", h.getAccount).Methods(http.MethodGet)
	v1.HandleFunc("/tvl", h.getTVL).Methods(http.MethodGet)
	v1.HandleFunc("/whitelist/{handler}", h.getWhitelist).Methods(http.MethodGet)
	v1.HandleFunc("/events", h.listEvents).Methods(http.MethodGet)
	v1.HandleFunc("/events/stream", h.streamEvents).Methods(http.MethodGet)

	v1.Handle("/admin/protocols", admin(h.addProtocol)).Methods(http.MethodPost)
	v1.Handle("/admin/protocols/{id:[0-9]+}/status", admin(h.updateProtocolStatus)).Methods(http.MethodPut)
	v1.Handle("/admin/protocols/{id:[0-9]+}/apy", admin(h.updateProtocolAPY)).Methods(http.MethodPut)
	v1.Handle("/admin/protocols/{id:[0-9]+}/allocation", admin(h.setAllocation)).Methods(http.MethodPut)
	v1.Handle("/admin/fee", admin(h.setPlatformFee)).Methods(http.MethodPut)
	v1.Handle("/admin/shutdown", admin(h.setEmergencyShutdown)).Methods(http.MethodPut)
	v1.Handle("/admin/limits", admin(h.setDepositLimits)).Methods(http.MethodPut)
	v1.Handle("/admin/whitelist", admin(h.whitelistToken)).Methods(http.MethodPost)
	v1.Handle("/admin/audit", deps.Auth.Handler(http.HandlerFunc(h.listAudit))).Methods(http.MethodGet)

	var out http.Handler = r
	if deps.CORS != nil {
		out = deps.CORS.Handler(out)
	}
	return metrics.InstrumentHandler(out)
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	if h.health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !h.health.Healthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "services": h.health.Health()})
}

func caller(r *http.Request) domain.Principal {
	p, _ := middleware.PrincipalFrom(r.Context())
	return p
}

func pathID(r *http.Request) (uint32, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid strategy id: %w", domain.ErrInvalidStrategyID)
	}
	return uint32(id), nil
}

func pathPrincipal(r *http.Request, key string) (domain.Principal, error) {
	return domain.ParsePrincipal(mux.Vars(r)[key])
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	middleware.WriteError(w, http.StatusBadRequest, "bad-request", 0, err.Error())
}

// writeError maps ledger errors to statuses; anything else is internal.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrInvalidPrincipal) {
		writeBadRequest(w, err)
		return
	}
	if errors.Is(err, vaultsvc.ErrLedgerHalted) {
		middleware.WriteError(w, http.StatusServiceUnavailable, "ledger-halted", 0, err.Error())
		return
	}
	if errors.Is(err, storage.ErrVersionConflict) {
		middleware.WriteError(w, http.StatusConflict, "version-conflict", 0, err.Error())
		return
	}
	e, ok := domain.AsError(err)
	if !ok {
		middleware.WriteError(w, http.StatusInternalServerError, "internal", 0, err.Error())
		return
	}
	middleware.WriteError(w, statusFor(e), e.Kind, int(e.Code), err.Error())
}

func statusFor(e *domain.Error) int {
	switch e {
	case domain.ErrNotAuthorized:
		return http.StatusForbidden
	case domain.ErrStrategyExists, domain.ErrGuardAlreadyHeld:
		return http.StatusConflict
	case domain.ErrInvalidAmount, domain.ErrInvalidStrategyID, domain.ErrInvalidAPY,
		domain.ErrInvalidName, domain.ErrInvalidHandler:
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}
