package httpapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/R3E-Network/yield_ledger/internal/middleware"
)

// auditEntry records one admin request, accepted or not.
type auditEntry struct {
	Time       time.Time `json:"time"`
	Caller     string    `json:"caller"`
	Path       string    `json:"path"`
	Method     string    `json:"method"`
	Status     int       `json:"status"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
}

type auditLog struct {
	mu      sync.Mutex
	entries []auditEntry
	max     int
}

func newAuditLog(max int) *auditLog {
	if max <= 0 {
		max = 200
	}
	return &auditLog{max: max}
}

func (l *auditLog) add(entry auditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}

func (l *auditLog) list() []auditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]auditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *auditLog) listLimit(limit int) []auditEntry {
	if limit <= 0 || limit > l.max {
		limit = l.max
	}
	all := l.list()
	if len(all) <= limit {
		return all
	}
	return all[len(all)-limit:]
}

type statusCapture struct {
	http.ResponseWriter
	status int
}

func (s *statusCapture) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// record wraps an admin endpoint so every call lands in the audit trail.
func (l *auditLog) record(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		capture := &statusCapture{ResponseWriter: w, status: http.StatusOK}
		next(capture, r)
		l.add(auditEntry{
			Time:       time.Now().UTC(),
			Caller:     string(caller(r)),
			Path:       r.URL.Path,
			Method:     r.Method,
			Status:     capture.status,
			RemoteAddr: r.RemoteAddr,
		})
	}
}

// listAudit serves the admin trail; only the ledger admin may read it.
func (h *handler) listAudit(w http.ResponseWriter, r *http.Request) {
	if caller(r) != h.svc.Ledger().Params().Admin {
		middleware.WriteError(w, http.StatusForbidden, "not-authorized", 100, "only the admin may read the audit trail")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}
