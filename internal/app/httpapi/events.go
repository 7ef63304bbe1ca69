package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	domain "github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
	"github.com/R3E-Network/yield_ledger/internal/engine/events"
	"github.com/R3E-Network/yield_ledger/internal/middleware"
)

const (
	defaultEventLimit = 100
	streamQueueSize   = 64
	streamWriteWait   = 5 * time.Second
	streamPingPeriod  = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// listEvents serves recent events. Filtering by kind or user reads the
// in-memory history; otherwise the durable journal is preferred.
func (h *handler) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultEventLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, "bad-request", 0, "limit must be a positive integer")
			return
		}
		limit = n
	}
	kind := domain.EventKind(q.Get("kind"))
	user := q.Get("user")

	var out []domain.Event
	switch {
	case (kind != "" || user != "") && h.events != nil:
		if user != "" {
			p, err := domain.ParsePrincipal(user)
			if err != nil {
				writeError(w, err)
				return
			}
			out = h.events.RecentByUser(p, limit)
			if kind != "" {
				out = filterKind(out, kind)
			}
		} else {
			out = h.events.RecentByKind(kind, limit)
		}
	case h.journal != nil:
		var err error
		out, err = h.journal.ListEvents(r.Context(), limit)
		if err != nil {
			writeError(w, err)
			return
		}
	case h.events != nil:
		out = h.events.Recent(limit)
	}
	if out == nil {
		out = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, out)
}

func filterKind(in []domain.Event, kind domain.EventKind) []domain.Event {
	out := in[:0]
	for _, ev := range in {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// streamEvents upgrades to a websocket and forwards committed events as
// JSON. Slow clients lose events rather than stall commits.
func (h *handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "unavailable", 0, "event stream is not configured")
		return
	}
	kind := domain.EventKind(r.URL.Query().Get("kind"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	queue := make(chan domain.Event, streamQueueSize)
	var filter events.Filter
	if kind != "" {
		filter = func(ev domain.Event) bool { return ev.Kind == kind }
	}
	unsubscribe := h.events.SubscribeFiltered(filter, func(ev domain.Event) {
		select {
		case queue <- ev:
		default:
			h.log.WithField("event", ev.ID).Warn("event stream client too slow, dropping event")
		}
	})
	defer unsubscribe()

	// The reader only watches for the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev := <-queue:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
