package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/stakingledger/internal/domain"
)

// EventSource replays stored ledger events.
type EventSource interface {
	Events(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error)
}

// EventHandler serves the event stream and the audit log.
type EventHandler struct {
	events EventSource
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(events EventSource, audit domain.AuditStore, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, audit: audit, logger: logHandler(logger, "events")}
}

type streamEvent struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

type listEventsResponse struct {
	Events []streamEvent `json:"events"`
	Next   string        `json:"next"`
}

// ListEvents replays events after the given stream id.
// GET /api/events?after=<id>&count=<n>
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	count := 100
	if n, err := strconv.Atoi(r.URL.Query().Get("count")); err == nil && n > 0 {
		count = min(n, 1000)
	}

	msgs, err := h.events.Events(r.Context(), after, count)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	resp := listEventsResponse{Events: make([]streamEvent, 0, len(msgs)), Next: after}
	for _, m := range msgs {
		resp.Events = append(resp.Events, streamEvent{ID: m.ID, Event: json.RawMessage(m.Payload)})
		resp.Next = m.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

type auditEntryView struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt string         `json:"created_at"`
}

// ListAudit pages through the audit log, newest first.
// GET /api/audit?limit=&offset=&since=&until=
func (h *EventHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	out := make([]auditEntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryView{
			ID:        e.ID,
			Event:     e.Event,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}
