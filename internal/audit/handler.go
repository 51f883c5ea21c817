package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/medibook/pkg/logging"
)

// Querier lists audit events. *Service satisfies it.
type Querier interface {
	Query(ctx context.Context, filter Filter) ([]Event, error)
}

// Handler exposes audit events to the front desk.
type Handler struct {
	events Querier
	logger *logging.Logger
}

func NewHandler(events Querier, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{events: events, logger: logger}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/audit-events", h.List)
}

// List handles GET /audit-events?type=&appointment_id=&since=&until=&limit=.
// since and until are RFC 3339 timestamps.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{Type: EventType(q.Get("type"))}

	var err error
	if v := q.Get("appointment_id"); v != "" {
		if filter.AppointmentID, err = strconv.ParseInt(v, 10, 64); err != nil {
			http.Error(w, "invalid appointment_id", http.StatusBadRequest)
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil || filter.Limit < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}
	for key, dst := range map[string]*time.Time{"since": &filter.Since, "until": &filter.Until} {
		if v := q.Get(key); v != "" {
			if *dst, err = time.Parse(time.RFC3339, v); err != nil {
				http.Error(w, "invalid "+key, http.StatusBadRequest)
				return
			}
		}
	}

	events, err := h.events.Query(r.Context(), filter)
	if err != nil {
		h.logger.Error("audit query failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []Event{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"events": events, "count": len(events)})
}
