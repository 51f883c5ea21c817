package appointments

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/medibook/pkg/logging"
)

// Handler serves the administrative appointment endpoints.
type Handler struct {
	service *Service
	logger  *logging.Logger
	now     func() time.Time
}

// NewHandler creates a new appointments handler
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger, now: time.Now}
}

// Routes mounts the handlers on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/appointments/today", h.Today)
	r.Put("/appointments/{id}/confirm", h.Confirm)
	r.Put("/appointments/{id}/visited", h.MarkVisited)
	r.Delete("/appointments/{id}", h.Delete)
}

// TodayResponse is the response for GET /appointments/today
type TodayResponse struct {
	Date         string        `json:"date"`
	Appointments []Appointment `json:"appointments"`
	Count        int           `json:"count"`
}

// Today handles GET /appointments/today
func (h *Handler) Today(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	list, err := h.service.Today(r.Context(), now)
	if err != nil {
		h.logger.Error("failed to list today's appointments", "error", err)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []Appointment{}
	}
	writeJSON(w, http.StatusOK, TodayResponse{
		Date:         now.In(h.service.loc).Format("2006-01-02"),
		Appointments: list,
		Count:        len(list),
	})
}

// Confirm handles PUT /appointments/{id}/confirm
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.appointmentID(w, r)
	if !ok {
		return
	}
	appt, err := h.service.Confirm(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

type visitedRequest struct {
	Visited *bool `json:"visited"`
}

// MarkVisited handles PUT /appointments/{id}/visited. The body is optional and
// defaults to {"visited": true}.
func (h *Handler) MarkVisited(w http.ResponseWriter, r *http.Request) {
	id, ok := h.appointmentID(w, r)
	if !ok {
		return
	}
	visited := true
	if r.ContentLength != 0 {
		var req visitedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Visited != nil {
			visited = *req.Visited
		}
	}
	appt, err := h.service.MarkVisited(r.Context(), id, visited)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// Delete handles DELETE /appointments/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.appointmentID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) appointmentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, ErrAlreadyConfirmed):
		http.Error(w, "appointment already confirmed", http.StatusConflict)
	case errors.Is(err, ErrSlotTaken):
		http.Error(w, "slot already booked by another confirmed appointment", http.StatusConflict)
	case errors.Is(err, ErrDailyCapReached):
		http.Error(w, "doctor is fully booked for that day", http.StatusConflict)
	default:
		h.logger.Error("appointment admin request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
