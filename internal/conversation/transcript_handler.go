package conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/medibook/pkg/logging"
)

// TranscriptReader lists stored chat lines. *TranscriptStore satisfies it.
type TranscriptReader interface {
	List(ctx context.Context, sessionID string, limit int64) ([]TranscriptEntry, error)
}

// TranscriptHandler serves chat transcripts to the front desk.
type TranscriptHandler struct {
	store  TranscriptReader
	logger *logging.Logger
}

func NewTranscriptHandler(store TranscriptReader, logger *logging.Logger) *TranscriptHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &TranscriptHandler{store: store, logger: logger}
}

func (h *TranscriptHandler) Routes(r chi.Router) {
	r.Get("/transcripts/{sessionID}", h.Get)
}

// Get handles GET /transcripts/{sessionID}?limit=n.
func (h *TranscriptHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}
	var limit int64
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.store.List(r.Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("transcript lookup failed", "session_id", sessionID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if len(entries) == 0 {
		http.Error(w, "transcript not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"session_id": sessionID,
		"entries":    entries,
	})
}
