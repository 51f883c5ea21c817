package conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveTranscripts(store TranscriptReader, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	NewTranscriptHandler(store, nil).Routes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestTranscriptHandler_Get(t *testing.T) {
	store, _ := newTranscriptStore(t)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "sess-9", TranscriptEntry{Role: RoleAssistant, Text: Greeting, State: StateAwaitingName}))
	require.NoError(t, store.Append(ctx, "sess-9", TranscriptEntry{Role: RoleUser, Text: "Asha", State: StateAwaitingName}))

	rec := serveTranscripts(store, "/transcripts/sess-9")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		SessionID string            `json:"session_id"`
		Entries   []TranscriptEntry `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "sess-9", body.SessionID)
	require.Len(t, body.Entries, 2)
	assert.Equal(t, "Asha", body.Entries[1].Text)

	rec = serveTranscripts(store, "/transcripts/sess-9?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Entries, 1)
	assert.Equal(t, RoleUser, body.Entries[0].Role)
}

func TestTranscriptHandler_Errors(t *testing.T) {
	store, mr := newTranscriptStore(t)

	assert.Equal(t, http.StatusNotFound, serveTranscripts(store, "/transcripts/unknown").Code)
	assert.Equal(t, http.StatusBadRequest, serveTranscripts(store, "/transcripts/sess-1?limit=abc").Code)

	mr.Close()
	assert.Equal(t, http.StatusInternalServerError, serveTranscripts(store, "/transcripts/sess-1").Code)
}
