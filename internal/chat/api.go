package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"go-ai-chat/internal/archive"
	"go-ai-chat/internal/history"
)

const (
	defaultTranscriptLimit = 50
	maxTranscriptLimit     = 500
)

// TranscriptReader reads archived turns. Nil when no archive is configured.
type TranscriptReader interface {
	RecentTurns(ctx context.Context, group string, limit int) ([]archive.Entry, error)
}

type historyTurn struct {
	Speaker string `json:"speaker"`
	Name    string `json:"name,omitempty"`
	Text    string `json:"text"`
}

type API struct {
	history     *history.Store
	transcripts TranscriptReader
}

func NewAPI(store *history.Store, transcripts TranscriptReader) *API {
	return &API{history: store, transcripts: transcripts}
}

// GetGroupHistory returns the in-memory conversation of a group.
func (a *API) GetGroupHistory(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	turns := a.history.Turns(group)

	out := make([]historyTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, historyTurn{Speaker: string(t.Speaker), Name: t.Name, Text: t.Text})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetTranscript returns archived turns of a group, oldest first.
func (a *API) GetTranscript(w http.ResponseWriter, r *http.Request) {
	if a.transcripts == nil {
		http.Error(w, "transcript archive is not enabled", http.StatusNotFound)
		return
	}

	limit := defaultTranscriptLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxTranscriptLimit)
	}

	entries, err := a.transcripts.RecentTurns(r.Context(), chi.URLParam(r, "group"), limit)
	if err != nil {
		http.Error(w, "failed to load transcript", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []archive.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
