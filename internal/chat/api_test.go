package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-ai-chat/internal/archive"
	"go-ai-chat/internal/history"
)

type mockTranscripts struct {
	entries  []archive.Entry
	err      error
	gotGroup string
	gotLimit int
}

func (m *mockTranscripts) RecentTurns(_ context.Context, group string, limit int) ([]archive.Entry, error) {
	m.gotGroup = group
	m.gotLimit = limit
	return m.entries, m.err
}

func newAPIRouter(api *API) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/groups/{group}/history", api.GetGroupHistory)
	r.Get("/api/groups/{group}/transcript", api.GetTranscript)
	return r
}

func TestAPI_GetGroupHistory(t *testing.T) {
	store := history.NewStore(0)
	store.AppendUserTurn("lobby", "C1", "what is 2+2?")
	store.AppendAssistantTurn("lobby", "4 is the answer")
	router := newAPIRouter(NewAPI(store, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/groups/lobby/history", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var turns []historyTurn
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &turns))
	assert.Equal(t, []historyTurn{
		{Speaker: "user", Name: "C1", Text: "what is 2+2?"},
		{Speaker: "assistant", Text: "4 is the answer"},
	}, turns)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/groups/empty/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestAPI_GetTranscript(t *testing.T) {
	tests := []struct {
		name       string
		reader     *mockTranscripts
		query      string
		wantStatus int
		wantLimit  int
	}{
		{name: "default limit", reader: &mockTranscripts{}, wantStatus: http.StatusOK, wantLimit: defaultTranscriptLimit},
		{name: "custom limit", reader: &mockTranscripts{}, query: "?limit=5", wantStatus: http.StatusOK, wantLimit: 5},
		{name: "clamped limit", reader: &mockTranscripts{}, query: "?limit=100000", wantStatus: http.StatusOK, wantLimit: maxTranscriptLimit},
		{name: "bad limit", reader: &mockTranscripts{}, query: "?limit=-1", wantStatus: http.StatusBadRequest},
		{name: "store error", reader: &mockTranscripts{err: errors.New("db down")}, wantStatus: http.StatusInternalServerError, wantLimit: defaultTranscriptLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newAPIRouter(NewAPI(history.NewStore(0), tt.reader))

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/groups/lobby/transcript"+tt.query, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantLimit, tt.reader.gotLimit)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "lobby", tt.reader.gotGroup)
				assert.JSONEq(t, `[]`, rec.Body.String())
			}
		})
	}
}

func TestAPI_GetTranscriptDisabled(t *testing.T) {
	router := newAPIRouter(NewAPI(history.NewStore(0), nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/groups/lobby/transcript", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
