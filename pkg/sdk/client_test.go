package sdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/ask", func(w http.ResponseWriter, r *http.Request) {
		var req AskRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Query == "boom" {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(StatusResponse{Success: false, Message: "Internal Server Error"})
			return
		}
		json.NewEncoder(w).Encode(AskResponse{Success: true, Answer: "echo " + req.Query, SessionID: req.SessionID})
	})
	mux.HandleFunc("GET /api/chat/history/{id}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(HistoryResponse{Success: true, Messages: []Message{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		}})
	})
	mux.HandleFunc("POST /api/chat/history/{id}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(StatusResponse{Success: true, Message: "Session cleared"})
	})
	mux.HandleFunc("GET /api/admin/transcripts/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(NewSuccessResponse("ok", []Transcript{{ID: 1, SessionID: r.PathValue("id"), Query: "q", Response: "a"}}))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Chat(t *testing.T) {
	srv := newBackend(t)
	client := NewClient(srv.URL+"/", "")
	ctx := context.Background()

	resp, err := client.Ask(ctx, "s1", "ping")
	require.NoError(t, err)
	assert.Equal(t, "echo ping", resp.Answer)
	assert.Equal(t, "s1", resp.SessionID)

	_, err = client.Ask(ctx, "s1", "boom")
	assert.Error(t, err)

	messages, err := client.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "assistant", messages[1].Role)

	require.NoError(t, client.Clear(ctx, "s1"))
}

func TestClient_Admin(t *testing.T) {
	srv := newBackend(t)
	ctx := context.Background()

	_, err := NewClient(srv.URL, "").Transcripts(ctx, "s1")
	assert.Error(t, err)

	records, err := NewClient(srv.URL, "secret").Transcripts(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "s1", records[0].SessionID)
}

func TestNewEvent(t *testing.T) {
	evt, err := NewEvent(EventChatResponse, ChatPayload{SessionID: "s1", Message: "hi"})
	require.NoError(t, err)

	raw, err := json.Marshal(evt)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"chat:response","data":{"sessionId":"s1","message":"hi"}}`, string(raw))
}
