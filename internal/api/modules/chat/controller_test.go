package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/m-mizutani/goerr/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethanbaker/ragchat/pkg/rag"
	"github.com/ethanbaker/ragchat/pkg/session"
)

type fakeService struct {
	turnErr    error
	historyErr error
	clearErr   error
	messages   map[string][]session.Message
	cleared    []string
}

func (f *fakeService) ProcessTurn(_ context.Context, sessionID, query string) (*rag.TurnResult, error) {
	if f.turnErr != nil {
		return nil, f.turnErr
	}
	return &rag.TurnResult{TurnID: "t1", Answer: "answer to " + query}, nil
}

func (f *fakeService) History(_ context.Context, sessionID string) ([]session.Message, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.messages[sessionID], nil
}

func (f *fakeService) Clear(_ context.Context, sessionID string) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = append(f.cleared, sessionID)
	return nil
}

func newRouter(svc Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r.Group("/api"), svc)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	out := map[string]any{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func TestAsk(t *testing.T) {
	r := newRouter(&fakeService{})

	code, body := do(t, r, http.MethodPost, "/api/chat/ask", map[string]string{"sessionId": "s1", "query": "What is photosynthesis?"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "answer to What is photosynthesis?", body["answer"])
	assert.Equal(t, "s1", body["sessionId"])
}

func TestAsk_BadRequest(t *testing.T) {
	r := newRouter(&fakeService{})

	for _, body := range []any{
		map[string]string{"sessionId": "s1"},
		map[string]string{"query": "q"},
		map[string]string{"sessionId": " ", "query": "q"},
		nil,
	} {
		code, out := do(t, r, http.MethodPost, "/api/chat/ask", body)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, false, out["success"])
	}
}

func TestAsk_Failures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"embedding", goerr.New("no vector", goerr.T(rag.ErrTagEmbedding)), "Failed to generate embedding"},
		{"upstream", goerr.New("qdrant down", goerr.T(rag.ErrTagUpstream)), "Internal Server Error"},
		{"untagged", errors.New("boom"), "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(&fakeService{turnErr: tt.err})

			code, body := do(t, r, http.MethodPost, "/api/chat/ask", map[string]string{"sessionId": "s1", "query": "q"})
			assert.Equal(t, http.StatusInternalServerError, code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.message, body["message"])
			assert.NotContains(t, body, "answer")
		})
	}
}

func TestGetHistory(t *testing.T) {
	svc := &fakeService{messages: map[string][]session.Message{
		"s1": {
			session.NewMessage(session.RoleUser, "hi", "t1"),
			session.NewMessage(session.RoleAssistant, "hello", "t1"),
		},
	}}
	r := newRouter(svc)

	code, body := do(t, r, http.MethodGet, "/api/chat/history/s1", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	messages := body["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].(map[string]any)["role"])
	assert.Equal(t, "hello", messages[1].(map[string]any)["content"])

	// Unknown sessions return an empty array, not null
	code, body = do(t, r, http.MethodGet, "/api/chat/history/unknown", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{}, body["messages"])
}

func TestGetHistory_Failure(t *testing.T) {
	r := newRouter(&fakeService{historyErr: errors.New("redis down")})

	code, body := do(t, r, http.MethodGet, "/api/chat/history/s1", nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Failed to fetch history", body["error"])
}

func TestClearHistory(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc)

	for _, method := range []string{http.MethodPost, http.MethodDelete} {
		code, body := do(t, r, method, "/api/chat/history/s1", nil)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "Session cleared", body["message"])
	}
	assert.Equal(t, []string{"s1", "s1"}, svc.cleared)

	r = newRouter(&fakeService{clearErr: errors.New("redis down")})
	code, body := do(t, r, http.MethodPost, "/api/chat/history/s1", nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, false, body["success"])
}
