// Package realtime serves the chat over a websocket using JSON event frames.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/m-mizutani/goerr/v2"

	"github.com/ethanbaker/ragchat/internal/api/modules/chat"
	"github.com/ethanbaker/ragchat/pkg/logging"
	"github.com/ethanbaker/ragchat/pkg/rag"
	"github.com/ethanbaker/ragchat/pkg/sdk"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxFrame   = 1 << 20
)

// Handler upgrades requests to websockets and answers chat events
type Handler struct {
	svc      chat.Service
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a Handler accepting browser origins in allowedOrigins.
// "*" accepts any origin
func NewHandler(svc chat.Service, allowedOrigins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}

	h := &Handler{svc: svc, logger: logger}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// RegisterRoutes mounts the websocket endpoint at /ws
func (h *Handler) RegisterRoutes(engine *gin.Engine) {
	engine.GET("/ws", gin.WrapH(h))
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(logging.With(context.Background(), h.logger))
	c := &conn{ws: ws, svc: h.svc, logger: h.logger.With("remote", r.RemoteAddr), ctx: ctx, cancel: cancel}
	c.logger.Info("websocket connected")
	c.serve()
	c.logger.Info("websocket disconnected")
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := map[string]bool{}
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			set[o] = true
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 || set["*"] {
			return true
		}
		return set[strings.TrimRight(origin, "/")]
	}
}

// conn is one websocket client. Events are handled concurrently; writes are
// serialized by writeMu
type conn struct {
	ws     *websocket.Conn
	svc    chat.Service
	logger *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	writeMu sync.Mutex
	wg      sync.WaitGroup
}

func (c *conn) serve() {
	defer c.ws.Close()
	defer c.wg.Wait()
	defer c.cancel()

	c.ws.SetReadLimit(maxFrame)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.wg.Add(1)
	go c.ping()

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var evt sdk.Event
		if err := json.Unmarshal(raw, &evt); err != nil || evt.Event == "" {
			c.emitError("", "", "Malformed event")
			continue
		}

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.dispatch(evt)
		}()
	}
}

func (c *conn) ping() {
	defer c.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *conn) dispatch(evt sdk.Event) {
	switch evt.Event {
	case sdk.EventChatMessage:
		var in sdk.ChatPayload
		if err := json.Unmarshal(evt.Data, &in); err != nil || strings.TrimSpace(in.SessionID) == "" || strings.TrimSpace(in.Message) == "" {
			c.emitError(evt.Event, in.SessionID, "sessionId and message are required")
			return
		}

		result, err := c.svc.ProcessTurn(c.ctx, in.SessionID, in.Message)
		if err != nil {
			c.logger.Error("failed to process turn", "session_id", in.SessionID, "error", err)
			message := "Internal Server Error"
			if goerr.HasTag(err, rag.ErrTagEmbedding) {
				message = "Failed to generate embedding"
			}
			c.emitError(evt.Event, in.SessionID, message)
			return
		}
		c.emit(sdk.EventChatResponse, sdk.ChatPayload{SessionID: in.SessionID, Message: result.Answer})

	case sdk.EventChatHistory:
		in, ok := c.sessionPayload(evt)
		if !ok {
			return
		}

		messages, err := c.svc.History(c.ctx, in.SessionID)
		if err != nil {
			c.logger.Error("failed to fetch history", "session_id", in.SessionID, "error", err)
			c.emitError(evt.Event, in.SessionID, "Failed to fetch history")
			return
		}
		c.emit(sdk.EventHistoryResponse, sdk.HistoryPayload{SessionID: in.SessionID, History: chat.ToSDKMessages(messages)})

	case sdk.EventChatClear:
		in, ok := c.sessionPayload(evt)
		if !ok {
			return
		}

		if err := c.svc.Clear(c.ctx, in.SessionID); err != nil {
			c.logger.Error("failed to clear session", "session_id", in.SessionID, "error", err)
			c.emitError(evt.Event, in.SessionID, "Failed to clear session")
			return
		}
		c.emit(sdk.EventChatCleared, sdk.SessionPayload{SessionID: in.SessionID})

	default:
		c.emitError(evt.Event, "", "Unknown event")
	}
}

func (c *conn) sessionPayload(evt sdk.Event) (sdk.SessionPayload, bool) {
	var in sdk.SessionPayload
	if err := json.Unmarshal(evt.Data, &in); err != nil || strings.TrimSpace(in.SessionID) == "" {
		c.emitError(evt.Event, "", "sessionId is required")
		return in, false
	}
	return in, true
}

func (c *conn) emitError(event, sessionID, message string) {
	c.emit(sdk.EventChatError, sdk.ErrorPayload{SessionID: sessionID, Event: event, Message: message})
}

func (c *conn) emit(name string, data any) {
	evt, err := sdk.NewEvent(name, data)
	if err != nil {
		c.logger.Error("failed to encode event", "event", name, "error", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(evt); err != nil {
		c.logger.Debug("failed to write event", "event", name, "error", err)
	}
}
