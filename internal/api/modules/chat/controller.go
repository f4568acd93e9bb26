package chat

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/m-mizutani/goerr/v2"

	"github.com/ethanbaker/ragchat/pkg/logging"
	"github.com/ethanbaker/ragchat/pkg/rag"
	"github.com/ethanbaker/ragchat/pkg/sdk"
)

type handler struct {
	svc Service
}

// ask handles POST requests that run one conversational turn
func (h *handler) ask(c *gin.Context) {
	var req sdk.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, sdk.StatusResponse{Success: false, Message: "sessionId and query are required"})
		return
	}

	ctx := c.Request.Context()
	result, err := h.svc.ProcessTurn(ctx, req.SessionID, req.Query)
	if err != nil {
		logging.From(ctx).Error("failed to process turn", "session_id", req.SessionID, "error", err)

		message := "Internal Server Error"
		if goerr.HasTag(err, rag.ErrTagEmbedding) {
			message = "Failed to generate embedding"
		}
		c.JSON(http.StatusInternalServerError, sdk.StatusResponse{Success: false, Message: message})
		return
	}

	c.JSON(http.StatusOK, sdk.AskResponse{Success: true, Answer: result.Answer, SessionID: req.SessionID})
}

// getHistory handles GET requests for the messages of a session
func (h *handler) getHistory(c *gin.Context) {
	sessionID := c.Param("sessionId")

	ctx := c.Request.Context()
	messages, err := h.svc.History(ctx, sessionID)
	if err != nil {
		logging.From(ctx).Error("failed to fetch history", "session_id", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to fetch history"})
		return
	}

	c.JSON(http.StatusOK, sdk.HistoryResponse{Success: true, Messages: ToSDKMessages(messages)})
}

// clearHistory handles requests that delete a session
func (h *handler) clearHistory(c *gin.Context) {
	sessionID := c.Param("sessionId")

	ctx := c.Request.Context()
	if err := h.svc.Clear(ctx, sessionID); err != nil {
		logging.From(ctx).Error("failed to clear session", "session_id", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, sdk.StatusResponse{Success: false, Message: "Failed to clear session"})
		return
	}

	c.JSON(http.StatusOK, sdk.StatusResponse{Success: true, Message: "Session cleared"})
}
