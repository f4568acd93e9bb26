package admin

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ethanbaker/ragchat/pkg/logging"
	"github.com/ethanbaker/ragchat/pkg/news"
	"github.com/ethanbaker/ragchat/pkg/sdk"
	"github.com/ethanbaker/ragchat/pkg/transcript"
)

// TranscriptLister reads persisted transcripts
type TranscriptLister interface {
	ListBySession(ctx context.Context, sessionID string, limit int) ([]transcript.Record, error)
}

// IngestRunner runs one news ingestion. ran is false when a run is already
// in progress
type IngestRunner interface {
	RunNow(ctx context.Context) (stats news.Stats, ran bool, err error)
}

type handler struct {
	transcripts TranscriptLister
	ingest      IngestRunner
}

// getTranscripts handles GET requests for a session's transcript rows
func (h *handler) getTranscripts(c *gin.Context) {
	sessionID := c.Param("sessionId")
	limit, _ := strconv.Atoi(c.Query("limit"))

	records, err := h.transcripts.ListBySession(c.Request.Context(), sessionID, limit)
	if err != nil {
		logging.From(c.Request.Context()).Error("failed to list transcripts", "session_id", sessionID, "error", err)
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to list transcripts", nil).AsGinResponse())
		return
	}

	out := make([]sdk.Transcript, 0, len(records))
	for _, r := range records {
		out = append(out, sdk.Transcript{
			ID:        r.ID,
			SessionID: r.SessionID,
			TurnID:    r.TurnID,
			Query:     r.Query,
			Response:  r.Response,
			Timestamp: r.Timestamp,
		})
	}

	c.JSON(sdk.NewSuccessResponse("Transcripts retrieved successfully", out).AsGinResponse())
}

// ingestNews handles POST requests that run news ingestion immediately
func (h *handler) ingestNews(c *gin.Context) {
	if h.ingest == nil {
		c.JSON(sdk.NewErrorResponse(http.StatusServiceUnavailable, "News ingestion is not configured", nil).AsGinResponse())
		return
	}

	stats, ran, err := h.ingest.RunNow(c.Request.Context())
	if !ran {
		c.JSON(sdk.NewErrorResponse(http.StatusConflict, "Ingestion already running", nil).AsGinResponse())
		return
	}
	if err != nil {
		logging.From(c.Request.Context()).Error("news ingestion failed", "error", err)
		c.JSON(sdk.NewErrorResponse(http.StatusBadGateway, "News ingestion failed", nil).AsGinResponse())
		return
	}

	c.JSON(sdk.NewSuccessResponse("News ingested", sdk.IngestStats(stats)).AsGinResponse())
}
