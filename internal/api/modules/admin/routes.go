package admin

import (
	"github.com/ethanbaker/api/pkg/api_key"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the admin routes behind an API key check
func RegisterRoutes(g *gin.RouterGroup, apiKey string, transcripts TranscriptLister, ingest IngestRunner) {
	h := &handler{transcripts: transcripts, ingest: ingest}

	group := g.Group("/admin")
	group.Handlers = append(group.Handlers, api_key.APIKeyHeaderHandler(func(key string) bool {
		return key == apiKey
	}))

	group.GET("/transcripts/:sessionId", h.getTranscripts) // Durable query/response pairs
	group.POST("/news/ingest", h.ingestNews)               // Run news ingestion now
}
