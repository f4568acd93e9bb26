package chat

import "github.com/gin-gonic/gin"

// RegisterRoutes registers the routes for the chat module
func RegisterRoutes(g *gin.RouterGroup, svc Service) {
	h := &handler{svc: svc}

	group := g.Group("/chat")
	group.POST("/ask", h.ask)                           // Run one turn
	group.GET("/history/:sessionId", h.getHistory)      // Ordered session messages
	group.POST("/history/:sessionId", h.clearHistory)   // Clear a session
	group.DELETE("/history/:sessionId", h.clearHistory) // Same as above
}
