package health

import "github.com/gin-gonic/gin"

// RegisterRoutes registers the routes for the health module
func RegisterRoutes(g *gin.RouterGroup, checks ...Check) {
	h := &handler{checks: checks}
	g.GET("/health", h.getStatus)
}
