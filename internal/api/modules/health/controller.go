package health

import (
	"context"
	"net/http"
	"time"

	"github.com/ethanbaker/api/pkg/api_types"
	"github.com/gin-gonic/gin"

	"github.com/ethanbaker/ragchat/pkg/logging"
)

// Check probes one backing service. Probes must not modify the service
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

type handler struct {
	checks []Check
}

// Return status of the API and its dependencies. Only the names of failing
// checks are exposed, the errors go to the log
func (h *handler) getStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	failed := []string{}
	for _, check := range h.checks {
		if err := check.Probe(ctx); err != nil {
			logging.From(c.Request.Context()).Warn("health check failed", "check", check.Name, "error", err)
			failed = append(failed, check.Name)
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": api_types.StatusError, "code": http.StatusServiceUnavailable, "message": "Degraded", "error": failed})
		return
	}

	res := api_types.NewSuccessResponse("OK", nil)
	c.JSON(res.AsGinResponse())
}
