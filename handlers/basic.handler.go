package handlers

import (
	"time"

	"botnest/dblayer"

	"github.com/gin-gonic/gin"
)

// Health handles health check endpoint
func Health(store *dblayer.Store, supervisor string) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := gin.H{
			"status":     "ok",
			"supervisor": supervisor,
			"timestamp":  time.Now().Unix(),
		}

		if err := store.Ping(c.Request.Context()); err != nil {
			status["database"] = "unhealthy"
			status["database_error"] = err.Error()
			c.JSON(503, status)
			return
		}
		status["database"] = "healthy"

		c.JSON(200, status)
	}
}
