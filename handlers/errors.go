package handlers

import (
	"errors"
	"log"

	"botnest/dblayer"
	"botnest/deploy"

	"github.com/gin-gonic/gin"
)

// writeErr maps domain errors to HTTP responses. Unknown errors are logged
// and surfaced as 500 without detail.
func writeErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, deploy.ErrValidation):
		c.JSON(400, gin.H{"error": "invalid input"})
	case errors.Is(err, dblayer.ErrNotFound):
		c.JSON(404, gin.H{"error": "not found"})
	case errors.Is(err, dblayer.ErrInsufficientFunds):
		c.JSON(402, gin.H{"error": "insufficient coins"})
	case errors.Is(err, dblayer.ErrAlreadyRunning):
		c.JSON(409, gin.H{"error": "a bot is already running for this account"})
	case errors.Is(err, dblayer.ErrRunning):
		c.JSON(409, gin.H{"error": "stop the bot before deleting it"})
	case errors.Is(err, dblayer.ErrPendingExists):
		c.JSON(409, gin.H{"error": "a pending payment request already exists"})
	case errors.Is(err, dblayer.ErrAlreadyReviewed):
		c.JSON(409, gin.H{"error": "payment request already reviewed"})
	case errors.Is(err, dblayer.ErrExists):
		c.JSON(409, gin.H{"error": "already exists"})
	case errors.Is(err, deploy.ErrProvisioning):
		log.Printf("[http] provisioning error: %v", err)
		c.JSON(502, gin.H{"error": "provisioning failed"})
	default:
		log.Printf("[http] internal error: %v", err)
		c.JSON(500, gin.H{"error": "internal error"})
	}
}
