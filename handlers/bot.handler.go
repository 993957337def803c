package handlers

import (
	"errors"
	"strconv"

	"botnest/dblayer"
	"botnest/deploy"

	"github.com/gin-gonic/gin"
)

type BotHandler struct {
	svc *deploy.Service
}

func NewBotHandler(svc *deploy.Service) *BotHandler {
	return &BotHandler{svc: svc}
}

// Deploy provisions and starts a bot for the calling user.
func (h *BotHandler) Deploy(c *gin.Context) {
	var req struct {
		Session string `json:"session" binding:"required"`
		Name    string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	result, err := h.svc.Deploy(c.Request.Context(), userID(c), req.Session, req.Name)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(200, result)
}

// List returns the calling user's deployments, newest first.
func (h *BotHandler) List(c *gin.Context) {
	deps, err := h.svc.ListDeployments(c.Request.Context(), userID(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(200, gin.H{"bots": deps})
}

// Stop stops the caller's bot. Safe to repeat.
func (h *BotHandler) Stop(c *gin.Context) {
	handle, ok := h.owned(c)
	if !ok {
		return
	}
	if err := h.svc.Stop(c.Request.Context(), handle, deploy.InitiatorUser); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(200, gin.H{"message": "stopped"})
}

// Delete removes a stopped bot's record.
func (h *BotHandler) Delete(c *gin.Context) {
	handle, ok := h.owned(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteRecord(c.Request.Context(), handle); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(200, gin.H{"message": "deleted"})
}

// owned resolves the :handle param and checks it belongs to the caller.
// Foreign handles read as not found.
func (h *BotHandler) owned(c *gin.Context) (string, bool) {
	handle := c.Param("handle")
	d, err := h.svc.GetDeployment(c.Request.Context(), handle)
	if err != nil {
		if errors.Is(err, dblayer.ErrNotFound) {
			c.JSON(404, gin.H{"error": "not found"})
		} else {
			writeErr(c, err)
		}
		return "", false
	}
	if d.UserID != userID(c) {
		c.JSON(404, gin.H{"error": "not found"})
		return "", false
	}
	return handle, true
}

// Me returns the caller's balance and deployment counts.
func (h *BotHandler) Me(c *gin.Context) {
	sum, err := h.svc.UserSummary(c.Request.Context(), userID(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(200, sum)
}

// Transactions returns the caller's ledger, most recent first.
func (h *BotHandler) Transactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	txns, err := h.svc.ListTransactions(c.Request.Context(), userID(c), limit)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(200, gin.H{"transactions": txns})
}
