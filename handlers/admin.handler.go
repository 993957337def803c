package handlers

import (
	"strconv"

	"botnest/deploy"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	svc *deploy.Service
}

func NewAdminHandler(svc *deploy.Service) *AdminHandler {
	return &AdminHandler{svc: svc}
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.svc.ListUsers(c.Request.Context())
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(200, gin.H{"users": users})
}

func (h *AdminHandler) ListBots(c *gin.Context) {
	deps, err := h.svc.ListAllDeployments(c.Request.Context())
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(200, gin.H{"bots": deps})
}

func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(200, stats)
}

// Topup credits coins to a user by username.
func (h *AdminHandler) Topup(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Amount   int64  `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	balance, err := h.svc.AdminTopup(c.Request.Context(), req.Username, req.Amount)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(200, gin.H{"username": req.Username, "balance": balance})
}

// StopBot stops any user's bot with initiator=admin.
func (h *AdminHandler) StopBot(c *gin.Context) {
	if err := h.svc.Stop(c.Request.Context(), c.Param("handle"), deploy.InitiatorAdmin); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(200, gin.H{"message": "stopped"})
}

func (h *AdminHandler) ListPayments(c *gin.Context) {
	reqs, err := h.svc.ListPaymentRequests(c.Request.Context(), c.Query("status"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(200, gin.H{"payment_requests": reqs})
}

func (h *AdminHandler) ApprovePayment(c *gin.Context) {
	h.review(c, true)
}

func (h *AdminHandler) RejectPayment(c *gin.Context) {
	h.review(c, false)
}

func (h *AdminHandler) review(c *gin.Context, approve bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(400, gin.H{"error": "invalid id"})
		return
	}

	var p any
	if approve {
		p, err = h.svc.ApprovePaymentRequest(c.Request.Context(), id)
	} else {
		p, err = h.svc.RejectPaymentRequest(c.Request.Context(), id)
	}
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(200, p)
}
