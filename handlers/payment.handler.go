package handlers

import (
	"botnest/deploy"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	svc *deploy.Service
}

func NewPaymentHandler(svc *deploy.Service) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

// Submit files a top-up request for operator review.
func (h *PaymentHandler) Submit(c *gin.Context) {
	var req struct {
		Package  string `json:"package" binding:"required"`
		USDCents int64  `json:"usd_cents" binding:"required"`
		Coins    int64  `json:"coins" binding:"required"`
		Evidence string `json:"evidence"`
		Note     string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	p, err := h.svc.SubmitPaymentRequest(c.Request.Context(), userID(c), req.Package, req.USDCents, req.Coins, req.Evidence, req.Note)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(200, gin.H{"id": p.ID, "status": p.Status})
}
