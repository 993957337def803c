package handlers

import (
	"errors"

	"botnest/dblayer"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	store *dblayer.Store
}

func NewAuthHandler(store *dblayer.Store) *AuthHandler {
	return &AuthHandler{store: store}
}

// Register handles user registration
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required,min=3"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		c.JSON(500, gin.H{"error": "failed to hash password"})
		return
	}

	user, err := h.store.CreateUser(c.Request.Context(), req.Username, req.Email, hash, "user")
	if err != nil {
		if errors.Is(err, dblayer.ErrExists) {
			c.JSON(409, gin.H{"error": "username or email already exists"})
			return
		}
		writeErr(c, err)
		return
	}

	token, _ := GenerateToken(user.ID, user.Username, user.Role)
	c.JSON(200, gin.H{"user_id": user.ID, "username": user.Username, "token": token})
}

// Login handles user login
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	user, err := h.store.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil || !CheckPassword(req.Password, user.PasswordHash) {
		c.JSON(401, gin.H{"error": "invalid credentials"})
		return
	}

	token, _ := GenerateToken(user.ID, user.Username, user.Role)
	c.JSON(200, gin.H{"user_id": user.ID, "token": token})
}
