package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/daedalus410/RFID-attendance-system/internal/auth"
	"github.com/daedalus410/RFID-attendance-system/internal/model"
)

type loginRequest struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    int64     `json:"user_id"`
	UserName  string    `json:"user_name"`
}

// Login exchanges name+password for a session token. The shape check runs
// before any store access; a rejected body never touches the database.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, model.NewMalformedRequest("name and password are required"))
		return
	}

	res, err := h.auth.Login(c.Request.Context(), req.Name, req.Password)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Kind == model.KindInvalidCredentials {
			h.stats.LoginFailed()
		}
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		UserID:    res.User.ID,
		UserName:  res.User.Name,
	})
}

type validateResponse struct {
	Valid     bool      `json:"valid"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Validate reports the verdict for the presented token. The token
// middleware has already verified it; this handler only echoes the claims.
func (h *Handler) Validate(c *gin.Context) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		h.writeError(c, model.NewUnauthorized("token missing"))
		return
	}
	c.JSON(http.StatusOK, validateResponse{
		Valid:     true,
		UserID:    claims.UserID,
		ExpiresAt: claims.ExpiresAt,
	})
}
