package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go.uber.org/zap"
)

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := s.auth.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// login establishes the user identity and immediately reconciles any guest
// cart the caller accumulated before signing in. A reconciliation failure
// does not fail the login; it retries transparently on the next one.
func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, user, err := s.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if guestID, cerr := c.Cookie(guestCookie); cerr == nil && guestID != "" {
		if _, rerr := s.carts.Reconcile(c.Request.Context(), user.ID, guestID); rerr != nil {
			s.logger.Warn("cart reconciliation failed at login",
				zap.String("user_id", user.ID), zap.Error(rerr))
		} else {
			clearGuestCookie(c)
		}
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

func (s *Server) logout(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}
	if err := s.auth.Logout(c.Request.Context(), token); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
