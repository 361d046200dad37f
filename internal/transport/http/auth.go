package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vistream/panel/internal/domain"
	"github.com/vistream/panel/internal/service/session"
	"github.com/vistream/panel/internal/transport/http/middleware"
	"github.com/vistream/panel/pkg/httputil"
	"github.com/vistream/panel/pkg/useragent"
)

type AuthHandler struct {
	AuthService *session.AuthService
}

func NewAuthHandler(authService *session.AuthService) *AuthHandler {
	return &AuthHandler{AuthService: authService}
}

// Login authenticates an identifier+secret pair and issues a bearer token
// backed by a registry session with a fixed absolute expiry.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	account, err := h.AuthService.Authenticate(req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAccountExpired):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Account expired"})
		case errors.Is(err, domain.ErrAccountSuspended):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Account suspended"})
		default:
			// Never reveal whether the identifier or the secret was wrong.
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		}
		return
	}

	deviceInfo := useragent.ExtractDeviceInfo(c.Request)
	ipAddress := useragent.ExtractIPAddress(c.Request)

	token, sess, err := h.AuthService.IssueSession(account, deviceInfo, ipAddress)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	httputil.SetAuthCookie(c.Writer, token)
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": sess.ExpiresAt,
		"account":    account,
	})
}

// Logout destroys the registry session, making the token unusable even
// though its embedded expiry has not elapsed.
func (h *AuthHandler) Logout(c *gin.Context) {
	sessionID := c.GetString("session_id")
	if sessionID != "" {
		if err := h.AuthService.InvalidateSession(sessionID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to invalidate session"})
			return
		}
	}
	httputil.ClearAuthCookie(c.Writer)
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}

// Me returns the authenticated account
func (h *AuthHandler) Me(c *gin.Context) {
	account, ok := middleware.AccountFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account})
}

// Sessions returns the account's recent login sessions
func (h *AuthHandler) Sessions(c *gin.Context) {
	account, ok := middleware.AccountFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	sessions, err := h.AuthService.SessionHistory(account.ID, 10)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch session history"})
		return
	}
	c.JSON(http.StatusOK, sessions)
}
