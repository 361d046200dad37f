package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vistream/panel/internal/domain"
	"github.com/vistream/panel/internal/service/session"
	"github.com/vistream/panel/pkg/httputil"
)

// AuthMiddleware validates the bearer token and the server-side session
// behind it. Verification of the signature alone is not enough: the session
// must still exist in the registry (logout kills it early) and the account
// must still be active and unexpired.
func AuthMiddleware(authService *session.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := httputil.GetTokenFromRequest(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		claims, account, err := authService.ValidateToken(tokenString)
		if err != nil {
			httputil.ClearAuthCookie(c.Writer)
			switch {
			case errors.Is(err, domain.ErrAccountExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Account expired"})
			case errors.Is(err, domain.ErrAccountSuspended):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Account suspended"})
			case errors.Is(err, domain.ErrSessionExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
			default:
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			}
			return
		}

		// Bookkeeping only; never extends the session's absolute expiry.
		go authService.UpdateSessionActivity(claims.SessionID)

		c.Set("account", account)
		c.Set("session_id", claims.SessionID)
		c.Next()
	}
}

// AccountFromContext returns the authenticated account set by AuthMiddleware
func AccountFromContext(c *gin.Context) (*domain.Account, bool) {
	v, ok := c.Get("account")
	if !ok {
		return nil, false
	}
	account, ok := v.(*domain.Account)
	return account, ok
}
