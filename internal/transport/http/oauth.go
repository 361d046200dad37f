package http

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vistream/panel/internal/config"
	"github.com/vistream/panel/internal/repository/postgres"
	"github.com/vistream/panel/internal/service/session"
	"github.com/vistream/panel/pkg/auth"
	"github.com/vistream/panel/pkg/httputil"
	"github.com/vistream/panel/pkg/useragent"
)

type OAuthHandler struct {
	Accounts    *postgres.AccountRepo
	AuthService *session.AuthService
	OAuth       *config.OAuthConfig
	FrontendURL string
}

func NewOAuthHandler(accounts *postgres.AccountRepo, authService *session.AuthService, oauthCfg *config.OAuthConfig, frontendURL string) *OAuthHandler {
	return &OAuthHandler{
		Accounts:    accounts,
		AuthService: authService,
		OAuth:       oauthCfg,
		FrontendURL: frontendURL,
	}
}

// GoogleLogin redirects to Google's consent page. The state parameter is
// verified on callback against a short-lived cookie.
func (h *OAuthHandler) GoogleLogin(c *gin.Context) {
	state := auth.GenerateToken()
	c.SetCookie("oauth_state", state, 300, "/", "", false, true)
	url := h.OAuth.GoogleLoginConfig.AuthCodeURL(state)
	c.Redirect(http.StatusTemporaryRedirect, url)
}

// GoogleCallback completes the OAuth flow. Google login never creates
// accounts: only an existing account whose email matches can sign in.
func (h *OAuthHandler) GoogleCallback(c *gin.Context) {
	state, err := c.Cookie("oauth_state")
	if err != nil || state == "" || c.Query("state") != state {
		c.Redirect(http.StatusTemporaryRedirect, h.FrontendURL+"/login?error=invalid_state")
		return
	}

	code := c.Query("code")
	if code == "" {
		c.Redirect(http.StatusTemporaryRedirect, h.FrontendURL+"/login?error=missing_code")
		return
	}

	token, err := h.OAuth.GoogleLoginConfig.Exchange(context.Background(), code)
	if err != nil {
		log.Printf("[OAUTH] Failed to exchange code: %v", err)
		c.Redirect(http.StatusTemporaryRedirect, h.FrontendURL+"/login?error=exchange_failed")
		return
	}

	googleUser, err := config.GetGoogleUserInfo(token.AccessToken)
	if err != nil {
		log.Printf("[OAUTH] Failed to fetch user info: %v", err)
		c.Redirect(http.StatusTemporaryRedirect, h.FrontendURL+"/login?error=userinfo_failed")
		return
	}
	if !googleUser.VerifiedEmail {
		c.Redirect(http.StatusTemporaryRedirect, h.FrontendURL+"/login?error=email_unverified")
		return
	}

	account, err := h.Accounts.GetByEmail(googleUser.Email)
	if err != nil {
		log.Printf("[OAUTH] Failed to look up account for %s: %v", googleUser.Email, err)
		c.Redirect(http.StatusTemporaryRedirect, h.FrontendURL+"/login?error=server_error")
		return
	}
	if account == nil {
		c.Redirect(http.StatusTemporaryRedirect, h.FrontendURL+"/login?error=not_registered")
		return
	}
	if err := h.AuthService.VerifyAccountUsable(account); err != nil {
		c.Redirect(http.StatusTemporaryRedirect, h.FrontendURL+"/login?error=account_disabled")
		return
	}

	if err := h.Accounts.LinkGoogleID(account.Email, googleUser.ID); err != nil {
		log.Printf("[OAUTH] Failed to link google id for account %d: %v", account.ID, err)
	}

	deviceInfo := useragent.ExtractDeviceInfo(c.Request)
	ipAddress := useragent.ExtractIPAddress(c.Request)
	accessToken, _, err := h.AuthService.IssueSession(account, deviceInfo, ipAddress)
	if err != nil {
		log.Printf("[OAUTH] Failed to create session for account %d: %v", account.ID, err)
		c.Redirect(http.StatusTemporaryRedirect, h.FrontendURL+"/login?error=server_error")
		return
	}

	httputil.SetAuthCookie(c.Writer, accessToken)
	c.Redirect(http.StatusTemporaryRedirect, h.FrontendURL+"/dashboard")
}
