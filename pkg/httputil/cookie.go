package httputil

import (
	"errors"
	"net/http"
	"strings"

	"github.com/vistream/panel/internal/config"
)

const AuthCookieName = "auth_token"

const LicenseKeyHeader = "X-License-Key"

func SetAuthCookie(w http.ResponseWriter, token string) {
	ttlDays := config.GetEnvAsInt("SESSION_TTL_DAYS", 7)
	maxAge := ttlDays * 24 * 60 * 60

	isProduction := config.GetEnv("ENVIRONMENT", "development") == "production"

	cookie := &http.Cookie{
		Name:     AuthCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   isProduction, // Only require HTTPS in production
	}

	// SameSite=None requires Secure=true, so use Lax for development
	if isProduction {
		cookie.SameSite = http.SameSiteNoneMode
		cookie.Secure = true // Must be true for SameSite=None
	} else {
		cookie.SameSite = http.SameSiteLaxMode // Works for localhost without HTTPS
	}

	http.SetCookie(w, cookie)
}

func ClearAuthCookie(w http.ResponseWriter) {
	cookie := &http.Cookie{
		Name:     AuthCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	}

	http.SetCookie(w, cookie)
}

// GetTokenFromRequest extracts the bearer token, checking the Authorization
// header first, then the auth cookie, then the "token" query parameter.
// The query fallback exists for media players and websocket clients that
// cannot set headers.
func GetTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
			return authHeader[7:], nil
		}
		return authHeader, nil
	}

	if cookie, err := r.Cookie(AuthCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok, nil
	}

	return "", errors.New("no auth token found in header, cookie or query")
}

// GetLicenseKey extracts the optional license key, checking the dedicated
// header first and falling back to the "license_key" query parameter. The
// key is independent of the account bearer token.
func GetLicenseKey(r *http.Request) string {
	if key := r.Header.Get(LicenseKeyHeader); key != "" {
		return strings.TrimSpace(key)
	}
	return strings.TrimSpace(r.URL.Query().Get("license_key"))
}
