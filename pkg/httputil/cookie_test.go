package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTokenFromRequest_HeaderFirst(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/?token=from-query", nil)
	req.Header.Set("Authorization", "Bearer from-header")
	req.AddCookie(&http.Cookie{Name: AuthCookieName, Value: "from-cookie"})

	tok, err := GetTokenFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "from-header", tok)
}

func TestGetTokenFromRequest_CookieBeforeQuery(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/?token=from-query", nil)
	req.AddCookie(&http.Cookie{Name: AuthCookieName, Value: "from-cookie"})

	tok, err := GetTokenFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "from-cookie", tok)
}

func TestGetTokenFromRequest_QueryFallback(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/?token=from-query", nil)

	tok, err := GetTokenFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "from-query", tok)
}

func TestGetTokenFromRequest_BareHeader(t *testing.T) {
	t.Parallel()

	// Some media players send the raw token without the Bearer prefix.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "raw-token")

	tok, err := GetTokenFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "raw-token", tok)
}

func TestGetTokenFromRequest_Missing(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := GetTokenFromRequest(req)
	assert.Error(t, err)
}

func TestGetLicenseKey(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/?license_key=from-query", nil)
	req.Header.Set(LicenseKeyHeader, " from-header ")
	assert.Equal(t, "from-header", GetLicenseKey(req))

	req = httptest.NewRequest(http.MethodGet, "/?license_key=from-query", nil)
	assert.Equal(t, "from-query", GetLicenseKey(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", GetLicenseKey(req))
}

func TestSetAndClearAuthCookie(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	SetAuthCookie(rec, "tok-1")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, AuthCookieName, cookies[0].Name)
	assert.Equal(t, "tok-1", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Greater(t, cookies[0].MaxAge, 0)

	rec = httptest.NewRecorder()
	ClearAuthCookie(rec)
	cookies = rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}
