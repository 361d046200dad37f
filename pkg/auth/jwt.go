package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vistream/panel/internal/domain"
)

// Claims represents JWT claims for access tokens. The session ID ties the
// token to a server-side registry record so it can be revoked before its
// embedded expiry elapses.
type Claims struct {
	AccountID int64  `json:"account_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// GenerateAccessToken creates a signed JWT with an absolute expiry. Sessions
// are not sliding-window: once the token expires the subscriber logs in
// again.
func GenerateAccessToken(accountID int64, username string, role domain.Role, sessionID string, secret []byte, ttl time.Duration) (string, error) {
	claims := &Claims{
		AccountID: accountID,
		Username:  username,
		Role:      string(role),
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateAccessToken validates a JWT access token and returns the claims.
// Failure means bad signature, malformed payload or elapsed expiry; it says
// nothing about live account or session state.
func ValidateAccessToken(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
