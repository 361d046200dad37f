package session

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/vistream/panel/internal/domain"
	"github.com/vistream/panel/pkg/auth"
)

const sessionKeyPrefix = "session:"
const blockedSessionKeyPrefix = "blocked_session:"
const blocklistTTL = 1 * time.Hour

type SessionRepository interface {
	CreateSession(accountID int64, sessionID, deviceInfo, ipAddress string, expiresAt time.Time) error
	GetSessionByID(sessionID string) (*domain.AccountSession, error)
	DeactivateSession(sessionID string) error
	DeactivateAllAccountSessions(accountID int64) error
	UpdateSessionActivity(sessionID string) error
	GetAccountSessionHistory(accountID int64, limit int) ([]domain.AccountSession, error)
}

type AccountRepository interface {
	GetByIdentifier(identifier string) (*domain.Account, error)
	GetByID(accountID int64) (*domain.Account, error)
	UpdateLastLogin(accountID int64, at time.Time) error
}

type CacheRepository interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// AuthService owns token issue/verify and the server-side session registry.
// A request authenticates only when the JWT verifies AND a live registry
// record exists AND the owning account is still active and unexpired.
type AuthService struct {
	sessions SessionRepository
	accounts AccountRepository
	cache    CacheRepository // Optional, can be nil
	secret   []byte
	tokenTTL time.Duration
}

func NewAuthService(sessions SessionRepository, accounts AccountRepository, cache CacheRepository, secret []byte, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		sessions: sessions,
		accounts: accounts,
		cache:    cache,
		secret:   secret,
		tokenTTL: tokenTTL,
	}
}

// Authenticate checks login credentials. Bad identifier and bad password
// both come back as ErrUnauthorized so the response cannot reveal which was
// wrong; suspended and expired accounts are rejected with their own errors
// once the credentials matched.
func (s *AuthService) Authenticate(identifier, password string) (*domain.Account, error) {
	account, err := s.accounts.GetByIdentifier(identifier)
	if err != nil {
		return nil, err
	}
	if account == nil || !auth.CheckPasswordHash(password, account.PasswordHash) {
		return nil, domain.ErrUnauthorized
	}
	if err := checkAccountUsable(account); err != nil {
		return nil, err
	}
	return account, nil
}

// IssueSession creates a registry record and a signed token for it. The
// expiry is absolute: it is fixed at issue time and never refreshed.
func (s *AuthService) IssueSession(account *domain.Account, deviceInfo, ipAddress string) (string, *domain.AccountSession, error) {
	sessionID := auth.GenerateToken()
	now := time.Now()
	expiresAt := now.Add(s.tokenTTL)

	if err := s.sessions.CreateSession(account.ID, sessionID, deviceInfo, ipAddress, expiresAt); err != nil {
		return "", nil, err
	}

	token, err := auth.GenerateAccessToken(account.ID, account.Username, account.Role, sessionID, s.secret, s.tokenTTL)
	if err != nil {
		return "", nil, err
	}

	session := &domain.AccountSession{
		AccountID:    account.ID,
		SessionID:    sessionID,
		DeviceInfo:   deviceInfo,
		IPAddress:    ipAddress,
		CreatedAt:    now,
		ExpiresAt:    expiresAt,
		LastActivity: now,
		IsActive:     true,
	}
	if s.cache != nil {
		if err := s.setSessionInCache(session); err != nil {
			log.Printf("[SESSION] Warning: Failed to store session in cache: %v", err)
		}
	}

	if err := s.accounts.UpdateLastLogin(account.ID, now); err != nil {
		log.Printf("[SESSION] Warning: Failed to update last login for account %d: %v", account.ID, err)
	}

	return token, session, nil
}

// ValidateToken performs the full authentication check: JWT signature and
// expiry, revocation blocklist, live registry record, then account status
// and expiry. It returns the claims and the loaded account on success.
func (s *AuthService) ValidateToken(tokenString string) (*auth.Claims, *domain.Account, error) {
	claims, err := auth.ValidateAccessToken(tokenString, s.secret)
	if err != nil {
		return nil, nil, domain.ErrUnauthorized
	}

	if s.isSessionBlocked(claims.SessionID) {
		return nil, nil, domain.ErrSessionRevoked
	}

	session, err := s.getSession(claims.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if session == nil || !session.IsActive {
		return nil, nil, domain.ErrSessionRevoked
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, nil, domain.ErrSessionExpired
	}

	account, err := s.accounts.GetByID(claims.AccountID)
	if err != nil {
		return nil, nil, err
	}
	if account == nil {
		return nil, nil, domain.ErrUnauthorized
	}
	if err := checkAccountUsable(account); err != nil {
		return nil, nil, err
	}

	return claims, account, nil
}

// InvalidateSession deactivates the registry record and blocklists the
// session ID so a still-valid token bearing it dies immediately.
func (s *AuthService) InvalidateSession(sessionID string) error {
	if err := s.sessions.DeactivateSession(sessionID); err != nil {
		return err
	}
	if s.cache != nil {
		ctx := context.Background()
		s.cache.Del(ctx, sessionKeyPrefix+sessionID)
	}
	return s.blocklistSession(sessionID, blocklistTTL)
}

// InvalidateAllAccountSessions revokes every session an account holds, for
// example on administrative suspension.
func (s *AuthService) InvalidateAllAccountSessions(accountID int64) error {
	history, err := s.sessions.GetAccountSessionHistory(accountID, 50)
	if err == nil {
		for _, sess := range history {
			if sess.IsActive {
				s.blocklistSession(sess.SessionID, blocklistTTL)
				if s.cache != nil {
					s.cache.Del(context.Background(), sessionKeyPrefix+sess.SessionID)
				}
			}
		}
	}
	return s.sessions.DeactivateAllAccountSessions(accountID)
}

func (s *AuthService) UpdateSessionActivity(sessionID string) error {
	return s.sessions.UpdateSessionActivity(sessionID)
}

func (s *AuthService) SessionHistory(accountID int64, limit int) ([]domain.AccountSession, error) {
	return s.sessions.GetAccountSessionHistory(accountID, limit)
}

// VerifyAccountUsable reports whether an account may hold sessions. Login
// flows that skip password verification (OAuth) still run this check.
func (s *AuthService) VerifyAccountUsable(account *domain.Account) error {
	return checkAccountUsable(account)
}

func checkAccountUsable(account *domain.Account) error {
	switch account.Status {
	case domain.AccountActive:
	case domain.AccountSuspended, domain.AccountBanned:
		return domain.ErrAccountSuspended
	default:
		return domain.ErrAccountSuspended
	}
	if account.Expired(time.Now()) {
		return domain.ErrAccountExpired
	}
	return nil
}

func (s *AuthService) getSession(sessionID string) (*domain.AccountSession, error) {
	if s.cache != nil {
		session, err := s.getSessionFromCache(sessionID)
		if err == nil && session != nil {
			return session, nil
		}
	}
	session, err := s.sessions.GetSessionByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session != nil && s.cache != nil {
		if err := s.setSessionInCache(session); err != nil {
			log.Printf("[SESSION] Warning: Failed to populate cache: %v", err)
		}
	}
	return session, nil
}

func (s *AuthService) setSessionInCache(session *domain.AccountSession) error {
	ctx := context.Background()
	key := sessionKeyPrefix + session.SessionID
	sessionData, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, key, sessionData, s.tokenTTL)
}

func (s *AuthService) getSessionFromCache(sessionID string) (*domain.AccountSession, error) {
	ctx := context.Background()
	data, err := s.cache.Get(ctx, sessionKeyPrefix+sessionID)
	if err != nil {
		return nil, err
	}
	var session domain.AccountSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *AuthService) blocklistSession(sessionID string, ttl time.Duration) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Set(context.Background(), blockedSessionKeyPrefix+sessionID, "1", ttl)
}

func (s *AuthService) isSessionBlocked(sessionID string) bool {
	if s.cache == nil {
		return false
	}
	val, err := s.cache.Get(context.Background(), blockedSessionKeyPrefix+sessionID)
	return err == nil && val != ""
}
