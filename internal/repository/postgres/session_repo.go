package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vistream/panel/internal/domain"
)

type SessionRepo struct {
	DB *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{DB: db}
}

// CreateSession creates a new session in the database
func (r *SessionRepo) CreateSession(accountID int64, sessionID, deviceInfo, ipAddress string, expiresAt time.Time) error {
	query := `
	INSERT INTO account_sessions (account_id, session_id, device_info, ip_address, expires_at)
	VALUES ($1, $2, $3, $4, $5);
	`
	_, err := r.DB.Exec(query, accountID, sessionID, deviceInfo, ipAddress, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %v", err)
	}
	return nil
}

// GetSessionByID retrieves a session by session_id
func (r *SessionRepo) GetSessionByID(sessionID string) (*domain.AccountSession, error) {
	query := `
	SELECT id, account_id, session_id, device_info, ip_address, created_at, expires_at, last_activity, is_active
	FROM account_sessions
	WHERE session_id = $1;
	`
	var session domain.AccountSession
	err := r.DB.QueryRow(query, sessionID).Scan(
		&session.ID,
		&session.AccountID,
		&session.SessionID,
		&session.DeviceInfo,
		&session.IPAddress,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.LastActivity,
		&session.IsActive,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %v", err)
	}
	return &session, nil
}

// DeactivateSession marks a specific session as inactive
func (r *SessionRepo) DeactivateSession(sessionID string) error {
	query := `
	UPDATE account_sessions
	SET is_active = FALSE
	WHERE session_id = $1;
	`
	_, err := r.DB.Exec(query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to deactivate session: %v", err)
	}
	return nil
}

// DeactivateAllAccountSessions marks all sessions for an account as inactive
func (r *SessionRepo) DeactivateAllAccountSessions(accountID int64) error {
	query := `
	UPDATE account_sessions
	SET is_active = FALSE
	WHERE account_id = $1 AND is_active = TRUE;
	`
	_, err := r.DB.Exec(query, accountID)
	if err != nil {
		return fmt.Errorf("failed to deactivate account sessions: %v", err)
	}
	return nil
}

// UpdateSessionActivity updates the last_activity timestamp. This is
// bookkeeping only: it never extends expires_at.
func (r *SessionRepo) UpdateSessionActivity(sessionID string) error {
	query := `
	UPDATE account_sessions
	SET last_activity = CURRENT_TIMESTAMP
	WHERE session_id = $1;
	`
	_, err := r.DB.Exec(query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session activity: %v", err)
	}
	return nil
}

// DeactivateExpiredSessions marks sessions past their absolute expiry as
// inactive and returns how many were swept
func (r *SessionRepo) DeactivateExpiredSessions() (int64, error) {
	query := `
	UPDATE account_sessions
	SET is_active = FALSE
	WHERE is_active = TRUE AND expires_at < NOW();
	`
	result, err := r.DB.Exec(query)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired sessions: %v", err)
	}
	return result.RowsAffected()
}

// CleanupOldSessions deletes inactive sessions older than specified days
func (r *SessionRepo) CleanupOldSessions(olderThanDays int) (int64, error) {
	query := `
	DELETE FROM account_sessions
	WHERE is_active = FALSE
	AND created_at < NOW() - INTERVAL '1 day' * $1;
	`
	result, err := r.DB.Exec(query, olderThanDays)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old sessions: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %v", err)
	}

	return rowsAffected, nil
}

// GetAccountSessionHistory retrieves recent login sessions for an account
func (r *SessionRepo) GetAccountSessionHistory(accountID int64, limit int) ([]domain.AccountSession, error) {
	query := `
	SELECT id, account_id, session_id, device_info, ip_address, created_at, expires_at, last_activity, is_active
	FROM account_sessions
	WHERE account_id = $1
	ORDER BY created_at DESC
	LIMIT $2;
	`
	rows, err := r.DB.Query(query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query session history: %v", err)
	}
	defer rows.Close()

	var sessions []domain.AccountSession
	for rows.Next() {
		var s domain.AccountSession
		if err := rows.Scan(
			&s.ID,
			&s.AccountID,
			&s.SessionID,
			&s.DeviceInfo,
			&s.IPAddress,
			&s.CreatedAt,
			&s.ExpiresAt,
			&s.LastActivity,
			&s.IsActive,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %v", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %v", err)
	}

	return sessions, nil
}
