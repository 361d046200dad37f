package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vistream/panel/internal/domain"
)

// StreamRepo is the usage ledger. It is the single source of truth for
// "is this account at its limit": a row with NULL ended_at is an active
// stream, and the per-account quota is derived by counting those rows
// rather than from an in-memory counter that could drift after a crash.
type StreamRepo struct {
	DB *sql.DB
}

func NewStreamRepo(db *sql.DB) *StreamRepo {
	return &StreamRepo{DB: db}
}

const streamSelectFields = `id, account_id, channel_id, COALESCE(license_key, '') as license_key, client_ip, user_agent, started_at, ended_at, duration_seconds, bytes_sent`

func scanStream(row interface{ Scan(dest ...any) error }) (*domain.StreamSession, error) {
	var s domain.StreamSession
	var endedAt sql.NullTime
	err := row.Scan(
		&s.ID,
		&s.AccountID,
		&s.ChannelID,
		&s.LicenseKey,
		&s.ClientIP,
		&s.UserAgent,
		&s.StartedAt,
		&endedAt,
		&s.DurationSeconds,
		&s.BytesSent,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		s.EndedAt = &endedAt.Time
	}
	return &s, nil
}

// Create inserts a new stream session row at admission time. Admission must
// not proceed without this row: a stream without a ledger entry would never
// count against the quota.
func (r *StreamRepo) Create(s *domain.StreamSession) error {
	var licenseKey interface{}
	if s.LicenseKey != "" {
		licenseKey = s.LicenseKey
	}
	query := `
	INSERT INTO stream_sessions (id, account_id, channel_id, license_key, client_ip, user_agent, started_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err := r.DB.Exec(query, s.ID, s.AccountID, s.ChannelID, licenseKey, s.ClientIP, s.UserAgent, s.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create stream session: %v", err)
	}
	return nil
}

// GetByID retrieves a stream session by its log ID
func (r *StreamRepo) GetByID(logID string) (*domain.StreamSession, error) {
	query := `SELECT ` + streamSelectFields + ` FROM stream_sessions WHERE id = $1;`
	s, err := scanStream(r.DB.QueryRow(query, logID))
	if err != nil {
		return nil, fmt.Errorf("failed to get stream session: %v", err)
	}
	return s, nil
}

// Close sets the end time, duration and byte count on an active row. The
// WHERE ended_at IS NULL guard makes the transition exactly-once: the first
// caller gets closed=true and the closed row back, every later caller gets
// closed=false. License release and accounting key off that flag so neither
// can happen twice.
func (r *StreamRepo) Close(logID string, endedAt time.Time, bytesSent int64) (bool, *domain.StreamSession, error) {
	query := `
	UPDATE stream_sessions
	SET ended_at = $2,
	    duration_seconds = GREATEST(CAST(EXTRACT(EPOCH FROM ($2 - started_at)) AS BIGINT), 0),
	    bytes_sent = $3
	WHERE id = $1 AND ended_at IS NULL
	RETURNING ` + streamSelectFields + `;
	`
	s, err := scanStream(r.DB.QueryRow(query, logID, endedAt, bytesSent))
	if err != nil {
		return false, nil, fmt.Errorf("failed to close stream session: %v", err)
	}
	if s == nil {
		return false, nil, nil
	}
	return true, s, nil
}

// CountActiveByAccount returns the number of active streams for an account.
// This is the quota read: it always reflects the latest committed closes.
func (r *StreamRepo) CountActiveByAccount(accountID int64) (int, error) {
	query := `SELECT COUNT(*) FROM stream_sessions WHERE account_id = $1 AND ended_at IS NULL;`
	var count int
	if err := r.DB.QueryRow(query, accountID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active streams: %v", err)
	}
	return count, nil
}

// ListActiveByAccount retrieves the currently active streams for an account
func (r *StreamRepo) ListActiveByAccount(accountID int64) ([]domain.StreamSession, error) {
	query := `SELECT ` + streamSelectFields + ` FROM stream_sessions WHERE account_id = $1 AND ended_at IS NULL ORDER BY started_at;`
	return r.queryStreams(query, accountID)
}

// ListStaleActive retrieves active rows that started before the cutoff,
// regardless of account. The cleanup worker uses this to find sessions left
// dangling by a crash or an undetected disconnect.
func (r *StreamRepo) ListStaleActive(startedBefore time.Time) ([]domain.StreamSession, error) {
	query := `SELECT ` + streamSelectFields + ` FROM stream_sessions WHERE ended_at IS NULL AND started_at < $1;`
	return r.queryStreams(query, startedBefore)
}

// History retrieves an account's most recent stream sessions
func (r *StreamRepo) History(accountID int64, limit int) ([]domain.StreamSession, error) {
	query := `SELECT ` + streamSelectFields + ` FROM stream_sessions WHERE account_id = $1 ORDER BY started_at DESC LIMIT $2;`
	return r.queryStreams(query, accountID, limit)
}

// Summary aggregates an account's usage since the given time
func (r *StreamRepo) Summary(accountID int64, since time.Time) (*domain.UsageSummary, error) {
	query := `
	SELECT COUNT(*),
	       COALESCE(SUM(duration_seconds), 0),
	       COUNT(DISTINCT channel_id),
	       COALESCE(SUM(bytes_sent), 0)
	FROM stream_sessions
	WHERE account_id = $1 AND started_at >= $2;
	`
	var summary domain.UsageSummary
	err := r.DB.QueryRow(query, accountID, since).Scan(
		&summary.Streams,
		&summary.TotalDuration,
		&summary.DistinctChannels,
		&summary.TotalBytes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage: %v", err)
	}
	return &summary, nil
}

func (r *StreamRepo) queryStreams(query string, args ...any) ([]domain.StreamSession, error) {
	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stream sessions: %v", err)
	}
	defer rows.Close()

	sessions := make([]domain.StreamSession, 0)
	for rows.Next() {
		s, err := scanStream(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stream row: %v", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stream rows: %v", err)
	}

	return sessions, nil
}
