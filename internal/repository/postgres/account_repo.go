package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vistream/panel/internal/domain"
)

type AccountRepo struct {
	DB *sql.DB
}

func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{DB: db}
}

const accountSelectFields = `id, username, COALESCE(email, '') as email, password_hash, role, status, max_connections, expires_at, last_login_at, created_at`

// scanAccount is a helper that scans a row into an Account struct
func scanAccount(row interface{ Scan(dest ...any) error }) (*domain.Account, error) {
	var account domain.Account
	var expiresAt, lastLoginAt sql.NullTime
	err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&account.Role,
		&account.Status,
		&account.MaxConnections,
		&expiresAt,
		&lastLoginAt,
		&account.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		account.ExpiresAt = &expiresAt.Time
	}
	if lastLoginAt.Valid {
		account.LastLoginAt = &lastLoginAt.Time
	}
	return &account, nil
}

// GetByIdentifier retrieves an account by username OR email
func (r *AccountRepo) GetByIdentifier(identifier string) (*domain.Account, error) {
	query := `SELECT ` + accountSelectFields + ` FROM accounts WHERE username = $1 OR email = $1;`
	account, err := scanAccount(r.DB.QueryRow(query, identifier))
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %v", err)
	}
	return account, nil
}

// GetByID retrieves an account by ID
func (r *AccountRepo) GetByID(accountID int64) (*domain.Account, error) {
	query := `SELECT ` + accountSelectFields + ` FROM accounts WHERE id = $1;`
	account, err := scanAccount(r.DB.QueryRow(query, accountID))
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %v", err)
	}
	return account, nil
}

// GetByEmail retrieves an account by email
func (r *AccountRepo) GetByEmail(email string) (*domain.Account, error) {
	query := `SELECT ` + accountSelectFields + ` FROM accounts WHERE email = $1;`
	account, err := scanAccount(r.DB.QueryRow(query, email))
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %v", err)
	}
	return account, nil
}

// LinkGoogleID attaches a Google ID to the account with the given email
func (r *AccountRepo) LinkGoogleID(email, googleID string) error {
	query := `UPDATE accounts SET google_id = $2 WHERE email = $1;`
	_, err := r.DB.Exec(query, email, googleID)
	if err != nil {
		return fmt.Errorf("failed to link google id: %v", err)
	}
	return nil
}

// UpdateLastLogin stamps the account's last successful authentication
func (r *AccountRepo) UpdateLastLogin(accountID int64, at time.Time) error {
	query := `UPDATE accounts SET last_login_at = $2 WHERE id = $1;`
	_, err := r.DB.Exec(query, accountID, at)
	if err != nil {
		return fmt.Errorf("failed to update last login: %v", err)
	}
	return nil
}
