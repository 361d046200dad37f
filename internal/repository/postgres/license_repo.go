package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vistream/panel/internal/domain"
)

type LicenseRepo struct {
	DB *sql.DB
}

func NewLicenseRepo(db *sql.DB) *LicenseRepo {
	return &LicenseRepo{DB: db}
}

// GetByKey retrieves a license by its key
func (r *LicenseRepo) GetByKey(key string) (*domain.License, error) {
	query := `
	SELECT id, license_key, status, expires_at, max_connections, current_connections, created_at
	FROM licenses
	WHERE license_key = $1;
	`
	var lic domain.License
	var expiresAt sql.NullTime
	err := r.DB.QueryRow(query, key).Scan(
		&lic.ID,
		&lic.Key,
		&lic.Status,
		&expiresAt,
		&lic.MaxConnections,
		&lic.CurrentConnections,
		&lic.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get license: %v", err)
	}
	if expiresAt.Valid {
		lic.ExpiresAt = &expiresAt.Time
	}
	return &lic, nil
}

// Acquire claims one connection slot on the license. The increment and the
// cap check happen in a single conditional UPDATE so concurrent claims from
// any process can never push the counter past max_connections. Returns
// domain.ErrLicenseInvalid when the key is unknown, revoked or expired, and
// domain.ErrQuotaExceeded when all slots are in use.
func (r *LicenseRepo) Acquire(key string) error {
	query := `
	UPDATE licenses
	SET current_connections = current_connections + 1
	WHERE license_key = $1
	  AND status = 'active'
	  AND (expires_at IS NULL OR expires_at > NOW())
	  AND current_connections < max_connections;
	`
	result, err := r.DB.Exec(query, key)
	if err != nil {
		return fmt.Errorf("failed to acquire license slot: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %v", err)
	}
	if affected == 1 {
		return nil
	}

	// Nothing was updated: classify the rejection.
	lic, err := r.GetByKey(key)
	if err != nil {
		return err
	}
	if lic == nil || lic.Status != domain.LicenseActive || lic.Expired(time.Now()) {
		return domain.ErrLicenseInvalid
	}
	return domain.ErrQuotaExceeded
}

// Release returns one connection slot. The decrement is bounded at zero so
// a spurious release (for example after an administrative counter reset)
// cannot drive the counter negative.
func (r *LicenseRepo) Release(key string) error {
	query := `
	UPDATE licenses
	SET current_connections = GREATEST(current_connections - 1, 0)
	WHERE license_key = $1;
	`
	_, err := r.DB.Exec(query, key)
	if err != nil {
		return fmt.Errorf("failed to release license slot: %v", err)
	}
	return nil
}
