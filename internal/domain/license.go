package domain

import "time"

type LicenseStatus string

const (
	LicenseActive  LicenseStatus = "active"
	LicenseRevoked LicenseStatus = "revoked"
)

// License is a quota dimension independent of the account: a shared key with
// a durable connection counter. The counter is mutated only through atomic
// conditional updates so it stays within [0, max_connections] under
// concurrent use and survives process restarts.
type License struct {
	ID                 int64         `json:"id"`
	Key                string        `json:"key"`
	Status             LicenseStatus `json:"status"`
	ExpiresAt          *time.Time    `json:"expires_at,omitempty"`
	MaxConnections     int           `json:"max_connections"`
	CurrentConnections int           `json:"current_connections"`
	CreatedAt          time.Time     `json:"created_at"`
}

func (l *License) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}
