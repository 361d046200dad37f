package domain

import "time"

// AccountSession is the server-side registry record behind a bearer token.
// A token authenticates only while its record is active and unexpired, so
// logout and admin revocation take effect immediately regardless of the
// token's own embedded expiry.
type AccountSession struct {
	ID           int64     `json:"id"`
	AccountID    int64     `json:"account_id"`
	SessionID    string    `json:"session_id"`
	DeviceInfo   string    `json:"device_info"`
	IPAddress    string    `json:"ip_address"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastActivity time.Time `json:"last_activity"`
	IsActive     bool      `json:"is_active"`
}
