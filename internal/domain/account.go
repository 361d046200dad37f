package domain

import "time"

type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleReseller      Role = "reseller"
	RoleSubscriber    Role = "subscriber"
)

type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
	AccountBanned    AccountStatus = "banned"
)

type Account struct {
	ID             int64         `json:"id"`
	Username       string        `json:"username"`
	Email          string        `json:"email"`
	PasswordHash   string        `json:"-"`
	Role           Role          `json:"role"`
	Status         AccountStatus `json:"status"`
	MaxConnections int           `json:"max_connections"`
	ExpiresAt      *time.Time    `json:"expires_at,omitempty"`
	LastLoginAt    *time.Time    `json:"last_login_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Expired reports whether the account's expiry timestamp has passed.
// Accounts without an expiry never expire.
func (a *Account) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdministrator
}
