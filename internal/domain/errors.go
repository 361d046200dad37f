package domain

import "errors"

// Error taxonomy for the access-control and stream-session paths. Transport
// maps these to HTTP statuses; services return them wrapped or bare and
// callers test with errors.Is.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrAccountExpired      = errors.New("account expired")
	ErrAccountSuspended    = errors.New("account suspended")
	ErrSessionRevoked      = errors.New("session revoked")
	ErrSessionExpired      = errors.New("session expired")
	ErrQuotaExceeded       = errors.New("connection quota exceeded")
	ErrLicenseInvalid      = errors.New("license invalid")
	ErrChannelNotFound     = errors.New("channel not found")
	ErrStreamNotFound      = errors.New("stream session not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamInterrupted = errors.New("upstream interrupted")
)
