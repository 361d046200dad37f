package http

import (
	"errors"
	"net/http"

	"github.com/vistream/panel/internal/domain"
)

// errorStatus maps the domain error taxonomy to HTTP statuses and
// user-facing messages.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusTooManyRequests, "Connection limit reached"
	case errors.Is(err, domain.ErrLicenseInvalid):
		return http.StatusForbidden, "License invalid or expired"
	case errors.Is(err, domain.ErrChannelNotFound):
		return http.StatusNotFound, "Channel not found"
	case errors.Is(err, domain.ErrStreamNotFound):
		return http.StatusNotFound, "Stream session not found"
	case errors.Is(err, domain.ErrUpstreamUnavailable), errors.Is(err, domain.ErrUpstreamInterrupted):
		return http.StatusBadGateway, "Upstream source unavailable"
	case errors.Is(err, domain.ErrAccountExpired):
		return http.StatusUnauthorized, "Account expired"
	case errors.Is(err, domain.ErrAccountSuspended):
		return http.StatusUnauthorized, "Account suspended"
	case errors.Is(err, domain.ErrSessionRevoked), errors.Is(err, domain.ErrSessionExpired), errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
