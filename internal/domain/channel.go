package domain

import "time"

// Channel is a media source the panel can relay. Channel administration is
// handled elsewhere; this subsystem only reads id, upstream URL and the
// active flag.
type Channel struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	UpstreamURL string    `json:"-"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}
