package domain

import "time"

// StreamSession is one instance of an account watching one channel, from
// admission to close. Rows are the audit trail and the source of truth for
// concurrency accounting: a session is active exactly while EndedAt is nil.
type StreamSession struct {
	ID              string     `json:"id"`
	AccountID       int64      `json:"account_id"`
	ChannelID       int64      `json:"channel_id"`
	LicenseKey      string     `json:"license_key,omitempty"`
	ClientIP        string     `json:"client_ip"`
	UserAgent       string     `json:"user_agent"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int64      `json:"duration_seconds"`
	BytesSent       int64      `json:"bytes_sent"`
}

func (s *StreamSession) Active() bool {
	return s.EndedAt == nil
}

// UsageSummary aggregates an account's closed and active stream sessions
// over a time window.
type UsageSummary struct {
	Streams          int   `json:"streams"`
	TotalDuration    int64 `json:"total_duration_seconds"`
	DistinctChannels int   `json:"distinct_channels"`
	TotalBytes       int64 `json:"total_bytes"`
}

const (
	EventStreamStarted = "stream_started"
	EventStreamStopped = "stream_stopped"
)

// StreamEvent is pushed to the live activity feed when a stream session is
// admitted or closed.
type StreamEvent struct {
	Type            string    `json:"type"`
	LogID           string    `json:"log_id"`
	AccountID       int64     `json:"account_id"`
	ChannelID       int64     `json:"channel_id"`
	At              time.Time `json:"at"`
	DurationSeconds int64     `json:"duration_seconds,omitempty"`
	BytesSent       int64     `json:"bytes_sent,omitempty"`
}
