package stream

import (
	"context"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vistream/panel/internal/domain"
	"github.com/vistream/panel/internal/service/quota"
)

type ChannelStore interface {
	GetByID(channelID int64) (*domain.Channel, error)
}

// Ledger is the slice of the usage ledger the manager needs. Close is
// exactly-once on the store side: it reports whether this call performed
// the transition.
type Ledger interface {
	Create(s *domain.StreamSession) error
	GetByID(logID string) (*domain.StreamSession, error)
	Close(logID string, endedAt time.Time, bytesSent int64) (bool, *domain.StreamSession, error)
}

// Publisher receives stream lifecycle events for the live activity feed.
type Publisher interface {
	Publish(event domain.StreamEvent)
}

// ClientMeta carries request origin data into the ledger row.
type ClientMeta struct {
	IP         string
	UserAgent  string
	LicenseKey string
}

// relayState tracks one admitted stream in-process. bytes is updated
// atomically by the relay loop so Stop can close the row with an accurate
// count without waiting for the relay goroutine.
type relayState struct {
	admittedAt time.Time
	cancel     context.CancelFunc // nil until the relay opens
	bytes      int64              // atomic
}

// Manager owns the lifecycle of relayed streams: admission, the byte relay
// between upstream and client, termination and the ledger record. All
// termination paths (explicit stop, client disconnect, upstream EOF or
// error) converge on finish, which is exactly-once per stream.
type Manager struct {
	channels ChannelStore
	ledger   Ledger
	guard    *quota.Guard
	events   Publisher // Optional, can be nil

	client      *http.Client
	readTimeout time.Duration

	mu     sync.Mutex
	active map[string]*relayState
}

func NewManager(channels ChannelStore, ledger Ledger, guard *quota.Guard, events Publisher, connectTimeout, readTimeout time.Duration) *Manager {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: connectTimeout,
		}).DialContext,
		ResponseHeaderTimeout: connectTimeout,
		IdleConnTimeout:       90 * time.Second,
	}
	return &Manager{
		channels: channels,
		ledger:   ledger,
		guard:    guard,
		events:   events,
		client: &http.Client{
			// No overall timeout: relays legitimately run for hours. The
			// dial and header timeouts above bound connection setup, and the
			// idle watchdog in Relay bounds a stalled body.
			Transport: transport,
		},
		readTimeout: readTimeout,
		active:      make(map[string]*relayState),
	}
}

// Start admits a new stream for the account on the channel and appends the
// ledger row. Admission is synchronous and happens before any upstream
// connection: a rejected start never touches the upstream. On success the
// returned session's ID is the log ID the client passes to the proxy and
// stop endpoints.
func (m *Manager) Start(account *domain.Account, channelID int64, meta ClientMeta) (*domain.StreamSession, error) {
	channel, err := m.channels.GetByID(channelID)
	if err != nil {
		return nil, err
	}
	if channel == nil || !channel.IsActive {
		return nil, domain.ErrChannelNotFound
	}

	// The license slot is claimed before account admission; if account
	// admission then fails the slot is returned immediately.
	if meta.LicenseKey != "" {
		if err := m.guard.AcquireLicense(meta.LicenseKey); err != nil {
			return nil, err
		}
	}

	session := &domain.StreamSession{
		ID:         uuid.NewString(),
		AccountID:  account.ID,
		ChannelID:  channel.ID,
		LicenseKey: meta.LicenseKey,
		ClientIP:   meta.IP,
		UserAgent:  meta.UserAgent,
		StartedAt:  time.Now(),
	}

	err = m.guard.AdmitAccount(account, func() error {
		return m.ledger.Create(session)
	})
	if err != nil {
		if meta.LicenseKey != "" {
			if relErr := m.guard.ReleaseLicense(meta.LicenseKey); relErr != nil {
				log.Printf("[STREAM] Failed to release license slot for %s: %v", meta.LicenseKey, relErr)
			}
		}
		return nil, err
	}

	m.mu.Lock()
	m.active[session.ID] = &relayState{admittedAt: session.StartedAt}
	m.mu.Unlock()

	m.publish(domain.StreamEvent{
		Type:      domain.EventStreamStarted,
		LogID:     session.ID,
		AccountID: session.AccountID,
		ChannelID: session.ChannelID,
		At:        session.StartedAt,
	})

	log.Printf("[STREAM] Admitted stream %s (account %d, channel %d)", session.ID, account.ID, channel.ID)
	return session, nil
}

// Stop terminates a stream on behalf of its owning account. Stopping an
// already-closed session is a success no-op. A live relay is cancelled,
// which closes the upstream connection promptly; the ledger row is closed
// here with the bytes counted so far, and the relay's own close attempt
// becomes a no-op.
func (m *Manager) Stop(logID string, account *domain.Account) error {
	row, err := m.ledger.GetByID(logID)
	if err != nil {
		return err
	}
	if row == nil {
		return domain.ErrStreamNotFound
	}
	if row.AccountID != account.ID && !account.IsAdmin() {
		return domain.ErrUnauthorized
	}
	if !row.Active() {
		return nil
	}

	var bytes int64
	m.mu.Lock()
	if st, ok := m.active[logID]; ok {
		bytes = atomic.LoadInt64(&st.bytes)
		if st.cancel != nil {
			st.cancel()
		}
	}
	m.mu.Unlock()

	m.finish(logID, bytes)
	return nil
}

// Tracked reports whether the manager is currently relaying the stream.
// The cleanup worker uses it to distinguish live relays from rows left
// dangling by a crash or a client that never fetched the proxy URL.
func (m *Manager) Tracked(logID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.active[logID]
	return ok && st.cancel != nil
}

// ForceClose closes a dangling ledger row that has no live relay.
func (m *Manager) ForceClose(logID string) {
	m.finish(logID, 0)
}

// finish performs the Closed transition. The ledger decides exactly-once:
// only the call that actually closed the row releases the license slot and
// publishes the stop event, so concurrent terminations (stop racing a
// disconnect, say) can never double-decrement.
func (m *Manager) finish(logID string, bytesSent int64) {
	closed, row, err := m.ledger.Close(logID, time.Now(), bytesSent)

	// Every caller reaches finish with the relay dead or dying, so the
	// entry leaves the in-process registry even when the close write
	// failed. The row then has no live relay and stays active in the
	// ledger, which is exactly what the cleanup sweep retries.
	m.mu.Lock()
	delete(m.active, logID)
	m.mu.Unlock()

	if err != nil {
		log.Printf("[STREAM] Failed to close stream %s: %v", logID, err)
		return
	}

	if !closed {
		return
	}

	if row.LicenseKey != "" {
		if err := m.guard.ReleaseLicense(row.LicenseKey); err != nil {
			log.Printf("[STREAM] Failed to release license slot for %s: %v", row.LicenseKey, err)
		}
	}

	m.publish(domain.StreamEvent{
		Type:            domain.EventStreamStopped,
		LogID:           row.ID,
		AccountID:       row.AccountID,
		ChannelID:       row.ChannelID,
		At:              time.Now(),
		DurationSeconds: row.DurationSeconds,
		BytesSent:       row.BytesSent,
	})

	log.Printf("[STREAM] Closed stream %s (%d bytes, %ds)", row.ID, row.BytesSent, row.DurationSeconds)
}

func (m *Manager) publish(event domain.StreamEvent) {
	if m.events != nil {
		m.events.Publish(event)
	}
}
