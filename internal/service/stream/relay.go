package stream

import (
	"context"
	"io"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/vistream/panel/internal/domain"
)

const relayBufferSize = 32 * 1024

// Headers mirrored from the upstream response so partial-content semantics
// survive the relay.
var passthroughHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Content-Range",
	"Accept-Ranges",
}

// Relay opens the upstream for an admitted stream and pumps bytes to the
// client until either side terminates. Errors are only returned while the
// response is still unwritten; once bytes are flowing a failure closes the
// connection and the ledger row but surfaces nothing new to the client.
//
// The two termination directions meet here: the request context covers the
// client side (disconnect cancels the upstream read), and the upstream body
// covers the source side (EOF or error ends the copy). Both fall through to
// finish, as does an explicit Stop via context cancellation.
func (m *Manager) Relay(w http.ResponseWriter, r *http.Request, logID string, account *domain.Account) error {
	row, err := m.ledger.GetByID(logID)
	if err != nil {
		return err
	}
	if row == nil || !row.Active() {
		return domain.ErrStreamNotFound
	}
	if row.AccountID != account.ID && !account.IsAdmin() {
		return domain.ErrUnauthorized
	}

	channel, err := m.channels.GetByID(row.ChannelID)
	if err != nil {
		return err
	}
	if channel == nil || !channel.IsActive {
		m.finish(logID, 0)
		return domain.ErrChannelNotFound
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	m.mu.Lock()
	st, ok := m.active[logID]
	if !ok {
		// Row survived a restart; re-track it so Stop can cancel the relay.
		st = &relayState{admittedAt: row.StartedAt}
		m.active[logID] = st
	}
	if st.cancel != nil {
		m.mu.Unlock()
		return domain.ErrQuotaExceeded
	}
	st.cancel = cancel
	m.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, channel.UpstreamURL, nil)
	if err != nil {
		m.finish(logID, 0)
		return domain.ErrUpstreamUnavailable
	}
	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	if ua := r.Header.Get("User-Agent"); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		// Connect failure: the slot admitted at Start is released by
		// closing the row with zero duration.
		m.finish(logID, 0)
		return domain.ErrUpstreamUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		m.finish(logID, 0)
		return domain.ErrUpstreamUnavailable
	}

	for _, h := range passthroughHeaders {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	m.pump(ctx, cancel, w, resp.Body, st, logID)

	m.finish(logID, atomic.LoadInt64(&st.bytes))
	return nil
}

// pump copies upstream bytes to the client with a fixed buffer, flushing as
// it goes. A watchdog cancels the upstream read if no bytes arrive within
// the read timeout, so a stalled source cannot hold a quota slot forever.
func (m *Manager) pump(ctx context.Context, cancel context.CancelFunc, w http.ResponseWriter, body io.Reader, st *relayState, logID string) {
	var lastRead atomic.Int64
	lastRead.Store(time.Now().UnixNano())

	watchdogDone := make(chan struct{})
	defer close(watchdogDone)
	if m.readTimeout > 0 {
		go func() {
			ticker := time.NewTicker(m.readTimeout / 2)
			defer ticker.Stop()
			for {
				select {
				case <-watchdogDone:
					return
				case <-ticker.C:
					idle := time.Since(time.Unix(0, lastRead.Load()))
					if idle > m.readTimeout {
						log.Printf("[STREAM] Upstream idle for %s on stream %s, cancelling", idle.Round(time.Second), logID)
						cancel()
						return
					}
				}
			}
		}()
	}

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, relayBufferSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			lastRead.Store(time.Now().UnixNano())
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				// Client went away; cancel the upstream read too.
				cancel()
				return
			}
			atomic.AddInt64(&st.bytes, int64(n))
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if readErr != io.EOF && ctx.Err() == nil {
				// Mid-relay upstream failure. Bytes are already in flight,
				// so this is logged and the session closed with its partial
				// duration rather than surfaced as a client error.
				log.Printf("[STREAM] Upstream interrupted on stream %s: %v", logID, readErr)
			}
			return
		}
	}
}
