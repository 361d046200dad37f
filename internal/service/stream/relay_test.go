package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vistream/panel/internal/domain"
	"github.com/vistream/panel/internal/service/quota"
)

// newRelayFixture builds a manager whose single channel points at the given
// upstream URL.
func newRelayFixture(upstreamURL string) *fixture {
	return newFixture(&domain.Channel{ID: 1, Name: "Live", UpstreamURL: upstreamURL, IsActive: true})
}

func startSession(t *testing.T, fx *fixture, acct *domain.Account, meta ClientMeta) *domain.StreamSession {
	t.Helper()
	sess, err := fx.manager.Start(acct, 1, meta)
	require.NoError(t, err)
	return sess
}

func TestRelay_CopiesBytesAndHeaders(t *testing.T) {
	t.Parallel()

	payload := []byte("ts-packet-payload-0123456789")
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp2t")
		w.Header().Set("Accept-Ranges", "bytes")
		w.Write(payload)
	}))
	defer upstream.Close()

	fx := newRelayFixture(upstream.URL)
	acct := viewer(1, 2)
	sess := startSession(t, fx, acct, ClientMeta{LicenseKey: "KEY-1"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	err := fx.manager.Relay(rec, req, sess.ID, acct)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payload, rec.Body.Bytes())
	assert.Equal(t, "video/mp2t", rec.Header().Get("Content-Type"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))

	row, err := fx.ledger.GetByID(sess.ID)
	require.NoError(t, err)
	assert.False(t, row.Active(), "relay end must close the ledger row")
	assert.Equal(t, int64(len(payload)), row.BytesSent)
	assert.GreaterOrEqual(t, row.DurationSeconds, int64(0))

	_, released := fx.licenses.counts()
	assert.Equal(t, 1, released)
}

func TestRelay_RangePassthrough(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		if rangeHeader == "" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Range", "bytes 0-3/100")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("abcd"))
	}))
	defer upstream.Close()

	fx := newRelayFixture(upstream.URL)
	acct := viewer(1, 2)
	sess := startSession(t, fx, acct, ClientMeta{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Range", "bytes=0-3")

	require.NoError(t, fx.manager.Relay(rec, req, sess.ID, acct))
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 0-3/100", rec.Header().Get("Content-Range"))
	assert.Equal(t, "abcd", rec.Body.String())
}

func TestRelay_UpstreamErrorStatus(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	fx := newRelayFixture(upstream.URL)
	acct := viewer(1, 2)
	sess := startSession(t, fx, acct, ClientMeta{LicenseKey: "KEY-1"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	err := fx.manager.Relay(rec, req, sess.ID, acct)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)

	row, _ := fx.ledger.GetByID(sess.ID)
	assert.False(t, row.Active(), "failed connect must close the ledger row")
	_, released := fx.licenses.counts()
	assert.Equal(t, 1, released, "failed connect must return the license slot")
}

func TestRelay_UpstreamDown(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := upstream.URL
	upstream.Close()

	fx := newRelayFixture(url)
	acct := viewer(1, 2)
	sess := startSession(t, fx, acct, ClientMeta{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	err := fx.manager.Relay(rec, req, sess.ID, acct)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)

	row, _ := fx.ledger.GetByID(sess.ID)
	assert.False(t, row.Active())
}

func TestRelay_UnknownAndForeignStreams(t *testing.T) {
	t.Parallel()

	fx := newRelayFixture("http://upstream.invalid/live")
	owner := viewer(1, 2)
	other := viewer(2, 2)
	sess := startSession(t, fx, owner, ClientMeta{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	err := fx.manager.Relay(rec, req, "missing", owner)
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)

	err = fx.manager.Relay(rec, req, sess.ID, other)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRelay_ClosedSessionRejected(t *testing.T) {
	t.Parallel()

	fx := newRelayFixture("http://upstream.invalid/live")
	acct := viewer(1, 2)
	sess := startSession(t, fx, acct, ClientMeta{})
	require.NoError(t, fx.manager.Stop(sess.ID, acct))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	err := fx.manager.Relay(rec, req, sess.ID, acct)
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)
}

// clientWriter is a ResponseWriter that signals once the relay has written
// bytes to the client side, so a test can disconnect at a point where the
// relay is provably past connection setup.
type clientWriter struct {
	header http.Header
	wrote  chan struct{}
	once   sync.Once
}

func newClientWriter() *clientWriter {
	return &clientWriter{header: make(http.Header), wrote: make(chan struct{})}
}

func (w *clientWriter) Header() http.Header { return w.header }

func (w *clientWriter) WriteHeader(statusCode int) {}

func (w *clientWriter) Write(p []byte) (int, error) {
	w.once.Do(func() { close(w.wrote) })
	return len(p), nil
}

func (w *clientWriter) Flush() {}

// A client disconnect mid-relay must terminate the upstream read and close
// the session with the bytes relayed so far.
func TestRelay_ClientDisconnect(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; ; i++ {
			if _, err := fmt.Fprintf(w, "chunk-%d", i); err != nil {
				return
			}
			flusher.Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}))
	defer upstream.Close()

	fx := newRelayFixture(upstream.URL)
	acct := viewer(1, 2)
	sess := startSession(t, fx, acct, ClientMeta{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := newClientWriter()
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	var relayErr error
	go func() {
		defer wg.Done()
		relayErr = fx.manager.Relay(w, req, sess.ID, acct)
	}()

	// Disconnect only after bytes have reached the client writer, past any
	// race with upstream connection setup.
	select {
	case <-w.wrote:
	case <-time.After(5 * time.Second):
		t.Fatal("relay never delivered bytes to the client")
	}
	cancel()
	wg.Wait()

	assert.NoError(t, relayErr, "a disconnect after bytes flowed is not an error")

	row, err := fx.ledger.GetByID(sess.ID)
	require.NoError(t, err)
	assert.False(t, row.Active(), "disconnect must close the ledger row")
	assert.Greater(t, row.BytesSent, int64(0))
}

// Two relays on the same admitted session would double-send; the second one
// must be rejected while the first is live.
func TestRelay_SecondRelayRejected(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Write([]byte("chunk"))
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer upstream.Close()

	fx := newRelayFixture(upstream.URL)
	acct := viewer(1, 2)
	sess := startSession(t, fx, acct, ClientMeta{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		fx.manager.Relay(httptest.NewRecorder(), req, sess.ID, acct)
	}()

	require.Eventually(t, func() bool {
		return fx.manager.Tracked(sess.ID)
	}, 2*time.Second, 10*time.Millisecond, "first relay never became live")

	err := fx.manager.Relay(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), sess.ID, acct)
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)

	cancel()
	wg.Wait()
}

// Stop on a live relay cancels it promptly and the quota slot opens for the
// next start.
func TestStop_CancelsLiveRelay(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Write([]byte("chunk"))
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer upstream.Close()

	fx := newRelayFixture(upstream.URL)
	acct := viewer(1, 1)
	sess := startSession(t, fx, acct, ClientMeta{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		fx.manager.Relay(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), sess.ID, acct)
	}()

	require.Eventually(t, func() bool {
		return fx.manager.Tracked(sess.ID)
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, fx.manager.Stop(sess.ID, acct))

	row, err := fx.ledger.GetByID(sess.ID)
	require.NoError(t, err)
	assert.False(t, row.Active())

	// The slot is free immediately, before the relay goroutine unwinds.
	_, err = fx.manager.Start(acct, 1, ClientMeta{})
	assert.NoError(t, err)

	wg.Wait()

	stopped := fx.events.ofType(domain.EventStreamStopped)
	assert.Len(t, stopped, 1, "relay unwind after stop must not publish a second event")
}

// flakyLedger fails a fixed number of Close calls before delegating, the
// shape of a transient database failure at relay teardown.
type flakyLedger struct {
	*fakeLedger
	mu            sync.Mutex
	closeFailures int
}

func (f *flakyLedger) Close(logID string, endedAt time.Time, bytesSent int64) (bool, *domain.StreamSession, error) {
	f.mu.Lock()
	if f.closeFailures > 0 {
		f.closeFailures--
		f.mu.Unlock()
		return false, nil, errors.New("connection reset by peer")
	}
	f.mu.Unlock()
	return f.fakeLedger.Close(logID, endedAt, bytesSent)
}

// A close write that fails at relay exit must not leave the stream tracked:
// a tracked entry with no relay behind it would make the cleanup sweep skip
// the row forever and the quota slot would never come back.
func TestRelay_FailedCloseLeavesRowForSweep(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer upstream.Close()

	chanStore := newFakeChannels(&domain.Channel{ID: 1, Name: "Live", UpstreamURL: upstream.URL, IsActive: true})
	ledger := &flakyLedger{fakeLedger: newFakeLedger(), closeFailures: 1}
	licenses := &fakeLicenses{}
	events := &fakeEvents{}
	guard := quota.NewGuard(ledger, licenses)
	manager := NewManager(chanStore, ledger, guard, events, time.Second, time.Second)

	acct := viewer(1, 1)
	sess, err := manager.Start(acct, 1, ClientMeta{})
	require.NoError(t, err)

	// The relay completes normally but its close write fails once.
	require.NoError(t, manager.Relay(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), sess.ID, acct))

	row, err := ledger.GetByID(sess.ID)
	require.NoError(t, err)
	assert.True(t, row.Active(), "failed close leaves the ledger row open")
	assert.False(t, manager.Tracked(sess.ID), "a dead relay must not stay tracked")

	// The open row holds the quota slot until the sweep closes it.
	_, err = manager.Start(acct, 1, ClientMeta{})
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)

	// The cleanup sweep sees an untracked active row and retries the close.
	manager.ForceClose(sess.ID)

	row, err = ledger.GetByID(sess.ID)
	require.NoError(t, err)
	assert.False(t, row.Active())

	_, err = manager.Start(acct, 1, ClientMeta{})
	assert.NoError(t, err, "slot is free once the sweep closes the row")
}

// A stalled upstream that stops producing bytes is cancelled by the idle
// watchdog so it cannot hold a quota slot forever.
func TestRelay_StalledUpstreamWatchdog(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Write([]byte("chunk"))
		flusher.Flush()
		// Produce nothing further until the relay gives up.
		<-r.Context().Done()
	}))
	defer upstream.Close()

	chanStore := newFakeChannels(&domain.Channel{ID: 1, Name: "Live", UpstreamURL: upstream.URL, IsActive: true})
	ledger := newFakeLedger()
	licenses := &fakeLicenses{}
	events := &fakeEvents{}
	guard := quota.NewGuard(ledger, licenses)
	manager := NewManager(chanStore, ledger, guard, events, time.Second, 200*time.Millisecond)
	fx := &fixture{manager: manager, ledger: ledger, licenses: licenses, events: events, channels: chanStore}

	acct := viewer(1, 1)
	sess := startSession(t, fx, acct, ClientMeta{})

	done := make(chan error, 1)
	go func() {
		done <- fx.manager.Relay(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), sess.ID, acct)
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watchdog never cancelled the stalled relay")
	}

	row, err := fx.ledger.GetByID(sess.ID)
	require.NoError(t, err)
	assert.False(t, row.Active())
}
