package cleanup

import (
	"log"
	"time"

	"github.com/vistream/panel/internal/domain"
)

type SessionStore interface {
	DeactivateExpiredSessions() (int64, error)
	CleanupOldSessions(olderThanDays int) (int64, error)
}

type LedgerStore interface {
	ListStaleActive(startedBefore time.Time) ([]domain.StreamSession, error)
}

type StreamManager interface {
	Tracked(logID string) bool
	ForceClose(logID string)
}

const sessionRetentionDays = 30

// Worker is the background safety net. Relays normally detect their own
// termination, but a process crash or a client that obtained a log ID and
// never connected leaves ledger rows active forever, permanently consuming
// quota slots. The worker closes any active row older than the grace period
// that has no live relay behind it, and sweeps the session registry.
type Worker struct {
	Sessions SessionStore
	Ledger   LedgerStore
	Streams  StreamManager
	Interval time.Duration
	Grace    time.Duration
}

func NewWorker(sessions SessionStore, ledger LedgerStore, streams StreamManager, interval, grace time.Duration) *Worker {
	return &Worker{
		Sessions: sessions,
		Ledger:   ledger,
		Streams:  streams,
		Interval: interval,
		Grace:    grace,
	}
}

// Start initiates the background ticker
func (w *Worker) Start() {
	go w.runCleanup()

	ticker := time.NewTicker(w.Interval)
	go func() {
		for range ticker.C {
			w.runCleanup()
		}
	}()
	log.Println("[CLEANUP] Background worker started")
}

// runCleanup executes the actual cleanup logic
func (w *Worker) runCleanup() {
	expired, err := w.Sessions.DeactivateExpiredSessions()
	if err != nil {
		log.Printf("[CLEANUP] Error deactivating expired sessions: %v", err)
	} else if expired > 0 {
		log.Printf("[CLEANUP] Deactivated %d expired sessions", expired)
	}

	deleted, err := w.Sessions.CleanupOldSessions(sessionRetentionDays)
	if err != nil {
		log.Printf("[CLEANUP] Error cleaning up old sessions: %v", err)
	} else if deleted > 0 {
		log.Printf("[CLEANUP] Removed %d old sessions from database", deleted)
	}

	w.closeDanglingStreams()
}

func (w *Worker) closeDanglingStreams() {
	stale, err := w.Ledger.ListStaleActive(time.Now().Add(-w.Grace))
	if err != nil {
		log.Printf("[CLEANUP] Error listing stale streams: %v", err)
		return
	}

	closed := 0
	for _, row := range stale {
		if w.Streams.Tracked(row.ID) {
			continue // live relay, leave it alone
		}
		w.Streams.ForceClose(row.ID)
		closed++
	}
	if closed > 0 {
		log.Printf("[CLEANUP] Force-closed %d dangling stream sessions", closed)
	}
}
