package quota

import (
	"sync"

	"github.com/vistream/panel/internal/domain"
)

// Ledger is the slice of the usage ledger the guard needs: the derived
// active-stream count per account.
type Ledger interface {
	CountActiveByAccount(accountID int64) (int, error)
}

// LicenseStore claims and returns slots on the shared, durable license
// counter. Both operations are atomic single-statement updates in the store.
type LicenseStore interface {
	Acquire(key string) error
	Release(key string) error
}

// Guard is the admission controller. The per-account cap uses a derived
// count over the ledger, so a crash mid-stream can never leak a counter:
// the cleanup sweep closing the row restores the slot. The count-then-insert
// step is serialized per account: two near-simultaneous starts racing on the
// last slot would otherwise both observe count = cap-1 and both be admitted.
type Guard struct {
	ledger   Ledger
	licenses LicenseStore

	mu    sync.Mutex
	locks map[int64]*accountLock
}

type accountLock struct {
	mu   sync.Mutex
	refs int
}

func NewGuard(ledger Ledger, licenses LicenseStore) *Guard {
	return &Guard{
		ledger:   ledger,
		licenses: licenses,
		locks:    make(map[int64]*accountLock),
	}
}

// AdmitAccount checks the account's concurrency cap and, while still holding
// the account's admission lock, runs insert to append the ledger row. The
// insert must create the row that the next count will see; admission without
// a row would leave the stream invisible to the quota.
func (g *Guard) AdmitAccount(account *domain.Account, insert func() error) error {
	unlock := g.lockAccount(account.ID)
	defer unlock()

	count, err := g.ledger.CountActiveByAccount(account.ID)
	if err != nil {
		return err
	}
	if count >= account.MaxConnections {
		return domain.ErrQuotaExceeded
	}

	return insert()
}

// AcquireLicense claims a slot on the license counter. Callers that later
// fail account admission must release the slot themselves.
func (g *Guard) AcquireLicense(key string) error {
	return g.licenses.Acquire(key)
}

// ReleaseLicense returns a previously acquired slot.
func (g *Guard) ReleaseLicense(key string) error {
	return g.licenses.Release(key)
}

// lockAccount returns an unlock func for the account's admission mutex.
// Locks are reference-counted so the map does not grow with the number of
// accounts ever seen.
func (g *Guard) lockAccount(accountID int64) func() {
	g.mu.Lock()
	l, ok := g.locks[accountID]
	if !ok {
		l = &accountLock{}
		g.locks[accountID] = l
	}
	l.refs++
	g.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		g.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(g.locks, accountID)
		}
		g.mu.Unlock()
	}
}
