package quota

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vistream/panel/internal/domain"
)

type fakeLedger struct {
	mu     sync.Mutex
	active map[int64]int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{active: make(map[int64]int)}
}

func (f *fakeLedger) CountActiveByAccount(accountID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[accountID], nil
}

func (f *fakeLedger) insert(accountID int64) func() error {
	return func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.active[accountID]++
		return nil
	}
}

func (f *fakeLedger) release(accountID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[accountID]--
}

type fakeLicenses struct {
	mu       sync.Mutex
	acquired int
	released int
	errOnAcq error
}

func (f *fakeLicenses) Acquire(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errOnAcq != nil {
		return f.errOnAcq
	}
	f.acquired++
	return nil
}

func (f *fakeLicenses) Release(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
	return nil
}

func subscriber(id int64, maxConns int) *domain.Account {
	return &domain.Account{
		ID:             id,
		Username:       "sub",
		Role:           domain.RoleSubscriber,
		Status:         domain.AccountActive,
		MaxConnections: maxConns,
	}
}

func TestAdmitAccount_EnforcesCap(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	guard := NewGuard(ledger, &fakeLicenses{})
	acct := subscriber(1, 2)

	require.NoError(t, guard.AdmitAccount(acct, ledger.insert(acct.ID)))
	require.NoError(t, guard.AdmitAccount(acct, ledger.insert(acct.ID)))

	err := guard.AdmitAccount(acct, ledger.insert(acct.ID))
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
}

func TestAdmitAccount_ZeroCapRejects(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	guard := NewGuard(ledger, &fakeLicenses{})

	err := guard.AdmitAccount(subscriber(1, 0), ledger.insert(1))
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
}

func TestAdmitAccount_SlotFreedAfterClose(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	guard := NewGuard(ledger, &fakeLicenses{})
	acct := subscriber(1, 1)

	require.NoError(t, guard.AdmitAccount(acct, ledger.insert(acct.ID)))
	assert.ErrorIs(t, guard.AdmitAccount(acct, ledger.insert(acct.ID)), domain.ErrQuotaExceeded)

	ledger.release(acct.ID)
	assert.NoError(t, guard.AdmitAccount(acct, ledger.insert(acct.ID)))
}

// Two near-simultaneous starts racing on the last slot must not both be
// admitted: the count-then-insert step is serialized per account.
func TestAdmitAccount_ConcurrentStartsNeverOverAdmit(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	guard := NewGuard(ledger, &fakeLicenses{})
	acct := subscriber(7, 3)

	const attempts = 20
	var wg sync.WaitGroup
	var admitted int64
	var mu sync.Mutex

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := guard.AdmitAccount(acct, ledger.insert(acct.ID)); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(3), admitted)
	count, err := ledger.CountActiveByAccount(acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestAdmitAccount_DifferentAccountsDoNotBlock(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	guard := NewGuard(ledger, &fakeLicenses{})

	require.NoError(t, guard.AdmitAccount(subscriber(1, 1), ledger.insert(1)))
	require.NoError(t, guard.AdmitAccount(subscriber(2, 1), ledger.insert(2)))
}

func TestAdmitAccount_InsertFailurePropagates(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	guard := NewGuard(ledger, &fakeLicenses{})
	boom := errors.New("insert failed")

	err := guard.AdmitAccount(subscriber(1, 5), func() error { return boom })
	assert.ErrorIs(t, err, boom)

	count, _ := ledger.CountActiveByAccount(1)
	assert.Equal(t, 0, count)
}

func TestLicensePassThrough(t *testing.T) {
	t.Parallel()

	licenses := &fakeLicenses{}
	guard := NewGuard(newFakeLedger(), licenses)

	require.NoError(t, guard.AcquireLicense("KEY-1"))
	require.NoError(t, guard.ReleaseLicense("KEY-1"))
	assert.Equal(t, 1, licenses.acquired)
	assert.Equal(t, 1, licenses.released)

	licenses.errOnAcq = domain.ErrQuotaExceeded
	assert.ErrorIs(t, guard.AcquireLicense("KEY-1"), domain.ErrQuotaExceeded)
}
