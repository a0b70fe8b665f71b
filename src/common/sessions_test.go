package common

import (
	"testing"
	"time"

	"cshop/src/types"

	"github.com/stretchr/testify/assert"
)

func newTestSession(id string, orderId uint, age time.Duration) *PaymentSession {
	now := time.Now().Add(-age)
	return &PaymentSession{
		ID:          id,
		OrderID:     orderId,
		Fingerprint: "fp-" + id,
		Payload:     "payload-" + id,
		Amount:      100,
		Currency:    "USD",
		Origin:      types.SESSION_FRESH,
		CreatedAt:   now,
	}
}

func TestSessionCreateAndLookup(t *testing.T) {
	store := NewSessionStore(newMemPersister(), 15*time.Minute)
	s := newTestSession("s1", 1, 0)
	assert.NoError(t, store.Create(s))

	got, err := store.Get("s1")
	assert.NoError(t, err)
	assert.Equal(t, types.SESSION_PENDING, got.State)

	byOrder, err := store.ByOrder(1)
	assert.NoError(t, err)
	assert.Equal(t, "s1", byOrder.ID)

	byFp, err := store.ByFingerprint("fp-s1")
	assert.NoError(t, err)
	assert.Equal(t, "s1", byFp.ID)
}

func TestSessionCreateRejectsSecondLiveSession(t *testing.T) {
	store := NewSessionStore(newMemPersister(), 15*time.Minute)
	assert.NoError(t, store.Create(newTestSession("s1", 1, 0)))

	err := store.Create(newTestSession("s2", 1, 0))
	assert.ErrorIs(t, err, ErrDuplicateLiveSession)
}

func TestSessionCreateAllowsReplacingDeadSession(t *testing.T) {
	store := NewSessionStore(newMemPersister(), 15*time.Minute)
	assert.NoError(t, store.Create(newTestSession("s1", 1, 0)))
	assert.NoError(t, store.Transition("s1", types.SESSION_PENDING, types.SESSION_CANCELLED))

	assert.NoError(t, store.Create(newTestSession("s2", 1, 0)))
}

func TestSessionCreateRollsBackWhenPersisterFails(t *testing.T) {
	p := newMemPersister()
	p.failOn = "save"
	store := NewSessionStore(p, 15*time.Minute)

	err := store.Create(newTestSession("s1", 1, 0))
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = store.Get("s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionTransitionDetectsRace(t *testing.T) {
	store := NewSessionStore(newMemPersister(), 15*time.Minute)
	assert.NoError(t, store.Create(newTestSession("s1", 1, 0)))

	assert.NoError(t, store.Transition("s1", types.SESSION_PENDING, types.SESSION_COMPLETED))
	err := store.Transition("s1", types.SESSION_PENDING, types.SESSION_EXPIRED)
	assert.ErrorIs(t, err, ErrConcurrentTransition)

	got, _ := store.Get("s1")
	assert.Equal(t, types.SESSION_COMPLETED, got.State)
	assert.NotNil(t, got.CompletedAt)
}

func TestSessionTransitionRevertsWhenPersisterFails(t *testing.T) {
	p := newMemPersister()
	store := NewSessionStore(p, 15*time.Minute)
	assert.NoError(t, store.Create(newTestSession("s1", 1, 0)))

	p.failOn = "update"
	err := store.Transition("s1", types.SESSION_PENDING, types.SESSION_COMPLETED)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	got, _ := store.Get("s1")
	assert.Equal(t, types.SESSION_PENDING, got.State)
}

func TestLivePendingHonorsGrace(t *testing.T) {
	store := NewSessionStore(newMemPersister(), 15*time.Minute)
	assert.NoError(t, store.Create(newTestSession("young", 1, 0)))
	assert.NoError(t, store.Create(newTestSession("old", 2, time.Minute)))

	live := store.LivePending(10 * time.Second)
	assert.Len(t, live, 1)
	assert.Equal(t, "old", live[0].ID)
}

func TestLivePendingExcludesExpiredSessions(t *testing.T) {
	store := NewSessionStore(newMemPersister(), 15*time.Minute)
	// Past its deadline but not yet swept; the poller must not see it.
	assert.NoError(t, store.Create(newTestSession("expired", 1, 20*time.Minute)))
	assert.NoError(t, store.Create(newTestSession("live", 2, time.Minute)))

	live := store.LivePending(10 * time.Second)
	assert.Len(t, live, 1)
	assert.Equal(t, "live", live[0].ID)
}

func TestSweepExpiresStaleSessions(t *testing.T) {
	store := NewSessionStore(newMemPersister(), time.Minute)
	stale := newTestSession("stale", 1, 2*time.Minute)
	fresh := newTestSession("fresh", 2, 0)
	assert.NoError(t, store.Create(stale))
	assert.NoError(t, store.Create(fresh))

	n := store.Sweep()
	assert.Equal(t, 1, n)

	got, _ := store.Get("stale")
	assert.Equal(t, types.SESSION_EXPIRED, got.State)
	got, _ = store.Get("fresh")
	assert.Equal(t, types.SESSION_PENDING, got.State)
}

func TestSweepExpiresSessionExactlyAtDeadline(t *testing.T) {
	store := NewSessionStore(newMemPersister(), time.Minute)
	s := newTestSession("edge", 1, 0)
	s.ExpiresAt = time.Now()
	assert.NoError(t, store.Create(s))

	n := store.Sweep()
	assert.Equal(t, 1, n)

	got, _ := store.Get("edge")
	assert.Equal(t, types.SESSION_EXPIRED, got.State)
}

func TestSweepEvictsTerminalSessionsAfterRetention(t *testing.T) {
	store := NewSessionStore(newMemPersister(), 15*time.Minute)
	assert.NoError(t, store.Create(newTestSession("old", 1, 0)))
	assert.NoError(t, store.Create(newTestSession("recent", 2, 0)))
	assert.NoError(t, store.Transition("old", types.SESSION_PENDING, types.SESSION_CANCELLED))
	assert.NoError(t, store.Transition("recent", types.SESSION_PENDING, types.SESSION_CANCELLED))

	store.mu.Lock()
	store.byID["old"].endedAt = time.Now().Add(-2 * terminalRetention)
	store.mu.Unlock()

	store.Sweep()

	_, err := store.Get("old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.ByOrder(1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.ByFingerprint("fp-old")
	assert.ErrorIs(t, err, ErrNotFound)

	// Still inside the retention window.
	got, err := store.Get("recent")
	assert.NoError(t, err)
	assert.Equal(t, types.SESSION_CANCELLED, got.State)
}

func TestRehydrateRestoresPendingSessions(t *testing.T) {
	p := newMemPersister()
	first := NewSessionStore(p, 15*time.Minute)
	assert.NoError(t, first.Create(newTestSession("s1", 1, 0)))
	assert.NoError(t, first.Create(newTestSession("s2", 2, 0)))
	assert.NoError(t, first.Transition("s2", types.SESSION_PENDING, types.SESSION_COMPLETED))

	second := NewSessionStore(p, 15*time.Minute)
	n, err := second.Rehydrate()
	assert.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := second.Get("s1")
	assert.NoError(t, err)
	assert.True(t, got.Live())
	assert.False(t, got.ExpiresAt.IsZero())

	_, err = second.Get("s2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRehydrateSkipsRowsPastTheirDeadline(t *testing.T) {
	p := newMemPersister()
	first := NewSessionStore(p, 15*time.Minute)
	assert.NoError(t, first.Create(newTestSession("stale", 1, 20*time.Minute)))
	assert.NoError(t, first.Create(newTestSession("fresh", 2, time.Minute)))

	second := NewSessionStore(p, 15*time.Minute)
	n, err := second.Rehydrate()
	assert.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = second.Get("stale")
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := second.Get("fresh")
	assert.NoError(t, err)
	assert.True(t, got.Live())
}
