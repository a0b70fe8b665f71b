package common

import (
	"log"
	"sync"
	"time"

	"cshop/src/db"
	"cshop/src/models"
	"cshop/src/models/scopes"
	"cshop/src/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentSession is the live, in-memory view of one QR payment attempt.
// The authoritative copy for restarts lives in the payment_trackings table.
type PaymentSession struct {
	ID          string
	OrderID     uint
	Fingerprint string
	Payload     string
	BillNumber  string
	Amount      float64
	Currency    string
	State       types.SessionState
	Origin      types.SessionOrigin
	CreatedAt   time.Time
	ExpiresAt   time.Time
	CompletedAt *time.Time

	endedAt time.Time
}

// Terminal sessions linger this long so late status checks still resolve,
// then the sweeper evicts them.
const terminalRetention = 5 * time.Minute

func (s *PaymentSession) Live() bool {
	return s.State == types.SESSION_PENDING
}

// SessionPersister mirrors session writes to durable storage. Memory is the
// source of truth while the process is up; the persister exists so a restart
// can rebuild the map.
type SessionPersister interface {
	Save(s *PaymentSession) error
	UpdateState(paymentId string, from, to types.SessionState, completedAt *time.Time) error
	LoadPending() ([]*PaymentSession, error)
}

type SessionStore struct {
	mu            sync.RWMutex
	byID          map[string]*PaymentSession
	byOrder       map[uint]*PaymentSession
	byFingerprint map[string]*PaymentSession
	persister     SessionPersister
	ttl           time.Duration
}

func NewSessionStore(p SessionPersister, ttl time.Duration) *SessionStore {
	return &SessionStore{
		byID:          make(map[string]*PaymentSession),
		byOrder:       make(map[uint]*PaymentSession),
		byFingerprint: make(map[string]*PaymentSession),
		persister:     p,
		ttl:           ttl,
	}
}

// Create registers a new pending session for an order. At most one live
// session may exist per order. The memory insert and the durable mirror
// succeed or fail together.
func (st *SessionStore) Create(s *PaymentSession) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if live, ok := st.byOrder[s.OrderID]; ok && live.Live() {
		return ErrDuplicateLiveSession
	}
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = s.CreatedAt.Add(st.ttl)
	}
	s.State = types.SESSION_PENDING
	st.byID[s.ID] = s
	st.byOrder[s.OrderID] = s
	st.byFingerprint[s.Fingerprint] = s
	if err := st.persister.Save(s); err != nil {
		delete(st.byID, s.ID)
		delete(st.byOrder, s.OrderID)
		delete(st.byFingerprint, s.Fingerprint)
		log.Printf("Error persisting session %s: %s\n", s.ID, err.Error())
		return ErrStoreUnavailable
	}
	return nil
}

func (st *SessionStore) Get(id string) (*PaymentSession, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (st *SessionStore) ByOrder(orderId uint) (*PaymentSession, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.byOrder[orderId]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (st *SessionStore) ByFingerprint(fp string) (*PaymentSession, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.byFingerprint[fp]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// LivePending snapshots the pending sessions older than the grace window.
// Sessions at or past their deadline are skipped even when the sweeper has
// not flipped them yet. The snapshot is taken under the read lock; callers
// poll without holding it.
func (st *SessionStore) LivePending(grace time.Duration) []PaymentSession {
	st.mu.RLock()
	defer st.mu.RUnlock()
	now := time.Now()
	out := make([]PaymentSession, 0)
	for _, s := range st.byID {
		if !s.Live() {
			continue
		}
		if !s.ExpiresAt.After(now) {
			continue
		}
		if now.Sub(s.CreatedAt) < grace {
			continue
		}
		out = append(out, *s)
	}
	return out
}

// Transition moves a session from one state to another. A mismatched current
// state means another actor won the race and the caller should treat its own
// attempt as superseded.
func (st *SessionStore) Transition(id string, from, to types.SessionState) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.byID[id]
	if !ok {
		return ErrNotFound
	}
	if s.State != from {
		return ErrConcurrentTransition
	}
	prevState := s.State
	prevCompleted := s.CompletedAt
	prevEnded := s.endedAt
	s.State = to
	now := time.Now()
	var completedAt *time.Time
	if to != types.SESSION_PENDING {
		s.endedAt = now
	}
	if to == types.SESSION_COMPLETED {
		s.CompletedAt = &now
		completedAt = &now
	}
	if err := st.persister.UpdateState(s.ID, from, to, completedAt); err != nil {
		s.State = prevState
		s.CompletedAt = prevCompleted
		s.endedAt = prevEnded
		log.Printf("Error persisting transition for session %s: %s\n", s.ID, err.Error())
		return ErrStoreUnavailable
	}
	return nil
}

// Sweep expires pending sessions at or past their deadline and returns how
// many were flipped. Terminal sessions older than the retention window are
// evicted from the maps; the order row keeps the durable fingerprint.
func (st *SessionStore) Sweep() int {
	st.mu.Lock()
	expired := []string{}
	now := time.Now()
	for id, s := range st.byID {
		if s.Live() && !now.Before(s.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	st.mu.Unlock()
	swept := 0
	for _, id := range expired {
		err := st.Transition(id, types.SESSION_PENDING, types.SESSION_EXPIRED)
		if err != nil {
			log.Printf("Error expiring session %s: %s\n", id, err.Error())
			continue
		}
		swept++
	}
	if swept > 0 {
		log.Printf("Expired %d stale payment sessions\n", swept)
	}
	st.evictTerminal()
	return swept
}

func (st *SessionStore) evictTerminal() {
	st.mu.Lock()
	defer st.mu.Unlock()
	now := time.Now()
	evicted := 0
	for id, s := range st.byID {
		if s.Live() || s.endedAt.IsZero() || now.Sub(s.endedAt) < terminalRetention {
			continue
		}
		delete(st.byID, id)
		if cur, ok := st.byOrder[s.OrderID]; ok && cur.ID == id {
			delete(st.byOrder, s.OrderID)
		}
		if cur, ok := st.byFingerprint[s.Fingerprint]; ok && cur.ID == id {
			delete(st.byFingerprint, s.Fingerprint)
		}
		evicted++
	}
	if evicted > 0 {
		log.Printf("Released %d finished payment sessions\n", evicted)
	}
}

// Rehydrate rebuilds the in-memory maps from the durable mirror after a
// restart. Only pending rows still inside their deadline come back;
// everything else is history.
func (st *SessionStore) Rehydrate() (int, error) {
	sessions, err := st.persister.LoadPending()
	if err != nil {
		return 0, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	now := time.Now()
	n := 0
	for _, s := range sessions {
		if _, ok := st.byID[s.ID]; ok {
			continue
		}
		if s.ExpiresAt.IsZero() {
			s.ExpiresAt = s.CreatedAt.Add(st.ttl)
		}
		if !s.ExpiresAt.After(now) {
			continue
		}
		st.byID[s.ID] = s
		st.byOrder[s.OrderID] = s
		st.byFingerprint[s.Fingerprint] = s
		n++
	}
	return n, nil
}

// GormSessionPersister mirrors sessions into the payment_trackings table.
// TTL bounds how far back LoadPending reaches; zero means no cutoff.
type GormSessionPersister struct {
	TTL time.Duration
}

func (p *GormSessionPersister) Save(s *PaymentSession) error {
	gdb := db.GetDb()
	return gdb.Transaction(func(tx *gorm.DB) error {
		row := models.PaymentTracking{
			OrderID:     s.OrderID,
			PaymentID:   s.ID,
			MD5Hash:     s.Fingerprint,
			QRData:      s.Payload,
			Amount:      s.Amount,
			Currency:    s.Currency,
			Status:      s.State,
			CreatedFrom: s.Origin,
			CreatedAt:   s.CreatedAt,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payment_id"}},
			DoNothing: true,
		}).Create(&row).Error
	})
}

func (p *GormSessionPersister) UpdateState(paymentId string, from, to types.SessionState, completedAt *time.Time) error {
	gdb := db.GetDb()
	return gdb.Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"status": to}
		if completedAt != nil {
			updates["completed_at"] = *completedAt
		}
		res := tx.
			Model(&models.PaymentTracking{}).
			Where("payment_id = ? AND status = ?", paymentId, from).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConcurrentTransition
		}
		return nil
	})
}

func (p *GormSessionPersister) LoadPending() ([]*PaymentSession, error) {
	gdb := db.GetDb()
	var rows []models.PaymentTracking
	q := gdb.
		Model(&models.PaymentTracking{}).
		Scopes(scopes.WithPendingStatus)
	if p.TTL > 0 {
		q = q.Where("created_at > ?", time.Now().Add(-p.TTL))
	}
	err := q.Find(&rows).Error
	if err != nil {
		return nil, err
	}
	sessions := make([]*PaymentSession, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, &PaymentSession{
			ID:          r.PaymentID,
			OrderID:     r.OrderID,
			Fingerprint: r.MD5Hash,
			Payload:     r.QRData,
			Amount:      r.Amount,
			Currency:    r.Currency,
			State:       r.Status,
			Origin:      r.CreatedFrom,
			CreatedAt:   r.CreatedAt,
			CompletedAt: r.CompletedAt,
		})
	}
	return sessions, nil
}
