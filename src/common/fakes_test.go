package common

import (
	"context"
	"errors"
	"sync"
	"time"

	"cshop/src/lib"
	"cshop/src/models"
	"cshop/src/types"
)

type memPersister struct {
	mu     sync.Mutex
	saved  map[string]*PaymentSession
	failOn string
}

func newMemPersister() *memPersister {
	return &memPersister{saved: make(map[string]*PaymentSession)}
}

func (p *memPersister) Save(s *PaymentSession) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn == "save" {
		return errors.New("persister down")
	}
	cp := *s
	p.saved[s.ID] = &cp
	return nil
}

func (p *memPersister) UpdateState(paymentId string, from, to types.SessionState, completedAt *time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn == "update" {
		return errors.New("persister down")
	}
	s, ok := p.saved[paymentId]
	if !ok {
		return ErrNotFound
	}
	if s.State != from {
		return ErrConcurrentTransition
	}
	s.State = to
	s.CompletedAt = completedAt
	return nil
}

func (p *memPersister) LoadPending() ([]*PaymentSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []*PaymentSession{}
	for _, s := range p.saved {
		if s.State == types.SESSION_PENDING {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memOrders struct {
	mu     sync.Mutex
	orders map[uint]*models.Order
}

func newMemOrders(orders ...*models.Order) *memOrders {
	m := &memOrders{orders: make(map[uint]*models.Order)}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *memOrders) PlaceOrder(customerId uint, params *types.CreateOrderRequestBody) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uint(len(m.orders) + 1)
	o := &models.Order{ID: id, CustomerID: customerId, Status: types.ORDER_PENDING}
	m.orders[id] = o
	return o, nil
}

func (m *memOrders) GetOrder(id uint) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) ListOrders(customerId uint) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Order{}
	for _, o := range m.orders {
		if o.CustomerID == customerId {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memOrders) SetTransactionID(orderId uint, txnId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderId]
	if !ok {
		return ErrNotFound
	}
	if o.Status != types.ORDER_PENDING {
		return ErrAlreadyAdvanced
	}
	o.TransactionID = txnId
	return nil
}

func (m *memOrders) MarkPaymentObserved(orderId uint, txnId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderId]
	if !ok {
		return ErrNotFound
	}
	if o.Status != types.ORDER_PENDING {
		return ErrAlreadyAdvanced
	}
	o.Status = types.ORDER_COMPLETED
	o.TransactionID = txnId
	return nil
}

func (m *memOrders) Approve(orderId uint, staffId uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderId]
	if !ok {
		return ErrNotFound
	}
	if o.Status == types.ORDER_CONFIRMED {
		return nil
	}
	if o.Status != types.ORDER_COMPLETED {
		return ErrOrderNotEligible
	}
	o.Status = types.ORDER_CONFIRMED
	o.ApprovedBy = &staffId
	return nil
}

func (m *memOrders) Reject(orderId uint, staffId uint, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderId]
	if !ok {
		return ErrNotFound
	}
	if o.Status.Terminal() {
		return ErrAlreadyAdvanced
	}
	o.Status = types.ORDER_REJECTED
	o.CancellationReason = &reason
	return nil
}

func (m *memOrders) Cancel(orderId uint, reason string, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderId]
	if !ok {
		return ErrNotFound
	}
	if o.Status != types.ORDER_PENDING {
		return ErrAlreadyAdvanced
	}
	o.Status = types.ORDER_CANCELLED
	o.CancellationReason = &reason
	return nil
}

func (m *memOrders) CancelItems(orderId uint, itemIds []uint, reason string) error {
	return nil
}

func (m *memOrders) AttachScreenshot(orderId uint, path string, status types.VerificationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderId]
	if !ok {
		return ErrNotFound
	}
	o.PaymentScreenshotPath = &path
	o.PaymentVerificationStatus = &status
	return nil
}

type fakeAcquirer struct {
	mu       sync.Mutex
	statuses map[string]types.AcquirerStatus
	errs     map[string]error
	failures map[string]int
	calls    map[string]int
}

func newFakeAcquirer() *fakeAcquirer {
	return &fakeAcquirer{
		statuses: make(map[string]types.AcquirerStatus),
		errs:     make(map[string]error),
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
}

func (a *fakeAcquirer) CheckPayment(ctx context.Context, md5hash string) (types.AcquirerStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[md5hash]++
	if n, ok := a.failures[md5hash]; ok && n > 0 {
		a.failures[md5hash] = n - 1
		return types.ACQUIRER_UNPAID, errors.New("acquirer unavailable")
	}
	if err, ok := a.errs[md5hash]; ok {
		return types.ACQUIRER_UNPAID, err
	}
	if status, ok := a.statuses[md5hash]; ok {
		return status, nil
	}
	return types.ACQUIRER_UNPAID, nil
}

type memCarts struct {
	mu      sync.Mutex
	cleared []uint
}

func (c *memCarts) Clear(ctx context.Context, customerId uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared = append(c.cleared, customerId)
	return nil
}

type memEvents struct {
	mu     sync.Mutex
	events []Event
}

func (e *memEvents) Emit(ctx context.Context, evt Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
	return nil
}

func (e *memEvents) ofType(t types.EventType) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := []Event{}
	for _, evt := range e.events {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

type memRecords struct {
	mu   sync.Mutex
	recs map[string]*models.OrderScreenshot
}

func newMemRecords() *memRecords {
	return &memRecords{recs: make(map[string]*models.OrderScreenshot)}
}

func (r *memRecords) FindByHash(hash string) (*models.OrderScreenshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[hash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *memRecords) Upsert(rec *models.OrderScreenshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.recs[rec.ImageHash] = &cp
	return nil
}

type memObjects struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{blobs: make(map[string][]byte)}
}

func (o *memObjects) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.blobs[name] = data
	return name, nil
}

func (o *memObjects) Delete(ctx context.Context, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.blobs, name)
	return nil
}

func (o *memObjects) URL(ctx context.Context, name string) (string, error) {
	return name, nil
}

type fakeIssuer struct {
	n int
}

func (f *fakeIssuer) Issue(amount float64, currency string) (*lib.IssuedQR, error) {
	f.n++
	return &lib.IssuedQR{
		Payload:     "payload-" + string(rune('a'+f.n)),
		Fingerprint: "fp-" + string(rune('a'+f.n)),
		BillNumber:  "INV000000000A",
	}, nil
}

func (f *fakeIssuer) Reissue(amount float64, currency string, fingerprint string) (*lib.IssuedQR, error) {
	f.n++
	return &lib.IssuedQR{
		Payload:     "payload-" + string(rune('a'+f.n)),
		Fingerprint: fingerprint,
		BillNumber:  "INV000000000B",
	}, nil
}
