package common

import (
	"context"
	"testing"
	"time"

	"cshop/src/models"
	"cshop/src/types"

	"github.com/stretchr/testify/assert"
)

func newTestEngine(orders *memOrders, acquirer Acquirer) (*Engine, *memEvents) {
	sessions := NewSessionStore(newMemPersister(), 15*time.Minute)
	carts := &memCarts{}
	events := &memEvents{}
	coord := NewCoordinator(orders, sessions, carts, events)
	return &Engine{
		Sessions:        sessions,
		Orders:          orders,
		Carts:           carts,
		Events:          events,
		Coordinator:     coord,
		Issuer:          &fakeIssuer{},
		Acquirer:        acquirer,
		SessionTTL:      15 * time.Minute,
		AcquirerTimeout: time.Second,
	}, events
}

func TestCreatePaymentPinsFingerprintOnOrder(t *testing.T) {
	orders := newMemOrders(&models.Order{ID: 1, CustomerID: 2, Status: types.ORDER_PENDING})
	e, _ := newTestEngine(orders, newFakeAcquirer())

	view, err := e.CreatePayment(&types.CreatePaymentRequestBody{OrderID: 1, Amount: 99.5, Currency: "USD"})
	assert.NoError(t, err)
	assert.Equal(t, types.SESSION_PENDING, view.Status)
	assert.NotEmpty(t, view.PaymentID)
	assert.NotEmpty(t, view.QRPayload)

	order, _ := orders.GetOrder(1)
	assert.Equal(t, view.Fingerprint, order.TransactionID)

	session, err := e.Sessions.ByOrder(1)
	assert.NoError(t, err)
	assert.Equal(t, view.PaymentID, session.ID)
}

func TestCreatePaymentRejectsSecondLiveSession(t *testing.T) {
	orders := newMemOrders(&models.Order{ID: 1, CustomerID: 2, Status: types.ORDER_PENDING})
	e, _ := newTestEngine(orders, newFakeAcquirer())

	_, err := e.CreatePayment(&types.CreatePaymentRequestBody{OrderID: 1, Amount: 99.5, Currency: "USD"})
	assert.NoError(t, err)
	_, err = e.CreatePayment(&types.CreatePaymentRequestBody{OrderID: 1, Amount: 99.5, Currency: "USD"})
	assert.ErrorIs(t, err, ErrDuplicateLiveSession)
}

func TestCreatePaymentRejectsAdvancedOrder(t *testing.T) {
	orders := newMemOrders(&models.Order{ID: 1, CustomerID: 2, Status: types.ORDER_COMPLETED})
	e, _ := newTestEngine(orders, newFakeAcquirer())

	_, err := e.CreatePayment(&types.CreatePaymentRequestBody{OrderID: 1, Amount: 99.5, Currency: "USD"})
	assert.ErrorIs(t, err, ErrAlreadyAdvanced)
}

func TestCheckPaymentSettlesWhenAcquirerReportsPaid(t *testing.T) {
	orders := newMemOrders(&models.Order{ID: 1, CustomerID: 2, Status: types.ORDER_PENDING})
	acquirer := newFakeAcquirer()
	e, _ := newTestEngine(orders, acquirer)

	view, err := e.CreatePayment(&types.CreatePaymentRequestBody{OrderID: 1, Amount: 99.5, Currency: "USD"})
	assert.NoError(t, err)

	got, err := e.CheckPayment(context.Background(), view.PaymentID)
	assert.NoError(t, err)
	assert.Equal(t, types.SESSION_PENDING, got.Status)

	acquirer.statuses[view.Fingerprint] = types.ACQUIRER_PAID
	got, err = e.CheckPayment(context.Background(), view.PaymentID)
	assert.NoError(t, err)
	assert.Equal(t, types.SESSION_COMPLETED, got.Status)

	order, _ := orders.GetOrder(1)
	assert.Equal(t, types.ORDER_COMPLETED, order.Status)
}

func TestRegenerateQRKeepsFingerprint(t *testing.T) {
	orders := newMemOrders(&models.Order{ID: 1, CustomerID: 2, Status: types.ORDER_PENDING, PaymentMethod: types.PAYMENT_KHQR})
	e, _ := newTestEngine(orders, newFakeAcquirer())

	first, err := e.CreatePayment(&types.CreatePaymentRequestBody{OrderID: 1, Amount: 99.5, Currency: "USD"})
	assert.NoError(t, err)

	second, err := e.RegenerateQR(1)
	assert.NoError(t, err)
	assert.NotEqual(t, first.PaymentID, second.PaymentID)
	assert.NotEqual(t, first.QRPayload, second.QRPayload)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)

	old, err := e.Sessions.Get(first.PaymentID)
	assert.NoError(t, err)
	assert.Equal(t, types.SESSION_CANCELLED, old.State)

	order, _ := orders.GetOrder(1)
	assert.Equal(t, first.Fingerprint, order.TransactionID)
}

func TestRegenerateQRRejectsAdvancedOrder(t *testing.T) {
	orders := newMemOrders(&models.Order{ID: 1, CustomerID: 2, Status: types.ORDER_PENDING, PaymentMethod: types.PAYMENT_KHQR})
	e, _ := newTestEngine(orders, newFakeAcquirer())

	view, err := e.CreatePayment(&types.CreatePaymentRequestBody{OrderID: 1, Amount: 99.5, Currency: "USD"})
	assert.NoError(t, err)
	assert.NoError(t, e.Coordinator.PaymentObserved(context.Background(), 1, view.PaymentID, view.Fingerprint, types.SOURCE_POLLER))

	_, err = e.RegenerateQR(1)
	assert.ErrorIs(t, err, ErrAlreadyAdvanced)
}

func TestRegenerateQRRejectsOfflineOrder(t *testing.T) {
	orders := newMemOrders(&models.Order{ID: 1, CustomerID: 2, Status: types.ORDER_PENDING, PaymentMethod: types.PAYMENT_CASH})
	e, _ := newTestEngine(orders, newFakeAcquirer())

	_, err := e.RegenerateQR(1)
	assert.ErrorIs(t, err, ErrOrderNotEligible)
}

func TestRegenerateQRSurvivesRestart(t *testing.T) {
	orders := newMemOrders(&models.Order{ID: 1, CustomerID: 2, Status: types.ORDER_PENDING, PaymentMethod: types.PAYMENT_KHQR, TotalAmount: 99.5, Currency: "USD"})
	persister := newMemPersister()
	sessions := NewSessionStore(persister, 15*time.Minute)
	carts := &memCarts{}
	events := &memEvents{}
	e := &Engine{
		Sessions:        sessions,
		Orders:          orders,
		Carts:           carts,
		Events:          events,
		Coordinator:     NewCoordinator(orders, sessions, carts, events),
		Issuer:          &fakeIssuer{},
		Acquirer:        newFakeAcquirer(),
		SessionTTL:      15 * time.Minute,
		AcquirerTimeout: time.Second,
	}

	first, err := e.CreatePayment(&types.CreatePaymentRequestBody{OrderID: 1, Amount: 99.5, Currency: "USD"})
	assert.NoError(t, err)
	assert.NoError(t, e.CancelSession(first.PaymentID))

	// A restart rehydrates only pending rows, so the cancelled session is
	// gone from memory. The order still pins the fingerprint.
	e.Sessions = NewSessionStore(persister, 15*time.Minute)
	n, err := e.Sessions.Rehydrate()
	assert.NoError(t, err)
	assert.Equal(t, 0, n)

	second, err := e.RegenerateQR(1)
	assert.NoError(t, err)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.NotEqual(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, 99.5, second.Amount)
}

func TestCancelSession(t *testing.T) {
	orders := newMemOrders(&models.Order{ID: 1, CustomerID: 2, Status: types.ORDER_PENDING})
	e, _ := newTestEngine(orders, newFakeAcquirer())

	view, err := e.CreatePayment(&types.CreatePaymentRequestBody{OrderID: 1, Amount: 99.5, Currency: "USD"})
	assert.NoError(t, err)
	assert.NoError(t, e.CancelSession(view.PaymentID))

	got, _ := e.Sessions.Get(view.PaymentID)
	assert.Equal(t, types.SESSION_CANCELLED, got.State)

	assert.ErrorIs(t, e.CancelSession(view.PaymentID), ErrConcurrentTransition)
}

func TestSettleOffline(t *testing.T) {
	orders := newMemOrders(
		&models.Order{ID: 1, CustomerID: 2, Status: types.ORDER_PENDING, PaymentMethod: types.PAYMENT_CASH},
		&models.Order{ID: 2, CustomerID: 2, Status: types.ORDER_PENDING, PaymentMethod: types.PAYMENT_KHQR},
	)
	e, events := newTestEngine(orders, newFakeAcquirer())

	assert.NoError(t, e.SettleOffline(context.Background(), 1, 9))
	order, _ := orders.GetOrder(1)
	assert.Equal(t, types.ORDER_COMPLETED, order.Status)
	assert.NotEmpty(t, order.TransactionID)
	assert.Len(t, events.ofType(types.EVENT_PAYMENT_COMPLETED), 1)

	assert.ErrorIs(t, e.SettleOffline(context.Background(), 2, 9), ErrOrderNotEligible)
}

func TestCancelOrderWithdrawsLiveSession(t *testing.T) {
	orders := newMemOrders(&models.Order{ID: 1, CustomerID: 2, Status: types.ORDER_PENDING})
	e, events := newTestEngine(orders, newFakeAcquirer())

	view, err := e.CreatePayment(&types.CreatePaymentRequestBody{OrderID: 1, Amount: 99.5, Currency: "USD"})
	assert.NoError(t, err)

	assert.NoError(t, e.CancelOrder(context.Background(), 1, "changed my mind", ""))

	order, _ := orders.GetOrder(1)
	assert.Equal(t, types.ORDER_CANCELLED, order.Status)
	session, _ := e.Sessions.Get(view.PaymentID)
	assert.Equal(t, types.SESSION_CANCELLED, session.State)
	assert.Len(t, events.ofType(types.EVENT_ORDER_CANCELLED), 1)
}

func TestRejectOrderWithdrawsLiveSession(t *testing.T) {
	orders := newMemOrders(&models.Order{ID: 1, CustomerID: 2, Status: types.ORDER_PENDING})
	e, events := newTestEngine(orders, newFakeAcquirer())

	view, err := e.CreatePayment(&types.CreatePaymentRequestBody{OrderID: 1, Amount: 99.5, Currency: "USD"})
	assert.NoError(t, err)

	assert.NoError(t, e.RejectOrder(context.Background(), 1, 9, "suspicious"))

	order, _ := orders.GetOrder(1)
	assert.Equal(t, types.ORDER_REJECTED, order.Status)
	session, _ := e.Sessions.Get(view.PaymentID)
	assert.Equal(t, types.SESSION_CANCELLED, session.State)
	assert.Len(t, events.ofType(types.EVENT_ORDER_REJECTED), 1)
}
