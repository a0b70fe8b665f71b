package common

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cshop/src/lib"
	"cshop/src/types"
	"cshop/src/utils"

	"github.com/google/uuid"
)

// QRIssuer produces KHQR payloads. Reissue keeps reporting the original
// fingerprint so the acquirer reference survives a regenerated code.
type QRIssuer interface {
	Issue(amount float64, currency string) (*lib.IssuedQR, error)
	Reissue(amount float64, currency string, fingerprint string) (*lib.IssuedQR, error)
}

// Engine owns the payment flow end to end. Handlers only ever call into this.
type Engine struct {
	Sessions    *SessionStore
	Orders      OrderStore
	Carts       CartStore
	Events      EventSink
	Coordinator *Coordinator
	Poller      *Poller
	Screenshots *ScreenshotVerifier
	Issuer      QRIssuer
	Acquirer    Acquirer

	SessionTTL      time.Duration
	AcquirerTimeout time.Duration
}

// PaymentView is what the storefront renders for one payment attempt.
type PaymentView struct {
	PaymentID   string             `json:"payment_id"`
	OrderID     uint               `json:"order_id"`
	QRPayload   string             `json:"qr_payload"`
	QRImage     string             `json:"qr_image,omitempty"`
	Fingerprint string             `json:"md5"`
	Amount      float64            `json:"amount"`
	Currency    string             `json:"currency"`
	Status      types.SessionState `json:"status"`
	ExpiresAt   time.Time          `json:"expires_at"`
}

func viewOf(s *PaymentSession, qrImage string) *PaymentView {
	return &PaymentView{
		PaymentID:   s.ID,
		OrderID:     s.OrderID,
		QRPayload:   s.Payload,
		QRImage:     qrImage,
		Fingerprint: s.Fingerprint,
		Amount:      s.Amount,
		Currency:    s.Currency,
		Status:      s.State,
		ExpiresAt:   s.ExpiresAt,
	}
}

// CreatePayment opens a QR payment session for a pending order. The QR
// fingerprint is pinned on the order immediately so later uploads and
// regenerated codes can refer back to it.
func (e *Engine) CreatePayment(params *types.CreatePaymentRequestBody) (*PaymentView, error) {
	order, err := e.Orders.GetOrder(params.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != types.ORDER_PENDING {
		return nil, ErrAlreadyAdvanced
	}
	if live, err := e.Sessions.ByOrder(params.OrderID); err == nil && live.Live() {
		return nil, ErrDuplicateLiveSession
	}
	qr, err := e.Issuer.Issue(params.Amount, params.Currency)
	if err != nil {
		return nil, err
	}
	if err := e.Orders.SetTransactionID(params.OrderID, qr.Fingerprint); err != nil {
		return nil, err
	}
	now := time.Now()
	session := &PaymentSession{
		ID:          uuid.NewString(),
		OrderID:     params.OrderID,
		Fingerprint: qr.Fingerprint,
		Payload:     qr.Payload,
		BillNumber:  qr.BillNumber,
		Amount:      params.Amount,
		Currency:    params.Currency,
		Origin:      types.SESSION_FRESH,
		CreatedAt:   now,
		ExpiresAt:   now.Add(e.SessionTTL),
	}
	if err := e.Sessions.Create(session); err != nil {
		return nil, err
	}
	qrImage, err := utils.QRCodePNGBase64(qr.Payload)
	if err != nil {
		log.Printf("Error rendering QR image for order %d: %s\n", params.OrderID, err.Error())
	}
	return viewOf(session, qrImage), nil
}

// CheckPayment reports the session state. A still-pending session gets one
// on-demand acquirer probe so the storefront does not have to wait for the
// next poll tick.
func (e *Engine) CheckPayment(ctx context.Context, paymentId string) (*PaymentView, error) {
	session, err := e.Sessions.Get(paymentId)
	if err != nil {
		return nil, err
	}
	if !session.Live() {
		return viewOf(session, ""), nil
	}
	cctx, cancel := context.WithTimeout(ctx, e.AcquirerTimeout)
	defer cancel()
	status, err := e.Acquirer.CheckPayment(cctx, session.Fingerprint)
	if err != nil {
		log.Printf("On-demand acquirer check failed for session %s: %s\n", paymentId, err.Error())
		return viewOf(session, ""), nil
	}
	if status == types.ACQUIRER_PAID {
		err := e.Coordinator.PaymentObserved(ctx, session.OrderID, session.ID, session.Fingerprint, types.SOURCE_POLLER)
		if err != nil && !errors.Is(err, ErrAlreadyAdvanced) {
			log.Printf("Completion for order %d via on-demand check: %s\n", session.OrderID, err.Error())
		}
		session, err = e.Sessions.Get(paymentId)
		if err != nil {
			return nil, err
		}
	}
	return viewOf(session, ""), nil
}

// CancelSession withdraws a live QR without touching the order.
func (e *Engine) CancelSession(sessionId string) error {
	return e.Sessions.Transition(sessionId, types.SESSION_PENDING, types.SESSION_CANCELLED)
}

// RegenerateQR replaces the order's QR with a fresh payload under the
// original fingerprint. The old session, if still in memory, is cancelled
// first; when no session survives (restart, eviction) the fingerprint comes
// from the order's pinned transaction id. The acquirer reference never
// changes.
func (e *Engine) RegenerateQR(orderId uint) (*PaymentView, error) {
	order, err := e.Orders.GetOrder(orderId)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != types.PAYMENT_KHQR {
		return nil, ErrOrderNotEligible
	}
	if order.Status != types.ORDER_PENDING {
		return nil, ErrAlreadyAdvanced
	}
	fingerprint := order.TransactionID
	amount := order.TotalAmount
	currency := order.Currency
	prev, err := e.Sessions.ByOrder(orderId)
	if err == nil {
		fingerprint = prev.Fingerprint
		amount = prev.Amount
		currency = prev.Currency
		if prev.Live() {
			err := e.Sessions.Transition(prev.ID, types.SESSION_PENDING, types.SESSION_CANCELLED)
			if err != nil && !errors.Is(err, ErrConcurrentTransition) {
				return nil, err
			}
		}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if fingerprint == "" {
		return nil, ErrNotFound
	}
	qr, err := e.Issuer.Reissue(amount, currency, fingerprint)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	session := &PaymentSession{
		ID:          uuid.NewString(),
		OrderID:     orderId,
		Fingerprint: qr.Fingerprint,
		Payload:     qr.Payload,
		BillNumber:  qr.BillNumber,
		Amount:      amount,
		Currency:    currency,
		Origin:      types.SESSION_REGENERATED,
		CreatedAt:   now,
		ExpiresAt:   now.Add(e.SessionTTL),
	}
	if err := e.Sessions.Create(session); err != nil {
		return nil, err
	}
	qrImage, err := utils.QRCodePNGBase64(qr.Payload)
	if err != nil {
		log.Printf("Error rendering QR image for order %d: %s\n", orderId, err.Error())
	}
	return viewOf(session, qrImage), nil
}

// SettleOffline records payment for orders that never go through the
// acquirer. Cash settles at the counter, pay-on-delivery when the courier
// hands the parcel over.
func (e *Engine) SettleOffline(ctx context.Context, orderId uint, actorId uint) error {
	order, err := e.Orders.GetOrder(orderId)
	if err != nil {
		return err
	}
	if order.PaymentMethod != types.PAYMENT_CASH && order.PaymentMethod != types.PAYMENT_ON_DELIVERY {
		return ErrOrderNotEligible
	}
	txn := utils.DerivedTransactionID(orderId, order.PaymentMethod)
	log.Printf("Settling order %d as %s (by %d)\n", orderId, order.PaymentMethod, actorId)
	return e.Coordinator.PaymentObserved(ctx, orderId, "", txn, types.SOURCE_MANUAL)
}

// CancelOrder runs the customer cancellation path and withdraws any live QR.
func (e *Engine) CancelOrder(ctx context.Context, orderId uint, reason string, notes string) error {
	if err := e.Orders.Cancel(orderId, reason, notes); err != nil {
		return err
	}
	if session, err := e.Sessions.ByOrder(orderId); err == nil && session.Live() {
		serr := e.Sessions.Transition(session.ID, types.SESSION_PENDING, types.SESSION_CANCELLED)
		if serr != nil && !errors.Is(serr, ErrConcurrentTransition) {
			log.Printf("Error cancelling session %s for order %d: %s\n", session.ID, orderId, serr.Error())
		}
	}
	order, err := e.Orders.GetOrder(orderId)
	if err != nil {
		return nil
	}
	eerr := e.Events.Emit(ctx, Event{
		Type:       types.EVENT_ORDER_CANCELLED,
		OrderID:    orderId,
		CustomerID: order.CustomerID,
		Title:      "Order cancelled",
		Body:       fmt.Sprintf("Order #%d was cancelled: %s", orderId, reason),
	})
	if eerr != nil {
		log.Printf("Error emitting cancellation event for order %d: %s\n", orderId, eerr.Error())
	}
	return nil
}

// RejectOrder runs the staff rejection path and withdraws any live QR.
func (e *Engine) RejectOrder(ctx context.Context, orderId uint, staffId uint, reason string) error {
	if err := e.Orders.Reject(orderId, staffId, reason); err != nil {
		return err
	}
	if session, err := e.Sessions.ByOrder(orderId); err == nil && session.Live() {
		serr := e.Sessions.Transition(session.ID, types.SESSION_PENDING, types.SESSION_CANCELLED)
		if serr != nil && !errors.Is(serr, ErrConcurrentTransition) {
			log.Printf("Error cancelling session %s for order %d: %s\n", session.ID, orderId, serr.Error())
		}
	}
	order, err := e.Orders.GetOrder(orderId)
	if err != nil {
		return nil
	}
	eerr := e.Events.Emit(ctx, Event{
		Type:       types.EVENT_ORDER_REJECTED,
		OrderID:    orderId,
		CustomerID: order.CustomerID,
		Title:      "Order rejected",
		Body:       fmt.Sprintf("Order #%d was rejected: %s", orderId, reason),
	})
	if eerr != nil {
		log.Printf("Error emitting rejection event for order %d: %s\n", orderId, eerr.Error())
	}
	return nil
}
