package common

import (
	"context"
	"errors"
	"fmt"
	"log"

	"cshop/src/types"
)

// Coordinator funnels every "payment observed" signal, whatever its origin,
// through one idempotent path. The order row's guarded update decides the
// winner; everything after it is fan-out.
type Coordinator struct {
	orders   OrderStore
	sessions *SessionStore
	carts    CartStore
	events   EventSink
}

func NewCoordinator(orders OrderStore, sessions *SessionStore, carts CartStore, events EventSink) *Coordinator {
	return &Coordinator{orders: orders, sessions: sessions, carts: carts, events: events}
}

// PaymentObserved records a settled payment against the order. Exactly one
// caller per order gets nil; losers get ErrAlreadyAdvanced. A payment landing
// on an order the customer already cancelled raises a refund request instead
// of resurrecting the order.
func (c *Coordinator) PaymentObserved(ctx context.Context, orderId uint, sessionId string, txnId string, source types.CompletionSource) error {
	err := c.orders.MarkPaymentObserved(orderId, txnId)
	if err != nil {
		if errors.Is(err, ErrAlreadyAdvanced) {
			c.handleLostRace(ctx, orderId, txnId, source)
		}
		return err
	}
	log.Printf("Order %d completed via %s with transaction %s\n", orderId, source, txnId)
	if sessionId != "" {
		serr := c.sessions.Transition(sessionId, types.SESSION_PENDING, types.SESSION_COMPLETED)
		if serr != nil && !errors.Is(serr, ErrConcurrentTransition) && !errors.Is(serr, ErrNotFound) {
			log.Printf("Error completing session %s: %s\n", sessionId, serr.Error())
		}
	}
	order, oerr := c.orders.GetOrder(orderId)
	if oerr != nil {
		log.Printf("Error loading order %d after completion: %s\n", orderId, oerr.Error())
		return nil
	}
	if cerr := c.carts.Clear(ctx, order.CustomerID); cerr != nil {
		log.Printf("Error clearing cart for customer %d: %s\n", order.CustomerID, cerr.Error())
	}
	eerr := c.events.Emit(ctx, Event{
		Type:       types.EVENT_PAYMENT_COMPLETED,
		OrderID:    orderId,
		CustomerID: order.CustomerID,
		Title:      "Payment received",
		Body:       fmt.Sprintf("We received your payment of %.2f %s for order #%d.", order.TotalAmount, order.Currency, orderId),
		Payload: types.JSONB{
			"transaction_id": txnId,
			"source":         string(source),
		},
	})
	if eerr != nil {
		log.Printf("Error emitting completion event for order %d: %s\n", orderId, eerr.Error())
	}
	return nil
}

// handleLostRace inspects where the order actually went. Money arriving for a
// cancelled order needs a human to give it back.
func (c *Coordinator) handleLostRace(ctx context.Context, orderId uint, txnId string, source types.CompletionSource) {
	order, err := c.orders.GetOrder(orderId)
	if err != nil {
		log.Printf("Error loading order %d after lost completion race: %s\n", orderId, err.Error())
		return
	}
	if order.Status != types.ORDER_CANCELLED {
		return
	}
	log.Printf("Payment observed for cancelled order %d, requesting refund\n", orderId)
	err = c.events.Emit(ctx, Event{
		Type:       types.EVENT_REFUND_REQUESTED,
		OrderID:    orderId,
		CustomerID: order.CustomerID,
		Title:      "Refund required",
		Body:       fmt.Sprintf("A payment arrived for cancelled order #%d and must be refunded.", orderId),
		Payload: types.JSONB{
			"transaction_id": txnId,
			"source":         string(source),
		},
	})
	if err != nil {
		log.Printf("Error emitting refund event for order %d: %s\n", orderId, err.Error())
	}
}
