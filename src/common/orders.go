package common

import (
	"errors"
	"fmt"
	"log"
	"time"

	"cshop/src/db"
	"cshop/src/models"
	"cshop/src/models/scopes"
	"cshop/src/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderStore is the order side of the engine. The completion coordinator,
// the poller and the handlers all talk to orders through this interface so
// tests can swap in a memory fake.
type OrderStore interface {
	PlaceOrder(customerId uint, params *types.CreateOrderRequestBody) (*models.Order, error)
	GetOrder(id uint) (*models.Order, error)
	ListOrders(customerId uint) ([]models.Order, error)
	SetTransactionID(orderId uint, txnId string) error
	MarkPaymentObserved(orderId uint, txnId string) error
	Approve(orderId uint, staffId uint) error
	Reject(orderId uint, staffId uint, reason string) error
	Cancel(orderId uint, reason string, notes string) error
	CancelItems(orderId uint, itemIds []uint, reason string) error
	AttachScreenshot(orderId uint, path string, status types.VerificationStatus) error
}

// OrderGateway implements OrderStore on postgres.
type OrderGateway struct{}

// PlaceOrder creates the order and its item snapshots and reserves stock in
// one transaction. Stock rows are locked and the decrement is guarded, so two
// concurrent checkouts can never drive a product negative.
func (g *OrderGateway) PlaceOrder(customerId uint, params *types.CreateOrderRequestBody) (*models.Order, error) {
	gdb := db.GetDb()
	var order models.Order
	err := gdb.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		order = models.Order{
			CustomerID:     customerId,
			OrderDate:      now,
			Status:         types.ORDER_PENDING,
			ApprovalStatus: types.APPROVAL_PENDING,
			PaymentMethod:  types.PaymentMethod(params.PaymentMethod),
		}
		var total float64
		items := make([]models.OrderItem, 0, len(params.Items))
		for _, v := range params.Items {
			var product models.Product
			if err := tx.
				Clauses(clause.Locking{Strength: "UPDATE"}).
				Scopes(scopes.WithID(v.ProductID)).
				First(&product).
				Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}
			if product.Stock < int(v.Quantity) {
				return &InsufficientStockError{ProductID: product.ID, Available: product.Stock}
			}
			res := tx.
				Model(&models.Product{}).
				Where("id = ? AND stock >= ?", product.ID, v.Quantity).
				UpdateColumn("stock", gorm.Expr("stock - ?", v.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return &InsufficientStockError{ProductID: product.ID, Available: product.Stock}
			}
			items = append(items, models.OrderItem{
				ProductID:          product.ID,
				ProductName:        product.Name,
				ProductDescription: product.Description,
				ProductCategory:    product.Category,
				Quantity:           v.Quantity,
				Price:              product.Price,
				OriginalPrice:      product.Price,
				Type:               types.ITEM_STANDARD,
			})
			total += product.Price * float64(v.Quantity)
		}
		order.TotalAmount = total
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].OrderID = order.ID
		}
		if err := tx.Create(&items).Error; err != nil {
			return err
		}
		orderId := order.ID
		for _, v := range items {
			change := models.InventoryChange{
				ProductID:  v.ProductID,
				Changes:    -int(v.Quantity),
				Reason:     fmt.Sprintf("reserved for order %d", orderId),
				OrderID:    &orderId,
				ChangeDate: now,
			}
			if err := tx.Create(&change).Error; err != nil {
				return err
			}
		}
		order.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (g *OrderGateway) GetOrder(id uint) (*models.Order, error) {
	gdb := db.GetDb()
	var order models.Order
	err := gdb.
		Model(&models.Order{}).
		Scopes(scopes.WithID(id)).
		Preload("Items").
		Preload("Customer").
		First(&order).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (g *OrderGateway) ListOrders(customerId uint) ([]models.Order, error) {
	gdb := db.GetDb()
	var orders []models.Order
	err := gdb.
		Model(&models.Order{}).
		Where(&models.Order{CustomerID: customerId}).
		Preload("Items").
		Order("created_at DESC").
		Limit(50).
		Find(&orders).
		Error
	return orders, err
}

// SetTransactionID pins the acquirer reference on a still-pending order.
func (g *OrderGateway) SetTransactionID(orderId uint, txnId string) error {
	gdb := db.GetDb()
	return gdb.Transaction(func(tx *gorm.DB) error {
		res := tx.
			Model(&models.Order{}).
			Where("id = ? AND status = ?", orderId, types.ORDER_PENDING).
			Update("transaction_id", txnId)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return g.eligibilityError(tx, orderId)
		}
		return nil
	})
}

// MarkPaymentObserved flips a pending order to completed exactly once. The
// guarded update is the whole idempotency story: whichever actor lands first
// wins, everyone else sees ErrAlreadyAdvanced.
func (g *OrderGateway) MarkPaymentObserved(orderId uint, txnId string) error {
	gdb := db.GetDb()
	return gdb.Transaction(func(tx *gorm.DB) error {
		res := tx.
			Model(&models.Order{}).
			Where("id = ? AND status = ?", orderId, types.ORDER_PENDING).
			Updates(map[string]any{
				"status":         types.ORDER_COMPLETED,
				"transaction_id": txnId,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return g.eligibilityError(tx, orderId)
		}
		return nil
	})
}

// Approve confirms a completed order. Approving an already confirmed order is
// a no-op so staff double-clicks stay harmless.
func (g *OrderGateway) Approve(orderId uint, staffId uint) error {
	gdb := db.GetDb()
	return gdb.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.
			Model(&models.Order{}).
			Where("id = ? AND status = ?", orderId, types.ORDER_COMPLETED).
			Updates(map[string]any{
				"status":          types.ORDER_CONFIRMED,
				"approval_status": types.APPROVAL_APPROVED,
				"approved_by":     staffId,
				"approval_date":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var order models.Order
			if err := tx.Scopes(scopes.WithID(orderId)).First(&order).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}
			if order.Status == types.ORDER_CONFIRMED {
				return nil
			}
			return ErrOrderNotEligible
		}
		return nil
	})
}

// Reject refuses an order and puts the reserved stock back.
func (g *OrderGateway) Reject(orderId uint, staffId uint, reason string) error {
	gdb := db.GetDb()
	return gdb.Transaction(func(tx *gorm.DB) error {
		res := tx.
			Model(&models.Order{}).
			Where("id = ? AND status IN (?)", orderId, []types.OrderStatus{
				types.ORDER_PENDING,
				types.ORDER_COMPLETED,
			}).
			Updates(map[string]any{
				"status":              types.ORDER_REJECTED,
				"approval_status":     types.APPROVAL_REJECTED,
				"approved_by":         staffId,
				"cancellation_reason": reason,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return g.eligibilityError(tx, orderId)
		}
		return restoreStock(tx, orderId, fmt.Sprintf("restored after rejecting order %d", orderId))
	})
}

// Cancel voids a pending order at the customer's request and restores stock.
// Orders that already saw a payment cannot be cancelled through this path.
func (g *OrderGateway) Cancel(orderId uint, reason string, notes string) error {
	gdb := db.GetDb()
	return gdb.Transaction(func(tx *gorm.DB) error {
		res := tx.
			Model(&models.Order{}).
			Where("id = ? AND status = ?", orderId, types.ORDER_PENDING).
			Updates(map[string]any{
				"status":              types.ORDER_CANCELLED,
				"cancellation_reason": reason,
				"cancellation_notes":  notes,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return g.eligibilityError(tx, orderId)
		}
		return restoreStock(tx, orderId, fmt.Sprintf("restored after cancelling order %d", orderId))
	})
}

// CancelItems voids a subset of line items on an order that has not reached a
// terminal state, restores their stock and recomputes the total.
func (g *OrderGateway) CancelItems(orderId uint, itemIds []uint, reason string) error {
	gdb := db.GetDb()
	return gdb.Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Scopes(scopes.WithID(orderId)).
			First(&order).
			Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if order.Status.Terminal() {
			return ErrAlreadyAdvanced
		}
		var items []models.OrderItem
		if err := tx.
			Scopes(scopes.WithIDs(itemIds...)).
			Where("order_id = ? AND type = ?", orderId, types.ITEM_STANDARD).
			Find(&items).
			Error; err != nil {
			return err
		}
		if len(items) != len(itemIds) {
			return ErrNotFound
		}
		now := time.Now()
		var removed float64
		for _, v := range items {
			if err := tx.
				Model(&models.OrderItem{}).
				Scopes(scopes.WithID(v.ID)).
				Update("type", types.ITEM_CANCELLED).
				Error; err != nil {
				return err
			}
			if err := tx.
				Model(&models.Product{}).
				Scopes(scopes.WithID(v.ProductID)).
				UpdateColumn("stock", gorm.Expr("stock + ?", v.Quantity)).
				Error; err != nil {
				return err
			}
			change := models.InventoryChange{
				ProductID:  v.ProductID,
				Changes:    int(v.Quantity),
				Reason:     reason,
				OrderID:    &orderId,
				ChangeDate: now,
			}
			if err := tx.Create(&change).Error; err != nil {
				return err
			}
			removed += v.Price * float64(v.Quantity)
		}
		return tx.
			Model(&models.Order{}).
			Scopes(scopes.WithID(orderId)).
			UpdateColumn("total_amount", gorm.Expr("total_amount - ?", removed)).
			Error
	})
}

func (g *OrderGateway) AttachScreenshot(orderId uint, path string, status types.VerificationStatus) error {
	gdb := db.GetDb()
	return gdb.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.
			Model(&models.Order{}).
			Scopes(scopes.WithID(orderId)).
			Updates(map[string]any{
				"payment_screenshot_path":     path,
				"screenshot_uploaded_at":      now,
				"payment_verification_status": status,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// eligibilityError reports why a guarded status update matched no rows.
func (g *OrderGateway) eligibilityError(tx *gorm.DB, orderId uint) error {
	var order models.Order
	if err := tx.Scopes(scopes.WithID(orderId)).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return ErrAlreadyAdvanced
}

// restoreStock returns every non-cancelled line item of the order to
// inventory and writes the matching audit rows.
func restoreStock(tx *gorm.DB, orderId uint, reason string) error {
	var items []models.OrderItem
	if err := tx.
		Where(&models.OrderItem{OrderID: orderId, Type: types.ITEM_STANDARD}).
		Find(&items).
		Error; err != nil {
		return err
	}
	now := time.Now()
	for _, v := range items {
		if err := tx.
			Model(&models.Product{}).
			Scopes(scopes.WithID(v.ProductID)).
			UpdateColumn("stock", gorm.Expr("stock + ?", v.Quantity)).
			Error; err != nil {
			return err
		}
		change := models.InventoryChange{
			ProductID:  v.ProductID,
			Changes:    int(v.Quantity),
			Reason:     reason,
			OrderID:    &orderId,
			ChangeDate: now,
		}
		if err := tx.Create(&change).Error; err != nil {
			return err
		}
	}
	log.Printf("Restored stock for %d items of order %d\n", len(items), orderId)
	return nil
}
