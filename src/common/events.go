package common

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"cshop/src/db"
	"cshop/src/lib"
	"cshop/src/models"
	"cshop/src/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const paymentEventsTopic = "payment-events"

// Event is one order lifecycle fact fanned out to notifications, the message
// queue and email.
type Event struct {
	Type       types.EventType
	OrderID    uint
	CustomerID uint
	Title      string
	Body       string
	Payload    types.JSONB
}

type EventSink interface {
	Emit(ctx context.Context, evt Event) error
}

// NotificationEvents delivers events at most once per (order, type). A redis
// SETNX guards the hot path and the unique index on notifications backs it up
// when redis is cold.
type NotificationEvents struct{}

func (n *NotificationEvents) Emit(ctx context.Context, evt Event) error {
	if !n.first(ctx, evt) {
		log.Printf("Skipping duplicate event %s for order %d\n", evt.Type, evt.OrderID)
		return nil
	}
	gdb := db.GetDb()
	orderId := evt.OrderID
	err := gdb.Transaction(func(tx *gorm.DB) error {
		notification := models.Notification{
			CustomerID: evt.CustomerID,
			OrderID:    &orderId,
			EventType:  evt.Type,
			Title:      evt.Title,
			Body:       evt.Body,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "event_type"}},
			DoNothing: true,
		}).Create(&notification).Error
	})
	if err != nil {
		log.Printf("Error recording notification for order %d: %s\n", evt.OrderID, err.Error())
		return err
	}
	payload := types.JSONB{
		"type":        string(evt.Type),
		"order_id":    evt.OrderID,
		"customer_id": evt.CustomerID,
	}
	for k, v := range evt.Payload {
		payload[k] = v
	}
	go func() {
		if err := lib.KafkaProduceMessage(paymentEventsTopic, payload); err != nil {
			log.Printf("Error producing event for order %d: %s\n", evt.OrderID, err.Error())
		}
	}()
	go n.sendMail(evt)
	return nil
}

func (n *NotificationEvents) first(ctx context.Context, evt Event) bool {
	rd := lib.GetRedisClient()
	if rd == nil {
		return true
	}
	key := fmt.Sprintf("evt:%d:%s", evt.OrderID, evt.Type)
	ok, err := rd.SetNX(ctx, key, time.Now().Unix(), 24*time.Hour).Result()
	if err != nil {
		log.Printf("Error on event dedupe for %s: %s\n", key, err.Error())
		return true
	}
	return ok
}

func (n *NotificationEvents) sendMail(evt Event) {
	var customer models.Customer
	gdb := db.GetDb()
	if err := gdb.First(&customer, evt.CustomerID).Error; err != nil {
		log.Printf("Error loading customer %d for event mail: %s\n", evt.CustomerID, err.Error())
		return
	}
	if customer.Email == "" {
		return
	}
	err := lib.SendMail(&lib.SendMailInput{
		From:     os.Getenv("MAIL_FROM"),
		FromName: os.Getenv("MERCHANT_NAME"),
		To:       []string{customer.Email},
		Subject:  evt.Title,
		Body:     evt.Body,
	})
	if err != nil {
		log.Printf("Error sending event mail to customer %d: %s\n", evt.CustomerID, err.Error())
	}
}
