package main

import (
	"errors"
	"log"
	"net/http"

	"cshop/src/common"
	"cshop/src/db"
	"cshop/src/models"
	"cshop/src/types"

	"github.com/gin-gonic/gin"
)

func orderHandlers(g *gin.RouterGroup, eng *common.Engine) *gin.RouterGroup {
	g.
		POST("/orders", func(ctx *gin.Context) {
			var body types.CreateOrderRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			customerId := ctx.GetUint("id")
			order, err := eng.Orders.PlaceOrder(customerId, &body)
			if err != nil {
				ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			// Cash is collected at the counter, so the order settles right away.
			if order.PaymentMethod == types.PAYMENT_CASH {
				if err := eng.SettleOffline(ctx.Request.Context(), order.ID, customerId); err != nil {
					log.Printf("Error settling cash order %d: %s\n", order.ID, err.Error())
				} else if updated, err := eng.Orders.GetOrder(order.ID); err == nil {
					order = updated
				}
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": order})
		}).
		GET("/orders", func(ctx *gin.Context) {
			customerId := ctx.GetUint("id")
			orders, err := eng.Orders.ListOrders(customerId)
			if err != nil {
				ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": orders, "count": len(orders)})
		}).
		GET("/orders/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			order, err := eng.Orders.GetOrder(params.ID)
			if err != nil {
				ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			role := ctx.GetString("role")
			if order.CustomerID != ctx.GetUint("id") && role != "staff" && role != "admin" {
				ctx.Status(http.StatusForbidden)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": order})
		}).
		POST("/orders/:id/cancel", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var body types.CancelOrderRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			order, err := eng.Orders.GetOrder(params.ID)
			if err != nil {
				ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			if order.CustomerID != ctx.GetUint("id") {
				ctx.Status(http.StatusForbidden)
				return
			}
			if err := eng.CancelOrder(ctx.Request.Context(), params.ID, body.Reason, body.Notes); err != nil {
				ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": gin.H{"order_id": params.ID, "status": types.ORDER_CANCELLED}})
		}).
		POST("/orders/:id/cancel-items", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var body types.CancelItemsRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			order, err := eng.Orders.GetOrder(params.ID)
			if err != nil {
				ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			if order.CustomerID != ctx.GetUint("id") {
				ctx.Status(http.StatusForbidden)
				return
			}
			if err := eng.Orders.CancelItems(params.ID, body.ItemIDs, body.Reason); err != nil {
				ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			updated, err := eng.Orders.GetOrder(params.ID)
			if err != nil {
				ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": updated})
		}).
		GET("/notifications", func(ctx *gin.Context) {
			customerId := ctx.GetUint("id")
			gdb := db.GetDb()
			var notifications []models.Notification
			err := gdb.
				Model(&models.Notification{}).
				Where(&models.Notification{CustomerID: customerId}).
				Order("created_at DESC").
				Limit(50).
				Find(&notifications).
				Error
			if err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": notifications, "count": len(notifications)})
		})
	return g
}

func staffOrderHandlers(g *gin.RouterGroup, eng *common.Engine) *gin.RouterGroup {
	g.
		POST("/orders/:id/approve", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			staffId := ctx.GetUint("id")
			if err := eng.Orders.Approve(params.ID, staffId); err != nil {
				ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": gin.H{"order_id": params.ID, "status": types.ORDER_CONFIRMED}})
		}).
		POST("/orders/:id/reject", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var body types.RejectOrderRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			staffId := ctx.GetUint("id")
			if err := eng.RejectOrder(ctx.Request.Context(), params.ID, staffId, body.Reason); err != nil {
				ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": gin.H{"order_id": params.ID, "status": types.ORDER_REJECTED}})
		}).
		POST("/orders/:id/mark-paid", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			staffId := ctx.GetUint("id")
			err := eng.SettleOffline(ctx.Request.Context(), params.ID, staffId)
			// A repeat click lands after the order already settled; that is
			// still a success from the counter's point of view.
			if err != nil && !errors.Is(err, common.ErrAlreadyAdvanced) {
				ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": gin.H{"order_id": params.ID, "status": types.ORDER_COMPLETED}})
		})
	return g
}
