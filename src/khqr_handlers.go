package main

import (
	"net/http"

	"cshop/src/common"
	"cshop/src/types"

	"github.com/gin-gonic/gin"
)

func khqrHandlers(g *gin.RouterGroup, eng *common.Engine) *gin.RouterGroup {
	g.
		POST("/khqr/create-payment", func(ctx *gin.Context) {
			var body types.CreatePaymentRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			order, err := eng.Orders.GetOrder(body.OrderID)
			if err != nil {
				ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			if order.CustomerID != ctx.GetUint("id") {
				ctx.Status(http.StatusForbidden)
				return
			}
			view, err := eng.CreatePayment(&body)
			if err != nil {
				ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": view})
		}).
		GET("/khqr/check-payment/:payment_id", func(ctx *gin.Context) {
			var params types.PaymentURIParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			view, err := eng.CheckPayment(ctx.Request.Context(), params.PaymentID)
			if err != nil {
				ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": view})
		}).
		POST("/khqr/cancel/:session_id", func(ctx *gin.Context) {
			var params types.SessionURIParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			session, err := eng.Sessions.Get(params.SessionID)
			if err != nil {
				ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			order, err := eng.Orders.GetOrder(session.OrderID)
			if err != nil {
				ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			if order.CustomerID != ctx.GetUint("id") {
				ctx.Status(http.StatusForbidden)
				return
			}
			if err := eng.CancelSession(params.SessionID); err != nil {
				ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": gin.H{"session_id": params.SessionID, "status": types.SESSION_CANCELLED}})
		}).
		POST("/orders/:id/regenerate-qr", func(ctx *gin.Context) {
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
			if order.CustomerID != ctx.GetUint("id") {
				ctx.Status(http.StatusForbidden)
				return
			}
			view, err := eng.RegenerateQR(params.ID)
			if err != nil {
				ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": view})
		})
	return g
}
