package main

import (
	"io"
	"net/http"
	"strconv"

	"cshop/src/common"
	"cshop/src/config"
	"cshop/src/types"

	"github.com/gin-gonic/gin"
)

func screenshotHandlers(g *gin.RouterGroup, eng *common.Engine) *gin.RouterGroup {
	g.
		POST("/orders/:id/upload-screenshot", func(ctx *gin.Context) {
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
			fh, err := ctx.FormFile("screenshot")
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "screenshot file is required"})
				return
			}
			if fh.Size > config.MaxScreenshotBytes {
				ctx.JSON(statusFor(common.ErrFileTooLarge), gin.H{"error": common.ErrFileTooLarge.Error()})
				return
			}
			file, err := fh.Open()
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			defer file.Close()
			data, err := io.ReadAll(io.LimitReader(file, config.MaxScreenshotBytes+1))
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			claimedTxn := ctx.PostForm("transaction_id")
			claimedAmount, _ := strconv.ParseFloat(ctx.PostForm("amount"), 64)
			result, err := eng.Screenshots.Submit(ctx.Request.Context(), params.ID, fh.Filename, data, claimedTxn, claimedAmount)
			if err != nil {
				ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": result})
		}).
		GET("/orders/:id/screenshot-url", func(ctx *gin.Context) {
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
			url, err := eng.Screenshots.ViewURL(ctx.Request.Context(), params.ID)
			if err != nil {
				ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": gin.H{"url": url}})
		})
	return g
}
