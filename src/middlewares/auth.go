package middlewares

import (
	"log"
	"os"
	"strconv"
	"strings"

	"cshop/src/db"
	"cshop/src/models"
	"cshop/src/types"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var jwtKey = []byte(os.Getenv("JWT_SECRET"))

func AuthMiddleware(ctx *gin.Context) {
	bearerToken := ctx.Request.Header.Get("Authorization")
	if !strings.HasPrefix(bearerToken, "Bearer") {
		ctx.AbortWithStatus(401)
		return
	}
	reqToken := strings.Split(bearerToken, " ")[1]
	if reqToken == "" {
		ctx.AbortWithStatus(401)
		return
	}
	claims := &types.Claims{}
	tkn, err := jwt.ParseWithClaims(reqToken, claims, func(t *jwt.Token) (any, error) {
		return jwtKey, nil
	})
	if err != nil {
		log.Printf("token error: %s\n", err.Error())
		ctx.AbortWithStatus(401)
		return
	}
	if !tkn.Valid {
		ctx.AbortWithStatus(401)
		return
	}

	gdb := db.GetDb()
	var customer models.Customer
	uid, err := strconv.Atoi(claims.Subject)
	if err != nil {
		log.Println("error parsing claims:", err.Error())
		ctx.AbortWithStatus(401)
		return
	}
	gdb.Model(&models.Customer{}).Where(&models.Customer{ID: uint(uid)}).Find(&customer)

	if uint(uid) != customer.ID || customer.ID < 1 {
		ctx.AbortWithStatus(401)
		return
	}
	ctx.Set("email", customer.Email)
	ctx.Set("id", customer.ID)
	ctx.Set("role", customer.Role)
	ctx.Set("verified", customer.Verified)
}
