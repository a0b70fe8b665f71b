package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"cshop/src/db"
	"cshop/src/models"
	"cshop/src/types"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var signingKey = []byte(os.Getenv("JWT_SECRET"))

func signToken(customer *models.Customer) (string, error) {
	claims := &types.Claims{
		Role:     customer.Role,
		Verified: customer.Verified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(int(customer.ID)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(signingKey)
}

func authHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g = g.Group("/auth")
	g.POST("/register", func(ctx *gin.Context) {
		var body types.RegisterCustomerRequestBody
		if err := ctx.ShouldBindJSON(&body); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			ctx.Status(http.StatusInternalServerError)
			return
		}
		customer := models.Customer{
			Name:         body.Name,
			Email:        body.Email,
			Phone:        body.Phone,
			PasswordHash: string(hash),
			Role:         "customer",
		}
		gdb := db.GetDb()
		if err := gdb.Create(&customer).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				ctx.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
				return
			}
			log.Printf("error creating customer: %s\n", err.Error())
			ctx.Status(http.StatusInternalServerError)
			return
		}
		token, err := signToken(&customer)
		if err != nil {
			log.Printf("error signing token for customer [%d]: %s\n", customer.ID, err.Error())
			ctx.Status(http.StatusInternalServerError)
			return
		}
		ctx.JSON(http.StatusCreated, gin.H{"data": customer, "token": token})
	})
	g.POST("/login", func(ctx *gin.Context) {
		var body types.LoginRequestBody
		if err := ctx.ShouldBindJSON(&body); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		gdb := db.GetDb()
		var customer models.Customer
		if err := gdb.
			Model(&models.Customer{}).
			Where(&models.Customer{Email: body.Email}).
			First(&customer).
			Error; err != nil {
			ctx.Status(http.StatusUnauthorized)
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(customer.PasswordHash), []byte(body.Password)); err != nil {
			ctx.Status(http.StatusUnauthorized)
			return
		}
		if err := gdb.
			Model(&models.Customer{}).
			Where("id", customer.ID).
			Update("last_active", time.Now()).
			Error; err != nil {
			log.Printf("error logging in customer [%d]: %s\n", customer.ID, err.Error())
		}
		token, err := signToken(&customer)
		if err != nil {
			log.Printf("error signing token for customer [%d]: %s\n", customer.ID, err.Error())
			ctx.Status(http.StatusInternalServerError)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"data": customer, "token": token})
	})
	return g
}
