package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path"
	"regexp"
	"strings"
	"syscall"

	"cshop/src/boot"
	"cshop/src/common"
	"cshop/src/config"
	"cshop/src/middlewares"
	"cshop/src/utils"

	"github.com/covalenthq/lumberjack"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	_ "github.com/joho/godotenv/autoload"
)

const apiPrefix string = "/api/v1"

// khqrCurrencyValidatorFunc accepts the two currencies the acquirer settles.
func khqrCurrencyValidatorFunc(fl validator.FieldLevel) bool {
	currency := strings.ToUpper(fl.Field().String())
	return currency == "USD" || currency == "KHR"
}

func setupRouter() *gin.Engine {
	router := gin.Default()
	router.Use(middlewares.SecureHeaders)
	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, "ok")
	})
	return router
}

func registerRoutes(router *gin.Engine, eng *common.Engine) {
	public := router.Group(apiPrefix)
	{
		public = authHandlers(public)
	}

	authorized := router.Group(apiPrefix)
	authorized.Use(middlewares.AuthMiddleware)
	{
		authorized = orderHandlers(authorized, eng)
		authorized = khqrHandlers(authorized, eng)
		authorized = screenshotHandlers(authorized, eng)
	}

	staff := router.Group(apiPrefix)
	staff.Use(middlewares.AuthMiddleware, middlewares.RequireStaff)
	{
		staff = staffOrderHandlers(staff, eng)
	}
}

func initLogger() {
	cwd, _ := os.Getwd()
	serverLogs := path.Join(cwd, "logs", "server.log")
	apiLogs := path.Join(cwd, "logs", "api.log")
	gin.ForceConsoleColor()

	f, _ := os.Create(apiLogs)
	gin.DefaultWriter = io.MultiWriter(f, os.Stdout)
	log.SetOutput(&lumberjack.Logger{
		Filename:   serverLogs,
		MaxSize:    500,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	})
}

func main() {
	apiEnv := os.Getenv("API_ENV")
	if apiEnv == "local" {
		cwd, _ := os.Getwd()
		if err := godotenv.Load(path.Join(cwd, ".env")); err != nil {
			panic(err)
		}
	}
	if utils.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	initLogger()

	if err := config.GetMerchantProfile().Validate(); err != nil {
		log.Fatalf("Invalid merchant configuration: %s\n", err.Error())
	}

	boot.InitDb()
	eng, err := boot.InitEngine()
	if err != nil {
		log.Fatalf("Error initializing payment engine: %s\n", err.Error())
	}
	boot.StartBackground(eng)

	router := setupRouter()

	appHost := os.Getenv("APP_HOST")
	if apiEnv == "local" {
		router.Use(cors.Default())
	} else {
		cc := cors.DefaultConfig()
		cc.AllowMethods = append(cc.AllowMethods, "GET", "POST", "PATCH", "PUT", "DELETE", "HEAD")
		cc.AllowHeaders = append(cc.AllowHeaders, "Origin", "Authorization")
		cc.AllowOriginFunc = func(origin string) bool {
			match, _ := regexp.MatchString(appHost, origin)
			return match
		}
		cc.AllowCredentials = true
		cc.AllowAllOrigins = false
		router.Use(cors.New(cc))
	}

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("khqrcurrency", khqrCurrencyValidatorFunc)
	}

	registerRoutes(router, eng)

	srv := &http.Server{
		Addr:    ":9090",
		Handler: router,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Error starting server: %s\n", err.Error())
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), config.DrainTimeout())
	defer cancel()
	boot.StopBackground(ctx, eng)
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Error on server shutdown: %s\n", err.Error())
	}
	log.Println("Server stopped")
}
