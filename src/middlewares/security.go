package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func SecureHeaders(ctx *gin.Context) {
	ctx.Header("X-Frame-Options", "DENY")
	ctx.Header("X-Content-Type-Options", "nosniff")
	ctx.Header("X-XSS-Protection", "1; mode=block")
	ctx.Header("Referrer-Policy", "strict-origin-when-cross-origin")
	ctx.Next()
}

// RequireStaff gates the approval and settlement endpoints. AuthMiddleware
// must run first so the role is in the context.
func RequireStaff(ctx *gin.Context) {
	role := ctx.GetString("role")
	if role != "staff" && role != "admin" {
		ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "staff access required"})
		return
	}
	ctx.Next()
}
