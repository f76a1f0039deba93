package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/himnu2025-blip/synka-billing/internal/platform/razorpay"
)

var corsAllowHeaders = strings.Join([]string{
	"authorization", "x-client-info", "apikey", "content-type", strings.ToLower(razorpay.HeaderSignature),
}, ", ")

// CORSMiddleware allows any origin and answers preflight requests with 200.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
