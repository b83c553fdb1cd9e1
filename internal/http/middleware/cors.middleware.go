package middleware

import (
	"slices"

	"github.com/gin-gonic/gin"
)

// CORSMiddleware allows any origin in development and only allowedOrigins
// in production.
func CORSMiddleware(production bool, allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if production {
			origin := c.Request.Header.Get("Origin")
			if slices.Contains(allowedOrigins, origin) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			}
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
