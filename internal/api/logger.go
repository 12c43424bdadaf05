package api

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLogger logs one line per request: status, latency, client IP,
// method and path. Severity tag follows the status code class.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		level := "INFO"
		switch {
		case status >= 500:
			level = "ERROR"
		case status >= 400:
			level = "WARN"
		}
		log.Printf("[%s] %d | %s | %s | %s %s",
			level, status, time.Since(start).Truncate(time.Microsecond),
			c.ClientIP(), c.Request.Method, path)
	}
}
