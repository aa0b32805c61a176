package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RecoveryWithLog turns a panic in a handler into a 500 and logs it with
// the stack.
func RecoveryWithLog(logger *log.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = log.StandardLogger()
	}

	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.WithFields(log.Fields{
					"method": c.Request.Method,
					"path":   c.Request.URL.Path,
					"panic":  rec,
					"stack":  string(debug.Stack()),
				}).Error("http.panic.recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(logger *log.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = log.StandardLogger()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("http.request")
			return
		}
		entry.Debug("http.request")
	}
}
