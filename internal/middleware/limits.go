package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter rejects requests beyond requestsPerSecond with 429. A
// non-positive rate disables the limiter.
func RateLimiter(requestsPerSecond float64, burstSize int) gin.HandlerFunc {
	if requestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burstSize <= 0 {
		burstSize = int(requestsPerSecond) + 1
	}

	limiter := rate.NewLimiter(rate.Limit(requestsPerSecond), burstSize)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			logrus.WithFields(logrus.Fields{
				"request_id": c.GetString(RequestIDKey),
				"client_ip":  c.ClientIP(),
				"path":       c.Request.URL.Path,
				"user_agent": c.Request.UserAgent(),
			}).Warn("Rate limit exceeded")

			c.String(http.StatusTooManyRequests,
				"Too many requests. Limit: %.1f requests per second", requestsPerSecond)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequestSizeLimit rejects bodies whose declared length exceeds maxSize with
// 413 and caps the rest, so a chunked body fails once it grows past the
// limit. A maxSize of 0 disables the check.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxSize <= 0 || c.Request.Body == nil || c.Request.Body == http.NoBody {
			c.Next()
			return
		}

		if c.Request.ContentLength > maxSize {
			c.String(http.StatusRequestEntityTooLarge,
				"Received content-length of %d, but only accept up to %d bytes.", c.Request.ContentLength, maxSize)
			c.Abort()
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}
