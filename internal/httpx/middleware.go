package httpx

import (
	"log"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/MikeMC777/chili-ordenes/internal/events"
	"github.com/MikeMC777/chili-ordenes/internal/metrics"
)

const ridKey = "rid"

// RequestID propagates X-Request-ID, generating one when absent. The id also
// rides on the request context as the event correlation id.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(ridKey, rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Request = c.Request.WithContext(events.WithCorrelationID(c.Request.Context(), rid))
		c.Next()
	}
}

func RID(c *gin.Context) string { return c.GetString(ridKey) }

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("[http] rid=%s %s %s status=%d dur=%s",
			RID(c), c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// Metrics records request counts and latency per matched route.
func Metrics(m *metrics.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Microseconds()) / 1000)
	}
}
