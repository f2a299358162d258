package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPRecorder records served requests.
type HTTPRecorder interface {
	RecordHTTPRequest(method, path string, statusCode int, d time.Duration)
}

// Metrics records every request against its route template so label
// cardinality stays bounded. Unrouted requests are labelled "unmatched".
func Metrics(rec HTTPRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		rec.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

//Personal.AI order the ending
