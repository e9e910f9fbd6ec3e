package httpmiddleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the correlation ID for a request.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "httpmiddleware.request_id"

// RequestID tags every request with a correlation ID. A caller-supplied
// X-Request-ID is kept so scan devices can trace their own submissions;
// otherwise a fresh UUID is assigned. The ID is echoed on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestIDFrom returns the ID assigned to the request, or "" when the
// middleware is not installed.
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
