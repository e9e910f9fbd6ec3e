package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestTimeoutBoundsRequestContext(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(20 * time.Millisecond))
	r.GET("/slow", func(c *gin.Context) {
		select {
		case <-c.Request.Context().Done():
			if err := c.Request.Context().Err(); err != context.DeadlineExceeded {
				t.Errorf("context error = %v, want DeadlineExceeded", err)
			}
		case <-time.After(time.Second):
			t.Error("request context never expired")
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))
}

func TestTimeoutZeroLeavesContextUnbounded(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(0))
	r.GET("/ping", func(c *gin.Context) {
		if _, ok := c.Request.Context().Deadline(); ok {
			t.Error("context has a deadline although the timeout is disabled")
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
}
