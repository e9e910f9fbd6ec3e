package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/daedalus410/RFID-attendance-system/internal/model"
)

// Health is the liveness probe. It answers 200 while the process runs and
// never touches the database.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// HealthDB is the readiness probe. It runs a real query through the pool,
// so an exhausted pool or an unreachable database both fail it.
func (h *Handler) HealthDB(c *gin.Context) {
	version, err := h.probe.Version(c.Request.Context())
	if err != nil {
		h.log.Warn("database health check failed", "error", err)
		h.writeError(c, model.NewServiceUnavailable())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": version,
	})
}
