// Package handler exposes the HTTP surface of the attendance service.
package handler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/daedalus410/RFID-attendance-system/internal/attendance"
	"github.com/daedalus410/RFID-attendance-system/internal/auth"
	"github.com/daedalus410/RFID-attendance-system/internal/httpmiddleware"
	"github.com/daedalus410/RFID-attendance-system/internal/metrics"
	"github.com/daedalus410/RFID-attendance-system/internal/model"
	"github.com/daedalus410/RFID-attendance-system/internal/store"
)

// HealthProbe reports whether the database answers queries.
// *store.Store implements it.
type HealthProbe interface {
	Version(ctx context.Context) (string, error)
}

// Handler serves the API endpoints.
type Handler struct {
	auth       *auth.Service
	attendance *attendance.Service
	probe      HealthProbe
	stats      *metrics.Collector
	log        *slog.Logger
}

func New(authSvc *auth.Service, attSvc *attendance.Service, probe HealthProbe, stats *metrics.Collector, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{auth: authSvc, attendance: attSvc, probe: probe, stats: stats, log: log}
}

// writeError is the single place errors become response bodies, so driver
// and SQL detail never reaches a client. Pool errors and request-deadline
// expiry surface as 503; anything unclassified is logged with the request
// id and answered with a generic 500.
func (h *Handler) writeError(c *gin.Context, err error) {
	var apiErr *model.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.Is(err, store.ErrPoolExhausted),
		errors.Is(err, store.ErrPoolUnavailable),
		errors.Is(err, store.ErrPoolClosed),
		errors.Is(err, context.DeadlineExceeded):
		apiErr = model.NewServiceUnavailable()
	default:
		h.log.Error("request failed",
			"error", err,
			"path", c.Request.URL.Path,
			"request_id", httpmiddleware.RequestIDFrom(c))
		apiErr = model.NewInternal()
	}
	c.AbortWithStatusJSON(apiErr.Kind.HTTPStatus(), model.ErrorResponse{Error: apiErr})
}
