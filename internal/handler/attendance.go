package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/daedalus410/RFID-attendance-system/internal/model"
)

type recordScanRequest struct {
	RFIDUID string `json:"rfid_uid" binding:"required"`
}

type recordScanResponse struct {
	RecordID  int64     `json:"record_id"`
	UserID    int64     `json:"user_id"`
	UserName  string    `json:"user_name"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordScan appends one attendance record for the scanned tag.
func (h *Handler) RecordScan(c *gin.Context) {
	var req recordScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, model.NewMalformedRequest("rfid_uid is required"))
		return
	}

	rec, err := h.attendance.RecordScan(c.Request.Context(), req.RFIDUID)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Kind == model.KindTagNotRegistered {
			h.stats.ScanRejected()
		}
		h.writeError(c, err)
		return
	}

	h.stats.ScanRecorded()
	c.JSON(http.StatusCreated, recordScanResponse{
		RecordID:  rec.ID,
		UserID:    rec.UserID,
		UserName:  rec.UserName,
		Timestamp: rec.Timestamp,
	})
}

type listResponse struct {
	Count   int                      `json:"count"`
	Records []model.AttendanceRecord `json:"records"`
}

// ListAttendance returns the newest records, newest first. ?limit= may ask
// for fewer than the configured cap; anything else gets the cap.
func (h *Handler) ListAttendance(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	records, err := h.attendance.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if records == nil {
		records = []model.AttendanceRecord{}
	}
	c.JSON(http.StatusOK, listResponse{Count: len(records), Records: records})
}
