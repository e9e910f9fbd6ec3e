package attendance

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/daedalus410/RFID-attendance-system/internal/model"
)

// Gateway is the persistence surface the scan flow uses. *Repository
// implements it; tests substitute call-counting fakes.
type Gateway interface {
	UserByRFID(ctx context.Context, uid string) (model.User, error)
	InsertRecord(ctx context.Context, userID int64, at time.Time) (model.AttendanceRecord, error)
	RecentRecords(ctx context.Context, limit int) ([]model.AttendanceRecord, error)
}

// Service validates scans against the enrolled users and appends records.
type Service struct {
	gw        Gateway
	listLimit int
	log       *slog.Logger
}

// NewService wires the scan flow. listLimit caps ListRecent; non-positive
// falls back to 100.
func NewService(gw Gateway, listLimit int, log *slog.Logger) *Service {
	if listLimit <= 0 {
		listLimit = 100
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{gw: gw, listLimit: listLimit, log: log}
}

// RecordScan resolves the tag to its user and appends one attendance record.
// An unenrolled tag fails with TagNotRegistered before any insert; nothing
// is written on that path.
func (s *Service) RecordScan(ctx context.Context, rfidUID string) (model.AttendanceRecord, error) {
	user, err := s.gw.UserByRFID(ctx, rfidUID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			s.log.Info("scan rejected", "uid", rfidUID)
			return model.AttendanceRecord{}, model.NewTagNotRegistered(rfidUID)
		}
		return model.AttendanceRecord{}, err
	}

	rec, err := s.gw.InsertRecord(ctx, user.ID, time.Now().UTC())
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	rec.UserName = user.Name

	s.log.Info("scan recorded", "record_id", rec.ID, "user_id", user.ID)
	return rec, nil
}

// ListRecent returns the newest records. A non-positive or oversized limit
// falls back to the configured cap.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]model.AttendanceRecord, error) {
	if limit <= 0 || limit > s.listLimit {
		limit = s.listLimit
	}
	return s.gw.RecentRecords(ctx, limit)
}
