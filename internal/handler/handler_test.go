package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/daedalus410/RFID-attendance-system/internal/attendance"
	"github.com/daedalus410/RFID-attendance-system/internal/auth"
	"github.com/daedalus410/RFID-attendance-system/internal/config"
	"github.com/daedalus410/RFID-attendance-system/internal/metrics"
	"github.com/daedalus410/RFID-attendance-system/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// fakeStore backs all three persistence interfaces the HTTP surface
// consumes. Call counters let tests assert which paths never reached it.
type fakeStore struct {
	userByNameFn func(ctx context.Context, name string) (model.User, error)
	userByRFIDFn func(ctx context.Context, uid string) (model.User, error)
	insertFn     func(ctx context.Context, userID int64, at time.Time) (model.AttendanceRecord, error)
	recentFn     func(ctx context.Context, limit int) ([]model.AttendanceRecord, error)
	versionFn    func(ctx context.Context) (string, error)

	lookups atomic.Int32
	inserts atomic.Int32
}

func (f *fakeStore) UserByName(ctx context.Context, name string) (model.User, error) {
	f.lookups.Add(1)
	if f.userByNameFn == nil {
		return model.User{}, model.ErrNotFound
	}
	return f.userByNameFn(ctx, name)
}

func (f *fakeStore) UserByRFID(ctx context.Context, uid string) (model.User, error) {
	f.lookups.Add(1)
	if f.userByRFIDFn == nil {
		return model.User{}, model.ErrNotFound
	}
	return f.userByRFIDFn(ctx, uid)
}

func (f *fakeStore) InsertRecord(ctx context.Context, userID int64, at time.Time) (model.AttendanceRecord, error) {
	f.inserts.Add(1)
	if f.insertFn == nil {
		return model.AttendanceRecord{ID: 1, UserID: userID, Timestamp: at}, nil
	}
	return f.insertFn(ctx, userID, at)
}

func (f *fakeStore) RecentRecords(ctx context.Context, limit int) ([]model.AttendanceRecord, error) {
	if f.recentFn == nil {
		return nil, nil
	}
	return f.recentFn(ctx, limit)
}

func (f *fakeStore) Version(ctx context.Context) (string, error) {
	if f.versionFn == nil {
		return "stub", nil
	}
	return f.versionFn(ctx)
}

type testEnv struct {
	store    *fakeStore
	tokens   *auth.Tokens
	router   *gin.Engine
	registry *prometheus.Registry
}

func newTestEnv(t *testing.T, mutate func(*config.App)) *testEnv {
	t.Helper()

	cfg := config.App{
		Env:            "test",
		AllowedOrigins: []string{"*"},
		ScanAuthMode:   "token",
		ListLimit:      100,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	st := &fakeStore{}
	tokens := auth.NewTokens("test-signing-key", "rfid-attendance", time.Hour)
	log := quietLogger()
	reg := prometheus.NewRegistry()
	col := metrics.NewCollector(reg)

	h := New(
		auth.NewService(st, tokens, log),
		attendance.NewService(st, cfg.ListLimit, log),
		st, col, log,
	)
	router := NewRouter(Deps{
		Cfg:       cfg,
		Log:       log,
		Handler:   h,
		Tokens:    tokens,
		Collector: col,
		Gatherer:  reg,
	})
	return &testEnv{store: st, tokens: tokens, router: router, registry: reg}
}

func (e *testEnv) do(t *testing.T, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) bearer(t *testing.T, userID int64) map[string]string {
	t.Helper()
	token, _, err := e.tokens.Issue(userID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *model.APIError {
	t.Helper()
	var resp model.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error envelope: %v (body %q)", err, w.Body.String())
	}
	if resp.Error == nil {
		t.Fatalf("error envelope missing error object: %q", w.Body.String())
	}
	return resp.Error
}
