package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// The stub driver returns connections whose failure behavior is scripted per
// DSN, so pool acquire/probe/discard paths can be exercised without a real
// database.

type stubDriver struct{}

var stubBackends sync.Map // dsn -> *stubBackend

func init() { sql.Register("poolstub", stubDriver{}) }

func (stubDriver) Open(dsn string) (driver.Conn, error) {
	v, ok := stubBackends.Load(dsn)
	if !ok {
		return nil, fmt.Errorf("no stub backend registered for %q", dsn)
	}
	be := v.(*stubBackend)
	if err := be.nextOpenErr(); err != nil {
		return nil, err
	}
	be.opens.Add(1)
	return &stubConn{be: be}, nil
}

type stubBackend struct {
	mu        sync.Mutex
	failOpens int
	failPings int

	opens     atomic.Int32
	discards  atomic.Int32
	commits   atomic.Int32
	rollbacks atomic.Int32
}

func (b *stubBackend) script(failOpens, failPings int) {
	b.mu.Lock()
	b.failOpens, b.failPings = failOpens, failPings
	b.mu.Unlock()
}

func (b *stubBackend) nextOpenErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failOpens > 0 {
		b.failOpens--
		return errors.New("stub: connection refused")
	}
	return nil
}

func (b *stubBackend) nextPingErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPings > 0 {
		b.failPings--
		return errors.New("stub: ping failed")
	}
	return nil
}

type stubConn struct{ be *stubBackend }

func (c *stubConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("stub: prepare unsupported")
}
func (c *stubConn) Close() error                   { c.be.discards.Add(1); return nil }
func (c *stubConn) Begin() (driver.Tx, error)      { return stubTx{be: c.be}, nil }
func (c *stubConn) Ping(ctx context.Context) error { return c.be.nextPingErr() }

type stubTx struct{ be *stubBackend }

func (t stubTx) Commit() error   { t.be.commits.Add(1); return nil }
func (t stubTx) Rollback() error { t.be.rollbacks.Add(1); return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newStubPool(t *testing.T, maxConns int, acquireTimeout time.Duration) (*Pool, *stubBackend) {
	t.Helper()
	be := &stubBackend{}
	dsn := t.Name()
	stubBackends.Store(dsn, be)
	t.Cleanup(func() { stubBackends.Delete(dsn) })

	db, err := sql.Open("poolstub", dsn)
	if err != nil {
		t.Fatalf("open stub db: %v", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	t.Cleanup(func() { db.Close() })

	return NewPool(db, maxConns, acquireTimeout, quietLogger()), be
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	pool, be := newStubPool(t, 2, time.Second)

	lease, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if lease.Conn() == nil {
		t.Fatal("lease has nil conn")
	}
	if got := pool.Leased(); got != 1 {
		t.Errorf("Leased = %d, want 1", got)
	}

	lease.Release()
	if got := pool.Leased(); got != 0 {
		t.Errorf("Leased after release = %d, want 0", got)
	}

	// Second release is a no-op, not a double free.
	lease.Release()
	if got := pool.Leased(); got != 0 {
		t.Errorf("Leased after double release = %d, want 0", got)
	}
	if got := be.discards.Load(); got != 0 {
		t.Errorf("discards = %d, want 0 for healthy release", got)
	}
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	pool, _ := newStubPool(t, 1, 5*time.Second)

	first, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	unblocked := make(chan error, 1)
	go func() {
		lease, err := pool.Acquire(context.Background())
		if err == nil {
			lease.Release()
		}
		unblocked <- err
	}()

	select {
	case err := <-unblocked:
		t.Fatalf("second Acquire returned before release: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	first.Release()

	select {
	case err := <-unblocked:
		if err != nil {
			t.Fatalf("second Acquire after release: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second Acquire did not unblock after release")
	}
}

func TestAcquireExhaustedAfterTimeout(t *testing.T) {
	pool, _ := newStubPool(t, 1, 50*time.Millisecond)

	lease, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lease.Release()

	_, err = pool.Acquire(context.Background())
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("err = %v, want ErrPoolExhausted", err)
	}
	if got := pool.Leased(); got != 1 {
		t.Errorf("Leased = %d, want 1", got)
	}
}

func TestAcquireHonorsCallerContext(t *testing.T) {
	pool, _ := newStubPool(t, 1, 5*time.Second)

	lease, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lease.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = pool.Acquire(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestProbeFailureRetriesOnce(t *testing.T) {
	pool, be := newStubPool(t, 2, time.Second)
	be.script(0, 1)

	lease, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire with one bad probe: %v", err)
	}
	defer lease.Release()

	if got := be.opens.Load(); got != 2 {
		t.Errorf("opens = %d, want 2 (bad conn replaced)", got)
	}
	if got := be.discards.Load(); got != 1 {
		t.Errorf("discards = %d, want 1", got)
	}
}

func TestProbeFailureTwiceIsUnavailable(t *testing.T) {
	pool, be := newStubPool(t, 2, time.Second)
	be.script(0, 2)

	_, err := pool.Acquire(context.Background())
	if !errors.Is(err, ErrPoolUnavailable) {
		t.Fatalf("err = %v, want ErrPoolUnavailable", err)
	}
	if got := be.discards.Load(); got != 2 {
		t.Errorf("discards = %d, want 2", got)
	}
	if got := pool.Leased(); got != 0 {
		t.Errorf("Leased = %d, want 0 after failed acquire", got)
	}

	// The slot freed up and the backend recovered, so the next acquire works.
	be.script(0, 0)
	lease, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after recovery: %v", err)
	}
	lease.Release()
}

func TestConnectFailureIsUnavailable(t *testing.T) {
	pool, be := newStubPool(t, 2, time.Second)
	be.script(2, 0)

	_, err := pool.Acquire(context.Background())
	if !errors.Is(err, ErrPoolUnavailable) {
		t.Fatalf("err = %v, want ErrPoolUnavailable", err)
	}
	if got := be.opens.Load(); got != 0 {
		t.Errorf("opens = %d, want 0", got)
	}
}

func TestMarkBrokenDiscardsConnection(t *testing.T) {
	pool, be := newStubPool(t, 2, time.Second)

	lease, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	lease.MarkBroken()
	lease.Release()

	if got := be.discards.Load(); got != 1 {
		t.Errorf("discards = %d, want 1 for broken lease", got)
	}
	if got := pool.Leased(); got != 0 {
		t.Errorf("Leased = %d, want 0", got)
	}

	// The discarded connection must not be handed out again.
	lease, err = pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after discard: %v", err)
	}
	defer lease.Release()
	if got := be.opens.Load(); got != 2 {
		t.Errorf("opens = %d, want 2 (fresh connection)", got)
	}
}

func TestHealthyReleaseReusesConnection(t *testing.T) {
	pool, be := newStubPool(t, 2, time.Second)

	lease, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	lease.Release()

	lease, err = pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	defer lease.Release()

	if got := be.opens.Load(); got != 1 {
		t.Errorf("opens = %d, want 1 (idle connection reused)", got)
	}
}

func TestWithConnReleasesOnError(t *testing.T) {
	pool, be := newStubPool(t, 2, time.Second)
	boom := errors.New("boom")

	err := pool.WithConn(context.Background(), func(ctx context.Context, conn *sql.Conn) error {
		if conn == nil {
			t.Fatal("fn got nil conn")
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if got := pool.Leased(); got != 0 {
		t.Errorf("Leased = %d, want 0", got)
	}
	if got := be.discards.Load(); got != 0 {
		t.Errorf("discards = %d, want 0 for plain query error", got)
	}
}

func TestWithConnDiscardsOnBadConn(t *testing.T) {
	pool, be := newStubPool(t, 2, time.Second)

	err := pool.WithConn(context.Background(), func(ctx context.Context, conn *sql.Conn) error {
		return fmt.Errorf("exec: %w", driver.ErrBadConn)
	})
	if !errors.Is(err, driver.ErrBadConn) {
		t.Fatalf("err = %v, want wrapped ErrBadConn", err)
	}
	if got := be.discards.Load(); got != 1 {
		t.Errorf("discards = %d, want 1", got)
	}
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	pool, be := newStubPool(t, 2, time.Second)

	err := pool.WithTx(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
	if got := be.commits.Load(); got != 1 {
		t.Errorf("commits = %d, want 1", got)
	}

	boom := errors.New("boom")
	err = pool.WithTx(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if got := be.rollbacks.Load(); got != 1 {
		t.Errorf("rollbacks = %d, want 1", got)
	}
	if got := pool.Leased(); got != 0 {
		t.Errorf("Leased = %d, want 0", got)
	}
}

func TestClosedPoolRejectsAcquire(t *testing.T) {
	pool, _ := newStubPool(t, 1, time.Second)
	pool.Close()

	_, err := pool.Acquire(context.Background())
	if !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("err = %v, want ErrPoolClosed", err)
	}
}

func TestConcurrentLeasesNeverExceedCap(t *testing.T) {
	const maxLeases = 4
	pool, _ := newStubPool(t, maxLeases, 5*time.Second)

	var peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				lease, err := pool.Acquire(context.Background())
				if err != nil {
					t.Errorf("Acquire: %v", err)
					return
				}
				n := pool.Leased()
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				lease.Release()
			}
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > maxLeases {
		t.Errorf("peak leased = %d, want <= %d", got, maxLeases)
	}
	if got := pool.Leased(); got != 0 {
		t.Errorf("Leased after drain = %d, want 0", got)
	}
}
