package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Sentinel errors surfaced by the pool. Callers map both to 503: exhausted
// means every slot stayed busy for the whole acquire timeout, unavailable
// means the backing database refused a connection or failed the liveness
// probe twice in a row.
var (
	ErrPoolExhausted   = errors.New("store: connection pool exhausted")
	ErrPoolUnavailable = errors.New("store: database unavailable")
	ErrPoolClosed      = errors.New("store: pool is closed")
)

// Pool hands out exclusive database connections with a hard upper bound and
// a liveness probe on every acquire. It layers lease accounting on top of
// database/sql so a dead connection is replaced before a caller sees it and
// a broken one is discarded instead of going back to the idle set.
type Pool struct {
	db             *sql.DB
	sem            chan struct{}
	acquireTimeout time.Duration
	log            *slog.Logger

	leased atomic.Int64

	mu     sync.Mutex
	closed bool
}

// NewPool sizes the pool at maxConns concurrent leases. acquireTimeout bounds
// how long Acquire blocks when every slot is taken; zero means wait on the
// caller's context alone.
func NewPool(db *sql.DB, maxConns int, acquireTimeout time.Duration, log *slog.Logger) *Pool {
	if maxConns < 1 {
		maxConns = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		db:             db,
		sem:            make(chan struct{}, maxConns),
		acquireTimeout: acquireTimeout,
		log:            log,
	}
}

// Acquire checks out a probed connection, blocking until a slot frees up or
// the acquire timeout elapses. The caller owns the returned lease and must
// Release it.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	waitCtx := ctx
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}

	select {
	case p.sem <- struct{}{}:
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrPoolExhausted
	}

	conn, err := p.checkout(ctx)
	if err != nil {
		<-p.sem
		return nil, err
	}

	p.leased.Add(1)
	return &Lease{pool: p, conn: conn}, nil
}

// checkout obtains a connection and verifies it is alive. A connection that
// fails the probe is discarded and replaced exactly once before giving up.
func (p *Pool) checkout(ctx context.Context) (*sql.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		conn, err := p.db.Conn(ctx)
		if err != nil {
			lastErr = err
			p.log.Warn("connection checkout failed", "attempt", attempt, "error", err)
			continue
		}
		if err := conn.PingContext(ctx); err != nil {
			lastErr = err
			p.log.Warn("connection probe failed, discarding", "attempt", attempt, "error", err)
			discard(conn)
			continue
		}
		return conn, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrPoolUnavailable, lastErr)
}

// Leased reports how many connections are checked out right now.
func (p *Pool) Leased() int64 { return p.leased.Load() }

// Cap reports the maximum number of concurrent leases.
func (p *Pool) Cap() int { return cap(p.sem) }

// WithConn runs fn on a leased connection and releases it afterwards. An fn
// error that wraps driver.ErrBadConn marks the connection broken so it is
// discarded on release.
func (p *Pool) WithConn(ctx context.Context, fn func(context.Context, *sql.Conn) error) error {
	lease, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()

	if err := fn(ctx, lease.Conn()); err != nil {
		if errors.Is(err, driver.ErrBadConn) {
			lease.MarkBroken()
		}
		return err
	}
	return nil
}

// WithTx runs fn inside a transaction on a leased connection. An fn error
// rolls the transaction back and is returned unchanged.
func (p *Pool) WithTx(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	lease, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()

	tx, err := lease.Conn().BeginTx(ctx, nil)
	if err != nil {
		if errors.Is(err, driver.ErrBadConn) {
			lease.MarkBroken()
		}
		return err
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Close rejects future acquires. Leases already handed out release normally;
// the underlying sql.DB belongs to Store and is closed there.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Lease is an exclusive claim on one pooled connection.
type Lease struct {
	pool   *Pool
	conn   *sql.Conn
	broken atomic.Bool
	done   atomic.Bool
}

// Conn exposes the leased connection.
func (l *Lease) Conn() *sql.Conn { return l.conn }

// MarkBroken tags the connection so Release discards it rather than handing
// it back to the idle set. Call it after an error that leaves connection
// state unknown.
func (l *Lease) MarkBroken() { l.broken.Store(true) }

// Release returns the slot to the pool. The first call wins; any later call
// is a no-op.
func (l *Lease) Release() {
	if !l.done.CompareAndSwap(false, true) {
		return
	}
	if l.broken.Load() {
		discard(l.conn)
	} else {
		_ = l.conn.Close()
	}
	l.pool.leased.Add(-1)
	<-l.pool.sem
}

// discard forces database/sql to drop the underlying driver connection.
// Returning driver.ErrBadConn from Raw closes the connection for good
// instead of parking it in the idle set.
func discard(conn *sql.Conn) {
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = conn.Close()
}
