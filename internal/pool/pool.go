// Package pool provides a bounded pool of live database connections
// shared by the background loops and the request path. The pool owns
// idle connections, hands one to a caller per unit of work, probes
// liveness in a background sweep, and transparently replaces dead
// connections up to the configured maximum.
package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrPoolExhausted is returned when no connection becomes
	// available within the acquire timeout. Callers treat it as
	// transient and back off to their next cycle.
	ErrPoolExhausted = errors.New("pool: exhausted")
	// ErrClosed is returned by Acquire after Close.
	ErrClosed = errors.New("pool: closed")
)

// Kind identifies the storage backend a connection belongs to.
type Kind string

const (
	KindEmbedded  Kind = "sqlite"
	KindNetworked Kind = "postgres"
)

// Conn is the subset of *sql.Conn the repositories need. *sql.Conn
// satisfies it directly; tests substitute fakes.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PingContext(ctx context.Context) error
	Close() error
}

// Factory creates connections against one backend.
type Factory interface {
	Kind() Kind
	Connect(ctx context.Context) (Conn, error)
}

// Config sizes the pool.
type Config struct {
	MinConns            int
	MaxConns            int
	AcquireTimeout      time.Duration
	HealthCheckInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinConns <= 0 {
		c.MinConns = 2
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 10
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 30 * time.Second
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = time.Minute
	}
	return c
}

// Stats is a snapshot of the pool counters.
type Stats struct {
	Created      int64 `json:"created"`
	Reused       int64 `json:"reused"`
	Closed       int64 `json:"closed"`
	Errors       int64 `json:"errors"`
	HealthChecks int64 `json:"health_checks"`
	Size         int   `json:"size"`
	Available    int   `json:"available"`
}

// PooledConn is one live connection checked out of the pool. It is
// owned by exactly one caller between Acquire and Release.
type PooledConn struct {
	conn      Conn
	kind      Kind
	createdAt time.Time
}

func (c *PooledConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.conn.ExecContext(ctx, query, args...)
}

func (c *PooledConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

func (c *PooledConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.conn.QueryRowContext(ctx, query, args...)
}

func (c *PooledConn) PingContext(ctx context.Context) error {
	return c.conn.PingContext(ctx)
}

// Kind reports which backend the connection belongs to.
func (c *PooledConn) Kind() Kind { return c.kind }

// Pool is a bounded set of reusable connections with liveness checks.
// Construct with New and inject it; it is not a package singleton.
type Pool struct {
	factory Factory
	cfg     Config
	log     *zap.Logger

	// slots limits the number of checked-out connections.
	slots chan struct{}

	mu     sync.Mutex
	idle   []*PooledConn
	open   int // connections currently alive, idle or checked out
	closed bool
	stats  Stats

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// New builds the pool and pre-creates MinConns connections. A failure
// to pre-create is logged and tolerated; connections are then created
// lazily on demand.
func New(ctx context.Context, factory Factory, cfg Config, log *zap.Logger) *Pool {
	cfg = cfg.withDefaults()
	p := &Pool{
		factory:   factory,
		cfg:       cfg,
		log:       log,
		slots:     make(chan struct{}, cfg.MaxConns),
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	for i := 0; i < cfg.MaxConns; i++ {
		p.slots <- struct{}{}
	}
	for i := 0; i < cfg.MinConns; i++ {
		if !p.reserve() {
			break
		}
		pc, err := p.dial(ctx)
		if err != nil {
			log.Warn("pool: pre-create connection failed",
				zap.String("backend", string(factory.Kind())), zap.Error(err))
			break
		}
		p.mu.Lock()
		p.idle = append(p.idle, pc)
		p.mu.Unlock()
	}
	go p.sweep()
	p.log.Info("pool: initialized",
		zap.String("backend", string(factory.Kind())),
		zap.Int("min", cfg.MinConns), zap.Int("max", cfg.MaxConns))
	return p
}

// reserve claims capacity for one new connection. Idle, checked-out
// and momentarily-probed connections all count against MaxConns, so
// the pool never holds more live connections than configured.
func (p *Pool) reserve() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open >= p.cfg.MaxConns {
		return false
	}
	p.open++
	return true
}

// dial creates one connection against capacity the caller has already
// reserved; a failure returns the reservation.
func (p *Pool) dial(ctx context.Context) (*PooledConn, error) {
	conn, err := p.factory.Connect(ctx)
	if err != nil {
		p.mu.Lock()
		p.stats.Errors++
		p.open--
		p.mu.Unlock()
		return nil, err
	}
	p.mu.Lock()
	p.stats.Created++
	p.mu.Unlock()
	return &PooledConn{conn: conn, kind: p.factory.Kind(), createdAt: time.Now()}, nil
}

// Acquire returns a live connection, waiting up to the configured
// acquire timeout for capacity. It returns ErrPoolExhausted when the
// pool stays at MaxConns checked out for the whole wait.
func (p *Pool) Acquire(ctx context.Context) (*PooledConn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.mu.Unlock()

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()
	select {
	case <-p.slots:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		p.mu.Lock()
		p.stats.Errors++
		p.mu.Unlock()
		return nil, ErrPoolExhausted
	}

	// Holding a slot: reuse an idle connection if a live one exists,
	// otherwise create one within the live-connection cap.
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			p.slots <- struct{}{}
			return nil, ErrClosed
		}
		var pc *PooledConn
		if n := len(p.idle); n > 0 {
			pc = p.idle[n-1]
			p.idle = p.idle[:n-1]
		}
		p.mu.Unlock()
		if pc != nil {
			if err := pc.conn.PingContext(ctx); err != nil {
				p.discard(pc)
				continue
			}
			p.mu.Lock()
			p.stats.Reused++
			p.mu.Unlock()
			return pc, nil
		}

		if p.reserve() {
			pc, err := p.dial(ctx)
			if err != nil {
				p.slots <- struct{}{}
				return nil, fmt.Errorf("pool: connect: %w", err)
			}
			return pc, nil
		}

		// Nothing idle and the pool is at MaxConns live connections:
		// the sweep has the remaining conns out for probing. Wait for
		// one to come back rather than growing past the cap.
		select {
		case <-ctx.Done():
			p.slots <- struct{}{}
			return nil, ctx.Err()
		case <-timer.C:
			p.mu.Lock()
			p.stats.Errors++
			p.mu.Unlock()
			p.slots <- struct{}{}
			return nil, ErrPoolExhausted
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Release returns a connection after a unit of work. The connection is
// probed first; a failed probe discards it silently so a replacement
// can be created on the next Acquire.
func (p *Pool) Release(pc *PooledConn) {
	if pc == nil {
		return
	}
	defer func() { p.slots <- struct{}{} }()

	probeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	err := pc.conn.PingContext(probeCtx)
	cancel()

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if err != nil || closed {
		p.discard(pc)
		return
	}
	p.mu.Lock()
	p.idle = append(p.idle, pc)
	p.mu.Unlock()
}

// discard closes a connection and decrements the live count.
func (p *Pool) discard(pc *PooledConn) {
	_ = pc.conn.Close()
	p.mu.Lock()
	p.stats.Closed++
	p.open--
	p.mu.Unlock()
}

// sweep periodically probes every idle connection and drops failures.
func (p *Pool) sweep() {
	defer close(p.sweepDone)
	ticker := time.NewTicker(p.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.sweepStop:
			return
		case <-ticker.C:
			p.checkIdle()
		}
	}
}

func (p *Pool) checkIdle() {
	p.mu.Lock()
	p.stats.HealthChecks++
	conns := p.idle
	p.idle = nil
	p.mu.Unlock()

	var alive []*PooledConn
	for _, pc := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := pc.conn.PingContext(ctx)
		cancel()
		if err != nil {
			p.log.Warn("pool: dropping dead idle connection",
				zap.String("backend", string(pc.kind)), zap.Error(err))
			p.discard(pc)
			continue
		}
		alive = append(alive, pc)
	}
	p.mu.Lock()
	p.idle = append(p.idle, alive...)
	p.mu.Unlock()
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Size = p.open
	s.Available = len(p.idle)
	return s
}

// Kind reports the backend the pool was initialized against.
func (p *Pool) Kind() Kind { return p.factory.Kind() }

// Close stops the sweep and closes every idle connection. Connections
// still checked out are closed when released.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	conns := p.idle
	p.idle = nil
	p.mu.Unlock()

	close(p.sweepStop)
	<-p.sweepDone
	for _, pc := range conns {
		p.discard(pc)
	}
	p.log.Info("pool: closed", zap.String("backend", string(p.factory.Kind())))
}
