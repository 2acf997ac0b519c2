// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pool implements a bounded connection pool for the vector-store
// client, wrapping every acquired connection in a circuit breaker and
// retrying transient acquisition failures with exponential backoff.
package pool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/kadirpekel/hnsc/internal/breaker"
)

// ErrPoolTimeout is returned when acquire's deadline elapses before a
// connection becomes available.
var ErrPoolTimeout = errors.New("pool: acquire timed out")

// Conn is any client the pool manages; Retriever backends (qdrant,
// chromem, pinecone, ...) all satisfy this by wrapping their native client.
type Conn interface {
	// Ping is a cheap liveness probe. Pool itself never calls it: idle
	// connections are handed back out without validation.
	Ping(ctx context.Context) error
	Close() error
}

// Factory creates a new Conn, e.g. by dialing a discovered service
// address.
type Factory func(ctx context.Context) (Conn, error)

// Config bounds the pool's size and retry behavior.
type Config struct {
	Size          int
	MaxRetries    int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	BreakerConfig breaker.Config
}

func (c Config) withDefaults() Config {
	if c.Size <= 0 {
		c.Size = 4
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 50 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 2 * time.Second
	}
	return c
}

// Gauges exposes the pool's live in-use/waiting counts, matching the
// pool.in_use / pool.waiting observability surface.
type Gauges interface {
	SetInUse(n int)
	SetWaiting(n int)
}

type noopGauges struct{}

func (noopGauges) SetInUse(int)   {}
func (noopGauges) SetWaiting(int) {}

// Pool is a bounded, breaker-wrapped set of Conn. The breaker key is fixed
// per Pool (one breaker guards the whole backend, not individual
// connections).
type Pool struct {
	cfg       Config
	factory   Factory
	breaker   *breaker.Breaker
	gauges    Gauges
	now       func() time.Time

	mu       sync.Mutex
	idle     []Conn
	inUse    int
	waiting  int
	created  int
	released chan struct{}
}

// New constructs a Pool backed by factory, using breakerKey to identify
// its circuit breaker within reg.
func New(cfg Config, factory Factory, reg *breaker.Registry, breakerKey string, gauges Gauges) *Pool {
	if gauges == nil {
		gauges = noopGauges{}
	}
	return &Pool{
		cfg:      cfg.withDefaults(),
		factory:  factory,
		breaker:  reg.Get(breakerKey),
		gauges:   gauges,
		now:      time.Now,
		released: make(chan struct{}, 1),
	}
}

// notifyReleased wakes one waiter, if any, without blocking.
func (p *Pool) notifyReleased() {
	select {
	case p.released <- struct{}{}:
	default:
	}
}

// Lease wraps an acquired Conn; callers must call Release exactly once.
type Lease struct {
	Conn Conn
	pool *Pool
}

// Release returns the connection to the pool. Safe to call from any exit
// path (including deferred), and safe to call after the pool has reported
// a failure for this connection.
func (l *Lease) Release() {
	l.pool.release(l.Conn)
}

// Acquire obtains a Conn, retrying transient failures with exponential
// backoff and jitter up to MaxRetries, failing fast with breaker.ErrOpen if
// the backend's breaker is open. Acquire blocks on pool exhaustion until
// deadline.
func (p *Pool) Acquire(ctx context.Context, deadline time.Time) (*Lease, error) {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		conn, err := p.tryAcquire(ctx, deadline)
		if err == nil {
			return &Lease{Conn: conn, pool: p}, nil
		}
		lastErr = err
		if errors.Is(err, breaker.ErrOpen) || errors.Is(err, ErrPoolTimeout) {
			return nil, err
		}
		if attempt == p.cfg.MaxRetries {
			break
		}
		wait := p.backoff(attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("pool: acquire failed after %d attempts: %w", p.cfg.MaxRetries+1, lastErr)
}

func (p *Pool) backoff(attempt int) time.Duration {
	d := p.cfg.BaseBackoff * time.Duration(math.Pow(2, float64(attempt)))
	if d > p.cfg.MaxBackoff {
		d = p.cfg.MaxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	return d/2 + jitter
}

func (p *Pool) tryAcquire(ctx context.Context, deadline time.Time) (Conn, error) {
	if err := p.breaker.Allow(p.now()); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if len(p.idle) > 0 {
		conn := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		p.inUse++
		p.publishGauges()
		p.mu.Unlock()
		p.breaker.Success(p.now())
		return conn, nil
	}
	if p.created < p.cfg.Size {
		p.created++
		p.inUse++
		p.publishGauges()
		p.mu.Unlock()

		conn, err := p.factory(ctx)
		if err != nil {
			p.mu.Lock()
			p.inUse--
			p.created--
			p.publishGauges()
			p.mu.Unlock()
			p.breaker.Failure(p.now())
			return nil, err
		}
		p.breaker.Success(p.now())
		return conn, nil
	}
	p.waiting++
	p.publishGauges()
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.waiting--
		p.publishGauges()
		p.mu.Unlock()
	}()

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrPoolTimeout
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
			return nil, ErrPoolTimeout
		case <-p.released:
			timer.Stop()
		}

		p.mu.Lock()
		if len(p.idle) > 0 {
			conn := p.idle[len(p.idle)-1]
			p.idle = p.idle[:len(p.idle)-1]
			p.inUse++
			p.publishGauges()
			p.mu.Unlock()
			return conn, nil
		}
		p.mu.Unlock()
		// Another waiter claimed the released slot first; keep waiting.
	}
}

// release returns conn to the idle set. It is guaranteed to run on every
// acquire exit path via Lease.Release.
func (p *Pool) release(conn Conn) {
	p.mu.Lock()
	p.inUse--
	p.idle = append(p.idle, conn)
	p.publishGauges()
	p.mu.Unlock()
	p.notifyReleased()
}

// publishGauges must be called with p.mu held.
func (p *Pool) publishGauges() {
	p.gauges.SetInUse(p.inUse)
	p.gauges.SetWaiting(p.waiting)
}

// Close closes every idle connection. In-flight leases are unaffected and
// will be closed by their holder.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, c := range p.idle {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.idle = nil
	return firstErr
}
