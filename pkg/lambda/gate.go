package lambda

import (
	"context"
	"sync"
	"time"
)

// InitFunc prepares the application once per process.
type InitFunc func(ctx context.Context) error

// Gate runs an InitFunc exactly once and makes every invocation wait for it.
// The first caller starts initialization; later callers reuse the result,
// including a failure.
type Gate struct {
	init     InitFunc
	once     sync.Once
	done     chan struct{}
	err      error
	mu       sync.RWMutex
	readyAt  time.Time
	lastUsed time.Time
}

// NewGate creates a gate around fn. A nil fn completes immediately.
func NewGate(fn InitFunc) *Gate {
	return &Gate{
		init: fn,
		done: make(chan struct{}),
	}
}

// Wait blocks until initialization has finished or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	g.once.Do(func() {
		go g.run()
	})

	select {
	case <-g.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	g.mu.Lock()
	g.lastUsed = time.Now()
	g.mu.Unlock()

	return g.err
}

func (g *Gate) run() {
	defer close(g.done)

	if g.init == nil {
		g.markReady()
		return
	}

	// Initialization outlives the invocation that happened to trigger it.
	if err := g.init(context.Background()); err != nil {
		g.err = err
		return
	}
	g.markReady()
}

func (g *Gate) markReady() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.readyAt = time.Now()
	g.lastUsed = g.readyAt
}

// Ready reports whether initialization completed successfully.
func (g *Gate) Ready() bool {
	select {
	case <-g.done:
		return g.err == nil
	default:
		return false
	}
}

// IsHealthy reports whether the gate is ready and was used within maxIdle.
func (g *Gate) IsHealthy(maxIdle time.Duration) bool {
	if !g.Ready() {
		return false
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	return time.Since(g.lastUsed) < maxIdle
}
