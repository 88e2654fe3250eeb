// Package lifecycle lets a service announce that it has finished starting
// and lets dependents wait for that with a bounded timeout.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Readier is implemented by services that become usable asynchronously.
type Readier interface {
	Ready() <-chan struct{}
}

// Gate is a one-shot readiness signal. The zero value is usable.
type Gate struct {
	once sync.Once
	mu   sync.Mutex
	ch   chan struct{}
}

func (g *Gate) channel() chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ch == nil {
		g.ch = make(chan struct{})
	}
	return g.ch
}

// Ready returns a channel closed once Open has been called.
func (g *Gate) Ready() <-chan struct{} {
	return g.channel()
}

// Open marks the gate ready. Later calls are no-ops.
func (g *Gate) Open() {
	ch := g.channel()
	g.once.Do(func() { close(ch) })
}

// IsOpen reports whether Open has been called.
func (g *Gate) IsOpen() bool {
	select {
	case <-g.Ready():
		return true
	default:
		return false
	}
}

// DependencyTimeoutError is returned when a dependency does not become ready
// in time.
type DependencyTimeoutError struct {
	Dependency string
	Timeout    time.Duration
}

func (e *DependencyTimeoutError) Error() string {
	return fmt.Sprintf("dependency %s not ready after %s", e.Dependency, e.Timeout)
}

// Dependency names a Readier for error reporting.
type Dependency struct {
	Name string
	Readier
}

// WaitFor blocks until every dependency is ready. The first one that misses
// the timeout yields a *DependencyTimeoutError; ctx cancellation returns
// ctx.Err().
func WaitFor(ctx context.Context, timeout time.Duration, deps ...Dependency) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for _, d := range deps {
		select {
		case <-d.Ready():
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return &DependencyTimeoutError{Dependency: d.Name, Timeout: timeout}
		}
	}
	return nil
}
