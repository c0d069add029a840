package trcsock

import (
	"fmt"
	"sync/atomic"

	"github.com/go-stack/stack"
	"github.com/peterbourgon/trcsock/trcwire"
)

// Context is the trace state for a single thread. All methods are meant to be
// called only by the owning thread. The exception is the shared fallback
// context, which tolerates concurrent use at the cost of accurate nesting.
//
// A nil context is valid, and does nothing.
type Context struct {
	id     ThreadID // immutable
	level  atomic.Uint64
	tracer *Tracer
}

// ThreadID returns the identity of the thread which owns the context.
func (c *Context) ThreadID() ThreadID {
	if c == nil {
		return FallbackThreadID
	}
	return c.id
}

// Level returns the current nesting level.
func (c *Context) Level() uint64 {
	if c == nil {
		return 0
	}
	return c.level.Load()
}

// IsTop returns true if the context isn't inside any scope. Callers can use it
// to avoid logging an event which is already implied by an enclosing scope.
func (c *Context) IsTop() bool {
	return c.Level() == 0
}

// Send a message at the current level.
func (c *Context) Send(msg string) {
	if c == nil || c.tracer == nil {
		return
	}
	c.tracer.emit(c.id, c.level.Load(), msg)
}

// Sendf formats and sends a message at the current level. If the formatted
// message is larger than [trcwire.MaxMessageSize], it's dropped.
func (c *Context) Sendf(format string, args ...any) {
	if c == nil || c.tracer == nil {
		return
	}

	msg := fmt.Sprintf(format, args...)
	if len(msg) > trcwire.MaxMessageSize {
		c.tracer.formatDrops.Add(1)
		return
	}

	c.Send(msg)
}

// Scope sends name as an "enter" marker at the current level, and then
// increments the level. The returned scope must be ended exactly once,
// typically via defer, which restores the level.
//
//	defer tc.Scope("doGetItem").End()
func (c *Context) Scope(name string) Scope {
	if c == nil {
		return Scope{}
	}
	c.Send(name)
	c.level.Add(1)
	return Scope{c: c}
}

// Scopef is like Scope, with a formatted name. If the formatted name is too
// large, the enter marker is dropped, but the level is still incremented.
func (c *Context) Scopef(format string, args ...any) Scope {
	if c == nil {
		return Scope{}
	}
	c.Sendf(format, args...)
	c.level.Add(1)
	return Scope{c: c}
}

// ScopeCaller is like Scope, using the name of the calling function.
func (c *Context) ScopeCaller() Scope {
	if c == nil {
		return Scope{}
	}
	call := stack.Caller(1)
	return c.Scope(fmt.Sprintf("%k.%n", call, call))
}

// Scope represents one level of nesting in a context.
type Scope struct {
	c *Context
}

// End the scope, decrementing the level of the context which opened it. End
// must be called exactly once per scope, on every return path. Ending a scope
// twice, or ending scopes out of order, corrupts the level, and the result is
// undefined.
func (s Scope) End() {
	if s.c == nil {
		return
	}
	s.c.level.Add(^uint64(0))
}
