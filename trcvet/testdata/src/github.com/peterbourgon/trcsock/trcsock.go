// Stub package for testing
package trcsock

// Context is a per-thread trace context.
type Context struct{}

// Scope is one level of nesting.
type Scope struct{}

// End the scope.
func (Scope) End() {}

// Send a message.
func (*Context) Send(string) {}

// Scope opens a scope.
func (*Context) Scope(string) Scope { return Scope{} }

// Scopef opens a scope with a formatted name.
func (*Context) Scopef(string, ...any) Scope { return Scope{} }

// ScopeCaller opens a scope named after the caller.
func (*Context) ScopeCaller() Scope { return Scope{} }

// Tracer owns contexts.
type Tracer struct{}

// Current returns the calling thread's context.
func (*Tracer) Current() *Context { return &Context{} }
