package scopes

import (
	"github.com/peterbourgon/trcsock"
)

// ===== SHOULD REPORT =====

func badDiscarded(tc *trcsock.Context) {
	tc.Scope("discarded") // want `result of Scope is discarded, so the scope is never ended`
}

func badDiscardedf(tc *trcsock.Context) {
	tc.Scopef("discarded %d", 1) // want `result of Scopef is discarded, so the scope is never ended`
}

func badDiscardedCaller(tr *trcsock.Tracer) {
	tr.Current().ScopeCaller() // want `result of ScopeCaller is discarded, so the scope is never ended`
}

func badBlank(tc *trcsock.Context) {
	_ = tc.Scope("blank") // want `result of Scope is assigned to _, so the scope is never ended`
}

func badBlankMulti(tc *trcsock.Context) {
	x, _ := 1, tc.Scope("blank") // want `result of Scope is assigned to _, so the scope is never ended`
	_ = x
}

func badDeferred(tc *trcsock.Context) {
	defer tc.Scope("deferred") // want `deferred Scope opens a scope on return; defer Scope.End\(\) instead`
}

func badHelper(tc *trcsock.Context) {
	open(tc) // want `result of open is discarded, so the scope is never ended`
}

func open(tc *trcsock.Context) trcsock.Scope {
	return tc.Scope("helper")
}

// ===== SHOULD NOT REPORT =====

func goodDeferEnd(tc *trcsock.Context) {
	defer tc.Scope("ok").End()
	tc.Send("inside")
}

func goodExplicitEnd(tc *trcsock.Context) {
	s := tc.Scopef("ok %d", 1)
	tc.Send("inside")
	s.End()
}

func goodReturned(tc *trcsock.Context) trcsock.Scope {
	return tc.ScopeCaller()
}

func goodIgnored(tc *trcsock.Context) {
	//trcvet:ignore
	tc.Scope("ignored on purpose")
	tc.Scope("ignored on the same line") // trcvet:ignore
}
