// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// The host runtime authenticates the caller and pins the ledger sequence for
// the lifetime of one invocation; middleware stores both here and services
// read them without importing net/http. Tests inject fixed values the same
// way:
//
//	ctx = requestcontext.WithCaller(ctx, addr)
//	ctx = requestcontext.WithSequence(ctx, 600)
package requestcontext

import (
	"context"

	"braza/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	callerKey    struct{}
	requestIDKey struct{}
	sequenceKey  struct{}
)

// WithCaller stores the authenticated caller address.
func WithCaller(ctx context.Context, addr domain.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, addr)
}

// Caller returns the authenticated caller address, or the zero Address when
// the invocation is unauthenticated.
func Caller(ctx context.Context) domain.Address {
	addr, _ := ctx.Value(callerKey{}).(domain.Address)
	return addr
}

// WithRequestID stores the correlation ID for the invocation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the correlation ID, or "" when none was assigned.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithSequence pins the ledger sequence for the invocation. Every read of
// the clock within one invocation observes the same value.
func WithSequence(ctx context.Context, seq domain.Sequence) context.Context {
	return context.WithValue(ctx, sequenceKey{}, seq)
}

// SequenceFrom returns the pinned ledger sequence and whether one was set.
func SequenceFrom(ctx context.Context) (domain.Sequence, bool) {
	seq, ok := ctx.Value(sequenceKey{}).(domain.Sequence)
	return seq, ok
}
