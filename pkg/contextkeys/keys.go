// Package contextkeys defines typed keys for request-scoped values.
//
// A Key carries the type of the value stored under it, so producers and
// consumers agree on the type without assertions at every call site. Keys
// of different value types never collide, even with the same name.
//
//	var sessionKey = contextkeys.New[*Session]("session")
//
//	ctx = sessionKey.With(ctx, sess)
//	sess, ok := sessionKey.Value(ctx)
//
// Packages that own a value type declare their key next to it (auth,
// rbac, observability and audit do). Plain strings shared by several
// packages live here.
package contextkeys

import "context"

// Key identifies a value of type T stored in a context
type Key[T any] struct {
	name string
}

// New returns a key for values of type T. name only appears in String.
func New[T any](name string) Key[T] {
	return Key[T]{name: name}
}

func (k Key[T]) String() string {
	return "agora context key " + k.name
}

// With returns a copy of ctx holding v under k
func (k Key[T]) With(ctx context.Context, v T) context.Context {
	return context.WithValue(ctx, k, v)
}

// Value returns the value stored under k, if any
func (k Key[T]) Value(ctx context.Context) (T, bool) {
	v, ok := ctx.Value(k).(T)
	return v, ok
}

// Get returns the value stored under k, or the zero value
func (k Key[T]) Get(ctx context.Context) T {
	v, _ := k.Value(ctx)
	return v
}

var (
	// RequestID is set by httputil.RequestIDMiddleware and read by the
	// request logger and the audit trail
	RequestID = New[string]("request_id")

	// UserID is the decimal ID of the signed-in account, set by the session
	// middleware
	UserID = New[string]("user_id")
)
