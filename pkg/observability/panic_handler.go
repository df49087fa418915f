package observability

import (
	"fmt"
	"runtime/debug"
)

// PanicError is a recovered panic value with the stack captured at recovery
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Recovered wraps the result of recover(). It returns nil when nothing
// panicked.
func Recovered(r interface{}) *PanicError {
	if r == nil {
		return nil
	}
	return &PanicError{Value: r, Stack: debug.Stack()}
}

// LogPanic logs p at error level. where names the job, goroutine or route
// that panicked.
func (l *Logger) LogPanic(where string, p *PanicError) {
	l.WithFields(map[string]interface{}{
		"panic":   fmt.Sprint(p.Value),
		"stack":   string(p.Stack),
		"context": where,
	}).Error("PANIC recovered")
}

// RecoverPanic is deferred at the top of background goroutines and
// scheduled jobs. It logs a panic and swallows it.
//
//	defer observability.RecoverPanic(logger, "refresh gauges")
func RecoverPanic(logger *Logger, where string) {
	if p := Recovered(recover()); p != nil {
		logger.LogPanic(where, p)
	}
}

// Go runs fn on a new goroutine guarded by RecoverPanic
func Go(logger *Logger, where string, fn func()) {
	go func() {
		defer RecoverPanic(logger, where)
		fn()
	}()
}
