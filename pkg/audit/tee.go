package audit

import (
	"context"
	"errors"
	"fmt"
)

// Tee sends every event to each of its loggers in order. A failing logger
// does not stop the others; all failures are joined into the returned
// error. Nil entries are skipped.
type Tee []Logger

func (t Tee) Log(ctx context.Context, event *AuditEvent) error {
	var errs []error
	for i, logger := range t {
		if logger == nil {
			continue
		}
		if err := logger.Log(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("audit sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (t Tee) Close() error {
	var errs []error
	for i, logger := range t {
		if logger == nil {
			continue
		}
		if err := logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("audit sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
