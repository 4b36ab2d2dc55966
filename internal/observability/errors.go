package observability

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// AggregateErrors joins the non-nil errors, logs them once, and returns the joined error.
// It returns nil when every error is nil.
func AggregateErrors(logger *zap.Logger, operation string, errs []error, fields ...zap.Field) error {
	filtered := make([]error, 0, len(errs))
	messages := make([]string, 0, len(errs))
	for _, err := range errs {
		if err == nil {
			continue
		}
		filtered = append(filtered, err)
		messages = append(messages, err.Error())
	}
	if len(filtered) == 0 {
		return nil
	}
	logFields := append(fields,
		zap.String("operation", operation),
		zap.Int("error_count", len(filtered)),
		zap.Strings("errors", messages),
	)
	Nop(logger).Error("operation errors", logFields...)
	return fmt.Errorf("%s failed: %w", operation, errors.Join(filtered...))
}
