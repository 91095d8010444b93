package tasks

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type panicError struct {
	value any
}

func (e panicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.value)
}

func traceAttrs(attempt int, err error) []trace.EventOption {
	return []trace.EventOption{trace.WithAttributes(
		attribute.Int("attempt", attempt),
		attribute.String("error", err.Error()),
	)}
}
