package orchestration

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func recordError(span trace.Span, description string, err error) {
	recordedErr := fmt.Errorf("%s: %w", description, err)
	span.RecordError(recordedErr)
	span.SetStatus(codes.Error, recordedErr.Error())
}

// withCloseHook derives a context that is also cancelled once closed is.
func withCloseHook(ctx, closed context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(closed, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
