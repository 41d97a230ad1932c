package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/rollcall/internal/domain"
)

// TracingMessenger wraps a domain.Messenger with OpenTelemetry tracing and
// delivery counters.
type TracingMessenger struct {
	next   domain.Messenger
	tracer trace.Tracer
	sent   metric.Int64Counter
	failed metric.Int64Counter
}

// Compile-time check: TracingMessenger implements domain.Messenger.
var _ domain.Messenger = (*TracingMessenger)(nil)

// NewTracingMessenger creates a tracing decorator around the given messenger.
func NewTracingMessenger(next domain.Messenger) *TracingMessenger {
	meter := otel.Meter(instrumentationName)
	sent, _ := meter.Int64Counter("rollcall.notifications.sent",
		metric.WithDescription("Critical notifications delivered"),
	)
	failed, _ := meter.Int64Counter("rollcall.notifications.failed",
		metric.WithDescription("Critical notifications rejected by the transport"),
	)
	return &TracingMessenger{
		next:   next,
		tracer: otel.Tracer(instrumentationName),
		sent:   sent,
		failed: failed,
	}
}

// Send records one span per delivery. The handle is not recorded: it
// identifies a person's chat.
func (m *TracingMessenger) Send(ctx context.Context, handle, text string) error {
	ctx, span := m.tracer.Start(ctx, "Messenger.Send")
	defer span.End()

	err := m.next.Send(ctx, handle, text)
	if err != nil {
		recordError(span, err)
		if m.failed != nil {
			m.failed.Add(ctx, 1)
		}
		return err
	}
	if m.sent != nil {
		m.sent.Add(ctx, 1)
	}
	return nil
}
