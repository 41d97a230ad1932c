package otel

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/rollcall/internal/domain"
)

const instrumentationName = "github.com/neomorfeo/rollcall/internal/adapter/otel"

// TracingStore wraps a domain.Store with OpenTelemetry tracing.
// Each method creates a span with semantic attributes and records errors.
type TracingStore struct {
	next    domain.Store
	tracer  trace.Tracer
	updated metric.Int64Counter
}

// Compile-time check: TracingStore implements domain.Store.
var _ domain.Store = (*TracingStore)(nil)

// NewTracingStore creates a tracing decorator around the given store.
func NewTracingStore(next domain.Store) *TracingStore {
	updated, _ := otel.Meter(instrumentationName).Int64Counter("rollcall.flags.updated",
		metric.WithDescription("Critical flags written by evaluation runs"),
	)
	return &TracingStore{
		next:    next,
		tracer:  otel.Tracer(instrumentationName),
		updated: updated,
	}
}

func (s *TracingStore) ListTenantsWithRules(ctx context.Context) ([]domain.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "Store.ListTenantsWithRules")
	defer span.End()

	tenants, err := s.next.ListTenantsWithRules(ctx)
	if err != nil {
		recordError(span, err)
	} else {
		span.SetAttributes(attribute.Int("result.count", len(tenants)))
	}
	return tenants, err
}

func (s *TracingStore) ListActiveSubjects(ctx context.Context, tenantID string) ([]domain.Subject, error) {
	ctx, span := s.tracer.Start(ctx, "Store.ListActiveSubjects",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
	defer span.End()

	subjects, err := s.next.ListActiveSubjects(ctx, tenantID)
	if err != nil {
		recordError(span, err)
	} else {
		span.SetAttributes(attribute.Int("result.count", len(subjects)))
	}
	return subjects, err
}

func (s *TracingStore) SetCritical(ctx context.Context, subjectID string, critical bool) error {
	ctx, span := s.tracer.Start(ctx, "Store.SetCritical",
		trace.WithAttributes(
			attribute.String("subject.id", subjectID),
			attribute.Bool("subject.critical", critical),
		),
	)
	defer span.End()

	err := s.next.SetCritical(ctx, subjectID, critical)
	if errors.Is(err, domain.ErrFlagUnchanged) {
		span.SetAttributes(attribute.Bool("subject.unchanged", true))
		return err
	}
	if err != nil {
		recordError(span, err)
		return err
	}
	if s.updated != nil {
		s.updated.Add(ctx, 1, metric.WithAttributes(attribute.Bool("critical", critical)))
	}
	return nil
}

func (s *TracingStore) ListAttendance(ctx context.Context, tenantID string, after *time.Time, until time.Time) ([]domain.AttendanceRecord, error) {
	ctx, span := s.tracer.Start(ctx, "Store.ListAttendance",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("window.until", until.UTC().Format(time.RFC3339)),
		),
	)
	defer span.End()

	if after != nil {
		span.SetAttributes(attribute.String("window.after", after.UTC().Format(time.RFC3339)))
	}

	records, err := s.next.ListAttendance(ctx, tenantID, after, until)
	if err != nil {
		recordError(span, err)
	} else {
		span.SetAttributes(attribute.Int("result.count", len(records)))
	}
	return records, err
}

func (s *TracingStore) ListRecipients(ctx context.Context, tenantID string) ([]domain.RecipientConfig, error) {
	ctx, span := s.tracer.Start(ctx, "Store.ListRecipients",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
	defer span.End()

	recipients, err := s.next.ListRecipients(ctx, tenantID)
	if err != nil {
		recordError(span, err)
	} else {
		span.SetAttributes(attribute.Int("result.count", len(recipients)))
	}
	return recipients, err
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
