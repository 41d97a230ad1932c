package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neomorfeo/rollcall/internal/domain"
)

// NotifyGrace bounds the delivery of escalations saved before a tenant was
// aborted.
const NotifyGrace = 15 * time.Second

// TenantResult summarizes one tenant's evaluation.
type TenantResult struct {
	TenantID      string
	Updated       int
	NewlyCritical []domain.Subject
	Notified      int
}

// CriticalService evaluates a tenant's subjects against its critical rules
// and keeps their persisted flag in sync with the verdict.
type CriticalService struct {
	store      domain.Store
	validator  domain.TransitionValidator
	dispatcher *Dispatcher
	now        func() time.Time
}

// NewCriticalService creates a service with the given adapters.
func NewCriticalService(store domain.Store, validator domain.TransitionValidator, dispatcher *Dispatcher) *CriticalService {
	return &CriticalService{
		store:      store,
		validator:  validator,
		dispatcher: dispatcher,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *CriticalService) WithClock(now func() time.Time) *CriticalService {
	s.now = now
	return s
}

// RunTenant evaluates every active subject of the tenant, persists changed
// flags and notifies administrators about subjects that became critical.
//
// A failure to load tenant-wide data aborts the tenant. A failure to persist
// one subject is logged and the remaining subjects are still evaluated. When
// ctx ends mid-loop, escalations already persisted are still dispatched and
// the partial result is returned with the error.
func (s *CriticalService) RunTenant(ctx context.Context, tenant domain.Tenant) (TenantResult, error) {
	result := TenantResult{TenantID: tenant.ID}
	now := s.now()

	rules, ruleErrs := domain.ParseRules(tenant.Rules)
	for _, err := range ruleErrs {
		slog.WarnContext(ctx, "skipping malformed rule", "tenant_id", tenant.ID, "error", err)
	}

	subjects, err := s.store.ListActiveSubjects(ctx, tenant.ID)
	if err != nil {
		return result, fmt.Errorf("loading subjects: %w", err)
	}

	var bySubject map[string][]domain.AttendanceRecord
	if len(rules) > 0 {
		after := domain.FetchWindowStart(rules, tenant, now)
		records, err := s.store.ListAttendance(ctx, tenant.ID, after, now)
		if err != nil {
			return result, fmt.Errorf("loading attendance: %w", err)
		}
		bySubject = domain.GroupBySubject(records)
	}

	var runErr error
	for _, subject := range subjects {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("evaluating subjects: %w", err)
			break
		}

		verdict, _ := domain.EvaluateSubject(tenant, rules, subject, bySubject[subject.ID], now)

		event, changed := domain.EventFor(subject.IsCritical, verdict)
		if !changed {
			continue
		}

		state, err := s.validator.Apply(ctx, domain.FlagStateOf(subject.IsCritical), event)
		if err != nil {
			slog.ErrorContext(ctx, "rejected flag transition",
				"tenant_id", tenant.ID, "subject_id", subject.ID, "event", event, "error", err)
			continue
		}

		critical := state == domain.FlagCritical
		err = s.store.SetCritical(ctx, subject.ID, critical)
		if errors.Is(err, domain.ErrFlagUnchanged) {
			slog.InfoContext(ctx, "critical flag already written",
				"tenant_id", tenant.ID, "subject_id", subject.ID, "critical", critical)
			continue
		}
		if err != nil {
			slog.ErrorContext(ctx, "persisting critical flag failed",
				"tenant_id", tenant.ID, "subject_id", subject.ID, "error", err)
			continue
		}

		result.Updated++
		subject.IsCritical = critical
		if event == domain.EventEscalate {
			result.NewlyCritical = append(result.NewlyCritical, subject)
		}
	}

	if len(result.NewlyCritical) > 0 && s.dispatcher != nil {
		dispatchCtx := ctx
		if runErr != nil {
			// Saved escalations are never reported again; notify them past
			// the tenant deadline.
			var cancel context.CancelFunc
			dispatchCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), NotifyGrace)
			defer cancel()
		}
		notified, err := s.dispatcher.Dispatch(dispatchCtx, tenant, result.NewlyCritical)
		if err != nil {
			slog.ErrorContext(ctx, "dispatching critical notifications failed",
				"tenant_id", tenant.ID, "error", err)
		}
		result.Notified = notified
	}

	if runErr != nil {
		return result, runErr
	}

	slog.InfoContext(ctx, "tenant evaluated",
		"tenant_id", tenant.ID,
		"rules", len(rules),
		"subjects", len(subjects),
		"updated", result.Updated,
		"newly_critical", len(result.NewlyCritical),
		"notified", result.Notified,
	)

	return result, nil
}
