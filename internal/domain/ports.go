package domain

import (
	"context"
	"time"
)

// TenantReader lists the tenants that have critical rules configured.
type TenantReader interface {
	ListTenantsWithRules(ctx context.Context) ([]Tenant, error)
}

// SubjectRepository reads active subjects and persists their critical flag.
// SetCritical only writes when the stored flag differs and returns
// ErrFlagUnchanged otherwise.
type SubjectRepository interface {
	ListActiveSubjects(ctx context.Context, tenantID string) ([]Subject, error)
	SetCritical(ctx context.Context, subjectID string, critical bool) error
}

// AttendanceReader reads a tenant's attendance records dated in (after, until].
// A nil after means no lower bound.
type AttendanceReader interface {
	ListAttendance(ctx context.Context, tenantID string, after *time.Time, until time.Time) ([]AttendanceRecord, error)
}

// RecipientReader lists the notification configs of a tenant's administrators.
type RecipientReader interface {
	ListRecipients(ctx context.Context, tenantID string) ([]RecipientConfig, error)
}

// Store is everything an evaluation run consumes from persistence.
type Store interface {
	TenantReader
	SubjectRepository
	AttendanceReader
	RecipientReader
}

// Messenger delivers a text message to an opaque recipient handle.
type Messenger interface {
	Send(ctx context.Context, handle, text string) error
}

// TransitionValidator applies a flag event and returns the resulting state.
type TransitionValidator interface {
	Apply(ctx context.Context, current FlagState, event FlagEvent) (FlagState, error)
}
