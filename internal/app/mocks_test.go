package app_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/neomorfeo/rollcall/internal/domain"
)

// --- Mocks ---

type mockStore struct {
	mu          sync.Mutex
	tenants     []domain.Tenant
	subjects    map[string][]domain.Subject
	attendance  map[string][]domain.AttendanceRecord
	recipients  map[string][]domain.RecipientConfig
	writes      int
	failWrites  map[string]bool
	failLoad    map[string]bool
	failTenants bool
	slow        map[string]time.Duration
	// preempted flips a subject's stored flag right before the write lands,
	// as a concurrent run would.
	preempted map[string]bool
}

func newMockStore() *mockStore {
	return &mockStore{
		subjects:   make(map[string][]domain.Subject),
		attendance: make(map[string][]domain.AttendanceRecord),
		recipients: make(map[string][]domain.RecipientConfig),
		failWrites: make(map[string]bool),
		failLoad:   make(map[string]bool),
		slow:       make(map[string]time.Duration),
		preempted:  make(map[string]bool),
	}
}

func (m *mockStore) ListTenantsWithRules(_ context.Context) ([]domain.Tenant, error) {
	if m.failTenants {
		return nil, errors.New("store unavailable")
	}
	return m.tenants, nil
}

func (m *mockStore) ListActiveSubjects(ctx context.Context, tenantID string) ([]domain.Subject, error) {
	if d := m.slow[tenantID]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.failLoad[tenantID] {
		return nil, errors.New("subjects unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Subject, len(m.subjects[tenantID]))
	copy(out, m.subjects[tenantID])
	return out, nil
}

func (m *mockStore) SetCritical(_ context.Context, subjectID string, critical bool) error {
	if m.failWrites[subjectID] {
		return errors.New("write failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for tenantID, subjects := range m.subjects {
		for i := range subjects {
			if subjects[i].ID == subjectID {
				if m.preempted[subjectID] {
					m.subjects[tenantID][i].IsCritical = critical
				}
				if m.subjects[tenantID][i].IsCritical == critical {
					return domain.ErrFlagUnchanged
				}
				m.subjects[tenantID][i].IsCritical = critical
				m.writes++
				return nil
			}
		}
	}
	return domain.ErrSubjectNotFound
}

func (m *mockStore) ListAttendance(_ context.Context, tenantID string, after *time.Time, until time.Time) ([]domain.AttendanceRecord, error) {
	var out []domain.AttendanceRecord
	for _, r := range m.attendance[tenantID] {
		if (after == nil || r.Date.After(*after)) && !r.Date.After(until) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) ListRecipients(_ context.Context, tenantID string) ([]domain.RecipientConfig, error) {
	return m.recipients[tenantID], nil
}

func (m *mockStore) critical(tenantID, subjectID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subjects[tenantID] {
		if s.ID == subjectID {
			return s.IsCritical
		}
	}
	return false
}

type sentMessage struct {
	handle string
	text   string
}

type mockMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[string]bool
}

func newMockMessenger() *mockMessenger {
	return &mockMessenger{fail: make(map[string]bool)}
}

func (m *mockMessenger) Send(_ context.Context, handle, text string) error {
	if m.fail[handle] {
		return &domain.DeliveryError{Handle: handle, Description: "chat not found"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{handle: handle, text: text})
	return nil
}

func (m *mockMessenger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// cancelingValidator cancels the run's context after the first transition.
type cancelingValidator struct {
	mockValidator
	cancel context.CancelFunc
}

func (v *cancelingValidator) Apply(ctx context.Context, current domain.FlagState, event domain.FlagEvent) (domain.FlagState, error) {
	defer v.cancel()
	return v.mockValidator.Apply(ctx, current, event)
}

// mockValidator applies domain.Transitions directly.
type mockValidator struct{}

func (v *mockValidator) Apply(_ context.Context, current domain.FlagState, event domain.FlagEvent) (domain.FlagState, error) {
	for _, t := range domain.Transitions {
		if t.Event == event && t.Src == current {
			return t.Dst, nil
		}
	}
	return "", &domain.TransitionError{Event: event, Current: current}
}
