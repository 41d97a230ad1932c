package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neomorfeo/rollcall/internal/adapter/sqlite"
	"github.com/neomorfeo/rollcall/internal/domain"
)

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) string {
	return now.Add(-time.Duration(n) * 24 * time.Hour).Format(sqlite.TimeFormat)
}

// newTestStore creates an in-memory SQLite store for testing.
func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustExec(t *testing.T, store *sqlite.Store, query string, args ...any) {
	t.Helper()
	if _, err := store.DB().Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func seed(t *testing.T, store *sqlite.Store) {
	t.Helper()

	mustExec(t, store, `INSERT INTO tenants (id, name, season_start) VALUES ('t-1', 'Brass Band', ?), ('t-2', 'No Rules', NULL)`, daysAgo(90))
	mustExec(t, store, `INSERT INTO critical_rules (id, tenant_id, position, scope_types, statuses, threshold_type, threshold_value, period_type, period_days, operator)
		VALUES ('r-2', 't-1', 2, '[]', '["absent"]', 'percentage', 50, 'season', NULL, 'and'),
		       ('r-1', 't-1', 1, '["training"]', '["absent","late"]', 'count', 2, NULL, 14, 'or')`)

	mustExec(t, store, `INSERT INTO players (id, tenant_id, name, is_critical, last_solve, left_at) VALUES
		('p-1', 't-1', 'Ada', 0, NULL, NULL),
		('p-2', 't-1', 'Grace', 1, ?, NULL),
		('p-3', 't-1', 'Left', 0, NULL, ?)`, daysAgo(3), daysAgo(10))

	mustExec(t, store, `INSERT INTO attendance_events (id, tenant_id, date, type_id) VALUES
		('e-1', 't-1', ?, 'training'),
		('e-2', 't-1', ?, 'match'),
		('e-3', 't-1', ?, 'training'),
		('e-4', 't-1', ?, 'training')`, daysAgo(1), daysAgo(5), daysAgo(40), now.Add(48*time.Hour).Format(sqlite.TimeFormat))

	mustExec(t, store, `INSERT INTO attendance_records (id, player_id, event_id, status) VALUES
		('a-1', 'p-1', 'e-1', 'absent'),
		('a-2', 'p-1', 'e-2', 'present'),
		('a-3', 'p-1', 'e-3', 'absent'),
		('a-4', 'p-1', 'e-4', 'absent')`)

	mustExec(t, store, `INSERT INTO tenant_admins (user_id, tenant_id, role) VALUES
		('u-1', 't-1', 'admin'), ('u-2', 't-1', 'owner'), ('u-3', 't-1', 'viewer'), ('u-4', 't-1', 'admin')`)
	mustExec(t, store, `INSERT INTO notification_configs (user_id, enabled, criticals_enabled, messaging_handle, tenant_scope) VALUES
		('u-1', 1, 1, '100', NULL),
		('u-2', 1, 1, '200', '["t-1"]'),
		('u-3', 1, 1, '300', NULL),
		('u-4', 1, 0, '400', NULL)`)
}

func TestListTenantsWithRules(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)

	tenants, err := store.ListTenantsWithRules(context.Background())
	if err != nil {
		t.Fatalf("ListTenantsWithRules failed: %v", err)
	}

	if len(tenants) != 1 {
		t.Fatalf("got %d tenants, want 1 (only tenants with rules)", len(tenants))
	}
	tenant := tenants[0]
	if tenant.ID != "t-1" || tenant.Name != "Brass Band" {
		t.Errorf("tenant = %s/%s, want t-1/Brass Band", tenant.ID, tenant.Name)
	}
	if tenant.SeasonStart == nil || tenant.SeasonStart.Format(sqlite.TimeFormat) != daysAgo(90) {
		t.Errorf("SeasonStart = %v, want %s", tenant.SeasonStart, daysAgo(90))
	}

	if len(tenant.Rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(tenant.Rules))
	}
	first := tenant.Rules[0]
	if first.ID != "r-1" {
		t.Errorf("rules should be ordered by position, first = %q", first.ID)
	}
	if len(first.ScopeTypes) != 1 || first.ScopeTypes[0] != "training" {
		t.Errorf("ScopeTypes = %v, want [training]", first.ScopeTypes)
	}
	if len(first.Statuses) != 2 {
		t.Errorf("Statuses = %v, want 2 entries", first.Statuses)
	}
	if first.PeriodType != "" || first.PeriodDays != 14 {
		t.Errorf("period = %q/%d, want legacy/14", first.PeriodType, first.PeriodDays)
	}

	// Stored rules must validate.
	if _, errs := domain.ParseRules(tenant.Rules); len(errs) != 0 {
		t.Errorf("unexpected rule errors: %v", errs)
	}
}

func TestListTenantsWithRules_UndecodableListRejected(t *testing.T) {
	store := newTestStore(t)
	mustExec(t, store, `INSERT INTO tenants (id, name) VALUES ('t-9', 'Broken')`)
	mustExec(t, store, `INSERT INTO critical_rules (id, tenant_id, scope_types, statuses, threshold_type, threshold_value, operator)
		VALUES ('r-9', 't-9', 'not json', '["absent"]', 'count', 1, 'or')`)

	tenants, err := store.ListTenantsWithRules(context.Background())
	if err != nil {
		t.Fatalf("ListTenantsWithRules failed: %v", err)
	}
	if len(tenants) != 1 || len(tenants[0].Rules) != 1 {
		t.Fatalf("tenants = %+v, want one tenant with one rule", tenants)
	}

	// The rule must not silently widen to every attendance type.
	_, errs := domain.ParseRules(tenants[0].Rules)
	if len(errs) != 1 {
		t.Fatalf("got %d rule errors, want 1", len(errs))
	}
}

func TestListActiveSubjects_ExcludesDeparted(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)

	subjects, err := store.ListActiveSubjects(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("ListActiveSubjects failed: %v", err)
	}

	if len(subjects) != 2 {
		t.Fatalf("got %d subjects, want 2", len(subjects))
	}
	if subjects[0].ID != "p-1" || subjects[0].IsCritical || subjects[0].LastSolve != nil {
		t.Errorf("p-1 = %+v", subjects[0])
	}
	if subjects[1].ID != "p-2" || !subjects[1].IsCritical || subjects[1].LastSolve == nil {
		t.Errorf("p-2 = %+v", subjects[1])
	}
}

func TestListAttendance_Window(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	after, err := time.Parse(sqlite.TimeFormat, daysAgo(14))
	if err != nil {
		t.Fatal(err)
	}

	records, err := store.ListAttendance(ctx, "t-1", &after, now)
	if err != nil {
		t.Fatalf("ListAttendance failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (in window, not future)", len(records))
	}
	if records[0].ID != "a-2" || records[0].TypeID != "match" || records[0].Status != domain.StatusPresent {
		t.Errorf("first record = %+v", records[0])
	}

	all, err := store.ListAttendance(ctx, "t-1", nil, now)
	if err != nil {
		t.Fatalf("ListAttendance failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d records without lower bound, want 3", len(all))
	}
}

func TestSetCritical(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	if err := store.SetCritical(ctx, "p-1", true); err != nil {
		t.Fatalf("SetCritical failed: %v", err)
	}

	subjects, err := store.ListActiveSubjects(ctx, "t-1")
	if err != nil {
		t.Fatalf("ListActiveSubjects failed: %v", err)
	}
	if !subjects[0].IsCritical {
		t.Error("p-1 should be critical")
	}
}

func TestSetCritical_NotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.SetCritical(context.Background(), "nonexistent", true)
	if !errors.Is(err, domain.ErrSubjectNotFound) {
		t.Errorf("expected ErrSubjectNotFound, got %v", err)
	}
}

func TestSetCritical_Unchanged(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)

	// p-2 is seeded as critical.
	err := store.SetCritical(context.Background(), "p-2", true)
	if !errors.Is(err, domain.ErrFlagUnchanged) {
		t.Errorf("expected ErrFlagUnchanged, got %v", err)
	}
}

func TestListAttendance_NormalizesStatus(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	mustExec(t, store, `INSERT INTO attendance_records (id, player_id, event_id, status) VALUES ('a-5', 'p-2', 'e-1', ' Absent')`)

	records, err := store.ListAttendance(context.Background(), "t-1", nil, now)
	if err != nil {
		t.Fatalf("ListAttendance failed: %v", err)
	}
	for _, r := range records {
		if r.ID == "a-5" && r.Status != domain.StatusAbsent {
			t.Errorf("status = %q, want %q", r.Status, domain.StatusAbsent)
		}
	}
}

func TestListRecipients(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)

	recipients, err := store.ListRecipients(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("ListRecipients failed: %v", err)
	}

	// u-3 is not an admin; u-4 has criticals disabled.
	if len(recipients) != 2 {
		t.Fatalf("got %d recipients, want 2", len(recipients))
	}
	if recipients[0].ID != "u-1" || recipients[0].MessagingHandle != "100" || len(recipients[0].TenantScope) != 0 {
		t.Errorf("u-1 = %+v", recipients[0])
	}
	if recipients[1].ID != "u-2" || len(recipients[1].TenantScope) != 1 || recipients[1].TenantScope[0] != "t-1" {
		t.Errorf("u-2 = %+v", recipients[1])
	}
	for _, r := range recipients {
		if !r.WantsCriticals("t-1") {
			t.Errorf("%s should want criticals for t-1", r.ID)
		}
	}
}
