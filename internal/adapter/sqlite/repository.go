package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neomorfeo/rollcall/internal/domain"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time check: Store implements domain.Store.
var _ domain.Store = (*Store)(nil)

// Store implements the evaluation run's persistence ports using SQLite.
type Store struct {
	db *sql.DB
}

// New opens a SQLite database, runs migrations, and returns a ready store.
func New(dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// In-memory databases are per connection.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return NewFromDB(db)
}

// NewFromDB wraps an existing database connection, runs migrations, and returns a ready store.
// Use this when the *sql.DB has been pre-configured (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*Store, error) {
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for use by other adapters (e.g., river).
func (s *Store) DB() *sql.DB {
	return s.db
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

// TimeFormat is the layout of every timestamp column.
const TimeFormat = "2006-01-02T15:04:05Z"

// adminRoles are the tenant roles that receive critical notifications.
var adminRoles = []any{"admin", "owner"}

func (s *Store) ListTenantsWithRules(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.name, t.season_start
		 FROM tenants t
		 WHERE EXISTS (SELECT 1 FROM critical_rules r WHERE r.tenant_id = t.id)
		 ORDER BY t.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	defer rows.Close()

	var tenants []domain.Tenant
	index := make(map[string]int)
	for rows.Next() {
		var t domain.Tenant
		var seasonStart sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &seasonStart); err != nil {
			return nil, fmt.Errorf("scanning tenant row: %w", err)
		}
		if t.SeasonStart, err = parseNullTime(seasonStart); err != nil {
			return nil, fmt.Errorf("tenant %s season start: %w", t.ID, err)
		}
		index[t.ID] = len(tenants)
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rules, err := s.listRules(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range rules {
		if i, ok := index[r.tenantID]; ok {
			tenants[i].Rules = append(tenants[i].Rules, r.cfg)
		}
	}

	return tenants, nil
}

type storedRule struct {
	tenantID string
	cfg      domain.RuleConfig
}

func (s *Store) listRules(ctx context.Context) ([]storedRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tenant_id, id, scope_types, statuses, threshold_type, threshold_value,
		        period_type, period_days, operator
		 FROM critical_rules
		 ORDER BY tenant_id, position, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	defer rows.Close()

	var out []storedRule
	for rows.Next() {
		var r storedRule
		var scopeTypes, statuses string
		var periodType sql.NullString
		var periodDays sql.NullInt64

		err := rows.Scan(&r.tenantID, &r.cfg.ID, &scopeTypes, &statuses,
			&r.cfg.ThresholdType, &r.cfg.ThresholdValue, &periodType, &periodDays, &r.cfg.Operator)
		if err != nil {
			return nil, fmt.Errorf("scanning rule row: %w", err)
		}

		// An undecodable list leaves the rule without statuses so that
		// validation rejects it instead of widening its scope.
		if decodeList(scopeTypes, &r.cfg.ScopeTypes) != nil || decodeList(statuses, &r.cfg.Statuses) != nil {
			r.cfg.ScopeTypes, r.cfg.Statuses = nil, nil
		}
		r.cfg.PeriodType = periodType.String
		r.cfg.PeriodDays = int(periodDays.Int64)

		out = append(out, r)
	}

	return out, rows.Err()
}

func (s *Store) ListActiveSubjects(ctx context.Context, tenantID string) ([]domain.Subject, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, name, is_critical, last_solve
		 FROM players
		 WHERE tenant_id = ? AND left_at IS NULL
		 ORDER BY id`, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	defer rows.Close()

	var subjects []domain.Subject
	for rows.Next() {
		var p domain.Subject
		var lastSolve sql.NullString
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.IsCritical, &lastSolve); err != nil {
			return nil, fmt.Errorf("scanning player row: %w", err)
		}
		if p.LastSolve, err = parseNullTime(lastSolve); err != nil {
			return nil, fmt.Errorf("player %s last solve: %w", p.ID, err)
		}
		subjects = append(subjects, p)
	}

	return subjects, rows.Err()
}

// SetCritical flips the flag only if it still holds the opposite value, so
// overlapping runs cannot both report the same transition.
func (s *Store) SetCritical(ctx context.Context, subjectID string, critical bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE players SET is_critical = ? WHERE id = ? AND is_critical <> ?`, critical, subjectID, critical,
	)
	if err != nil {
		return fmt.Errorf("updating player: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM players WHERE id = ?)`, subjectID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking player: %w", err)
	}
	if !exists {
		return domain.ErrSubjectNotFound
	}
	return domain.ErrFlagUnchanged
}

func (s *Store) ListAttendance(ctx context.Context, tenantID string, after *time.Time, until time.Time) ([]domain.AttendanceRecord, error) {
	query := `SELECT r.id, r.player_id, r.status, e.date, e.type_id
		FROM attendance_records r
		JOIN attendance_events e ON e.id = r.event_id
		WHERE e.tenant_id = ? AND e.date <= ?`
	args := []any{tenantID, until.UTC().Format(TimeFormat)}

	if after != nil {
		query += ` AND e.date > ?`
		args = append(args, after.UTC().Format(TimeFormat))
	}

	query += ` ORDER BY e.date`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing attendance: %w", err)
	}
	defer rows.Close()

	var records []domain.AttendanceRecord
	for rows.Next() {
		var r domain.AttendanceRecord
		var status, date string
		if err := rows.Scan(&r.ID, &r.SubjectID, &status, &date, &r.TypeID); err != nil {
			return nil, fmt.Errorf("scanning attendance row: %w", err)
		}
		r.Status = domain.NormalizeStatus(status)
		if r.Date, err = time.Parse(TimeFormat, date); err != nil {
			return nil, fmt.Errorf("attendance %s date: %w", r.ID, err)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

func (s *Store) ListRecipients(ctx context.Context, tenantID string) ([]domain.RecipientConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT n.user_id, n.enabled, n.criticals_enabled, COALESCE(n.messaging_handle, ''), n.tenant_scope
		 FROM tenant_admins a
		 JOIN notification_configs n ON n.user_id = a.user_id
		 WHERE a.tenant_id = ? AND a.role IN (?, ?)
		   AND n.enabled = 1 AND n.criticals_enabled = 1
		 ORDER BY n.user_id`,
		append([]any{tenantID}, adminRoles...)...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing recipients: %w", err)
	}
	defer rows.Close()

	var out []domain.RecipientConfig
	for rows.Next() {
		var r domain.RecipientConfig
		var scope sql.NullString
		if err := rows.Scan(&r.ID, &r.Enabled, &r.CriticalsEnabled, &r.MessagingHandle, &scope); err != nil {
			return nil, fmt.Errorf("scanning recipient row: %w", err)
		}
		if scope.Valid {
			if err := decodeList(scope.String, &r.TenantScope); err != nil {
				return nil, fmt.Errorf("recipient %s tenant scope: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}

	return out, rows.Err()
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(TimeFormat, v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func decodeList(raw string, dst *[]string) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decoding list: %w", err)
	}
	return nil
}
