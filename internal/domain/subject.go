package domain

import (
	"strings"
	"time"
)

// AttendanceStatus is the outcome recorded for a player at an attendance event.
type AttendanceStatus string

const (
	StatusNeutral AttendanceStatus = "neutral"
	StatusPresent AttendanceStatus = "present"
	StatusExcused AttendanceStatus = "excused"
	StatusLate    AttendanceStatus = "late"
	StatusAbsent  AttendanceStatus = "absent"
)

// NormalizeStatus folds a stored status into its canonical lowercase form.
func NormalizeStatus(s string) AttendanceStatus {
	return AttendanceStatus(strings.ToLower(strings.TrimSpace(s)))
}

// Subject is a tracked player. IsCritical is written only by the evaluation run.
type Subject struct {
	ID         string
	TenantID   string
	Name       string
	IsCritical bool
	// LastSolve marks the last manual resolution; records at or before it
	// never count again.
	LastSolve *time.Time
}

// AttendanceRecord is one subject's status at one attendance event.
type AttendanceRecord struct {
	ID        string
	SubjectID string
	Status    AttendanceStatus
	Date      time.Time
	TypeID    string
}

// GroupBySubject indexes records by their subject.
func GroupBySubject(records []AttendanceRecord) map[string][]AttendanceRecord {
	out := make(map[string][]AttendanceRecord)
	for _, r := range records {
		out[r.SubjectID] = append(out[r.SubjectID], r)
	}
	return out
}
