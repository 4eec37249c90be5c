package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/schoolpulse/schoolpulse/internal/filters"
	"github.com/schoolpulse/schoolpulse/internal/records"
)

// Memory holds facts in process. It backs workbook imports and tests.
type Memory struct {
	mu          sync.RWMutex
	assessments []records.Assessment
	attendance  map[records.AttendanceKind][]records.Attendance
	enrollment  []records.Enrollment
}

var (
	_ Source = (*Memory)(nil)
	_ Sink   = (*Memory)(nil)
)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{attendance: map[records.AttendanceKind][]records.Attendance{}}
}

// AddAssessments appends normalized rows and returns the new row count.
func (m *Memory) AddAssessments(rows ...records.Assessment) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.assessments = append(m.assessments, r.Normalized())
	}
	return len(m.assessments)
}

// ReplaceAssessments swaps the assessment rows for rows.
func (m *Memory) ReplaceAssessments(rows ...records.Assessment) int {
	m.mu.Lock()
	m.assessments = nil
	m.mu.Unlock()
	return m.AddAssessments(rows...)
}

// AddAttendance appends normalized rows; a row's Kind selects its table.
func (m *Memory) AddAttendance(rows ...records.Attendance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		if r.Kind == "" {
			r.Kind = records.KindStudent
		}
		m.attendance[r.Kind] = append(m.attendance[r.Kind], r.Normalized())
	}
}

// AddEnrollment appends normalized roster rows.
func (m *Memory) AddEnrollment(rows ...records.Enrollment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.enrollment = append(m.enrollment, r.Normalized())
	}
}

func (m *Memory) Assessments(ctx context.Context, q filters.Query) ([]records.Assessment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(filters.Filter(m.assessments, q.Only(records.AssessmentDimensions...))), nil
}

func (m *Memory) Attendance(ctx context.Context, kind records.AttendanceKind, q filters.Query) ([]records.Attendance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(filters.Filter(m.attendance[kind], q.Only(records.AttendanceDimensions...))), nil
}

func (m *Memory) Enrollment(ctx context.Context, q filters.Query) ([]records.Enrollment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(filters.Filter(m.enrollment, q.Only(records.EnrollmentDimensions...))), nil
}

func (m *Memory) Distinct(ctx context.Context, d records.Dimension, q filters.Query) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]struct{}{}
	var out []string
	for _, r := range filters.Filter(m.assessments, q.Only(records.AssessmentDimensions...)) {
		v := strings.TrimSpace(r.Value(d))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *Memory) DateRange(ctx context.Context) (time.Time, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var from, to time.Time
	for _, r := range m.assessments {
		if r.Date.IsZero() {
			continue
		}
		if from.IsZero() || r.Date.Before(from) {
			from = r.Date
		}
		if r.Date.After(to) {
			to = r.Date
		}
	}
	return from, to, nil
}

func clone[T any](rows []T) []T {
	return append([]T(nil), rows...)
}
