// Package store defines the fact source contract and an in-memory implementation.
package store

import (
	"context"
	"time"

	"github.com/schoolpulse/schoolpulse/internal/filters"
	"github.com/schoolpulse/schoolpulse/internal/records"
)

// Source is the read-only fact store. Returned rows are normalized and
// already restricted by the query; failures reaching the backing store
// match mcperr.ErrDataSourceUnavailable.
type Source interface {
	Assessments(ctx context.Context, q filters.Query) ([]records.Assessment, error)
	Attendance(ctx context.Context, kind records.AttendanceKind, q filters.Query) ([]records.Attendance, error)
	Enrollment(ctx context.Context, q filters.Query) ([]records.Enrollment, error)
	// Distinct lists the values of a dimension over the assessment rows matching q.
	Distinct(ctx context.Context, d records.Dimension, q filters.Query) ([]string, error)
	// DateRange is the span of assessment dates; zero times when there are none.
	DateRange(ctx context.Context) (from, to time.Time, err error)
}

// Sink accepts imported rows.
type Sink interface {
	AddAssessments(rows ...records.Assessment) int
	ReplaceAssessments(rows ...records.Assessment) int
}
