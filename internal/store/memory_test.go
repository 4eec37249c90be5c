package store

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/schoolpulse/schoolpulse/internal/filters"
	"github.com/schoolpulse/schoolpulse/internal/records"
)

func resolve(t *testing.T, s filters.Set) filters.Query {
	t.Helper()
	q, err := filters.NewResolver(nil, zerolog.Nop()).Resolve(context.Background(), s)
	require.NoError(t, err)
	return q
}

func TestMemory_NormalizesAndFilters(t *testing.T) {
	m := NewMemory()
	n := m.AddAssessments(
		records.Assessment{StudentID: "s1", School: "A", Grade: "Gr. 1", Subject: "MAT", Obtained: 5, Max: 10,
			Date: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)},
		records.Assessment{StudentID: "s2", School: "B", Grade: "2", Subject: "eng", Obtained: 7, Max: 10,
			Date: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)},
	)
	require.Equal(t, 2, n)

	rows, err := m.Assessments(context.Background(), resolve(t, filters.Set{Subject: "Math"}))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Grade 1", rows[0].Grade)

	// the subject filter does not apply to roster rows
	m.AddEnrollment(records.Enrollment{StudentID: "s1", School: "A", Grade: "1", Gender: "female"})
	roster, err := m.Enrollment(context.Background(), resolve(t, filters.Set{Subject: "Math", School: "A"}))
	require.NoError(t, err)
	require.Len(t, roster, 1)
	require.Equal(t, "F", roster[0].Gender)

	grades, err := m.Distinct(context.Background(), records.Grade, filters.Query{})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Grade 1", "Grade 2"}, grades)

	grades, err = m.Distinct(context.Background(), records.Grade, resolve(t, filters.Set{Subject: "math"}))
	require.NoError(t, err)
	require.Equal(t, []string{"Grade 1"}, grades)

	from, to, err := m.DateRange(context.Background())
	require.NoError(t, err)
	require.Equal(t, time.July, from.Month())
	require.Equal(t, time.September, to.Month())

	require.Equal(t, 1, m.ReplaceAssessments(records.Assessment{School: "C", Obtained: 1, Max: 2}))
}

func TestMemory_AttendanceByKind(t *testing.T) {
	m := NewMemory()
	m.AddAttendance(
		records.Attendance{School: "A", Month: "jun", Present: 18, Total: 20},
		records.Attendance{Kind: records.KindPTM, School: "A", Month: "July", Present: 1, Total: 1},
	)
	rows, err := m.Attendance(context.Background(), records.KindStudent, filters.Query{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "June", rows[0].Month)

	ptm, err := m.Attendance(context.Background(), records.KindPTM, filters.Query{})
	require.NoError(t, err)
	require.Len(t, ptm, 1)
}

func TestMemory_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemory().Assessments(ctx, filters.Query{})
	require.ErrorIs(t, err, context.Canceled)
}
