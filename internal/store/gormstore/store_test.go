package gormstore

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/schoolpulse/schoolpulse/internal/filters"
	"github.com/schoolpulse/schoolpulse/internal/records"
)

func dryStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  "host=localhost user=test dbname=test sslmode=disable",
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               NewLogger(zerolog.Nop(), 0),
	})
	require.NoError(t, err)
	return New(db)
}

func TestAssessmentQuery_PushesDownStoredColumns(t *testing.T) {
	s := dryStore(t)
	q := filters.Query{
		Equals: map[records.Dimension]string{
			records.AcademicYear: "2024-25",
			records.Subject:      "Math",
			records.School:       "Sunrise",
		},
		Schools:  []string{"Sunrise", "Lakeview"},
		From:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		HasRange: true,
	}

	var rows []AssessmentRow
	stmt := s.assessmentTx(context.Background(), q).Find(&rows).Statement
	sql := stmt.SQL.String()

	require.Contains(t, sql, "student_assessment_data")
	require.Contains(t, sql, "LOWER(TRIM(academic_year)) = $")
	require.Contains(t, sql, "LOWER(TRIM(school_name)) = $")
	require.Contains(t, sql, "LOWER(TRIM(school_name)) IN ($")
	require.Contains(t, sql, "assessment_date BETWEEN $")
	// canonicalized in process, never compared in SQL
	require.NotContains(t, sql, "subject_name")
	require.Contains(t, stmt.Vars, "2024-25")
	require.Contains(t, stmt.Vars, "sunrise")
	require.NotContains(t, stmt.Vars, "Sunrise")
}

func TestSchoolMatchingIgnoresCase(t *testing.T) {
	s := dryStore(t)
	q := filters.Query{Equals: map[records.Dimension]string{records.School: " SUNRISE "}}
	var rows []AssessmentRow
	stmt := s.assessmentTx(context.Background(), q).Find(&rows).Statement
	require.Contains(t, stmt.SQL.String(), "LOWER(TRIM(school_name)) = $")
	require.Equal(t, []any{"sunrise"}, stmt.Vars)
}

func TestAssessmentQuery_EmptySchoolSetMatchesNothing(t *testing.T) {
	s := dryStore(t)
	var rows []AssessmentRow
	sql := s.assessmentTx(context.Background(), filters.Query{Schools: []string{}}).Find(&rows).Statement.SQL.String()
	require.Contains(t, sql, "1 = 0")
}

func TestEnrollmentQuery_IgnoresDateRangeAndAssessmentFilters(t *testing.T) {
	s := dryStore(t)
	q := filters.Query{
		Equals: map[records.Dimension]string{
			records.AssessmentType: "EOY",
			records.Division:       "A",
		},
		From:     time.Now(),
		To:       time.Now(),
		HasRange: true,
	}
	var rows []ActiveStudentRow
	sql := s.enrollmentTx(context.Background(), q).Find(&rows).Statement.SQL.String()
	require.Contains(t, sql, "active_student_data")
	require.Contains(t, sql, "LOWER(TRIM(division_name)) = $")
	require.NotContains(t, sql, "assessment_type")
	require.NotContains(t, sql, "BETWEEN")
}

func TestAttendanceQuery_UsesKindTable(t *testing.T) {
	s := dryStore(t)
	var rows []PTMAttendanceRow
	sql := s.attendanceTx(context.Background(), &PTMAttendanceRow{}, filters.Query{}).Find(&rows).Statement.SQL.String()
	require.Contains(t, sql, "ptm_attendance_data")
}

func TestDistinctQuery(t *testing.T) {
	s := dryStore(t)
	var raw []string
	q := filters.Query{Equals: map[records.Dimension]string{records.AcademicYear: "2024-25"}}
	sql := s.distinctTx(context.Background(), "school_name", q).Pluck("school_name", &raw).Statement.SQL.String()
	require.Contains(t, sql, "DISTINCT")
	require.Contains(t, sql, "school_name IS NOT NULL")
	require.Contains(t, sql, "LOWER(TRIM(academic_year)) = $")

	values, err := s.Distinct(context.Background(), records.Month, q)
	require.NoError(t, err)
	require.Nil(t, values)

	require.True(t, pushable(q))
	require.False(t, pushable(filters.Query{Equals: map[records.Dimension]string{records.Subject: "Math"}}))
	require.Equal(t, []string{"Grade 3", "Math"}, append(unique(records.Grade, []string{"3", "Gr. 3", ""}), unique(records.Subject, []string{"maths"})...))
}

func TestRowConversionNormalizes(t *testing.T) {
	obtained, maxMarks := 7.0, 10.0
	date := time.Date(2024, 8, 12, 0, 0, 0, 0, time.UTC)
	a := AssessmentRow{SchoolName: " Sunrise ", GradeName: "Gr. 4", SubjectName: "maths", Gender: "male",
		ObtainedMarks: &obtained, MaxMarks: &maxMarks, AssessmentDate: &date}.record()
	require.Equal(t, "Sunrise", a.School)
	require.Equal(t, "Grade 4", a.Grade)
	require.Equal(t, "Math", a.Subject)
	require.Equal(t, "M", a.Gender)
	require.Equal(t, "August", a.Value(records.Month))

	missing := AssessmentRow{SchoolName: "A"}.record()
	num, den := missing.Ratio()
	require.Zero(t, num)
	require.Zero(t, den)

	present, total := 3.0, 4.0
	ptm := PTMAttendanceRow{SchoolName: "A", Month: "jul", PresentPTM: &present, TotalPTM: &total}.record()
	require.Equal(t, records.KindPTM, ptm.Kind)
	require.Equal(t, "July", ptm.Month)
	require.InDelta(t, 0.75, ptm.Present/ptm.Total, 1e-9)
}

func TestFail_KeepsContextErrors(t *testing.T) {
	require.ErrorIs(t, fail("x", context.DeadlineExceeded), context.DeadlineExceeded)
	require.Error(t, fail("x", gorm.ErrInvalidDB))
}
