// Package gormstore reads school analytics facts from the PostgreSQL reporting tables.
package gormstore

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/schoolpulse/schoolpulse/internal/filters"
	"github.com/schoolpulse/schoolpulse/internal/records"
	"github.com/schoolpulse/schoolpulse/internal/store"
	"github.com/schoolpulse/schoolpulse/internal/telemetry"
	"github.com/schoolpulse/schoolpulse/pkg/mcperr"
)

const backend = "postgres"

// Config holds connection settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SlowQuery       time.Duration
	Logger          zerolog.Logger
}

// Store implements store.Source over gorm.
type Store struct {
	db *gorm.DB
}

var _ store.Source = (*Store)(nil)

// Open connects to PostgreSQL and tunes the pool.
func Open(cfg Config) (*Store, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger:                 NewLogger(cfg.Logger, cfg.SlowQuery),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, mcperr.Unavailable("open database", errors.Wrap(err, "gorm open"))
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "gorm sql handle")
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return New(db), nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Columns that hold values comparable in SQL as stored. Grade, subject, gender
// and month are canonicalized in process and filtered after the fetch.
var pushdown = map[records.Dimension]string{
	records.AcademicYear:       "academic_year",
	records.AssessmentType:     "assessment_type",
	records.AssessmentCategory: "assessment_category",
	records.School:             "school_name",
	records.Division:           "division_name",
	records.Competency:         "competency_level_name",
	records.Student:            "student_id",
}

// scope narrows a query by the pushdown-able constraints of q that apply to
// dims. Text columns compare trimmed and case-folded, the same rule as
// filters.Query.Match.
func scope(q filters.Query, dims []records.Dimension, dateColumn string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		for _, d := range dims {
			v, ok := q.Equals[d]
			if !ok {
				continue
			}
			if col, ok := pushdown[d]; ok {
				db = db.Where(folded(col)+" = ?", fold(v))
			}
		}
		if q.Schools != nil {
			if len(q.Schools) == 0 {
				db = db.Where("1 = 0")
			} else {
				schools := make([]string, len(q.Schools))
				for i, school := range q.Schools {
					schools[i] = fold(school)
				}
				db = db.Where(folded("school_name")+" IN ?", schools)
			}
		}
		if q.HasRange && dateColumn != "" {
			db = db.Where(dateColumn+" BETWEEN ? AND ?", q.From, q.To)
		}
		return db
	}
}

func folded(col string) string { return "LOWER(TRIM(" + col + "))" }

func fold(v string) string { return strings.ToLower(strings.TrimSpace(v)) }

// pushable reports whether every equality constraint of q has a SQL column.
func pushable(q filters.Query) bool {
	for d := range q.Equals {
		if _, ok := pushdown[d]; !ok {
			return false
		}
	}
	return true
}

func (s *Store) assessmentTx(ctx context.Context, q filters.Query) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&AssessmentRow{}).
		Scopes(scope(q, records.AssessmentDimensions, "assessment_date"))
}

func (s *Store) Assessments(ctx context.Context, q filters.Query) ([]records.Assessment, error) {
	defer telemetry.ObserveQuery(backend, "assessments", time.Now())
	var rows []AssessmentRow
	if err := s.assessmentTx(ctx, q).Find(&rows).Error; err != nil {
		return nil, fail("assessments", err)
	}
	out := make([]records.Assessment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return filters.Filter(out, q.Only(records.AssessmentDimensions...)), nil
}

func (s *Store) attendanceTx(ctx context.Context, model any, q filters.Query) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(model).
		Scopes(scope(q, records.AttendanceDimensions, "date"))
}

func (s *Store) Attendance(ctx context.Context, kind records.AttendanceKind, q filters.Query) ([]records.Attendance, error) {
	defer telemetry.ObserveQuery(backend, "attendance_"+string(kind), time.Now())
	var out []records.Attendance
	switch kind {
	case records.KindStudent, "":
		var rows []StudentAttendanceRow
		if err := s.attendanceTx(ctx, &StudentAttendanceRow{}, q).Find(&rows).Error; err != nil {
			return nil, fail("student attendance", err)
		}
		for _, r := range rows {
			out = append(out, r.record())
		}
	case records.KindPTM:
		var rows []PTMAttendanceRow
		if err := s.attendanceTx(ctx, &PTMAttendanceRow{}, q).Find(&rows).Error; err != nil {
			return nil, fail("ptm attendance", err)
		}
		for _, r := range rows {
			out = append(out, r.record())
		}
	case records.KindSWPTM:
		var rows []SWPTMAttendanceRow
		if err := s.attendanceTx(ctx, &SWPTMAttendanceRow{}, q).Find(&rows).Error; err != nil {
			return nil, fail("swptm attendance", err)
		}
		for _, r := range rows {
			out = append(out, r.record())
		}
	default:
		return nil, errors.Errorf("unknown attendance kind %q", kind)
	}
	return filters.Filter(out, q.Only(records.AttendanceDimensions...)), nil
}

func (s *Store) enrollmentTx(ctx context.Context, q filters.Query) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&ActiveStudentRow{}).
		Scopes(scope(q, records.EnrollmentDimensions, ""))
}

func (s *Store) Enrollment(ctx context.Context, q filters.Query) ([]records.Enrollment, error) {
	defer telemetry.ObserveQuery(backend, "enrollment", time.Now())
	var rows []ActiveStudentRow
	if err := s.enrollmentTx(ctx, q).Find(&rows).Error; err != nil {
		return nil, fail("enrollment", err)
	}
	out := make([]records.Enrollment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return filters.Filter(out, q.Only(records.EnrollmentDimensions...)), nil
}

var distinctColumns = map[records.Dimension]string{
	records.AcademicYear:       "academic_year",
	records.AssessmentType:     "assessment_type",
	records.AssessmentCategory: "assessment_category",
	records.School:             "school_name",
	records.Grade:              "grade_name",
	records.Division:           "division_name",
	records.Subject:            "subject_name",
	records.Competency:         "competency_level_name",
	records.Gender:             "gender",
}

func (s *Store) distinctTx(ctx context.Context, col string, q filters.Query) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&AssessmentRow{}).
		Scopes(scope(q, records.AssessmentDimensions, "assessment_date")).
		Distinct(col).
		Where(col + " IS NOT NULL")
}

// Distinct lists canonical values of d over the assessment rows matching q.
// Dimensions without a stored column yield nil. Constraints that cannot be
// compared in SQL are applied to fetched rows instead.
func (s *Store) Distinct(ctx context.Context, d records.Dimension, q filters.Query) ([]string, error) {
	col, ok := distinctColumns[d]
	if !ok {
		return nil, nil
	}
	q = q.Only(records.AssessmentDimensions...)
	if !pushable(q) {
		rows, err := s.Assessments(ctx, q)
		if err != nil {
			return nil, err
		}
		raw := make([]string, len(rows))
		for i, r := range rows {
			raw[i] = r.Value(d)
		}
		return unique(d, raw), nil
	}
	defer telemetry.ObserveQuery(backend, "distinct", time.Now())
	var raw []string
	if err := s.distinctTx(ctx, col, q).Pluck(col, &raw).Error; err != nil {
		return nil, fail("distinct "+string(d), err)
	}
	return unique(d, raw), nil
}

func unique(d records.Dimension, raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		v = records.Canonical(d, v)
		if strings.TrimSpace(v) == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

type dateBounds struct {
	MinDate *time.Time
	MaxDate *time.Time
}

func (s *Store) DateRange(ctx context.Context) (time.Time, time.Time, error) {
	defer telemetry.ObserveQuery(backend, "date_range", time.Now())
	var b dateBounds
	err := s.db.WithContext(ctx).
		Model(&AssessmentRow{}).
		Select("MIN(assessment_date) AS min_date, MAX(assessment_date) AS max_date").
		Scan(&b).Error
	if err != nil {
		return time.Time{}, time.Time{}, fail("date range", err)
	}
	var from, to time.Time
	if b.MinDate != nil {
		from = *b.MinDate
	}
	if b.MaxDate != nil {
		to = *b.MaxDate
	}
	return from, to, nil
}

// fail marks err as a data source failure unless the caller gave up first.
func fail(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return mcperr.Unavailable(op, errors.Wrap(err, "query"))
}
