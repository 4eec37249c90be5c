package insights

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/schoolpulse/schoolpulse/internal/cache"
	"github.com/schoolpulse/schoolpulse/internal/citydir"
	"github.com/schoolpulse/schoolpulse/internal/engine"
	"github.com/schoolpulse/schoolpulse/internal/filters"
	"github.com/schoolpulse/schoolpulse/internal/records"
	"github.com/schoolpulse/schoolpulse/internal/runtime"
	"github.com/schoolpulse/schoolpulse/internal/store"
	"github.com/schoolpulse/schoolpulse/internal/workbooks"
	"github.com/schoolpulse/schoolpulse/pkg/mcperr"
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func assessment(year, student, school, grade, subject, competency, gender string, date time.Time, obtained, max float64) records.Assessment {
	return records.Assessment{
		AcademicYear: year, AssessmentType: "BOY", StudentID: student, School: school, Grade: grade,
		Subject: subject, Competency: competency, Gender: gender, Date: date, Obtained: obtained, Max: max,
	}
}

func fixture() *store.Memory {
	m := store.NewMemory()
	m.AddAssessments(
		assessment("2024-25", "s1", "A", "Grade 1", "Math", "L1", "M", day(2024, 7, 10), 80, 100),
		assessment("2024-25", "s1", "A", "Grade 1", "English", "L1", "M", day(2024, 7, 10), 20, 20),
		assessment("2024-25", "s2", "B", "Grade 2", "Math", "L2", "F", day(2024, 8, 5), 10, 100),
		assessment("2024-25", "s3", "B", "Grade 1", "Math", "L2", "F", day(2024, 8, 5), 50, 100),
		assessment("2024-25", "s4", "A", "Grade 2", "Math", "L1", "M", day(2024, 6, 15), 5, 0),
		assessment("2023-24", "s1", "A", "Grade 1", "Math", "L1", "M", day(2023, 7, 10), 40, 100),
	)
	m.AddEnrollment(
		records.Enrollment{StudentID: "s1", School: "A", Grade: "Grade 1", Gender: "M", AcademicYear: "2024-25"},
		records.Enrollment{StudentID: "s1", School: "A", Grade: "Grade 1", Gender: "M", AcademicYear: "2024-25"},
		records.Enrollment{StudentID: "s2", School: "B", Grade: "Grade 2", Gender: "F", AcademicYear: "2024-25"},
		records.Enrollment{StudentID: "s3", School: "B", Grade: "Grade 1", Gender: "F", AcademicYear: "2024-25"},
		records.Enrollment{StudentID: "s5", School: "A", Grade: "Grade 1", AcademicYear: "2024-25"},
	)
	m.AddAttendance(
		records.Attendance{Kind: records.KindStudent, StudentID: "s1", School: "A", Grade: "Grade 1", Month: "June", Present: 18, Total: 20},
		records.Attendance{Kind: records.KindStudent, StudentID: "s1", School: "A", Grade: "Grade 1", Month: "July", Present: 10, Total: 20},
		records.Attendance{Kind: records.KindStudent, StudentID: "s2", School: "B", Grade: "Grade 2", Month: "June", Present: 0, Total: 0},
	)
	return m
}

func newService(t *testing.T, m *store.Memory, opts ...func(*Deps)) *Service {
	t.Helper()
	d := Deps{
		Source: m,
		Sink:   m,
		Cities: citydir.Static{"A": "Pune", "B": "Mumbai"},
		Cache:  cache.NewFIFO[any](10),
		Limits: runtime.NewLimits(4, 2),
		Logger: zerolog.Nop(),
	}
	for _, o := range opts {
		o(&d)
	}
	return New(d)
}

var current = filters.Set{AcademicYear: "2024-25"}

func val(t *testing.T, p *float64) float64 {
	t.Helper()
	require.NotNil(t, p)
	return *p
}

func TestScoreSeries_BySchoolIsSumBased(t *testing.T) {
	s := newService(t, fixture())
	out, err := s.ScoreSeries(context.Background(), current, records.School)
	require.NoError(t, err)
	require.False(t, out.NoData)
	require.Equal(t, []string{"A", "B"}, out.Labels)
	require.Equal(t, 83.33, val(t, out.Data[0]))
	require.Equal(t, 30.0, val(t, out.Data[1]))
}

func TestScoreSeries_MonthAxis(t *testing.T) {
	s := newService(t, fixture())
	out, err := s.ScoreSeries(context.Background(), current, records.Month)
	require.NoError(t, err)
	require.Equal(t, engine.MonthOrder, out.Labels)
	require.Nil(t, out.Data[0], "June only has a zero-max row")
	require.Equal(t, 83.33, val(t, out.Data[1]))
	require.Equal(t, 30.0, val(t, out.Data[2]))
	require.Nil(t, out.Data[11])
}

func TestScoreSeries_ByCityAndCityFilter(t *testing.T) {
	s := newService(t, fixture())
	out, err := s.ScoreSeries(context.Background(), current, records.City)
	require.NoError(t, err)
	require.Equal(t, []string{"Mumbai", "Pune"}, out.Labels)

	pune := current
	pune.City = "Pune"
	out, err = s.ScoreSeries(context.Background(), pune, records.School)
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, out.Labels)
}

func TestScoreSeries_EmptyIsNoData(t *testing.T) {
	s := newService(t, fixture())
	out, err := s.ScoreSeries(context.Background(), filters.Set{AcademicYear: "1999-00"}, records.School)
	require.NoError(t, err)
	require.True(t, out.NoData)
	require.Empty(t, out.Labels)
	require.NotNil(t, out.Data)
}

func TestScoreSeries_RejectsUnknownDimension(t *testing.T) {
	s := newService(t, fixture())
	_, err := s.ScoreSeries(context.Background(), current, records.Dimension("bogus"))
	require.ErrorIs(t, err, ErrUnsupportedDimension)
}

func TestScorePivot_MarginsAndNulls(t *testing.T) {
	s := newService(t, fixture())
	out, err := s.ScorePivot(context.Background(), current, records.School, records.Grade)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B", engine.TotalLabel}, out.Rows)
	require.Equal(t, []string{"Grade 1", "Grade 2", engine.TotalLabel}, out.Columns)
	require.Equal(t, 83.33, val(t, out.Table["A"]["Grade 1"]))
	require.Nil(t, out.Table["A"]["Grade 2"])
	require.Equal(t, 50.0, val(t, out.Table["B"]["Grade 1"]))
	require.Equal(t, 68.18, val(t, out.Table[engine.TotalLabel]["Grade 1"]))
	require.Equal(t, 50.0, val(t, out.Table[engine.TotalLabel][engine.TotalLabel]))

	_, err = s.ScorePivot(context.Background(), current, records.School, records.School)
	require.ErrorIs(t, err, ErrUnsupportedDimension)
}

func TestCompetencyDistributionAndSummary(t *testing.T) {
	s := newService(t, fixture())
	dist, err := s.CompetencyDistribution(context.Background(), current)
	require.NoError(t, err)
	require.Equal(t, []string{"L1", "L2"}, dist.Labels)
	require.Equal(t, []int{3, 2}, dist.Data)

	sum, err := s.SummaryStats(context.Background(), current)
	require.NoError(t, err)
	require.Equal(t, 4, sum.TotalStudents)
	require.Equal(t, 5, sum.TotalAssessments)
	require.Equal(t, 2, sum.TotalSchools)
	require.Equal(t, 50.0, val(t, sum.AverageScore))
	require.False(t, sum.NoData)
}

func TestBucketDistribution(t *testing.T) {
	s := newService(t, fixture())
	out, err := s.BucketDistribution(context.Background(), current)
	require.NoError(t, err)
	require.Equal(t, []string{"L1", "L2", engine.Overall}, out.Competencies)
	require.Equal(t, engine.Distribution{Green: 1}, out.Buckets["L1"])
	require.Equal(t, engine.Distribution{Red: 1, Blue: 1}, out.Buckets["L2"])
	require.Equal(t, engine.Distribution{Red: 1, Blue: 1, Green: 1}, out.Buckets[engine.Overall])
}

func TestBucketByGroup_DefaultsToSchoolsAndStudents(t *testing.T) {
	s := newService(t, fixture())
	out, err := s.BucketByGroup(context.Background(), current, "", "")
	require.NoError(t, err)
	require.Equal(t, records.School, out.GroupBy)
	require.Equal(t, records.Student, out.Entity)
	require.Len(t, out.Groups, 2)
	require.Equal(t, "A", out.Groups[0].Group)
	require.Equal(t, 100.0, out.Groups[0].Green)
	require.Equal(t, "B", out.Groups[1].Group)
	require.Equal(t, 50.0, out.Groups[1].Red)
	require.Equal(t, 2, out.Groups[1].Total)
}

func TestComparePeriods(t *testing.T) {
	s := newService(t, fixture())
	out, err := s.ComparePeriods(context.Background(), filters.Set{AcademicYear: "2023-24"}, current)
	require.NoError(t, err)
	require.Equal(t, "2023-24", out.Period1.Label)
	require.Equal(t, "2024-25", out.Period2.Label)
	require.Equal(t, engine.Improvement{
		AverageScoreChange:        10,
		AverageScorePercentChange: 25,
		AssessmentCountChange:     4,
		StudentCountChange:        3,
	}, out.Improvement)

	require.Len(t, out.SubjectComparison, 2)
	require.Equal(t, "English", out.SubjectComparison[0].Key)
	require.Equal(t, 0.0, out.SubjectComparison[0].Period1)
	require.Equal(t, 0.0, out.SubjectComparison[0].PercentChange)
	require.Equal(t, "Math", out.SubjectComparison[1].Key)
}

func TestEnrollmentPivot_CountsUniqueStudents(t *testing.T) {
	s := newService(t, fixture())
	out, err := s.EnrollmentPivot(context.Background(), current, "", "")
	require.NoError(t, err)
	require.Equal(t, 2, out.Table["A"]["Grade 1"])
	require.Equal(t, 0, out.Table["A"]["Grade 2"])
	require.Equal(t, 3, out.Table[engine.TotalLabel]["Grade 1"])
	require.Equal(t, Scorecard{Total: 4, Male: 1, Female: 2}, out.Scorecard)

	_, err = s.EnrollmentPivot(context.Background(), current, records.Subject, records.Grade)
	require.ErrorIs(t, err, ErrUnsupportedDimension)
}

func TestAttendance(t *testing.T) {
	s := newService(t, fixture())
	trend, err := s.AttendanceTrend(context.Background(), records.KindStudent, filters.Set{})
	require.NoError(t, err)
	require.Equal(t, engine.MonthOrder, trend.Labels)
	require.Equal(t, 90.0, val(t, trend.Data[0]))
	require.Equal(t, 50.0, val(t, trend.Data[1]))
	require.Nil(t, trend.Data[2])

	pivot, err := s.AttendancePivot(context.Background(), records.KindStudent, filters.Set{}, "", "")
	require.NoError(t, err)
	require.Equal(t, []string{"A", engine.TotalLabel}, pivot.Rows)
	require.Equal(t, 70.0, val(t, pivot.Table["A"]["Grade 1"]))

	ptm, err := s.AttendanceTrend(context.Background(), records.KindPTM, filters.Set{})
	require.NoError(t, err)
	require.True(t, ptm.NoData)
	require.Len(t, ptm.Data, 12)

	_, err = s.AttendancePivot(context.Background(), records.KindStudent, filters.Set{}, records.Subject, records.Grade)
	require.ErrorIs(t, err, ErrUnsupportedDimension)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("")
	require.NoError(t, err)
	require.Equal(t, records.KindStudent, k)
	k, err = ParseKind(" PTM ")
	require.NoError(t, err)
	require.Equal(t, records.KindPTM, k)
	_, err = ParseKind("staff")
	require.Error(t, err)
}

func TestListAssessments_Pages(t *testing.T) {
	s := newService(t, fixture())
	ctx := context.Background()

	p1, err := s.ListAssessments(ctx, current, "", 2)
	require.NoError(t, err)
	require.Equal(t, 5, p1.Total)
	require.Len(t, p1.Rows, 2)
	require.Equal(t, "s4", p1.Rows[0].StudentID)
	require.Equal(t, "English", p1.Rows[1].Subject)
	require.True(t, p1.Truncated)
	require.NotEmpty(t, p1.NextCursor)

	p2, err := s.ListAssessments(ctx, current, p1.NextCursor, 0)
	require.NoError(t, err)
	require.Len(t, p2.Rows, 2)
	require.Equal(t, "Math", p2.Rows[0].Subject)
	require.Equal(t, "s2", p2.Rows[1].StudentID)

	p3, err := s.ListAssessments(ctx, current, p2.NextCursor, 0)
	require.NoError(t, err)
	require.Len(t, p3.Rows, 1)
	require.False(t, p3.Truncated)
	require.Empty(t, p3.NextCursor)

	_, err = s.ListAssessments(ctx, filters.Set{AcademicYear: "2023-24"}, p1.NextCursor, 0)
	require.ErrorIs(t, err, ErrCursorMismatch)
	_, err = s.ListAssessments(ctx, current, "not-a-cursor", 0)
	require.ErrorIs(t, err, ErrCursorMismatch)
}

func TestOptions(t *testing.T) {
	s := newService(t, fixture())
	out, err := s.Options(context.Background(), filters.Set{})
	require.NoError(t, err)
	require.Equal(t, []string{"2023-24", "2024-25"}, out.AcademicYears)
	require.Equal(t, []string{"Math", "English"}, out.Subjects)
	require.Equal(t, []string{"Grade 1", "Grade 2"}, out.Grades)
	require.Equal(t, []string{"Mumbai", "Pune"}, out.Cities)
	require.Equal(t, "2023-07-10", out.MinDate)
	require.Equal(t, "2024-08-05", out.MaxDate)

	bare := newService(t, fixture(), func(d *Deps) { d.Cities = nil })
	out, err = bare.Options(context.Background(), filters.Set{})
	require.NoError(t, err)
	require.Empty(t, out.Cities)
}

func TestOptions_NarrowToSelectedYear(t *testing.T) {
	s := newService(t, fixture())
	ctx := context.Background()

	all, err := s.Options(ctx, filters.Set{})
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, all.Schools)

	// school is not a narrowing field and must not hide other schools
	past, err := s.Options(ctx, filters.Set{AcademicYear: "2023-24", School: "B"})
	require.NoError(t, err)
	require.Equal(t, []string{"2023-24", "2024-25"}, past.AcademicYears)
	require.Equal(t, []string{"A"}, past.Schools)
	require.Equal(t, []string{"Math"}, past.Subjects)
	require.Equal(t, []string{"Grade 1"}, past.Grades)

	thisYear, err := s.Options(ctx, filters.Set{AcademicYear: "2024-25"})
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, thisYear.Schools)
	require.Equal(t, []string{"Grade 1", "Grade 2"}, thisYear.Grades)
}

func TestResultsAreCachedUntilImport(t *testing.T) {
	m := fixture()
	s := newService(t, m)
	ctx := context.Background()

	first, err := s.SummaryStats(ctx, current)
	require.NoError(t, err)
	m.AddAssessments(assessment("2024-25", "s9", "C", "Grade 3", "Math", "L1", "F", day(2024, 9, 1), 1, 10))
	again, err := s.SummaryStats(ctx, filters.Set{AcademicYear: " 2024-25 ", School: "All"})
	require.NoError(t, err)
	require.Equal(t, first, again)

	s.cache.Purge()
	fresh, err := s.SummaryStats(ctx, current)
	require.NoError(t, err)
	require.Equal(t, 6, fresh.TotalAssessments)
}

func TestCacheEvictsOldestResult(t *testing.T) {
	m := fixture()
	s := newService(t, m, func(d *Deps) { d.Cache = cache.NewFIFO[any](1) })
	ctx := context.Background()

	_, err := s.SummaryStats(ctx, current)
	require.NoError(t, err)
	_, err = s.CompetencyDistribution(ctx, current)
	require.NoError(t, err)
	require.Equal(t, 1, s.cache.Len())

	m.AddAssessments(assessment("2024-25", "s9", "C", "Grade 3", "Math", "L1", "F", day(2024, 9, 1), 1, 10))
	sum, err := s.SummaryStats(ctx, current)
	require.NoError(t, err)
	require.Equal(t, 6, sum.TotalAssessments)
	require.Equal(t, "summary_stats", cacheTool(cacheKey("summary_stats", current, nil)))
}

func TestRowCap(t *testing.T) {
	s := newService(t, fixture(), func(d *Deps) { d.Limits.MaxFactRows = 2 })
	_, err := s.SummaryStats(context.Background(), current)
	require.ErrorIs(t, err, mcperr.ErrLimitExceeded)
}

type downSource struct{ store.Source }

func (downSource) Assessments(context.Context, filters.Query) ([]records.Assessment, error) {
	return nil, mcperr.Unavailable("assessments", errors.New("connection refused"))
}

func TestSourceFailureIsUnavailable(t *testing.T) {
	s := New(Deps{Source: downSource{}, Logger: zerolog.Nop()})
	_, err := s.ScoreSeries(context.Background(), current, records.School)
	require.True(t, mcperr.IsUnavailable(err))
}

type downDirectory struct{}

func (downDirectory) Mapping(context.Context) (citydir.Mapping, error) {
	return nil, errors.New("dial tcp: refused")
}

func TestCityDirectoryFailureIsUnavailable(t *testing.T) {
	s := newService(t, fixture(), func(d *Deps) { d.Cities = downDirectory{} })
	_, err := s.SummaryStats(context.Background(), filters.Set{City: "Pune"})
	require.True(t, mcperr.IsUnavailable(err))
}

func writeWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	sh := "Marks"
	require.NoError(t, f.SetSheetName("Sheet1", sh))
	require.NoError(t, f.SetSheetRow(sh, "A1", &[]string{"Student ID", "School", "Grade", "Subject", "Academic Year", "Obtained Marks", "Max Marks"}))
	require.NoError(t, f.SetSheetRow(sh, "A2", &[]string{"w1", "D", "3", "maths", "2024-25", "30", "40"}))
	require.NoError(t, f.SetSheetRow(sh, "A3", &[]string{"w2", "D", "3", "eng", "2024-25", "abc", "40"}))
	path := filepath.Join(t.TempDir(), "marks.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
	return path
}

func TestImport(t *testing.T) {
	m := fixture()
	wb := workbooks.NewManager(0, 0, nil, nil)
	s := newService(t, m, func(d *Deps) {
		d.Workbooks = wb
		d.ImportsEnabled = true
	})
	require.True(t, s.ImportsEnabled())
	ctx := context.Background()

	_, err := s.SummaryStats(ctx, filters.Set{School: "D"})
	require.NoError(t, err)

	res, err := s.Import(ctx, writeWorkbook(t), "", "")
	require.NoError(t, err)
	require.Equal(t, ModeAppend, res.Mode)
	require.Equal(t, "Marks", res.Sheet)
	require.Equal(t, 1, res.Imported)
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, 7, res.TotalRows)
	require.NotEmpty(t, res.BatchID)
	require.Zero(t, wb.Count())

	sum, err := s.SummaryStats(ctx, filters.Set{School: "D"})
	require.NoError(t, err)
	require.Equal(t, 75.0, val(t, sum.AverageScore))

	res, err = s.Import(ctx, writeWorkbook(t), "marks", ModeReplace)
	require.NoError(t, err)
	require.Equal(t, "Marks", res.Sheet)
	require.Equal(t, 1, res.TotalRows)

	_, err = s.Import(ctx, writeWorkbook(t), "Scores", ModeAppend)
	require.True(t, mcperr.IsInvalidSheet(err))
	require.Zero(t, wb.Count())

	_, err = s.Import(ctx, writeWorkbook(t), "", "merge")
	require.Error(t, err)
}

func TestImport_Disabled(t *testing.T) {
	s := newService(t, fixture())
	require.False(t, s.ImportsEnabled())
	_, err := s.Import(context.Background(), "x.xlsx", "", "")
	require.ErrorIs(t, err, mcperr.ErrImportsDisabled)
}
