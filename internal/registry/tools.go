package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/schoolpulse/schoolpulse/internal/filters"
	"github.com/schoolpulse/schoolpulse/internal/insights"
	"github.com/schoolpulse/schoolpulse/internal/records"
	"github.com/schoolpulse/schoolpulse/internal/security"
	"github.com/schoolpulse/schoolpulse/internal/telemetry"
	"github.com/schoolpulse/schoolpulse/internal/workbooks"
	"github.com/schoolpulse/schoolpulse/pkg/mcperr"
	"github.com/schoolpulse/schoolpulse/pkg/validation"
)

// --- Input schemas ---

// FiltersInput carries only a filter selection.
type FiltersInput struct {
	Filters filters.Set `json:"filters,omitempty" jsonschema_description:"Filter selection; omitted or \"All\" fields are unconstrained"`
}

// OptionsInput narrows the secondary option lists.
type OptionsInput struct {
	Filters filters.Set `json:"filters,omitempty" jsonschema_description:"Optional academic_year, assessment_type and assessment_category; subjects, schools and grades are limited to them"`
}

// ScoreSeriesInput selects the grouping dimension for score_series.
type ScoreSeriesInput struct {
	Filters   filters.Set `json:"filters,omitempty" jsonschema_description:"Filter selection"`
	Dimension string      `json:"dimension" validate:"required,dimension" jsonschema_description:"Grouping dimension: school, grade, subject, city, gender, month, competency_level, ..."`
}

// ScorePivotInput selects the row and column dimensions of a score pivot.
type ScorePivotInput struct {
	Filters filters.Set `json:"filters,omitempty" jsonschema_description:"Filter selection"`
	Rows    string      `json:"rows" validate:"required,dimension" jsonschema_description:"Row dimension, e.g. school"`
	Columns string      `json:"columns" validate:"required,dimension,nefield=Rows" jsonschema_description:"Column dimension, e.g. grade"`
}

// BucketByGroupInput selects the grouping and classified entity.
type BucketByGroupInput struct {
	Filters filters.Set `json:"filters,omitempty" jsonschema_description:"Filter selection"`
	GroupBy string      `json:"group_by,omitempty" validate:"omitempty,dimension" jsonschema_description:"Group dimension (default school)"`
	Entity  string      `json:"entity,omitempty" validate:"omitempty,dimension" jsonschema_description:"Entity classified into bands (default student_id)"`
}

// ComparePeriodsInput holds the two selections to compare.
type ComparePeriodsInput struct {
	Period1 filters.Set `json:"period1" jsonschema_description:"Baseline selection, e.g. {academic_year: 2023-24}"`
	Period2 filters.Set `json:"period2" jsonschema_description:"Comparison selection, e.g. {academic_year: 2024-25}"`
}

// CountPivotInput selects enrollment pivot dimensions.
type CountPivotInput struct {
	Filters filters.Set `json:"filters,omitempty" jsonschema_description:"Filter selection"`
	Rows    string      `json:"rows,omitempty" validate:"omitempty,dimension" jsonschema_description:"Row dimension (default school)"`
	Columns string      `json:"columns,omitempty" validate:"omitempty,dimension" jsonschema_description:"Column dimension (default grade)"`
}

// AttendancePivotInput selects the attendance table and pivot dimensions.
type AttendancePivotInput struct {
	Filters filters.Set `json:"filters,omitempty" jsonschema_description:"Filter selection"`
	Kind    string      `json:"kind,omitempty" validate:"omitempty,attendance_kind" jsonschema_description:"student (default), ptm or swptm"`
	Rows    string      `json:"rows,omitempty" validate:"omitempty,dimension" jsonschema_description:"Row dimension (default school)"`
	Columns string      `json:"columns,omitempty" validate:"omitempty,dimension" jsonschema_description:"Column dimension (default grade)"`
}

// AttendanceTrendInput selects the attendance table for a monthly trend.
type AttendanceTrendInput struct {
	Filters filters.Set `json:"filters,omitempty" jsonschema_description:"Filter selection"`
	Kind    string      `json:"kind,omitempty" validate:"omitempty,attendance_kind" jsonschema_description:"student (default), ptm or swptm"`
}

// ListAssessmentsInput pages raw assessment rows.
type ListAssessmentsInput struct {
	Filters  filters.Set `json:"filters,omitempty" jsonschema_description:"Filter selection; must be resent unchanged with a cursor"`
	Cursor   string      `json:"cursor,omitempty" validate:"cursor" jsonschema_description:"Opaque cursor from a previous page"`
	PageSize int         `json:"page_size,omitempty" validate:"omitempty,min=1,max=500" jsonschema_description:"Rows per page (default 50)"`
}

// ImportWorkbookInput names the workbook to import.
type ImportWorkbookInput struct {
	Path  string `json:"path" validate:"required,filepath_ext" jsonschema_description:"Path to an .xlsx workbook inside an allowed directory"`
	Sheet string `json:"sheet,omitempty" jsonschema_description:"Sheet name (default first sheet)"`
	Mode  string `json:"mode,omitempty" validate:"omitempty,oneof=append replace" jsonschema_description:"append (default) or replace the imported rows"`
}

// RegisterTools defines every dashboard tool on s and records it in reg.
// reporter may be nil.
func RegisterTools(s *server.MCPServer, reg *Registry, svc *insights.Service, reporter *telemetry.Reporter) {
	add := func(tool mcp.Tool, h server.ToolHandlerFunc) {
		s.AddTool(tool, h)
		reg.Register(tool)
	}

	add(mcp.NewTool(
		"get_filter_options",
		mcp.WithDescription("List the selectable academic years, assessment types and categories, subjects, schools, grades and cities, plus the span of assessment dates. Subjects, schools and grades narrow to the given academic year, assessment type and category. Use this first to build valid filters."),
		mcp.WithInputSchema[OptionsInput](),
		mcp.WithOutputSchema[insights.Options](),
	), typed(reporter, mcperr.AnalysisFailed, func(ctx context.Context, in OptionsInput) (insights.Options, error) {
		return svc.Options(ctx, in.Filters)
	}, func(o insights.Options) string {
		return fmt.Sprintf("years=%d schools=%d grades=%d subjects=%d cities=%d", len(o.AcademicYears), len(o.Schools), len(o.Grades), len(o.Subjects), len(o.Cities))
	}))

	add(mcp.NewTool(
		"score_series",
		mcp.WithDescription("Average score per value of one dimension, computed as 100 * sum(obtained) / sum(max). Month series always cover June to May with null for months without data."),
		mcp.WithInputSchema[ScoreSeriesInput](),
		mcp.WithOutputSchema[insights.SeriesResult](),
	), typed(reporter, mcperr.AnalysisFailed, func(ctx context.Context, in ScoreSeriesInput) (insights.SeriesResult, error) {
		d, _ := records.ParseDimension(in.Dimension)
		return svc.ScoreSeries(ctx, in.Filters, d)
	}, func(o insights.SeriesResult) string {
		return fmt.Sprintf("dimension=%s labels=%d no_data=%v", o.Dimension, len(o.Labels), o.NoData)
	}))

	add(mcp.NewTool(
		"score_pivot",
		mcp.WithDescription("Cross-tab of average scores (e.g. school by grade) with a Total column and Total row. Margins are summed from raw marks, never averaged from cells. Empty cells are null."),
		mcp.WithInputSchema[ScorePivotInput](),
		mcp.WithOutputSchema[insights.PivotResult](),
	), typed(reporter, mcperr.AnalysisFailed, func(ctx context.Context, in ScorePivotInput) (insights.PivotResult, error) {
		r, _ := records.ParseDimension(in.Rows)
		c, _ := records.ParseDimension(in.Columns)
		return svc.ScorePivot(ctx, in.Filters, r, c)
	}, pivotSummary))

	add(mcp.NewTool(
		"competency_distribution",
		mcp.WithDescription("Number of assessment records per competency level."),
		mcp.WithInputSchema[FiltersInput](),
		mcp.WithOutputSchema[insights.CountResult](),
	), typed(reporter, mcperr.AnalysisFailed, func(ctx context.Context, in FiltersInput) (insights.CountResult, error) {
		return svc.CompetencyDistribution(ctx, in.Filters)
	}, func(o insights.CountResult) string {
		return fmt.Sprintf("levels=%d no_data=%v", len(o.Labels), o.NoData)
	}))

	add(mcp.NewTool(
		"bucket_distribution",
		mcp.WithDescription("Students per performance band for each competency level and Overall. A student's band comes from their summed marks: below 35% Red, up to and including 60% Blue, above 60% Green."),
		mcp.WithInputSchema[FiltersInput](),
		mcp.WithOutputSchema[insights.BucketResult](),
	), typed(reporter, mcperr.AnalysisFailed, func(ctx context.Context, in FiltersInput) (insights.BucketResult, error) {
		return svc.BucketDistribution(ctx, in.Filters)
	}, func(o insights.BucketResult) string {
		d := o.Buckets["Overall"]
		return fmt.Sprintf("overall red=%d blue=%d green=%d", d.Red, d.Blue, d.Green)
	}))

	add(mcp.NewTool(
		"bucket_by_group",
		mcp.WithDescription("Share and count of entities (default students) in each band within each group (default school), sorted by green share."),
		mcp.WithInputSchema[BucketByGroupInput](),
		mcp.WithOutputSchema[insights.GroupBucketResult](),
	), typed(reporter, mcperr.AnalysisFailed, func(ctx context.Context, in BucketByGroupInput) (insights.GroupBucketResult, error) {
		return svc.BucketByGroup(ctx, in.Filters, dimension(in.GroupBy), dimension(in.Entity))
	}, func(o insights.GroupBucketResult) string {
		return fmt.Sprintf("group_by=%s groups=%d", o.GroupBy, len(o.Groups))
	}))

	add(mcp.NewTool(
		"summary_stats",
		mcp.WithDescription("Distinct students, assessment records, distinct schools and the sum-based average score."),
		mcp.WithInputSchema[FiltersInput](),
		mcp.WithOutputSchema[insights.SummaryResult](),
	), typed(reporter, mcperr.AnalysisFailed, func(ctx context.Context, in FiltersInput) (insights.SummaryResult, error) {
		return svc.SummaryStats(ctx, in.Filters)
	}, func(o insights.SummaryResult) string {
		return fmt.Sprintf("students=%d assessments=%d schools=%d average=%s", o.TotalStudents, o.TotalAssessments, o.TotalSchools, pct(o.AverageScore))
	}))

	add(mcp.NewTool(
		"compare_periods",
		mcp.WithDescription("Compare two selections (e.g. two academic years): headline stats, competency counts, per-subject averages with difference and percent change, sorted by absolute difference. Subjects present in one period only count as 0 in the other."),
		mcp.WithInputSchema[ComparePeriodsInput](),
		mcp.WithOutputSchema[insights.Comparison](),
	), typed(reporter, mcperr.AnalysisFailed, func(ctx context.Context, in ComparePeriodsInput) (insights.Comparison, error) {
		return svc.ComparePeriods(ctx, in.Period1, in.Period2)
	}, func(o insights.Comparison) string {
		return fmt.Sprintf("%s vs %s: average change %.2f (%.2f%%)", o.Period1.Label, o.Period2.Label, o.Improvement.AverageScoreChange, o.Improvement.AverageScorePercentChange)
	}))

	add(mcp.NewTool(
		"enrollment_pivot",
		mcp.WithDescription("Unique active students per school and grade (or other roster dimensions) with Total margins, plus a total/male/female scorecard."),
		mcp.WithInputSchema[CountPivotInput](),
		mcp.WithOutputSchema[insights.EnrollmentResult](),
	), typed(reporter, mcperr.AnalysisFailed, func(ctx context.Context, in CountPivotInput) (insights.EnrollmentResult, error) {
		return svc.EnrollmentPivot(ctx, in.Filters, dimension(in.Rows), dimension(in.Columns))
	}, func(o insights.EnrollmentResult) string {
		return fmt.Sprintf("students=%d male=%d female=%d", o.Scorecard.Total, o.Scorecard.Male, o.Scorecard.Female)
	}))

	add(mcp.NewTool(
		"attendance_pivot",
		mcp.WithDescription("Attendance percentage (present / total) by school and grade for student days, parent-teacher meetings (ptm) or student-wise PTMs (swptm)."),
		mcp.WithInputSchema[AttendancePivotInput](),
		mcp.WithOutputSchema[insights.AttendancePivotResult](),
	), typed(reporter, mcperr.AnalysisFailed, func(ctx context.Context, in AttendancePivotInput) (insights.AttendancePivotResult, error) {
		kind, err := insights.ParseKind(in.Kind)
		if err != nil {
			return insights.AttendancePivotResult{}, err
		}
		return svc.AttendancePivot(ctx, kind, in.Filters, dimension(in.Rows), dimension(in.Columns))
	}, func(o insights.AttendancePivotResult) string {
		return string(o.Kind) + " " + pivotSummary(o.PivotResult)
	}))

	add(mcp.NewTool(
		"attendance_trend",
		mcp.WithDescription("Monthly attendance percentage over the academic year, June to May, null for months without data."),
		mcp.WithInputSchema[AttendanceTrendInput](),
		mcp.WithOutputSchema[insights.AttendanceTrendResult](),
	), typed(reporter, mcperr.AnalysisFailed, func(ctx context.Context, in AttendanceTrendInput) (insights.AttendanceTrendResult, error) {
		kind, err := insights.ParseKind(in.Kind)
		if err != nil {
			return insights.AttendanceTrendResult{}, err
		}
		return svc.AttendanceTrend(ctx, kind, in.Filters)
	}, func(o insights.AttendanceTrendResult) string {
		return fmt.Sprintf("kind=%s no_data=%v", o.Kind, o.NoData)
	}))

	add(mcp.NewTool(
		"list_assessments",
		mcp.WithDescription("Page through raw assessment rows ordered by date, school, student and subject. Pass next_cursor with the same filters to continue."),
		mcp.WithInputSchema[ListAssessmentsInput](),
		mcp.WithOutputSchema[insights.Page](),
	), typed(reporter, mcperr.AnalysisFailed, func(ctx context.Context, in ListAssessmentsInput) (insights.Page, error) {
		return svc.ListAssessments(ctx, in.Filters, in.Cursor, in.PageSize)
	}, func(o insights.Page) string {
		return fmt.Sprintf("total=%d returned=%d truncated=%v", o.Total, o.Returned, o.Truncated)
	}))

	add(mcp.NewTool(
		"import_workbook",
		mcp.WithDescription("Load assessment rows from an .xlsx workbook in an allowed directory into the in-memory source. Requires a header row with school, obtained_marks and max_marks columns. Clears cached results."),
		mcp.WithInputSchema[ImportWorkbookInput](),
		mcp.WithOutputSchema[insights.ImportResult](),
	), typed(reporter, mcperr.ImportFailed, func(ctx context.Context, in ImportWorkbookInput) (insights.ImportResult, error) {
		return svc.Import(ctx, in.Path, in.Sheet, in.Mode)
	}, func(o insights.ImportResult) string {
		return fmt.Sprintf("imported=%d skipped=%d total_rows=%d sheet=%s", o.Imported, o.Skipped, o.TotalRows, o.Sheet)
	}))
}

// typed validates the decoded input, runs fn and renders its output as
// structured content with a one-line text summary.
func typed[In, Out any](reporter *telemetry.Reporter, fallback mcperr.Code, fn func(context.Context, In) (Out, error), summarize func(Out) string) server.ToolHandlerFunc {
	return mcp.NewTypedToolHandler(func(ctx context.Context, req mcp.CallToolRequest, in In) (*mcp.CallToolResult, error) {
		if msg := validation.ValidateStruct(in); msg != "" {
			return mcperr.FromText(msg), nil
		}
		out, err := fn(ctx, in)
		if err != nil {
			res := toolError(err, fallback)
			if isUnexpected(err) {
				reporter.Error(err, map[string]any{"tool": req.Params.Name})
			}
			return res, nil
		}
		return mcp.NewToolResultStructured(out, summarize(out)), nil
	})
}

// toolError maps service errors onto catalog codes.
func toolError(err error, fallback mcperr.Code) *mcp.CallToolResult {
	switch {
	case errors.Is(err, insights.ErrUnsupportedDimension):
		return mcperr.New(mcperr.Validation, err.Error())
	case errors.Is(err, insights.ErrCursorMismatch):
		return mcperr.New(mcperr.CursorInvalid, "")
	case errors.Is(err, security.ErrNotAllowed), errors.Is(err, security.ErrNoAllowedDirs):
		return mcperr.New(mcperr.PermissionDenied, "")
	case errors.Is(err, security.ErrNotFound):
		return mcperr.New(mcperr.OpenFailed, "file not found")
	case errors.Is(err, workbooks.ErrUnsupportedFormat), errors.Is(err, security.ErrUnsupportedExtension):
		return mcperr.New(mcperr.UnsupportedFormat, "")
	case errors.Is(err, workbooks.ErrMissingColumn):
		return mcperr.New(mcperr.ImportFailed, err.Error())
	case mcperr.IsInvalidSheet(err):
		return mcperr.New(mcperr.InvalidSheet, "")
	}
	return mcperr.FromError(err, fallback)
}

// isUnexpected reports errors worth sending to the error tracker.
func isUnexpected(err error) bool {
	switch {
	case mcperr.IsUnavailable(err),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, mcperr.ErrLimitExceeded),
		errors.Is(err, mcperr.ErrImportsDisabled),
		errors.Is(err, insights.ErrUnsupportedDimension),
		errors.Is(err, insights.ErrCursorMismatch):
		return false
	}
	return true
}

func dimension(s string) records.Dimension {
	d, _ := records.ParseDimension(s)
	return d
}

func pivotSummary(o insights.PivotResult) string {
	return fmt.Sprintf("%s x %s rows=%d columns=%d no_data=%v", o.RowDimension, o.ColumnDimension, len(o.Rows)-1, len(o.Columns)-1, o.NoData)
}

func pct(p *float64) string {
	if p == nil {
		return "null"
	}
	return fmt.Sprintf("%.2f", *p)
}
