package insights

import (
	"context"

	"github.com/pkg/errors"

	"github.com/schoolpulse/schoolpulse/internal/engine"
	"github.com/schoolpulse/schoolpulse/internal/filters"
	"github.com/schoolpulse/schoolpulse/internal/records"
)

// SeriesResult is a chart-ready percentage series over one dimension.
type SeriesResult struct {
	Dimension records.Dimension `json:"dimension"`
	Labels    []string          `json:"labels"`
	Data      []*float64        `json:"data"`
	NoData    bool              `json:"no_data"`
}

// PivotResult is a percentage cross-tab with Total margins.
type PivotResult struct {
	RowDimension    records.Dimension              `json:"row_dimension"`
	ColumnDimension records.Dimension              `json:"column_dimension"`
	Rows            []string                       `json:"rows"`
	Columns         []string                       `json:"columns"`
	Table           map[string]map[string]*float64 `json:"table"`
	NoData          bool                           `json:"no_data"`
}

// CountResult is a record count per dimension value.
type CountResult struct {
	Dimension records.Dimension `json:"dimension"`
	Labels    []string          `json:"labels"`
	Data      []int             `json:"data"`
	NoData    bool              `json:"no_data"`
}

// SummaryResult holds headline totals for a filter selection.
type SummaryResult struct {
	engine.Stats
	NoData bool `json:"no_data"`
}

// ScoreSeries computes the sum-based average score per value of d.
// Months use the fixed June to May axis with null gaps.
func (s *Service) ScoreSeries(ctx context.Context, set filters.Set, d records.Dimension) (SeriesResult, error) {
	if err := checkDims(records.AssessmentDimensions, d); err != nil {
		return SeriesResult{}, err
	}
	return cached(s, "score_series", set, d, func() (SeriesResult, error) {
		rows, err := s.assessments(ctx, set, d)
		if err != nil {
			return SeriesResult{}, err
		}
		res := engine.Aggregate(rows, d)
		return seriesResult(d, res), nil
	})
}

func seriesResult(d records.Dimension, res engine.Result) SeriesResult {
	series := res.Series()
	if d == records.Month {
		series = engine.SeriesFor(res, engine.MonthOrder)
	}
	return SeriesResult{
		Dimension: d,
		Labels:    nonNil(series.Labels),
		Data:      nonNilData(series.Data),
		NoData:    res.Empty(),
	}
}

func nonNilData(v []*float64) []*float64 {
	if v == nil {
		return []*float64{}
	}
	return v
}

// ScorePivot crosses two dimensions and reports percentages with sum-based margins.
func (s *Service) ScorePivot(ctx context.Context, set filters.Set, row, col records.Dimension) (PivotResult, error) {
	if row == col {
		return PivotResult{}, errors.Wrap(ErrUnsupportedDimension, "row and column dimensions must differ")
	}
	if err := checkDims(records.AssessmentDimensions, row, col); err != nil {
		return PivotResult{}, err
	}
	return cached(s, "score_pivot", set, []records.Dimension{row, col}, func() (PivotResult, error) {
		rows, err := s.assessments(ctx, set, row, col)
		if err != nil {
			return PivotResult{}, err
		}
		p := engine.BuildPivot(rows, row, col)
		v := p.View()
		return PivotResult{
			RowDimension:    row,
			ColumnDimension: col,
			Rows:            v.Rows,
			Columns:         v.Columns,
			Table:           v.Table,
			NoData:          len(p.Rows) == 0,
		}, nil
	})
}

// CompetencyDistribution counts assessment records per competency level.
func (s *Service) CompetencyDistribution(ctx context.Context, set filters.Set) (CountResult, error) {
	return cached(s, "competency_distribution", set, nil, func() (CountResult, error) {
		rows, err := s.assessments(ctx, set)
		if err != nil {
			return CountResult{}, err
		}
		c := engine.Count(rows, records.Competency)
		return CountResult{
			Dimension: records.Competency,
			Labels:    nonNil(c.Labels),
			Data:      nonNilCounts(c.Data),
			NoData:    len(c.Labels) == 0,
		}, nil
	})
}

func nonNilCounts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}

// SummaryStats reports student, assessment and school totals with the average score.
func (s *Service) SummaryStats(ctx context.Context, set filters.Set) (SummaryResult, error) {
	return cached(s, "summary_stats", set, nil, func() (SummaryResult, error) {
		rows, err := s.assessments(ctx, set)
		if err != nil {
			return SummaryResult{}, err
		}
		st := engine.Summarize(rows)
		return SummaryResult{Stats: st, NoData: st.AverageScore == nil}, nil
	})
}
