package insights

import (
	"context"

	"github.com/pkg/errors"

	"github.com/schoolpulse/schoolpulse/internal/engine"
	"github.com/schoolpulse/schoolpulse/internal/filters"
	"github.com/schoolpulse/schoolpulse/internal/records"
)

// AttendancePivotResult is a present/total percentage cross-tab for one
// attendance kind.
type AttendancePivotResult struct {
	Kind records.AttendanceKind `json:"kind"`
	PivotResult
}

// AttendanceTrendResult is the monthly attendance percentage, June to May.
type AttendanceTrendResult struct {
	Kind   records.AttendanceKind `json:"kind"`
	Labels []string               `json:"labels"`
	Data   []*float64             `json:"data"`
	NoData bool                   `json:"no_data"`
}

// AttendancePivot crosses two dimensions over summed present and total
// counts. Zero dimensions default to school by grade.
func (s *Service) AttendancePivot(ctx context.Context, kind records.AttendanceKind, set filters.Set, row, col records.Dimension) (AttendancePivotResult, error) {
	if row == "" {
		row = records.School
	}
	if col == "" {
		col = records.Grade
	}
	if row == col {
		return AttendancePivotResult{}, errors.Wrap(ErrUnsupportedDimension, "row and column dimensions must differ")
	}
	if err := checkDims(records.AttendanceDimensions, row, col); err != nil {
		return AttendancePivotResult{}, err
	}
	params := []string{string(kind), string(row), string(col)}
	return cached(s, "attendance_pivot", set, params, func() (AttendancePivotResult, error) {
		rows, err := s.attendance(ctx, kind, set, row, col)
		if err != nil {
			return AttendancePivotResult{}, err
		}
		p := engine.BuildPivot(rows, row, col)
		v := p.View()
		return AttendancePivotResult{
			Kind: kind,
			PivotResult: PivotResult{
				RowDimension:    row,
				ColumnDimension: col,
				Rows:            v.Rows,
				Columns:         v.Columns,
				Table:           v.Table,
				NoData:          len(p.Rows) == 0,
			},
		}, nil
	})
}

// AttendanceTrend reports attendance per academic month. Months without
// data are null.
func (s *Service) AttendanceTrend(ctx context.Context, kind records.AttendanceKind, set filters.Set) (AttendanceTrendResult, error) {
	return cached(s, "attendance_trend", set, kind, func() (AttendanceTrendResult, error) {
		rows, err := s.attendance(ctx, kind, set)
		if err != nil {
			return AttendanceTrendResult{}, err
		}
		res := engine.Aggregate(rows, records.Month)
		series := engine.SeriesFor(res, engine.MonthOrder)
		return AttendanceTrendResult{
			Kind:   kind,
			Labels: series.Labels,
			Data:   series.Data,
			NoData: res.Empty(),
		}, nil
	})
}
