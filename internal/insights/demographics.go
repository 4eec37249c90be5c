package insights

import (
	"context"

	"github.com/pkg/errors"

	"github.com/schoolpulse/schoolpulse/internal/engine"
	"github.com/schoolpulse/schoolpulse/internal/filters"
	"github.com/schoolpulse/schoolpulse/internal/records"
)

// Scorecard is the headline enrollment count split by gender.
type Scorecard struct {
	Total  int `json:"total"`
	Male   int `json:"male"`
	Female int `json:"female"`
}

// EnrollmentResult is the unique-student cross-tab with its scorecard.
type EnrollmentResult struct {
	RowDimension    records.Dimension         `json:"row_dimension"`
	ColumnDimension records.Dimension         `json:"column_dimension"`
	Rows            []string                  `json:"rows"`
	Columns         []string                  `json:"columns"`
	Table           map[string]map[string]int `json:"table"`
	Scorecard       Scorecard                 `json:"scorecard"`
	NoData          bool                      `json:"no_data"`
}

// EnrollmentPivot counts unique active students per (row, col). Margins
// count each student once. Zero dimensions default to school by grade.
func (s *Service) EnrollmentPivot(ctx context.Context, set filters.Set, row, col records.Dimension) (EnrollmentResult, error) {
	if row == "" {
		row = records.School
	}
	if col == "" {
		col = records.Grade
	}
	if row == col {
		return EnrollmentResult{}, errors.Wrap(ErrUnsupportedDimension, "row and column dimensions must differ")
	}
	if err := checkDims(records.EnrollmentDimensions, row, col); err != nil {
		return EnrollmentResult{}, err
	}
	return cached(s, "enrollment_pivot", set, []records.Dimension{row, col}, func() (EnrollmentResult, error) {
		rows, err := s.enrollment(ctx, set, row, col)
		if err != nil {
			return EnrollmentResult{}, err
		}
		p := engine.BuildCountPivot(rows, row, col, records.Student)
		v := p.View()
		gender := func(g string) func(records.Enrollment) bool {
			return func(e records.Enrollment) bool { return e.Gender == g }
		}
		return EnrollmentResult{
			RowDimension:    row,
			ColumnDimension: col,
			Rows:            v.Rows,
			Columns:         v.Columns,
			Table:           v.Table,
			Scorecard: Scorecard{
				Total:  p.Grand,
				Male:   engine.CountDistinct(rows, records.Student, gender("M")),
				Female: engine.CountDistinct(rows, records.Student, gender("F")),
			},
			NoData: p.Grand == 0,
		}, nil
	})
}
