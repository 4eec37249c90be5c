package insights

import (
	"context"
	"slices"

	"github.com/schoolpulse/schoolpulse/internal/engine"
	"github.com/schoolpulse/schoolpulse/internal/filters"
	"github.com/schoolpulse/schoolpulse/internal/records"
)

// Options lists the selectable filter values.
type Options struct {
	AcademicYears        []string `json:"academic_years"`
	AssessmentTypes      []string `json:"assessment_types"`
	AssessmentCategories []string `json:"assessment_categories"`
	Subjects             []string `json:"subjects"`
	Schools              []string `json:"schools"`
	Grades               []string `json:"grades"`
	Cities               []string `json:"cities"`
	MinDate              string   `json:"min_date,omitempty"`
	MaxDate              string   `json:"max_date,omitempty"`
}

// primaryDims are always listed in full. The secondary lists narrow to the
// selected primary values.
var (
	primaryDims   = []records.Dimension{records.AcademicYear, records.AssessmentType, records.AssessmentCategory}
	secondaryDims = []records.Dimension{records.Subject, records.School, records.Grade}
)

// Options returns the distinct values available for each filter. Subjects,
// schools and grades are restricted to the academic year, assessment type and
// category chosen in set; other fields of set are ignored.
// Cities are empty when no directory is configured.
func (s *Service) Options(ctx context.Context, set filters.Set) (Options, error) {
	set = filters.Set{
		AcademicYear:       set.AcademicYear,
		AssessmentType:     set.AssessmentType,
		AssessmentCategory: set.AssessmentCategory,
	}
	return cached(s, "options", set, nil, func() (Options, error) {
		q, err := s.resolve(ctx, set)
		if err != nil {
			return Options{}, err
		}
		narrow := filters.Query{Equals: q.Only(primaryDims...).Equals}

		values := make(map[records.Dimension][]string, len(primaryDims)+len(secondaryDims))
		for _, d := range append(append([]records.Dimension(nil), primaryDims...), secondaryDims...) {
			var within filters.Query
			if slices.Contains(secondaryDims, d) {
				within = narrow
			}
			v, err := s.source.Distinct(ctx, d, within)
			if err != nil {
				return Options{}, err
			}
			v = nonNil(append([]string(nil), v...))
			engine.SortValues(d, v)
			values[d] = v
		}
		out := Options{
			AcademicYears:        values[records.AcademicYear],
			AssessmentTypes:      values[records.AssessmentType],
			AssessmentCategories: values[records.AssessmentCategory],
			Subjects:             values[records.Subject],
			Schools:              values[records.School],
			Grades:               values[records.Grade],
			Cities:               []string{},
		}
		if s.cities != nil {
			m, err := s.cities.Mapping(ctx)
			if err != nil {
				return Options{}, err
			}
			out.Cities = nonNil(m.Cities())
		}
		from, to, err := s.source.DateRange(ctx)
		if err != nil {
			return Options{}, err
		}
		if !from.IsZero() {
			out.MinDate = from.Format(filters.DateLayout)
			out.MaxDate = to.Format(filters.DateLayout)
		}
		return out, nil
	})
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
