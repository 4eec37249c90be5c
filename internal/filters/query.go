package filters

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/schoolpulse/schoolpulse/internal/citydir"
	"github.com/schoolpulse/schoolpulse/internal/records"
)

// Query is a resolved predicate over fact rows.
type Query struct {
	// Equals holds canonical per-dimension equality constraints.
	Equals map[records.Dimension]string
	// Schools restricts to a school set when non-nil; an empty non-nil set matches nothing.
	Schools []string
	From    time.Time
	To      time.Time
	// HasRange is set only when both date bounds parsed.
	HasRange bool
}

// Unconstrained reports whether the query matches every row.
func (q Query) Unconstrained() bool {
	return len(q.Equals) == 0 && q.Schools == nil && !q.HasRange
}

// Only keeps the equality constraints on dims, for row kinds that lack the others.
func (q Query) Only(dims ...records.Dimension) Query {
	out := q
	out.Equals = make(map[records.Dimension]string, len(q.Equals))
	for _, d := range dims {
		if v, ok := q.Equals[d]; ok {
			out.Equals[d] = v
		}
	}
	return out
}

// Match reports whether a row satisfies every constraint. The date range only
// applies to rows that carry a date.
func (q Query) Match(v records.Valued) bool {
	for d, want := range q.Equals {
		if !strings.EqualFold(records.Canonical(d, v.Value(d)), want) {
			return false
		}
	}
	if q.Schools != nil && !containsFold(q.Schools, v.Value(records.School)) {
		return false
	}
	if q.HasRange {
		if dv, ok := v.(records.Dated); ok {
			when := dv.When()
			if when.IsZero() || when.Before(q.From) || when.After(q.To) {
				return false
			}
		}
	}
	return true
}

func containsFold(list []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// Filter returns the rows matching q.
func Filter[V records.Valued](rows []V, q Query) []V {
	if q.Unconstrained() {
		return rows
	}
	out := make([]V, 0, len(rows))
	for _, r := range rows {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Resolver converts a Set into a Query, consulting the city directory for city filters.
type Resolver struct {
	cities citydir.Directory
	logger zerolog.Logger
}

// NewResolver constructs a Resolver. A nil directory makes city filters a logged no-op.
func NewResolver(cities citydir.Directory, logger zerolog.Logger) *Resolver {
	return &Resolver{cities: cities, logger: logger}
}

// Resolve builds the Query for s. Malformed or one-sided date ranges are
// dropped with a warning; a directory failure is returned as a data source error.
func (r *Resolver) Resolve(ctx context.Context, s Set) (Query, error) {
	c := s.Canonical()
	q := Query{Equals: map[records.Dimension]string{}}
	for d, v := range map[records.Dimension]string{
		records.AcademicYear:       c.AcademicYear,
		records.AssessmentType:     c.AssessmentType,
		records.AssessmentCategory: c.AssessmentCategory,
		records.School:             c.School,
		records.Grade:              c.Grade,
		records.Division:           c.Division,
		records.Subject:            c.Subject,
		records.Competency:         c.CompetencyLevel,
		records.Gender:             c.Gender,
		records.Month:              c.Month,
	} {
		if v != "" {
			q.Equals[d] = records.Canonical(d, v)
		}
	}

	switch {
	case c.StartDate != "" && c.EndDate != "":
		from, errFrom := time.Parse(DateLayout, c.StartDate)
		to, errTo := time.Parse(DateLayout, c.EndDate)
		if errFrom != nil || errTo != nil {
			r.logger.Warn().Str("start_date", c.StartDate).Str("end_date", c.EndDate).Msg("ignoring malformed date range")
			break
		}
		// end_date covers the whole day
		q.From, q.To, q.HasRange = from, to.Add(24*time.Hour-time.Nanosecond), true
	case c.StartDate != "" || c.EndDate != "":
		r.logger.Debug().Msg("ignoring one-sided date range")
	}

	if c.City != "" {
		if r.cities == nil {
			r.logger.Warn().Str("city", c.City).Msg("city filter ignored: no city directory configured")
			return q, nil
		}
		m, err := r.cities.Mapping(ctx)
		if err != nil {
			return Query{}, err
		}
		q.Schools = m.Schools(c.City)
		if q.Schools == nil {
			q.Schools = []string{}
		}
	}
	return q, nil
}
