package filters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/schoolpulse/schoolpulse/internal/citydir"
	"github.com/schoolpulse/schoolpulse/internal/records"
	"github.com/schoolpulse/schoolpulse/pkg/mcperr"
)

type brokenDirectory struct{}

func (brokenDirectory) Mapping(context.Context) (citydir.Mapping, error) {
	return nil, mcperr.Unavailable("city directory", errors.New("connection refused"))
}

func day(s string) time.Time {
	t, _ := time.Parse(DateLayout, s)
	return t
}

func TestFromMap_IgnoresUnknownKeys(t *testing.T) {
	s := FromMap(map[string]string{"subject": "Math", "school": "All", "colour": "blue", "Grade": "Gr. 2"})
	require.Equal(t, Set{Subject: "Math", School: "All", Grade: "Gr. 2"}, s)
}

func TestHash_StableAcrossEquivalentSets(t *testing.T) {
	a := Set{Subject: "Math", School: "All"}
	b := Set{Subject: " Math "}
	require.Equal(t, a.Hash(), b.Hash())
	require.NotEqual(t, a.Hash(), Set{Subject: "English"}.Hash())
}

func TestLabel(t *testing.T) {
	require.Equal(t, "2024-25 EOY", Set{AcademicYear: "2024-25", AssessmentType: "EOY"}.Label())
	require.Equal(t, "2024-25", Set{AcademicYear: "2024-25", AssessmentType: "All"}.Label())
	require.Equal(t, "All Periods", Set{}.Label())
}

func TestResolve_EqualityAndAllSentinel(t *testing.T) {
	r := NewResolver(nil, zerolog.Nop())
	q, err := r.Resolve(context.Background(), Set{Subject: "maths", School: "All", Grade: "Gr. 3"})
	require.NoError(t, err)
	require.Equal(t, map[records.Dimension]string{records.Subject: "Math", records.Grade: "Grade 3"}, q.Equals)

	require.True(t, q.Match(records.Assessment{Subject: "Math", Grade: "Grade 3"}))
	require.True(t, q.Match(records.Assessment{Subject: "MAT", Grade: "3"}))
	require.False(t, q.Match(records.Assessment{Subject: "English", Grade: "Grade 3"}))
}

func TestResolve_DateRangeNeedsBothBounds(t *testing.T) {
	r := NewResolver(nil, zerolog.Nop())
	ctx := context.Background()

	q, err := r.Resolve(ctx, Set{StartDate: "2024-01-01"})
	require.NoError(t, err)
	require.False(t, q.HasRange)
	require.True(t, q.Unconstrained())

	q, err = r.Resolve(ctx, Set{StartDate: "2024-01-01", EndDate: "not-a-date"})
	require.NoError(t, err)
	require.False(t, q.HasRange)

	q, err = r.Resolve(ctx, Set{StartDate: "2024-01-01", EndDate: "2024-01-31"})
	require.NoError(t, err)
	require.True(t, q.HasRange)
	require.True(t, q.Match(records.Assessment{Date: day("2024-01-31").Add(15 * time.Hour)}))
	require.False(t, q.Match(records.Assessment{Date: day("2024-02-01")}))
	require.False(t, q.Match(records.Assessment{}))
	// rows without dates are not subject to the range
	require.True(t, q.Match(records.Enrollment{}))
}

func TestResolve_CityUsesDirectory(t *testing.T) {
	dir := citydir.Static{"Sunrise": "Pune", "Lakeview": "Mumbai"}
	r := NewResolver(dir, zerolog.Nop())

	q, err := r.Resolve(context.Background(), Set{City: "Pune"})
	require.NoError(t, err)
	require.Equal(t, []string{"Sunrise"}, q.Schools)
	require.True(t, q.Match(records.Assessment{School: "Sunrise"}))
	require.False(t, q.Match(records.Assessment{School: "Lakeview"}))

	q, err = r.Resolve(context.Background(), Set{City: "Nagpur"})
	require.NoError(t, err)
	require.NotNil(t, q.Schools)
	require.False(t, q.Match(records.Assessment{School: "Sunrise"}))

	_, err = NewResolver(brokenDirectory{}, zerolog.Nop()).Resolve(context.Background(), Set{City: "Pune"})
	require.True(t, mcperr.IsUnavailable(err))
}

func TestQueryOnlyAndFilter(t *testing.T) {
	r := NewResolver(nil, zerolog.Nop())
	q, err := r.Resolve(context.Background(), Set{Subject: "Math", School: "A"})
	require.NoError(t, err)

	rows := []records.Enrollment{{School: "A"}, {School: "B"}}
	require.Empty(t, Filter(rows, q))
	require.Equal(t, []records.Enrollment{{School: "A"}}, Filter(rows, q.Only(records.EnrollmentDimensions...)))
}
