package engine

import (
	"math"
	"sort"

	"github.com/schoolpulse/schoolpulse/internal/records"
)

// Diff compares one key's percentage across two periods.
type Diff struct {
	Key           string  `json:"key"`
	Period1       float64 `json:"period1"`
	Period2       float64 `json:"period2"`
	Difference    float64 `json:"difference"`
	PercentChange float64 `json:"percent_change"`
}

// Compare pairs the groups of two independently aggregated periods.
// A key missing from one side, or null on it, counts as 0 there.
// Output is sorted by absolute difference, largest first.
func Compare(a, b Result) []Diff {
	values := map[string][2]float64{}
	var keys []Key
	collect := func(r Result, side int) {
		for _, g := range r.Groups {
			id := g.Key.id()
			v, seen := values[id]
			if !seen {
				keys = append(keys, g.Key)
			}
			if p := g.Cell.Percent(); p != nil {
				v[side] = *p
			}
			values[id] = v
		}
	}
	collect(a, 0)
	collect(b, 1)

	dims := a.Dims
	if len(dims) == 0 {
		dims = b.Dims
	}
	sort.SliceStable(keys, func(i, j int) bool { return keyLess(dims, keys[i], keys[j]) })

	out := make([]Diff, 0, len(keys))
	for _, k := range keys {
		v := values[k.id()]
		diff := v[1] - v[0]
		out = append(out, Diff{
			Key:           k.String(),
			Period1:       v[0],
			Period2:       v[1],
			Difference:    round2(diff),
			PercentChange: percentChange(v[0], diff),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Difference) > math.Abs(out[j].Difference)
	})
	return out
}

// percentChange expects the unrounded difference.
func percentChange(base, diff float64) float64 {
	if base <= 0 {
		return 0
	}
	return round2(diff / base * 100)
}

// Stats summarizes one filtered row set.
type Stats struct {
	TotalStudents    int      `json:"total_students"`
	TotalAssessments int      `json:"total_assessments"`
	TotalSchools     int      `json:"total_schools"`
	AverageScore     *float64 `json:"average_score"`
}

// Summarize counts students, records and schools, and computes the
// sum-based average score over rows with a positive denominator.
func Summarize[F records.Fact](rows []F) Stats {
	return Stats{
		TotalStudents:    CountDistinct(rows, records.Student, nil),
		TotalAssessments: len(rows),
		TotalSchools:     CountDistinct(rows, records.School, nil),
		AverageScore:     Aggregate(rows).Total().Percent(),
	}
}

// Improvement describes the change from one period's stats to the next.
type Improvement struct {
	AverageScoreChange        float64 `json:"average_score_change"`
	AverageScorePercentChange float64 `json:"average_score_percent_change"`
	AssessmentCountChange     int     `json:"assessment_count_change"`
	StudentCountChange        int     `json:"student_count_change"`
}

// Improve compares two periods. A null average counts as 0, and the percent
// change is 0 when the first period's average is 0.
func Improve(p1, p2 Stats) Improvement {
	a1, a2 := deref(p1.AverageScore), deref(p2.AverageScore)
	diff := a2 - a1
	return Improvement{
		AverageScoreChange:        round2(diff),
		AverageScorePercentChange: percentChange(a1, diff),
		AssessmentCountChange:     p2.TotalAssessments - p1.TotalAssessments,
		StudentCountChange:        p2.TotalStudents - p1.TotalStudents,
	}
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
