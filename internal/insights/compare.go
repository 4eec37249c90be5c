package insights

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/schoolpulse/schoolpulse/internal/engine"
	"github.com/schoolpulse/schoolpulse/internal/filters"
	"github.com/schoolpulse/schoolpulse/internal/records"
)

// Period summarizes one side of a comparison.
type Period struct {
	Label      string        `json:"label"`
	Stats      engine.Stats  `json:"stats"`
	Competency engine.Counts `json:"competency_distribution"`
	NoData     bool          `json:"no_data"`
}

// Comparison contrasts two filter selections, typically two academic years
// or two assessment types.
type Comparison struct {
	Period1           Period             `json:"period1"`
	Period2           Period             `json:"period2"`
	SubjectComparison []engine.Diff      `json:"subject_comparison"`
	Improvement       engine.Improvement `json:"improvement"`
}

// ComparePeriods loads both selections concurrently and compares their
// subject averages and headline stats. Subjects seen in only one period
// count as 0 in the other.
func (s *Service) ComparePeriods(ctx context.Context, p1, p2 filters.Set) (Comparison, error) {
	return cached(s, "compare_periods", p1, p2.Hash(), func() (Comparison, error) {
		var (
			a, b       Period
			aSub, bSub engine.Result
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			a, aSub, err = s.period(gctx, p1)
			return err
		})
		g.Go(func() (err error) {
			b, bSub, err = s.period(gctx, p2)
			return err
		})
		if err := g.Wait(); err != nil {
			return Comparison{}, err
		}
		diffs := engine.Compare(aSub, bSub)
		return Comparison{
			Period1:           a,
			Period2:           b,
			SubjectComparison: diffs,
			Improvement:       engine.Improve(a.Stats, b.Stats),
		}, nil
	})
}

func (s *Service) period(ctx context.Context, set filters.Set) (Period, engine.Result, error) {
	rows, err := s.assessments(ctx, set)
	if err != nil {
		return Period{}, engine.Result{}, err
	}
	c := engine.Count(rows, records.Competency)
	c.Labels, c.Data = nonNil(c.Labels), nonNilCounts(c.Data)
	st := engine.Summarize(rows)
	return Period{
		Label:      set.Label(),
		Stats:      st,
		Competency: c,
		NoData:     st.AverageScore == nil,
	}, engine.Aggregate(rows, records.Subject), nil
}
