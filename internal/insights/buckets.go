package insights

import (
	"context"

	"github.com/pkg/errors"

	"github.com/schoolpulse/schoolpulse/internal/engine"
	"github.com/schoolpulse/schoolpulse/internal/filters"
	"github.com/schoolpulse/schoolpulse/internal/records"
)

// BucketResult maps each competency level, and Overall, to its band counts.
// Competencies lists the keys in display order with Overall last.
type BucketResult struct {
	Competencies []string                       `json:"competencies"`
	Buckets      map[string]engine.Distribution `json:"buckets"`
	NoData       bool                           `json:"no_data"`
}

// GroupBucketResult is the band split of entities within each group,
// sorted by green share.
type GroupBucketResult struct {
	GroupBy records.Dimension     `json:"group_by"`
	Entity  records.Dimension     `json:"entity"`
	Groups  []engine.GroupBuckets `json:"groups"`
	NoData  bool                  `json:"no_data"`
}

// BucketDistribution classifies students by their summed marks, per
// competency level and overall.
func (s *Service) BucketDistribution(ctx context.Context, set filters.Set) (BucketResult, error) {
	return cached(s, "bucket_distribution", set, nil, func() (BucketResult, error) {
		rows, err := s.assessments(ctx, set)
		if err != nil {
			return BucketResult{}, err
		}
		buckets := engine.CompetencyBuckets(rows)
		names := make([]string, 0, len(buckets))
		for k := range buckets {
			if k != engine.Overall {
				names = append(names, k)
			}
		}
		engine.SortValues(records.Competency, names)
		return BucketResult{
			Competencies: append(names, engine.Overall),
			Buckets:      buckets,
			NoData:       buckets[engine.Overall].Total() == 0,
		}, nil
	})
}

// BucketByGroup classifies each entity inside each value of group. Zero
// dimensions default to school and student.
func (s *Service) BucketByGroup(ctx context.Context, set filters.Set, group, entity records.Dimension) (GroupBucketResult, error) {
	if group == "" {
		group = records.School
	}
	if entity == "" {
		entity = records.Student
	}
	if group == entity {
		return GroupBucketResult{}, errors.Wrap(ErrUnsupportedDimension, "group and entity dimensions must differ")
	}
	if err := checkDims(records.AssessmentDimensions, group, entity); err != nil {
		return GroupBucketResult{}, err
	}
	return cached(s, "bucket_by_group", set, []records.Dimension{group, entity}, func() (GroupBucketResult, error) {
		rows, err := s.assessments(ctx, set, group, entity)
		if err != nil {
			return GroupBucketResult{}, err
		}
		groups := engine.BucketsBy(rows, group, entity)
		if groups == nil {
			groups = []engine.GroupBuckets{}
		}
		return GroupBucketResult{
			GroupBy: group,
			Entity:  entity,
			Groups:  groups,
			NoData:  len(groups) == 0,
		}, nil
	})
}
