package insights

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/schoolpulse/schoolpulse/internal/filters"
	"github.com/schoolpulse/schoolpulse/internal/records"
	"github.com/schoolpulse/schoolpulse/pkg/mcperr"
	"github.com/schoolpulse/schoolpulse/pkg/pagination"
)

// listSort names the row order page offsets refer to.
const listSort = "date,school,student_id,subject"

// Page is one slice of raw assessment rows.
type Page struct {
	Rows       []records.Assessment `json:"rows"`
	Total      int                  `json:"total"`
	Returned   int                  `json:"returned"`
	PageSize   int                  `json:"page_size"`
	Truncated  bool                 `json:"truncated"`
	NextCursor string               `json:"next_cursor,omitempty"`
	NoData     bool                 `json:"no_data"`
}

// ListAssessments pages through the matching rows in date, school, student
// and subject order. A cursor resumes the listing and must have been issued
// for the same filters.
func (s *Service) ListAssessments(ctx context.Context, set filters.Set, cursor string, pageSize int) (Page, error) {
	hash := set.Hash()
	offset := 0
	ps := s.limits.PageSize(pageSize)
	if cursor != "" {
		c, err := pagination.DecodeCursor(cursor)
		if err != nil {
			return Page{}, errors.Wrap(ErrCursorMismatch, err.Error())
		}
		if !c.Matches(hash, listSort) {
			return Page{}, ErrCursorMismatch
		}
		offset = c.Off
		if pageSize <= 0 {
			ps = s.limits.PageSize(c.Ps)
		}
	}

	rows, err := s.assessments(ctx, set)
	if err != nil {
		return Page{}, err
	}
	sortAssessments(rows)

	total := len(rows)
	if offset > total {
		offset = total
	}
	end := offset + ps
	if end > total {
		end = total
	}
	page := Page{
		Rows:     rows[offset:end],
		Total:    total,
		Returned: end - offset,
		PageSize: ps,
		NoData:   total == 0,
	}
	if page.Rows == nil {
		page.Rows = []records.Assessment{}
	}
	if end < total {
		next, err := pagination.EncodeCursor(pagination.Cursor{
			V:   pagination.Version,
			Fh:  hash,
			Srt: listSort,
			Off: pagination.NextOffset(offset, page.Returned),
			Ps:  ps,
			Iat: time.Now().Unix(),
		})
		if err != nil {
			return Page{}, errors.Wrapf(mcperr.ErrCursorBuild, "%v", err)
		}
		page.NextCursor = next
		page.Truncated = true
	}
	return page, nil
}

func sortAssessments(rows []records.Assessment) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.School != b.School {
			return a.School < b.School
		}
		if a.StudentID != b.StudentID {
			return a.StudentID < b.StudentID
		}
		return a.Subject < b.Subject
	})
}
