// Package engine computes ratio-safe aggregates over fact rows.
//
// Every percentage is derived from summed numerators and denominators.
// Rows with a non-positive denominator never contribute, and a cell with
// nothing accumulated renders as null rather than zero.
package engine

import (
	"math"
	"sort"
	"strings"

	"github.com/schoolpulse/schoolpulse/internal/records"
)

// Cell accumulates obtained and maximum marks (or present and total days).
type Cell struct {
	Obtained float64 `json:"obtained_sum"`
	Max      float64 `json:"max_sum"`
	Count    int     `json:"count"`
}

func (c *Cell) add(num, den float64) {
	c.Obtained += num
	c.Max += den
	c.Count++
}

func (c *Cell) merge(o Cell) {
	c.Obtained += o.Obtained
	c.Max += o.Max
	c.Count += o.Count
}

// Ratio returns the unrounded percentage and whether it is defined.
func (c Cell) Ratio() (float64, bool) {
	if c.Max <= 0 {
		return 0, false
	}
	return 100 * c.Obtained / c.Max, true
}

// Percent returns round(100*obtained/max, 2), or nil when max is not positive.
func (c Cell) Percent() *float64 {
	r, ok := c.Ratio()
	if !ok {
		return nil
	}
	v := round2(r)
	return &v
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// Key is an ordered tuple of dimension values.
type Key []string

// String joins the key parts for display.
func (k Key) String() string { return strings.Join(k, " / ") }

func (k Key) id() string { return strings.Join(k, "\x1f") }

// Group pairs a key with its accumulated cell.
type Group struct {
	Key  Key  `json:"key"`
	Cell Cell `json:"cell"`
}

// Result holds ordered groups from Aggregate.
type Result struct {
	Dims   []records.Dimension
	Groups []Group
	index  map[string]int
}

// included reports a row's ratio parts. Rows with a non-positive
// denominator, a negative numerator or a non-finite part are left out.
func included[F records.Fact](f F) (float64, float64, bool) {
	num, den := f.Ratio()
	if !finite(num) || !finite(den) || den <= 0 || num < 0 {
		return 0, 0, false
	}
	return num, den, true
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func keyOf[V records.Valued](v V, dims []records.Dimension) Key {
	k := make(Key, len(dims))
	for i, d := range dims {
		k[i] = label(v.Value(d))
	}
	return k
}

// Aggregate groups rows by dims and sums each group's ratio parts.
// With no dims the result holds a single grand-total group, or none for empty input.
func Aggregate[F records.Fact](rows []F, dims ...records.Dimension) Result {
	res := Result{Dims: append([]records.Dimension(nil), dims...), index: map[string]int{}}
	for _, row := range rows {
		num, den, ok := included(row)
		if !ok {
			continue
		}
		k := keyOf(row, dims)
		id := k.id()
		i, seen := res.index[id]
		if !seen {
			i = len(res.Groups)
			res.index[id] = i
			res.Groups = append(res.Groups, Group{Key: k})
		}
		res.Groups[i].Cell.add(num, den)
	}
	sort.SliceStable(res.Groups, func(i, j int) bool { return keyLess(res.Dims, res.Groups[i].Key, res.Groups[j].Key) })
	for i, g := range res.Groups {
		res.index[g.Key.id()] = i
	}
	return res
}

// Lookup returns the cell for the given key parts.
func (r Result) Lookup(key ...string) (Cell, bool) {
	i, ok := r.index[Key(key).id()]
	if !ok {
		return Cell{}, false
	}
	return r.Groups[i].Cell, true
}

// Total sums every group into one cell.
func (r Result) Total() Cell {
	var c Cell
	for _, g := range r.Groups {
		c.merge(g.Cell)
	}
	return c
}

// Empty reports whether no row contributed.
func (r Result) Empty() bool { return len(r.Groups) == 0 }

// Labels returns the display label of each group in order.
func (r Result) Labels() []string {
	out := make([]string, len(r.Groups))
	for i, g := range r.Groups {
		out[i] = g.Key.String()
	}
	return out
}

// Series is the chart-ready labels/data pair. Data entries are null where undefined.
type Series struct {
	Labels []string   `json:"labels"`
	Data   []*float64 `json:"data"`
}

// Series renders one percentage per group.
func (r Result) Series() Series {
	s := Series{Labels: r.Labels(), Data: make([]*float64, len(r.Groups))}
	for i, g := range r.Groups {
		s.Data[i] = g.Cell.Percent()
	}
	return s
}

// SeriesFor renders a fixed label axis for a single-dimension result,
// leaving null where a label has no data.
func SeriesFor(r Result, labels []string) Series {
	s := Series{Labels: append([]string(nil), labels...), Data: make([]*float64, len(labels))}
	for i, l := range labels {
		if c, ok := r.Lookup(l); ok {
			s.Data[i] = c.Percent()
		}
	}
	return s
}

// Counts is a labels/data pair of record counts.
type Counts struct {
	Labels []string `json:"labels"`
	Data   []int    `json:"data"`
}

// Count tallies rows per value of d, skipping blank values.
func Count[V records.Valued](rows []V, d records.Dimension) Counts {
	tally := map[string]int{}
	for _, row := range rows {
		v := strings.TrimSpace(row.Value(d))
		if v == "" {
			continue
		}
		tally[v]++
	}
	out := Counts{Labels: make([]string, 0, len(tally))}
	for v := range tally {
		out.Labels = append(out.Labels, v)
	}
	SortValues(d, out.Labels)
	out.Data = make([]int, len(out.Labels))
	for i, l := range out.Labels {
		out.Data[i] = tally[l]
	}
	return out
}

// Distinct returns the ordered distinct non-blank values of d.
func Distinct[V records.Valued](rows []V, d records.Dimension) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, row := range rows {
		v := strings.TrimSpace(row.Value(d))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	SortValues(d, out)
	return out
}

// CountDistinct counts unique non-blank values of d among rows accepted by keep.
func CountDistinct[V records.Valued](rows []V, d records.Dimension, keep func(V) bool) int {
	seen := map[string]struct{}{}
	for _, row := range rows {
		if keep != nil && !keep(row) {
			continue
		}
		v := strings.TrimSpace(row.Value(d))
		if v == "" {
			continue
		}
		seen[v] = struct{}{}
	}
	return len(seen)
}
