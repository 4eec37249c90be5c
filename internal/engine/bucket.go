package engine

import (
	"sort"
	"strings"

	"github.com/schoolpulse/schoolpulse/internal/records"
)

// Band is a performance bucket derived from an entity's aggregate percentage.
type Band string

const (
	Red   Band = "Red"
	Blue  Band = "Blue"
	Green Band = "Green"
)

// Overall keys the all-competency distribution.
const Overall = "Overall"

// Band thresholds: below RedBelow is Red, up to and including BlueUpTo is Blue.
const (
	RedBelow = 35.0
	BlueUpTo = 60.0
)

// Classify assigns a band to an unrounded percentage. 60.0 is Blue.
func Classify(pct float64) Band {
	switch {
	case pct < RedBelow:
		return Red
	case pct <= BlueUpTo:
		return Blue
	default:
		return Green
	}
}

// Distribution counts unique entities per band.
type Distribution struct {
	Red   int `json:"Red"`
	Blue  int `json:"Blue"`
	Green int `json:"Green"`
}

func (d *Distribution) add(b Band) {
	switch b {
	case Red:
		d.Red++
	case Blue:
		d.Blue++
	case Green:
		d.Green++
	}
}

// Total is the number of classified entities.
func (d Distribution) Total() int { return d.Red + d.Blue + d.Green }

// Assignment is one entity's totals and band.
type Assignment struct {
	Entity Key  `json:"entity"`
	Cell   Cell `json:"cell"`
	Band   Band `json:"band"`
}

// Bucketize sums each entity's rows and classifies the total.
// Rows with a blank value in any entity dimension are skipped.
func Bucketize[F records.Fact](rows []F, entity ...records.Dimension) []Assignment {
	kept := make([]F, 0, len(rows))
	for _, row := range rows {
		if hasBlank(row, entity) {
			continue
		}
		kept = append(kept, row)
	}
	res := Aggregate(kept, entity...)
	out := make([]Assignment, 0, len(res.Groups))
	for _, g := range res.Groups {
		pct, ok := g.Cell.Ratio()
		if !ok {
			continue
		}
		out = append(out, Assignment{Entity: g.Key, Cell: g.Cell, Band: Classify(pct)})
	}
	return out
}

func hasBlank[V records.Valued](v V, dims []records.Dimension) bool {
	for _, d := range dims {
		if strings.TrimSpace(v.Value(d)) == "" {
			return true
		}
	}
	return false
}

// Distribute counts assignments per band.
func Distribute(as []Assignment) Distribution {
	var d Distribution
	for _, a := range as {
		d.add(a.Band)
	}
	return d
}

// CompetencyBuckets returns per-competency distributions of student x competency
// totals, plus an Overall distribution of per-student totals.
func CompetencyBuckets[F records.Fact](rows []F) map[string]Distribution {
	out := map[string]Distribution{}
	for _, a := range Bucketize(rows, records.Competency, records.Student) {
		d := out[a.Entity[0]]
		d.add(a.Band)
		out[a.Entity[0]] = d
	}
	out[Overall] = Distribute(Bucketize(rows, records.Student))
	return out
}

// GroupBuckets is the band split of unique entities within one group.
type GroupBuckets struct {
	Group      string  `json:"group"`
	Green      float64 `json:"green"`
	GreenCount int     `json:"green_count"`
	Blue       float64 `json:"blue"`
	BlueCount  int     `json:"blue_count"`
	Red        float64 `json:"red"`
	RedCount   int     `json:"red_count"`
	Total      int     `json:"total"`
}

// BucketsBy classifies each entity within each group and reports shares,
// sorted by green share descending.
func BucketsBy[F records.Fact](rows []F, group, entity records.Dimension) []GroupBuckets {
	dist := map[string]*Distribution{}
	var order []string
	for _, a := range Bucketize(rows, group, entity) {
		g := a.Entity[0]
		d, ok := dist[g]
		if !ok {
			d = &Distribution{}
			dist[g] = d
			order = append(order, g)
		}
		d.add(a.Band)
	}
	out := make([]GroupBuckets, 0, len(order))
	for _, g := range order {
		d := dist[g]
		total := d.Total()
		share := func(n int) float64 { return round2(float64(n) / float64(total) * 100) }
		out = append(out, GroupBuckets{
			Group: g, Total: total,
			Green: share(d.Green), GreenCount: d.Green,
			Blue: share(d.Blue), BlueCount: d.Blue,
			Red: share(d.Red), RedCount: d.Red,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Green != out[j].Green {
			return out[i].Green > out[j].Green
		}
		return Less(group, out[i].Group, out[j].Group)
	})
	return out
}
