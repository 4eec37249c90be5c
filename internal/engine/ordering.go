package engine

import (
	"sort"
	"strings"

	"github.com/schoolpulse/schoolpulse/internal/records"
)

// Unknown labels rows whose grouping value is blank.
const Unknown = "Unknown"

// Domain display orders. Values outside a table sort after it, alphabetically.
var (
	GradeOrder = []string{
		"Nursery", "Jr.KG", "Sr.KG",
		"Grade 1", "Grade 2", "Grade 3", "Grade 4", "Grade 5",
		"Grade 6", "Grade 7", "Grade 8", "Grade 9", "Grade 10",
	}
	SubjectOrder = []string{"Math", "English", "Hindi", "Marathi", "Science", "Computer"}
	// Academic months run June through May.
	MonthOrder = []string{
		"June", "July", "August", "September", "October", "November",
		"December", "January", "February", "March", "April", "May",
	}
	BandOrder = []string{string(Red), string(Blue), string(Green)}
)

var ordering = map[records.Dimension]map[string]int{
	records.Grade:   index(GradeOrder),
	records.Subject: index(SubjectOrder),
	records.Month:   index(MonthOrder),
}

func index(values []string) map[string]int {
	m := make(map[string]int, len(values))
	for i, v := range values {
		m[v] = i
	}
	return m
}

// Less reports whether a sorts before b for the dimension.
func Less(d records.Dimension, a, b string) bool {
	if a == b {
		return false
	}
	// blanks always last
	if a == Unknown || b == Unknown {
		return b == Unknown
	}
	table := ordering[d]
	ra, okA := table[a]
	rb, okB := table[b]
	switch {
	case okA && okB:
		return ra < rb
	case okA:
		return true
	case okB:
		return false
	}
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}

// SortValues orders values in place using the dimension's display order.
func SortValues(d records.Dimension, values []string) {
	sort.SliceStable(values, func(i, j int) bool { return Less(d, values[i], values[j]) })
}

func keyLess(dims []records.Dimension, a, b Key) bool {
	for i := range dims {
		if i >= len(a) || i >= len(b) {
			break
		}
		if a[i] == b[i] {
			continue
		}
		return Less(dims[i], a[i], b[i])
	}
	return len(a) < len(b)
}

func label(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return Unknown
	}
	return v
}
