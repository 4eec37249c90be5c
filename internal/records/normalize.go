package records

import (
	"strconv"
	"strings"
	"time"
)

var subjectAliases = map[string]string{
	"math":        "Math",
	"maths":       "Math",
	"mathematics": "Math",
	"mat":         "Math",
	"english":     "English",
	"eng":         "English",
	"hindi":       "Hindi",
	"hin":         "Hindi",
	"marathi":     "Marathi",
	"mar":         "Marathi",
	"science":     "Science",
	"sci":         "Science",
	"computer":    "Computer",
	"computers":   "Computer",
	"comp":        "Computer",
}

// CanonicalSubject maps known subject spellings and abbreviations to their display name.
func CanonicalSubject(s string) string {
	s = strings.TrimSpace(s)
	if v, ok := subjectAliases[strings.ToLower(s)]; ok {
		return v
	}
	return s
}

// CanonicalGrade folds the many grade spellings found in source data
// ("Gr. 3", "GRADE 3", "3", "Jr.kG") onto Nursery, Jr.KG, Sr.KG and "Grade N".
func CanonicalGrade(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	low := strings.ToLower(s)
	compact := strings.NewReplacer(" ", "", ".", "", "-", "").Replace(low)
	switch compact {
	case "nursery":
		return "Nursery"
	case "jrkg", "juniorkg", "lkg":
		return "Jr.KG"
	case "srkg", "seniorkg", "ukg":
		return "Sr.KG"
	}
	for _, prefix := range []string{"grade", "gr", "std", "class"} {
		if strings.HasPrefix(compact, prefix) {
			compact = strings.TrimPrefix(compact, prefix)
			break
		}
	}
	if n, err := strconv.Atoi(compact); err == nil && n >= 1 && n <= 12 {
		return "Grade " + strconv.Itoa(n)
	}
	return s
}

// CanonicalGender collapses gender spellings to "M" and "F".
func CanonicalGender(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "m", "male", "boy":
		return "M"
	case "f", "female", "girl":
		return "F"
	}
	return s
}

// CanonicalMonth returns the full English month name for names, abbreviations or numbers.
func CanonicalMonth(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= 12 {
		return time.Month(n).String()
	}
	low := strings.ToLower(s)
	for m := time.January; m <= time.December; m++ {
		name := strings.ToLower(m.String())
		if low == name || (len(low) >= 3 && strings.HasPrefix(name, low)) {
			return m.String()
		}
	}
	return s
}

// Canonical normalizes a value for the given dimension so filters and stored rows compare equal.
func Canonical(d Dimension, v string) string {
	switch d {
	case Grade:
		return CanonicalGrade(v)
	case Subject:
		return CanonicalSubject(v)
	case Gender:
		return CanonicalGender(v)
	case Month:
		return CanonicalMonth(v)
	}
	return strings.TrimSpace(v)
}
