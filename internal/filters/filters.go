// Package filters turns dashboard filter selections into row predicates.
package filters

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// All is the sentinel meaning "no constraint".
const All = "All"

// DateLayout is the accepted start_date/end_date format.
const DateLayout = "2006-01-02"

// Set is the typed filter selection. Empty or "All" leaves a field unconstrained.
type Set struct {
	AcademicYear       string `json:"academic_year,omitempty" jsonschema_description:"Academic year, e.g. 2024-25"`
	AssessmentType     string `json:"assessment_type,omitempty" jsonschema_description:"Assessment type, e.g. BOY, MOY, EOY"`
	AssessmentCategory string `json:"assessment_category,omitempty" jsonschema_description:"Assessment category"`
	City               string `json:"city,omitempty" jsonschema_description:"City; restricts to the schools mapped to it"`
	School             string `json:"school,omitempty" jsonschema_description:"School name"`
	Grade              string `json:"grade,omitempty" jsonschema_description:"Grade, e.g. Jr.KG or Grade 3"`
	Division           string `json:"division,omitempty" jsonschema_description:"Division/section"`
	Subject            string `json:"subject,omitempty" jsonschema_description:"Subject, e.g. Math"`
	CompetencyLevel    string `json:"competency_level,omitempty" jsonschema_description:"Competency level label"`
	Gender             string `json:"gender,omitempty" jsonschema_description:"Gender (M or F)"`
	Month              string `json:"month,omitempty" jsonschema_description:"Month name (attendance only)"`
	StartDate          string `json:"start_date,omitempty" jsonschema_description:"Inclusive start date YYYY-MM-DD; ignored unless end_date is also set"`
	EndDate            string `json:"end_date,omitempty" jsonschema_description:"Inclusive end date YYYY-MM-DD; ignored unless start_date is also set"`
}

var setters = map[string]func(*Set, string){
	"academic_year":       func(s *Set, v string) { s.AcademicYear = v },
	"assessment_type":     func(s *Set, v string) { s.AssessmentType = v },
	"assessment_category": func(s *Set, v string) { s.AssessmentCategory = v },
	"city":                func(s *Set, v string) { s.City = v },
	"school":              func(s *Set, v string) { s.School = v },
	"grade":               func(s *Set, v string) { s.Grade = v },
	"division":            func(s *Set, v string) { s.Division = v },
	"subject":             func(s *Set, v string) { s.Subject = v },
	"competency_level":    func(s *Set, v string) { s.CompetencyLevel = v },
	"gender":              func(s *Set, v string) { s.Gender = v },
	"month":               func(s *Set, v string) { s.Month = v },
	"start_date":          func(s *Set, v string) { s.StartDate = v },
	"end_date":            func(s *Set, v string) { s.EndDate = v },
}

// FromMap builds a Set from a loose key/value mapping. Unknown keys are ignored.
func FromMap(m map[string]string) Set {
	var s Set
	for k, v := range m {
		if set, ok := setters[strings.ToLower(strings.TrimSpace(k))]; ok {
			set(&s, v)
		}
	}
	return s
}

// Active reports whether v constrains anything.
func Active(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !strings.EqualFold(v, All)
}

// Canonical returns the set with "All" and blanks cleared and whitespace trimmed,
// so equivalent selections hash identically.
func (s Set) Canonical() Set {
	clean := func(v string) string {
		if !Active(v) {
			return ""
		}
		return strings.TrimSpace(v)
	}
	return Set{
		AcademicYear:       clean(s.AcademicYear),
		AssessmentType:     clean(s.AssessmentType),
		AssessmentCategory: clean(s.AssessmentCategory),
		City:               clean(s.City),
		School:             clean(s.School),
		Grade:              clean(s.Grade),
		Division:           clean(s.Division),
		Subject:            clean(s.Subject),
		CompetencyLevel:    clean(s.CompetencyLevel),
		Gender:             clean(s.Gender),
		Month:              clean(s.Month),
		StartDate:          clean(s.StartDate),
		EndDate:            clean(s.EndDate),
	}
}

// Hash is a stable digest of the canonical selection.
func (s Set) Hash() string {
	b, _ := json.Marshal(s.Canonical())
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:16])
}

// Label describes the period a selection covers, by year and assessment type.
func (s Set) Label() string {
	c := s.Canonical()
	switch {
	case c.AcademicYear != "" && c.AssessmentType != "":
		return c.AcademicYear + " " + c.AssessmentType
	case c.AcademicYear != "":
		return c.AcademicYear
	case c.AssessmentType != "":
		return c.AssessmentType
	}
	return "All Periods"
}
