package records

import (
	"strings"
	"time"
)

// Dimension names a groupable or filterable attribute of a fact row.
type Dimension string

const (
	AcademicYear       Dimension = "academic_year"
	Subject            Dimension = "subject"
	School             Dimension = "school"
	AssessmentType     Dimension = "assessment_type"
	AssessmentCategory Dimension = "assessment_category"
	Grade              Dimension = "grade"
	Competency         Dimension = "competency_level"
	Division           Dimension = "division"
	Gender             Dimension = "gender"
	City               Dimension = "city"
	Month              Dimension = "month"
	Student            Dimension = "student_id"
)

// Dimensions lists every known dimension in display order.
var Dimensions = []Dimension{
	AcademicYear, AssessmentType, AssessmentCategory, City, School, Grade,
	Division, Subject, Competency, Gender, Month, Student,
}

// Per-kind filterable dimensions.
var (
	AssessmentDimensions = []Dimension{
		AcademicYear, AssessmentType, AssessmentCategory, School, Grade,
		Division, Subject, Competency, Gender, Month, Student,
	}
	AttendanceDimensions = []Dimension{AcademicYear, School, Grade, Division, Gender, Month, Student}
	EnrollmentDimensions = []Dimension{AcademicYear, School, Grade, Division, Gender, Student}
)

// ParseDimension resolves a dimension by name, case-insensitively.
func ParseDimension(s string) (Dimension, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, d := range Dimensions {
		if string(d) == s {
			return d, true
		}
	}
	return "", false
}

// Valued exposes dimension values for grouping and filtering.
type Valued interface {
	Value(d Dimension) string
}

// Dated is implemented by rows that carry a calendar date.
type Dated interface {
	When() time.Time
}

// Fact is a row contributing a numerator/denominator pair to a ratio aggregate.
type Fact interface {
	Valued
	Ratio() (num, den float64)
}

// Assessment is one row per student, subject and assessment instance.
type Assessment struct {
	StudentID      string    `json:"student_id"`
	StudentName    string    `json:"student_name"`
	School         string    `json:"school"`
	City           string    `json:"city,omitempty"`
	Grade          string    `json:"grade"`
	Division       string    `json:"division"`
	Subject        string    `json:"subject"`
	Competency     string    `json:"competency_level"`
	Gender         string    `json:"gender"`
	AcademicYear   string    `json:"academic_year"`
	AssessmentType string    `json:"assessment_type"`
	Category       string    `json:"assessment_category,omitempty"`
	Date           time.Time `json:"date"`
	PresentAbsent  string    `json:"present_absent,omitempty"`
	Obtained       float64   `json:"obtained_marks"`
	Max            float64   `json:"max_marks"`
}

func (a Assessment) Value(d Dimension) string {
	switch d {
	case AcademicYear:
		return a.AcademicYear
	case Subject:
		return a.Subject
	case School:
		return a.School
	case AssessmentType:
		return a.AssessmentType
	case AssessmentCategory:
		return a.Category
	case Grade:
		return a.Grade
	case Competency:
		return a.Competency
	case Division:
		return a.Division
	case Gender:
		return a.Gender
	case City:
		return a.City
	case Month:
		if a.Date.IsZero() {
			return ""
		}
		return a.Date.Month().String()
	case Student:
		return a.StudentID
	}
	return ""
}

func (a Assessment) Ratio() (float64, float64) { return a.Obtained, a.Max }

func (a Assessment) When() time.Time { return a.Date }

// Normalized returns a copy with canonical grade, subject and gender spellings.
func (a Assessment) Normalized() Assessment {
	a.StudentID = strings.TrimSpace(a.StudentID)
	a.School = strings.TrimSpace(a.School)
	a.Grade = CanonicalGrade(a.Grade)
	a.Subject = CanonicalSubject(a.Subject)
	a.Gender = CanonicalGender(a.Gender)
	a.Competency = strings.TrimSpace(a.Competency)
	a.AcademicYear = strings.TrimSpace(a.AcademicYear)
	a.AssessmentType = strings.TrimSpace(a.AssessmentType)
	a.Division = strings.TrimSpace(a.Division)
	return a
}

// AttendanceKind selects one of the attendance tables.
type AttendanceKind string

const (
	KindStudent AttendanceKind = "student"
	KindPTM     AttendanceKind = "ptm"
	KindSWPTM   AttendanceKind = "swptm"
)

// Attendance is a monthly present/total tally for one student.
type Attendance struct {
	Kind         AttendanceKind `json:"kind"`
	StudentID    string         `json:"student_id"`
	StudentName  string         `json:"student_name"`
	School       string         `json:"school"`
	City         string         `json:"city,omitempty"`
	Grade        string         `json:"grade"`
	Division     string         `json:"division"`
	Gender       string         `json:"gender"`
	AcademicYear string         `json:"academic_year"`
	Month        string         `json:"month"`
	Date         time.Time      `json:"date"`
	Present      float64        `json:"present"`
	Total        float64        `json:"total"`
}

func (a Attendance) Value(d Dimension) string {
	switch d {
	case AcademicYear:
		return a.AcademicYear
	case School:
		return a.School
	case Grade:
		return a.Grade
	case Division:
		return a.Division
	case Gender:
		return a.Gender
	case City:
		return a.City
	case Month:
		return a.Month
	case Student:
		return a.StudentID
	}
	return ""
}

func (a Attendance) Ratio() (float64, float64) { return a.Present, a.Total }

func (a Attendance) When() time.Time { return a.Date }

// Normalized returns a copy with canonical grade, gender and month spellings.
func (a Attendance) Normalized() Attendance {
	a.StudentID = strings.TrimSpace(a.StudentID)
	a.School = strings.TrimSpace(a.School)
	a.Grade = CanonicalGrade(a.Grade)
	a.Gender = CanonicalGender(a.Gender)
	a.Month = CanonicalMonth(a.Month)
	a.AcademicYear = strings.TrimSpace(a.AcademicYear)
	a.Division = strings.TrimSpace(a.Division)
	return a
}

// Enrollment is one active-student roster entry.
type Enrollment struct {
	StudentID    string `json:"student_id"`
	StudentName  string `json:"student_name"`
	School       string `json:"school"`
	City         string `json:"city,omitempty"`
	Grade        string `json:"grade"`
	Division     string `json:"division"`
	Gender       string `json:"gender"`
	AcademicYear string `json:"academic_year"`
	Status       string `json:"status,omitempty"`
}

func (e Enrollment) Value(d Dimension) string {
	switch d {
	case AcademicYear:
		return e.AcademicYear
	case School:
		return e.School
	case Grade:
		return e.Grade
	case Division:
		return e.Division
	case Gender:
		return e.Gender
	case City:
		return e.City
	case Student:
		return e.StudentID
	}
	return ""
}

// Normalized returns a copy with canonical grade and gender spellings.
func (e Enrollment) Normalized() Enrollment {
	e.StudentID = strings.TrimSpace(e.StudentID)
	e.School = strings.TrimSpace(e.School)
	e.Grade = CanonicalGrade(e.Grade)
	e.Gender = CanonicalGender(e.Gender)
	e.AcademicYear = strings.TrimSpace(e.AcademicYear)
	e.Division = strings.TrimSpace(e.Division)
	return e
}
