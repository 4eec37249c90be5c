package gormstore

import (
	"time"

	"github.com/schoolpulse/schoolpulse/internal/records"
)

// AssessmentRow maps student_assessment_data.
type AssessmentRow struct {
	ID                  uint `gorm:"primaryKey"`
	StudentID           string
	StudentName         string
	Gender              string
	SchoolName          string
	SubjectName         string
	AssessmentType      string
	AcademicYear        string
	GradeName           string
	DivisionName        string
	CompetencyLevelName string
	AssessmentCategory  string
	AssessmentDate      *time.Time
	ObtainedMarks       *float64
	MaxMarks            *float64
	PresentAbsent       string
}

func (AssessmentRow) TableName() string { return "student_assessment_data" }

func (r AssessmentRow) record() records.Assessment {
	a := records.Assessment{
		StudentID:      r.StudentID,
		StudentName:    r.StudentName,
		School:         r.SchoolName,
		Grade:          r.GradeName,
		Division:       r.DivisionName,
		Subject:        r.SubjectName,
		Competency:     r.CompetencyLevelName,
		Gender:         r.Gender,
		AcademicYear:   r.AcademicYear,
		AssessmentType: r.AssessmentType,
		Category:       r.AssessmentCategory,
		PresentAbsent:  r.PresentAbsent,
		Obtained:       deref(r.ObtainedMarks),
		Max:            deref(r.MaxMarks),
	}
	if r.AssessmentDate != nil {
		a.Date = *r.AssessmentDate
	}
	return a.Normalized()
}

// StudentAttendanceRow maps student_attendance_data.
type StudentAttendanceRow struct {
	ID              uint `gorm:"primaryKey"`
	AcademicYear    string
	SchoolName      string
	GradeName       string
	StudentName     string
	Month           string
	StudentID       string
	Gender          string
	DivisionName    string
	Date            *time.Time
	NoOfPresentDays *float64 `gorm:"column:no_of_present_days"`
	NoOfWorkingDays *float64 `gorm:"column:no_of_working_days"`
}

func (StudentAttendanceRow) TableName() string { return "student_attendance_data" }

func (r StudentAttendanceRow) record() records.Attendance {
	return attendance(records.KindStudent, r.AcademicYear, r.SchoolName, r.GradeName, r.DivisionName,
		r.StudentID, r.StudentName, r.Gender, r.Month, r.Date, r.NoOfPresentDays, r.NoOfWorkingDays)
}

// PTMAttendanceRow maps ptm_attendance_data.
type PTMAttendanceRow struct {
	ID           uint `gorm:"primaryKey"`
	AcademicYear string
	SchoolName   string
	GradeName    string
	StudentName  string
	Month        string
	StudentID    string
	Gender       string
	DivisionName string
	Date         *time.Time
	PresentPTM   *float64 `gorm:"column:present_ptm"`
	TotalPTM     *float64 `gorm:"column:total_no_of_ptm"`
}

func (PTMAttendanceRow) TableName() string { return "ptm_attendance_data" }

func (r PTMAttendanceRow) record() records.Attendance {
	return attendance(records.KindPTM, r.AcademicYear, r.SchoolName, r.GradeName, r.DivisionName,
		r.StudentID, r.StudentName, r.Gender, r.Month, r.Date, r.PresentPTM, r.TotalPTM)
}

// SWPTMAttendanceRow maps swptm_attendance_data.
type SWPTMAttendanceRow struct {
	ID           uint `gorm:"primaryKey"`
	AcademicYear string
	SchoolName   string
	GradeName    string
	StudentName  string
	Month        string
	StudentID    string
	Gender       string
	DivisionName string
	Date         *time.Time
	PresentSWPTM *float64 `gorm:"column:present_swptm"`
	TotalSWPTM   *float64 `gorm:"column:total_no_of_swptm"`
}

func (SWPTMAttendanceRow) TableName() string { return "swptm_attendance_data" }

func (r SWPTMAttendanceRow) record() records.Attendance {
	return attendance(records.KindSWPTM, r.AcademicYear, r.SchoolName, r.GradeName, r.DivisionName,
		r.StudentID, r.StudentName, r.Gender, r.Month, r.Date, r.PresentSWPTM, r.TotalSWPTM)
}

// ActiveStudentRow maps active_student_data.
type ActiveStudentRow struct {
	ID           uint `gorm:"primaryKey"`
	SchoolName   string
	Status       string
	GradeName    string
	StudentName  string
	StudentID    string
	Gender       string
	DivisionName string
	AcademicYear string
}

func (ActiveStudentRow) TableName() string { return "active_student_data" }

func (r ActiveStudentRow) record() records.Enrollment {
	return records.Enrollment{
		StudentID:    r.StudentID,
		StudentName:  r.StudentName,
		School:       r.SchoolName,
		Grade:        r.GradeName,
		Division:     r.DivisionName,
		Gender:       r.Gender,
		AcademicYear: r.AcademicYear,
		Status:       r.Status,
	}.Normalized()
}

func attendance(kind records.AttendanceKind, year, school, grade, division, studentID, name, gender, month string,
	date *time.Time, present, total *float64) records.Attendance {
	a := records.Attendance{
		Kind:         kind,
		AcademicYear: year,
		School:       school,
		Grade:        grade,
		Division:     division,
		StudentID:    studentID,
		StudentName:  name,
		Gender:       gender,
		Month:        month,
		Present:      deref(present),
		Total:        deref(total),
	}
	if date != nil {
		a.Date = *date
	}
	return a.Normalized()
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
