package workbooks

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/schoolpulse/schoolpulse/internal/records"
	"github.com/schoolpulse/schoolpulse/pkg/mcperr"
)

// ErrMissingColumn is returned when a required header is absent.
var ErrMissingColumn = errors.New("workbooks: missing required column")

// Import is the outcome of reading one assessment sheet.
type Import struct {
	Sheet   string
	Rows    []records.Assessment
	Skipped int
	// Columns lists the recognized headers in sheet order.
	Columns []string
}

type field int

const (
	fStudentID field = iota
	fStudentName
	fSchool
	fGrade
	fDivision
	fSubject
	fCompetency
	fGender
	fYear
	fType
	fCategory
	fDate
	fPresentAbsent
	fObtained
	fMax
)

var headerAliases = map[string]field{
	"student_id":            fStudentID,
	"studentid":             fStudentID,
	"roll_no":               fStudentID,
	"student_name":          fStudentName,
	"name":                  fStudentName,
	"school":                fSchool,
	"school_name":           fSchool,
	"grade":                 fGrade,
	"grade_name":            fGrade,
	"class":                 fGrade,
	"std":                   fGrade,
	"division":              fDivision,
	"division_name":         fDivision,
	"section":               fDivision,
	"subject":               fSubject,
	"subject_name":          fSubject,
	"competency":            fCompetency,
	"competency_level":      fCompetency,
	"competency_level_name": fCompetency,
	"gender":                fGender,
	"sex":                   fGender,
	"academic_year":         fYear,
	"year":                  fYear,
	"assessment_type":       fType,
	"type":                  fType,
	"assessment_category":   fCategory,
	"category":              fCategory,
	"assessment_date":       fDate,
	"date":                  fDate,
	"present_absent":        fPresentAbsent,
	"attendance":            fPresentAbsent,
	"obtained_marks":        fObtained,
	"obtained":              fObtained,
	"marks_obtained":        fObtained,
	"score":                 fObtained,
	"max_marks":             fMax,
	"max":                   fMax,
	"maximum_marks":         fMax,
	"out_of":                fMax,
}

var required = map[field]string{fSchool: "school", fObtained: "obtained_marks", fMax: "max_marks"}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02-01-2006",
	"02/01/2006",
	"2/1/2006",
	"02-01-06",
	"02/01/06",
	"2/1/06",
}

func headerKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_", ".", "").Replace(s)
	return s
}

// ReadAssessments loads assessment rows from sheet of an open workbook. An
// empty sheet selects the first one. Rows without a school or with unparsable
// marks are skipped and counted. limit > 0 caps the number of rows accepted.
func (m *Manager) ReadAssessments(ctx context.Context, id, sheet string, limit int) (Import, error) {
	var out Import
	err := m.WithRead(id, func(f *excelize.File) error {
		var err error
		out, err = ReadAssessments(ctx, f, sheet, limit)
		return err
	})
	return out, err
}

// ReadAssessments reads an assessment sheet from f.
func ReadAssessments(ctx context.Context, f *excelize.File, sheet string, limit int) (Import, error) {
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return Import{}, errors.New("workbooks: workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		return Import{}, err
	}
	defer rows.Close()

	imp := Import{Sheet: sheet}
	var cols map[field]int
	line := 0
	for rows.Next() {
		line++
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return Import{}, err
			}
		}
		cells, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return Import{}, errors.Wrapf(err, "workbooks: row %d", line)
		}
		if cols == nil {
			if blank(cells) {
				continue
			}
			cols, imp.Columns, err = mapHeader(cells)
			if err != nil {
				return Import{}, err
			}
			continue
		}
		if blank(cells) {
			continue
		}
		a, ok := parseRow(cells, cols)
		if !ok {
			imp.Skipped++
			continue
		}
		if limit > 0 && len(imp.Rows) >= limit {
			return Import{}, errors.Wrapf(mcperr.ErrLimitExceeded, "sheet %q has more than %d rows", sheet, limit)
		}
		imp.Rows = append(imp.Rows, a)
	}
	if err := rows.Error(); err != nil {
		return Import{}, err
	}
	if cols == nil {
		return Import{}, errors.Wrapf(ErrMissingColumn, "sheet %q has no header row", sheet)
	}
	return imp, nil
}

func mapHeader(cells []string) (map[field]int, []string, error) {
	cols := map[field]int{}
	var names []string
	for i, c := range cells {
		f, ok := headerAliases[headerKey(c)]
		if !ok {
			continue
		}
		if _, dup := cols[f]; dup {
			continue
		}
		cols[f] = i
		names = append(names, strings.TrimSpace(c))
	}
	for f, name := range required {
		if _, ok := cols[f]; !ok {
			return nil, nil, errors.Wrap(ErrMissingColumn, name)
		}
	}
	return cols, names, nil
}

func parseRow(cells []string, cols map[field]int) (records.Assessment, bool) {
	get := func(f field) string {
		i, ok := cols[f]
		if !ok || i >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[i])
	}
	a := records.Assessment{
		StudentID:      get(fStudentID),
		StudentName:    get(fStudentName),
		School:         get(fSchool),
		Grade:          get(fGrade),
		Division:       get(fDivision),
		Subject:        get(fSubject),
		Competency:     get(fCompetency),
		Gender:         get(fGender),
		AcademicYear:   get(fYear),
		AssessmentType: get(fType),
		Category:       get(fCategory),
		PresentAbsent:  get(fPresentAbsent),
	}
	if a.School == "" {
		return a, false
	}
	var err error
	if a.Obtained, err = number(get(fObtained)); err != nil {
		return a, false
	}
	if a.Max, err = number(get(fMax)); err != nil {
		return a, false
	}
	a.Date = parseDate(get(fDate))
	return a.Normalized(), true
}

// number parses a mark; an empty cell counts as zero. Marks must be finite
// and not negative.
func number(s string) (float64, error) {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, errors.Errorf("workbooks: invalid mark %q", s)
	}
	return v, nil
}

// parseDate accepts ISO and day-first text dates and Excel serial numbers.
func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t
		}
	}
	return time.Time{}
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
