package validation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/schoolpulse/schoolpulse/internal/records"
	"github.com/schoolpulse/schoolpulse/pkg/pagination"
)

var (
	v    *validator.Validate
	once sync.Once
)

// Validator returns the shared validator with the custom rules registered:
//
//	dimension        a known grouping dimension
//	attendance_kind  student, ptm or swptm
//	cursor           a decodable pagination token
//	filepath_ext     an .xlsx or .xlsm path
func Validator() *validator.Validate {
	once.Do(func() {
		v = validator.New()
		_ = v.RegisterValidation("dimension", func(fl validator.FieldLevel) bool {
			_, ok := records.ParseDimension(fl.Field().String())
			return ok
		})
		_ = v.RegisterValidation("attendance_kind", func(fl validator.FieldLevel) bool {
			switch records.AttendanceKind(strings.ToLower(strings.TrimSpace(fl.Field().String()))) {
			case records.KindStudent, records.KindPTM, records.KindSWPTM:
				return true
			}
			return false
		})
		_ = v.RegisterValidation("cursor", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			if s == "" {
				return true
			}
			_, err := pagination.DecodeCursor(s)
			return err == nil
		})
		_ = v.RegisterValidation("filepath_ext", func(fl validator.FieldLevel) bool {
			s := strings.ToLower(strings.TrimSpace(fl.Field().String()))
			return strings.HasSuffix(s, ".xlsx") || strings.HasSuffix(s, ".xlsm")
		})
	})
	return v
}

// ValidateStruct returns "" when s is valid, otherwise a "CODE: message"
// string for the first failing field.
func ValidateStruct(s any) string {
	err := Validator().Struct(s)
	if err == nil {
		return ""
	}
	ve, ok := err.(validator.ValidationErrors)
	if !ok || len(ve) == 0 {
		return "VALIDATION: invalid inputs"
	}
	fe := ve[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("VALIDATION: %s is required", field)
	case "dimension":
		names := make([]string, 0, len(records.Dimensions))
		for _, d := range records.Dimensions {
			names = append(names, string(d))
		}
		return fmt.Sprintf("VALIDATION: %s must be one of %s", field, strings.Join(names, ", "))
	case "attendance_kind":
		return fmt.Sprintf("VALIDATION: %s must be student, ptm or swptm", field)
	case "cursor":
		return "CURSOR_INVALID: failed to decode cursor; restart pagination without a cursor"
	case "filepath_ext":
		return "VALIDATION: path must be an Excel workbook (.xlsx, .xlsm)"
	case "oneof":
		return fmt.Sprintf("VALIDATION: %s must be one of %s", field, fe.Param())
	case "nefield":
		return fmt.Sprintf("VALIDATION: %s must differ from %s", field, strings.ToLower(fe.Param()))
	case "min", "max", "gte", "lte":
		return fmt.Sprintf("VALIDATION: %s must satisfy %s=%s", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("VALIDATION: invalid %s", field)
}
