package mcperr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Code defines a canonical MCP error code used across tools.
type Code string

const (
	// Validation & Input
	Validation        Code = "VALIDATION"
	CursorInvalid     Code = "CURSOR_INVALID"
	CursorBuildFailed Code = "CURSOR_BUILD_FAILED"

	// Resource & Limits
	BusyResource  Code = "BUSY_RESOURCE"
	Timeout       Code = "TIMEOUT"
	LimitExceeded Code = "LIMIT_EXCEEDED"

	// Data access
	DataSourceUnavailable Code = "DATA_SOURCE_UNAVAILABLE"
	AnalysisFailed        Code = "ANALYSIS_FAILED"

	// Imports
	ImportsDisabled   Code = "IMPORTS_DISABLED"
	ImportFailed      Code = "IMPORT_FAILED"
	OpenFailed        Code = "OPEN_FAILED"
	InvalidSheet      Code = "INVALID_SHEET"
	UnsupportedFormat Code = "UNSUPPORTED_FORMAT"
	PermissionDenied  Code = "PERMISSION_DENIED"
)

// Entry documents a code's standard message, retry semantics, and next steps.
type Entry struct {
	Code      Code
	Message   string
	Retryable bool
	NextSteps []string
}

var catalog = map[Code]Entry{
	Validation:        {Code: Validation, Message: "invalid inputs", Retryable: true, NextSteps: []string{"Correct the inputs per schema and retry"}},
	CursorInvalid:     {Code: CursorInvalid, Message: "cursor does not match the current filters", Retryable: true, NextSteps: []string{"Restart pagination from the first page", "Resend the same filters with the cursor"}},
	CursorBuildFailed: {Code: CursorBuildFailed, Message: "failed to encode next page cursor", Retryable: true, NextSteps: []string{"Retry with a smaller page_size"}},

	BusyResource:  {Code: BusyResource, Message: "concurrent request limit reached", Retryable: true, NextSteps: []string{"Retry after a short delay"}},
	Timeout:       {Code: Timeout, Message: "operation exceeded configured time limit", Retryable: true, NextSteps: []string{"Narrow the filters (year, school, grade) and retry"}},
	LimitExceeded: {Code: LimitExceeded, Message: "matching rows exceed the configured limit", Retryable: true, NextSteps: []string{"Add filters such as academic_year or school"}},

	DataSourceUnavailable: {Code: DataSourceUnavailable, Message: "the data source is unreachable", Retryable: true, NextSteps: []string{"Try again shortly", "Contact an administrator if the problem persists"}},
	AnalysisFailed:        {Code: AnalysisFailed, Message: "analysis failed", Retryable: true, NextSteps: []string{"Verify dimensions and filters"}},

	ImportsDisabled:   {Code: ImportsDisabled, Message: "workbook imports are disabled", Retryable: false, NextSteps: []string{"Set SCHOOLPULSE_IMPORTS_ENABLED=true and use the memory source"}},
	ImportFailed:      {Code: ImportFailed, Message: "workbook import failed", Retryable: true, NextSteps: []string{"Check the header row names and numeric mark columns"}},
	OpenFailed:        {Code: OpenFailed, Message: "failed to open workbook", Retryable: true, NextSteps: []string{"Verify path, permissions, and format"}},
	InvalidSheet:      {Code: InvalidSheet, Message: "sheet not found", Retryable: true, NextSteps: []string{"Check case and spacing of the sheet name"}},
	UnsupportedFormat: {Code: UnsupportedFormat, Message: "unsupported workbook format", Retryable: false, NextSteps: []string{"Convert to .xlsx and retry"}},
	PermissionDenied:  {Code: PermissionDenied, Message: "path is outside the allowed directories", Retryable: false, NextSteps: []string{"Move the file into an allowed directory"}},
}

// normalize builds "CODE: message | nextSteps: ..." for clients that surface only text.
func normalize(code Code, msg string) string {
	base := strings.TrimSpace(msg)
	e, ok := catalog[code]
	if !ok {
		if base == "" {
			return string(code)
		}
		return fmt.Sprintf("%s: %s", string(code), base)
	}
	if base == "" {
		base = e.Message
	}
	guidance := ""
	if len(e.NextSteps) > 0 {
		guidance = " | nextSteps: " + strings.Join(e.NextSteps, "; ")
	}
	return fmt.Sprintf("%s: %s%s", e.Code, base, guidance)
}

// FromText parses a "CODE: message" string, enriches it with catalog guidance,
// and returns an MCP tool error result.
func FromText(text string) *mcp.CallToolResult {
	t := strings.TrimSpace(text)
	if t == "" {
		return mcp.NewToolResultError(normalize(Validation, ""))
	}
	parts := strings.SplitN(t, ":", 2)
	code := Code(strings.TrimSpace(parts[0]))
	msg := ""
	if len(parts) > 1 {
		msg = strings.TrimSpace(parts[1])
	}
	return mcp.NewToolResultError(normalize(code, msg))
}

// New returns an MCP error result for a given code and optional message override.
func New(code Code, message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(normalize(code, message))
}

var (
	// ErrDataSourceUnavailable marks failures reaching the fact store or city directory.
	ErrDataSourceUnavailable = errors.New("data source unavailable")
	// ErrLimitExceeded marks requests whose matching rows exceed the configured cap.
	ErrLimitExceeded = errors.New("row limit exceeded")
	// ErrImportsDisabled marks import attempts when no writable source is configured.
	ErrImportsDisabled = errors.New("imports disabled")
	// ErrCursorBuild marks a page whose continuation cursor could not be encoded.
	ErrCursorBuild = errors.New("cursor build failed")
)

// SourceError records which data access failed. It matches ErrDataSourceUnavailable.
type SourceError struct {
	Op  string
	Err error
}

func (e *SourceError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *SourceError) Unwrap() error { return e.Err }

func (e *SourceError) Is(target error) bool { return target == ErrDataSourceUnavailable }

// Unavailable wraps err as a data source failure for op.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &SourceError{Op: op, Err: err}
}

// IsUnavailable reports whether err is a data source failure.
func IsUnavailable(err error) bool { return errors.Is(err, ErrDataSourceUnavailable) }

// FromError maps well-known errors onto catalog codes, using fallback otherwise.
func FromError(err error, fallback Code) *mcp.CallToolResult {
	switch {
	case err == nil:
		return nil
	case IsUnavailable(err):
		return New(DataSourceUnavailable, "")
	case errors.Is(err, context.DeadlineExceeded):
		return New(Timeout, "")
	case errors.Is(err, ErrLimitExceeded):
		return New(LimitExceeded, err.Error())
	case errors.Is(err, ErrImportsDisabled):
		return New(ImportsDisabled, "")
	case errors.Is(err, ErrCursorBuild):
		return New(CursorBuildFailed, "")
	}
	return New(fallback, err.Error())
}

// IsInvalidSheet returns true if an error matches common excelize "sheet does not exist" messages.
func IsInvalidSheet(err error) bool {
	if err == nil {
		return false
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "doesn't exist") || strings.Contains(low, "does not exist")
}
