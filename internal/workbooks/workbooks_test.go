package workbooks

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/schoolpulse/schoolpulse/pkg/mcperr"
)

// fakeGate counts capacity calls.
type fakeGate struct {
	acquireErr error
	acquires   atomic.Int64
	releases   atomic.Int64
}

func (g *fakeGate) AcquireWorkbook(ctx context.Context) error {
	g.acquires.Add(1)
	return g.acquireErr
}

func (g *fakeGate) ReleaseWorkbook() { g.releases.Add(1) }

type denyValidator struct{}

func (denyValidator) ValidateOpenPath(string) (string, error) { return "", fmt.Errorf("denied") }

func writeAssessmentBook(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	path := filepath.Join(t.TempDir(), "marks.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
	return path
}

func TestOpen_SharesHandleByPath(t *testing.T) {
	gate := &fakeGate{}
	m := NewManager(time.Minute, time.Minute, gate, time.Now)
	path := writeAssessmentBook(t, [][]any{{"School", "Obtained Marks", "Max Marks"}})

	id1, err := m.Open(context.Background(), path)
	require.NoError(t, err)
	id2, err := m.Open(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
	require.Equal(t, int64(1), gate.acquires.Load())

	sheets, err := m.Sheets(id1)
	require.NoError(t, err)
	require.Equal(t, []string{"Sheet1"}, sheets)

	sheet, err := m.ResolveSheet(id1, "sheet1")
	require.NoError(t, err)
	require.Equal(t, "Sheet1", sheet)
	sheet, err = m.ResolveSheet(id1, "")
	require.NoError(t, err)
	require.Equal(t, "Sheet1", sheet)
	_, err = m.ResolveSheet(id1, "Marks")
	require.True(t, mcperr.IsInvalidSheet(err))

	require.NoError(t, m.CloseHandle(id1))
	require.Equal(t, 0, m.Count())
	require.Equal(t, int64(1), gate.releases.Load())
	require.ErrorIs(t, m.CloseHandle(id1), ErrHandleNotFound)
}

func TestEvictExpired(t *testing.T) {
	var now atomic.Int64
	now.Store(time.Now().UnixNano())
	clock := func() time.Time { return time.Unix(0, now.Load()) }

	gate := &fakeGate{}
	m := NewManager(50*time.Millisecond, time.Second, gate, clock)
	path := writeAssessmentBook(t, [][]any{{"School", "Obtained", "Max"}})
	_, err := m.Open(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 0, m.EvictExpired())

	now.Add(int64(time.Second))
	require.Equal(t, 1, m.EvictExpired())
	require.Equal(t, 0, m.Count())
	require.Equal(t, int64(1), gate.releases.Load())
}

func TestOpen_RejectsBeforeTakingCapacity(t *testing.T) {
	gate := &fakeGate{}
	m := NewManager(time.Second, time.Second, gate, time.Now)

	_, err := m.Open(context.Background(), "marks.csv")
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	m.SetPathValidator(denyValidator{})
	_, err = m.Open(context.Background(), "marks.xlsx")
	require.Error(t, err)
	require.Zero(t, gate.acquires.Load())
}

func TestOpen_GateBusy(t *testing.T) {
	gate := &fakeGate{acquireErr: context.DeadlineExceeded}
	m := NewManager(time.Second, time.Second, gate, time.Now)
	path := writeAssessmentBook(t, [][]any{{"School", "Obtained", "Max"}})

	_, err := m.Open(context.Background(), path)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, gate.releases.Load())
}

func TestReadAssessments(t *testing.T) {
	path := writeAssessmentBook(t, [][]any{
		{},
		{"Student ID", "School Name", "Grade", "Subject", "Gender", "Assessment Date", "Obtained Marks", "Max Marks", "Notes"},
		{"s1", "Sunrise", "Gr. 3", "maths", "female", "2024-06-15", 8, 10, "x"},
		{"s2", "Sunrise", "3", "English", "M", "15/07/2024", "1,500", 2000},
		{"s3", "", "3", "English", "M", "", 5, 10},
		{"s4", "Lakeview", "3", "English", "M", "", "abc", 10},
		{},
	})
	m := NewManager(time.Minute, time.Minute, nil, time.Now)
	id, err := m.Open(context.Background(), path)
	require.NoError(t, err)

	imp, err := m.ReadAssessments(context.Background(), id, "", 0)
	require.NoError(t, err)
	require.Equal(t, "Sheet1", imp.Sheet)
	require.Len(t, imp.Rows, 2)
	require.Equal(t, 2, imp.Skipped)
	require.Equal(t, []string{"Student ID", "School Name", "Grade", "Subject", "Gender", "Assessment Date", "Obtained Marks", "Max Marks"}, imp.Columns)

	first := imp.Rows[0]
	require.Equal(t, "Grade 3", first.Grade)
	require.Equal(t, "Math", first.Subject)
	require.Equal(t, "F", first.Gender)
	require.Equal(t, 8.0, first.Obtained)
	require.Equal(t, time.June, first.Date.Month())

	second := imp.Rows[1]
	require.Equal(t, 1500.0, second.Obtained)
	require.Equal(t, time.July, second.Date.Month())
}

func TestReadAssessments_SkipsInvalidMarks(t *testing.T) {
	path := writeAssessmentBook(t, [][]any{
		{"School", "Obtained Marks", "Max Marks"},
		{"A", "Inf", 100},
		{"B", "-40", 100},
		{"C", "NaN", 100},
		{"D", 10, "+Inf"},
		{"E", 30, 60},
	})
	m := NewManager(time.Minute, time.Minute, nil, time.Now)
	id, err := m.Open(context.Background(), path)
	require.NoError(t, err)

	imp, err := m.ReadAssessments(context.Background(), id, "", 0)
	require.NoError(t, err)
	require.Equal(t, 4, imp.Skipped)
	require.Len(t, imp.Rows, 1)
	require.Equal(t, "E", imp.Rows[0].School)
}

func TestParseDate_DayFirst(t *testing.T) {
	for _, s := range []string{"03-04-2024", "03/04/2024", "3/4/2024", "03-04-24", "03/04/24", "3/4/24"} {
		d := parseDate(s)
		require.Equal(t, time.April, d.Month(), s)
		require.Equal(t, 3, d.Day(), s)
		require.Equal(t, 2024, d.Year(), s)
	}
	require.True(t, parseDate("not a date").IsZero())
}

func TestReadAssessments_Errors(t *testing.T) {
	path := writeAssessmentBook(t, [][]any{
		{"School", "Score"},
		{"Sunrise", 4},
	})
	m := NewManager(time.Minute, time.Minute, nil, time.Now)
	id, err := m.Open(context.Background(), path)
	require.NoError(t, err)

	_, err = m.ReadAssessments(context.Background(), id, "", 0)
	require.ErrorIs(t, err, ErrMissingColumn)

	_, err = m.ReadAssessments(context.Background(), id, "Nope", 0)
	require.True(t, mcperr.IsInvalidSheet(err))

	full := writeAssessmentBook(t, [][]any{
		{"School", "Obtained", "Max"},
		{"A", 1, 2},
		{"B", 1, 2},
	})
	id, err = m.Open(context.Background(), full)
	require.NoError(t, err)
	_, err = m.ReadAssessments(context.Background(), id, "", 1)
	require.True(t, errors.Is(err, mcperr.ErrLimitExceeded))
}
