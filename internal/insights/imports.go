package insights

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/schoolpulse/schoolpulse/internal/store"
	"github.com/schoolpulse/schoolpulse/internal/telemetry"
	"github.com/schoolpulse/schoolpulse/internal/workbooks"
	"github.com/schoolpulse/schoolpulse/pkg/mcperr"
)

// Import modes.
const (
	ModeAppend  = "append"
	ModeReplace = "replace"
)

// ImportResult describes a completed workbook import.
type ImportResult struct {
	BatchID   string   `json:"batch_id"`
	Sheet     string   `json:"sheet"`
	Mode      string   `json:"mode"`
	Imported  int      `json:"imported"`
	Skipped   int      `json:"skipped"`
	TotalRows int      `json:"total_rows"`
	Columns   []string `json:"columns"`
}

// Import reads assessment rows from a workbook into the in-memory source.
// The computed-result cache is cleared afterwards.
func (s *Service) Import(ctx context.Context, path, sheet, mode string) (ImportResult, error) {
	if !s.imports || s.workbooks == nil {
		return ImportResult{}, mcperr.ErrImportsDisabled
	}
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = ModeAppend
	}
	if mode != ModeAppend && mode != ModeReplace {
		return ImportResult{}, errors.Errorf("insights: unknown import mode %q", mode)
	}
	batch := uuid.NewString()
	log := s.log(ctx).With().Str("batch_id", batch).Str("path", path).Logger()

	imp, total, err := LoadWorkbook(ctx, s.workbooks, s.sink, path, sheet, mode, s.limits.MaxFactRows)
	if err != nil {
		log.Warn().Err(err).Msg("workbook import failed")
		return ImportResult{}, err
	}
	s.cache.Purge()
	log.Info().
		Str("sheet", imp.Sheet).
		Int("imported", len(imp.Rows)).
		Int("skipped", imp.Skipped).
		Int("total_rows", total).
		Msg("workbook imported")

	return ImportResult{
		BatchID:   batch,
		Sheet:     imp.Sheet,
		Mode:      mode,
		Imported:  len(imp.Rows),
		Skipped:   imp.Skipped,
		TotalRows: total,
		Columns:   nonNil(imp.Columns),
	}, nil
}

// LoadWorkbook opens path through wb, reads one assessment sheet and hands
// the rows to sink. It returns the sink's new row count. The workbook is
// closed once read.
func LoadWorkbook(ctx context.Context, wb *workbooks.Manager, sink store.Sink, path, sheet, mode string, limit int) (workbooks.Import, int, error) {
	id, err := wb.Open(ctx, path)
	if err != nil {
		return workbooks.Import{}, 0, err
	}
	defer func() {
		if cerr := wb.CloseHandle(id); cerr != nil && !errors.Is(cerr, workbooks.ErrHandleNotFound) {
			zerolog.Ctx(ctx).Debug().Err(cerr).Str("handle", id).Msg("close workbook")
		}
	}()

	sheet, err = wb.ResolveSheet(id, sheet)
	if err != nil {
		return workbooks.Import{}, 0, err
	}
	imp, err := wb.ReadAssessments(ctx, id, sheet, limit)
	if err != nil {
		return workbooks.Import{}, 0, err
	}
	var total int
	if mode == ModeReplace {
		total = sink.ReplaceAssessments(imp.Rows...)
	} else {
		total = sink.AddAssessments(imp.Rows...)
	}
	telemetry.ObserveImport(len(imp.Rows))
	return imp, total, nil
}
