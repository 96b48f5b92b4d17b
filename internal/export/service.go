package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/examlens/internal/entity"
	"github.com/joseph-ayodele/examlens/internal/repository"
)

// ErrNoResult means the current outcome is an error record, so there is no
// study guide to export.
var ErrNoResult = errors.New("current outcome is an error")

const summarySheet = "Summary"

// Service produces XLSX study guides from the stored outcome.
type Service struct {
	store  repository.ResultStore
	logger *slog.Logger
}

func NewService(store repository.ResultStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// CurrentXLSX exports the current result. It returns common.ErrNotAvailable
// when nothing is stored and ErrNoResult when the last run failed.
func (s *Service) CurrentXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()
	out, err := s.store.ReadCurrent(ctx)
	if err != nil {
		return nil, err
	}
	if out.IsError() {
		return nil, fmt.Errorf("%w: %s", ErrNoResult, out.Error.Stage)
	}
	b, err := StudyGuideXLSX(*out.Result)
	if err != nil {
		return nil, err
	}
	s.logger.Info("export.xlsx.ok",
		"run_id", out.RunID,
		"categories", len(out.Result.Categories),
		"bytes", len(b),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return b, nil
}

// StudyGuideXLSX renders a workbook with a summary sheet followed by one
// sheet per category, in category order.
func StudyGuideXLSX(r entity.AnalysisResult) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	headers := []any{"Category", "Questions Covered", "Question Count", "Category Summary"}
	if err := writeRow(f, summarySheet, 1, headers...); err != nil {
		return nil, err
	}
	for i, c := range r.Categories {
		if err := writeRow(f, summarySheet, i+2, c.Name, joinQuestions(c.QuestionsCovered), len(c.QuestionsCovered), c.Summary); err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 28)
	_ = f.SetColWidth(summarySheet, "B", "C", 18)
	_ = f.SetColWidth(summarySheet, "D", "D", 80)

	used := map[string]struct{}{strings.ToLower(summarySheet): {}}
	for _, c := range r.Categories {
		name := sheetName(c.Name, used)
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("sheet %q: %w", name, err)
		}
		if err := writeRow(f, name, 1, "Tips and Tricks", "Useful Formulas"); err != nil {
			return nil, err
		}
		rows := max(len(c.Tips), len(c.Formulas))
		for i := 0; i < rows; i++ {
			if err := writeRow(f, name, i+2, at(c.Tips, i), at(c.Formulas, i)); err != nil {
				return nil, err
			}
		}
		_ = f.SetColWidth(name, "A", "A", 60)
		_ = f.SetColWidth(name, "B", "B", 40)
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return fmt.Errorf("sheet %q row %d: %w", sheet, row, err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("sheet %q cell %s: %w", sheet, cell, err)
		}
	}
	return nil
}

func joinQuestions(qs []entity.QuestionID) string {
	parts := make([]string, len(qs))
	for i, q := range qs {
		parts[i] = string(q)
	}
	return strings.Join(parts, ", ")
}

func at(list []string, i int) string {
	if i < len(list) {
		return list[i]
	}
	return ""
}

// sheetName makes a unique, Excel-legal sheet name (31 runes, no []:*?/\).
func sheetName(name string, used map[string]struct{}) string {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '-'
		}
		return r
	}, strings.TrimSpace(name))
	clean = strings.Trim(clean, "'")
	if clean == "" {
		clean = "Category"
	}
	base := truncate(clean, 31)
	candidate := base
	for n := 2; ; n++ {
		if _, ok := used[strings.ToLower(candidate)]; !ok {
			break
		}
		suffix := fmt.Sprintf(" (%d)", n)
		candidate = truncate(clean, 31-utf8.RuneCountInString(suffix)) + suffix
	}
	used[strings.ToLower(candidate)] = struct{}{}
	return candidate
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
