package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/examlens/internal/common"
	"github.com/joseph-ayodele/examlens/internal/entity"
)

// OCRConfig configures the scanned-PDF strategy.
type OCRConfig struct {
	Pdftoppm    string // default "pdftoppm"
	Tesseract   string // default "tesseract"
	Lang        string // default "eng"
	TessdataDir string
	DPI         int // default 300
	PSM         int // 0 = tesseract default
}

// PdfOCR rasterizes each page with pdftoppm and reads it back with tesseract.
type PdfOCR struct {
	cfg    OCRConfig
	runner Runner
	logger *slog.Logger
}

var reBoxNoise = regexp.MustCompile(`[|¦]{2,}`)

func NewPdfOCR(cfg OCRConfig, runner Runner, logger *slog.Logger) *PdfOCR {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = execRunner{logger: logger}
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &PdfOCR{cfg: cfg, runner: runner, logger: logger}
}

func (o *PdfOCR) Extract(ctx context.Context, doc entity.Document) (entity.ExtractedText, error) {
	tmpDir, err := os.MkdirTemp("", "examlens-ocr-*")
	if err != nil {
		return entity.ExtractedText{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			o.logger.Warn("extract.ocr.cleanup_failed", "path", tmpDir, "error", err)
		}
	}()

	in := filepath.Join(tmpDir, "exam.pdf")
	if err := os.WriteFile(in, doc.Content, 0o600); err != nil {
		return entity.ExtractedText{}, fmt.Errorf("write temp file: %w", err)
	}

	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	prefix := filepath.Join(tmpDir, "page")
	_, errb, err := o.runner.Run(ctx, o.cfg.Pdftoppm, "-r", strconv.Itoa(o.cfg.DPI), "-png", in, prefix)
	if err != nil {
		return entity.ExtractedText{}, &common.ExtractionError{
			Reason: "corrupt",
			Err:    fmt.Errorf("%s: %w: %s", o.cfg.Pdftoppm, err, truncate(strings.TrimSpace(string(errb)), 512)),
		}
	}

	// pdftoppm zero-pads page numbers to a common width, so a lexical sort is page order
	images, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(images)
	if len(images) == 0 {
		return entity.ExtractedText{}, &common.ExtractionError{Reason: "zero_pages"}
	}

	pages := make([]string, 0, len(images))
	for i, img := range images {
		txt, err := o.tesseract(ctx, img)
		if err != nil {
			return entity.ExtractedText{}, &common.ExtractionError{Reason: "page_decode", Page: i + 1, Err: err}
		}
		pages = append(pages, txt)
	}
	o.logger.Debug("extract.ocr.ok", "filename", doc.Filename, "pages", len(pages), "lang", o.cfg.Lang)
	return entity.ExtractedText{Pages: NormalizePages(pages), Method: MethodOCR}, nil
}

func (o *PdfOCR) tesseract(ctx context.Context, img string) (string, error) {
	// tesseract <file> stdout -l <lang>
	args := []string{img, "stdout", "-l", o.cfg.Lang}
	if o.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", o.cfg.TessdataDir)
	}
	if o.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(o.cfg.PSM))
	}
	out, errb, err := o.runner.Run(ctx, o.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %s", o.cfg.Tesseract, err, truncate(strings.TrimSpace(string(errb)), 512))
	}
	return reBoxNoise.ReplaceAllString(string(out), ""), nil
}
