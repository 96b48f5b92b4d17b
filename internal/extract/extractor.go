package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/joseph-ayodele/examlens/constants"
	"github.com/joseph-ayodele/examlens/internal/common"
	"github.com/joseph-ayodele/examlens/internal/entity"
)

type Config struct {
	Method    string // auto | native | pdftotext | ocr; "" = auto
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	MaxPages  int    // 0 = no limit

	// OCRFallback lets auto mode rasterize and OCR a PDF with no text layer.
	OCRFallback bool
	OCR         OCRConfig
}

// Extractor picks a strategy from the sniffed content type.
type Extractor struct {
	cfg       Config
	native    TextExtractor
	pdftotext TextExtractor
	ocr       TextExtractor
	text      TextExtractor
	lookPath  func(string) (string, error)
	logger    *slog.Logger
}

// NewExtractor wires the built-in strategies. runner may be nil.
func NewExtractor(cfg Config, runner Runner, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Method == "" {
		cfg.Method = constants.ExtractAuto
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.OCR.Pdftoppm == "" {
		cfg.OCR.Pdftoppm = "pdftoppm"
	}
	if cfg.OCR.Tesseract == "" {
		cfg.OCR.Tesseract = "tesseract"
	}
	return &Extractor{
		cfg:       cfg,
		native:    NewNativePDF(logger),
		pdftotext: NewPdftotext(cfg.Pdftotext, runner, logger),
		ocr:       NewPdfOCR(cfg.OCR, runner, logger),
		text:      PlainText{},
		lookPath:  exec.LookPath,
		logger:    logger,
	}
}

// Sniff returns application/pdf, text/plain or the detected MIME type.
func Sniff(content []byte) string {
	for m := mimetype.Detect(content); m != nil; m = m.Parent() {
		switch {
		case m.Is(constants.MIMEPDF):
			return constants.MIMEPDF
		case m.Is(constants.MIMEText):
			return constants.MIMEText
		}
	}
	return mimetype.Detect(content).String()
}

func (e *Extractor) Extract(ctx context.Context, doc entity.Document) (entity.ExtractedText, error) {
	start := time.Now()
	if len(doc.Content) == 0 {
		return entity.ExtractedText{}, &common.ExtractionError{Reason: "empty_document"}
	}
	ctype := doc.ContentType
	if ctype == "" {
		ctype = Sniff(doc.Content)
	}
	e.logger.Debug("extract.start", "filename", doc.Filename, "content_type", ctype, "method", e.cfg.Method)

	var (
		out entity.ExtractedText
		err error
	)
	switch ctype {
	case constants.MIMEPDF:
		out, err = e.extractPDF(ctx, doc)
	case constants.MIMEText:
		out, err = e.text.Extract(ctx, doc)
	default:
		err = &common.ExtractionError{Reason: "unsupported", Err: fmt.Errorf("content type %q", ctype)}
	}
	if err != nil {
		e.logger.Error("extract.failed", "filename", doc.Filename, "error", err, "duration_ms", time.Since(start).Milliseconds())
		return entity.ExtractedText{}, err
	}

	if e.cfg.MaxPages > 0 && out.PageCount() > e.cfg.MaxPages {
		return entity.ExtractedText{}, &common.ExtractionError{
			Reason: "too_many_pages",
			Err:    fmt.Errorf("%d pages exceeds limit %d", out.PageCount(), e.cfg.MaxPages),
		}
	}
	if out.Empty() {
		return entity.ExtractedText{}, &common.ExtractionError{
			Reason: "no_text",
			Err:    errors.New("document has no text layer"),
		}
	}

	e.logger.Info("extract.ok",
		"filename", doc.Filename,
		"method", out.Method,
		"pages", out.PageCount(),
		"chars", len(out.Text()),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (e *Extractor) extractPDF(ctx context.Context, doc entity.Document) (entity.ExtractedText, error) {
	switch e.cfg.Method {
	case constants.ExtractNative:
		return e.native.Extract(ctx, doc)
	case constants.ExtractPdftotext:
		return e.pdftotext.Extract(ctx, doc)
	case constants.ExtractOCR:
		return e.ocr.Extract(ctx, doc)
	}

	out, err := e.native.Extract(ctx, doc)
	if err == nil {
		if out.Empty() && e.ocrAvailable() {
			e.logger.Warn("extract.native.no_text_layer", "filename", doc.Filename, "pages", out.PageCount())
			return e.ocr.Extract(ctx, doc)
		}
		return out, nil
	}
	var ee *common.ExtractionError
	if !errors.As(err, &ee) || (ee.Reason != "page_decode" && ee.Reason != "corrupt" && ee.Reason != "page_count_mismatch") {
		return entity.ExtractedText{}, err
	}
	if _, lerr := e.lookPath(e.cfg.Pdftotext); lerr != nil {
		return entity.ExtractedText{}, err
	}
	e.logger.Warn("extract.native.fallback", "filename", doc.Filename, "error", err)
	return e.pdftotext.Extract(ctx, doc)
}

func (e *Extractor) ocrAvailable() bool {
	if !e.cfg.OCRFallback || e.ocr == nil {
		return false
	}
	for _, bin := range []string{e.cfg.OCR.Pdftoppm, e.cfg.OCR.Tesseract} {
		if _, err := e.lookPath(bin); err != nil {
			return false
		}
	}
	return true
}
