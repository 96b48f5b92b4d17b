package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/joseph-ayodele/examlens/internal/common"
	"github.com/joseph-ayodele/examlens/internal/entity"
)

// pageSource yields plain text per 1-based page.
type pageSource interface {
	NumPage() int
	PageText(n int) (string, error)
}

type ledongthucSource struct {
	r *pdf.Reader
}

func (s ledongthucSource) NumPage() int { return s.r.NumPage() }

func (s ledongthucSource) PageText(n int) (string, error) {
	p := s.r.Page(n)
	if p.V.IsNull() {
		return "", fmt.Errorf("page %d not found", n)
	}
	return p.GetPlainText(nil)
}

var disablePdfcpuConfig sync.Once

func pdfcpuPageCount(rs io.ReadSeeker) (int, error) {
	disablePdfcpuConfig.Do(func() { model.ConfigPath = "disable" })
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.PageCount(rs, conf)
}

func openLedongthuc(b []byte) (pageSource, error) {
	r, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, err
	}
	return ledongthucSource{r: r}, nil
}

// NativePDF extracts the text layer in-process. pdfcpu validates the file and
// counts pages; ledongthuc/pdf decodes the text of each page.
type NativePDF struct {
	logger    *slog.Logger
	pageCount func(io.ReadSeeker) (int, error)
	open      func([]byte) (pageSource, error)
}

func NewNativePDF(logger *slog.Logger) *NativePDF {
	if logger == nil {
		logger = slog.Default()
	}
	return &NativePDF{logger: logger, pageCount: pdfcpuPageCount, open: openLedongthuc}
}

// Extract fails on the first page whose text cannot be decoded rather than
// substituting an empty page.
func (n *NativePDF) Extract(ctx context.Context, doc entity.Document) (out entity.ExtractedText, err error) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("extract.native.panic", "filename", doc.Filename, "panic", r)
			out = entity.ExtractedText{}
			err = &common.ExtractionError{Reason: "corrupt", Err: fmt.Errorf("pdf decoder panic: %v", r)}
		}
	}()

	count, err := n.pageCount(bytes.NewReader(doc.Content))
	if err != nil {
		return entity.ExtractedText{}, &common.ExtractionError{Reason: "corrupt", Err: err}
	}
	if count == 0 {
		return entity.ExtractedText{}, &common.ExtractionError{Reason: "zero_pages"}
	}

	src, err := n.open(doc.Content)
	if err != nil {
		return entity.ExtractedText{}, &common.ExtractionError{Reason: "corrupt", Err: err}
	}
	if got := src.NumPage(); got != count {
		return entity.ExtractedText{}, &common.ExtractionError{
			Reason: "page_count_mismatch",
			Err:    fmt.Errorf("page tree reports %d pages, decoder sees %d", count, got),
		}
	}

	pages := make([]string, count)
	for i := 1; i <= count; i++ {
		if err := ctx.Err(); err != nil {
			return entity.ExtractedText{}, &common.ExtractionError{Reason: "cancelled", Err: err}
		}
		txt, err := n.pageText(src, i)
		if err != nil {
			n.logger.Warn("extract.native.page_failed", "filename", doc.Filename, "page", i, "error", err)
			return entity.ExtractedText{}, &common.ExtractionError{Reason: "page_decode", Page: i, Err: err}
		}
		pages[i-1] = txt
	}
	return entity.ExtractedText{Pages: NormalizePages(pages), Method: MethodNative}, nil
}

// pageText isolates decoder panics to the page that caused them.
func (n *NativePDF) pageText(src pageSource, i int) (txt string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()
	return src.PageText(i)
}
