package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joseph-ayodele/examlens/internal/common"
	"github.com/joseph-ayodele/examlens/internal/entity"
)

// Pdftotext shells out to poppler's pdftotext. Pages are separated by form feeds.
type Pdftotext struct {
	bin    string
	runner Runner
	logger *slog.Logger
}

func NewPdftotext(bin string, runner Runner, logger *slog.Logger) *Pdftotext {
	if logger == nil {
		logger = slog.Default()
	}
	if bin == "" {
		bin = "pdftotext"
	}
	if runner == nil {
		runner = execRunner{logger: logger}
	}
	return &Pdftotext{bin: bin, runner: runner, logger: logger}
}

func (p *Pdftotext) Extract(ctx context.Context, doc entity.Document) (entity.ExtractedText, error) {
	tmp, err := os.CreateTemp("", "examlens-*.pdf")
	if err != nil {
		return entity.ExtractedText{}, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err := os.Remove(tmp.Name()); err != nil {
			p.logger.Warn("extract.pdftotext.cleanup_failed", "path", tmp.Name(), "error", err)
		}
	}()
	if _, err := tmp.Write(doc.Content); err != nil {
		_ = tmp.Close()
		return entity.ExtractedText{}, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return entity.ExtractedText{}, fmt.Errorf("close temp file: %w", err)
	}

	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := p.runner.Run(ctx, p.bin, "-layout", "-enc", "UTF-8", "-eol", "unix", tmp.Name(), "-")
	if err != nil {
		return entity.ExtractedText{}, &common.ExtractionError{
			Reason: "corrupt",
			Err:    fmt.Errorf("%s: %w: %s", p.bin, err, truncate(strings.TrimSpace(string(errb)), 512)),
		}
	}
	pages := SplitFormFeeds(string(out))
	if len(pages) == 0 {
		return entity.ExtractedText{}, &common.ExtractionError{Reason: "zero_pages"}
	}
	return entity.ExtractedText{Pages: NormalizePages(pages), Method: MethodPdftotext}, nil
}

// SplitFormFeeds splits on \f. A trailing empty chunk after the final form
// feed is a terminator, not a page. Empty input has zero pages.
func SplitFormFeeds(s string) []string {
	if s == "" {
		return nil
	}
	pages := strings.Split(s, "\f")
	if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	return pages
}
