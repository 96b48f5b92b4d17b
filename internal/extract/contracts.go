package extract

import (
	"context"

	"github.com/joseph-ayodele/examlens/internal/entity"
)

// TextExtractor turns a document into per-page text.
type TextExtractor interface {
	Extract(ctx context.Context, doc entity.Document) (entity.ExtractedText, error)
}

// Method names recorded on ExtractedText.
const (
	MethodNative    = "native"
	MethodPdftotext = "pdftotext"
	MethodText      = "text"
	MethodOCR       = "ocr"
)
