package extract

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/joseph-ayodele/examlens/internal/common"
	"github.com/joseph-ayodele/examlens/internal/entity"
)

// PlainText reads UTF-8 text documents; form feeds separate pages.
type PlainText struct{}

func (PlainText) Extract(_ context.Context, doc entity.Document) (entity.ExtractedText, error) {
	if !utf8.Valid(doc.Content) {
		return entity.ExtractedText{}, &common.ExtractionError{
			Reason: "unsupported_encoding",
			Err:    errors.New("text document is not valid UTF-8"),
		}
	}
	pages := SplitFormFeeds(string(doc.Content))
	if len(pages) == 0 {
		return entity.ExtractedText{}, &common.ExtractionError{Reason: "zero_pages"}
	}
	return entity.ExtractedText{Pages: NormalizePages(pages), Method: MethodText}, nil
}
