package entity

import (
	"fmt"
	"strings"
	"time"
)

// Document is one uploaded exam. It lives only for the duration of a run.
type Document struct {
	Filename    string    `json:"filename"`
	Content     []byte    `json:"-"`
	ContentType string    `json:"content_type"` // sniffed, e.g. application/pdf
	Ext         string    `json:"ext"`          // normalized, no dot
	SHA256      string    `json:"sha256"`
	ReceivedAt  time.Time `json:"received_at"`
}

// Size returns the content length in bytes.
func (d Document) Size() int { return len(d.Content) }

// ExtractedText is the per-page text of a document, in page order.
// Empty pages are kept as "" so page numbers stay referenceable.
type ExtractedText struct {
	Pages  []string
	Method string // native | pdftotext | text
}

// PageCount returns the number of pages, including empty ones.
func (t ExtractedText) PageCount() int { return len(t.Pages) }

// Text concatenates the pages in order, each preceded by a page marker.
func (t ExtractedText) Text() string {
	var b strings.Builder
	for i, p := range t.Pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- Page %d ---\n", i+1)
		b.WriteString(p)
	}
	return b.String()
}

// Empty reports whether every page is blank.
func (t ExtractedText) Empty() bool {
	for _, p := range t.Pages {
		if strings.TrimSpace(p) != "" {
			return false
		}
	}
	return true
}
