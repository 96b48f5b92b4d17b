package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/joseph-ayodele/examlens/constants"
	"github.com/joseph-ayodele/examlens/internal/common"
	"github.com/joseph-ayodele/examlens/internal/entity"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSource struct {
	pages  []string
	failOn int
	panics bool
}

func (f fakeSource) NumPage() int { return len(f.pages) }

func (f fakeSource) PageText(n int) (string, error) {
	if n == f.failOn {
		if f.panics {
			panic("bad font")
		}
		return "", errors.New("bad stream")
	}
	return f.pages[n-1], nil
}

func nativeWith(count int, src fakeSource) *NativePDF {
	n := NewNativePDF(quiet)
	n.pageCount = func(io.ReadSeeker) (int, error) { return count, nil }
	n.open = func([]byte) (pageSource, error) { return src, nil }
	return n
}

// buildPDF writes a minimal PDF with one Helvetica text line per page and a
// correct xref table.
func buildPDF(lines ...string) []byte {
	n := len(lines)
	fontObj := 3 + 2*n
	kids := make([]string, n)
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"", // page tree, filled below
	}
	for i, line := range lines {
		pageObj, contentObj := 3+2*i, 4+2*i
		kids[i] = fmt.Sprintf("%d 0 R", pageObj)
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", line)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>", fontObj, contentObj),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}
	objs[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n)
	objs = append(objs, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return []byte(b.String())
}

func TestNativeRoundTripsSyntheticPDF(t *testing.T) {
	doc := entity.Document{Filename: "exam.pdf", Content: buildPDF("1. PAGEONE marker", "4. PAGETWO marker")}
	out, err := NewNativePDF(quiet).Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if out.PageCount() != 2 {
		t.Fatalf("expected 2 pages, got %d: %q", out.PageCount(), out.Pages)
	}
	if !strings.Contains(out.Pages[0], "PAGEONE") || !strings.Contains(out.Pages[1], "PAGETWO") {
		t.Fatalf("page order not preserved: %q", out.Pages)
	}
	if out.Method != MethodNative {
		t.Fatalf("unexpected method %q", out.Method)
	}

	e := NewExtractor(Config{Method: constants.ExtractNative}, nil, quiet)
	doc.ContentType = Sniff(doc.Content)
	text, err := e.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if text.PageCount() != 2 || !strings.Contains(text.Text(), "--- Page 2 ---") {
		t.Fatalf("unexpected text %q", text.Text())
	}
}

func pdfDoc() entity.Document {
	return entity.Document{Filename: "exam.pdf", Content: []byte("%PDF-1.4\n%fake\n")}
}

func requireExtractionReason(t *testing.T, err error, reason string) *common.ExtractionError {
	t.Helper()
	var ee *common.ExtractionError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if ee.Reason != reason {
		t.Fatalf("expected reason %q, got %q", reason, ee.Reason)
	}
	return ee
}

func TestNativePreservesPageOrderAndEmptyPages(t *testing.T) {
	src := fakeSource{pages: []string{"PAGE-1 marker", "", "PAGE-3 marker"}}
	out, err := nativeWith(3, src).Extract(context.Background(), pdfDoc())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.PageCount() != 3 {
		t.Fatalf("expected 3 pages, got %d", out.PageCount())
	}
	if out.Pages[0] != "PAGE-1 marker" || out.Pages[1] != "" || out.Pages[2] != "PAGE-3 marker" {
		t.Fatalf("unexpected pages: %q", out.Pages)
	}
	text := out.Text()
	if strings.Index(text, "PAGE-1") > strings.Index(text, "PAGE-3") {
		t.Fatal("page order not preserved in concatenated text")
	}
	if !strings.Contains(text, "--- Page 2 ---") {
		t.Fatal("empty page should still get a marker")
	}
}

func TestNativePageDecodeFailureIsHard(t *testing.T) {
	src := fakeSource{pages: []string{"a", "b", "c"}, failOn: 2}
	_, err := nativeWith(3, src).Extract(context.Background(), pdfDoc())
	ee := requireExtractionReason(t, err, "page_decode")
	if ee.Page != 2 {
		t.Fatalf("expected page 2, got %d", ee.Page)
	}
}

func TestNativeDecoderPanicIsRecovered(t *testing.T) {
	src := fakeSource{pages: []string{"a", "b"}, failOn: 1, panics: true}
	_, err := nativeWith(2, src).Extract(context.Background(), pdfDoc())
	requireExtractionReason(t, err, "page_decode")
}

func TestNativeZeroPages(t *testing.T) {
	_, err := nativeWith(0, fakeSource{}).Extract(context.Background(), pdfDoc())
	requireExtractionReason(t, err, "zero_pages")
}

func TestNativeCorruptFile(t *testing.T) {
	n := NewNativePDF(quiet)
	n.pageCount = func(io.ReadSeeker) (int, error) { return 0, errors.New("no xref") }
	_, err := n.Extract(context.Background(), pdfDoc())
	requireExtractionReason(t, err, "corrupt")
}

func TestNativePageCountMismatch(t *testing.T) {
	_, err := nativeWith(3, fakeSource{pages: []string{"a", "b"}}).Extract(context.Background(), pdfDoc())
	requireExtractionReason(t, err, "page_count_mismatch")
}

type stubRunner struct {
	out  string
	err  error
	args []string
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.args = append([]string{name}, args...)
	return []byte(s.out), []byte("stderr text"), s.err
}

func TestPdftotextSplitsOnFormFeed(t *testing.T) {
	r := &stubRunner{out: "first page\fsecond page\f\ffourth page\f"}
	out, err := NewPdftotext("", r, quiet).Extract(context.Background(), pdfDoc())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"first page", "second page", "", "fourth page"}
	if len(out.Pages) != len(want) {
		t.Fatalf("expected %d pages, got %d: %q", len(want), len(out.Pages), out.Pages)
	}
	for i := range want {
		if out.Pages[i] != want[i] {
			t.Errorf("page %d: got %q want %q", i+1, out.Pages[i], want[i])
		}
	}
	if r.args[0] != "pdftotext" || r.args[1] != "-layout" || r.args[len(r.args)-1] != "-" {
		t.Fatalf("unexpected invocation: %v", r.args)
	}
	if out.Method != MethodPdftotext {
		t.Fatalf("unexpected method %q", out.Method)
	}
}

func TestPdftotextFailure(t *testing.T) {
	r := &stubRunner{err: errors.New("exit status 1")}
	_, err := NewPdftotext("pdftotext", r, quiet).Extract(context.Background(), pdfDoc())
	requireExtractionReason(t, err, "corrupt")
}

func TestPlainText(t *testing.T) {
	doc := entity.Document{Filename: "exam.txt", Content: []byte("1. alpha\r\n\fQ2 beta\t\tgamma")}
	out, err := PlainText{}.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.PageCount() != 2 || out.Pages[0] != "1. alpha" || out.Pages[1] != "Q2 beta gamma" {
		t.Fatalf("unexpected pages: %q", out.Pages)
	}

	_, err = PlainText{}.Extract(context.Background(), entity.Document{Content: []byte{0xff, 0xfe, 0x00}})
	requireExtractionReason(t, err, "unsupported_encoding")
}

func testExtractor(native, pdftotext TextExtractor) *Extractor {
	e := NewExtractor(Config{}, nil, quiet)
	e.native = native
	e.pdftotext = pdftotext
	e.lookPath = func(string) (string, error) { return "/usr/bin/pdftotext", nil }
	return e
}

type funcExtractor func(context.Context, entity.Document) (entity.ExtractedText, error)

func (f funcExtractor) Extract(ctx context.Context, d entity.Document) (entity.ExtractedText, error) {
	return f(ctx, d)
}

func TestExtractorDispatch(t *testing.T) {
	native := funcExtractor(func(context.Context, entity.Document) (entity.ExtractedText, error) {
		return entity.ExtractedText{Pages: []string{"from native"}, Method: MethodNative}, nil
	})
	e := testExtractor(native, nil)

	out, err := e.Extract(context.Background(), pdfDoc())
	if err != nil || out.Pages[0] != "from native" {
		t.Fatalf("pdf dispatch: %v %q", err, out.Pages)
	}

	out, err = e.Extract(context.Background(), entity.Document{Content: []byte("1. plain question text")})
	if err != nil || out.Method != MethodText {
		t.Fatalf("text dispatch: %v %q", err, out.Method)
	}

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	_, err = e.Extract(context.Background(), entity.Document{Content: png})
	requireExtractionReason(t, err, "unsupported")

	_, err = e.Extract(context.Background(), entity.Document{})
	requireExtractionReason(t, err, "empty_document")
}

func TestExtractorFallsBackToPdftotext(t *testing.T) {
	native := funcExtractor(func(context.Context, entity.Document) (entity.ExtractedText, error) {
		return entity.ExtractedText{}, &common.ExtractionError{Reason: "page_decode", Page: 1}
	})
	fallback := funcExtractor(func(context.Context, entity.Document) (entity.ExtractedText, error) {
		return entity.ExtractedText{Pages: []string{"from binary"}, Method: MethodPdftotext}, nil
	})
	out, err := testExtractor(native, fallback).Extract(context.Background(), pdfDoc())
	if err != nil || out.Method != MethodPdftotext {
		t.Fatalf("expected fallback, got %v %q", err, out.Method)
	}
}

func TestExtractorNativeOnlyDoesNotFallBack(t *testing.T) {
	native := funcExtractor(func(context.Context, entity.Document) (entity.ExtractedText, error) {
		return entity.ExtractedText{}, &common.ExtractionError{Reason: "page_decode", Page: 1}
	})
	e := testExtractor(native, nil)
	e.cfg.Method = constants.ExtractNative
	_, err := e.Extract(context.Background(), pdfDoc())
	requireExtractionReason(t, err, "page_decode")
}

func TestExtractorLimitsAndBlankDocuments(t *testing.T) {
	pages := func(p ...string) TextExtractor {
		return funcExtractor(func(context.Context, entity.Document) (entity.ExtractedText, error) {
			return entity.ExtractedText{Pages: p, Method: MethodNative}, nil
		})
	}
	e := testExtractor(pages("a", "b", "c"), nil)
	e.cfg.MaxPages = 2
	_, err := e.Extract(context.Background(), pdfDoc())
	requireExtractionReason(t, err, "too_many_pages")

	e = testExtractor(pages("", " "), nil)
	_, err = e.Extract(context.Background(), pdfDoc())
	requireExtractionReason(t, err, "no_text")
}

func TestDetectQuestions(t *testing.T) {
	text := entity.ExtractedText{Pages: []string{
		"Midterm 2\n1. A block slides down a ramp.\n2) Find the tension.\nQuestion 3 Compute the work done.",
		"Q4 What is the period?\n5. Derive v(t).\n  6. Sketch the field.\n45. stray footnote\n1.5 m is the length",
	}}
	got := DetectQuestions(text)
	if len(got) != 6 {
		t.Fatalf("expected 6 questions, got %v", got)
	}
	for i, q := range got {
		if string(q) != strconv.Itoa(i+1) {
			t.Fatalf("question %d: got %q", i+1, q)
		}
	}
	if DetectQuestions(entity.ExtractedText{Pages: []string{"no numbering here"}}) != nil {
		t.Fatal("expected nil when no questions are numbered")
	}
}

func TestDetectQuestionsSkipsNumberedChoices(t *testing.T) {
	text := entity.ExtractedText{Pages: []string{
		"1. Which quantity is a vector?\n1) speed\n2) mass\n3) displacement\n4) time\n5) energy",
		"2. Define work.\n3. Which unit measures power?\n  1) joule\n  2) watt\n",
	}}
	got := DetectQuestions(text)
	if len(got) != 3 || got[0] != "1" || got[1] != "2" || got[2] != "3" {
		t.Fatalf("answer choices counted as questions: %v", got)
	}

	// an exam numbered only with "N)" still counts every question
	paren := entity.ExtractedText{Pages: []string{"1) first\n2) second\n3) third"}}
	if got := DetectQuestions(paren); len(got) != 3 {
		t.Fatalf("expected 3 questions, got %v", got)
	}
}

func TestNormalizeKeepsContent(t *testing.T) {
	in := "line one  \r\n\r\n\r\n\r\nline\t\ttwo   end  "
	if got := Normalize(in); got != "line one\n\nline two end" {
		t.Fatalf("unexpected normalize result %q", got)
	}
}

// pageRunner fakes pdftoppm by writing one PNG per page and tesseract by
// echoing the image name back.
type pageRunner struct {
	pages   int
	failOn  string
	invoked []string
}

func (r *pageRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.invoked = append(r.invoked, name)
	switch name {
	case "pdftoppm":
		prefix := args[len(args)-1]
		for i := 1; i <= r.pages; i++ {
			if err := os.WriteFile(fmt.Sprintf("%s-%02d.png", prefix, i), []byte("png"), 0o600); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	case "tesseract":
		base := filepath.Base(args[0])
		if base == r.failOn {
			return nil, []byte("read error"), errors.New("exit status 1")
		}
		return []byte(fmt.Sprintf("%d. text of %s\n||||", r.pages, base)), nil, nil
	}
	return nil, nil, fmt.Errorf("unexpected command %q", name)
}

func TestPdfOCRReadsPagesInOrder(t *testing.T) {
	r := &pageRunner{pages: 3}
	out, err := NewPdfOCR(OCRConfig{}, r, quiet).Extract(context.Background(), pdfDoc())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"3. text of page-01.png", "3. text of page-02.png", "3. text of page-03.png"}
	if len(out.Pages) != len(want) {
		t.Fatalf("expected %d pages, got %q", len(want), out.Pages)
	}
	for i := range want {
		if out.Pages[i] != want[i] {
			t.Errorf("page %d: got %q want %q", i+1, out.Pages[i], want[i])
		}
	}
	if out.Method != MethodOCR {
		t.Fatalf("unexpected method %q", out.Method)
	}
}

func TestPdfOCRPageFailureIsHard(t *testing.T) {
	r := &pageRunner{pages: 2, failOn: "page-02.png"}
	_, err := NewPdfOCR(OCRConfig{}, r, quiet).Extract(context.Background(), pdfDoc())
	ee := requireExtractionReason(t, err, "page_decode")
	if ee.Page != 2 {
		t.Fatalf("expected page 2, got %d", ee.Page)
	}

	_, err = NewPdfOCR(OCRConfig{}, &pageRunner{}, quiet).Extract(context.Background(), pdfDoc())
	requireExtractionReason(t, err, "zero_pages")
}

func TestExtractorFallsBackToOCRForScans(t *testing.T) {
	blank := funcExtractor(func(context.Context, entity.Document) (entity.ExtractedText, error) {
		return entity.ExtractedText{Pages: []string{"", ""}, Method: MethodNative}, nil
	})
	scanned := funcExtractor(func(context.Context, entity.Document) (entity.ExtractedText, error) {
		return entity.ExtractedText{Pages: []string{"1. scanned"}, Method: MethodOCR}, nil
	})

	e := testExtractor(blank, nil)
	e.ocr = scanned
	e.cfg.OCRFallback = true
	out, err := e.Extract(context.Background(), pdfDoc())
	if err != nil || out.Method != MethodOCR {
		t.Fatalf("expected ocr fallback, got %v %q", err, out.Method)
	}

	e.lookPath = func(bin string) (string, error) {
		if bin == "tesseract" {
			return "", errors.New("not found")
		}
		return "/usr/bin/" + bin, nil
	}
	_, err = e.Extract(context.Background(), pdfDoc())
	requireExtractionReason(t, err, "no_text")
}
