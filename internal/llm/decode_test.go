package llm

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/joseph-ayodele/examlens/internal/common"
	"github.com/joseph-ayodele/examlens/internal/entity"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type cat struct {
	name string
	body string
}

func body(questions string) string {
	return fmt.Sprintf(`{"Questions Covered": %s, "Tips and Tricks": ["Draw a free-body diagram first"], `+
		`"Useful Formulas": ["F = m a"], "Category Summary": "A plain explanation of the idea."}`, questions)
}

func doc(cats ...cat) string {
	parts := make([]string, len(cats))
	for i, c := range cats {
		parts[i] = fmt.Sprintf("%q: %s", c.name, c.body)
	}
	return `{"Categories": {` + strings.Join(parts, ", ") + `}}`
}

func fiveCats() []cat {
	return []cat{
		{"Kinematics", body(`[1, 2]`)},
		{"Newton's Laws", body(`[3]`)},
		{"Work and Energy", body(`[4, "3"]`)},
		{"Momentum", body(`[5]`)},
		{"Rotational Motion", body(`["6b"]`)},
	}
}

func questions(n int) []entity.QuestionID {
	out := make([]entity.QuestionID, n)
	for i := range out {
		out[i] = entity.QuestionID(fmt.Sprint(i + 1))
	}
	return out
}

func newValidator(t *testing.T) *ResultValidator {
	t.Helper()
	v, err := NewResultValidator(quiet)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	return v
}

func requireViolation(t *testing.T, err error, invariant string) *common.SchemaViolation {
	t.Helper()
	var sv *common.SchemaViolation
	if !errors.As(err, &sv) {
		t.Fatalf("expected SchemaViolation %q, got %v", invariant, err)
	}
	if sv.Invariant != invariant {
		t.Fatalf("expected invariant %q, got %q (%s)", invariant, sv.Invariant, sv.Detail)
	}
	return sv
}

func TestValidateAcceptsWellFormedResult(t *testing.T) {
	res, err := newValidator(t).Validate(doc(fiveCats()...), questions(6))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Categories) != 5 {
		t.Fatalf("expected 5 categories, got %d", len(res.Categories))
	}
	names := map[string]bool{}
	for i, c := range res.Categories {
		if c.Name != fiveCats()[i].name {
			t.Errorf("category %d: got %q, order not preserved", i, c.Name)
		}
		if names[c.Name] {
			t.Errorf("duplicate name %q", c.Name)
		}
		names[c.Name] = true
		if c.QuestionsCovered == nil || c.Tips == nil || c.Formulas == nil || c.Summary == "" {
			t.Errorf("category %q has an unset field", c.Name)
		}
	}
}

func TestValidateCategoryCount(t *testing.T) {
	v := newValidator(t)
	_, err := v.Validate(doc(fiveCats()[:4]...), nil)
	requireViolation(t, err, common.InvariantCategoryCount)

	six := append(fiveCats(), cat{"Oscillations", body(`[7]`)})
	_, err = v.Validate(doc(six...), nil)
	requireViolation(t, err, common.InvariantCategoryCount)
}

func TestValidateDuplicateNames(t *testing.T) {
	v := newValidator(t)
	cats := fiveCats()
	cats[4] = cat{"Kinematics", body(`[6]`)}
	_, err := v.Validate(doc(cats...), nil)
	sv := requireViolation(t, err, common.InvariantDuplicate)
	if sv.Category != "Kinematics" {
		t.Fatalf("expected the duplicate to be named, got %q", sv.Category)
	}

	cats[4] = cat{"  kinematics ", body(`[6]`)}
	_, err = v.Validate(doc(cats...), nil)
	requireViolation(t, err, common.InvariantDuplicate)
}

func TestValidateMissingField(t *testing.T) {
	v := newValidator(t)
	cats := fiveCats()
	cats[2] = cat{"Work and Energy", `{"Questions Covered": [4], "Tips and Tricks": ["a"], "Category Summary": "s"}`}
	_, err := v.Validate(doc(cats...), nil)
	sv := requireViolation(t, err, common.InvariantMissingField)
	if sv.Category != "Work and Energy" || !strings.Contains(sv.Detail, "Useful Formulas") {
		t.Fatalf("violation should name category and field: %+v", sv)
	}

	cats[2] = cat{"Work and Energy", `{"Questions Covered": [4], "Tips and Tricks": ["a"], "Useful Formulas": [], "Category Summary": null}`}
	_, err = v.Validate(doc(cats...), nil)
	requireViolation(t, err, common.InvariantMissingField)
}

func TestValidateEmptyAndTypedFields(t *testing.T) {
	v := newValidator(t)
	cats := fiveCats()
	cats[0] = cat{"Kinematics", `{"Questions Covered": [1], "Tips and Tricks": [], "Useful Formulas": [], "Category Summary": "s"}`}
	_, err := v.Validate(doc(cats...), nil)
	requireViolation(t, err, common.InvariantEmptyField)

	cats[0] = cat{"Kinematics", `{"Questions Covered": "1, 2", "Tips and Tricks": ["a"], "Useful Formulas": [], "Category Summary": "s"}`}
	_, err = v.Validate(doc(cats...), nil)
	requireViolation(t, err, common.InvariantFieldType)

	cats[0] = cat{"Kinematics", `{"Questions Covered": [1], "Tips and Tricks": ["a"], "Useful Formulas": [], "Category Summary": "s"}`}
	if _, err := v.Validate(doc(cats...), nil); err != nil {
		t.Fatalf("empty formula list should be accepted: %v", err)
	}
}

func TestValidateSummaryLength(t *testing.T) {
	cats := fiveCats()
	long := strings.Repeat("x", 1501)
	cats[1] = cat{"Newton's Laws", fmt.Sprintf(`{"Questions Covered": [3], "Tips and Tricks": ["a"], "Useful Formulas": [], "Category Summary": %q}`, long)}
	_, err := newValidator(t).Validate(doc(cats...), nil)
	requireViolation(t, err, common.InvariantSummaryLength)
}

func TestValidateGenericName(t *testing.T) {
	cats := fiveCats()
	cats[3] = cat{"Multiple Choice Questions", body(`[5]`)}
	_, err := newValidator(t).Validate(doc(cats...), nil)
	sv := requireViolation(t, err, common.InvariantGenericName)
	if sv.Category != "Multiple Choice Questions" {
		t.Fatalf("unexpected category %q", sv.Category)
	}
}

func TestValidateQuestionCoverage(t *testing.T) {
	v := newValidator(t)
	_, err := v.Validate(doc(fiveCats()...), questions(7))
	sv := requireViolation(t, err, common.InvariantQuestionCoverage)
	if !strings.Contains(sv.Detail, "7") {
		t.Fatalf("missing question should be listed: %s", sv.Detail)
	}

	if _, err := v.Validate(doc(fiveCats()...), nil); err != nil {
		t.Fatalf("coverage should be skipped without detected questions: %v", err)
	}
}

func TestValidateRepairsLeadingProse(t *testing.T) {
	raw := "Here is the analysis you asked for.\n" + doc(fiveCats()...)
	res, err := newValidator(t).Validate(raw, questions(6))
	if err != nil {
		t.Fatalf("expected repair to succeed: %v", err)
	}
	if len(res.Categories) != 5 {
		t.Fatalf("expected 5 categories, got %d", len(res.Categories))
	}
}

func TestValidateRepairIgnoresBracesInProse(t *testing.T) {
	raw := "Here is the {structured} result:\n" + doc(fiveCats()...) + "\nUse {these} wisely."
	if _, err := newValidator(t).Validate(raw, questions(6)); err != nil {
		t.Fatalf("braces in prose should not defeat the repair: %v", err)
	}
}

func TestValidateRepairsFencesAndTrailingText(t *testing.T) {
	v := newValidator(t)
	if _, err := v.Validate("```json\n"+doc(fiveCats()...)+"\n```", nil); err != nil {
		t.Fatalf("fenced output: %v", err)
	}
	if _, err := v.Validate(doc(fiveCats()...)+"\nLet me know if you need more.", nil); err != nil {
		t.Fatalf("trailing commentary: %v", err)
	}
}

func TestValidateSingleRepairOnly(t *testing.T) {
	v := newValidator(t)
	_, err := v.Validate(`Sure. {"Categories": {"Kinematics": [}} done`, nil)
	sv := requireViolation(t, err, common.InvariantParse)
	if !strings.Contains(sv.Detail, "after repair") {
		t.Fatalf("expected failure after the single repair, got %q", sv.Detail)
	}

	_, err = v.Validate("I cannot analyze this exam.", nil)
	requireViolation(t, err, common.InvariantParse)
}

func TestValidateRoot(t *testing.T) {
	v := newValidator(t)
	_, err := v.Validate(`{"Topics": {}}`, nil)
	requireViolation(t, err, common.InvariantRoot)

	_, err = v.Validate(`{"Categories": []}`, nil)
	requireViolation(t, err, common.InvariantRoot)
}

func TestRepairOnceNoop(t *testing.T) {
	if _, ok := RepairOnce([]byte(`  {"a": 1}  `)); ok {
		t.Fatal("nothing to strip, repair should report false")
	}
	out, ok := RepairOnce([]byte(`note {"a": 1} end`))
	if !ok || string(out) != `{"a": 1}` {
		t.Fatalf("unexpected repair %q %v", out, ok)
	}
	out, ok = RepairOnce([]byte(`use {} or {x} here: {"a": {"b": 2}} ok`))
	if !ok || string(out) != `{"a": {"b": 2}}` {
		t.Fatalf("unexpected repair %q %v", out, ok)
	}
}

func TestPreviewKeepsRunesWhole(t *testing.T) {
	got := preview("héllo", 2)
	if got != "h..." || !utf8.ValidString(got) {
		t.Fatalf("unexpected preview %q", got)
	}
	if got := preview("short", 10); got != "short" {
		t.Fatalf("unexpected preview %q", got)
	}
}
