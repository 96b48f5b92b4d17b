package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/examlens/constants"
	"github.com/joseph-ayodele/examlens/internal/common"
	"github.com/joseph-ayodele/examlens/internal/entity"
)

// ResultValidator turns raw backend text into a validated AnalysisResult.
// Raw text is untrusted: it is parsed strictly, repaired at most once and
// never coerced. Missing fields are violations, not defaults.
type ResultValidator struct {
	schema *jsonschema.Schema
	logger *slog.Logger
}

func NewResultValidator(logger *slog.Logger) (*ResultValidator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := CompileSchema(BuildAnalysisJSONSchema())
	if err != nil {
		return nil, err
	}
	return &ResultValidator{schema: schema, logger: logger}, nil
}

type rawCategory struct {
	name  string
	value json.RawMessage
}

type rawDocument struct {
	generic    any
	categories []rawCategory
}

// errSyntax marks failures that a repair pass may fix.
var errSyntax = errors.New("malformed json")

// Validate parses raw and checks, in order: category count, distinct names,
// required fields, generic names, schema, question coverage. expected may be
// nil, in which case coverage is not checked.
func (v *ResultValidator) Validate(raw string, expected []entity.QuestionID) (entity.AnalysisResult, error) {
	doc, err := v.parse([]byte(raw))
	if err != nil {
		v.logger.Warn("llm.validate.failed", "error", err, "raw_len", len(raw))
		v.logger.Debug("llm.validate.raw_preview", "preview", preview(raw, 200))
		return entity.AnalysisResult{}, err
	}

	res, err := v.check(doc, expected)
	if err != nil {
		v.logger.Warn("llm.validate.failed", "error", err, "raw_len", len(raw))
		return entity.AnalysisResult{}, err
	}
	v.logger.Info("llm.validate.ok", "categories", len(res.Categories))
	return res, nil
}

func (v *ResultValidator) parse(raw []byte) (*rawDocument, error) {
	doc, err := decodeDocument(raw)
	if err == nil || !errors.Is(err, errSyntax) {
		return doc, err
	}
	repaired, ok := RepairOnce(raw)
	if !ok {
		return nil, &common.SchemaViolation{Invariant: common.InvariantParse, Detail: err.Error()}
	}
	v.logger.Info("llm.validate.repair_applied",
		"raw_len", len(raw),
		"repaired_len", len(repaired),
	)
	doc, rerr := decodeDocument(repaired)
	if rerr != nil {
		if errors.Is(rerr, errSyntax) {
			return nil, &common.SchemaViolation{
				Invariant: common.InvariantParse,
				Detail:    "still malformed after repair: " + rerr.Error(),
			}
		}
		return nil, rerr
	}
	return doc, nil
}

// decodeDocument reads exactly one JSON value and walks "Categories" in
// order so duplicate keys are seen rather than silently merged.
func decodeDocument(b []byte) (*rawDocument, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("%w: %v", errSyntax, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected data after the top-level value", errSyntax)
	}

	if _, ok := generic.(map[string]any); !ok {
		return nil, &common.SchemaViolation{Invariant: common.InvariantRoot, Detail: "top-level value is not an object"}
	}

	dec = json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", errSyntax, err)
	}
	doc := &rawDocument{generic: generic}
	found := false
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errSyntax, err)
		}
		key, _ := tok.(string)
		if key != constants.FieldCategories {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("%w: %v", errSyntax, err)
			}
			continue
		}
		if found {
			return nil, &common.SchemaViolation{Invariant: common.InvariantRoot, Detail: `"Categories" appears more than once`}
		}
		found = true
		cats, err := decodeCategories(dec)
		if err != nil {
			return nil, err
		}
		doc.categories = cats
	}
	if !found {
		return nil, &common.SchemaViolation{Invariant: common.InvariantRoot, Detail: `missing "Categories" object`}
	}
	return doc, nil
}

func decodeCategories(dec *json.Decoder) ([]rawCategory, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errSyntax, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, &common.SchemaViolation{Invariant: common.InvariantRoot, Detail: `"Categories" is not an object`}
	}
	var out []rawCategory
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errSyntax, err)
		}
		name, _ := tok.(string)
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, fmt.Errorf("%w: %v", errSyntax, err)
		}
		out = append(out, rawCategory{name: name, value: val})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", errSyntax, err)
	}
	return out, nil
}

func (v *ResultValidator) check(doc *rawDocument, expected []entity.QuestionID) (entity.AnalysisResult, error) {
	if n := len(doc.categories); n != constants.CategoryCount {
		return entity.AnalysisResult{}, &common.SchemaViolation{
			Invariant: common.InvariantCategoryCount,
			Detail:    fmt.Sprintf("expected exactly %d categories, got %d", constants.CategoryCount, n),
		}
	}

	seen := make(map[string]string, len(doc.categories))
	for _, c := range doc.categories {
		key := constants.CanonicalCategoryName(c.name)
		if prev, dup := seen[key]; dup {
			return entity.AnalysisResult{}, &common.SchemaViolation{
				Invariant: common.InvariantDuplicate,
				Category:  c.name,
				Detail:    fmt.Sprintf("same category as %q", prev),
			}
		}
		seen[key] = c.name
	}

	res := entity.AnalysisResult{Categories: make([]entity.CategoryRecord, 0, len(doc.categories))}
	for _, c := range doc.categories {
		rec, err := decodeCategory(c)
		if err != nil {
			return entity.AnalysisResult{}, err
		}
		res.Categories = append(res.Categories, rec)
	}

	for _, c := range res.Categories {
		if constants.IsGenericCategoryName(c.Name) {
			return entity.AnalysisResult{}, &common.SchemaViolation{
				Invariant: common.InvariantGenericName,
				Category:  c.Name,
				Detail:    "category names must be conceptual topics, not question formats or catch-alls",
			}
		}
	}

	if err := v.schema.Validate(doc.generic); err != nil {
		return entity.AnalysisResult{}, &common.SchemaViolation{Invariant: common.InvariantSchema, Detail: err.Error()}
	}

	if missing := uncovered(res, expected); len(missing) > 0 {
		return entity.AnalysisResult{}, &common.SchemaViolation{
			Invariant: common.InvariantQuestionCoverage,
			Detail:    "questions not covered by any category: " + strings.Join(missing, ", "),
		}
	}
	return res, nil
}

func decodeCategory(c rawCategory) (entity.CategoryRecord, error) {
	violation := func(inv, detail string) error {
		return &common.SchemaViolation{Invariant: inv, Category: c.name, Detail: detail}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(c.value, &fields); err != nil || fields == nil {
		return entity.CategoryRecord{}, violation(common.InvariantFieldType, "category value is not an object")
	}
	for _, f := range constants.RequiredCategoryFields {
		raw, ok := fields[f]
		if !ok || string(bytes.TrimSpace(raw)) == "null" {
			return entity.CategoryRecord{}, violation(common.InvariantMissingField, fmt.Sprintf("%q is missing", f))
		}
	}

	rec := entity.CategoryRecord{Name: c.name}
	if err := json.Unmarshal(fields[constants.FieldQuestionsCovered], &rec.QuestionsCovered); err != nil {
		return entity.CategoryRecord{}, violation(common.InvariantFieldType,
			fmt.Sprintf("%q must be a list of question numbers: %v", constants.FieldQuestionsCovered, err))
	}
	if len(rec.QuestionsCovered) == 0 {
		return entity.CategoryRecord{}, violation(common.InvariantEmptyField, fmt.Sprintf("%q is empty", constants.FieldQuestionsCovered))
	}

	var err error
	if rec.Tips, err = stringList(fields[constants.FieldTips]); err != nil {
		return entity.CategoryRecord{}, violation(common.InvariantFieldType, fmt.Sprintf("%q: %v", constants.FieldTips, err))
	}
	if len(rec.Tips) == 0 || hasBlank(rec.Tips) {
		return entity.CategoryRecord{}, violation(common.InvariantEmptyField, fmt.Sprintf("%q is empty or has blank entries", constants.FieldTips))
	}

	if rec.Formulas, err = stringList(fields[constants.FieldFormulas]); err != nil {
		return entity.CategoryRecord{}, violation(common.InvariantFieldType, fmt.Sprintf("%q: %v", constants.FieldFormulas, err))
	}
	if hasBlank(rec.Formulas) {
		return entity.CategoryRecord{}, violation(common.InvariantEmptyField, fmt.Sprintf("%q has blank entries", constants.FieldFormulas))
	}

	if err := json.Unmarshal(fields[constants.FieldSummary], &rec.Summary); err != nil {
		return entity.CategoryRecord{}, violation(common.InvariantFieldType, fmt.Sprintf("%q must be a string", constants.FieldSummary))
	}
	if strings.TrimSpace(rec.Summary) == "" {
		return entity.CategoryRecord{}, violation(common.InvariantEmptyField, fmt.Sprintf("%q is empty", constants.FieldSummary))
	}
	if n := utf8.RuneCountInString(rec.Summary); n > constants.SummaryMaxRunes {
		return entity.CategoryRecord{}, violation(common.InvariantSummaryLength,
			fmt.Sprintf("%q has %d characters, limit is %d", constants.FieldSummary, n, constants.SummaryMaxRunes))
	}
	return rec, nil
}

func stringList(raw json.RawMessage) ([]string, error) {
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.New("must be a list of strings")
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func hasBlank(list []string) bool {
	for _, s := range list {
		if strings.TrimSpace(s) == "" {
			return true
		}
	}
	return false
}

func uncovered(res entity.AnalysisResult, expected []entity.QuestionID) []string {
	if len(expected) == 0 {
		return nil
	}
	covered := res.CoveredKeys()
	var missing []string
	for _, q := range expected {
		if _, ok := covered[q.Key()]; !ok {
			missing = append(missing, string(q))
		}
	}
	return missing
}

// preview cuts s to at most n bytes without splitting a rune.
func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
