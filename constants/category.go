package constants

import (
	"strings"
	"unicode"
)

// CategoryCount is the exact number of categories an analysis must contain.
const CategoryCount = 5

// SummaryMaxRunes bounds the length of a category summary.
const SummaryMaxRunes = 1500

// Wire field names of a category record.
const (
	FieldQuestionsCovered = "Questions Covered"
	FieldTips             = "Tips and Tricks"
	FieldFormulas         = "Useful Formulas"
	FieldSummary          = "Category Summary"
	FieldCategories       = "Categories"
)

// RequiredCategoryFields lists the fields every category must carry, in wire order.
var RequiredCategoryFields = []string{
	FieldQuestionsCovered,
	FieldTips,
	FieldFormulas,
	FieldSummary,
}

// genericCategoryNames are labels that describe a question's format or are
// catch-alls rather than a conceptual topic.
var genericCategoryNames = []string{
	"multiple choice",
	"short answer",
	"long answer",
	"essay",
	"true false",
	"true or false",
	"fill in the blank",
	"fill in the blanks",
	"matching",
	"free response",
	"open ended",
	"word problems",
	"calculation",
	"calculations",
	"coding",
	"programming",
	"diagram",
	"diagrams",
	"general",
	"miscellaneous",
	"misc",
	"other",
	"others",
	"various",
	"mixed",
	"uncategorized",
}

var genericSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(genericCategoryNames))
	for _, n := range genericCategoryNames {
		m[n] = struct{}{}
	}
	return m
}()

// GenericCategoryNames returns a copy of the disallowed label list.
func GenericCategoryNames() []string {
	out := make([]string, len(genericCategoryNames))
	copy(out, genericCategoryNames)
	return out
}

// CanonicalCategoryName lowercases, folds punctuation to spaces and collapses
// whitespace. Two names with the same canonical form are the same category.
func CanonicalCategoryName(name string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// IsGenericCategoryName reports whether name is a question-format or
// catch-all label, optionally suffixed with "question(s)" or "problem(s)".
func IsGenericCategoryName(name string) bool {
	n := CanonicalCategoryName(name)
	if n == "" {
		return true
	}
	if _, ok := genericSet[n]; ok {
		return true
	}
	for _, suffix := range []string{" questions", " question", " problems", " problem"} {
		if base, ok := strings.CutSuffix(n, suffix); ok {
			if _, ok := genericSet[base]; ok {
				return true
			}
		}
	}
	return false
}
