package llm

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/examlens/constants"
	"github.com/joseph-ayodele/examlens/internal/entity"
)

// Composer builds the instruction payload for one document. It is pure:
// the same text always yields the same request.
type Composer struct {
	schemaJSON string
}

func NewComposer() *Composer {
	return &Composer{schemaJSON: mustJSON(BuildAnalysisJSONSchema())}
}

// Compose returns system instruction, exam text and task instruction, in that order.
// questions are the numbers detected in the text; they may be empty.
func (c *Composer) Compose(text entity.ExtractedText, questions []entity.QuestionID) Request {
	return Request{Messages: []Message{
		{Role: RoleSystem, Content: BuildSystemPrompt(c.schemaJSON)},
		{Role: RoleUser, Content: "EXAM TEXT:\n" + text.Text()},
		{Role: RoleUser, Content: BuildTaskPrompt(questions)},
	}}
}

// BuildSystemPrompt declares the role and restricts output to a single JSON document.
func BuildSystemPrompt(schemaJSON string) string {
	parts := []string{
		"You are an expert educational content analyzer who turns past exams into study guides.",
		"Respond with structured data only: a single JSON object that matches the JSON Schema below.",
		"Do not add any prose, explanation, markdown or code fences before or after the JSON.",
		"Never output null. Every category must contain every field.",
		"JSON Schema:\n" + schemaJSON,
	}
	return strings.Join(parts, "\n")
}

// BuildTaskPrompt states the categorization rules.
func BuildTaskPrompt(questions []entity.QuestionID) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the exam text above and group its questions into exactly %d categories.\n", constants.CategoryCount)
	b.WriteString("Rules:\n")
	b.WriteString("- Category names must be conceptual topics of the subject matter (for example \"Conservation of Energy\" or \"Integration by Parts\").\n")
	b.WriteString("- Never name a category after a superficial attribute such as the answer format. Disallowed names include: ")
	b.WriteString(strings.Join(constants.GenericCategoryNames(), ", "))
	b.WriteString(".\n")
	b.WriteString("- Category names must be distinct.\n")
	fmt.Fprintf(&b, "- Under %q list the question numbers each category covers. Assign a question by how it is solved, not by how it is phrased. A question may appear in more than one category.\n", constants.FieldQuestionsCovered)
	b.WriteString("- Every question in the exam must appear in at least one category.\n")
	if len(questions) > 0 {
		ids := make([]string, len(questions))
		for i, q := range questions {
			ids[i] = string(q)
		}
		fmt.Fprintf(&b, "- The exam contains these questions: %s.\n", strings.Join(ids, ", "))
	}
	fmt.Fprintf(&b, "- Under %q give non-trivial, concrete solving tips for the topic.\n", constants.FieldTips)
	fmt.Fprintf(&b, "- Under %q give general formulas for the topic with symbols only, never values taken from a specific question. Use an empty list only if the topic has no formulas.\n", constants.FieldFormulas)
	fmt.Fprintf(&b, "- Under %q explain the concept in plain language for a student who has never seen it, in at most %d characters.\n", constants.FieldSummary, constants.SummaryMaxRunes)
	fmt.Fprintf(&b, "Output shape: {%q: {\"<category name>\": {%q: [1, 2], %q: [\"...\"], %q: [\"...\"], %q: \"...\"}}}\n",
		constants.FieldCategories, constants.FieldQuestionsCovered, constants.FieldTips, constants.FieldFormulas, constants.FieldSummary)
	return b.String()
}
