package llm

import (
	"encoding/json"

	"github.com/joseph-ayodele/examlens/constants"
)

// BuildAnalysisJSONSchema returns the JSON Schema of an analysis document.
// Category names are the object keys under "Categories".
func BuildAnalysisJSONSchema() map[string]any {
	nonEmptyString := map[string]any{"type": "string", "minLength": 1, "pattern": `\S`}

	category := map[string]any{
		"type": "object",
		"properties": map[string]any{
			constants.FieldQuestionsCovered: map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type":      []string{"integer", "string"},
					"minLength": 1,
					"minimum":   0,
				},
			},
			constants.FieldTips: map[string]any{
				"type":     "array",
				"minItems": 1,
				"items":    nonEmptyString,
			},
			constants.FieldFormulas: map[string]any{
				"type":  "array",
				"items": nonEmptyString,
			},
			constants.FieldSummary: map[string]any{
				"type":      "string",
				"minLength": 1,
				"maxLength": constants.SummaryMaxRunes,
				"pattern":   `\S`,
			},
		},
		"required": constants.RequiredCategoryFields,
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			constants.FieldCategories: map[string]any{
				"type":                 "object",
				"minProperties":        constants.CategoryCount,
				"maxProperties":        constants.CategoryCount,
				"propertyNames":        nonEmptyString,
				"additionalProperties": category,
			},
		},
		"required": []string{constants.FieldCategories},
	}
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
