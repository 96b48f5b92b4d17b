package entity

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/joseph-ayodele/examlens/constants"
)

func sample() AnalysisResult {
	return AnalysisResult{Categories: []CategoryRecord{
		{Name: "Kinematics", QuestionsCovered: []QuestionID{"1", "3b"}, Tips: []string{"draw axes"}, Formulas: []string{"v = u + at"}, Summary: "motion"},
		{Name: "Energy", QuestionsCovered: []QuestionID{"2"}, Tips: []string{"conserve"}, Summary: "work"},
	}}
}

func TestResultMarshalKeepsOrderAndLayout(t *testing.T) {
	b, err := json.Marshal(sample())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	if strings.Index(s, `"Kinematics"`) > strings.Index(s, `"Energy"`) {
		t.Fatalf("category order lost: %s", s)
	}
	for _, want := range []string{`"Questions Covered":[1,"3b"]`, `"Useful Formulas":[]`, `"Category Summary":"work"`} {
		if !strings.Contains(s, want) {
			t.Errorf("missing %s in %s", want, s)
		}
	}

	var back AnalysisResult
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back.Categories) != 2 || back.Categories[0].Name != "Kinematics" || back.Categories[1].Name != "Energy" {
		t.Fatalf("unexpected categories %+v", back.Categories)
	}
}

func TestQuestionIDForms(t *testing.T) {
	var ids []QuestionID
	if err := json.Unmarshal([]byte(`[1, "2", " 3b ", "Question 04"]`), &ids); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	wantKeys := []string{"1", "2", "3b", "4"}
	wantBase := []string{"1", "2", "3", "4"}
	for i, id := range ids {
		if id.Key() != wantKeys[i] || id.Base() != wantBase[i] {
			t.Errorf("%q: key %q base %q", id, id.Key(), id.Base())
		}
	}
	for _, bad := range []string{`[null]`, `[""]`, `[true]`} {
		if err := json.Unmarshal([]byte(bad), &ids); err == nil {
			t.Errorf("expected error for %s", bad)
		}
	}
}

func TestBreakdownAndCoverage(t *testing.T) {
	r := sample()
	bd := r.Breakdown()
	if len(bd) != 2 || bd[0] != (Breakdown{ID: "Kinematics", Value: 2}) || bd[1] != (Breakdown{ID: "Energy", Value: 1}) {
		t.Fatalf("unexpected breakdown %+v", bd)
	}
	keys := r.CoveredKeys()
	for _, k := range []string{"1", "2", "3", "3b"} {
		if _, ok := keys[k]; !ok {
			t.Errorf("key %s not covered", k)
		}
	}
}

func TestOutcomeDocuments(t *testing.T) {
	ok := Success("run-1", sample())
	b, err := ok.Document()
	if err != nil {
		t.Fatalf("document: %v", err)
	}
	if strings.Contains(string(b), "run-1") || !strings.HasPrefix(string(b), `{"Categories":`) {
		t.Fatalf("unexpected result document %s", b)
	}
	parsed, err := ParseOutcome(b)
	if err != nil || parsed.IsError() || len(parsed.Result.Categories) != 2 {
		t.Fatalf("parse result: %+v %v", parsed, err)
	}

	fail := Failure("run-2", constants.StageInference, "backend unreachable")
	b, err = fail.Document()
	if err != nil {
		t.Fatalf("document: %v", err)
	}
	if string(b) != `{"error":"backend unreachable","stage":"inference"}` {
		t.Fatalf("unexpected error document %s", b)
	}
	parsed, err = ParseOutcome(b)
	if err != nil || !parsed.IsError() || parsed.Error.Stage != constants.StageInference || parsed.Kind() != "error" {
		t.Fatalf("parse error: %+v %v", parsed, err)
	}

	legacy, err := ParseOutcome([]byte(`{"error":"boom"}`))
	if err != nil || legacy.Error.Stage != constants.StageTransport {
		t.Fatalf("missing stage should default to transport: %+v %v", legacy, err)
	}
}

func TestOutcomeValidate(t *testing.T) {
	r := sample()
	both := Outcome{Result: &r, Error: &ErrorRecord{Stage: constants.StageValidation, Message: "x"}}
	if both.Validate() == nil {
		t.Fatal("result and error together must be rejected")
	}
	if (Outcome{}).Validate() == nil {
		t.Fatal("empty outcome must be rejected")
	}
	if _, err := json.Marshal(Outcome{Error: &ErrorRecord{Stage: "bogus", Message: "x"}}); err == nil {
		t.Fatal("unknown stage must be rejected")
	}
}
