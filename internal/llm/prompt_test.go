package llm

import (
	"reflect"
	"strings"
	"testing"

	"github.com/joseph-ayodele/examlens/internal/entity"
)

func TestComposeIsDeterministic(t *testing.T) {
	text := entity.ExtractedText{Pages: []string{"1. What is inertia?", "", "2. Define work."}}
	qs := []entity.QuestionID{"1", "2"}

	a := NewComposer().Compose(text, qs)
	b := NewComposer().Compose(text, qs)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("same input produced different requests")
	}
}

func TestComposeLayout(t *testing.T) {
	text := entity.ExtractedText{Pages: []string{"1. What is inertia?", "2. Define work."}}
	req := NewComposer().Compose(text, []entity.QuestionID{"1", "2"})

	if len(req.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(req.Messages))
	}
	if req.Messages[0].Role != RoleSystem || req.Messages[1].Role != RoleUser || req.Messages[2].Role != RoleUser {
		t.Fatalf("unexpected roles: %+v", req.Messages)
	}
	sys := req.Messages[0].Content
	if !strings.Contains(sys, "structured data only") || !strings.Contains(sys, `"Categories"`) {
		t.Fatal("system message must restrict the format and embed the schema")
	}
	if !strings.Contains(req.Messages[1].Content, text.Text()) {
		t.Fatal("exam text must be included verbatim")
	}
	task := req.Messages[2].Content
	for _, want := range []string{"exactly 5 categories", "multiple choice", "how it is solved", "questions: 1, 2", "Category Summary"} {
		if !strings.Contains(task, want) {
			t.Errorf("task instruction missing %q", want)
		}
	}
	if req.System() != sys || len(req.User()) != 2 {
		t.Fatal("System/User accessors disagree with messages")
	}
}
