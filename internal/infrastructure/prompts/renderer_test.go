package prompts

import (
	"strings"
	"testing"

	"github.com/mkarpenko/grounded-chat/internal/core/domain"
	"github.com/mkarpenko/grounded-chat/internal/core/ports"
)

func TestRenderQueryRewrite(t *testing.T) {
	r := NewRenderer()

	got, err := r.Render("chat_query_rewrite", ports.PromptVars{
		UserQuery: "what about dental?",
		PastMessages: []domain.Message{
			{Role: domain.RoleUser, Content: "what are my health plans?"},
		},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if !strings.Contains(got.SystemContent, "Generate a search query") {
		t.Fatalf("system = %q", got.SystemContent)
	}
	if got.NewUserContent != "Generate search query for: what about dental?" {
		t.Fatalf("user = %q", got.NewUserContent)
	}
	if len(got.FewShotMessages) != 4 {
		t.Fatalf("few shots = %d, want 4", len(got.FewShotMessages))
	}
	if len(got.PastMessages) != 1 {
		t.Fatalf("past messages = %d, want 1", len(got.PastMessages))
	}
}

func TestRenderAnswerIncludesSources(t *testing.T) {
	r := NewRenderer()

	got, err := r.Render("chat_answer_question", ports.PromptVars{
		UserQuery: "what experience does jane have?",
		TextSources: []string{
			"resume_jane.pdf: Jane has five years of Go.",
			"resume_tom.pdf: Tom has two years of Python.",
		},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if !strings.Contains(got.NewUserContent, "Sources:") {
		t.Fatalf("user = %q", got.NewUserContent)
	}
	if !strings.Contains(got.NewUserContent, "resume_jane.pdf: Jane has five years of Go.") {
		t.Fatalf("user = %q", got.NewUserContent)
	}
	if !strings.HasPrefix(got.NewUserContent, "what experience does jane have?") {
		t.Fatalf("user = %q", got.NewUserContent)
	}
	if strings.Contains(got.SystemContent, "follow-up questions") {
		t.Fatalf("followup instructions rendered without the flag: %q", got.SystemContent)
	}
}

func TestRenderAnswerWithFollowups(t *testing.T) {
	r := NewRenderer()

	got, err := r.Render("chat_answer_question", ports.PromptVars{
		UserQuery:        "question",
		IncludeFollowups: true,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if !strings.Contains(got.SystemContent, "follow-up questions") {
		t.Fatalf("system = %q", got.SystemContent)
	}
	if !strings.Contains(got.SystemContent, "<<") {
		t.Fatalf("system = %q", got.SystemContent)
	}
}

func TestRenderPromptOverrideReplaces(t *testing.T) {
	r := NewRenderer()

	got, err := r.Render("chat_answer_question", ports.PromptVars{
		UserQuery:      "question",
		PromptTemplate: "Answer like a pirate.",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if got.SystemContent != "Answer like a pirate." {
		t.Fatalf("system = %q", got.SystemContent)
	}
}

func TestRenderPromptOverrideAppends(t *testing.T) {
	r := NewRenderer()

	got, err := r.Render("chat_answer_question", ports.PromptVars{
		UserQuery:      "question",
		PromptTemplate: ">>>Answer like a pirate.",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if !strings.Contains(got.SystemContent, "Answer ONLY with the facts") {
		t.Fatalf("append override lost the base prompt: %q", got.SystemContent)
	}
	if !strings.HasSuffix(got.SystemContent, "Answer like a pirate.") {
		t.Fatalf("system = %q", got.SystemContent)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	r := NewRenderer()

	if _, err := r.Render("no_such_prompt", ports.PromptVars{}); err == nil {
		t.Fatal("expected error for unknown template")
	}
}
