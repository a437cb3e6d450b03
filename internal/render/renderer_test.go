package render

import (
	"context"
	"strings"
	"testing"
)

func TestRenderIdentifiedGreeting(t *testing.T) {
	r, err := NewTemplateRenderer(nil)
	if err != nil {
		t.Fatalf("NewTemplateRenderer: %v", err)
	}

	out, err := r.Render(context.Background(), "identified_greeting", map[string]any{"name": "Adela Pedrozo"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "Adela Pedrozo") {
		t.Errorf("expected greeting to include name, got %q", out)
	}

	out, err = r.Render(context.Background(), "identified_greeting", nil)
	if err != nil {
		t.Fatalf("Render without data: %v", err)
	}
	if strings.Contains(out, ",") {
		t.Errorf("expected no name clause, got %q", out)
	}
}

func TestRenderAccountSelectionNumbersOptions(t *testing.T) {
	r, err := NewTemplateRenderer(nil)
	if err != nil {
		t.Fatalf("NewTemplateRenderer: %v", err)
	}

	out, err := r.Render(context.Background(), "account_selection", map[string]any{
		"options":    []string{"Adela Pedrozo", "Marcos Pedrozo"},
		"new_option": 3,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{"1. Adela Pedrozo", "2. Marcos Pedrozo", "3. Otra persona"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got %q", want, out)
		}
	}
	if strings.Contains(out, "22598630") {
		t.Errorf("selection list must not leak documents: %q", out)
	}
}

func TestRenderOverrides(t *testing.T) {
	r, err := NewTemplateRenderer(map[string]string{"goodbye": "Chau!"})
	if err != nil {
		t.Fatalf("NewTemplateRenderer: %v", err)
	}
	out, err := r.Render(context.Background(), "goodbye", nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "Chau!" {
		t.Errorf("override not applied, got %q", out)
	}
}

func TestRenderUnknownIntent(t *testing.T) {
	r, err := NewTemplateRenderer(nil)
	if err != nil {
		t.Fatalf("NewTemplateRenderer: %v", err)
	}
	if _, err := r.Render(context.Background(), "no_such_intent", nil); err == nil {
		t.Error("expected error for unknown intent")
	}
}
