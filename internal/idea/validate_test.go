package idea

import (
	"strings"
	"testing"
	"time"
)

func validAnalysis() Analysis {
	return Analysis{
		Title:          "Trail Logger",
		Description:    "Track hiking trails offline.",
		Category:       CategoryLeisure,
		Importance:     3,
		TargetAudience: "Hikers",
		Platform:       PlatformMobile,
		Tags:           []string{"hiking", "offline"},
		Blueprint:      "## SYSTEM ARCHITECTURE\n",
	}
}

func TestValidateAnalysis(t *testing.T) {
	t.Parallel()

	if err := ValidateAnalysis(validAnalysis()); err != nil {
		t.Fatalf("valid analysis rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Analysis)
		wantMsg string
	}{
		{"empty title", func(a *Analysis) { a.Title = "" }, "title"},
		{"empty description", func(a *Analysis) { a.Description = "" }, "description"},
		{"unknown category", func(a *Analysis) { a.Category = "Hobby" }, "category"},
		{"unknown platform", func(a *Analysis) { a.Platform = "Watch" }, "platform"},
		{"importance too low", func(a *Analysis) { a.Importance = 0 }, "importance"},
		{"importance too high", func(a *Analysis) { a.Importance = 6 }, "importance"},
		{"empty blueprint", func(a *Analysis) { a.Blueprint = "" }, "devPrompt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := validAnalysis()
			tt.mutate(&a)
			err := ValidateAnalysis(a)
			if err == nil {
				t.Fatal("want error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("err = %q, want mention of %q", err, tt.wantMsg)
			}
		})
	}
}

func TestValidateAnalysis_JoinsAllErrors(t *testing.T) {
	t.Parallel()

	err := ValidateAnalysis(Analysis{})
	if err == nil {
		t.Fatal("want error")
	}
	for _, field := range []string{"title", "description", "category", "platform", "importance", "devPrompt"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("joined error missing %q: %v", field, err)
		}
	}
}

func TestEnumValidity(t *testing.T) {
	t.Parallel()

	if !StatusIdea.IsValid() || Status("Shipped").IsValid() {
		t.Error("status validity")
	}
	if !CategorySideProject.IsValid() || Category("Hobby").IsValid() {
		t.Error("category validity")
	}
	if !PlatformTV.IsValid() || Platform("Watch").IsValid() {
		t.Error("platform validity")
	}
}

func TestFields(t *testing.T) {
	t.Parallel()

	rec := Idea{
		ID:        "rec-1",
		OwnerID:   "alice",
		Title:     "Trail Logger",
		Status:    StatusIdea,
		CreatedAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	fields := rec.Fields()
	if _, ok := fields["id"]; ok {
		t.Error("write payloads must never carry the identifier")
	}
	if fields["userId"] != "alice" || fields["title"] != "Trail Logger" {
		t.Errorf("fields = %+v", fields)
	}
	if fields["tags"] == nil {
		t.Error("nil tags should flatten to an empty slice")
	}
}
