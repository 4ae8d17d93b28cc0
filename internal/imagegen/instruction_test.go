package imagegen

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"studio/internal/domain"
)

func enrichedBag() domain.StageContext {
	var bag domain.StageContext
	bag.SetProducts([]domain.Product{{ID: "p1", Name: "Nasi goreng seafood", Description: "Fried rice with prawns.", Tags: []string{"food", "spicy"}}})
	bag.SetBrand(&domain.BrandVoice{Name: "Warung Bu Sri", Tone: "homely and warm", ForbiddenPhrases: []string{"cheap", "neon"}})
	bag.SetTemplate(&domain.TemplateRecipe{
		ID:                 "tpl-1",
		Name:               "Street food",
		StyleDirectives:    []string{"wooden table backdrop", "neon signage glow", "Steam rising"},
		ReferenceImageURLs: []string{"https://cdn.example.com/ref-1.png", "https://cdn.example.com/photo.png"},
		AspectRatio:        "4:5",
	})
	bag.SetRecipe(&domain.Recipe{StyleDirectives: []string{"steam rising", "top down angle"}, ReferenceImageURLs: []string{"https://cdn.example.com/ref-2.png"}})
	return bag
}

func TestAssembleAppliesPrecedence(t *testing.T) {
	req := domain.GenerationRequest{
		Instruction: "  Show a cheap lunch deal for office workers  ",
		Mode:        domain.ModeTemplateGuided,
		TemplateID:  "tpl-1",
		Images:      []domain.InputImage{{URL: "https://cdn.example.com/photo.png"}},
		Locale:      "id",
	}

	got := Assemble(req, enrichedBag())

	checks := []string{
		`featuring "Nasi goreng seafood"`,
		`Product "Nasi goreng seafood": Fried rice with prawns (food, spicy).`,
		`Follow the layout and style of the "Street food" template.`,
		"Brief: Show a cheap lunch deal for office workers.",
		"Brand voice: homely and warm (Warung Bu Sri).",
		"Style: wooden table backdrop; Steam rising; top down angle.",
		"Avoid: cheap, neon.",
		"Compose for a 4:5 aspect ratio.",
		"Render any on-image text in Indonesian.",
	}
	for _, expect := range checks {
		if !strings.Contains(got.Text, expect) {
			t.Fatalf("instruction missing %q:\n%s", expect, got.Text)
		}
	}
	if strings.Contains(got.Text, genericTone) {
		t.Fatalf("brand tone must replace the generic tone line")
	}
	if strings.Contains(got.Text, "neon signage") {
		t.Fatalf("forbidden directive leaked into instruction")
	}
	wantRefs := []string{
		"https://cdn.example.com/photo.png",
		"https://cdn.example.com/ref-1.png",
		"https://cdn.example.com/ref-2.png",
	}
	if diff := cmp.Diff(wantRefs, got.ReferenceImages); diff != "" {
		t.Fatalf("reference images mismatch (-want +got):\n%s", diff)
	}
	if got.Brief != "Show a cheap lunch deal for office workers" {
		t.Fatalf("brief must be kept verbatim, got %q", got.Brief)
	}
	if !strings.HasSuffix(got.NegativePrompt, "cheap, neon") {
		t.Fatalf("negative prompt = %q", got.NegativePrompt)
	}
}

func TestAssembleDefaults(t *testing.T) {
	got := Assemble(domain.GenerationRequest{Instruction: "A beautiful landscape", Mode: domain.ModeStandard}, domain.StageContext{})
	if got.AspectRatio != domain.DefaultAspectRatio {
		t.Fatalf("aspect = %q, want default", got.AspectRatio)
	}
	if !strings.Contains(got.Text, genericTone) {
		t.Fatalf("generic tone expected:\n%s", got.Text)
	}
	if len(got.ReferenceImages) != 0 || len(got.Directives) != 0 {
		t.Fatalf("unexpected references or directives: %+v", got)
	}
}

func TestAssembleRequestAspectWins(t *testing.T) {
	req := domain.GenerationRequest{Instruction: "Mug", Mode: domain.ModeTemplateGuided, AspectRatio: "16:9"}
	if got := Assemble(req, enrichedBag()).AspectRatio; got != "16:9" {
		t.Fatalf("aspect = %q, want 16:9", got)
	}
}

func TestAssembleIsDeterministic(t *testing.T) {
	req := domain.GenerationRequest{Instruction: "Iced coffee on marble", Mode: domain.ModeStandard, Locale: "en-US"}
	bag := enrichedBag()
	first := Assemble(req, bag)
	for i := 0; i < 10; i++ {
		if diff := cmp.Diff(first, Assemble(req, bag)); diff != "" {
			t.Fatalf("assembly changed between runs (-first +now):\n%s", diff)
		}
	}
}

func TestForbiddenPhrasesMatchWholeWords(t *testing.T) {
	var bag domain.StageContext
	bag.SetBrand(&domain.BrandVoice{Name: "Galeri", ForbiddenPhrases: []string{"art", "!!"}})
	bag.SetTemplate(&domain.TemplateRecipe{
		ID:              "tpl-2",
		StyleDirectives: []string{"smart lighting", "wall art backdrop", "Art-deco frame", "soft shadow"},
	})
	got := Assemble(domain.GenerationRequest{Instruction: "Ceramic vase on a shelf", Mode: domain.ModeTemplateGuided}, bag)
	if diff := cmp.Diff([]string{"smart lighting", "soft shadow"}, got.Directives); diff != "" {
		t.Fatalf("directives (-want +got):\n%s", diff)
	}
	if !strings.Contains(got.Text, genericTone) {
		t.Fatalf("generic tone must survive a forbidden %q:\n%s", "art", got.Text)
	}
}

func TestContainsAny(t *testing.T) {
	tests := []struct {
		text    string
		phrases []string
		want    bool
	}{
		{text: "smart lighting", phrases: []string{"art"}, want: false},
		{text: "pop ART poster", phrases: []string{"art"}, want: true},
		{text: "Cheap, cheerful lunch", phrases: []string{"cheap cheerful"}, want: true},
		{text: "cheapest lunch", phrases: []string{"cheap"}, want: false},
		{text: "anything", phrases: []string{"--"}, want: false},
	}
	for _, tc := range tests {
		if got := containsAny(tc.text, tc.phrases); got != tc.want {
			t.Fatalf("containsAny(%q, %q) = %v, want %v", tc.text, tc.phrases, got, tc.want)
		}
	}
}
