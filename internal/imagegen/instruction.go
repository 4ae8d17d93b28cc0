package imagegen

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"studio/internal/domain"
)

const (
	genericTone  = "Tone: clean, natural and commercially appealing."
	qualityLine  = "Keep the product's real shape and natural proportions, sharp focus, no distortion or defects."
	baseNegative = "blurry, distorted product, extra limbs, watermark artifacts, unreadable text"
	maxProducts  = 3
)

var folder = cases.Fold()

// Assemble merges the enriched context into the user's brief. It performs no
// I/O and returns identical output for identical inputs.
//
// Precedence: brand voice replaces the generic tone and its forbidden phrases
// filter every template or recipe directive; directives are appended after the
// brief, never merged into it.
func Assemble(req domain.GenerationRequest, bag domain.StageContext) domain.AssembledInstruction {
	brief := strings.TrimSpace(req.Instruction)
	brand := bag.Brand()
	forbidden := forbiddenPhrases(brand)

	parts := []string{subjectLine(bag.Products())}
	parts = append(parts, productLines(bag.Products())...)
	if line := modeLine(req.Mode, len(req.Images), bag); line != "" {
		parts = append(parts, line)
	}
	parts = append(parts, "Brief: "+ensurePeriod(brief))

	if brand != nil && strings.TrimSpace(brand.Tone) != "" {
		line := "Brand voice: " + strings.TrimSpace(brand.Tone)
		if name := strings.TrimSpace(brand.Name); name != "" {
			line += " (" + name + ")"
		}
		parts = append(parts, line+".")
	} else if !containsAny(genericTone, forbidden) {
		parts = append(parts, genericTone)
	}

	directives := collectDirectives(bag, forbidden)
	if len(directives) > 0 {
		parts = append(parts, "Style: "+strings.Join(directives, "; ")+".")
	}
	if len(forbidden) > 0 {
		parts = append(parts, "Avoid: "+strings.Join(forbidden, ", ")+".")
	}

	aspect := resolveAspect(req, bag)
	parts = append(parts, fmt.Sprintf("Compose for a %s aspect ratio.", aspect))
	if name := localeName(req.Locale); name != "" {
		parts = append(parts, fmt.Sprintf("Render any on-image text in %s.", name))
	}
	parts = append(parts, qualityLine)

	refs := referenceImages(req.Images, bag)
	negative := baseNegative
	if len(forbidden) > 0 {
		negative += ", " + strings.Join(forbidden, ", ")
	}

	return domain.AssembledInstruction{
		Text:            strings.Join(parts, "\n"),
		Brief:           brief,
		Directives:      directives,
		ReferenceImages: refs,
		InputImages:     append([]domain.InputImage(nil), req.Images...),
		Mode:            req.Mode,
		AspectRatio:     aspect,
		NegativePrompt:  negative,
		Seed:            deterministicSeed(brief, req.Mode, aspect, strings.Join(directives, "|"), strings.Join(refs, "|")),
	}
}

func subjectLine(products []domain.Product) string {
	var names []string
	for _, p := range products {
		if name := strings.TrimSpace(p.Name); name != "" {
			names = append(names, fmt.Sprintf("%q", name))
		}
		if len(names) == maxProducts {
			break
		}
	}
	if len(names) == 0 {
		return "Create a marketing image of the product."
	}
	return "Create a marketing image featuring " + strings.Join(names, ", ") + "."
}

func productLines(products []domain.Product) []string {
	var lines []string
	for i, p := range products {
		if i == maxProducts {
			break
		}
		desc := strings.TrimSpace(p.Description)
		if desc == "" && len(p.Tags) == 0 {
			continue
		}
		line := fmt.Sprintf("Product %q", strings.TrimSpace(p.Name))
		if desc != "" {
			line += ": " + strings.TrimSuffix(desc, ".")
		}
		if tags := cleanList(p.Tags); len(tags) > 0 {
			line += " (" + strings.Join(tags, ", ") + ")"
		}
		lines = append(lines, line+".")
	}
	return lines
}

func modeLine(mode domain.Mode, images int, bag domain.StageContext) string {
	switch mode {
	case domain.ModeExactInsert:
		return "Insert the product from the first photo exactly as it appears; keep its shape, label and colors unchanged."
	case domain.ModeTemplateGuided:
		if tpl := bag.Template(); tpl != nil && strings.TrimSpace(tpl.Name) != "" {
			return fmt.Sprintf("Follow the layout and style of the %q template.", strings.TrimSpace(tpl.Name))
		}
		return "Follow the layout and style of the selected template."
	default:
		if images > 0 {
			return "Use the attached photos as the product reference."
		}
		return ""
	}
}

func collectDirectives(bag domain.StageContext, forbidden []string) []string {
	var raw []string
	if tpl := bag.Template(); tpl != nil {
		raw = append(raw, tpl.StyleDirectives...)
	}
	if recipe := bag.Recipe(); recipe != nil {
		raw = append(raw, recipe.StyleDirectives...)
	}
	seen := map[string]struct{}{}
	var out []string
	for _, d := range raw {
		d = strings.TrimSuffix(strings.TrimSpace(d), ".")
		if d == "" || containsAny(d, forbidden) {
			continue
		}
		key := folder.String(d)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, d)
	}
	return out
}

func resolveAspect(req domain.GenerationRequest, bag domain.StageContext) string {
	candidates := []string{req.AspectRatio}
	if recipe := bag.Recipe(); recipe != nil {
		candidates = append(candidates, recipe.AspectRatio)
	}
	if tpl := bag.Template(); tpl != nil {
		candidates = append(candidates, tpl.AspectRatio)
	}
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" && domain.IsSupportedAspectRatio(c) {
			return c
		}
	}
	return domain.DefaultAspectRatio
}

func referenceImages(images []domain.InputImage, bag domain.StageContext) []string {
	var urls []string
	for _, img := range images {
		urls = append(urls, img.URL)
	}
	if tpl := bag.Template(); tpl != nil {
		urls = append(urls, tpl.ReferenceImageURLs...)
	}
	if recipe := bag.Recipe(); recipe != nil {
		urls = append(urls, recipe.ReferenceImageURLs...)
	}
	seen := map[string]struct{}{}
	var out []string
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func localeName(locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return ""
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return ""
	}
	return display.English.Languages().Name(tag)
}

func forbiddenPhrases(brand *domain.BrandVoice) []string {
	if brand == nil {
		return nil
	}
	return cleanList(brand.ForbiddenPhrases)
}

// containsAny reports whether any phrase occurs in text as whole words, so
// "art" filters "wall art" but not "smart lighting".
func containsAny(text string, phrases []string) bool {
	words := wordForm(text)
	for _, p := range phrases {
		phrase := wordForm(p)
		if phrase == " " {
			continue
		}
		if strings.Contains(words, phrase) {
			return true
		}
	}
	return false
}

// wordForm folds case and collapses every run of non alphanumerics into one
// space, padded on both ends.
func wordForm(s string) string {
	folded := folder.String(s)
	var b strings.Builder
	b.Grow(len(folded) + 2)
	b.WriteByte(' ')
	space := true
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}

func cleanList(values []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := folder.String(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

func ensurePeriod(s string) string {
	if s == "" || strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?") {
		return s
	}
	return s + "."
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}
