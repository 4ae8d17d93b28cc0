package domain

import (
	"fmt"
	"strings"
)

// Mode selects how the generator should treat the supplied images and template.
type Mode string

const (
	ModeStandard       Mode = "standard"
	ModeExactInsert    Mode = "exact_insert"
	ModeTemplateGuided Mode = "template_guided"
)

// Modes lists every supported mode in declaration order.
var Modes = []Mode{ModeStandard, ModeExactInsert, ModeTemplateGuided}

// ParseMode normalizes user supplied mode names. Hyphens and spaces are
// treated as underscores and matching is case insensitive.
func ParseMode(raw string) (Mode, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")
	if normalized == "" {
		return ModeStandard, nil
	}
	for _, m := range Modes {
		if string(m) == normalized {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, raw)
}

// Valid reports whether m is one of the supported modes.
func (m Mode) Valid() bool {
	for _, known := range Modes {
		if m == known {
			return true
		}
	}
	return false
}

const (
	// MaxInstructionRunes caps the free-text instruction length.
	MaxInstructionRunes = 2000
	// DefaultMaxInputImages is the default upper bound on attached images.
	DefaultMaxInputImages = 4
	// DefaultAspectRatio is used when neither the request nor the template names one.
	DefaultAspectRatio = "1:1"
)

// AspectRatios enumerates the aspect ratios accepted by the generation backend.
var AspectRatios = []string{"1:1", "4:3", "3:4", "16:9", "9:16", "4:5", "3:2"}

// IsSupportedAspectRatio reports whether ratio is accepted by the backend.
func IsSupportedAspectRatio(ratio string) bool {
	ratio = strings.TrimSpace(ratio)
	for _, candidate := range AspectRatios {
		if candidate == ratio {
			return true
		}
	}
	return false
}

// InputImage is one user supplied image. Either URL or Data must be set.
type InputImage struct {
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"data,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
}

// Empty reports whether the image carries neither a URL nor inline bytes.
func (i InputImage) Empty() bool {
	return strings.TrimSpace(i.URL) == "" && len(i.Data) == 0
}

// Recipe is an inline style payload supplied with the request instead of, or
// in addition to, a stored template.
type Recipe struct {
	Name               string   `json:"name,omitempty"`
	StyleDirectives    []string `json:"style_directives,omitempty"`
	ReferenceImageURLs []string `json:"reference_image_urls,omitempty"`
	AspectRatio        string   `json:"aspect_ratio,omitempty"`
}

// Empty reports whether the recipe carries anything usable.
func (r *Recipe) Empty() bool {
	if r == nil {
		return true
	}
	return strings.TrimSpace(r.Name) == "" && len(r.StyleDirectives) == 0 && len(r.ReferenceImageURLs) == 0 && strings.TrimSpace(r.AspectRatio) == ""
}

// GenerationRequest is the immutable input of one pipeline run.
type GenerationRequest struct {
	RequestID   string       `json:"request_id,omitempty"`
	UserID      string       `json:"user_id,omitempty"`
	Instruction string       `json:"instruction"`
	Images      []InputImage `json:"images,omitempty"`
	Mode        Mode         `json:"mode"`
	AspectRatio string       `json:"aspect_ratio,omitempty"`
	ProductIDs  []string     `json:"product_ids,omitempty"`
	TemplateID  string       `json:"template_id,omitempty"`
	Recipe      *Recipe      `json:"recipe,omitempty"`
	Locale      string       `json:"locale,omitempty"`
	Country     string       `json:"country,omitempty"`
}
