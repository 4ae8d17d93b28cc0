package pipeline

import (
	"strings"
	"unicode/utf8"

	"studio/internal/domain"
)

// Validate checks request invariants. It is exported so queue producers can
// reject bad requests before enqueueing them.
func Validate(req domain.GenerationRequest, maxImages int) error {
	if maxImages <= 0 {
		maxImages = domain.DefaultMaxInputImages
	}
	if !req.Mode.Valid() {
		return &ValidationError{Field: "mode", Err: domain.ErrUnknownMode}
	}
	instruction := strings.TrimSpace(req.Instruction)
	if instruction == "" {
		return &ValidationError{Field: "instruction", Err: domain.ErrEmptyInstruction}
	}
	if utf8.RuneCountInString(instruction) > domain.MaxInstructionRunes {
		return &ValidationError{Field: "instruction", Err: domain.ErrInstructionLength}
	}
	if req.Mode == domain.ModeTemplateGuided && strings.TrimSpace(req.TemplateID) == "" {
		return &ValidationError{Field: "template_id", Err: domain.ErrTemplateRequired}
	}
	if len(req.Images) > maxImages {
		return &ValidationError{Field: "images", Err: domain.ErrTooManyImages}
	}
	for _, img := range req.Images {
		if img.Empty() {
			return &ValidationError{Field: "images", Err: domain.ErrEmptyImage}
		}
	}
	if ratio := strings.TrimSpace(req.AspectRatio); ratio != "" && !domain.IsSupportedAspectRatio(ratio) {
		return &ValidationError{Field: "aspect_ratio", Err: domain.ErrAspectRatio}
	}
	return nil
}
