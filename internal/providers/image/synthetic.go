package image

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"studio/internal/domain"
)

const (
	syntheticProviderName = "synthetic"
	syntheticModel        = "synthetic-v1"
)

// SyntheticGenerator renders a deterministic placeholder PNG. It is selected
// at startup when no backend credentials are configured and is never used to
// paper over a failing remote backend.
type SyntheticGenerator struct{}

func NewSyntheticGenerator() *SyntheticGenerator {
	return &SyntheticGenerator{}
}

var _ Generator = (*SyntheticGenerator)(nil)

// Generate draws a two colour diagonal band pattern keyed by the instruction
// seed, or by the instruction text when no seed is set.
func (s *SyntheticGenerator) Generate(ctx context.Context, instruction domain.AssembledInstruction) (*domain.GeneratedArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, classified(syntheticProviderName, err)
	}
	key := instruction.Seed
	if key == "" {
		key = instruction.Text
	}
	w, h := aspectDimensions(instruction.AspectRatio)
	data, err := renderPlaceholder(w, h, sha256.Sum256([]byte(key)))
	if err != nil {
		return nil, &domain.BackendError{Kind: domain.BackendUnknown, Provider: syntheticProviderName, Err: err}
	}
	return &domain.GeneratedArtifact{
		Data:     data,
		MIMEType: "image/png",
		Width:    w,
		Height:   h,
		Provider: syntheticProviderName,
		Model:    syntheticModel,
	}, nil
}

func renderPlaceholder(w, h int, digest [sha256.Size]byte) ([]byte, error) {
	bg := color.RGBA{digest[0], digest[1], digest[2], 0xff}
	fg := color.RGBA{digest[3], digest[4], digest[5], 0xff}
	band := 32 + int(digest[6])%96

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			if ((x+y)/band)%2 == 0 {
				img.SetRGBA(x, y, bg)
			} else {
				img.SetRGBA(x, y, fg)
			}
		}
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode placeholder: %w", err)
	}
	return buf.Bytes(), nil
}
