// Package image adapts image generation backends to the pipeline's
// Generator contract.
package image

import (
	"context"
	"mime"
	"strings"

	"studio/internal/domain"
)

// Generator is the contract implemented by all image backends.
type Generator interface {
	Generate(ctx context.Context, instruction domain.AssembledInstruction) (*domain.GeneratedArtifact, error)
}

type aspectSpec struct {
	qwenSize      string
	width, height int
}

// aspects lists the supported ratios; anything else renders square.
var aspects = map[string]aspectSpec{
	"1:1":  {"1328*1328", 1024, 1024},
	"16:9": {"1664*928", 1820, 1024},
	"9:16": {"928*1664", 1024, 1820},
	"4:3":  {"1472*1104", 1364, 1024},
	"3:4":  {"1104*1472", 1024, 1364},
	"3:2":  {"1472*1104", 1536, 1024},
	"4:5":  {"1104*1472", 1024, 1280},
}

func lookupAspect(aspect string) aspectSpec {
	if a, ok := aspects[strings.TrimSpace(aspect)]; ok {
		return a
	}
	return aspects["1:1"]
}

// AspectRatioSize maps an aspect ratio to the DashScope size token.
func AspectRatioSize(aspect string) string {
	return lookupAspect(aspect).qwenSize
}

// aspectDimensions returns pixel dimensions with a 1024px short edge.
func aspectDimensions(aspect string) (int, int) {
	a := lookupAspect(aspect)
	return a.width, a.height
}

// normalizeFormat reduces a Content-Type to a bare image MIME type, defaulting
// to image/png for anything that is not an image.
func normalizeFormat(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mt, "image/") {
		return "image/png"
	}
	if mt == "image/jpg" {
		return "image/jpeg"
	}
	return mt
}
