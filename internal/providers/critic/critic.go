package critic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strconv"
	"strings"

	"studio/internal/domain"
)

const (
	// MinShortEdge is the smallest acceptable short edge in pixels.
	MinShortEdge = 512
	// MaxAspectDeviation is the tolerated relative aspect ratio drift.
	MaxAspectDeviation = 0.05
)

// ErrNoImage is returned when the artifact carries no bytes to inspect.
var ErrNoImage = errors.New("critic: artifact has no image data")

// LocalCritic inspects generated bytes without calling any external service.
type LocalCritic struct{}

func NewLocalCritic() *LocalCritic {
	return &LocalCritic{}
}

// Critique decodes the image header and scores resolution and aspect ratio
// fidelity. The score starts at 100 and loses points for each issue.
func (c *LocalCritic) Critique(ctx context.Context, instruction domain.AssembledInstruction, artifact domain.GeneratedArtifact) (*domain.Critique, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(artifact.Data) == 0 {
		return nil, ErrNoImage
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(artifact.Data))
	if err != nil {
		return nil, fmt.Errorf("critic: decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("critic: invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}

	result := &domain.Critique{Score: 100}
	if short := min(cfg.Width, cfg.Height); short < MinShortEdge {
		result.Score -= 40
		result.Issues = append(result.Issues, fmt.Sprintf("low resolution: short edge %dpx", short))
	}
	if want, ok := ratio(instruction.AspectRatio); ok {
		got := float64(cfg.Width) / float64(cfg.Height)
		if deviation := math.Abs(got-want) / want; deviation > MaxAspectDeviation {
			result.Score -= 30
			result.Issues = append(result.Issues, fmt.Sprintf("aspect ratio %.2f differs from requested %s", got, instruction.AspectRatio))
		}
	}
	if mime := strings.TrimPrefix(strings.ToLower(artifact.MIMEType), "image/"); mime != "" && mime != format && !(mime == "jpg" && format == "jpeg") {
		result.Score -= 10
		result.Issues = append(result.Issues, fmt.Sprintf("declared %s but decoded %s", artifact.MIMEType, format))
	}
	result.Score = max(result.Score, 0)
	return result, nil
}

func ratio(aspect string) (float64, bool) {
	parts := strings.Split(strings.TrimSpace(aspect), ":")
	if len(parts) != 2 {
		return 0, false
	}
	w, errW := strconv.ParseFloat(parts[0], 64)
	h, errH := strconv.ParseFloat(parts[1], 64)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, false
	}
	return w / h, true
}
