package image

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"

	"studio/internal/domain"
	"studio/internal/providers/qwen"
)

const qwenProviderName = "qwen"

type qwenImageClient interface {
	GenerateImage(context.Context, qwen.ImageRequest) (*qwen.ImageAsset, error)
	HasCredentials() bool
	Model() string
}

// QwenGenerator sends assembled instructions to DashScope's Qwen image model.
// Failures are returned classified; there is no silent fallback.
type QwenGenerator struct {
	client      qwenImageClient
	costCredits int
}

// NewQwenGenerator wires a Qwen client. costCredits is charged per image.
func NewQwenGenerator(client qwenImageClient, costCredits int) *QwenGenerator {
	if costCredits <= 0 {
		costCredits = 1
	}
	return &QwenGenerator{client: client, costCredits: costCredits}
}

// Generate fulfils the Generator interface.
func (g *QwenGenerator) Generate(ctx context.Context, instruction domain.AssembledInstruction) (*domain.GeneratedArtifact, error) {
	if g == nil || g.client == nil {
		return nil, &domain.BackendError{Kind: domain.BackendAuth, Provider: qwenProviderName, Err: fmt.Errorf("qwen generator not configured")}
	}
	if !g.client.HasCredentials() {
		return nil, classified(qwenProviderName, qwen.ErrMissingAPIKey)
	}
	req := qwen.ImageRequest{
		Prompt:         strings.TrimSpace(instruction.Text),
		NegativePrompt: strings.TrimSpace(instruction.NegativePrompt),
		Size:           AspectRatioSize(instruction.AspectRatio),
		Seed:           numericSeed(instruction.Seed),
		Images:         sourceImages(instruction),
	}
	asset, err := g.invoke(ctx, req)
	if err != nil {
		return nil, classified(qwenProviderName, err)
	}
	return &domain.GeneratedArtifact{
		Data:        asset.Data,
		URL:         asset.URL,
		MIMEType:    normalizeFormat(asset.Format),
		Width:       asset.Width,
		Height:      asset.Height,
		Provider:    qwenProviderName,
		Model:       g.client.Model(),
		CostCredits: g.costCredits,
	}, nil
}

func (g *QwenGenerator) String() string {
	if g == nil || g.client == nil {
		return qwenProviderName
	}
	return g.client.Model()
}

var _ Generator = (*QwenGenerator)(nil)

// invoke retries once with a simplified request when DashScope reports an
// internal error.
func (g *QwenGenerator) invoke(ctx context.Context, req qwen.ImageRequest) (*qwen.ImageAsset, error) {
	asset, err := g.client.GenerateImage(ctx, req)
	if err == nil {
		return asset, nil
	}
	if !isTransient(err) || ctx.Err() != nil {
		return nil, err
	}
	simplified := req
	simplified.NegativePrompt = ""
	return g.client.GenerateImage(ctx, simplified)
}

// sourceImages sends inline uploads first, then every reference URL. Inline
// uploads have no URL, so nothing is sent twice.
func sourceImages(instruction domain.AssembledInstruction) []qwen.SourceImage {
	var out []qwen.SourceImage
	for _, img := range instruction.InputImages {
		if len(img.Data) > 0 && strings.TrimSpace(img.URL) == "" {
			out = append(out, qwen.SourceImage{Data: img.Data, MIME: img.MIMEType})
		}
	}
	for _, ref := range instruction.ReferenceImages {
		out = append(out, qwen.SourceImage{URL: ref})
	}
	return out
}

func numericSeed(seed string) int {
	sum := sha256.Sum256([]byte(seed))
	value := int(binary.BigEndian.Uint32(sum[:4]) % 2147483647)
	if value <= 0 {
		value = 1
	}
	return value
}
