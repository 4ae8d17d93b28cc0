package evaluator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"studio/internal/domain"
)

type GeminiOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	OnFailure  func(reason string, err error)
}

// GeminiEvaluator scores instructions with a Gemini model through the genai SDK.
type GeminiEvaluator struct {
	reporter
	client *genai.Client
	model  string
}

const defaultGeminiModel = "gemini-2.0-flash-lite"

func NewGeminiEvaluator(ctx context.Context, opts GeminiOptions) (*GeminiEvaluator, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiEvaluator{
		reporter: reporter{provider: geminiProviderName, onFailure: opts.OnFailure},
		client:   client,
		model:    model,
	}, nil
}

func (g *GeminiEvaluator) Evaluate(ctx context.Context, instruction domain.AssembledInstruction, bag domain.StageContext) (*domain.CategoryScores, error) {
	temperature := float32(0)
	resp, err := g.client.Models.GenerateContent(ctx,
		g.model,
		[]*genai.Content{genai.NewContentFromText(buildEvaluationPrompt(instruction, bag), genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			Temperature:       &temperature,
		},
	)
	if err != nil {
		return nil, g.fail("generate_content", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, g.fail("empty_response", errors.New("empty response"))
	}
	scores, err := parseScores(text)
	if err != nil {
		return nil, g.fail("parse_payload", err)
	}
	return scores, nil
}

func (g *GeminiEvaluator) Name() string {
	return geminiProviderName + ":" + g.model
}
