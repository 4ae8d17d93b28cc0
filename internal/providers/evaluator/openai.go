package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"studio/internal/domain"
)

const (
	defaultOpenAIModel   = "gpt-4o-mini"
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	openAITimeout        = 10 * time.Second
	// Chat completion answers are small; anything larger is not a score.
	maxOpenAIResponse = 1 << 20
)

type OpenAIOptions struct {
	APIKey       string
	Model        string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
	// OnFailure receives a short machine readable reason for every failed call.
	OnFailure func(reason string, err error)
}

// OpenAIEvaluator scores instructions through an OpenAI compatible chat
// completions endpoint in JSON mode.
type OpenAIEvaluator struct {
	reporter
	apiKey   string
	model    string
	endpoint string
	org      string
	client   *http.Client
}

type openAIChatRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *openAIFormat   `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

func NewOpenAIEvaluator(opts OpenAIOptions) (*OpenAIEvaluator, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, errors.New("openai api key is required")
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	e := &OpenAIEvaluator{
		reporter: reporter{provider: openAIProviderName, onFailure: opts.OnFailure},
		apiKey:   key,
		model:    strings.TrimSpace(opts.Model),
		endpoint: base + "/chat/completions",
		org:      strings.TrimSpace(opts.Organization),
		client:   opts.HTTPClient,
	}
	if e.model == "" {
		e.model = defaultOpenAIModel
	}
	if e.client == nil {
		e.client = &http.Client{Timeout: openAITimeout}
	}
	return e, nil
}

func (o *OpenAIEvaluator) Name() string {
	return openAIProviderName + ":" + o.model
}

func (o *OpenAIEvaluator) Evaluate(ctx context.Context, instruction domain.AssembledInstruction, bag domain.StageContext) (*domain.CategoryScores, error) {
	body, err := json.Marshal(openAIChatRequest{
		Model:          o.model,
		ResponseFormat: &openAIFormat{Type: "json_object"},
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildEvaluationPrompt(instruction, bag)},
		},
	})
	if err != nil {
		return nil, o.fail("encode_request", err)
	}
	content, err := o.complete(ctx, body)
	if err != nil {
		return nil, err
	}
	scores, err := parseScores(content)
	if err != nil {
		return nil, o.fail("parse_payload", err)
	}
	return scores, nil
}

// complete posts one chat request and returns the first choice's content.
func (o *OpenAIEvaluator) complete(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", o.fail("build_request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	if o.org != "" {
		req.Header.Set("OpenAI-Organization", o.org)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return "", o.fail("http_request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxOpenAIResponse))
	if err != nil {
		return "", o.fail("read_response", err)
	}
	if resp.StatusCode >= 300 {
		return "", o.fail(fmt.Sprintf("http_%d", resp.StatusCode), fmt.Errorf("status %d: %s", resp.StatusCode, snippet(raw)))
	}
	var out openAIChatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", o.fail("decode_response", err)
	}
	if len(out.Choices) == 0 {
		return "", o.fail("empty_choices", errors.New("no choices"))
	}
	return out.Choices[0].Message.Content, nil
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
