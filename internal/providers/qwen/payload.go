package qwen

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

// Wire format of the DashScope multimodal-generation endpoint.

type wireRequest struct {
	Model      string     `json:"model"`
	Input      wireInput  `json:"input"`
	Parameters wireParams `json:"parameters"`
}

type wireInput struct {
	Messages []wireMessage `json:"messages"`
}

type wireMessage struct {
	Role    string     `json:"role"`
	Content []wirePart `json:"content"`
}

// wirePart holds either an image (URL or data URI) or text.
type wirePart struct {
	Image string `json:"image,omitempty"`
	Text  string `json:"text,omitempty"`
}

type wireParams struct {
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Size           string `json:"size,omitempty"`
	PromptExtend   *bool  `json:"prompt_extend,omitempty"`
	Watermark      *bool  `json:"watermark,omitempty"`
	Seed           *int   `json:"seed,omitempty"`
}

type wireResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []struct {
					Image string `json:"image"`
				} `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Usage struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"usage"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// buildPayload places reference images before the prompt text, which is how
// the model expects edit-style requests.
func (c *Client) buildPayload(req ImageRequest, prompt string) wireRequest {
	parts := make([]wirePart, 0, len(req.Images)+1)
	for _, img := range req.Images {
		if encoded := encodeImage(img); encoded != "" {
			parts = append(parts, wirePart{Image: encoded})
		}
	}
	parts = append(parts, wirePart{Text: prompt})

	params := wireParams{
		NegativePrompt: strings.TrimSpace(req.NegativePrompt),
		Size:           firstNonEmpty(req.Size, c.defaultSize),
		Watermark:      boolPtr(c.watermark),
	}
	if c.promptExtend {
		params.PromptExtend = boolPtr(true)
	}
	if req.Seed > 0 {
		seed := req.Seed
		params.Seed = &seed
	}
	return wireRequest{
		Model:      c.model,
		Input:      wireInput{Messages: []wireMessage{{Role: "user", Content: parts}}},
		Parameters: params,
	}
}

// decodeError turns a non-2xx body into an *APIError, keeping the raw body as
// the message when it is not DashScope's JSON error shape.
func decodeError(status int, raw []byte) *APIError {
	apiErr := &APIError{Status: status, Message: strings.TrimSpace(string(raw))}
	var body struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		apiErr.Code, apiErr.Message, apiErr.RequestID = body.Code, body.Message, body.RequestID
	}
	return apiErr
}

func (r wireResponse) imageURL() string {
	for _, choice := range r.Output.Choices {
		for _, part := range choice.Message.Content {
			if u := strings.TrimSpace(part.Image); u != "" {
				return u
			}
		}
	}
	return ""
}

// encodeImage prefers inline bytes as a data URI and falls back to the URL.
func encodeImage(src SourceImage) string {
	if len(src.Data) == 0 {
		return strings.TrimSpace(src.URL)
	}
	mime := strings.TrimSpace(src.MIME)
	if mime == "" {
		mime = http.DetectContentType(src.Data)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(src.Data)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func boolPtr(b bool) *bool { return &b }
