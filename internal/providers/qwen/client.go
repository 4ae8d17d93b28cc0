// Package qwen is a client for DashScope's Qwen image generation API.
package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"studio/internal/infra"
)

const (
	defaultBaseURL          = "https://dashscope-intl.aliyuncs.com/api/v1"
	defaultModel            = "qwen-image-plus"
	defaultSize             = "1328*1328"
	defaultTimeout          = 45 * time.Second
	defaultMaxDownloadBytes = 20 << 20
	generationEndpoint      = "/services/aigc/multimodal-generation/generation"
)

var (
	// ErrMissingAPIKey indicates that the client was configured without credentials.
	ErrMissingAPIKey = errors.New("qwen: api key is required")
	// ErrThrottled is returned when the client-side limiter cannot grant a slot
	// before the caller's deadline.
	ErrThrottled = errors.New("qwen: client rate limit exceeded")
)

// APIError is a non-success answer from DashScope.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("qwen: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("qwen: status %d: %s (%s)", e.Status, e.Message, e.Code)
}

// Options configures the client. Only APIKey is required for remote calls.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	DefaultSize    string
	PromptExtend   bool
	Watermark      bool
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
	// RatePerSecond caps outgoing generation calls. Zero disables the limiter.
	RatePerSecond float64
	Burst         int
	// MaxDownloadBytes bounds the generated image download. Defaults to 20 MiB.
	MaxDownloadBytes int64
}

// Client calls the multimodal-generation endpoint and downloads the result.
type Client struct {
	apiKey       string
	endpoint     string
	model        string
	defaultSize  string
	promptExtend bool
	watermark    bool
	maxDownload  int64
	httpClient   *http.Client
	logger       zerolog.Logger
	limiter      *rate.Limiter
	tracer       trace.Tracer
}

// ImageRequest captures the inputs for one generation call.
type ImageRequest struct {
	Prompt         string
	NegativePrompt string
	Size           string
	Seed           int
	RequestID      string
	Images         []SourceImage
}

// SourceImage is a reference image sent alongside the prompt.
type SourceImage struct {
	URL  string
	Data []byte
	MIME string
}

// ImageAsset is the downloaded result.
type ImageAsset struct {
	URL       string
	Data      []byte
	Format    string
	Width     int
	Height    int
	RequestID string
}

// NewClient applies defaults. It never fails today; the error is kept so
// option validation can be added without touching callers.
func NewClient(opts Options) (*Client, error) {
	c := &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		endpoint:     strings.TrimRight(firstNonEmpty(opts.BaseURL, defaultBaseURL), "/") + generationEndpoint,
		model:        firstNonEmpty(opts.Model, defaultModel),
		defaultSize:  firstNonEmpty(opts.DefaultSize, defaultSize),
		promptExtend: opts.PromptExtend,
		watermark:    opts.Watermark,
		maxDownload:  opts.MaxDownloadBytes,
		httpClient:   opts.HTTPClient,
		logger:       zerolog.Nop(),
		tracer:       otel.Tracer("studio/qwen"),
	}
	if c.maxDownload <= 0 {
		c.maxDownload = defaultMaxDownloadBytes
	}
	if c.httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	if opts.Logger != nil {
		c.logger = *opts.Logger
	}
	if opts.RatePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), max(opts.Burst, 1))
	}
	return c, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// GenerateImage runs one generation call and downloads the first image.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (asset *ImageAsset, err error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("qwen: prompt is required")
	}

	ctx, span := c.tracer.Start(ctx, "qwen.generate", trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(
		attribute.String("qwen.model", c.model),
		attribute.Int("qwen.reference_images", len(req.Images)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "generation failed")
		}
		span.End()
	}()

	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	decoded, err := c.post(ctx, req.RequestID, c.buildPayload(req, prompt))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("qwen.request_id", decoded.RequestID))

	imageURL := decoded.imageURL()
	if imageURL == "" {
		return nil, errors.New("qwen: empty image url")
	}
	data, format, err := c.download(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	width, height := decoded.Usage.Width, decoded.Usage.Height
	if width == 0 || height == 0 {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			width, height = cfg.Width, cfg.Height
		}
	}
	c.logger.Debug().
		Str("model", c.model).
		Str("request_id", decoded.RequestID).
		Int("bytes", len(data)).
		Msg("qwen: image generated")
	return &ImageAsset{URL: imageURL, Data: data, Format: format, Width: width, Height: height, RequestID: decoded.RequestID}, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrThrottled, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, requestID string, payload wireRequest) (*wireResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("qwen: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("qwen: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if requestID != "" {
		httpReq.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("qwen: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("qwen: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, decodeError(resp.StatusCode, raw)
	}

	var decoded wireResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("qwen: decode response: %w", err)
	}
	// DashScope sometimes reports failures inside a 200 body.
	if decoded.Code != "" {
		return nil, &APIError{Status: resp.StatusCode, Code: decoded.Code, Message: decoded.Message, RequestID: decoded.RequestID}
	}
	return &decoded, nil
}

func (c *Client) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	parsed, err := url.Parse(imageURL)
	if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") {
		return nil, "", fmt.Errorf("qwen: invalid image url: %s", imageURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("qwen: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("qwen: download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("qwen: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxDownload+1))
	if err != nil {
		return nil, "", fmt.Errorf("qwen: read image: %w", err)
	}
	if int64(len(data)) > c.maxDownload {
		return nil, "", fmt.Errorf("qwen: image exceeds %d bytes", c.maxDownload)
	}
	format := resp.Header.Get("Content-Type")
	if format == "" || format == "application/octet-stream" {
		format = http.DetectContentType(data)
	}
	if !strings.HasPrefix(format, "image/") {
		return nil, "", fmt.Errorf("qwen: downloaded %s, not an image", format)
	}
	return data, format, nil
}
