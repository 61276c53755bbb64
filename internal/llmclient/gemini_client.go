// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/xkilldash9x/inbox-sweeper/internal/config"
)

// GenerationRequest is a single prompt round trip.
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
	// ForceJSON asks the model for an application/json response.
	ForceJSON bool
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// GeminiClient implements Generator on top of the Gemini API. Requests are
// paced by a token bucket so a large batch cannot exhaust the quota.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	logger  *zap.Logger
}

// clientOptions lets tests point the SDK at a local server.
type clientOptions struct {
	baseURL    string
	httpClient *http.Client
}

// NewGeminiClient initializes the client.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*GeminiClient, error) {
	return newGeminiClient(ctx, cfg, clientOptions{}, logger)
}

func newGeminiClient(ctx context.Context, cfg config.LLMConfig, opts clientOptions, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.httpClient,
	}
	if opts.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.baseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	return &GeminiClient{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.APITimeout,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Named("llm_client.gemini"),
	}, nil
}

// Generate sends the prompts to the model and returns the text of the first
// candidate.
func (c *GeminiClient) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.SystemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.ForceJSON {
		genCfg.ResponseMIMEType = "application/json"
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.UserPrompt), genCfg)
	if err != nil {
		c.logger.Error("Gemini request failed.", zap.String("model", c.model), zap.Error(err))
		return "", fmt.Errorf("gemini API error: %w", err)
	}

	text := resp.Text()
	if text == "" {
		reason := ""
		if len(resp.Candidates) > 0 {
			reason = string(resp.Candidates[0].FinishReason)
		}
		return "", fmt.Errorf("gemini API returned empty content (Reason: %s)", reason)
	}

	fields := []zap.Field{zap.String("model", c.model), zap.Duration("duration", time.Since(start))}
	if u := resp.UsageMetadata; u != nil {
		fields = append(fields,
			zap.Int32("prompt_tokens", u.PromptTokenCount),
			zap.Int32("completion_tokens", u.CandidatesTokenCount),
			zap.Int32("total_tokens", u.TotalTokenCount),
		)
	}
	c.logger.Info("LLM generation complete (Gemini)", fields...)
	return text, nil
}
