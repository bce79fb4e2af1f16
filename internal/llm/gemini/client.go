package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/contract-analyzer/internal/llm"
)

const DefaultModel = "gemini-1.5-flash"

type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int32
}

// Client implements llm.Provider on top of the Gemini API in JSON response mode.
type Client struct {
	client *genai.Client
	cfg    Config
	logger *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Client{client: client, cfg: cfg, logger: logger}, nil
}

func (c *Client) Name() string { return "gemini" }

func (c *Client) Invoke(ctx context.Context, req llm.Request) ([]byte, error) {
	start := time.Now()
	model := c.client.GenerativeModel(c.cfg.Model)
	model.SetTemperature(c.cfg.Temperature)
	model.SetMaxOutputTokens(c.cfg.MaxTokens)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}

	resp, err := model.GenerateContent(ctx, genai.Text(req.UserPrompt))
	if err != nil {
		c.logger.Error("llm.invoke.gemini_error", "chunk", req.ChunkIndex, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, classify(err)
	}
	text, err := extractText(resp)
	if err != nil {
		return nil, &llm.ProviderError{Provider: "gemini", Err: err}
	}
	c.logger.Info("llm.invoke.ok", "provider", "gemini", "chunk", req.ChunkIndex, "content_len", len(text), "elapsed_ms", time.Since(start).Milliseconds())
	return []byte(text), nil
}

func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// classify maps API failures onto transient or permanent provider errors.
func classify(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &llm.ProviderError{Provider: "gemini", Permanent: true, Err: err}
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied, codes.NotFound, codes.FailedPrecondition:
		return &llm.ProviderError{Provider: "gemini", Permanent: true, Err: err}
	}
	return &llm.ProviderError{Provider: "gemini", Err: err}
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}
	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}
	return strings.Join(parts, ""), nil
}
