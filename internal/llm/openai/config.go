package openai

import (
	"log/slog"
	"net/http"
	"time"
)

const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	DeepSeekBaseURL  = "https://api.deepseek.com/v1"
	DefaultModel     = "gpt-4o-mini"
	DeepSeekModel    = "deepseek-chat"
	defaultMaxTokens = 4096
)

// Config for any OpenAI-compatible chat completions endpoint.
type Config struct {
	Name        string        // provider label used in logs and errors, default "openai"
	APIKey      string        // sent as a Bearer token
	BaseURL     string        // default https://api.openai.com/v1
	Model       string        // e.g., "gpt-4o-mini"
	Temperature float32       // 0..2
	MaxTokens   int           // default 4096
	Timeout     time.Duration // http client timeout
	JSONMode    bool          // request response_format json_object
}

// Client calls /chat/completions and returns the first choice's content.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// NewDeepSeekClient points the client at DeepSeek's OpenAI-compatible API.
func NewDeepSeekClient(cfg Config, logger *slog.Logger) *Client {
	cfg.Name = "deepseek"
	if cfg.BaseURL == "" {
		cfg.BaseURL = DeepSeekBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DeepSeekModel
	}
	return NewClient(cfg, logger)
}
