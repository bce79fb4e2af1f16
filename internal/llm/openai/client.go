package openai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/contract-analyzer/internal/llm"
)

func (c *Client) Name() string { return c.cfg.Name }

// Invoke implements llm.Provider.
func (c *Client) Invoke(ctx context.Context, req llm.Request) ([]byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("llm.invoke.start",
		"req_id", rid,
		"provider", c.cfg.Name,
		"model", c.cfg.Model,
		"chunk", req.ChunkIndex,
		"chunks", req.ChunkCount,
		"prompt_len", len(req.UserPrompt),
	)

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"max_tokens":  c.cfg.MaxTokens,
		"messages": []map[string]any{
			{"role": "system", "content": req.SystemPrompt},
			{"role": "user", "content": req.UserPrompt},
		},
	}
	if c.cfg.JSONMode {
		body["response_format"] = map[string]any{"type": "json_object"}
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, err := llm.SendJSON(ctx, c.http, c.cfg.Name, endpoint, body, headers, c.logger)
	if err != nil {
		c.logger.Error("llm.invoke.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.invoke.decode_error", "req_id", rid, "error", err, "raw_bytes", len(raw))
		return nil, &llm.ProviderError{Provider: c.cfg.Name, Err: errors.New("undecodable completion envelope")}
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.invoke.no_choices", "req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, &llm.ProviderError{Provider: c.cfg.Name, Err: errors.New("no choices in completion")}
	}

	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	c.logger.Info("llm.invoke.ok",
		"req_id", rid,
		"finish_reason", cc.Choices[0].FinishReason,
		"content_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return []byte(content), nil
}
