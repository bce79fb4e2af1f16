package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/contract-analyzer/constants"
	"github.com/joseph-ayodele/contract-analyzer/internal/llm"
)

const (
	ReasonInvalidSchema = "invalid_schema"
	ReasonUnavailable   = "unavailable"
)

// AnalysisError is the terminal failure of an analysis attempt.
type AnalysisError struct {
	Reason string
	Cause  error
}

func (e *AnalysisError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("analysis failed (%s): %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("analysis failed (%s)", e.Reason)
}

func (e *AnalysisError) Unwrap() error {
	return e.Cause
}

type Config struct {
	ChunkChars          int
	ChunkOverlap        int
	MaxConcurrentChunks int
	MaxClauses          int           // per chunk; 0 keeps everything
	CallTimeout         time.Duration // bound on a single provider call
	Retry               RetryConfig
}

// Client turns document text into one validated analysis.
type Client struct {
	provider     llm.Provider
	cfg          Config
	logger       *slog.Logger
	systemPrompt string
}

func NewClient(provider llm.Provider, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChunkChars <= 0 {
		cfg.ChunkChars = 24000
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkChars {
		cfg.ChunkOverlap = 0
	}
	if cfg.MaxConcurrentChunks <= 0 {
		cfg.MaxConcurrentChunks = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 90 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	return &Client{
		provider:     provider,
		cfg:          cfg,
		logger:       logger,
		systemPrompt: llm.BuildSystemPrompt(cfg.MaxClauses),
	}
}

// Analyze chunks text when it exceeds the input limit, analyzes chunks concurrently,
// and merges the results in chunk order.
func (c *Client) Analyze(ctx context.Context, text string) (llm.Analysis, error) {
	start := time.Now()
	chunks := SplitChunks(text, c.cfg.ChunkChars, c.cfg.ChunkOverlap)
	results := make([]llm.Analysis, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrentChunks)
	for _, ch := range chunks {
		g.Go(func() error {
			a, err := c.analyzeChunk(gctx, ch, len(chunks))
			if err != nil {
				return err
			}
			results[ch.Index] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Error("analysis.failed", "provider", c.provider.Name(), "chunks", len(chunks), "error", err)
		return llm.Analysis{}, err
	}

	merged := Merge(results)
	c.logger.Info("analysis.ok",
		"provider", c.provider.Name(),
		"chunks", len(chunks),
		"clauses", len(merged.Clauses),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return merged, nil
}

func (c *Client) analyzeChunk(ctx context.Context, ch Chunk, total int) (llm.Analysis, error) {
	req := llm.Request{
		SystemPrompt: c.systemPrompt,
		UserPrompt:   llm.BuildUserPrompt(ch.Text, ch.Index, total),
		ChunkIndex:   ch.Index,
		ChunkCount:   total,
	}

	var out llm.Analysis
	err := retryWithBackoff(ctx, c.cfg.Retry, func(attempt int) error {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()

		raw, err := c.provider.Invoke(callCtx, req)
		if err != nil {
			if llm.IsPermanent(err) {
				c.logger.Error("analysis.chunk.permanent_failure", "chunk", ch.Index, "attempt", attempt, "error", err)
				return NoRetry(err)
			}
			c.logger.Warn("analysis.chunk.retry", "chunk", ch.Index, "attempt", attempt, "error", err)
			return err
		}
		a, err := llm.DecodeAnalysis(raw, c.logger)
		if err != nil {
			c.logger.Warn("analysis.chunk.schema_violation", "chunk", ch.Index, "attempt", attempt, "error", err)
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		if errors.Is(err, llm.ErrInvalidSchema) {
			return llm.Analysis{}, &AnalysisError{Reason: ReasonInvalidSchema, Cause: err}
		}
		return llm.Analysis{}, &AnalysisError{Reason: ReasonUnavailable, Cause: err}
	}
	if c.cfg.MaxClauses > 0 && len(out.Clauses) > c.cfg.MaxClauses {
		out.Clauses = out.Clauses[:c.cfg.MaxClauses]
	}
	return out, nil
}

// Merge combines per-chunk analyses in order. Clauses whose exact_text matches an earlier
// clause after whitespace collapse and case folding are dropped.
func Merge(parts []llm.Analysis) llm.Analysis {
	out := llm.Analysis{Parties: []llm.Party{}, Clauses: []llm.AnalyzedClause{}}
	var summaries []string
	seenSummary := map[string]bool{}
	partyIdx := map[string]int{}
	seenClause := map[string]bool{}

	for _, p := range parts {
		if s := strings.TrimSpace(p.Summary); s != "" && !seenSummary[s] {
			seenSummary[s] = true
			summaries = append(summaries, s)
		}
		for _, pt := range p.Parties {
			key := NormalizeKey(pt.Name)
			if key == "" {
				continue
			}
			if i, ok := partyIdx[key]; ok {
				if out.Parties[i].Role == "" {
					out.Parties[i].Role = strings.TrimSpace(pt.Role)
				}
				continue
			}
			partyIdx[key] = len(out.Parties)
			out.Parties = append(out.Parties, llm.Party{Name: strings.TrimSpace(pt.Name), Role: strings.TrimSpace(pt.Role)})
		}
		for _, cl := range p.Clauses {
			key := NormalizeKey(cl.ExactText)
			if key == "" || seenClause[key] {
				continue
			}
			seenClause[key] = true
			cl.ClauseType = constants.CanonicalClauseType(cl.ClauseType)
			cl.ExactText = strings.TrimSpace(cl.ExactText)
			out.Clauses = append(out.Clauses, cl)
		}
	}
	out.Summary = strings.Join(summaries, "\n\n")
	return out
}

// NormalizeKey collapses whitespace runs and folds case.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
