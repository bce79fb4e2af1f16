package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode"

	"github.com/joseph-ayodele/contract-analyzer/internal/ocr"
)

const (
	ReasonNoText    = "no backend produced any text"
	ReasonTooShort  = "extracted text is too short to analyze"
	ReasonExhausted = "all extraction backends failed or produced low quality text"
)

// Engine tries providers in order and returns the first result that passes the
// acceptance predicate. Results are never merged across providers.
type Engine struct {
	providers       []ocr.Provider
	logger          *slog.Logger
	timeout         time.Duration
	minCharsPerPage int
	minTextChars    int
}

type EngineOption func(*Engine)

func WithBackendTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMinCharsPerPage sets the average non-space characters a page must carry.
func WithMinCharsPerPage(n int) EngineOption {
	return func(e *Engine) {
		if n >= 0 {
			e.minCharsPerPage = n
		}
	}
}

// WithMinTextChars sets the minimum non-space characters of the whole document.
func WithMinTextChars(n int) EngineOption {
	return func(e *Engine) {
		if n >= 0 {
			e.minTextChars = n
		}
	}
}

func NewEngine(providers []ocr.Provider, logger *slog.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		providers:       providers,
		logger:          logger,
		timeout:         2 * time.Minute,
		minCharsPerPage: 20,
		minTextChars:    50,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Backends lists provider names in chain order.
func (e *Engine) Backends() []string {
	names := make([]string, len(e.providers))
	for i, p := range e.providers {
		names[i] = p.Name()
	}
	return names
}

func (e *Engine) Extract(ctx context.Context, doc ocr.Document) (ExtractedText, error) {
	var attempted, failures []string
	sawText := false
	sawOtherFailure := false

	for _, p := range e.providers {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err.Error())
			sawOtherFailure = true
			break
		}
		name := p.Name()
		attempted = append(attempted, name)
		start := time.Now()

		res, err := e.invoke(ctx, p, doc)
		if err != nil {
			if !errors.Is(err, ocr.ErrUnsupportedFormat) {
				sawOtherFailure = true
			}
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			e.logger.Warn("extract.backend.failed", "backend", name, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
			continue
		}

		if ok, why := e.accept(res); !ok {
			if nonSpace(res.Pages) > 0 {
				sawText = true
			}
			if why != ReasonTooShort && why != ReasonNoText {
				sawOtherFailure = true
			}
			failures = append(failures, fmt.Sprintf("%s: %s", name, why))
			e.logger.Info("extract.backend.rejected", "backend", name, "reason", why, "pages", len(res.Pages), "confidence", res.Confidence)
			continue
		}

		full, bounds := assemble(res.Pages)
		e.logger.Info("extract.backend.accepted",
			"backend", name,
			"method", res.Method,
			"pages", len(res.Pages),
			"chars", len([]rune(full)),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return ExtractedText{
			FullText:       full,
			PageBoundaries: bounds,
			Backend:        name,
			Method:         res.Method,
			Confidence:     res.Confidence,
		}, nil
	}

	reason := ReasonExhausted
	switch {
	case !sawOtherFailure && sawText:
		reason = ReasonTooShort
	case !sawOtherFailure && !sawText:
		reason = ReasonNoText
	}
	if len(attempted) == 0 && !sawOtherFailure {
		reason = "no extraction backends configured"
	}
	return ExtractedText{}, &ExtractionError{Reason: reason, AttemptedBackends: attempted, Failures: failures}
}

// invoke runs one provider under the per-backend timeout. A provider that ignores
// its context is abandoned when the deadline passes.
func (e *Engine) invoke(ctx context.Context, p ocr.Provider, doc ocr.Document) (ocr.Result, error) {
	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		res ocr.Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		var o outcome
		defer func() {
			if r := recover(); r != nil {
				o = outcome{err: fmt.Errorf("backend panic: %v", r)}
			}
			ch <- o
		}()
		o.res, o.err = p.Extract(cctx, doc)
	}()

	select {
	case o := <-ch:
		return o.res, o.err
	case <-cctx.Done():
		return ocr.Result{}, fmt.Errorf("timed out after %s: %w", e.timeout, cctx.Err())
	}
}

// accept is the shared quality predicate for every backend.
func (e *Engine) accept(res ocr.Result) (bool, string) {
	if res.LowConfidence {
		return false, fmt.Sprintf("low confidence (%.2f)", res.Confidence)
	}
	total := nonSpace(res.Pages)
	if total == 0 || len(res.Pages) == 0 {
		return false, ReasonNoText
	}
	if total < e.minTextChars {
		return false, ReasonTooShort
	}
	if total/len(res.Pages) < e.minCharsPerPage {
		return false, fmt.Sprintf("too little text per page (%d chars over %d pages)", total, len(res.Pages))
	}
	return true, ""
}

func nonSpace(pages []string) int {
	n := 0
	for _, pg := range pages {
		for _, r := range pg {
			if !unicode.IsSpace(r) {
				n++
			}
		}
	}
	return n
}
