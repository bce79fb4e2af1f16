package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/contract-analyzer/internal/analysis"
	"github.com/joseph-ayodele/contract-analyzer/internal/common"
	"github.com/joseph-ayodele/contract-analyzer/internal/extract"
	"github.com/joseph-ayodele/contract-analyzer/internal/llm"
	"github.com/joseph-ayodele/contract-analyzer/internal/llm/gemini"
	"github.com/joseph-ayodele/contract-analyzer/internal/llm/mock"
	"github.com/joseph-ayodele/contract-analyzer/internal/llm/openai"
	"github.com/joseph-ayodele/contract-analyzer/internal/ocr"
)

// analysisStack is everything between raw document bytes and a validated analysis.
type analysisStack struct {
	engine   *extract.Engine
	client   *analysis.Client
	provider llm.Provider
	closers  []func() error
}

func (a *analysisStack) Close() {
	for _, c := range a.closers {
		_ = c()
	}
}

func buildAnalysisStack(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*analysisStack, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ocrCfg := ocr.Config{
		Pdftotext:           cfg.OCR.Pdftotext,
		Pdftoppm:            cfg.OCR.Pdftoppm,
		Tesseract:           cfg.OCR.Tesseract,
		TesseractLang:       cfg.OCR.TesseractLang,
		TessdataDir:         cfg.OCR.TessdataDir,
		DPI:                 cfg.OCR.DPI,
		MaxPages:            cfg.OCR.MaxPages,
		PSM:                 cfg.OCR.PSM,
		OEM:                 cfg.OCR.OEM,
		ConfidenceThreshold: float32(cfg.OCR.ConfidenceThreshold),
		MockText:            cfg.Extraction.MockText,
	}
	backends := cfg.Extraction.Backends
	if cfg.OfflineMode {
		backends = append(append([]string{}, backends...), "mock")
	}
	providers, err := ocr.NewProviders(backends, ocrCfg, ocr.NewExecRunner(logger), logger)
	if err != nil {
		return nil, err
	}
	engine := extract.NewEngine(providers, logger,
		extract.WithBackendTimeout(cfg.Extraction.BackendTimeout),
		extract.WithMinCharsPerPage(cfg.Extraction.MinCharsPerPage),
		extract.WithMinTextChars(cfg.Extraction.MinTextChars),
	)

	stack := &analysisStack{engine: engine}
	provider, closer, err := newAnalysisProvider(ctx, cfg.Analysis, logger)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		stack.closers = append(stack.closers, closer)
	}
	stack.provider = provider
	stack.client = analysis.NewClient(provider, analysis.Config{
		ChunkChars:          cfg.Analysis.ChunkChars,
		ChunkOverlap:        cfg.Analysis.ChunkOverlap,
		MaxConcurrentChunks: cfg.Analysis.MaxConcurrentChunks,
		MaxClauses:          cfg.Analysis.MaxClauses,
		CallTimeout:         cfg.Analysis.Timeout,
		Retry: analysis.RetryConfig{
			MaxAttempts:       cfg.Analysis.MaxAttempts,
			InitialBackoff:    cfg.Analysis.InitialBackoff,
			MaxBackoff:        cfg.Analysis.MaxBackoff,
			BackoffMultiplier: 2,
			JitterFraction:    0.2,
		},
	}, logger)
	logger.Info("app.analysis.configured",
		"provider", provider.Name(),
		"backends", backends,
	)
	return stack, nil
}

// newAnalysisProvider picks the language model backend. The returned closer may be nil.
func newAnalysisProvider(ctx context.Context, cfg common.AnalysisConfig, logger *slog.Logger) (llm.Provider, func() error, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
			JSONMode:    true,
		}, logger), nil, nil
	case "deepseek":
		return openai.NewDeepSeekClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
			JSONMode:    true,
		}, logger), nil, nil
	case "gemini":
		c, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	case "mock":
		return mock.NewProvider(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown analysis provider %q", cfg.Provider)
	}
}
