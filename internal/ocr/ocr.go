package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/contract-analyzer/constants"
)

// ErrUnsupportedFormat is returned by a provider that does not handle the document's format.
var ErrUnsupportedFormat = errors.New("unsupported document format")

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI for scanned PDFs, default 300
	MaxPages      int    // 0 = no limit
	TessdataDir   string

	PSM int // e.g., 6 is good for uniform block of text
	OEM int // 1 = LSTM; leave 0 to use default

	// ConfidenceThreshold below which OCR output is flagged low confidence, default 0.6
	ConfidenceThreshold float32

	// MockText is served by the mock provider; empty uses a built-in sample contract.
	MockText string
}

// Document is the raw input handed to every provider in the chain.
type Document struct {
	Filename string
	Content  []byte
	Format   constants.DocumentFormat
}

// Result is one provider's output. Pages are in document order; page n is Pages[n-1].
type Result struct {
	Pages         []string
	Method        string
	Confidence    float32
	LowConfidence bool
	Warnings      []string
}

// Provider is one link of the extraction fallback chain.
type Provider interface {
	Name() string
	Extract(ctx context.Context, doc Document) (Result, error)
}

func (c Config) withDefaults() Config {
	if c.Pdftotext == "" {
		c.Pdftotext = "pdftotext"
	}
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.TesseractLang == "" {
		c.TesseractLang = "eng"
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = ImageConfidenceThreshold
	}
	return c
}

// NewProvider builds a provider by its configuration name.
// Known names: pdf, pdftotext, html, text, tesseract, mock.
func NewProvider(name string, cfg Config, runner Runner, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	cfg = cfg.withDefaults()
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pdf":
		return &PDFTextProvider{logger: logger}, nil
	case "pdftotext":
		return &PdftotextProvider{cfg: cfg, runner: runner, logger: logger}, nil
	case "html":
		return &HTMLProvider{}, nil
	case "text":
		return &TextProvider{}, nil
	case "tesseract":
		return &TesseractProvider{cfg: cfg, runner: runner, logger: logger}, nil
	case "mock":
		return NewMockProvider(cfg.MockText), nil
	default:
		return nil, fmt.Errorf("unknown extraction backend %q", name)
	}
}

// NewProviders builds the chain in the given order.
func NewProviders(names []string, cfg Config, runner Runner, logger *slog.Logger) ([]Provider, error) {
	out := make([]Provider, 0, len(names))
	for _, n := range names {
		p, err := NewProvider(n, cfg, runner, logger)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// writeTemp spills the document into a fresh temp dir so command-line tools can read it.
func writeTemp(doc Document, ext string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "ca-ocr-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	if e := constants.NormalizeExt(filepath.Ext(doc.Filename)); e != "" {
		ext = e
	}
	path := filepath.Join(dir, "input."+ext)
	if err := os.WriteFile(path, doc.Content, 0o600); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}
