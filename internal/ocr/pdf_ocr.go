package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joseph-ayodele/contract-analyzer/constants"
)

// PdftotextProvider shells out to poppler's pdftotext. Pages are split on form feeds.
type PdftotextProvider struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func (p *PdftotextProvider) Name() string { return "pdftotext" }

func (p *PdftotextProvider) Extract(ctx context.Context, doc Document) (Result, error) {
	if doc.Format != constants.FormatPDF {
		return Result{}, ErrUnsupportedFormat
	}
	path, cleanup, err := writeTemp(doc, "pdf")
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := p.runner.Run(ctx, p.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return Result{Warnings: []string{truncate(string(errb), 512)}}, fmt.Errorf("pdftotext: %w", err)
	}
	raw := strings.Split(string(out), "\f")
	// pdftotext terminates the last page with a form feed too
	if len(raw) > 1 && strings.TrimSpace(raw[len(raw)-1]) == "" {
		raw = raw[:len(raw)-1]
	}
	pages := make([]string, len(raw))
	for i, pg := range raw {
		pages[i] = Normalize(pg)
	}
	return Result{Pages: pages, Method: "pdftotext", Confidence: 1}, nil
}

// rasterizePDF renders each page to PNG with pdftoppm and returns the images in page order.
func rasterizePDF(ctx context.Context, r Runner, cfg Config, path string) ([]string, func(), error) {
	tmpDir, err := os.MkdirTemp("", "ca-pp-*")
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = os.RemoveAll(tmpDir) }

	prefix := filepath.Join(tmpDir, "page")
	args := []string{"-r", fmt.Sprintf("%d", cfg.DPI), "-png"}
	if cfg.MaxPages > 0 {
		args = append(args, "-l", fmt.Sprintf("%d", cfg.MaxPages))
	}
	args = append(args, path, prefix)
	// pdftoppm -r 300 -png [-l N] <in.pdf> <tmp/page>
	if _, errb, err := r.Run(ctx, cfg.Pdftoppm, args...); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 512))
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	// pdftoppm zero-pads page numbers to a common width, so lexical order is page order
	sort.Strings(matches)
	if len(matches) == 0 {
		cleanup()
		return nil, nil, fmt.Errorf("pdftoppm produced no images")
	}
	return matches, cleanup, nil
}
