package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/ledongthuc/pdf"

	"github.com/joseph-ayodele/contract-analyzer/constants"
)

// PDFTextProvider reads the embedded text layer of a PDF page by page.
type PDFTextProvider struct {
	logger *slog.Logger
}

func (p *PDFTextProvider) Name() string { return "pdf" }

func (p *PDFTextProvider) Extract(ctx context.Context, doc Document) (res Result, err error) {
	if doc.Format != constants.FormatPDF {
		return Result{}, ErrUnsupportedFormat
	}
	// the parser panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(doc.Content), int64(len(doc.Content)))
	if err != nil {
		return Result{}, fmt.Errorf("open pdf: %w", err)
	}
	n := r.NumPage()
	pages := make([]string, 0, n)
	var warns []string
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		txt, err := page.GetPlainText(nil)
		if err != nil {
			warns = append(warns, fmt.Sprintf("page %d: %v", i, err))
			pages = append(pages, "")
			continue
		}
		pages = append(pages, Normalize(txt))
	}
	p.logger.Debug("ocr.pdf_text.ok", "pages", n, "warnings", len(warns))
	return Result{Pages: pages, Method: "pdf-text", Confidence: 1, Warnings: warns}, nil
}
