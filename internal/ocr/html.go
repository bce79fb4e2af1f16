package ocr

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/joseph-ayodele/contract-analyzer/constants"
)

// HTMLProvider extracts visible text from HTML documents as a single page.
type HTMLProvider struct{}

func (p *HTMLProvider) Name() string { return "html" }

func (p *HTMLProvider) Extract(_ context.Context, doc Document) (Result, error) {
	if doc.Format != constants.FormatHTML {
		return Result{}, ErrUnsupportedFormat
	}
	d, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Content))
	if err != nil {
		return Result{}, fmt.Errorf("parse html: %w", err)
	}
	d.Find("script, style, noscript, template, head").Remove()
	d.Find("br").ReplaceWithHtml("\n")
	d.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6, section, article").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	root := d.Find("body")
	if root.Length() == 0 {
		root = d.Selection
	}
	return Result{Pages: []string{Normalize(root.Text())}, Method: "html", Confidence: 1}, nil
}
