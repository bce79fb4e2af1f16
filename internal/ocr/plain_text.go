package ocr

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/contract-analyzer/constants"
)

// TextProvider accepts UTF-8 text as is. Form feeds separate pages.
type TextProvider struct{}

func (p *TextProvider) Name() string { return "text" }

func (p *TextProvider) Extract(_ context.Context, doc Document) (Result, error) {
	if doc.Format != constants.FormatText {
		return Result{}, ErrUnsupportedFormat
	}
	if !utf8.Valid(doc.Content) || bytes.IndexByte(doc.Content, 0) >= 0 {
		return Result{}, errors.New("content is not valid utf-8 text")
	}
	raw := strings.Split(string(doc.Content), "\f")
	pages := make([]string, len(raw))
	for i, pg := range raw {
		pages[i] = Normalize(pg)
	}
	return Result{Pages: pages, Method: "text", Confidence: 1}, nil
}
