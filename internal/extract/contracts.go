package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/contract-analyzer/internal/ocr"
)

// TextExtractor turns document bytes into text with a page map.
type TextExtractor interface {
	Extract(ctx context.Context, doc ocr.Document) (ExtractedText, error)
}

// PageBoundary is the half-open character range [Start, End) of one page in FullText.
type PageBoundary struct {
	Page  int `json:"page"`
	Start int `json:"start_offset"`
	End   int `json:"end_offset"`
}

// ExtractedText is the accepted output of one extraction attempt.
// Offsets count characters (runes), not bytes.
type ExtractedText struct {
	FullText       string
	PageBoundaries []PageBoundary
	Backend        string
	Method         string
	Confidence     float32
}

// PageAt returns the page whose range contains offset. Offsets falling in the
// separator between two pages belong to the following page.
func (t ExtractedText) PageAt(offset int) int {
	return PageAt(t.PageBoundaries, offset)
}

// PageAt resolves a character offset against an ordered page map. It returns 1 for an empty map.
func PageAt(pages []PageBoundary, offset int) int {
	if len(pages) == 0 {
		return 1
	}
	for _, pb := range pages {
		if offset < pb.End {
			return pb.Page
		}
	}
	return pages[len(pages)-1].Page
}

// pageSeparator joins pages in FullText and belongs to no page.
const pageSeparator = "\n\n"

// assemble joins page texts and records where each page starts and ends.
func assemble(pages []string) (string, []PageBoundary) {
	var b strings.Builder
	bounds := make([]PageBoundary, 0, len(pages))
	offset := 0
	for i, pg := range pages {
		if i > 0 {
			b.WriteString(pageSeparator)
			offset += len([]rune(pageSeparator))
		}
		n := len([]rune(pg))
		b.WriteString(pg)
		bounds = append(bounds, PageBoundary{Page: i + 1, Start: offset, End: offset + n})
		offset += n
	}
	return b.String(), bounds
}

// ExtractionError means every backend failed or none produced acceptable text.
type ExtractionError struct {
	Reason            string
	AttemptedBackends []string
	Failures          []string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction exhausted: %s (attempted: %s)", e.Reason, strings.Join(e.AttemptedBackends, ", "))
}
