package ocr

import (
	"regexp"
	"strings"
	"unicode"
)

var reLegalTerms = regexp.MustCompile(`\b(agreement|party|parties|shall|term|terminat\w*|liabil\w*|payment|hereby|clause|section)\b`)

// heuristicConfidence scores decoded text by how word-like it is, with a small
// boost for contract vocabulary. Returns 0..1.
func heuristicConfidence(txt string) float32 {
	tokens := strings.Fields(txt)
	if len(tokens) == 0 {
		return 0
	}
	var wordLike int
	for _, t := range tokens {
		if isWordLike(t) {
			wordLike++
		}
	}
	score := 0.8 * float32(wordLike) / float32(len(tokens))
	if reLegalTerms.MatchString(strings.ToLower(txt)) {
		score += 0.15
	}
	if len(tokens) > 40 {
		score += 0.05
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// isWordLike accepts tokens that are mostly letters or digits, trimming surrounding punctuation.
func isWordLike(tok string) bool {
	tok = strings.TrimFunc(tok, unicode.IsPunct)
	if tok == "" {
		return false
	}
	var good, total int
	for _, r := range tok {
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '$' || r == '%' || r == '-' {
			good++
		}
	}
	return float32(good)/float32(total) >= 0.8
}
