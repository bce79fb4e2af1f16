package analysis

import "unicode"

// Chunk is one ordered slice of the document. Start is its rune offset in the full text.
type Chunk struct {
	Index int
	Start int
	Text  string
}

// SplitChunks cuts text into chunks of at most size runes. Consecutive chunks share
// overlap runes so a clause straddling a cut appears whole in at least one chunk when
// it is shorter than the overlap. Cuts prefer whitespace in the last tenth of a chunk.
func SplitChunks(text string, size, overlap int) []Chunk {
	r := []rune(text)
	if size <= 0 || len(r) <= size {
		return []Chunk{{Index: 0, Start: 0, Text: text}}
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []Chunk
	start := 0
	for {
		end := start + size
		if end >= len(r) {
			end = len(r)
		} else if cut := lastSpace(r, start+size*9/10, end); cut > start {
			end = cut
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Start: start, Text: string(r[start:end])})
		if end == len(r) {
			return chunks
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
}

// lastSpace returns the index just after the last whitespace rune in r[from:to], or -1.
func lastSpace(r []rune, from, to int) int {
	for i := to - 1; i >= from && i >= 0; i-- {
		if unicode.IsSpace(r[i]) {
			return i + 1
		}
	}
	return -1
}
