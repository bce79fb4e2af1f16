package locate

import (
	"context"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agext/levenshtein"

	"github.com/joseph-ayodele/contract-analyzer/internal/entity"
	"github.com/joseph-ayodele/contract-analyzer/internal/extract"
)

// Method names how a quote was resolved.
type Method string

const (
	MethodExact      Method = "exact"
	MethodNormalized Method = "normalized"
	MethodFuzzy      Method = "fuzzy"
	MethodUnresolved Method = "unresolved"
)

const (
	DefaultThreshold = 0.75
	// DefaultLengthTolerance bounds candidate window lengths to quote length +/- 20%.
	DefaultLengthTolerance = 0.2
	// DefaultMaxCells caps the edit-distance table cells one fuzzy search may fill.
	DefaultMaxCells = 200_000_000
)

// plain normalized edit-distance similarity, without the common-prefix bonus
var simParams = levenshtein.NewParams().BonusScale(0)

// Match is the outcome of locating one quote. Location is nil when unresolved.
type Match struct {
	Location *entity.Location
	Method   Method
	Score    float64
}

// Locator maps quoted clause text back onto the extracted document.
type Locator struct {
	threshold float64
	tolerance float64
	maxCells  int64
}

type Option func(*Locator)

// WithThreshold sets the minimum normalized similarity a fuzzy window needs.
func WithThreshold(t float64) Option {
	return func(l *Locator) {
		if t > 0 && t <= 1 {
			l.threshold = t
		}
	}
}

// WithMaxCells bounds the work of one fuzzy search. Zero or less removes the bound.
func WithMaxCells(n int64) Option {
	return func(l *Locator) {
		l.maxCells = n
	}
}

func New(opts ...Option) *Locator {
	l := &Locator{threshold: DefaultThreshold, tolerance: DefaultLengthTolerance, maxCells: DefaultMaxCells}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Locate tries, in order: exact case-sensitive search, case-insensitive search with
// whitespace collapsed on both sides, then a sliding-window edit-distance match.
// Offsets in the result are rune offsets into fullText. When ctx ends during the
// window search the best window found so far is still judged against the threshold.
func (l *Locator) Locate(ctx context.Context, quote, fullText string, pages []extract.PageBoundary) Match {
	q := strings.TrimSpace(quote)
	if q == "" || fullText == "" {
		return Match{Method: MethodUnresolved}
	}

	if idx := strings.Index(fullText, q); idx >= 0 {
		start := utf8.RuneCountInString(fullText[:idx])
		return l.match(start, start+utf8.RuneCountInString(q), pages, MethodExact, 1)
	}

	text, toOrig := normalize(fullText)
	nq, _ := normalize(q)
	if len(nq) == 0 || len(text) == 0 {
		return Match{Method: MethodUnresolved}
	}

	if ni := runeIndex(text, nq); ni >= 0 {
		return l.match(toOrig[ni], toOrig[ni+len(nq)-1]+1, pages, MethodNormalized, 1)
	}

	s, e, score := l.fuzzy(ctx, text, nq)
	if score < l.threshold {
		return Match{Method: MethodUnresolved, Score: score}
	}
	for s < e && text[s] == ' ' {
		s++
	}
	for e > s && text[e-1] == ' ' {
		e--
	}
	return l.match(toOrig[s], toOrig[e-1]+1, pages, MethodFuzzy, score)
}

func (l *Locator) match(start, end int, pages []extract.PageBoundary, m Method, score float64) Match {
	return Match{
		Location: &entity.Location{Page: extract.PageAt(pages, start), StartOffset: start, EndOffset: end},
		Method:   m,
		Score:    score,
	}
}

type window struct {
	s, e  int
	score float64
}

type candidate struct {
	s     int
	bound float64
}

// fuzzy finds the window of text most similar to q among all starts and all lengths
// within tolerance of len(q). Starts are visited in order of a similarity upper bound
// derived from character and bigram counts, so every window that could beat the best
// so far is scored. Scoring one start computes the edit distance of q against every
// prefix of text[s:s+hi] in a single table. The search stops early when ctx is done
// or the cell budget is spent, keeping the best window found.
func (l *Locator) fuzzy(ctx context.Context, text, q []rune) (int, int, float64) {
	n, m := len(text), len(q)
	lo := int(float64(m) * (1 - l.tolerance))
	hi := int(float64(m)*(1+l.tolerance) + 0.5)
	if lo < 1 {
		lo = 1
	}
	if n < lo {
		return 0, 0, 0
	}

	cands := l.candidates(text, q, lo, hi)
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].bound > cands[j].bound })

	best := window{score: -1}
	floor := func() float64 { return max(best.score, l.threshold) }
	prev := make([]int, hi+1)
	cur := make([]int, hi+1)
	var cells int64
	for i, c := range cands {
		if c.bound < floor() {
			break
		}
		if i%64 == 0 && ctx.Err() != nil {
			break
		}
		if l.maxCells > 0 && cells >= l.maxCells {
			break
		}
		width := min(hi, n-c.s)
		cells += int64(m) * int64(width)
		k, score, ok := prefixBest(text[c.s:c.s+width], q, lo, floor(), prev, cur)
		if !ok {
			continue
		}
		if score > best.score || (score == best.score && c.s < best.s) {
			best = window{s: c.s, e: c.s + k, score: score}
		}
	}
	if best.score < 0 {
		return 0, 0, 0
	}
	// report the score the way the similarity library defines it
	best.score = levenshtein.Similarity(string(q), string(text[best.s:best.e]), simParams)
	return best.s, best.e, best.score
}

// candidates returns every start whose widest window [s, s+hi) could hold a match,
// with an upper bound on the similarity of any window beginning there. Edit distance
// is at least the number of quote characters the window lacks, and at least
// (len(q) - 1 - shared bigrams) / 2.
func (l *Locator) candidates(text, q []rune, lo, hi int) []candidate {
	n, m := len(text), len(q)
	qChars := make(map[rune]int, m)
	for _, r := range q {
		qChars[r]++
	}
	qGrams := bigrams(q)

	wChars := make(map[rune]int, hi)
	wGrams := make(map[[2]rune]int, hi)
	missing, shared := m, 0
	addChar := func(r rune, d int) {
		if d > 0 {
			if wChars[r] < qChars[r] {
				missing--
			}
			wChars[r]++
			return
		}
		wChars[r]--
		if wChars[r] < qChars[r] {
			missing++
		}
	}
	addGram := func(g [2]rune, d int) {
		if d > 0 {
			if wGrams[g] < qGrams[g] {
				shared++
			}
			wGrams[g]++
			return
		}
		wGrams[g]--
		if wGrams[g] < qGrams[g] {
			shared--
		}
	}

	out := make([]candidate, 0, n-lo+1)
	end := 0
	for s := 0; s+lo <= n; s++ {
		for end < min(s+hi, n) {
			addChar(text[end], 1)
			if end > s {
				addGram([2]rune{text[end-1], text[end]}, 1)
			}
			end++
		}
		width := end - s
		dist := max(missing, (m-1-shared+1)/2)
		bound := 1 - float64(dist)/float64(max(m, width))
		out = append(out, candidate{s: s, bound: bound})

		addChar(text[s], -1)
		if s+1 < end {
			addGram([2]rune{text[s], text[s+1]}, -1)
		}
	}
	return out
}

// prefixBest computes the edit distance between q and every prefix of w and returns
// the prefix length in [lo, len(w)] with the highest similarity. It gives up once no
// prefix can reach floor. prev and cur are scratch rows of at least len(w)+1.
func prefixBest(w, q []rune, lo int, floor float64, prev, cur []int) (int, float64, bool) {
	width, m := len(w), len(q)
	limit := (1 - floor) * float64(max(m, width))
	for k := 0; k <= width; k++ {
		prev[k] = k
	}
	for i := 1; i <= m; i++ {
		cur[0] = i
		rowMin := cur[0]
		for k := 1; k <= width; k++ {
			cost := 1
			if q[i-1] == w[k-1] {
				cost = 0
			}
			cur[k] = min(prev[k-1]+cost, prev[k]+1, cur[k-1]+1)
			rowMin = min(rowMin, cur[k])
		}
		if float64(rowMin) > limit {
			return 0, 0, false
		}
		prev, cur = cur, prev
	}

	bestK, bestScore := 0, -1.0
	for k := lo; k <= width; k++ {
		score := 1 - float64(prev[k])/float64(max(m, k))
		if score > bestScore || (score == bestScore && abs(k-m) < abs(bestK-m)) {
			bestK, bestScore = k, score
		}
	}
	if bestScore < floor {
		return 0, 0, false
	}
	return bestK, bestScore, true
}

// normalize lowercases and collapses whitespace runs to one space, trimming both ends.
// toOrig[i] is the rune offset in s of normalized rune i.
func normalize(s string) ([]rune, []int) {
	out := make([]rune, 0, len(s))
	toOrig := make([]int, 0, len(s))
	pendingSpace := -1
	i := 0
	for _, r := range s {
		if unicode.IsSpace(r) {
			if pendingSpace < 0 {
				pendingSpace = i
			}
			i++
			continue
		}
		if pendingSpace >= 0 && len(out) > 0 {
			out = append(out, ' ')
			toOrig = append(toOrig, pendingSpace)
		}
		pendingSpace = -1
		out = append(out, unicode.ToLower(r))
		toOrig = append(toOrig, i)
		i++
	}
	return out, toOrig
}

// runeIndex returns the rune index of the first occurrence of sub in s, or -1.
func runeIndex(s, sub []rune) int {
	hay, needle := string(s), string(sub)
	idx := strings.Index(hay, needle)
	if idx < 0 {
		return -1
	}
	return utf8.RuneCountInString(hay[:idx])
}

func bigrams(r []rune) map[[2]rune]int {
	out := make(map[[2]rune]int, len(r))
	for i := 0; i+1 < len(r); i++ {
		out[[2]rune{r[i], r[i+1]}]++
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
