package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/contract-analyzer/internal/ocr"
)

type stubProvider struct {
	name  string
	fn    func(ctx context.Context) (ocr.Result, error)
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Extract(ctx context.Context, _ ocr.Document) (ocr.Result, error) {
	s.calls++
	return s.fn(ctx)
}

func pagesResult(pages ...string) func(context.Context) (ocr.Result, error) {
	return func(context.Context) (ocr.Result, error) {
		return ocr.Result{Pages: pages, Method: "stub", Confidence: 1}, nil
	}
}

const longPage = "This agreement may be terminated by either party on thirty days written notice."

func TestEngineReturnsFirstAcceptedResult(t *testing.T) {
	empty := &stubProvider{name: "structured", fn: pagesResult("")}
	good := &stubProvider{name: "raw", fn: pagesResult(longPage, "Termination Fee: $50,000 payable on exit by the client.")}
	never := &stubProvider{name: "ocr", fn: pagesResult(longPage)}

	e := NewEngine([]ocr.Provider{empty, good, never}, nil)
	got, err := e.Extract(context.Background(), ocr.Document{})
	require.NoError(t, err)

	assert.Equal(t, "raw", got.Backend)
	assert.Equal(t, 0, never.calls)
	require.Len(t, got.PageBoundaries, 2)
	first, second := got.PageBoundaries[0], got.PageBoundaries[1]
	assert.Equal(t, PageBoundary{Page: 1, Start: 0, End: len([]rune(longPage))}, first)
	assert.Equal(t, first.End+2, second.Start)
	assert.Equal(t, len([]rune(got.FullText)), second.End)
}

func TestEngineAllBackendsEmpty(t *testing.T) {
	e := NewEngine([]ocr.Provider{
		&stubProvider{name: "pdf", fn: pagesResult("")},
		&stubProvider{name: "text", fn: pagesResult("   ")},
		&stubProvider{name: "tesseract", fn: pagesResult()},
	}, nil)

	_, err := e.Extract(context.Background(), ocr.Document{})
	var exErr *ExtractionError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, ReasonNoText, exErr.Reason)
	assert.Equal(t, []string{"pdf", "text", "tesseract"}, exErr.AttemptedBackends)
	assert.Contains(t, err.Error(), "extraction exhausted")
}

func TestEngineRejectsShortText(t *testing.T) {
	e := NewEngine([]ocr.Provider{&stubProvider{name: "text", fn: pagesResult("Too short.")}}, nil)
	_, err := e.Extract(context.Background(), ocr.Document{})
	var exErr *ExtractionError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, ReasonTooShort, exErr.Reason)
}

func TestEngineSkipsLowConfidence(t *testing.T) {
	noisy := &stubProvider{name: "tesseract", fn: func(context.Context) (ocr.Result, error) {
		return ocr.Result{Pages: []string{longPage}, Confidence: 0.2, LowConfidence: true}, nil
	}}
	fallback := &stubProvider{name: "mock", fn: pagesResult(longPage)}

	got, err := NewEngine([]ocr.Provider{noisy, fallback}, nil).Extract(context.Background(), ocr.Document{})
	require.NoError(t, err)
	assert.Equal(t, "mock", got.Backend)
}

func TestEngineTimeoutMovesToNextBackend(t *testing.T) {
	slow := &stubProvider{name: "slow", fn: func(ctx context.Context) (ocr.Result, error) {
		<-ctx.Done()
		return ocr.Result{}, ctx.Err()
	}}
	stuck := &stubProvider{name: "stuck", fn: func(context.Context) (ocr.Result, error) {
		time.Sleep(200 * time.Millisecond)
		return ocr.Result{Pages: []string{longPage}}, nil
	}}
	fast := &stubProvider{name: "fast", fn: pagesResult(longPage)}

	e := NewEngine([]ocr.Provider{slow, stuck, fast}, nil, WithBackendTimeout(20*time.Millisecond))
	got, err := e.Extract(context.Background(), ocr.Document{})
	require.NoError(t, err)
	assert.Equal(t, "fast", got.Backend)
}

func TestEngineFailuresAreExhaustion(t *testing.T) {
	boom := &stubProvider{name: "pdf", fn: func(context.Context) (ocr.Result, error) {
		return ocr.Result{}, errors.New("corrupt xref")
	}}
	panicky := &stubProvider{name: "html", fn: func(context.Context) (ocr.Result, error) {
		panic("nil selection")
	}}
	_, err := NewEngine([]ocr.Provider{boom, panicky}, nil).Extract(context.Background(), ocr.Document{})
	var exErr *ExtractionError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, ReasonExhausted, exErr.Reason)
	require.Len(t, exErr.Failures, 2)
	assert.Contains(t, exErr.Failures[1], "backend panic")
}

func TestPageAt(t *testing.T) {
	_, bounds := assemble([]string{"aaaa", "bbb", "cc"})
	// aaaa[0,4) sep bbb[6,9) sep cc[11,13)
	assert.Equal(t, 1, PageAt(bounds, 0))
	assert.Equal(t, 1, PageAt(bounds, 3))
	assert.Equal(t, 2, PageAt(bounds, 4))
	assert.Equal(t, 2, PageAt(bounds, 8))
	assert.Equal(t, 3, PageAt(bounds, 11))
	assert.Equal(t, 3, PageAt(bounds, 99))
	assert.Equal(t, 1, PageAt(nil, 5))
}
