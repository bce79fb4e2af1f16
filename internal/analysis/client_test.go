package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/contract-analyzer/internal/llm"
	"github.com/joseph-ayodele/contract-analyzer/internal/llm/mock"
)

const validResponse = `{"summary":"s","parties":[{"name":"Acme","role":"client"}],"clauses":[{"clause_type":"Termination","exact_text":"Termination Fee: $50,000","risk_factors":{"financial_impact":90}}]}`

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, BackoffMultiplier: 2}
}

type funcProvider func(ctx context.Context, req llm.Request) ([]byte, error)

func (f funcProvider) Name() string { return "func" }

func (f funcProvider) Invoke(ctx context.Context, req llm.Request) ([]byte, error) {
	return f(ctx, req)
}

func TestAnalyzeRetriesTransientFailures(t *testing.T) {
	p := mock.NewScripted(
		mock.Step{Err: &llm.ProviderError{Provider: "x", StatusCode: 429, Err: errors.New("rate limited")}},
		mock.Step{Content: validResponse},
	)
	c := NewClient(p, Config{Retry: fastRetry()}, nil)

	got, err := c.Analyze(context.Background(), "Termination Fee: $50,000")
	require.NoError(t, err)
	require.Len(t, got.Clauses, 1)
	assert.Len(t, p.Calls(), 2)
}

func TestAnalyzeStopsOnPermanentFailure(t *testing.T) {
	p := mock.NewScripted(mock.Step{Err: &llm.ProviderError{Provider: "x", StatusCode: 401, Permanent: true, Err: errors.New("bad key")}})
	c := NewClient(p, Config{Retry: fastRetry()}, nil)

	_, err := c.Analyze(context.Background(), "text")
	var aErr *AnalysisError
	require.ErrorAs(t, err, &aErr)
	assert.Equal(t, ReasonUnavailable, aErr.Reason)
	assert.Len(t, p.Calls(), 1)
}

func TestAnalyzeExhaustedTransientIsUnavailable(t *testing.T) {
	p := mock.NewScripted(mock.Step{Err: &llm.ProviderError{Provider: "x", Err: errors.New("connection reset")}})
	c := NewClient(p, Config{Retry: fastRetry()}, nil)

	_, err := c.Analyze(context.Background(), "text")
	var aErr *AnalysisError
	require.ErrorAs(t, err, &aErr)
	assert.Equal(t, ReasonUnavailable, aErr.Reason)
	assert.Len(t, p.Calls(), 3)
}

func TestAnalyzeMalformedEveryTimeIsInvalidSchema(t *testing.T) {
	p := mock.NewScripted(mock.Step{Content: `{"summary": "oops"`})
	c := NewClient(p, Config{Retry: fastRetry()}, nil)

	_, err := c.Analyze(context.Background(), "text")
	var aErr *AnalysisError
	require.ErrorAs(t, err, &aErr)
	assert.Equal(t, ReasonInvalidSchema, aErr.Reason)
	assert.Contains(t, err.Error(), "invalid_schema")
	assert.Len(t, p.Calls(), 3)
}

func TestAnalyzeCallTimeoutIsRetried(t *testing.T) {
	calls := 0
	p := funcProvider(func(ctx context.Context, req llm.Request) ([]byte, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return nil, &llm.ProviderError{Provider: "func", Err: ctx.Err()}
		}
		return []byte(validResponse), nil
	})
	c := NewClient(p, Config{Retry: fastRetry(), CallTimeout: 10 * time.Millisecond}, nil)

	_, err := c.Analyze(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestAnalyzeChunksMergeInIndexOrder(t *testing.T) {
	// later chunks answer first; the merge must still follow chunk order
	p := funcProvider(func(ctx context.Context, req llm.Request) ([]byte, error) {
		time.Sleep(time.Duration(req.ChunkCount-req.ChunkIndex) * 5 * time.Millisecond)
		shared := `{"clause_type":"Liability","exact_text":"Unlimited   liability applies.","risk_factors":{}}`
		own := fmt.Sprintf(`{"clause_type":"Payment","exact_text":"clause %d","risk_factors":{}}`, req.ChunkIndex)
		return []byte(fmt.Sprintf(`{"summary":"part %d","parties":[{"name":"Acme","role":""},{"name":"ACME ","role":"client"}],"clauses":[%s,%s]}`,
			req.ChunkIndex, own, shared)), nil
	})
	text := strings.Repeat("word ", 500)
	c := NewClient(p, Config{ChunkChars: 800, ChunkOverlap: 100, MaxConcurrentChunks: 4, Retry: fastRetry()}, nil)

	got, err := c.Analyze(context.Background(), text)
	require.NoError(t, err)

	n := len(SplitChunks(text, 800, 100))
	require.Greater(t, n, 2)
	require.Len(t, got.Clauses, n+1)
	assert.Equal(t, "clause 0", got.Clauses[0].ExactText)
	assert.Equal(t, "Unlimited   liability applies.", got.Clauses[1].ExactText)
	for i := 1; i < n; i++ {
		assert.Equal(t, fmt.Sprintf("clause %d", i), got.Clauses[i+1].ExactText)
	}
	require.Len(t, got.Parties, 1)
	assert.Equal(t, "client", got.Parties[0].Role)
	assert.True(t, strings.HasPrefix(got.Summary, "part 0\n\npart 1"))
}

func TestAnalyzeCapsClausesPerChunk(t *testing.T) {
	var clauses []string
	for i := 0; i < 5; i++ {
		clauses = append(clauses, fmt.Sprintf(`{"clause_type":"x","exact_text":"c%d","risk_factors":{}}`, i))
	}
	p := mock.NewScripted(mock.Step{Content: `{"summary":"s","parties":[],"clauses":[` + strings.Join(clauses, ",") + `]}`})
	got, err := NewClient(p, Config{MaxClauses: 3, Retry: fastRetry()}, nil).Analyze(context.Background(), "t")
	require.NoError(t, err)
	assert.Len(t, got.Clauses, 3)
}

func TestSplitChunks(t *testing.T) {
	assert.Len(t, SplitChunks("short", 100, 10), 1)

	text := strings.Repeat("abcdefghi ", 100) // 1000 runes
	chunks := SplitChunks(text, 300, 50)
	require.Greater(t, len(chunks), 3)
	runes := []rune(text)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.LessOrEqual(t, len([]rune(ch.Text)), 300)
		assert.Equal(t, string(runes[ch.Start:ch.Start+len([]rune(ch.Text))]), ch.Text)
		if i > 0 {
			prev := chunks[i-1]
			assert.Equal(t, prev.Start+len([]rune(prev.Text))-50, ch.Start, "chunks overlap")
		}
	}
	last := chunks[len(chunks)-1]
	assert.Equal(t, len(runes), last.Start+len([]rune(last.Text)))
}

func TestRetryWithBackoffRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := retryWithBackoff(ctx, RetryConfig{MaxAttempts: 5, InitialBackoff: time.Hour}, func(int) error {
		attempts++
		cancel()
		return errors.New("transient")
	})
	assert.EqualError(t, err, "transient")
	assert.Equal(t, 1, attempts)
}
