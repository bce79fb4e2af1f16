package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/contract-analyzer/constants"
	"github.com/joseph-ayodele/contract-analyzer/internal/analysis"
	"github.com/joseph-ayodele/contract-analyzer/internal/common"
	"github.com/joseph-ayodele/contract-analyzer/internal/entity"
	"github.com/joseph-ayodele/contract-analyzer/internal/extract"
	"github.com/joseph-ayodele/contract-analyzer/internal/llm"
	"github.com/joseph-ayodele/contract-analyzer/internal/llm/mock"
	"github.com/joseph-ayodele/contract-analyzer/internal/ocr"
	"github.com/joseph-ayodele/contract-analyzer/internal/store"
)

const terminationPage = "This services agreement may be ended early by either party. Termination Fee: $50,000 payable on exit."

const terminationAnalysis = `{
  "summary": "Services agreement with an early exit fee.",
  "parties": [{"name": "Acme", "role": "client"}],
  "clauses": [{
    "clause_type": "Termination",
    "exact_text": "Termination Fee: $50,000",
    "risk_description": "Fixed fee on early exit.",
    "consequences": "Leaving costs $50,000.",
    "mitigation": "Negotiate a declining fee.",
    "risk_factors": {"financial_impact": 90, "business_disruption": 50, "legal_risk": 40, "likelihood": 80, "mitigation_difficulty": 30}
  }]
}`

// recordingStore remembers every status written so tests can check ordering.
type recordingStore struct {
	*store.Store
	mu       sync.Mutex
	statuses []constants.JobStatus
}

func (r *recordingStore) record(j entity.Job, err error) (entity.Job, error) {
	if err == nil {
		r.mu.Lock()
		r.statuses = append(r.statuses, j.Status)
		r.mu.Unlock()
	}
	return j, err
}

func (r *recordingStore) Advance(ctx context.Context, id uuid.UUID, next constants.JobStatus) (entity.Job, error) {
	return r.record(r.Store.Advance(ctx, id, next))
}

func (r *recordingStore) Complete(ctx context.Context, id uuid.UUID, res entity.DocumentResult) (entity.Job, error) {
	return r.record(r.Store.Complete(ctx, id, res))
}

func (r *recordingStore) Fail(ctx context.Context, id uuid.UUID, msg string) (entity.Job, error) {
	return r.record(r.Store.Fail(ctx, id, msg))
}

func fastRetry() analysis.RetryConfig {
	return analysis.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, BackoffMultiplier: 2}
}

func newOrchestrator(t *testing.T, providers []ocr.Provider, analysisBackend llm.Provider) (*Orchestrator, *recordingStore) {
	t.Helper()
	st := &recordingStore{Store: store.New(nil)}
	engine := extract.NewEngine(providers, nil, extract.WithBackendTimeout(time.Second))
	client := analysis.NewClient(analysisBackend, analysis.Config{Retry: fastRetry()}, nil)
	return NewOrchestrator(st, engine, client, nil, nil), st
}

func submit(t *testing.T, st *recordingStore, name string) uuid.UUID {
	t.Helper()
	job, err := st.Create(context.Background(), "owner-1", name, []byte("contract body"))
	require.NoError(t, err)
	return job.ID
}

func TestProcessTerminationFeeScores(t *testing.T) {
	o, st := newOrchestrator(t,
		[]ocr.Provider{ocr.NewMockPages("Cover page of the agreement between Acme and Globex, dated today.", terminationPage)},
		mock.NewScripted(mock.Step{Content: terminationAnalysis}),
	)
	id := submit(t, st, "msa.txt")

	require.NoError(t, o.Process(context.Background(), id))

	job, err := st.Get(id)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusComplete, job.Status)
	assert.Equal(t, 100, job.ProgressPercent)
	assert.Nil(t, job.ErrorMessage)
	require.NotNil(t, job.Result)
	require.Len(t, job.Result.Clauses, 1)

	c := job.Result.Clauses[0]
	assert.Equal(t, 62.5, c.RiskScore)
	assert.Equal(t, 62.5, job.Result.OverallRiskScore)
	require.NotNil(t, c.Location)
	assert.Equal(t, 2, c.Location.Page)
	assert.Equal(t, []entity.Party{{Name: "Acme", Role: "client"}}, job.Result.Parties)

	assert.Equal(t, []constants.JobStatus{
		constants.JobStatusExtracting,
		constants.JobStatusAnalyzing,
		constants.JobStatusComplete,
	}, st.statuses)
	assert.False(t, st.Running(id))
}

func TestProcessLocationOffsetsMatchExtractedText(t *testing.T) {
	o, st := newOrchestrator(t,
		[]ocr.Provider{ocr.NewMockPages(terminationPage)},
		mock.NewScripted(mock.Step{Content: terminationAnalysis}),
	)
	id := submit(t, st, "msa.txt")
	require.NoError(t, o.Process(context.Background(), id))

	job, err := st.Get(id)
	require.NoError(t, err)
	loc := job.Result.Clauses[0].Location
	require.NotNil(t, loc)
	runes := []rune(terminationPage)
	assert.Equal(t, "Termination Fee: $50,000", string(runes[loc.StartOffset:loc.EndOffset]))
}

func TestProcessAllBackendsEmpty(t *testing.T) {
	o, st := newOrchestrator(t,
		[]ocr.Provider{ocr.NewMockPages(""), ocr.NewMockPages("   ", "\n")},
		mock.NewScripted(mock.Step{Content: terminationAnalysis}),
	)
	id := submit(t, st, "scan.pdf")

	err := o.Process(context.Background(), id)
	var ee *extract.ExtractionError
	require.ErrorAs(t, err, &ee)

	job, err := st.Get(id)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusError, job.Status)
	assert.Nil(t, job.Result)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "extraction exhausted")
	assert.Equal(t, 30, job.ProgressPercent)
	assert.Equal(t, []constants.JobStatus{constants.JobStatusExtracting, constants.JobStatusError}, st.statuses)
}

func TestProcessMalformedAnalysisEveryAttempt(t *testing.T) {
	backend := mock.NewScripted(mock.Step{Content: `{"summary": "cut off`})
	o, st := newOrchestrator(t, []ocr.Provider{ocr.NewMockPages(terminationPage)}, backend)
	id := submit(t, st, "msa.txt")

	err := o.Process(context.Background(), id)
	var ae *analysis.AnalysisError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, analysis.ReasonInvalidSchema, ae.Reason)
	assert.Len(t, backend.Calls(), 3)

	job, err := st.Get(id)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusError, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "invalid_schema")
	assert.Nil(t, job.Result)
	assert.Equal(t, 70, job.ProgressPercent)
}

func TestProcessNoClauses(t *testing.T) {
	o, st := newOrchestrator(t,
		[]ocr.Provider{ocr.NewMockPages(terminationPage)},
		mock.NewScripted(mock.Step{Content: `{"summary": "Benign.", "parties": [], "clauses": []}`}),
	)
	id := submit(t, st, "msa.txt")
	require.NoError(t, o.Process(context.Background(), id))

	job, err := st.Get(id)
	require.NoError(t, err)
	require.NotNil(t, job.Result)
	assert.Equal(t, 0.0, job.Result.OverallRiskScore)
	assert.Empty(t, job.Result.Clauses)
}

func TestProcessUnresolvedClauseIsNotAnError(t *testing.T) {
	content := `{"summary": "s", "parties": [], "clauses": [{"clause_type": "Other", "exact_text": "words that appear nowhere in this document at all", "risk_score": 40, "risk_factors": {}}]}`
	o, st := newOrchestrator(t,
		[]ocr.Provider{ocr.NewMockPages(terminationPage)},
		mock.NewScripted(mock.Step{Content: content}),
	)
	id := submit(t, st, "msa.txt")
	require.NoError(t, o.Process(context.Background(), id))

	job, err := st.Get(id)
	require.NoError(t, err)
	require.Len(t, job.Result.Clauses, 1)
	assert.Nil(t, job.Result.Clauses[0].Location)
	assert.Equal(t, 40.0, job.Result.Clauses[0].RiskScore)
}

type panickingAnalyzer struct{}

func (panickingAnalyzer) Analyze(context.Context, string) (llm.Analysis, error) {
	panic("nil map write")
}

func TestProcessRecoversPanicAsInternalError(t *testing.T) {
	st := &recordingStore{Store: store.New(nil)}
	engine := extract.NewEngine([]ocr.Provider{ocr.NewMockPages(terminationPage)}, nil)
	o := NewOrchestrator(st, engine, panickingAnalyzer{}, nil, nil)
	id := submit(t, st, "msa.txt")

	err := o.Process(context.Background(), id)
	var ie *common.InternalError
	require.ErrorAs(t, err, &ie)

	job, err := st.Get(id)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusError, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Equal(t, "internal error: unexpected fault during analyzing", *job.ErrorMessage)
	assert.NotContains(t, *job.ErrorMessage, "nil map write")
	assert.False(t, st.Running(id))
}

func TestProcessRejectsSecondAttempt(t *testing.T) {
	o, st := newOrchestrator(t,
		[]ocr.Provider{ocr.NewMockPages(terminationPage)},
		mock.NewScripted(mock.Step{Content: terminationAnalysis}),
	)
	id := submit(t, st, "msa.txt")
	token, err := st.Claim(id)
	require.NoError(t, err)

	err = o.Process(context.Background(), id)
	assert.ErrorIs(t, err, common.ErrInvalidState)
	assert.Empty(t, st.statuses)
	assert.True(t, st.Running(id), "a rejected attempt leaves the holder's claim alone")
	st.Release(id, token)

	require.NoError(t, o.Process(context.Background(), id))
	err = o.Process(context.Background(), id)
	assert.ErrorIs(t, err, common.ErrInvalidState, "completed jobs are not reprocessed")
}

func TestProcessAfterRetry(t *testing.T) {
	backend := mock.NewScripted(
		mock.Step{Err: &llm.ProviderError{Provider: "scripted", StatusCode: 401, Permanent: true, Err: assert.AnError}},
		mock.Step{Content: terminationAnalysis},
	)
	o, st := newOrchestrator(t, []ocr.Provider{ocr.NewMockPages(terminationPage)}, backend)
	id := submit(t, st, "msa.txt")

	var ae *analysis.AnalysisError
	require.ErrorAs(t, o.Process(context.Background(), id), &ae)
	assert.Equal(t, analysis.ReasonUnavailable, ae.Reason)

	_, err := st.ResetForRetry(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, o.Process(context.Background(), id))

	job, err := st.Get(id)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusComplete, job.Status)
	assert.Equal(t, []constants.JobStatus{
		constants.JobStatusExtracting, constants.JobStatusAnalyzing, constants.JobStatusError,
		constants.JobStatusExtracting, constants.JobStatusAnalyzing, constants.JobStatusComplete,
	}, st.statuses)
}

func TestAnalyzeDocumentWithOfflineProviders(t *testing.T) {
	engine := extract.NewEngine([]ocr.Provider{ocr.NewMockProvider("")}, nil)
	client := analysis.NewClient(mock.NewProvider(), analysis.Config{Retry: fastRetry()}, nil)
	o := NewOrchestrator(store.New(nil), engine, client, nil, nil)

	res, err := o.AnalyzeDocument(context.Background(), "sample.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NotEmpty(t, res.Clauses)
	for _, c := range res.Clauses {
		assert.GreaterOrEqual(t, c.RiskScore, 0.0)
		assert.LessOrEqual(t, c.RiskScore, 100.0)
		assert.NotNil(t, c.Location, "mock clauses quote the document verbatim: %q", c.ExactText)
	}
	assert.GreaterOrEqual(t, res.OverallRiskScore, 0.0)
	assert.LessOrEqual(t, res.OverallRiskScore, 100.0)
}
