package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/contract-analyzer/constants"
	"github.com/joseph-ayodele/contract-analyzer/internal/analysis"
	"github.com/joseph-ayodele/contract-analyzer/internal/async"
	"github.com/joseph-ayodele/contract-analyzer/internal/common"
	"github.com/joseph-ayodele/contract-analyzer/internal/entity"
	"github.com/joseph-ayodele/contract-analyzer/internal/extract"
	"github.com/joseph-ayodele/contract-analyzer/internal/llm"
	"github.com/joseph-ayodele/contract-analyzer/internal/llm/mock"
	"github.com/joseph-ayodele/contract-analyzer/internal/ocr"
	"github.com/joseph-ayodele/contract-analyzer/internal/pipeline"
	"github.com/joseph-ayodele/contract-analyzer/internal/store"
)

const page = "This services agreement may be ended early by either party. Termination Fee: $50,000 payable on exit."

const validAnalysis = `{"summary": "Exit fee.", "parties": [{"name": "Acme", "role": "client"}], "clauses": [{
  "clause_type": "Termination", "exact_text": "Termination Fee: $50,000",
  "risk_factors": {"financial_impact": 90, "business_disruption": 50, "legal_risk": 40, "likelihood": 80, "mitigation_difficulty": 30}}]}`

func newService(t *testing.T, backend llm.Provider, maxBytes int64) (*Service, *store.Store) {
	t.Helper()
	st := store.New(nil)
	engine := extract.NewEngine([]ocr.Provider{ocr.NewMockPages(page)}, nil)
	client := analysis.NewClient(backend, analysis.Config{
		Retry: analysis.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1},
	}, nil)
	orch := pipeline.NewOrchestrator(st, engine, client, nil, nil)
	q := async.NewProcessorQueue(orch, nil, async.WithWorkers(2), async.WithProcessTimeout(5*time.Second))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		q.Shutdown(ctx)
	})
	return NewService(st, q, nil, maxBytes, nil), st
}

// waitTerminal polls like an external caller and checks the observed status order.
func waitTerminal(t *testing.T, svc *Service, id uuid.UUID) entity.StatusView {
	t.Helper()
	var last entity.StatusView
	lastProgress := -1
	require.Eventually(t, func() bool {
		v, err := svc.Status(id)
		if !assert.NoError(t, err) {
			return false
		}
		assert.GreaterOrEqual(t, v.ProgressPercent, lastProgress, "progress never goes back within an attempt")
		assert.Equal(t, v.Status == constants.JobStatusComplete, v.Result != nil)
		assert.Equal(t, v.Status == constants.JobStatusError, v.ErrorMessage != nil)
		lastProgress = v.ProgressPercent
		last = v
		return v.Status.Terminal()
	}, 5*time.Second, 2*time.Millisecond)
	return last
}

func TestSubmitAndPollToComplete(t *testing.T) {
	svc, _ := newService(t, mock.NewScripted(mock.Step{Content: validAnalysis}), 1<<20)

	id, err := svc.Submit(context.Background(), SubmitRequest{OwnerRef: "alice", Filename: "uploads/msa.txt", Content: []byte(page)})
	require.NoError(t, err)

	v := waitTerminal(t, svc, id)
	assert.Equal(t, constants.JobStatusComplete, v.Status)
	assert.Equal(t, 100, v.ProgressPercent)
	require.NotNil(t, v.Result)
	assert.Equal(t, 62.5, v.Result.OverallRiskScore)
	require.Len(t, v.Result.Clauses, 1)
	assert.NotNil(t, v.Result.Clauses[0].Location)

	list := svc.List("alice")
	require.Len(t, list, 1)
	assert.Equal(t, "msa.txt", list[0].Filename)
}

func TestSubmitRejectsOversizedDocumentBeforeCreatingJob(t *testing.T) {
	svc, st := newService(t, mock.NewScripted(mock.Step{Content: validAnalysis}), 10)

	_, err := svc.Submit(context.Background(), SubmitRequest{OwnerRef: "alice", Filename: "big.pdf", Content: make([]byte, 11)})
	var sizeErr *common.SizeLimitError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, int64(10), sizeErr.Limit)
	assert.Equal(t, int64(11), sizeErr.Size)
	assert.Empty(t, st.List("alice"))
}

func TestSubmitValidation(t *testing.T) {
	svc, _ := newService(t, mock.NewScripted(mock.Step{Content: validAnalysis}), 1<<20)
	tests := []struct {
		name string
		req  SubmitRequest
	}{
		{name: "missing owner", req: SubmitRequest{Filename: "a.pdf", Content: []byte("x")}},
		{name: "missing filename", req: SubmitRequest{OwnerRef: "alice", Content: []byte("x")}},
		{name: "empty document", req: SubmitRequest{OwnerRef: "alice", Filename: "a.pdf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tt.req)
			assert.ErrorIs(t, err, common.ErrInvalidInput)
		})
	}
}

func TestRetryOfCompleteJobIsRejected(t *testing.T) {
	svc, _ := newService(t, mock.NewScripted(mock.Step{Content: validAnalysis}), 1<<20)
	id, err := svc.Submit(context.Background(), SubmitRequest{OwnerRef: "alice", Filename: "msa.txt", Content: []byte(page)})
	require.NoError(t, err)
	before := waitTerminal(t, svc, id)
	require.Equal(t, constants.JobStatusComplete, before.Status)

	err = svc.Retry(context.Background(), id)
	assert.ErrorIs(t, err, common.ErrInvalidState)

	after, err := svc.Status(id)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRetryFailedJob(t *testing.T) {
	backend := mock.NewScripted(
		mock.Step{Err: &llm.ProviderError{Provider: "scripted", StatusCode: 401, Permanent: true, Err: assert.AnError}},
		mock.Step{Content: validAnalysis},
	)
	svc, _ := newService(t, backend, 1<<20)
	id, err := svc.Submit(context.Background(), SubmitRequest{OwnerRef: "alice", Filename: "msa.txt", Content: []byte(page)})
	require.NoError(t, err)

	v := waitTerminal(t, svc, id)
	require.Equal(t, constants.JobStatusError, v.Status)
	assert.Contains(t, *v.ErrorMessage, "unavailable")

	require.NoError(t, svc.Retry(context.Background(), id))
	v = waitTerminal(t, svc, id)
	assert.Equal(t, constants.JobStatusComplete, v.Status)
}

func TestStatusAndDeleteUnknownJob(t *testing.T) {
	svc, _ := newService(t, mock.NewScripted(mock.Step{Content: validAnalysis}), 1<<20)

	_, err := svc.Status(uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.NoError(t, svc.Delete(context.Background(), uuid.New()))
	assert.ErrorIs(t, svc.Retry(context.Background(), uuid.New()), common.ErrNotFound)
}

func TestDeleteRemovesJob(t *testing.T) {
	svc, _ := newService(t, mock.NewScripted(mock.Step{Content: validAnalysis}), 1<<20)
	id, err := svc.Submit(context.Background(), SubmitRequest{OwnerRef: "alice", Filename: "msa.txt", Content: []byte(page)})
	require.NoError(t, err)
	waitTerminal(t, svc, id)

	require.NoError(t, svc.Delete(context.Background(), id))
	require.NoError(t, svc.Delete(context.Background(), id))
	_, err = svc.Status(id)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Empty(t, svc.List("alice"))
}

func TestExport(t *testing.T) {
	svc, _ := newService(t, mock.NewScripted(mock.Step{Content: validAnalysis}), 1<<20)
	id, err := svc.Submit(context.Background(), SubmitRequest{OwnerRef: "alice", Filename: "msa.txt", Content: []byte(page)})
	require.NoError(t, err)
	waitTerminal(t, svc, id)

	data, name, err := svc.Export(id)
	require.NoError(t, err)
	assert.Equal(t, "msa-risk-report.xlsx", name)
	assert.NotEmpty(t, data)
}

type stuckProcessor chan struct{}

func (p stuckProcessor) Process(ctx context.Context, _ uuid.UUID) error {
	select {
	case <-p:
	case <-ctx.Done():
	}
	return nil
}

func TestSubmitWithFullQueueFailsJobImmediately(t *testing.T) {
	release := make(chan struct{})
	q := async.NewProcessorQueue(stuckProcessor(release), nil, async.WithWorkers(1), async.WithQueueSize(1))
	defer func() {
		close(release)
		q.Shutdown(context.Background())
	}()
	// one job held by the worker, one waiting in the only slot
	require.NoError(t, q.Enqueue(context.Background(), async.Job{JobID: uuid.New()}))
	require.Eventually(t, func() bool {
		return q.Enqueue(context.Background(), async.Job{JobID: uuid.New()}) == nil
	}, time.Second, time.Millisecond)

	svc := NewService(store.New(nil), q, nil, 1<<20, nil)
	id, err := svc.Submit(context.Background(), SubmitRequest{OwnerRef: "alice", Filename: "msa.txt", Content: []byte(page)})
	require.NoError(t, err)

	v, err := svc.Status(id)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusError, v.Status)
	require.NotNil(t, v.ErrorMessage)
	assert.Equal(t, "could not queue job: queue is full", *v.ErrorMessage)
}

type closedQueue struct{}

func (closedQueue) Enqueue(context.Context, async.Job) error { return async.ErrQueueClosed }
func (closedQueue) Shutdown(context.Context)                 {}

func TestSubmitWhenQueueRefusesFailsJob(t *testing.T) {
	st := store.New(nil)
	svc := NewService(st, closedQueue{}, nil, 1<<20, nil)

	id, err := svc.Submit(context.Background(), SubmitRequest{OwnerRef: "alice", Filename: "msa.txt", Content: []byte(page)})
	require.NoError(t, err)
	v, err := svc.Status(id)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusError, v.Status)
	assert.Contains(t, *v.ErrorMessage, "could not queue job")

	_, _, err = svc.Export(id)
	assert.ErrorIs(t, err, common.ErrInvalidState)
}
