package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/contract-analyzer/constants"
	"github.com/joseph-ayodele/contract-analyzer/internal/common"
	"github.com/joseph-ayodele/contract-analyzer/internal/entity"
	"github.com/joseph-ayodele/contract-analyzer/internal/extract"
	"github.com/joseph-ayodele/contract-analyzer/internal/llm"
	"github.com/joseph-ayodele/contract-analyzer/internal/locate"
	"github.com/joseph-ayodele/contract-analyzer/internal/ocr"
	"github.com/joseph-ayodele/contract-analyzer/internal/risk"
)

// JobStore is the slice of the job state store the orchestrator writes through.
type JobStore interface {
	Claim(id uuid.UUID) (uint64, error)
	Release(id uuid.UUID, token uint64)
	Get(id uuid.UUID) (entity.Job, error)
	Content(id uuid.UUID) ([]byte, error)
	Advance(ctx context.Context, id uuid.UUID, next constants.JobStatus) (entity.Job, error)
	Complete(ctx context.Context, id uuid.UUID, result entity.DocumentResult) (entity.Job, error)
	Fail(ctx context.Context, id uuid.UUID, message string) (entity.Job, error)
}

// Analyzer turns extracted text into a validated analysis.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (llm.Analysis, error)
}

// ClauseLocator resolves a quote onto the extracted text.
type ClauseLocator interface {
	Locate(ctx context.Context, quote, fullText string, pages []extract.PageBoundary) locate.Match
}

// Orchestrator drives one job through extraction, analysis, location and scoring.
// It is the only writer of job status.
type Orchestrator struct {
	store     JobStore
	extractor extract.TextExtractor
	analyzer  Analyzer
	locator   ClauseLocator
	logger    *slog.Logger
}

func NewOrchestrator(st JobStore, ex extract.TextExtractor, an Analyzer, loc ClauseLocator, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = locate.New()
	}
	return &Orchestrator{store: st, extractor: ex, analyzer: an, locator: loc, logger: logger}
}

// Process runs a claimed job to a terminal state. Stage failures are recorded on the
// job as its error message and also returned. A job that is already being processed
// or is not waiting in uploaded is left untouched.
func (o *Orchestrator) Process(ctx context.Context, id uuid.UUID) error {
	token, err := o.store.Claim(id)
	if err != nil {
		o.logger.Warn("pipeline.job.claim.rejected", "job_id", id, "error", err)
		return err
	}
	defer o.store.Release(id, token)

	start := time.Now()
	job, err := o.store.Get(id)
	if err != nil {
		return err
	}
	log := o.logger.With("job_id", id, "filename", job.Filename)
	log.Info("pipeline.job.start")

	advance := func(status constants.JobStatus) error {
		_, err := o.store.Advance(ctx, id, status)
		return err
	}
	result, err := o.run(ctx, log, job.Filename, func() ([]byte, error) { return o.store.Content(id) }, advance)
	if err != nil {
		// the stage deadline may have passed; the failure still has to be recorded
		if _, ferr := o.store.Fail(context.WithoutCancel(ctx), id, err.Error()); ferr != nil {
			log.Error("pipeline.job.fail.record_failed", "error", ferr, "stage_error", err)
		}
		log.Error("pipeline.job.failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return err
	}

	if _, err := o.store.Complete(context.WithoutCancel(ctx), id, result); err != nil {
		log.Error("pipeline.job.complete.record_failed", "error", err)
		return err
	}
	log.Info("pipeline.job.complete",
		"clauses", len(result.Clauses),
		"overall_risk_score", result.OverallRiskScore,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// AnalyzeDocument runs the same stages synchronously without a job record.
func (o *Orchestrator) AnalyzeDocument(ctx context.Context, filename string, content []byte) (entity.DocumentResult, error) {
	log := o.logger.With("filename", filename)
	return o.run(ctx, log, filename, func() ([]byte, error) { return content, nil }, func(constants.JobStatus) error { return nil })
}

func (o *Orchestrator) run(
	ctx context.Context,
	log *slog.Logger,
	filename string,
	content func() ([]byte, error),
	advance func(constants.JobStatus) error,
) (result entity.DocumentResult, err error) {
	stage := constants.JobStatusUploaded
	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline.stage.panic", "stage", stage, "panic", r, "stack", string(debug.Stack()))
			result = entity.DocumentResult{}
			err = &common.InternalError{Message: fmt.Sprintf("unexpected fault during %s", stage)}
		}
	}()

	stage = constants.JobStatusExtracting
	if err := advance(stage); err != nil {
		return entity.DocumentResult{}, err
	}
	body, err := content()
	if err != nil {
		return entity.DocumentResult{}, err
	}
	doc := ocr.Document{
		Filename: filename,
		Content:  body,
		Format:   constants.DetectFormat(filename, body),
	}
	log.Info("pipeline.extract.start", "format", doc.Format, "bytes", len(body))
	start := time.Now()
	text, err := o.extractor.Extract(ctx, doc)
	if err != nil {
		return entity.DocumentResult{}, err
	}
	log.Info("pipeline.extract.ok",
		"backend", text.Backend,
		"pages", len(text.PageBoundaries),
		"chars", len([]rune(text.FullText)),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	stage = constants.JobStatusAnalyzing
	if err := advance(stage); err != nil {
		return entity.DocumentResult{}, err
	}
	start = time.Now()
	analysis, err := o.analyzer.Analyze(ctx, text.FullText)
	if err != nil {
		return entity.DocumentResult{}, err
	}
	log.Info("pipeline.analyze.ok", "clauses", len(analysis.Clauses), "elapsed_ms", time.Since(start).Milliseconds())

	locations := make([]*entity.Location, len(analysis.Clauses))
	unresolved := 0
	for i, c := range analysis.Clauses {
		m := o.locator.Locate(ctx, c.ExactText, text.FullText, text.PageBoundaries)
		if m.Location == nil {
			unresolved++
			log.Debug("pipeline.locate.unresolved", "clause_type", c.ClauseType, "score", m.Score)
			continue
		}
		locations[i] = m.Location
	}
	log.Info("pipeline.locate.done", "resolved", len(locations)-unresolved, "unresolved", unresolved)

	return risk.Aggregate(analysis, locations), nil
}
