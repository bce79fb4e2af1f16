package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/contract-analyzer/constants"
	"github.com/joseph-ayodele/contract-analyzer/internal/async"
	"github.com/joseph-ayodele/contract-analyzer/internal/common"
	"github.com/joseph-ayodele/contract-analyzer/internal/entity"
	"github.com/joseph-ayodele/contract-analyzer/internal/export"
	"github.com/joseph-ayodele/contract-analyzer/internal/store"
)

// SubmitRequest is one uploaded document.
type SubmitRequest struct {
	OwnerRef string `validate:"required,max=256"`
	Filename string `validate:"required,max=512"`
	Content  []byte `validate:"min=1"`
}

// Service is the caller-facing surface of the pipeline: it creates jobs, hands
// them to workers, and answers status queries without ever blocking on a worker.
type Service struct {
	store    *store.Store
	queue    async.Queue
	exporter *export.Service
	maxBytes int64
	logger   *slog.Logger
}

func NewService(st *store.Store, q async.Queue, exporter *export.Service, maxBytes int64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if exporter == nil {
		exporter = export.NewService(logger)
	}
	return &Service{store: st, queue: q, exporter: exporter, maxBytes: maxBytes, logger: logger}
}

// MaxBytes is the largest accepted document.
func (s *Service) MaxBytes() int64 { return s.maxBytes }

// Submit creates a job in uploaded and returns its id immediately. Oversized
// documents are rejected before any job exists.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (uuid.UUID, error) {
	if size := int64(len(req.Content)); s.maxBytes > 0 && size > s.maxBytes {
		s.logger.Warn("service.submit.too_large", "owner_ref", req.OwnerRef, "filename", req.Filename, "bytes", size)
		return uuid.Nil, &common.SizeLimitError{Limit: s.maxBytes, Size: size}
	}
	req.OwnerRef = strings.TrimSpace(req.OwnerRef)
	if name := strings.TrimSpace(req.Filename); name != "" {
		req.Filename = filepath.Base(name)
	}
	if err := common.ValidateStruct(req); err != nil {
		return uuid.Nil, err
	}

	job, err := s.store.Create(ctx, req.OwnerRef, req.Filename, req.Content)
	if err != nil {
		return uuid.Nil, err
	}
	s.enqueue(ctx, job.ID)
	return job.ID, nil
}

// Status returns the polling view of a job.
func (s *Service) Status(id uuid.UUID) (entity.StatusView, error) {
	job, err := s.store.Get(id)
	if err != nil {
		return entity.StatusView{}, err
	}
	return entity.ToStatusView(job), nil
}

// Job returns the full job snapshot.
func (s *Service) Job(id uuid.UUID) (entity.Job, error) {
	return s.store.Get(id)
}

// Retry moves a failed job back to uploaded and queues it again. Jobs in any
// other state are left untouched.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) error {
	job, err := s.store.ResetForRetry(ctx, id)
	if err != nil {
		s.logger.Warn("service.retry.rejected", "job_id", id, "error", err)
		return err
	}
	s.logger.Info("service.retry", "job_id", id, "filename", job.Filename)
	s.enqueue(ctx, id)
	return nil
}

// Delete removes a job permanently. Unknown ids are not an error.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.Delete(ctx, id)
}

// List returns the owner's jobs newest first.
func (s *Service) List(owner string) []entity.JobSummary {
	jobs := s.store.List(strings.TrimSpace(owner))
	out := make([]entity.JobSummary, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, entity.ToJobSummary(j))
	}
	return out
}

// Export renders a completed job as an XLSX report.
func (s *Service) Export(id uuid.UUID) ([]byte, string, error) {
	job, err := s.store.Get(id)
	if err != nil {
		return nil, "", err
	}
	if job.Status != constants.JobStatusComplete || job.Result == nil {
		return nil, "", common.NewAppError("NOT_COMPLETE", fmt.Sprintf("job %s is %s", id, job.Status), common.ErrInvalidState)
	}
	data, err := s.exporter.ReportXLSX([]export.Entry{{Filename: job.Filename, Result: *job.Result}})
	if err != nil {
		return nil, "", err
	}
	name := strings.TrimSuffix(job.Filename, filepath.Ext(job.Filename)) + "-risk-report.xlsx"
	return data, name, nil
}

// enqueue hands the job to a worker. If the queue refuses it the job is failed
// so the owner can retry instead of waiting forever.
func (s *Service) enqueue(ctx context.Context, id uuid.UUID) {
	job := async.Job{
		JobID:       id,
		SubmittedAt: time.Now(),
		RequestID:   common.RequestIDFromContext(ctx),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.logger.Error("service.enqueue.failed", "job_id", id, "error", err)
		if _, ferr := s.store.Fail(context.WithoutCancel(ctx), id, fmt.Sprintf("could not queue job: %v", err)); ferr != nil {
			s.logger.Error("service.enqueue.fail_record_failed", "job_id", id, "error", ferr)
		}
		return
	}
	s.logger.Info("service.job.queued", "job_id", id)
}
