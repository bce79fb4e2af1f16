package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/contract-analyzer/constants"
	"github.com/joseph-ayodele/contract-analyzer/internal/common"
	"github.com/joseph-ayodele/contract-analyzer/internal/entity"
)

// InterruptedMessage is recorded on jobs found mid-processing when the archive is restored.
const InterruptedMessage = "processing interrupted by restart"

// Archive persists job snapshots outside the process. Store calls it while holding
// the job's writer lock, so calls for one job arrive in order.
type Archive interface {
	Insert(ctx context.Context, job entity.Job, content []byte) error
	Update(ctx context.Context, job entity.Job) error
	Delete(ctx context.Context, id uuid.UUID) error
	Load(ctx context.Context) ([]Snapshot, error)
}

// Snapshot is an archived job together with its document bytes.
type Snapshot struct {
	Job     entity.Job
	Content []byte
}

// record is one job. Readers load snap without locking; writers hold mu for a
// single update and publish a fresh copy.
type record struct {
	mu      sync.Mutex
	snap    atomic.Pointer[entity.Job]
	holder  atomic.Uint64 // claim token of the running attempt, 0 when idle
	claims  atomic.Uint64
	content []byte
	deleted bool
}

// Store is the process-wide registry of jobs and the only place job state lives.
type Store struct {
	records sync.Map // uuid.UUID -> *record
	archive Archive
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Store)

// WithArchive mirrors every state change into a.
func WithArchive(a Archive) Option {
	return func(s *Store) { s.archive = a }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{logger: logger, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create registers a new job in uploaded and keeps its document bytes for processing and retry.
func (s *Store) Create(ctx context.Context, owner, filename string, content []byte) (entity.Job, error) {
	now := s.now().UTC()
	progress, _ := constants.JobStatusUploaded.Progress()
	job := &entity.Job{
		ID:              uuid.New(),
		OwnerRef:        owner,
		Filename:        filename,
		Status:          constants.JobStatusUploaded,
		CreatedAt:       now,
		UpdatedAt:       now,
		ProgressPercent: progress,
	}
	rec := &record{content: content}
	rec.snap.Store(job)

	if s.archive != nil {
		if err := s.archive.Insert(ctx, *job, content); err != nil {
			s.logger.Error("store.archive.insert.failed", "job_id", job.ID, "error", err)
			return entity.Job{}, common.NewAppError("ARCHIVE_ERROR", "failed to archive job", fmt.Errorf("%w: %v", common.ErrDatabase, err))
		}
	}
	s.records.Store(job.ID, rec)
	s.logger.Info("store.job.created", "job_id", job.ID, "owner_ref", owner, "filename", filename, "bytes", len(content))
	return *job, nil
}

// Get returns a snapshot of the job. It never blocks on writers.
func (s *Store) Get(id uuid.UUID) (entity.Job, error) {
	rec, ok := s.load(id)
	if !ok {
		return entity.Job{}, notFound(id)
	}
	return *rec.snap.Load(), nil
}

// List returns the owner's jobs newest first.
func (s *Store) List(owner string) []entity.Job {
	var out []entity.Job
	s.records.Range(func(_, v any) bool {
		j := v.(*record).snap.Load()
		if j.OwnerRef == owner {
			out = append(out, *j)
		}
		return true
	})
	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID.String() > out[k].ID.String()
		}
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out
}

// Content returns the stored document bytes of a job.
func (s *Store) Content(id uuid.UUID) ([]byte, error) {
	rec, ok := s.load(id)
	if !ok {
		return nil, notFound(id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.content, nil
}

// Claim takes the job's processing flag. Only one orchestration attempt may hold it,
// and only a job waiting in uploaded can be claimed. The returned token identifies
// this attempt to Release.
func (s *Store) Claim(id uuid.UUID) (uint64, error) {
	rec, ok := s.load(id)
	if !ok {
		return 0, notFound(id)
	}
	token := rec.claims.Add(1)
	if !rec.holder.CompareAndSwap(0, token) {
		return 0, common.NewAppError("ALREADY_RUNNING", fmt.Sprintf("job %s is already being processed", id), common.ErrInvalidState)
	}
	if st := rec.snap.Load().Status; st != constants.JobStatusUploaded {
		rec.holder.CompareAndSwap(token, 0)
		return 0, common.NewAppError("NOT_CLAIMABLE", fmt.Sprintf("job %s is %s", id, st), common.ErrInvalidState)
	}
	return token, nil
}

// Release clears the processing flag if it is still held by token. A stale token
// from an attempt that already ended leaves a newer claim in place. Terminal
// transitions release the flag too.
func (s *Store) Release(id uuid.UUID, token uint64) {
	if rec, ok := s.load(id); ok {
		rec.holder.CompareAndSwap(token, 0)
	}
}

// Running reports whether an orchestration attempt holds the job.
func (s *Store) Running(id uuid.UUID) bool {
	rec, ok := s.load(id)
	return ok && rec.holder.Load() != 0
}

// Advance moves the job forward to a processing stage and sets that stage's progress.
func (s *Store) Advance(ctx context.Context, id uuid.UUID, next constants.JobStatus) (entity.Job, error) {
	progress, ok := next.Progress()
	if !ok || next == constants.JobStatusComplete {
		return entity.Job{}, common.NewAppError("INVALID_TRANSITION", fmt.Sprintf("cannot advance to %s", next), common.ErrInvalidState)
	}
	return s.update(ctx, id, func(j *entity.Job) error {
		if !j.Status.CanAdvanceTo(next) {
			return transitionErr(j.Status, next)
		}
		j.Status = next
		j.ProgressPercent = max(j.ProgressPercent, progress)
		return nil
	})
}

// Complete attaches the result and moves the job to complete.
func (s *Store) Complete(ctx context.Context, id uuid.UUID, result entity.DocumentResult) (entity.Job, error) {
	progress, _ := constants.JobStatusComplete.Progress()
	return s.update(ctx, id, func(j *entity.Job) error {
		if !j.Status.CanAdvanceTo(constants.JobStatusComplete) {
			return transitionErr(j.Status, constants.JobStatusComplete)
		}
		r := result
		j.Status = constants.JobStatusComplete
		j.ProgressPercent = progress
		j.Result = &r
		j.ErrorMessage = nil
		return nil
	})
}

// Fail moves a non-terminal job to error. Progress stays at the failed stage.
func (s *Store) Fail(ctx context.Context, id uuid.UUID, message string) (entity.Job, error) {
	return s.update(ctx, id, func(j *entity.Job) error {
		if !j.Status.CanAdvanceTo(constants.JobStatusError) {
			return transitionErr(j.Status, constants.JobStatusError)
		}
		msg := message
		j.Status = constants.JobStatusError
		j.ErrorMessage = &msg
		j.Result = nil
		return nil
	})
}

// ResetForRetry is the only way out of error: back to uploaded with zero progress.
func (s *Store) ResetForRetry(ctx context.Context, id uuid.UUID) (entity.Job, error) {
	return s.update(ctx, id, func(j *entity.Job) error {
		if j.Status != constants.JobStatusError {
			return common.NewAppError("NOT_RETRYABLE", fmt.Sprintf("job %s is %s, only failed jobs can be retried", j.ID, j.Status), common.ErrInvalidState)
		}
		j.Status = constants.JobStatusUploaded
		j.ProgressPercent = 0
		j.ErrorMessage = nil
		j.Result = nil
		return nil
	})
}

// Delete removes the job, its result and its document bytes. Unknown ids are not an error.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	v, ok := s.records.LoadAndDelete(id)
	if !ok {
		return nil
	}
	rec := v.(*record)
	rec.mu.Lock()
	rec.deleted = true
	rec.content = nil
	rec.mu.Unlock()

	if s.archive != nil {
		if err := s.archive.Delete(ctx, id); err != nil {
			s.logger.Error("store.archive.delete.failed", "job_id", id, "error", err)
			return common.NewAppError("ARCHIVE_ERROR", "failed to delete archived job", fmt.Errorf("%w: %v", common.ErrDatabase, err))
		}
	}
	s.logger.Info("store.job.deleted", "job_id", id)
	return nil
}

// PurgeBefore deletes terminal jobs last updated before cutoff and returns how many went.
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var ids []uuid.UUID
	s.records.Range(func(k, v any) bool {
		rec := v.(*record)
		j := rec.snap.Load()
		if j.Status.Terminal() && rec.holder.Load() == 0 && j.UpdatedAt.Before(cutoff) {
			ids = append(ids, k.(uuid.UUID))
		}
		return true
	})
	n := 0
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Restore loads archived jobs into an empty store. Jobs that were mid-processing when the
// previous process stopped are failed so they can be retried.
func (s *Store) Restore(ctx context.Context) (int, error) {
	if s.archive == nil {
		return 0, nil
	}
	snaps, err := s.archive.Load(ctx)
	if err != nil {
		return 0, common.NewAppError("ARCHIVE_ERROR", "failed to load archived jobs", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	for _, sn := range snaps {
		job := sn.Job
		if !job.Status.Terminal() {
			msg := InterruptedMessage
			job.Status = constants.JobStatusError
			job.ErrorMessage = &msg
			job.Result = nil
			job.UpdatedAt = s.now().UTC()
			if err := s.archive.Update(ctx, job); err != nil {
				s.logger.Error("store.archive.update.failed", "job_id", job.ID, "error", err)
			}
			s.logger.Warn("store.job.interrupted", "job_id", job.ID, "filename", job.Filename)
		}
		rec := &record{content: sn.Content}
		rec.snap.Store(&job)
		s.records.Store(job.ID, rec)
	}
	s.logger.Info("store.restored", "jobs", len(snaps))
	return len(snaps), nil
}

func (s *Store) update(ctx context.Context, id uuid.UUID, mutate func(*entity.Job) error) (entity.Job, error) {
	rec, ok := s.load(id)
	if !ok {
		return entity.Job{}, notFound(id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return entity.Job{}, notFound(id)
	}

	next := *rec.snap.Load()
	if err := mutate(&next); err != nil {
		return entity.Job{}, err
	}
	next.UpdatedAt = s.now().UTC()

	if s.archive != nil {
		if err := s.archive.Update(ctx, next); err != nil {
			s.logger.Error("store.archive.update.failed", "job_id", id, "status", next.Status, "error", err)
			return entity.Job{}, common.NewAppError("ARCHIVE_ERROR", "failed to archive job", fmt.Errorf("%w: %v", common.ErrDatabase, err))
		}
	}
	rec.snap.Store(&next)
	if next.Status.Terminal() {
		rec.holder.Store(0)
	}
	s.logger.Debug("store.job.updated", "job_id", id, "status", next.Status, "progress", next.ProgressPercent)
	return next, nil
}

func (s *Store) load(id uuid.UUID) (*record, bool) {
	v, ok := s.records.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*record), true
}

func notFound(id uuid.UUID) error {
	return common.NewAppError("JOB_NOT_FOUND", fmt.Sprintf("job %s not found", id), common.ErrNotFound)
}

func transitionErr(from, to constants.JobStatus) error {
	return common.NewAppError("INVALID_TRANSITION", fmt.Sprintf("cannot move job from %s to %s", from, to), common.ErrInvalidState)
}
