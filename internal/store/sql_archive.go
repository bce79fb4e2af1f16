package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/contract-analyzer/constants"
	"github.com/joseph-ayodele/contract-analyzer/internal/entity"
)

const jobsTable = "analysis_jobs"

var jobColumns = []string{
	"id", "owner_ref", "filename", "status", "progress_percent",
	"error_message", "result", "content", "created_at", "updated_at",
}

// SQLArchive keeps one row per job in SQLite or Postgres. Timestamps are stored as
// unix nanoseconds and the result as JSON so both dialects share one schema.
type SQLArchive struct {
	drv     *entsql.Driver
	dialect string
	logger  *slog.Logger
}

// NewSQLArchive wraps db for the given dialect (dialect.SQLite or dialect.Postgres)
// and creates the jobs table when missing.
func NewSQLArchive(ctx context.Context, db *sql.DB, dialectName string, logger *slog.Logger) (*SQLArchive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch dialectName {
	case dialect.SQLite, dialect.Postgres:
	default:
		return nil, fmt.Errorf("unsupported archive dialect %q", dialectName)
	}
	a := &SQLArchive{drv: entsql.OpenDB(dialectName, db), dialect: dialectName, logger: logger}
	if err := a.migrate(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// migrate creates the jobs table. The ent builder has no CREATE TABLE support
// outside its schema migrator, so the DDL is a fixed statement per dialect.
func (a *SQLArchive) migrate(ctx context.Context) error {
	blob := "BLOB"
	if a.dialect == dialect.Postgres {
		blob = "BYTEA"
	}
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT NOT NULL PRIMARY KEY,
	owner_ref TEXT NOT NULL,
	filename TEXT NOT NULL,
	status TEXT NOT NULL,
	progress_percent INTEGER NOT NULL,
	error_message TEXT,
	result TEXT,
	content %s,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
)`, jobsTable, blob)
	if err := a.drv.Exec(ctx, query, []any{}, nil); err != nil {
		return fmt.Errorf("create %s: %w", jobsTable, err)
	}
	return nil
}

// Insert writes a new job row with its document bytes, replacing any row with the same id.
func (a *SQLArchive) Insert(ctx context.Context, job entity.Job, content []byte) error {
	result, err := encodeResult(job.Result)
	if err != nil {
		return err
	}
	query, args := entsql.Dialect(a.dialect).
		Insert(jobsTable).
		Columns(jobColumns...).
		Values(
			job.ID.String(), job.OwnerRef, job.Filename, string(job.Status), job.ProgressPercent,
			nullable(job.ErrorMessage), result, content, job.CreatedAt.UnixNano(), job.UpdatedAt.UnixNano(),
		).
		OnConflict(entsql.ConflictColumns("id"), entsql.ResolveWithNewValues()).
		Query()
	if err := a.drv.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

// Update rewrites the mutable columns of a job row. Document bytes are left alone.
func (a *SQLArchive) Update(ctx context.Context, job entity.Job) error {
	result, err := encodeResult(job.Result)
	if err != nil {
		return err
	}
	query, args := entsql.Dialect(a.dialect).
		Update(jobsTable).
		Set("status", string(job.Status)).
		Set("progress_percent", job.ProgressPercent).
		Set("error_message", nullable(job.ErrorMessage)).
		Set("result", result).
		Set("updated_at", job.UpdatedAt.UnixNano()).
		Where(entsql.EQ("id", job.ID.String())).
		Query()
	if err := a.drv.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	return nil
}

func (a *SQLArchive) Delete(ctx context.Context, id uuid.UUID) error {
	query, args := entsql.Dialect(a.dialect).
		Delete(jobsTable).
		Where(entsql.EQ("id", id.String())).
		Query()
	if err := a.drv.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

// Load reads every archived job, oldest first.
func (a *SQLArchive) Load(ctx context.Context) ([]Snapshot, error) {
	query, args := entsql.Dialect(a.dialect).
		Select(jobColumns...).
		From(entsql.Table(jobsTable)).
		OrderBy("created_at").
		Query()
	var rows entsql.Rows
	if err := a.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			id, owner, filename, status string
			progress                    int
			errMsg, result              sql.NullString
			content                     []byte
			created, updated            int64
		)
		if err := rows.Scan(&id, &owner, &filename, &status, &progress, &errMsg, &result, &content, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobID, err := uuid.Parse(id)
		if err != nil {
			a.logger.Warn("store.archive.row.skipped", "id", id, "error", err)
			continue
		}
		job := entity.Job{
			ID:              jobID,
			OwnerRef:        owner,
			Filename:        filename,
			Status:          constants.JobStatus(status),
			ProgressPercent: progress,
			CreatedAt:       time.Unix(0, created).UTC(),
			UpdatedAt:       time.Unix(0, updated).UTC(),
		}
		if !job.Status.Valid() {
			a.logger.Warn("store.archive.row.skipped", "id", id, "status", status)
			continue
		}
		if errMsg.Valid {
			msg := errMsg.String
			job.ErrorMessage = &msg
		}
		if result.Valid && result.String != "" {
			var r entity.DocumentResult
			if err := json.Unmarshal([]byte(result.String), &r); err != nil {
				return nil, fmt.Errorf("decode result of job %s: %w", id, err)
			}
			job.Result = &r
		}
		out = append(out, Snapshot{Job: job, Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

// Close closes the underlying database.
func (a *SQLArchive) Close() error {
	return a.drv.Close()
}

func encodeResult(r *entity.DocumentResult) (any, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return string(b), nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
