package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/contract-analyzer/constants"
	"github.com/joseph-ayodele/contract-analyzer/internal/service"
)

// Submitter is the part of the document service the ingestor feeds.
type Submitter interface {
	Submit(ctx context.Context, req service.SubmitRequest) (uuid.UUID, error)
}

// Result is the per-file ingest outcome.
type Result struct {
	SourcePath   string
	JobID        uuid.UUID
	Deduplicated bool
	HashHex      string
	SubmittedAt  time.Time
	Err          string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Ingestor submits local files on behalf of a fixed owner. Files whose content
// hash was already submitted by this ingestor are skipped.
type Ingestor struct {
	submitter Submitter
	owner     string
	maxBytes  int64
	logger    *slog.Logger

	mu   sync.Mutex
	seen map[string]uuid.UUID
}

// NewIngestor creates an ingestor. maxBytes bounds how much of a file is read;
// anything larger is still handed to the service so it can reject it.
func NewIngestor(submitter Submitter, owner string, maxBytes int64, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		submitter: submitter,
		owner:     owner,
		maxBytes:  maxBytes,
		logger:    logger,
		seen:      make(map[string]uuid.UUID),
	}
}

// IngestPath submits a single file.
func (i *Ingestor) IngestPath(ctx context.Context, path string) (Result, error) {
	out := Result{SourcePath: path}

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, err
	}
	out.SourcePath = abs
	if ext := constants.NormalizeExt(filepath.Ext(abs)); ext == "" || !AllowedExt(ext) {
		return out, fmt.Errorf("unsupported or missing extension %q", ext)
	}

	content, err := i.read(abs)
	if err != nil {
		return out, err
	}
	sum := sha256.Sum256(content)
	out.HashHex = hex.EncodeToString(sum[:])

	i.mu.Lock()
	if id, ok := i.seen[out.HashHex]; ok {
		i.mu.Unlock()
		out.JobID = id
		out.Deduplicated = true
		i.logger.Debug("ingest.file.deduplicated", "path", abs, "job_id", id)
		return out, nil
	}
	i.mu.Unlock()

	id, err := i.submitter.Submit(ctx, service.SubmitRequest{
		OwnerRef: i.owner,
		Filename: filepath.Base(abs),
		Content:  content,
	})
	if err != nil {
		i.logger.Warn("ingest.file.rejected", "path", abs, "error", err)
		return out, err
	}

	i.mu.Lock()
	i.seen[out.HashHex] = id
	i.mu.Unlock()

	out.JobID = id
	out.SubmittedAt = time.Now().UTC()
	i.logger.Info("ingest.file.submitted", "path", abs, "job_id", id, "bytes", len(content))
	return out, nil
}

func (i *Ingestor) read(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			i.logger.Warn("ingest.file.close_failed", "path", path, "error", err)
		}
	}()
	var src io.Reader = f
	if i.maxBytes > 0 {
		src = io.LimitReader(f, i.maxBytes+1)
	}
	return io.ReadAll(src)
}
