package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/joseph-ayodele/contract-analyzer/internal/common"
	"github.com/joseph-ayodele/contract-analyzer/internal/service"
)

// OwnerHeader carries the owner reference when the form field is absent.
const OwnerHeader = "X-Owner-Ref"

// HTTPServer exposes the document service as a JSON API.
type HTTPServer struct {
	svc          *service.Service
	logger       *slog.Logger
	upgrader     websocket.Upgrader
	pollInterval time.Duration
}

type HTTPOption func(*HTTPServer)

// WithPollInterval sets how often a status stream re-reads the job.
func WithPollInterval(d time.Duration) HTTPOption {
	return func(s *HTTPServer) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

func NewHTTPServer(svc *service.Service, logger *slog.Logger, opts ...HTTPOption) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &HTTPServer{
		svc:          svc,
		logger:       logger,
		pollInterval: 250 * time.Millisecond,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed API wrapped in request logging.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /documents", s.handleSubmit)
	mux.HandleFunc("GET /documents", s.handleList)
	mux.HandleFunc("GET /documents/{id}", s.handleStatus)
	mux.HandleFunc("POST /documents/{id}/retry", s.handleRetry)
	mux.HandleFunc("DELETE /documents/{id}", s.handleDelete)
	mux.HandleFunc("GET /documents/{id}/export.xlsx", s.handleExport)
	mux.HandleFunc("GET /documents/{id}/watch", s.handleWatch)
	mux.HandleFunc("GET /health", s.handleHealth)
	return s.withLogging(mux)
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

// handleSubmit accepts a multipart upload with a "file" part and an optional
// "owner_ref" field. The file is read up to one byte past the size limit so
// oversized uploads are rejected without buffering them whole.
func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		s.errorResponse(w, http.StatusBadRequest, "expected multipart/form-data upload")
		return
	}
	mr, err := r.MultipartReader()
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	req := service.SubmitRequest{OwnerRef: r.Header.Get(OwnerHeader)}
	limit := s.svc.MaxBytes()
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid multipart body")
			return
		}
		switch part.FormName() {
		case "file":
			req.Filename = part.FileName()
			var src io.Reader = part
			if limit > 0 {
				src = io.LimitReader(part, limit+1)
			}
			if req.Content, err = io.ReadAll(src); err != nil {
				s.errorResponse(w, http.StatusBadRequest, "failed to read upload")
				return
			}
		case "owner_ref":
			b, _ := io.ReadAll(io.LimitReader(part, 1024))
			req.OwnerRef = string(b)
		}
		_ = part.Close()
	}

	ctx := common.WithRequestID(r.Context(), requestID(r))
	id, err := s.svc.Submit(ctx, req)
	if err != nil {
		s.failure(w, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, submitResponse{JobID: id.String()})
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	view, err := s.svc.Status(id)
	if err != nil {
		s.failure(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, view)
}

func (s *HTTPServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	ctx := common.WithRequestID(r.Context(), requestID(r))
	if err := s.svc.Retry(ctx, id); err != nil {
		s.failure(w, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, submitResponse{JobID: id.String()})
}

func (s *HTTPServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	if err := s.svc.Delete(r.Context(), id); err != nil {
		s.failure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleList(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		owner = r.Header.Get(OwnerHeader)
	}
	if strings.TrimSpace(owner) == "" {
		s.errorResponse(w, http.StatusBadRequest, "owner is required")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"documents": s.svc.List(owner)})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	data, name, err := s.svc.Export(id)
	if err != nil {
		s.failure(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid job id")
		return uuid.Nil, false
	}
	return id, true
}

// failure maps the error taxonomy onto HTTP status codes. Unexpected errors are
// logged and reported without detail.
func (s *HTTPServer) failure(w http.ResponseWriter, err error) {
	var sizeErr *common.SizeLimitError
	switch {
	case errors.As(err, &sizeErr):
		s.errorResponse(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("document exceeds the %d byte limit", sizeErr.Limit))
	case errors.Is(err, common.ErrNotFound):
		s.errorResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, common.ErrInvalidState):
		s.errorResponse(w, http.StatusConflict, err.Error())
	case errors.Is(err, common.ErrInvalidInput):
		s.errorResponse(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("http.request.failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *HTTPServer) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("http.response.encode_failed", "error", err)
	}
}

func (s *HTTPServer) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack passes through to the underlying writer so status streams can upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *HTTPServer) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}
