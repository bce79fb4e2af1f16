package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"entgo.io/ent/dialect"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/contract-analyzer/internal/async"
	"github.com/joseph-ayodele/contract-analyzer/internal/common"
	"github.com/joseph-ayodele/contract-analyzer/internal/export"
	"github.com/joseph-ayodele/contract-analyzer/internal/ingest"
	"github.com/joseph-ayodele/contract-analyzer/internal/pipeline"
	"github.com/joseph-ayodele/contract-analyzer/internal/repository"
	"github.com/joseph-ayodele/contract-analyzer/internal/server"
	"github.com/joseph-ayodele/contract-analyzer/internal/service"
	"github.com/joseph-ayodele/contract-analyzer/internal/store"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and gRPC APIs with the background analysis workers",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := buildAnalysisStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	var opts []store.Option
	archive, closeArchive, err := openArchive(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeArchive()
	if archive != nil {
		opts = append(opts, store.WithArchive(archive))
	}
	st := store.New(logger, opts...)
	if archive != nil {
		if _, err := st.Restore(ctx); err != nil {
			return fmt.Errorf("restore jobs: %w", err)
		}
	}

	orch := pipeline.NewOrchestrator(st, stack.engine, stack.client, nil, logger)
	queue := async.NewProcessorQueue(orch, logger,
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(cfg.Pipeline.QueueSize),
		async.WithProcessTimeout(cfg.Pipeline.JobTimeout),
	)
	svc := service.NewService(st, queue, export.NewService(logger), cfg.Pipeline.MaxUploadBytes, logger)

	var sweeper *store.Sweeper
	if cfg.Retention.TTL > 0 {
		sweeper, err = store.NewSweeper(st, cfg.Retention.Schedule, cfg.Retention.TTL, logger)
		if err != nil {
			return err
		}
		sweeper.Start()
	}

	errCh := make(chan error, 3)

	var httpSrv *http.Server
	if cfg.Server.HTTPAddr != "" {
		httpSrv = &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           server.NewHTTPServer(svc, logger).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("app.http.listening", "addr", cfg.Server.HTTPAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http serve: %w", err)
			}
		}()
	}

	grpcSrv := server.NewGRPCServer(svc, logger)
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
		}
		go func() {
			logger.Info("app.grpc.listening", "addr", cfg.Server.GRPCAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc serve: %w", err)
			}
		}()
	}

	if cfg.Ingest.InboxDir != "" {
		ing := ingest.NewIngestor(svc, cfg.Ingest.InboxOwner, cfg.Pipeline.MaxUploadBytes, logger)
		go func() {
			err := ing.Watch(ctx, ingest.WatchConfig{
				Roots:       []string{cfg.Ingest.InboxDir},
				InitialScan: true,
				SkipHidden:  true,
				Debounce:    500 * time.Millisecond,
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("inbox watcher: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("app.shutdown.signal")
	case runErr = <-errCh:
		logger.Error("app.shutdown.error", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if httpSrv != nil {
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("app.http.shutdown_failed", "error", err)
		}
	}
	grpcSrv.GracefulStop()
	if sweeper != nil {
		sweeper.Stop(shutdownCtx)
	}
	queue.Shutdown(shutdownCtx)
	logger.Info("app.stopped")
	return runErr
}

// openArchive connects the optional job archive. The returned closer is never nil.
func openArchive(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*store.SQLArchive, func(), error) {
	var (
		db   *sql.DB
		pool *pgxpool.Pool
		name string
		err  error
	)
	switch cfg.Archive.Driver {
	case "":
		return nil, func() {}, nil
	case "sqlite":
		name = dialect.SQLite
		db, err = repository.OpenSQLite(ctx, cfg.Archive.DSN, logger)
	case "postgres":
		name = dialect.Postgres
		db, pool, err = repository.OpenPostgres(ctx, repository.Config{
			DSN:              cfg.Archive.DSN,
			MaxConns:         cfg.Database.MaxConns,
			MinConns:         cfg.Database.MinConns,
			MaxConnLifetime:  cfg.Database.MaxConnLifetime,
			MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
			DialTimeout:      cfg.Database.DialTimeout,
			StatementTimeout: cfg.Database.StatementTimeout,
		}, logger)
	default:
		return nil, nil, fmt.Errorf("unknown archive driver %q", cfg.Archive.Driver)
	}
	if err != nil {
		return nil, nil, err
	}
	if err := repository.HealthCheck(ctx, db, 5*time.Second); err != nil {
		repository.Close(db, pool, logger)
		return nil, nil, fmt.Errorf("archive health check: %w", err)
	}
	archive, err := store.NewSQLArchive(ctx, db, name, logger)
	if err != nil {
		repository.Close(db, pool, logger)
		return nil, nil, err
	}
	return archive, func() { repository.Close(db, pool, logger) }, nil
}
