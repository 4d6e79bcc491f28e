package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/chatsql/chatsql/internal/api"
	"github.com/chatsql/chatsql/internal/chat"
	"github.com/chatsql/chatsql/internal/config"
	"github.com/chatsql/chatsql/internal/llm"
	"github.com/chatsql/chatsql/internal/observability"
	duckdbengine "github.com/chatsql/chatsql/internal/query/duckdb"
	"github.com/chatsql/chatsql/internal/query/remote"
	"github.com/chatsql/chatsql/internal/query/sqldb"
	"github.com/chatsql/chatsql/internal/search"
	s3store "github.com/chatsql/chatsql/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("chatsql-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	if err := cfg.ValidateChat(); err != nil {
		logger.Error("incomplete chat configuration", slog.Any("error", err))
		os.Exit(1)
	}

	searchClient, err := search.NewClient(search.Config{
		Endpoint:   cfg.Search.Endpoint,
		APIKey:     cfg.Search.APIKey,
		Index:      cfg.Search.Index,
		APIVersion: cfg.Search.APIVersion,
		Timeout:    cfg.Search.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize search client", slog.Any("error", err))
		os.Exit(1)
	}

	completer, err := llm.NewAzureClient(llm.AzureConfig{
		Endpoint:   cfg.LLM.Endpoint,
		APIKey:     cfg.LLM.APIKey,
		Deployment: cfg.LLM.Deployment,
		APIVersion: cfg.LLM.APIVersion,
		Timeout:    cfg.LLM.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize completion client", slog.Any("error", err))
		os.Exit(1)
	}

	assembler, err := chat.NewAssembler(cfg.Prompt.TimeZone)
	if err != nil {
		logger.Warn("falling back to UTC for prompt dates", slog.Any("error", err))
		assembler, _ = chat.NewAssembler("UTC")
	}

	backend, err := newQueryBackend(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to initialize query backend", slog.String("backend", string(cfg.Query.Backend)), slog.Any("error", err))
		os.Exit(1)
	}
	defer backend.close()

	service := &chat.Service{
		Retriever: searchClient,
		Completer: completer,
		Executor:  backend.executor,
		Assembler: assembler,
		Logger:    logger,
	}

	deps := api.Dependencies{
		Logger: logger,
		Chat:   service,
		Readiness: api.CombineReadinessChecks(
			api.CheckChatConfig(cfg),
			backend.readiness,
		),
		DependencyTimout: time.Second,
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("query_backend", string(cfg.Query.Backend)),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

type queryBackend struct {
	executor  chat.QueryExecutor
	readiness api.ReadinessCheck
	close     func()
}

func newQueryBackend(ctx context.Context, cfg config.Config) (queryBackend, error) {
	switch cfg.Query.Backend {
	case config.QueryBackendRemote:
		executor, err := remote.NewExecutor(remote.Config{Endpoint: cfg.Query.Endpoint, Timeout: cfg.Query.Timeout})
		if err != nil {
			return queryBackend{}, err
		}
		return queryBackend{executor: executor, close: func() {}}, nil

	case config.QueryBackendPostgres:
		db, err := sqldb.Open(ctx, sqldb.DBConfig{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return queryBackend{}, err
		}
		executor := &sqldb.Executor{DB: db, RowLimit: cfg.Query.RowLimit}
		return queryBackend{
			executor:  timeoutExecutor{next: executor, timeout: cfg.Query.Timeout},
			readiness: executor.HealthCheck,
			close:     func() { closeDB(db) },
		}, nil

	case config.QueryBackendDuckDB:
		store, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			return queryBackend{}, err
		}
		engine := duckdbengine.NewEngine(store, cfg.ObjectStore.DatasetPrefix, cfg.Query.RowLimit)
		return queryBackend{
			executor:  timeoutExecutor{next: engine, timeout: cfg.Query.Timeout},
			readiness: api.CombineReadinessChecks(store.Ping, engine.HealthCheck),
			close:     func() {},
		}, nil
	}
	return queryBackend{}, fmt.Errorf("unsupported query backend %q", cfg.Query.Backend)
}

// timeoutExecutor bounds local backends the way the HTTP client timeout
// bounds the remote one.
type timeoutExecutor struct {
	next    chat.QueryExecutor
	timeout time.Duration
}

func (e timeoutExecutor) ExecuteQuery(ctx context.Context, payload chat.Payload) (any, error) {
	if e.timeout <= 0 {
		return e.next.ExecuteQuery(ctx, payload)
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.next.ExecuteQuery(ctx, payload)
}

func closeDB(db *sql.DB) {
	_ = db.Close()
}
