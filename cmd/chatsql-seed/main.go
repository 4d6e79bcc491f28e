package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatsql/chatsql/internal/config"
	"github.com/chatsql/chatsql/internal/dataset"
	"github.com/chatsql/chatsql/internal/migrations"
	"github.com/chatsql/chatsql/internal/observability"
	"github.com/chatsql/chatsql/internal/query/sqldb"
	s3store "github.com/chatsql/chatsql/internal/storage/s3"
)

const (
	targetObjectStore = "objectstore"
	targetPostgres    = "postgres"
	targetAll         = "all"
)

func main() {
	cfg, err := config.LoadFromEnv("chatsql-seed")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	defaults := dataset.DefaultSize()
	seed := flag.Int64("seed", 42, "random seed; equal seeds produce equal rows")
	from := flag.String("from", time.Now().UTC().AddDate(-1, 0, 0).Format(time.DateOnly), "first order date (YYYY-MM-DD)")
	days := flag.Int("days", 365, "number of days covered by order dates")
	providers := flag.Int("providers", defaults.Providers, "number of PROVEEDOR rows")
	materials := flag.Int("materials", defaults.Materials, "number of MATERIAL rows")
	orders := flag.Int("orders", defaults.Orders, "number of PEDIDO rows")
	maxLines := flag.Int("max-lines", defaults.MaxOrderLines, "maximum PEDIDOMAT lines per order")
	prefix := flag.String("prefix", cfg.ObjectStore.DatasetPrefix, "object key prefix for the Parquet tables")
	target := flag.String("target", targetObjectStore, "where to load the rows: objectstore|postgres|all")
	flag.Parse()

	start, err := time.Parse(time.DateOnly, *from)
	if err != nil {
		logger.Error("invalid -from date", slog.String("from", *from), slog.Any("error", err))
		os.Exit(2)
	}
	switch *target {
	case targetObjectStore, targetPostgres, targetAll:
	default:
		logger.Error("invalid -target", slog.String("target", *target))
		os.Exit(2)
	}

	data, err := dataset.NewGenerator(*seed, start, *days).Generate(dataset.Size{
		Providers:     *providers,
		Materials:     *materials,
		Orders:        *orders,
		MaxOrderLines: *maxLines,
	})
	if err != nil {
		logger.Error("failed to generate dataset", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("generated dataset",
		slog.Int64("seed", *seed),
		slog.Int("proveedores", len(data.Proveedores)),
		slog.Int("pedidos", len(data.Pedidos)),
		slog.Int("pedidomats", len(data.PedidoMats)),
		slog.Int("materiales", len(data.Materiales)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *target == targetObjectStore || *target == targetAll {
		if err := seedObjectStore(ctx, cfg, logger, *prefix, data); err != nil {
			logger.Error("object store seeding failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
	if *target == targetPostgres || *target == targetAll {
		if err := seedPostgres(ctx, cfg, logger, data); err != nil {
			logger.Error("postgres seeding failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

func seedObjectStore(ctx context.Context, cfg config.Config, logger *slog.Logger, prefix string, data dataset.Data) error {
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
		return fmt.Errorf("open object store: %w", err)
	}

	tables, err := data.Encode()
	if err != nil {
		return err
	}
	if _, err := dataset.Upload(ctx, store, prefix, tables); err != nil {
		return err
	}
	pruned, err := dataset.Prune(ctx, store, prefix, dataset.TableNames())
	if err != nil {
		return err
	}
	for _, key := range pruned {
		logger.Info("removed stale object", slog.String("bucket", cfg.ObjectStore.Bucket), slog.String("key", key))
	}

	listed, err := store.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, info := range listed {
		logger.Info("stored object",
			slog.String("bucket", cfg.ObjectStore.Bucket),
			slog.String("key", info.Key),
			slog.Int64("size_bytes", info.Size),
		)
	}
	return nil
}

func seedPostgres(ctx context.Context, cfg config.Config, logger *slog.Logger, data dataset.Data) error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("CHATSQL_DATABASE_DSN is required for the postgres target")
	}
	db, err := sqldb.Open(ctx, sqldb.DBConfig{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	applied, err := migrations.NewRunner().Up(ctx, db, 0)
	if err != nil {
		return err
	}
	stats, err := dataset.LoadSQL(ctx, db, data)
	if err != nil {
		return err
	}
	logger.Info("loaded postgres tables",
		slog.Int("migrations_applied", applied),
		slog.Int("proveedores", stats.Proveedores),
		slog.Int("pedidos", stats.Pedidos),
		slog.Int("pedidomats", stats.PedidoMats),
		slog.Int("materiales", stats.Materiales),
	)
	return nil
}
