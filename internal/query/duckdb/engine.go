// Package duckdb answers chat queries from the Parquet copy of the
// purchasing dataset kept in object storage.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"
	"golang.org/x/sync/errgroup"

	"github.com/chatsql/chatsql/internal/chat"
	"github.com/chatsql/chatsql/internal/dataset"
	"github.com/chatsql/chatsql/internal/query"
	"github.com/chatsql/chatsql/internal/storage"
)

// Engine downloads every dataset table for each query in parallel, copies it
// into a scratch in-memory database and runs the statement there with file
// access switched off.
type Engine struct {
	Store    storage.ObjectStore
	Prefix   string
	RowLimit int
}

func NewEngine(store storage.ObjectStore, prefix string, rowLimit int) *Engine {
	return &Engine{Store: store, Prefix: prefix, RowLimit: rowLimit}
}

func (e *Engine) ExecuteQuery(ctx context.Context, payload chat.Payload) (any, error) {
	sqlText, err := query.Statement(payload)
	if err != nil {
		return nil, err
	}
	if e.Store == nil {
		return nil, fmt.Errorf("object store is required")
	}

	workDir, err := os.MkdirTemp("", "chatsql-query-")
	if err != nil {
		return nil, fmt.Errorf("create query temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	tables := dataset.TableNames()
	localPaths := make([]string, len(tables))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, table := range tables {
		group.Go(func() error {
			localPath, err := e.download(groupCtx, workDir, table)
			if err != nil {
				return err
			}
			localPaths[i] = localPath
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect duckdb: %w", err)
	}
	defer func() { _ = conn.Close() }()

	for i, table := range tables {
		loadSQL := fmt.Sprintf(`CREATE TABLE %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(table), quoteString(localPaths[i]))
		if _, err := conn.ExecContext(ctx, loadSQL); err != nil {
			return nil, fmt.Errorf("load table %q: %w", table, err)
		}
	}
	for _, setting := range lockdownSettings {
		if _, err := conn.ExecContext(ctx, setting); err != nil {
			return nil, fmt.Errorf("apply %q: %w", setting, err)
		}
	}

	rows, err := conn.QueryContext(ctx, query.Limit(sqlText, e.RowLimit))
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return query.ScanRows(rows)
}

// lockdownSettings run after the tables are loaded and before the caller's
// statement. The statement can then reach only the in-memory tables: no
// files, no extensions, no setting changes.
var lockdownSettings = []string{
	`SET autoinstall_known_extensions = false`,
	`SET autoload_known_extensions = false`,
	`SET enable_external_access = false`,
	`SET lock_configuration = true`,
}

// HealthCheck confirms every table object is present. Stores that can list
// are asked once for the whole prefix.
func (e *Engine) HealthCheck(ctx context.Context) error {
	if e.Store == nil {
		return fmt.Errorf("object store is required")
	}
	if lister, ok := e.Store.(storage.Lister); ok {
		return e.checkListing(ctx, lister)
	}
	for _, table := range dataset.TableNames() {
		key, err := storage.BuildTablePath(e.Prefix, table)
		if err != nil {
			return err
		}
		if _, err := e.Store.Stat(ctx, key); err != nil {
			return fmt.Errorf("stat %q: %w", key, err)
		}
	}
	return nil
}

func (e *Engine) checkListing(ctx context.Context, lister storage.Lister) error {
	infos, err := lister.List(ctx, e.Prefix)
	if err != nil {
		return fmt.Errorf("list dataset objects: %w", err)
	}
	present := make(map[string]bool, len(infos))
	for _, info := range infos {
		present[info.Key] = true
	}
	for _, table := range dataset.TableNames() {
		key, err := storage.BuildTablePath(e.Prefix, table)
		if err != nil {
			return err
		}
		if !present[key] {
			return fmt.Errorf("stat %q: %w", key, storage.ErrObjectNotFound)
		}
	}
	return nil
}

func (e *Engine) download(ctx context.Context, workDir, table string) (string, error) {
	key, err := storage.BuildTablePath(e.Prefix, table)
	if err != nil {
		return "", err
	}
	reader, err := e.Store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("get object %q: %w", key, err)
	}

	localPath := filepath.Join(workDir, table+".parquet")
	if err := writeFile(localPath, reader); err != nil {
		_ = reader.Close()
		return "", fmt.Errorf("write local parquet file %q: %w", localPath, err)
	}
	if err := reader.Close(); err != nil {
		return "", fmt.Errorf("close object %q: %w", key, err)
	}
	return localPath, nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
