package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chatsql/chatsql/internal/chat"
	"github.com/chatsql/chatsql/internal/query"
)

// Executor runs each statement in its own read-only transaction.
type Executor struct {
	DB       *sql.DB
	RowLimit int
}

func (e *Executor) ExecuteQuery(ctx context.Context, payload chat.Payload) (any, error) {
	if e.DB == nil {
		return nil, fmt.Errorf("query db is required")
	}
	sqlText, err := query.Statement(payload)
	if err != nil {
		return nil, err
	}

	tx, err := e.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read-only tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, query.Limit(sqlText, e.RowLimit))
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return query.ScanRows(rows)
}

func (e *Executor) HealthCheck(ctx context.Context) error {
	if e.DB == nil {
		return fmt.Errorf("query db is required")
	}
	return e.DB.PingContext(ctx)
}
