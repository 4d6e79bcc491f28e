package dataset

import (
	"context"
	"database/sql"
	"fmt"
)

// LoadStats counts the rows written per table.
type LoadStats struct {
	Proveedores int
	Pedidos     int
	PedidoMats  int
	Materiales  int
}

// LoadSQL replaces the contents of the purchasing tables with data inside a
// single transaction. The tables must already exist.
func LoadSQL(ctx context.Context, db *sql.DB, data Data) (LoadStats, error) {
	if db == nil {
		return LoadStats{}, fmt.Errorf("database is required")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return LoadStats{}, fmt.Errorf("begin load tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `TRUNCATE pedidomat, pedido, material, proveedor`); err != nil {
		return LoadStats{}, fmt.Errorf("truncate purchasing tables: %w", err)
	}

	var stats LoadStats
	for _, row := range data.Proveedores {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO proveedor (id, name, fval, email, phone) VALUES ($1, $2, $3, $4, $5)`,
			row.ID, row.Name, DateFromDays(row.FVal), row.Email, row.Phone,
		); err != nil {
			return LoadStats{}, fmt.Errorf("insert proveedor %d: %w", row.ID, err)
		}
		stats.Proveedores++
	}
	for _, row := range data.Materiales {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO material (id, name, unprice) VALUES ($1, $2, $3)`,
			row.ID, row.Name, row.UnPrice,
		); err != nil {
			return LoadStats{}, fmt.Errorf("insert material %d: %w", row.ID, err)
		}
		stats.Materiales++
	}
	for _, row := range data.Pedidos {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pedido (numped, idprov, fecha) VALUES ($1, $2, $3)`,
			row.NumPed, row.IDProv, DateFromDays(row.Fecha),
		); err != nil {
			return LoadStats{}, fmt.Errorf("insert pedido %d: %w", row.NumPed, err)
		}
		stats.Pedidos++
	}
	for _, row := range data.PedidoMats {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pedidomat (idped, idmat, cantidad) VALUES ($1, $2, $3)`,
			row.IDPed, row.IDMat, row.Cantidad,
		); err != nil {
			return LoadStats{}, fmt.Errorf("insert pedidomat %d/%d: %w", row.IDPed, row.IDMat, err)
		}
		stats.PedidoMats++
	}

	if err := tx.Commit(); err != nil {
		return LoadStats{}, fmt.Errorf("commit load tx: %w", err)
	}
	return stats, nil
}
