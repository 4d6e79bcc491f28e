package dataset

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSQLReplacesTablesInOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	data := Data{
		Proveedores: []Proveedor{{ID: 1, Name: "Aceros Global", FVal: DaysSinceEpoch(testFrom), Email: "a@x.example", Phone: "+34"}},
		Materiales:  []Material{{ID: 7, Name: "Tubo 7", UnPrice: 12}},
		Pedidos:     []Pedido{{NumPed: 3, IDProv: 1, Fecha: DaysSinceEpoch(testFrom)}},
		PedidoMats:  []PedidoMat{{IDPed: 3, IDMat: 7, Cantidad: 40}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("TRUNCATE pedidomat, pedido, material, proveedor").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO proveedor").
		WithArgs(int32(1), "Aceros Global", testFrom, "a@x.example", "+34").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO material").WithArgs(int32(7), "Tubo 7", int32(12)).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO pedido ").WithArgs(int32(3), int32(1), testFrom).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO pedidomat").WithArgs(int32(3), int32(7), int32(40)).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	stats, err := LoadSQL(context.Background(), db, data)
	require.NoError(t, err)
	assert.Equal(t, LoadStats{Proveedores: 1, Pedidos: 1, PedidoMats: 1, Materiales: 1}, stats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSQLRollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectExec("TRUNCATE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO proveedor").WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	_, err = LoadSQL(context.Background(), db, Data{Proveedores: []Proveedor{{ID: 1}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert proveedor 1")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSQLRequiresDatabase(t *testing.T) {
	_, err := LoadSQL(context.Background(), nil, Data{})
	require.Error(t, err)
}
