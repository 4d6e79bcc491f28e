package dataset

import (
	"bytes"
	"fmt"

	"github.com/parquet-go/parquet-go"
)

// EncodedTable is one table serialised as a Parquet file.
type EncodedTable struct {
	Table       string
	Data        []byte
	RecordCount int64
}

func EncodeRows[T any](rows []T) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[T](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Encode serialises every table in catalogue order.
func (d Data) Encode() ([]EncodedTable, error) {
	encoders := map[string]func() ([]byte, int, error){
		TableProveedor: func() ([]byte, int, error) { return encodeCounted(d.Proveedores) },
		TablePedido:    func() ([]byte, int, error) { return encodeCounted(d.Pedidos) },
		TablePedidoMat: func() ([]byte, int, error) { return encodeCounted(d.PedidoMats) },
		TableMaterial:  func() ([]byte, int, error) { return encodeCounted(d.Materiales) },
	}

	out := make([]EncodedTable, 0, len(encoders))
	for _, table := range TableNames() {
		data, count, err := encoders[table]()
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", table, err)
		}
		out = append(out, EncodedTable{Table: table, Data: data, RecordCount: int64(count)})
	}
	return out, nil
}

func encodeCounted[T any](rows []T) ([]byte, int, error) {
	data, err := EncodeRows(rows)
	return data, len(rows), err
}
