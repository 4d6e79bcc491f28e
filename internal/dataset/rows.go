package dataset

import "time"

// Date columns are stored as days since the Unix epoch so DuckDB reads them
// back as DATE.

type Proveedor struct {
	ID    int32  `parquet:"ID"`
	Name  string `parquet:"NAME"`
	FVal  int32  `parquet:"FVAL,date"`
	Email string `parquet:"EMAIL"`
	Phone string `parquet:"PHONE"`
}

type Pedido struct {
	NumPed int32 `parquet:"NUMPED"`
	IDProv int32 `parquet:"IDPROV"`
	Fecha  int32 `parquet:"FECHA,date"`
}

type PedidoMat struct {
	IDPed    int32 `parquet:"IDPED"`
	IDMat    int32 `parquet:"IDMAT"`
	Cantidad int32 `parquet:"CANTIDAD"`
}

type Material struct {
	ID      int32  `parquet:"ID"`
	Name    string `parquet:"NAME"`
	UnPrice int32  `parquet:"UNPRICE"`
}

// Data holds one generated copy of every table.
type Data struct {
	Proveedores []Proveedor
	Pedidos     []Pedido
	PedidoMats  []PedidoMat
	Materiales  []Material
}

func DaysSinceEpoch(t time.Time) int32 {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int32(midnight.Unix() / 86400)
}

func DateFromDays(days int32) time.Time {
	return time.Unix(int64(days)*86400, 0).UTC()
}
