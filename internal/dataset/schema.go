// Package dataset describes the purchasing database the assistant answers
// questions about: four tables of providers, orders, order lines and
// materials. The same catalogue renders the model instructions, names the
// Parquet objects of the demo copy and shapes the generated demo rows.
package dataset

const (
	TableProveedor = "PROVEEDOR"
	TablePedido    = "PEDIDO"
	TablePedidoMat = "PEDIDOMAT"
	TableMaterial  = "MATERIAL"
)

type Column struct {
	Name        string
	Type        string
	Description string
}

type Table struct {
	Name        string
	Description string
	Columns     []Column
}

// Relationship links a referenced column to the column that refers to it,
// both written as Table.Column.
type Relationship struct {
	From string
	To   string
}

type Schema struct {
	Tables        []Table
	Relationships []Relationship
}

// Purchasing returns the fixed schema. Callers get their own copy.
func Purchasing() Schema {
	return Schema{
		Tables: []Table{
			{
				Name:        TablePedido,
				Description: "This table stores all individual order data",
				Columns: []Column{
					{Name: "NUMPED", Type: "INT", Description: "Order ID"},
					{Name: "IDPROV", Type: "INT", Description: "Provider ID foreign key"},
					{Name: "FECHA", Type: "DATE", Description: "Date of the order"},
				},
			},
			{
				Name:        TableProveedor,
				Description: "This table stores all the provider data",
				Columns: []Column{
					{Name: "ID", Type: "INT", Description: "Provider ID"},
					{Name: "NAME", Type: "VARCHAR", Description: "Provider name"},
					{Name: "FVAL", Type: "DATE", Description: "Validity date of the provider"},
					{Name: "EMAIL", Type: "VARCHAR", Description: "Email of the provider"},
					{Name: "PHONE", Type: "VARCHAR", Description: "Phone of the provider"},
				},
			},
			{
				Name:        TablePedidoMat,
				Description: "This table joins the materials and orders",
				Columns: []Column{
					{Name: "IDPED", Type: "INT", Description: "ID of the pedido table"},
					{Name: "IDMAT", Type: "INT", Description: "ID of the material"},
					{Name: "CANTIDAD", Type: "INT", Description: "Quantity of the material"},
				},
			},
			{
				Name:        TableMaterial,
				Description: "This table holds a list of materials that can be ordered",
				Columns: []Column{
					{Name: "ID", Type: "INT", Description: "ID of the material"},
					{Name: "NAME", Type: "VARCHAR", Description: "Name of the material"},
					{Name: "UNPRICE", Type: "INT", Description: "Unit price of the material"},
				},
			},
		},
		Relationships: []Relationship{
			{From: "PROVEEDOR.ID", To: "PEDIDO.IDPROV"},
			{From: "PEDIDO.NUMPED", To: "PEDIDOMAT.IDPED"},
			{From: "PEDIDOMAT.IDMAT", To: "MATERIAL.ID"},
		},
	}
}

// TableNames lists the schema tables in catalogue order.
func TableNames() []string {
	tables := Purchasing().Tables
	names := make([]string, 0, len(tables))
	for _, table := range tables {
		names = append(names, table.Name)
	}
	return names
}

// DateColumns returns every DATE column as Table.Column.
func (s Schema) DateColumns() []string {
	var out []string
	for _, table := range s.Tables {
		for _, column := range table.Columns {
			if column.Type == "DATE" {
				out = append(out, table.Name+"."+column.Name)
			}
		}
	}
	return out
}
