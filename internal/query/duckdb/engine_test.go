package duckdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chatsql/chatsql/internal/chat"
	"github.com/chatsql/chatsql/internal/dataset"
	"github.com/chatsql/chatsql/internal/query"
	"github.com/chatsql/chatsql/internal/storage"
)

func seededStore(t *testing.T, data dataset.Data) *memoryStore {
	t.Helper()
	tables, err := data.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	store := &memoryStore{objects: map[string][]byte{}}
	if _, err := dataset.Upload(context.Background(), store, "dataset", tables); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	return store
}

func fixtureData() dataset.Data {
	fval := dataset.DaysSinceEpoch(time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC))
	return dataset.Data{
		Proveedores: []dataset.Proveedor{
			{ID: 1, Name: "Acme", FVal: fval, Email: "a@acme.example", Phone: "1"},
			{ID: 2, Name: "Globex", FVal: fval, Email: "", Phone: "2"},
		},
		Pedidos: []dataset.Pedido{
			{NumPed: 10, IDProv: 1, Fecha: dataset.DaysSinceEpoch(time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC))},
			{NumPed: 11, IDProv: 2, Fecha: dataset.DaysSinceEpoch(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))},
		},
		PedidoMats: []dataset.PedidoMat{
			{IDPed: 10, IDMat: 100, Cantidad: 3},
			{IDPed: 11, IDMat: 100, Cantidad: 5},
		},
		Materiales: []dataset.Material{{ID: 100, Name: "Tornillo", UnPrice: 2}},
	}
}

func TestExecuteQueryReadsDatasetThroughObjectStore(t *testing.T) {
	engine := NewEngine(seededStore(t, fixtureData()), "dataset", 0)

	result, err := engine.ExecuteQuery(context.Background(), chat.Payload{"SQL": "SELECT ID, NAME FROM PROVEEDOR ORDER BY ID"})
	if err != nil {
		t.Fatalf("ExecuteQuery() error = %v", err)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if string(raw) != `[{"ID":1,"NAME":"Acme"},{"ID":2,"NAME":"Globex"}]` {
		t.Fatalf("result = %s", raw)
	}
}

func TestExecuteQueryJoinsTablesAndFormatsDates(t *testing.T) {
	engine := NewEngine(seededStore(t, fixtureData()), "dataset", 0)

	result, err := engine.ExecuteQuery(context.Background(), chat.Payload{"SQL": `
		SELECT p.NAME, d.FECHA, SUM(m.CANTIDAD * mat.UNPRICE) AS TOTAL
		FROM PEDIDO d
		JOIN PROVEEDOR p ON p.ID = d.IDPROV
		JOIN PEDIDOMAT m ON m.IDPED = d.NUMPED
		JOIN MATERIAL mat ON mat.ID = m.IDMAT
		GROUP BY p.NAME, d.FECHA
		ORDER BY d.FECHA;`})
	if err != nil {
		t.Fatalf("ExecuteQuery() error = %v", err)
	}
	rows, ok := result.([]query.Row)
	if !ok || len(rows) != 2 {
		t.Fatalf("result = %#v", result)
	}
	fecha := columnValue(rows[0], "FECHA")
	if fecha != "2024-02-01" {
		t.Fatalf("FECHA = %#v", fecha)
	}
	name := columnValue(rows[1], "NAME")
	if name != "Globex" {
		t.Fatalf("NAME = %#v", name)
	}
}

func TestExecuteQueryAppliesRowLimit(t *testing.T) {
	engine := NewEngine(seededStore(t, fixtureData()), "dataset", 1)

	result, err := engine.ExecuteQuery(context.Background(), chat.Payload{"SQL": "SELECT * FROM PEDIDO;"})
	if err != nil {
		t.Fatalf("ExecuteQuery() error = %v", err)
	}
	if rows := result.([]query.Row); len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
}

func TestExecuteQueryReportsMissingTable(t *testing.T) {
	store := seededStore(t, fixtureData())
	delete(store.objects, "dataset/MATERIAL.parquet")
	engine := NewEngine(store, "dataset", 0)

	_, err := engine.ExecuteQuery(context.Background(), chat.Payload{"SQL": "SELECT 1"})
	if err == nil || !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("ExecuteQuery() error = %v", err)
	}
	if err := engine.HealthCheck(context.Background()); err == nil {
		t.Fatal("HealthCheck() expected error")
	}
}

func TestExecuteQueryReportsInvalidSQL(t *testing.T) {
	engine := NewEngine(seededStore(t, fixtureData()), "dataset", 0)

	_, err := engine.ExecuteQuery(context.Background(), chat.Payload{"SQL": "SELECT * FROM PROVEEDORES"})
	if err == nil || !strings.Contains(err.Error(), "execute query") {
		t.Fatalf("ExecuteQuery() error = %v", err)
	}
	if _, err := engine.ExecuteQuery(context.Background(), chat.Payload{}); err == nil {
		t.Fatal("expected error for missing SQL")
	}
	if err := engine.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheckUsesListingWhenAvailable(t *testing.T) {
	store := &listingStore{memoryStore: seededStore(t, fixtureData())}
	engine := NewEngine(store, "dataset", 0)

	if err := engine.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if store.lists != 1 {
		t.Fatalf("List() calls = %d, want 1", store.lists)
	}

	delete(store.objects, "dataset/PEDIDO.parquet")
	err := engine.HealthCheck(context.Background())
	if err == nil || !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("HealthCheck() error = %v", err)
	}
}

func TestExecuteQueryCannotReachHostFiles(t *testing.T) {
	secret := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(secret, []byte("API_KEY=hunter2\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	quoted := "'" + secret + "'"
	statements := []string{
		"SELECT content FROM read_text(" + quoted + ")",
		"SELECT * FROM read_csv(" + quoted + ")",
		"SELECT * FROM " + quoted,
		"SELECT NAME FROM PROVEEDOR WHERE ID IN (SELECT length(content) FROM read_text(" + quoted + "))",
		"SELECT getenv('HOME') AS home",
		"SET enable_external_access = true",
		"COPY PROVEEDOR TO " + quoted,
	}

	for _, rowLimit := range []int{0, 200} {
		engine := NewEngine(seededStore(t, fixtureData()), "dataset", rowLimit)
		for _, statement := range statements {
			result, err := engine.ExecuteQuery(context.Background(), chat.Payload{"SQL": statement})
			if err == nil {
				t.Fatalf("row limit %d: ExecuteQuery(%q) = %#v, want error", rowLimit, statement, result)
			}
		}

		result, err := engine.ExecuteQuery(context.Background(), chat.Payload{"SQL": "SELECT COUNT(*) AS N FROM PROVEEDOR"})
		if err != nil {
			t.Fatalf("row limit %d: ExecuteQuery() error = %v", rowLimit, err)
		}
		if rows := result.([]query.Row); len(rows) != 1 {
			t.Fatalf("rows = %d", len(rows))
		}
	}
}

func TestExecuteQueryRejectsSeveralStatements(t *testing.T) {
	engine := NewEngine(seededStore(t, fixtureData()), "dataset", 0)

	_, err := engine.ExecuteQuery(context.Background(), chat.Payload{"SQL": "SELECT 1; SELECT content FROM read_text('/etc/hostname')"})
	if !errors.Is(err, query.ErrMultipleStatements) {
		t.Fatalf("ExecuteQuery() error = %v", err)
	}
}

func columnValue(row query.Row, column string) any {
	for i, name := range row.Columns {
		if name == column && i < len(row.Values) {
			return row.Values[i]
		}
	}
	return nil
}

type listingStore struct {
	*memoryStore
	lists int
}

func (l *listingStore) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	l.lists++
	infos := make([]storage.ObjectInfo, 0, len(l.objects))
	for key, payload := range l.objects {
		if strings.HasPrefix(key, prefix+"/") {
			infos = append(infos, storage.ObjectInfo{Key: key, Size: int64(len(payload))})
		}
	}
	return infos, nil
}

type memoryStore struct {
	objects map[string][]byte
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	payload, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.objects[key] = payload
	return storage.ObjectInfo{Key: key, Size: int64(len(payload))}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	payload, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

func (m *memoryStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	payload, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(payload))}, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}
