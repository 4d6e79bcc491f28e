package query

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatsql/chatsql/internal/chat"
)

func TestRowMarshalKeepsColumnOrder(t *testing.T) {
	row := Row{Columns: []string{"NAME", "ID", "EMAIL"}, Values: []any{"Acme", int64(1), nil}}
	raw, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Equal(t, `{"NAME":"Acme","ID":1,"EMAIL":null}`, string(raw))
}

func TestRowMarshalCollapsesRepeatedColumns(t *testing.T) {
	row := Row{Columns: []string{"ID", "NAME", "ID"}, Values: []any{int64(1), "Acme", int64(7)}}
	raw, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Equal(t, `{"ID":7,"NAME":"Acme"}`, string(raw))
}

func TestRowsIndentInsideFormattingPrompt(t *testing.T) {
	rows := []Row{{Columns: []string{"ID", "NAME"}, Values: []any{int64(1), "Acme"}}}
	conversation, err := chat.FormattingConversation(rows)
	require.NoError(t, err)
	assert.Contains(t, conversation[1].Content, "[\n  {\n    \"ID\": 1,\n    \"NAME\": \"Acme\"\n  }\n]")
}

func TestStatementAndLimit(t *testing.T) {
	sqlText, err := Statement(chat.Payload{"SQL": " SELECT * FROM PROVEEDOR;; "})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM PROVEEDOR", sqlText)
	assert.Equal(t, "SELECT * FROM (SELECT 1) AS q LIMIT 5", Limit("SELECT 1", 5))
	assert.Equal(t, "SELECT 1", Limit("SELECT 1", 0))

	_, err = Statement(chat.Payload{"SQL": " ; "})
	assert.Error(t, err)
	_, err = Statement(chat.Payload{})
	assert.Error(t, err)
}

func TestStatementRejectsMultipleStatements(t *testing.T) {
	for _, sqlText := range []string{
		"SELECT 1; SELECT 2",
		"SELECT 1;\nDROP TABLE PROVEEDOR;",
		"SELECT 'a' ; COPY PROVEEDOR TO '/tmp/x.csv'",
	} {
		_, err := Statement(chat.Payload{"SQL": sqlText})
		assert.ErrorIs(t, err, ErrMultipleStatements, sqlText)
	}

	for _, sqlText := range []string{
		"SELECT * FROM PROVEEDOR;",
		"SELECT ';' AS sep FROM PROVEEDOR",
		`SELECT "a;b" FROM PROVEEDOR`,
		"SELECT 1 -- trailing; comment\nFROM PROVEEDOR",
		"SELECT /* ; */ 1",
		"SELECT 'it''s; fine'",
	} {
		_, err := Statement(chat.Payload{"SQL": sqlText})
		assert.NoError(t, err, sqlText)
	}
}

func TestNormalizeValues(t *testing.T) {
	stamp := time.Date(2024, time.May, 3, 14, 5, 0, 0, time.UTC)
	got := NormalizeValues([]any{
		[]byte("Acme"),
		time.Date(2024, time.May, 3, 0, 0, 0, 0, time.UTC),
		stamp,
		int64(4),
		nil,
	})
	assert.Equal(t, []any{"Acme", "2024-05-03", stamp, int64(4), nil}, got)
}

func TestScanRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT ID, NAME, FVAL FROM PROVEEDOR").WillReturnRows(
		sqlmock.NewRows([]string{"ID", "NAME", "FVAL"}).
			AddRow(int64(1), []byte("Acme"), time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)).
			AddRow(int64(2), "Globex", nil),
	)

	rows, err := db.Query("SELECT ID, NAME, FVAL FROM PROVEEDOR")
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	result, err := ScanRows(rows)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, []any{int64(1), "Acme", "2025-01-31"}, result[0].Values)
	assert.Equal(t, []any{int64(2), "Globex", nil}, result[1].Values)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanRowsEmptyEncodesAsArray(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"ID"}))
	rows, err := db.Query("SELECT ID FROM MATERIAL")
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	result, err := ScanRows(rows)
	require.NoError(t, err)
	raw, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}
