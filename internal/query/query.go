// Package query holds what the SQL-executing backends share: statement
// preparation, row scanning and value normalisation.
package query

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chatsql/chatsql/internal/chat"
)

// Row is one result row. It marshals as a JSON object whose keys keep the
// column order of the query; a repeated column name keeps its first position
// and its last value.
type Row struct {
	Columns []string
	Values  []any
}

func (r Row) MarshalJSON() ([]byte, error) {
	last := make(map[string]int, len(r.Columns))
	for i, column := range r.Columns {
		last[column] = i
	}

	buf := bytes.NewBuffer(nil)
	buf.WriteByte('{')
	written := 0
	for _, column := range r.Columns {
		idx, ok := last[column]
		if !ok {
			continue
		}
		delete(last, column)

		key, err := json.Marshal(column)
		if err != nil {
			return nil, err
		}
		var value any
		if idx < len(r.Values) {
			value = r.Values[idx]
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode column %q: %w", column, err)
		}
		if written > 0 {
			buf.WriteByte(',')
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(encoded)
		written++
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

var ErrMultipleStatements = errors.New("only a single statement is allowed")

// Statement returns the executable text of the payload's SQL field. Text
// holding more than one statement is rejected.
func Statement(payload chat.Payload) (string, error) {
	sqlText := StripTrailingSemicolons(payload.SQL())
	if sqlText == "" {
		return "", fmt.Errorf("sql is required")
	}
	if hasStatementSeparator(sqlText) {
		return "", ErrMultipleStatements
	}
	return sqlText, nil
}

// hasStatementSeparator reports a ';' outside string literals, quoted
// identifiers and comments.
func hasStatementSeparator(sqlText string) bool {
	for i := 0; i < len(sqlText); i++ {
		switch sqlText[i] {
		case ';':
			return true
		case '\'', '"':
			end := strings.IndexByte(sqlText[i+1:], sqlText[i])
			if end < 0 {
				return false
			}
			i += end + 1
		case '-':
			if i+1 < len(sqlText) && sqlText[i+1] == '-' {
				end := strings.IndexByte(sqlText[i:], '\n')
				if end < 0 {
					return false
				}
				i += end
			}
		case '/':
			if i+1 < len(sqlText) && sqlText[i+1] == '*' {
				end := strings.Index(sqlText[i+2:], "*/")
				if end < 0 {
					return false
				}
				i += end + 3
			}
		}
	}
	return false
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

// Limit wraps sqlText so at most rowLimit rows come back. A non-positive
// limit leaves the statement unchanged.
func Limit(sqlText string, rowLimit int) string {
	if rowLimit <= 0 {
		return sqlText
	}
	return fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, rowLimit)
}

// ScanRows drains rows. The result is never nil so an empty result encodes
// as [].
func ScanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, Row{Columns: columns, Values: NormalizeValues(values)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return resultRows, nil
}

// NormalizeValues turns driver values into what callers expect to read:
// byte slices become strings and dates become YYYY-MM-DD.
func NormalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case time.Time:
			normalized[i] = normalizeTime(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func normalizeTime(value time.Time) any {
	utc := value.UTC()
	if utc.Hour() == 0 && utc.Minute() == 0 && utc.Second() == 0 && utc.Nanosecond() == 0 {
		return utc.Format(time.DateOnly)
	}
	return value
}
