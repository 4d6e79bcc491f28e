package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildTablePath returns the object key of a table's Parquet file, e.g.
// "dataset/PROVEEDOR.parquet". The prefix may span several path segments.
func BuildTablePath(prefix, tableName string) (string, error) {
	if err := validatePathComponent(tableName, "table name"); err != nil {
		return "", err
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix != "" {
		for _, segment := range strings.Split(prefix, "/") {
			if err := validatePathComponent(segment, "path prefix segment"); err != nil {
				return "", err
			}
		}
	}
	return path.Join(prefix, tableName+".parquet"), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
