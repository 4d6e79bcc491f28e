package dataset

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/chatsql/chatsql/internal/storage"
)

// Upload writes every encoded table under prefix and returns the stored
// object metadata in the same order.
func Upload(ctx context.Context, store storage.ObjectStore, prefix string, tables []EncodedTable) ([]storage.ObjectInfo, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	infos := make([]storage.ObjectInfo, 0, len(tables))
	for _, table := range tables {
		key, err := storage.BuildTablePath(prefix, table.Table)
		if err != nil {
			return nil, err
		}
		info, err := store.Put(ctx, key, bytes.NewReader(table.Data), int64(len(table.Data)), storage.PutOptions{ContentType: "application/vnd.apache.parquet"})
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", table.Table, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// CatalogueStore is an object store that can also enumerate its keys.
type CatalogueStore interface {
	storage.ObjectStore
	storage.Lister
}

// Prune deletes Parquet objects directly under prefix that do not belong to
// any table in keep, so a re-seed leaves no stale table files for the query
// engines to pick up. It returns the deleted keys in listing order.
func Prune(ctx context.Context, store CatalogueStore, prefix string, keep []string) ([]string, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	wanted := make(map[string]struct{}, len(keep))
	for _, table := range keep {
		key, err := storage.BuildTablePath(prefix, table)
		if err != nil {
			return nil, err
		}
		wanted[key] = struct{}{}
	}

	listed, err := store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	parent := strings.Trim(strings.TrimSpace(prefix), "/")
	if parent == "" {
		parent = "."
	}
	var deleted []string
	for _, info := range listed {
		if path.Dir(info.Key) != parent || path.Ext(info.Key) != ".parquet" {
			continue
		}
		if _, ok := wanted[info.Key]; ok {
			continue
		}
		if err := store.Delete(ctx, info.Key); err != nil {
			return deleted, fmt.Errorf("delete %s: %w", info.Key, err)
		}
		deleted = append(deleted, info.Key)
	}
	return deleted, nil
}
