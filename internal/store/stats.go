package store

import (
	"context"
	"fmt"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// ColumnStats is a read-only key-count/size snapshot of one logical column,
// recovered from logos-collab/src/storage/rocks.rs: the original RocksDB
// backend exposes per-column-family approximate counts and on-disk size for
// an admin/debug surface that a production deployment wants for diagnosing
// disk growth — it writes nothing and never participates in a request path.
type ColumnStats struct {
	KeyCount  int64
	ApproxSize int64
}

// ColumnName identifies one of the four logical columns for ColumnStats.
type ColumnName string

const (
	ColumnDocuments ColumnName = "documents"
	ColumnDeltas    ColumnName = "deltas"
	ColumnMetadata  ColumnName = "metadata"
	ColumnWAL       ColumnName = "wal"
)

func (s *Store) columnPrefix(name ColumnName) ([]byte, error) {
	switch name {
	case ColumnDocuments:
		return documentsColumnPrefix, nil
	case ColumnDeltas:
		return deltasColumnPrefix, nil
	case ColumnMetadata:
		return metadataColumnPrefix, nil
	case ColumnWAL:
		return walColumnPrefix, nil
	default:
		return nil, fmt.Errorf("store: unknown column %q", name)
	}
}

// ColumnStatsFor scans the given column and reports its key count and the
// approximate total size (key + value lengths) of its entries. This is an
// O(n) scan over the column, intended for an admin endpoint or test
// assertion, not the hot path.
func (s *Store) ColumnStatsFor(ctx context.Context, name ColumnName) (ColumnStats, error) {
	prefix, err := s.columnPrefix(name)
	if err != nil {
		return ColumnStats{}, err
	}
	var out ColumnStats
	err = s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			out.KeyCount++
			out.ApproxSize += int64(item.KeySize()) + item.ValueSize()
		}
		return nil
	})
	if err != nil {
		return ColumnStats{}, storageErr(err)
	}
	return out, nil
}
