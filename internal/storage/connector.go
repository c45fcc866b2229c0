package storage

import (
	"context"
	"errors"
	"fmt"

	config "github.com/chainmirror/chainmirror/configs"
	"github.com/chainmirror/chainmirror/internal/common"
)

// ErrSchemaMismatch marks a store whose tables do not match the versioned DDL
// under db/. It is never retried; the schema has to be migrated first.
var ErrSchemaMismatch = errors.New("store schema does not match the expected layout")

// IMainStorage is the streaming sink. Inserts are idempotent upserts keyed by
// each row's natural key, so re-committing a sub-range is always safe.
// GetCheckpoint re-derives the last fully ingested block from the table's own
// contents; no checkpoint is ever stored separately.
type IMainStorage interface {
	InsertBlocks(ctx context.Context, blocks []common.BlockRow) error
	InsertTransactions(ctx context.Context, transactions []common.TransactionRow) error
	InsertTraces(ctx context.Context, traces []common.TraceRow) error
	InsertLogs(ctx context.Context, logs []common.LogRow) error
	GetCheckpoint(ctx context.Context, table common.Table) (int64, error)
	Close() error
}

func NewConnector(cfg *config.StorageConfig) (IMainStorage, error) {
	if cfg.Clickhouse != nil {
		return NewClickHouseConnector(cfg.Clickhouse)
	}
	if cfg.Memory != nil {
		return NewMemoryConnector(cfg.Memory), nil
	}
	return nil, fmt.Errorf("no storage driver configured")
}

// InsertRows commits one table's slice of a row set and reports how many rows
// it covered.
func InsertRows(ctx context.Context, storage IMainStorage, table common.Table, rows common.RowSet) (int, error) {
	switch table {
	case common.TableBlock:
		return len(rows.Blocks), storage.InsertBlocks(ctx, rows.Blocks)
	case common.TableTransaction:
		return len(rows.Transactions), storage.InsertTransactions(ctx, rows.Transactions)
	case common.TableTrace:
		return len(rows.Traces), storage.InsertTraces(ctx, rows.Traces)
	case common.TableLog:
		return len(rows.Logs), storage.InsertLogs(ctx, rows.Logs)
	}
	return 0, fmt.Errorf("unknown table %q", table)
}

// GetCheckpoints reads the checkpoint of every given table.
func GetCheckpoints(ctx context.Context, storage IMainStorage, tables []common.Table) (common.Checkpoints, error) {
	checkpoints := make(common.Checkpoints, len(tables))
	for _, table := range tables {
		checkpoint, err := storage.GetCheckpoint(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("failed to read checkpoint of table %s: %w", table, err)
		}
		checkpoints[table] = checkpoint
	}
	return checkpoints, nil
}
