package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog/log"

	config "github.com/chainmirror/chainmirror/configs"
	"github.com/chainmirror/chainmirror/internal/common"
)

// ClickHouseConnector writes into ReplacingMergeTree tables, so every insert
// is an upsert keyed by the table's ORDER BY key and re-ingesting a range
// only replaces row versions.
type ClickHouseConnector struct {
	conn     clickhouse.Conn
	database string
}

// Every store operation is bounded; a hung connection fails the batch and the
// retry policy takes over.
const (
	clickhouseDialTimeout = 10 * time.Second
	clickhouseReadTimeout = 60 * time.Second
)

func NewClickHouseConnector(cfg *config.ClickhouseConfig) (*ClickHouseConnector, error) {
	addrs := make([]string, 0, len(cfg.Hosts))
	for _, host := range cfg.Hosts {
		addrs = append(addrs, fmt.Sprintf("%s:%d", host, cfg.Port))
	}

	options := &clickhouse.Options{
		Addr:     addrs,
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: clickhouseDialTimeout,
		ReadTimeout: clickhouseReadTimeout,
	}
	if cfg.EnableTLS {
		options.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), clickhouseDialTimeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse at %v: %w", addrs, err)
	}

	log.Debug().Msgf("Connected to clickhouse database %s at %v", cfg.Database, addrs)
	return &ClickHouseConnector{conn: conn, database: cfg.Database}, nil
}

func (c *ClickHouseConnector) Close() error {
	return c.conn.Close()
}

func (c *ClickHouseConnector) InsertBlocks(ctx context.Context, blocks []common.BlockRow) error {
	if len(blocks) == 0 {
		return nil
	}
	query := fmt.Sprintf(`INSERT INTO %s.block (
		block_id_group, block_id, block_hash, parent_hash, nonce, sha3_uncles,
		logs_bloom, transactions_root, state_root, receipts_root, miner,
		difficulty, total_difficulty, size, extra_data, gas_limit, gas_used,
		base_fee_per_gas, timestamp, transaction_count, trace_count, log_count)`, c.database)
	batch, err := c.conn.PrepareBatch(ctx, query)
	if err != nil {
		return c.classify(err)
	}
	for _, b := range blocks {
		err := batch.Append(
			b.BlockIdGroup, b.BlockId, b.BlockHash, b.ParentHash, b.Nonce, b.Sha3Uncles,
			b.LogsBloom, b.TransactionsRoot, b.StateRoot, b.ReceiptsRoot, b.Miner,
			b.Difficulty, b.TotalDifficulty, b.Size, b.ExtraData, b.GasLimit, b.GasUsed,
			b.BaseFeePerGas, b.Timestamp, b.TransactionCount, b.TraceCount, b.LogCount,
		)
		if err != nil {
			return c.classify(err)
		}
	}
	return c.classify(batch.Send())
}

func (c *ClickHouseConnector) InsertTransactions(ctx context.Context, transactions []common.TransactionRow) error {
	if len(transactions) == 0 {
		return nil
	}
	query := fmt.Sprintf(`INSERT INTO %s.transaction (
		tx_hash_prefix, tx_hash, nonce, block_id, block_hash, block_timestamp,
		transaction_index, from_address, to_address, value, gas, gas_price,
		input, max_fee_per_gas, max_priority_fee_per_gas, transaction_type,
		receipt_cumulative_gas_used, receipt_gas_used, receipt_contract_address,
		receipt_root, receipt_status, receipt_effective_gas_price)`, c.database)
	batch, err := c.conn.PrepareBatch(ctx, query)
	if err != nil {
		return c.classify(err)
	}
	for _, t := range transactions {
		err := batch.Append(
			t.TxHashPrefix, t.TxHash, t.Nonce, t.BlockId, t.BlockHash, t.BlockTimestamp,
			t.TransactionIndex, t.FromAddress, t.ToAddress, t.Value, t.Gas, t.GasPrice,
			t.Input, t.MaxFeePerGas, t.MaxPriorityFeePerGas, t.TransactionType,
			t.ReceiptCumulativeGasUsed, t.ReceiptGasUsed, t.ReceiptContractAddress,
			t.ReceiptRoot, t.ReceiptStatus, t.ReceiptEffectiveGasPrice,
		)
		if err != nil {
			return c.classify(err)
		}
	}
	return c.classify(batch.Send())
}

func (c *ClickHouseConnector) InsertTraces(ctx context.Context, traces []common.TraceRow) error {
	if len(traces) == 0 {
		return nil
	}
	query := fmt.Sprintf(`INSERT INTO %s.trace (
		block_id_group, block_id, trace_id, trace_index, tx_hash,
		transaction_index, from_address, to_address, value, input, output,
		trace_type, call_type, reward_type, gas, gas_used, subtraces,
		trace_address, error, status)`, c.database)
	batch, err := c.conn.PrepareBatch(ctx, query)
	if err != nil {
		return c.classify(err)
	}
	for _, t := range traces {
		err := batch.Append(
			t.BlockIdGroup, t.BlockId, t.TraceId, t.TraceIndex, t.TxHash,
			t.TransactionIndex, t.FromAddress, t.ToAddress, t.Value, t.Input, t.Output,
			t.TraceType, t.CallType, t.RewardType, t.Gas, t.GasUsed, t.Subtraces,
			t.TraceAddress, t.Error, t.Status,
		)
		if err != nil {
			return c.classify(err)
		}
	}
	return c.classify(batch.Send())
}

func (c *ClickHouseConnector) InsertLogs(ctx context.Context, logs []common.LogRow) error {
	if len(logs) == 0 {
		return nil
	}
	query := fmt.Sprintf(`INSERT INTO %s.log (
		block_id_group, block_id, block_hash, address, data, topics, topic0,
		tx_hash, log_index, transaction_index)`, c.database)
	batch, err := c.conn.PrepareBatch(ctx, query)
	if err != nil {
		return c.classify(err)
	}
	for _, l := range logs {
		err := batch.Append(
			l.BlockIdGroup, l.BlockId, l.BlockHash, l.Address, l.Data, l.Topics, l.Topic0,
			l.TxHash, l.LogIndex, l.TransactionIndex,
		)
		if err != nil {
			return c.classify(err)
		}
	}
	return c.classify(batch.Send())
}

// emptyBlockCounters maps each secondary table to the block-table column that
// says how many rows of that entity its block produced. A block whose counter
// is zero leaves no rows in the secondary table, and the checkpoint derivation
// must not read that hole as missing data.
var emptyBlockCounters = map[common.Table]string{
	common.TableTransaction: "transaction_count",
	common.TableTrace:       "trace_count",
	common.TableLog:         "log_count",
}

// GetCheckpoint re-derives the last fully ingested block of one table: the
// top of the contiguous block prefix actually present, computed with a rank
// comparison over the distinct block ids. An empty table has no checkpoint.
func (c *ClickHouseConnector) GetCheckpoint(ctx context.Context, table common.Table) (int64, error) {
	present := fmt.Sprintf("SELECT DISTINCT block_id FROM %s.%s", c.database, table)
	if counter, ok := emptyBlockCounters[table]; ok {
		present = fmt.Sprintf(
			"%s UNION DISTINCT SELECT block_id FROM %s.block FINAL WHERE %s = 0",
			present, c.database, counter,
		)
	}
	query := fmt.Sprintf(`
		SELECT count() AS n, max(block_id) AS last
		FROM (
			SELECT block_id, row_number() OVER (ORDER BY block_id) - 1 AS expected
			FROM (%s)
		)
		WHERE block_id = expected`, present)

	var n uint64
	var last int64
	if err := c.conn.QueryRow(ctx, query).Scan(&n, &last); err != nil {
		return 0, c.classify(err)
	}
	if n == 0 {
		return common.NoCheckpoint, nil
	}
	return last, nil
}

// classify folds server-side schema errors into ErrSchemaMismatch so callers
// can tell a stale schema (fatal) apart from a flaky write (retryable).
// Codes: 16 no such column, 47 unknown identifier, 53 type mismatch,
// 60 unknown table, 81 unknown database.
func (c *ClickHouseConnector) classify(err error) error {
	if err == nil {
		return nil
	}
	var exception *clickhouse.Exception
	if errors.As(err, &exception) {
		switch exception.Code {
		case 16, 47, 53, 60, 81:
			return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
		}
	}
	return err
}
