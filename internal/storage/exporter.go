package storage

import (
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog/log"

	config "github.com/chainmirror/chainmirror/configs"
	"github.com/chainmirror/chainmirror/internal/common"
)

const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

const (
	DefaultFileBatchSize      = 1000
	defaultPartitionBatchSize = 1_000_000
)

// FileExporter serializes row sets into compressed, partitioned files for
// bulk loading by an external loader. File names encode the covered block
// range, so progress can be reconstructed from the directory alone; no store
// checkpoint is read or advanced.
type FileExporter struct {
	directory          string
	format             string
	partitionBatchSize int64
}

func NewFileExporter(cfg *config.ExportConfig) (*FileExporter, error) {
	if cfg.Directory == "" {
		return nil, fmt.Errorf("export directory is not set")
	}
	format := cfg.Format
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatParquet {
		return nil, fmt.Errorf("unknown export format %q", cfg.Format)
	}
	partitionBatchSize := int64(cfg.PartitionBatchSize)
	if partitionBatchSize <= 0 {
		partitionBatchSize = defaultPartitionBatchSize
	}
	fileBatchSize := int64(cfg.FileBatchSize)
	if fileBatchSize <= 0 {
		fileBatchSize = DefaultFileBatchSize
	}
	// a file batch must never straddle two partition directories
	if partitionBatchSize%fileBatchSize != 0 {
		return nil, fmt.Errorf("partition batch size %d is not a multiple of file batch size %d", partitionBatchSize, fileBatchSize)
	}
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	return &FileExporter{
		directory:          cfg.Directory,
		format:             format,
		partitionBatchSize: partitionBatchSize,
	}, nil
}

// WriteBatch writes every entity file for one block batch [start, end] into
// the partition directory the batch falls into. Files are written even when
// an entity has no rows, so a complete range is always fully covered on disk.
func (e *FileExporter) WriteBatch(rows common.RowSet, start, end int64) error {
	partitionStart := start - (start % e.partitionBatchSize)
	partitionEnd := partitionStart + e.partitionBatchSize - 1
	dir := filepath.Join(e.directory, fmt.Sprintf("%08d-%08d", partitionStart, partitionEnd))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create partition directory: %w", err)
	}

	if e.format == FormatParquet {
		return e.writeParquet(rows, dir, start, end)
	}
	return e.writeCSV(rows, dir, start, end)
}

func (e *FileExporter) writeCSV(rows common.RowSet, dir string, start, end int64) error {
	if err := writeCSVFile(entityPath(dir, "block", start, end, "csv.gz"), blockHeader, blockRecords(rows.Blocks)); err != nil {
		return err
	}
	if err := writeCSVFile(entityPath(dir, "transaction", start, end, "csv.gz"), transactionHeader, transactionRecords(rows.Transactions)); err != nil {
		return err
	}
	if err := writeCSVFile(entityPath(dir, "trace", start, end, "csv.gz"), traceHeader, traceRecords(rows.Traces)); err != nil {
		return err
	}
	// logs carry free-form hex payloads and a JSON topics column, the loader
	// expects them pipe-delimited and unquoted
	if err := writeDelimitedFile(entityPath(dir, "log", start, end, "csv.gz"), logHeader, logRecords(rows.Logs), "|"); err != nil {
		return err
	}
	log.Debug().Msgf("Exported blocks %d-%d to %s", start, end, dir)
	return nil
}

func entityPath(dir, entity string, start, end int64, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%08d-%08d.%s", entity, start, end, ext))
}

func writeCSVFile(path string, header []string, records [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	w := csv.NewWriter(gz)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header to %s: %w", path, err)
	}
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write rows to %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to close gzip stream of %s: %w", path, err)
	}
	return file.Close()
}

func writeDelimitedFile(path string, header []string, records [][]string, delimiter string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	lines := make([]string, 0, len(records)+1)
	lines = append(lines, strings.Join(header, delimiter))
	for _, record := range records {
		lines = append(lines, strings.Join(record, delimiter))
	}
	if _, err := gz.Write([]byte(strings.Join(lines, "\n") + "\n")); err != nil {
		return fmt.Errorf("failed to write rows to %s: %w", path, err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to close gzip stream of %s: %w", path, err)
	}
	return file.Close()
}

var exportFilePattern = regexp.MustCompile(`^block(?:data)?_(\d{8})-(\d{8})\.(?:csv\.gz|parquet)$`)

// LastExportedBlock scans the export directory for previously written files
// and returns the highest covered block, so a run with --continue can resume
// where the files left off. An empty directory has no progress.
func (e *FileExporter) LastExportedBlock() (int64, error) {
	last := common.NoCheckpoint
	err := filepath.WalkDir(e.directory, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		match := exportFilePattern.FindStringSubmatch(d.Name())
		if match == nil {
			return nil
		}
		end, err := strconv.ParseInt(match[2], 10, 64)
		if err != nil {
			return nil
		}
		if end > last {
			last = end
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan export directory: %w", err)
	}
	return last, nil
}

var (
	blockHeader = []string{
		"block_id_group", "block_id", "block_hash", "parent_hash", "nonce",
		"sha3_uncles", "logs_bloom", "transactions_root", "state_root",
		"receipts_root", "miner", "difficulty", "total_difficulty", "size",
		"extra_data", "gas_limit", "gas_used", "base_fee_per_gas", "timestamp",
		"transaction_count", "trace_count", "log_count",
	}
	transactionHeader = []string{
		"tx_hash_prefix", "tx_hash", "nonce", "block_id", "block_hash",
		"block_timestamp", "transaction_index", "from_address", "to_address",
		"value", "gas", "gas_price", "input", "max_fee_per_gas",
		"max_priority_fee_per_gas", "transaction_type",
		"receipt_cumulative_gas_used", "receipt_gas_used",
		"receipt_contract_address", "receipt_root", "receipt_status",
		"receipt_effective_gas_price",
	}
	traceHeader = []string{
		"block_id_group", "block_id", "trace_id", "trace_index", "tx_hash",
		"transaction_index", "from_address", "to_address", "value", "input",
		"output", "trace_type", "call_type", "reward_type", "gas", "gas_used",
		"subtraces", "trace_address", "error", "status",
	}
	logHeader = []string{
		"block_id_group", "block_id", "block_hash", "address", "data",
		"topics", "topic0", "tx_hash", "log_index", "transaction_index",
	}
)

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func formatBig(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func blockRecords(blocks []common.BlockRow) [][]string {
	records := make([][]string, 0, len(blocks))
	for _, b := range blocks {
		records = append(records, []string{
			formatInt(b.BlockIdGroup), formatInt(b.BlockId), b.BlockHash, b.ParentHash, b.Nonce,
			b.Sha3Uncles, b.LogsBloom, b.TransactionsRoot, b.StateRoot,
			b.ReceiptsRoot, b.Miner, formatBig(b.Difficulty), b.TotalDifficulty, formatInt(b.Size),
			b.ExtraData, formatInt(b.GasLimit), formatInt(b.GasUsed), formatInt(b.BaseFeePerGas), formatInt(b.Timestamp),
			formatInt(b.TransactionCount), formatInt(b.TraceCount), formatInt(b.LogCount),
		})
	}
	return records
}

func transactionRecords(transactions []common.TransactionRow) [][]string {
	records := make([][]string, 0, len(transactions))
	for _, t := range transactions {
		records = append(records, []string{
			t.TxHashPrefix, t.TxHash, formatInt(t.Nonce), formatInt(t.BlockId), t.BlockHash,
			formatInt(t.BlockTimestamp), formatInt(t.TransactionIndex), t.FromAddress, t.ToAddress,
			formatBig(t.Value), formatInt(t.Gas), formatInt(t.GasPrice), t.Input, formatInt(t.MaxFeePerGas),
			formatInt(t.MaxPriorityFeePerGas), formatInt(t.TransactionType),
			formatInt(t.ReceiptCumulativeGasUsed), formatInt(t.ReceiptGasUsed),
			t.ReceiptContractAddress, t.ReceiptRoot, formatInt(t.ReceiptStatus),
			formatInt(t.ReceiptEffectiveGasPrice),
		})
	}
	return records
}

func traceRecords(traces []common.TraceRow) [][]string {
	records := make([][]string, 0, len(traces))
	for _, t := range traces {
		records = append(records, []string{
			formatInt(t.BlockIdGroup), formatInt(t.BlockId), t.TraceId, formatInt(t.TraceIndex), t.TxHash,
			formatInt(t.TransactionIndex), t.FromAddress, t.ToAddress, t.Value, t.Input,
			t.Output, t.TraceType, t.CallType, t.RewardType, formatInt(t.Gas), formatInt(t.GasUsed),
			formatInt(t.Subtraces), t.TraceAddress, t.Error, formatInt(t.Status),
		})
	}
	return records
}

func logRecords(logs []common.LogRow) [][]string {
	records := make([][]string, 0, len(logs))
	for _, l := range logs {
		topics, _ := json.Marshal(l.Topics)
		records = append(records, []string{
			formatInt(l.BlockIdGroup), formatInt(l.BlockId), l.BlockHash, l.Address, l.Data,
			string(topics), l.Topic0, l.TxHash, formatInt(l.LogIndex), formatInt(l.TransactionIndex),
		})
	}
	return records
}

// parquetBlockData is the parquet layout: one row per block, with the entity
// rows of that block carried as JSON payload columns.
type parquetBlockData struct {
	BlockId      int64  `parquet:"block_id"`
	BlockHash    string `parquet:"block_hash"`
	Timestamp    int64  `parquet:"timestamp"`
	Block        []byte `parquet:"block"`
	Transactions []byte `parquet:"transactions"`
	Traces       []byte `parquet:"traces"`
	Logs         []byte `parquet:"logs"`
}

var parquetWriterOptions = []parquet.WriterOption{
	parquet.Compression(&parquet.Zstd),
	parquet.DataPageStatistics(true),
	parquet.PageBufferSize(8 * 1024 * 1024),
}

func (e *FileExporter) writeParquet(rows common.RowSet, dir string, start, end int64) error {
	grouped := groupByBlock(rows)

	data := make([]parquetBlockData, 0, len(rows.Blocks))
	for _, block := range rows.Blocks {
		group := grouped[block.BlockId]
		if group == nil {
			group = &blockGroup{}
		}
		blockJSON, err := json.Marshal(block)
		if err != nil {
			return fmt.Errorf("failed to marshal block %d: %w", block.BlockId, err)
		}
		txJSON, err := json.Marshal(group.transactions)
		if err != nil {
			return fmt.Errorf("failed to marshal transactions of block %d: %w", block.BlockId, err)
		}
		tracesJSON, err := json.Marshal(group.traces)
		if err != nil {
			return fmt.Errorf("failed to marshal traces of block %d: %w", block.BlockId, err)
		}
		logsJSON, err := json.Marshal(group.logs)
		if err != nil {
			return fmt.Errorf("failed to marshal logs of block %d: %w", block.BlockId, err)
		}
		data = append(data, parquetBlockData{
			BlockId:      block.BlockId,
			BlockHash:    block.BlockHash,
			Timestamp:    block.Timestamp,
			Block:        blockJSON,
			Transactions: txJSON,
			Traces:       tracesJSON,
			Logs:         logsJSON,
		})
	}

	path := entityPath(dir, "blockdata", start, end, "parquet")
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer file.Close()

	writer := parquet.NewGenericWriter[parquetBlockData](file, parquetWriterOptions...)
	if _, err := writer.Write(data); err != nil {
		return fmt.Errorf("failed to write parquet data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	log.Debug().Msgf("Exported blocks %d-%d to %s", start, end, path)
	return file.Close()
}

type blockGroup struct {
	transactions []common.TransactionRow
	traces       []common.TraceRow
	logs         []common.LogRow
}

func groupByBlock(rows common.RowSet) map[int64]*blockGroup {
	grouped := make(map[int64]*blockGroup, len(rows.Blocks))
	group := func(blockId int64) *blockGroup {
		g, ok := grouped[blockId]
		if !ok {
			g = &blockGroup{}
			grouped[blockId] = g
		}
		return g
	}
	for _, t := range rows.Transactions {
		g := group(t.BlockId)
		g.transactions = append(g.transactions, t)
	}
	for _, t := range rows.Traces {
		g := group(t.BlockId)
		g.traces = append(g.traces, t)
	}
	for _, l := range rows.Logs {
		g := group(l.BlockId)
		g.logs = append(g.logs, l)
	}
	return grouped
}
