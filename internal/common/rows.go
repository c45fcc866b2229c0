package common

import "math/big"

// Row types mirror the target table schema exactly: column order and typing
// follow the versioned DDL under db/. Optional columns carry the not-set
// sentinels from sentinel.go, never NULL.

type BlockRow struct {
	BlockIdGroup     int64    `ch:"block_id_group"`
	BlockId          int64    `ch:"block_id"`
	BlockHash        string   `ch:"block_hash"`
	ParentHash       string   `ch:"parent_hash"`
	Nonce            string   `ch:"nonce"`
	Sha3Uncles       string   `ch:"sha3_uncles"`
	LogsBloom        string   `ch:"logs_bloom"`
	TransactionsRoot string   `ch:"transactions_root"`
	StateRoot        string   `ch:"state_root"`
	ReceiptsRoot     string   `ch:"receipts_root"`
	Miner            string   `ch:"miner"`
	Difficulty       *big.Int `ch:"difficulty"`
	TotalDifficulty  string   `ch:"total_difficulty"`
	Size             int64    `ch:"size"`
	ExtraData        string   `ch:"extra_data"`
	GasLimit         int64    `ch:"gas_limit"`
	GasUsed          int64    `ch:"gas_used"`
	BaseFeePerGas    int64    `ch:"base_fee_per_gas"`
	Timestamp        int64    `ch:"timestamp"`
	TransactionCount int64    `ch:"transaction_count"`
	TraceCount       int64    `ch:"trace_count"`
	LogCount         int64    `ch:"log_count"`
}

type TransactionRow struct {
	TxHashPrefix             string   `ch:"tx_hash_prefix"`
	TxHash                   string   `ch:"tx_hash"`
	Nonce                    int64    `ch:"nonce"`
	BlockId                  int64    `ch:"block_id"`
	BlockHash                string   `ch:"block_hash"`
	BlockTimestamp           int64    `ch:"block_timestamp"`
	TransactionIndex         int64    `ch:"transaction_index"`
	FromAddress              string   `ch:"from_address"`
	ToAddress                string   `ch:"to_address"`
	Value                    *big.Int `ch:"value"`
	Gas                      int64    `ch:"gas"`
	GasPrice                 int64    `ch:"gas_price"`
	Input                    string   `ch:"input"`
	MaxFeePerGas             int64    `ch:"max_fee_per_gas"`
	MaxPriorityFeePerGas     int64    `ch:"max_priority_fee_per_gas"`
	TransactionType          int64    `ch:"transaction_type"`
	ReceiptCumulativeGasUsed int64    `ch:"receipt_cumulative_gas_used"`
	ReceiptGasUsed           int64    `ch:"receipt_gas_used"`
	ReceiptContractAddress   string   `ch:"receipt_contract_address"`
	ReceiptRoot              string   `ch:"receipt_root"`
	ReceiptStatus            int64    `ch:"receipt_status"`
	ReceiptEffectiveGasPrice int64    `ch:"receipt_effective_gas_price"`
}

type TraceRow struct {
	BlockIdGroup     int64  `ch:"block_id_group"`
	BlockId          int64  `ch:"block_id"`
	TraceId          string `ch:"trace_id"`
	TraceIndex       int64  `ch:"trace_index"`
	TxHash           string `ch:"tx_hash"`
	TransactionIndex int64  `ch:"transaction_index"`
	FromAddress      string `ch:"from_address"`
	ToAddress        string `ch:"to_address"`
	Value            string `ch:"value"`
	Input            string `ch:"input"`
	Output           string `ch:"output"`
	TraceType        string `ch:"trace_type"`
	CallType         string `ch:"call_type"`
	RewardType       string `ch:"reward_type"`
	Gas              int64  `ch:"gas"`
	GasUsed          int64  `ch:"gas_used"`
	Subtraces        int64  `ch:"subtraces"`
	TraceAddress     string `ch:"trace_address"`
	Error            string `ch:"error"`
	Status           int64  `ch:"status"`
}

type LogRow struct {
	BlockIdGroup     int64    `ch:"block_id_group"`
	BlockId          int64    `ch:"block_id"`
	BlockHash        string   `ch:"block_hash"`
	Address          string   `ch:"address"`
	Data             string   `ch:"data"`
	Topics           []string `ch:"topics"`
	Topic0           string   `ch:"topic0"`
	TxHash           string   `ch:"tx_hash"`
	LogIndex         int64    `ch:"log_index"`
	TransactionIndex int64    `ch:"transaction_index"`
}

// RowSet groups the rows produced from one fetched sub-range, one slice per
// entity table.
type RowSet struct {
	Blocks       []BlockRow
	Transactions []TransactionRow
	Traces       []TraceRow
	Logs         []LogRow
}
