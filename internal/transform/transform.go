package transform

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chainmirror/chainmirror/internal/common"
)

const (
	// BlockBucketSize groups blocks into partitions of 100k for the
	// block_id_group derived column.
	BlockBucketSize = 100_000

	// TxPrefixLength is the number of hex characters of the transaction hash
	// used for the tx_hash_prefix derived column.
	TxPrefixLength = 4
)

// BlockIdGroup buckets a block number into its partition group.
func BlockIdGroup(blockNumber int64) int64 {
	return blockNumber / BlockBucketSize
}

// TxHashPrefix derives the hash prefix used as a partition key, the first
// hex characters after the 0x prefix.
func TxHashPrefix(txHash string) string {
	trimmed := strings.TrimPrefix(txHash, "0x")
	if len(trimmed) <= TxPrefixLength {
		return trimmed
	}
	return trimmed[:TxPrefixLength]
}

// Rows shapes fetched block data into the row layout of the four entity
// tables. It is pure: no I/O, no ordering requirements on the input. Every
// optional attribute passes through the not-set encoders so no column is
// ever written as NULL.
func Rows(blockData []common.BlockData) common.RowSet {
	var rows common.RowSet
	for _, data := range blockData {
		rows.Blocks = append(rows.Blocks, blockRow(data))
		for _, tx := range data.Transactions {
			rows.Transactions = append(rows.Transactions, transactionRow(tx))
		}
		for _, trace := range data.Traces {
			rows.Traces = append(rows.Traces, traceRow(trace))
		}
		for _, lg := range data.Logs {
			rows.Logs = append(rows.Logs, logRow(lg))
		}
	}
	return rows
}

func blockRow(data common.BlockData) common.BlockRow {
	block := data.Block
	return common.BlockRow{
		BlockIdGroup:     BlockIdGroup(block.Number),
		BlockId:          block.Number,
		BlockHash:        block.Hash,
		ParentHash:       block.ParentHash,
		Nonce:            block.Nonce,
		Sha3Uncles:       block.Sha3Uncles,
		LogsBloom:        block.LogsBloom,
		TransactionsRoot: block.TransactionsRoot,
		StateRoot:        block.StateRoot,
		ReceiptsRoot:     block.ReceiptsRoot,
		Miner:            block.Miner,
		Difficulty:       block.Difficulty,
		TotalDifficulty:  common.OptBigString(block.TotalDifficulty),
		Size:             block.Size,
		ExtraData:        block.ExtraData,
		GasLimit:         block.GasLimit,
		GasUsed:          block.GasUsed,
		BaseFeePerGas:    common.OptInt64(block.BaseFeePerGas),
		Timestamp:        block.Timestamp,
		TransactionCount: block.TransactionCount,
		TraceCount:       entityCount(data.Traces),
		LogCount:         entityCount(data.Logs),
	}
}

// entityCount distinguishes "none fetched" from "fetched, none found": a nil
// slice means the entity kind was not requested for this block, and the count
// stays unset so checkpoint derivation never mistakes it for an empty block.
func entityCount[T any](entities []T) int64 {
	if entities == nil {
		return common.NotSetInt64
	}
	return int64(len(entities))
}

func transactionRow(tx common.Transaction) common.TransactionRow {
	return common.TransactionRow{
		TxHashPrefix:             TxHashPrefix(tx.Hash),
		TxHash:                   tx.Hash,
		Nonce:                    tx.Nonce,
		BlockId:                  tx.BlockNumber,
		BlockHash:                tx.BlockHash,
		BlockTimestamp:           tx.BlockTimestamp,
		TransactionIndex:         tx.TransactionIndex,
		FromAddress:              tx.FromAddress,
		ToAddress:                common.OptHex(tx.ToAddress),
		Value:                    tx.Value,
		Gas:                      tx.Gas,
		GasPrice:                 common.OptInt64(tx.GasPrice),
		Input:                    tx.Input,
		MaxFeePerGas:             common.OptInt64(tx.MaxFeePerGas),
		MaxPriorityFeePerGas:     common.OptInt64(tx.MaxPriorityFeePerGas),
		TransactionType:          common.OptInt64(tx.TransactionType),
		ReceiptCumulativeGasUsed: common.OptInt64(tx.ReceiptCumulativeGasUsed),
		ReceiptGasUsed:           common.OptInt64(tx.ReceiptGasUsed),
		ReceiptContractAddress:   common.OptHex(tx.ReceiptContractAddress),
		ReceiptRoot:              common.OptHex(tx.ReceiptRoot),
		ReceiptStatus:            common.OptInt64(tx.ReceiptStatus),
		ReceiptEffectiveGasPrice: common.OptInt64(tx.ReceiptEffectiveGasPrice),
	}
}

func traceRow(trace common.Trace) common.TraceRow {
	return common.TraceRow{
		BlockIdGroup:     BlockIdGroup(trace.BlockNumber),
		BlockId:          trace.BlockNumber,
		TraceId:          traceId(trace),
		TraceIndex:       trace.TraceIndex,
		TxHash:           common.OptHex(trace.TransactionHash),
		TransactionIndex: common.OptInt64(trace.TransactionIndex),
		FromAddress:      common.OptHex(trace.FromAddress),
		ToAddress:        common.OptHex(trace.ToAddress),
		Value:            common.OptBigString(trace.Value),
		Input:            common.OptHex(trace.Input),
		Output:           common.OptHex(trace.Output),
		TraceType:        trace.TraceType,
		CallType:         common.OptHex(trace.CallType),
		RewardType:       common.OptHex(trace.RewardType),
		Gas:              common.OptInt64(trace.Gas),
		GasUsed:          common.OptInt64(trace.GasUsed),
		Subtraces:        trace.Subtraces,
		TraceAddress:     joinTraceAddress(trace.TraceAddress),
		Error:            common.OptHex(trace.Error),
		Status:           common.OptInt64(trace.Status),
	}
}

// traceId uniquely names a trace within the chain. Reward traces carry no
// transaction hash, so they are named by block and position instead.
func traceId(trace common.Trace) string {
	if trace.TraceType == "reward" {
		return fmt.Sprintf("reward_%d_%d", trace.BlockNumber, trace.TraceIndex)
	}
	return fmt.Sprintf("%s_%s_%s", trace.TraceType, common.OptHex(trace.TransactionHash), joinTraceAddressWith(trace.TraceAddress, "_"))
}

func joinTraceAddress(traceAddress []int64) string {
	return joinTraceAddressWith(traceAddress, "|")
}

func joinTraceAddressWith(traceAddress []int64, sep string) string {
	parts := make([]string, len(traceAddress))
	for i, addr := range traceAddress {
		parts[i] = strconv.FormatInt(addr, 10)
	}
	return strings.Join(parts, sep)
}

func logRow(lg common.Log) common.LogRow {
	topic0 := ""
	if len(lg.Topics) > 0 {
		topic0 = lg.Topics[0]
	}
	return common.LogRow{
		BlockIdGroup:     BlockIdGroup(lg.BlockNumber),
		BlockId:          lg.BlockNumber,
		BlockHash:        lg.BlockHash,
		Address:          lg.Address,
		Data:             lg.Data,
		Topics:           lg.Topics,
		Topic0:           topic0,
		TxHash:           lg.TransactionHash,
		LogIndex:         lg.LogIndex,
		TransactionIndex: lg.TransactionIndex,
	}
}
