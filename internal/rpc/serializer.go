package rpc

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/chainmirror/chainmirror/internal/common"
)

// SerializeFullBlocks joins the per-entity raw results into one BlockData per
// block. When receipts were fetched, logs are lifted out of the receipts and
// the receipt fields are folded into their transactions; otherwise logs come
// from the separate eth_getLogs result and the receipt fields stay unset.
func SerializeFullBlocks(blocks []RPCFetchBatchResult[int64, RawBlock], logs []RPCFetchBatchResult[int64, RawLogs], traces []RPCFetchBatchResult[int64, RawTraces], receipts []RPCFetchBatchResult[int64, RawReceipts]) []GetFullBlockResult {
	results := make([]GetFullBlockResult, 0, len(blocks))

	rawLogsMap := make(map[int64]RPCFetchBatchResult[int64, RawLogs])
	for _, rawLogs := range logs {
		rawLogsMap[rawLogs.Key] = rawLogs
	}

	rawTracesMap := make(map[int64]RPCFetchBatchResult[int64, RawTraces])
	for _, rawTraces := range traces {
		rawTracesMap[rawTraces.Key] = rawTraces
	}

	rawReceiptsMap := make(map[int64]RPCFetchBatchResult[int64, RawReceipts])
	for _, rawReceipts := range receipts {
		rawReceiptsMap[rawReceipts.Key] = rawReceipts
	}

	for _, rawBlock := range blocks {
		result := GetFullBlockResult{
			BlockNumber: rawBlock.Key,
		}
		if rawBlock.Error != nil {
			result.Error = rawBlock.Error
			results = append(results, result)
			continue
		}
		if rawBlock.Result == nil {
			log.Warn().Msgf("Received a nil block result for block %d.", rawBlock.Key)
			result.Error = fmt.Errorf("received a nil result for block %d", rawBlock.Key)
			results = append(results, result)
			continue
		}

		result.Data.Block = serializeBlock(rawBlock.Result)
		result.Data.Transactions = serializeTransactions(rawBlock.Result["transactions"].([]interface{}), result.Data.Block)

		if rawReceipts, exists := rawReceiptsMap[rawBlock.Key]; exists {
			if rawReceipts.Error != nil {
				result.Error = rawReceipts.Error
			} else {
				enrichWithReceipts(result.Data.Transactions, rawReceipts.Result)
				result.Data.Logs = serializeLogsFromReceipts(rawReceipts.Result, result.Data.Block)
			}
		} else if rawLogs, exists := rawLogsMap[rawBlock.Key]; exists {
			if rawLogs.Error != nil {
				result.Error = rawLogs.Error
			} else {
				result.Data.Logs = serializeLogs(rawLogs.Result, result.Data.Block)
			}
		}

		if result.Error == nil {
			if rawTraces, exists := rawTracesMap[rawBlock.Key]; exists {
				if rawTraces.Error != nil {
					result.Error = rawTraces.Error
				} else {
					result.Data.Traces = serializeTraces(rawTraces.Result, result.Data.Block)
				}
			}
		}

		results = append(results, result)
	}

	return results
}

func serializeBlock(block RawBlock) common.Block {
	return common.Block{
		Number:           hexToInt64(block["number"]),
		Hash:             interfaceToString(block["hash"]),
		ParentHash:       interfaceToString(block["parentHash"]),
		Nonce:            interfaceToString(block["nonce"]),
		Sha3Uncles:       interfaceToString(block["sha3Uncles"]),
		LogsBloom:        interfaceToString(block["logsBloom"]),
		TransactionsRoot: interfaceToString(block["transactionsRoot"]),
		StateRoot:        interfaceToString(block["stateRoot"]),
		ReceiptsRoot:     interfaceToString(block["receiptsRoot"]),
		Miner:            interfaceToString(block["miner"]),
		Difficulty:       hexToBigInt(block["difficulty"]),
		TotalDifficulty:  hexToBigIntOrNil(block["totalDifficulty"]),
		Size:             hexToInt64(block["size"]),
		ExtraData:        interfaceToString(block["extraData"]),
		GasLimit:         hexToInt64(block["gasLimit"]),
		GasUsed:          hexToInt64(block["gasUsed"]),
		Timestamp:        hexToInt64(block["timestamp"]),
		TransactionCount: int64(len(block["transactions"].([]interface{}))),
		BaseFeePerGas:    hexToInt64Ptr(block["baseFeePerGas"]),
	}
}

func serializeTransactions(transactions []interface{}, block common.Block) []common.Transaction {
	serialized := make([]common.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		serialized = append(serialized, serializeTransaction(tx, block))
	}
	return serialized
}

func serializeTransaction(rawTx interface{}, block common.Block) common.Transaction {
	tx, ok := rawTx.(map[string]interface{})
	if !ok {
		log.Debug().Msgf("Failed to serialize transaction: %v", rawTx)
		return common.Transaction{}
	}
	return common.Transaction{
		Hash:                 interfaceToString(tx["hash"]),
		Nonce:                hexToInt64(tx["nonce"]),
		BlockNumber:          block.Number,
		BlockHash:            block.Hash,
		BlockTimestamp:       block.Timestamp,
		TransactionIndex:     hexToInt64(tx["transactionIndex"]),
		FromAddress:          interfaceToString(tx["from"]),
		ToAddress:            interfaceToStringPtr(tx["to"]),
		Value:                hexToBigInt(tx["value"]),
		Gas:                  hexToInt64(tx["gas"]),
		GasPrice:             hexToInt64Ptr(tx["gasPrice"]),
		Input:                interfaceToString(tx["input"]),
		MaxFeePerGas:         hexToInt64Ptr(tx["maxFeePerGas"]),
		MaxPriorityFeePerGas: hexToInt64Ptr(tx["maxPriorityFeePerGas"]),
		TransactionType:      hexToInt64Ptr(tx["type"]),
	}
}

func enrichWithReceipts(transactions []common.Transaction, receipts RawReceipts) {
	receiptByTxHash := make(map[string]map[string]interface{}, len(receipts))
	for _, receipt := range receipts {
		receiptByTxHash[interfaceToString(receipt["transactionHash"])] = receipt
	}
	for i := range transactions {
		receipt, exists := receiptByTxHash[transactions[i].Hash]
		if !exists {
			continue
		}
		transactions[i].ReceiptCumulativeGasUsed = hexToInt64Ptr(receipt["cumulativeGasUsed"])
		transactions[i].ReceiptGasUsed = hexToInt64Ptr(receipt["gasUsed"])
		transactions[i].ReceiptContractAddress = interfaceToStringPtr(receipt["contractAddress"])
		transactions[i].ReceiptRoot = interfaceToStringPtr(receipt["root"])
		transactions[i].ReceiptStatus = hexToInt64Ptr(receipt["status"])
		transactions[i].ReceiptEffectiveGasPrice = hexToInt64Ptr(receipt["effectiveGasPrice"])
	}
}

func serializeLogsFromReceipts(receipts RawReceipts, block common.Block) []common.Log {
	serialized := make([]common.Log, 0)
	for _, receipt := range receipts {
		rawLogs, ok := receipt["logs"].([]interface{})
		if !ok {
			continue
		}
		for _, rawLog := range rawLogs {
			logMap, ok := rawLog.(map[string]interface{})
			if !ok {
				continue
			}
			serialized = append(serialized, serializeLog(logMap, block))
		}
	}
	return serialized
}

func serializeLogs(rawLogs []map[string]interface{}, block common.Block) []common.Log {
	serialized := make([]common.Log, len(rawLogs))
	for i, rawLog := range rawLogs {
		serialized[i] = serializeLog(rawLog, block)
	}
	return serialized
}

func serializeLog(rawLog map[string]interface{}, block common.Block) common.Log {
	rawTopics, _ := rawLog["topics"].([]interface{})
	topics := make([]string, len(rawTopics))
	for i, topic := range rawTopics {
		topics[i] = interfaceToString(topic)
	}
	return common.Log{
		BlockNumber:      block.Number,
		BlockHash:        block.Hash,
		TransactionHash:  interfaceToString(rawLog["transactionHash"]),
		TransactionIndex: hexToInt64(rawLog["transactionIndex"]),
		LogIndex:         hexToInt64(rawLog["logIndex"]),
		Address:          interfaceToString(rawLog["address"]),
		Data:             interfaceToString(rawLog["data"]),
		Topics:           topics,
	}
}

func serializeTraces(traces []map[string]interface{}, block common.Block) []common.Trace {
	serialized := make([]common.Trace, 0, len(traces))
	for i, trace := range traces {
		serialized = append(serialized, serializeTrace(trace, int64(i), block))
	}
	return serialized
}

// serializeTrace flattens one trace_block entry. The action and result fields
// carry different keys per trace type, so the addresses and payloads are
// resolved per type the way the parity trace module defines them.
func serializeTrace(trace map[string]interface{}, traceIndex int64, block common.Block) common.Trace {
	action, _ := trace["action"].(map[string]interface{})
	result := make(map[string]interface{})
	if resultMap, ok := trace["result"].(map[string]interface{}); ok {
		result = resultMap
	}

	traceType := interfaceToString(trace["type"])
	out := common.Trace{
		BlockNumber:      block.Number,
		TraceIndex:       traceIndex,
		TransactionHash:  interfaceToStringPtr(trace["transactionHash"]),
		TransactionIndex: floatToInt64Ptr(trace["transactionPosition"]),
		TraceType:        traceType,
		CallType:         interfaceToStringPtr(action["callType"]),
		RewardType:       interfaceToStringPtr(action["rewardType"]),
		Gas:              hexToInt64Ptr(action["gas"]),
		GasUsed:          hexToInt64Ptr(result["gasUsed"]),
		Subtraces:        floatToInt64(trace["subtraces"]),
		TraceAddress:     serializeTraceAddress(trace["traceAddress"]),
		Error:            interfaceToStringPtr(trace["error"]),
	}

	switch traceType {
	case "call":
		out.FromAddress = interfaceToStringPtr(action["from"])
		out.ToAddress = interfaceToStringPtr(action["to"])
		out.Value = hexToBigIntOrNil(action["value"])
		out.Input = interfaceToStringPtr(action["input"])
		out.Output = interfaceToStringPtr(result["output"])
	case "create", "create2":
		out.FromAddress = interfaceToStringPtr(action["from"])
		out.ToAddress = interfaceToStringPtr(result["address"])
		out.Value = hexToBigIntOrNil(action["value"])
		out.Input = interfaceToStringPtr(action["init"])
		out.Output = interfaceToStringPtr(result["code"])
	case "suicide":
		out.FromAddress = interfaceToStringPtr(action["address"])
		out.ToAddress = interfaceToStringPtr(action["refundAddress"])
		out.Value = hexToBigIntOrNil(action["balance"])
	case "reward":
		out.ToAddress = interfaceToStringPtr(action["author"])
		out.Value = hexToBigIntOrNil(action["value"])
	default:
		out.FromAddress = interfaceToStringPtr(action["from"])
		out.ToAddress = interfaceToStringPtr(action["to"])
		out.Value = hexToBigIntOrNil(action["value"])
		out.Input = interfaceToStringPtr(action["input"])
		out.Output = interfaceToStringPtr(result["output"])
	}

	status := int64(1)
	if out.Error != nil {
		status = 0
	}
	out.Status = &status

	return out
}

func serializeTraceAddress(traceAddress interface{}) []int64 {
	addressSlice, ok := traceAddress.([]interface{})
	if !ok {
		return []int64{}
	}
	addresses := make([]int64, 0, len(addressSlice))
	for _, addr := range addressSlice {
		addresses = append(addresses, floatToInt64(addr))
	}
	return addresses
}

func hexToBigInt(hex interface{}) *big.Int {
	hexString := interfaceToString(hex)
	if len(hexString) < 3 {
		return new(big.Int)
	}
	v, _ := new(big.Int).SetString(hexString[2:], 16)
	if v == nil {
		return new(big.Int)
	}
	return v
}

func hexToBigIntOrNil(hex interface{}) *big.Int {
	if interfaceToString(hex) == "" {
		return nil
	}
	return hexToBigInt(hex)
}

func hexToInt64(hex interface{}) int64 {
	hexString := interfaceToString(hex)
	if len(hexString) < 3 {
		return 0
	}
	v, _ := strconv.ParseInt(hexString[2:], 16, 64)
	return v
}

func hexToInt64E(hexString string) (int64, error) {
	if len(hexString) < 3 {
		if hexString == "0x0" || hexString == "0x" {
			return 0, nil
		}
		return 0, fmt.Errorf("not a hex quantity: %q", hexString)
	}
	return strconv.ParseInt(hexString[2:], 16, 64)
}

func hexToInt64Ptr(hex interface{}) *int64 {
	if interfaceToString(hex) == "" {
		return nil
	}
	v := hexToInt64(hex)
	return &v
}

func floatToInt64(value interface{}) int64 {
	if f, ok := value.(float64); ok {
		return int64(f)
	}
	return 0
}

func floatToInt64Ptr(value interface{}) *int64 {
	f, ok := value.(float64)
	if !ok {
		return nil
	}
	v := int64(f)
	return &v
}

func interfaceToString(value interface{}) string {
	if value == nil {
		return ""
	}
	res, ok := value.(string)
	if !ok {
		return ""
	}
	return res
}

func interfaceToStringPtr(value interface{}) *string {
	res := interfaceToString(value)
	if res == "" {
		return nil
	}
	return &res
}
