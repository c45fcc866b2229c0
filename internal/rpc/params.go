package rpc

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func GetBlockWithTransactionsParams(blockNum int64) []interface{} {
	return []interface{}{hexutil.EncodeUint64(uint64(blockNum)), true}
}

func GetBlockWithoutTransactionsParams(blockNum int64) []interface{} {
	return []interface{}{hexutil.EncodeUint64(uint64(blockNum)), false}
}

func GetLogsParams(blockNum int64) []interface{} {
	encoded := hexutil.EncodeUint64(uint64(blockNum))
	return []interface{}{map[string]string{"fromBlock": encoded, "toBlock": encoded}}
}

func TraceBlockParams(blockNum int64) []interface{} {
	return []interface{}{hexutil.EncodeUint64(uint64(blockNum))}
}

func GetBlockReceiptsParams(blockNum int64) []interface{} {
	return []interface{}{hexutil.EncodeUint64(uint64(blockNum))}
}
