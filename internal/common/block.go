package common

import "math/big"

// Block is the parsed chain view of a block header, before it is shaped into
// the row layout of the block table.
type Block struct {
	Number           int64
	Hash             string
	ParentHash       string
	Nonce            string
	Sha3Uncles       string
	LogsBloom        string
	TransactionsRoot string
	StateRoot        string
	ReceiptsRoot     string
	Miner            string
	Difficulty       *big.Int
	TotalDifficulty  *big.Int
	Size             int64
	ExtraData        string
	GasLimit         int64
	GasUsed          int64
	Timestamp        int64
	TransactionCount int64
	BaseFeePerGas    *int64
}

// BlockData joins every entity kind fetched for one block.
type BlockData struct {
	Block        Block
	Transactions []Transaction
	Traces       []Trace
	Logs         []Log
}
