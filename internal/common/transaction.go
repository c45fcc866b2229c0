package common

import "math/big"

// Transaction is the parsed chain view of a transaction, enriched with its
// receipt when the node provides one. Receipt fields stay nil when receipts
// could not be fetched; the transformer encodes nil as the not-set sentinel.
type Transaction struct {
	Hash                 string
	Nonce                int64
	BlockNumber          int64
	BlockHash            string
	BlockTimestamp       int64
	TransactionIndex     int64
	FromAddress          string
	ToAddress            *string
	Value                *big.Int
	Gas                  int64
	GasPrice             *int64
	Input                string
	MaxFeePerGas         *int64
	MaxPriorityFeePerGas *int64
	TransactionType      *int64

	ReceiptCumulativeGasUsed *int64
	ReceiptGasUsed           *int64
	ReceiptContractAddress   *string
	ReceiptRoot              *string
	ReceiptStatus            *int64
	ReceiptEffectiveGasPrice *int64
}
