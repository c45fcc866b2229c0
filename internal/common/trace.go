package common

import "math/big"

// Trace is the parsed chain view of one execution trace. Reward traces carry
// no transaction hash or index, call traces no reward type, so most fields
// are optional.
type Trace struct {
	BlockNumber      int64
	TraceIndex       int64
	TransactionHash  *string
	TransactionIndex *int64
	FromAddress      *string
	ToAddress        *string
	Value            *big.Int
	Input            *string
	Output           *string
	TraceType        string
	CallType         *string
	RewardType       *string
	Gas              *int64
	GasUsed          *int64
	Subtraces        int64
	TraceAddress     []int64
	Error            *string
	Status           *int64
}
