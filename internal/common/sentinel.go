package common

import "math/big"

// The target store deletes a column when it is written as NULL, and every
// delete leaves a tombstone behind. Optional attributes are therefore encoded
// through the helpers below and never as NULL: re-ingesting a row can only
// overwrite values with values, so the store never accumulates tombstones.
//
// The not-set representations stay distinguishable from ordinary values:
//   - numeric columns hold non-negative domains, not-set is NotSetInt64 (-1)
//   - hex columns always carry the 0x prefix when present, not-set is ""
//     (an empty payload is "0x", which is a different value)
//   - unbounded numeric columns are decimal strings, not-set is ""

// NotSetInt64 marks an absent value on a numeric column.
const NotSetInt64 int64 = -1

// OptInt64 encodes an optional non-negative number.
func OptInt64(v *int64) int64 {
	if v == nil {
		return NotSetInt64
	}
	return *v
}

// OptHex encodes an optional 0x-prefixed hex string.
func OptHex(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// OptBigString encodes an optional unbounded integer as a decimal string.
func OptBigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
