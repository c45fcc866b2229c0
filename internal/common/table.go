package common

import "fmt"

// Table identifies one of the four entity tables in the target keyspace.
type Table string

const (
	TableBlock       Table = "block"
	TableTransaction Table = "transaction"
	TableTrace       Table = "trace"
	TableLog         Table = "log"
)

// AllTables lists every entity table in commit order.
var AllTables = []Table{TableBlock, TableTransaction, TableTrace, TableLog}

func ParseTable(s string) (Table, error) {
	switch Table(s) {
	case TableBlock, TableTransaction, TableTrace, TableLog:
		return Table(s), nil
	}
	return "", fmt.Errorf("unknown table %q", s)
}

// Checkpoints holds the last fully ingested block per table.
// NoCheckpoint marks a table with no rows yet.
type Checkpoints map[Table]int64

const NoCheckpoint int64 = -1

// Min returns the lowest checkpoint across the given tables. Tables that must
// stay in lockstep resume from the minimum so no table is left with a gap.
func (c Checkpoints) Min(tables []Table) int64 {
	min := int64(0)
	first := true
	for _, t := range tables {
		v, ok := c[t]
		if !ok {
			v = NoCheckpoint
		}
		if first || v < min {
			min = v
			first = false
		}
	}
	if first {
		return NoCheckpoint
	}
	return min
}
