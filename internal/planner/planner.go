package planner

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/chainmirror/chainmirror/internal/common"
)

// Unresolved marks a range bound the planner should fill in: an unresolved
// start resumes from the table checkpoints, an unresolved end stops at the
// confirmed chain head.
const Unresolved int64 = -1

// Range is an inclusive block interval.
type Range struct {
	Start int64
	End   int64
}

func (r Range) Blocks() int64 {
	return r.End - r.Start + 1
}

// Split subdivides the range into sub-ranges of at most blocksPerBatch blocks.
func (r Range) Split(blocksPerBatch int) []Range {
	if blocksPerBatch <= 0 || r.Blocks() <= int64(blocksPerBatch) {
		return []Range{r}
	}
	var parts []Range
	for start := r.Start; start <= r.End; start += int64(blocksPerBatch) {
		end := start + int64(blocksPerBatch) - 1
		if end > r.End {
			end = r.End
		}
		parts = append(parts, Range{Start: start, End: end})
	}
	return parts
}

// Job is one contiguous block range to ingest into a set of tables.
type Job struct {
	Range  Range
	Tables []common.Table
}

// Override carries the operator-provided bounds parsed by the CLI. PerTable
// entries restrict the run to those tables, each with its own range; bounds
// left Unresolved fall back to the defaults.
type Override struct {
	Start    int64
	End      int64
	PerTable map[common.Table]Range
}

// NoOverride resumes every table from its checkpoint up to the confirmed head.
func NoOverride() Override {
	return Override{Start: Unresolved, End: Unresolved}
}

// Plan derives the block ranges to ingest. Only the given tables take part:
// the caller passes the tables whose entity kind the node can actually serve,
// so a table with no data source never drags the default start back to its
// empty checkpoint. Without per-table overrides the plan is at most one job
// covering those tables, starting one past their lowest checkpoint so no
// table is left with a gap, and ending at the chain head minus the
// confirmation margin. A start past the end yields an empty plan, which means
// the store is already caught up.
func Plan(checkpoints common.Checkpoints, override Override, tables []common.Table, chainHead int64, confirmationMargin int64) ([]Job, error) {
	confirmedHead := chainHead - confirmationMargin
	if confirmedHead < 0 {
		log.Warn().Msgf("Chain head %d is within the confirmation margin %d, nothing to ingest", chainHead, confirmationMargin)
		return nil, nil
	}

	if len(override.PerTable) > 0 {
		return planPerTable(checkpoints, override.PerTable, tables, confirmedHead)
	}

	start := override.Start
	if start == Unresolved {
		start = checkpoints.Min(tables) + 1
	}
	end := resolveEnd(override.End, confirmedHead)

	if start > end {
		log.Info().Msgf("Start block %d is past end block %d, nothing to ingest", start, end)
		return nil, nil
	}

	return []Job{{Range: Range{Start: start, End: end}, Tables: tables}}, nil
}

func planPerTable(checkpoints common.Checkpoints, perTable map[common.Table]Range, tables []common.Table, confirmedHead int64) ([]Job, error) {
	plannable := make(map[common.Table]bool, len(tables))
	for _, table := range tables {
		plannable[table] = true
	}
	for table := range perTable {
		if !plannable[table] {
			return nil, fmt.Errorf("table %s has no data source on this node", table)
		}
	}

	jobs := make([]Job, 0, len(perTable))
	for _, table := range common.AllTables {
		r, ok := perTable[table]
		if !ok {
			continue
		}
		start := r.Start
		if start == Unresolved {
			start = checkpoints.Min([]common.Table{table}) + 1
		}
		end := resolveEnd(r.End, confirmedHead)
		if start > end {
			log.Info().Msgf("Table %s: start block %d is past end block %d, skipping", table, start, end)
			continue
		}
		jobs = append(jobs, Job{Range: Range{Start: start, End: end}, Tables: []common.Table{table}})
	}
	return jobs, nil
}

func resolveEnd(end, confirmedHead int64) int64 {
	if end == Unresolved {
		return confirmedHead
	}
	if end > confirmedHead {
		log.Warn().Msgf("Requested end block %d is past the confirmed head %d, capping", end, confirmedHead)
		return confirmedHead
	}
	return end
}
