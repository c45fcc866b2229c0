package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// BlockTimestamper is the slice of the node client the timestamp search needs.
type BlockTimestamper interface {
	GetBlockTimestamp(ctx context.Context, blockNumber int64) (int64, error)
}

// MidnightUTC returns the start of the given day in UTC as a unix timestamp.
// Ingesting up to yesterday means ingesting every block mined before it.
func MidnightUTC(now time.Time) int64 {
	t := now.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix()
}

// LastBlockBefore finds the highest block in [0, head] whose timestamp is
// strictly below cutoff. Block timestamps are non-decreasing, so a binary
// search over the block numbers suffices; each probe is one header fetch.
func LastBlockBefore(ctx context.Context, node BlockTimestamper, cutoff int64, head int64) (int64, error) {
	headTs, err := node.GetBlockTimestamp(ctx, head)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve timestamp of block %d: %w", head, err)
	}
	if headTs < cutoff {
		return head, nil
	}

	genesisTs, err := node.GetBlockTimestamp(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve timestamp of block 0: %w", err)
	}
	if genesisTs >= cutoff {
		return 0, fmt.Errorf("no block mined before %s", time.Unix(cutoff, 0).UTC().Format(time.RFC3339))
	}

	// invariant: ts(lo) < cutoff <= ts(hi)
	lo, hi := int64(0), head
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		ts, err := node.GetBlockTimestamp(ctx, mid)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve timestamp of block %d: %w", mid, err)
		}
		if ts < cutoff {
			lo = mid
		} else {
			hi = mid
		}
	}

	log.Debug().Msgf("Last block before %s is %d", time.Unix(cutoff, 0).UTC().Format(time.RFC3339), lo)
	return lo, nil
}
