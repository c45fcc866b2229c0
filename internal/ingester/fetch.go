package ingester

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/chainmirror/chainmirror/internal/common"
	"github.com/chainmirror/chainmirror/internal/metrics"
	"github.com/chainmirror/chainmirror/internal/planner"
	"github.com/chainmirror/chainmirror/internal/worker"
)

// fetchSubRange pulls one sub-range from the node. Transient node errors are
// retried under the policy; a detected reorg discards the batch and fetches
// it again from scratch, up to maxReorgRefetches times.
func fetchSubRange(ctx context.Context, w *worker.Worker, r planner.Range, retry common.RetryPolicy, maxReorgRefetches int) ([]common.BlockData, error) {
	for attempt := 0; ; attempt++ {
		var blockData []common.BlockData
		start := time.Now()
		err := retry.Do(ctx, func() error {
			data, fetchErr := w.FetchRange(ctx, r.Start, r.End)
			if fetchErr != nil {
				var reorg *worker.ReorgError
				if errors.As(fetchErr, &reorg) {
					// not a transient fault, handled by the refetch loop below
					return backoff.Permanent(fetchErr)
				}
				metrics.RetryCounter.Inc()
				return fetchErr
			}
			blockData = data
			return nil
		})
		if err == nil {
			metrics.FetchDuration.Observe(time.Since(start).Seconds())
			return blockData, nil
		}

		var reorg *worker.ReorgError
		if errors.As(err, &reorg) && attempt < maxReorgRefetches {
			metrics.ReorgCounter.Inc()
			log.Warn().Msgf("Reorg detected at block %d, refetching blocks %d-%d (attempt %d)", reorg.BlockNumber, r.Start, r.End, attempt+1)
			continue
		}
		return nil, err
	}
}
