package ingester

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	config "github.com/chainmirror/chainmirror/configs"
	"github.com/chainmirror/chainmirror/internal/common"
	"github.com/chainmirror/chainmirror/internal/metrics"
	"github.com/chainmirror/chainmirror/internal/planner"
	"github.com/chainmirror/chainmirror/internal/rpc"
	"github.com/chainmirror/chainmirror/internal/storage"
	"github.com/chainmirror/chainmirror/internal/transform"
	"github.com/chainmirror/chainmirror/internal/worker"
)

const (
	defaultBlocksPerBatch     = 10
	defaultConfirmationMargin = 6
	defaultMaxReorgRefetches  = 3
)

// Ingester drives one invocation of the pipeline: read checkpoints, plan the
// ranges, and for every sub-range fetch, transform and commit. Sub-ranges run
// sequentially; concurrency lives inside a sub-range only, so checkpoint
// semantics stay auditable.
type Ingester struct {
	rpc                rpc.IRPCClient
	storage            storage.IMainStorage
	worker             *worker.Worker
	retry              common.RetryPolicy
	tables             []common.Table
	blocksPerBatch     int
	confirmationMargin int64
	maxReorgRefetches  int
}

func NewIngester(rpcClient rpc.IRPCClient, store storage.IMainStorage) *Ingester {
	ingester := &Ingester{
		rpc:                rpcClient,
		storage:            store,
		worker:             worker.NewWorker(rpcClient),
		retry:              common.NewRetryPolicy(config.Cfg.Retry),
		tables:             fetchableTables(rpcClient),
		blocksPerBatch:     defaultBlocksPerBatch,
		confirmationMargin: defaultConfirmationMargin,
		maxReorgRefetches:  defaultMaxReorgRefetches,
	}
	if config.Cfg.Ingester.BlocksPerBatch > 0 {
		ingester.blocksPerBatch = config.Cfg.Ingester.BlocksPerBatch
	}
	if config.Cfg.Ingester.ConfirmationMargin > 0 {
		ingester.confirmationMargin = int64(config.Cfg.Ingester.ConfirmationMargin)
	}
	if config.Cfg.Ingester.MaxReorgRefetches > 0 {
		ingester.maxReorgRefetches = config.Cfg.Ingester.MaxReorgRefetches
	}
	return ingester
}

// fetchableTables drops the trace table when the node serves no trace_block.
// An unfetchable table never gains rows, so leaving it in the default plan
// would pin the resume point at its empty checkpoint and re-ingest the whole
// range on every invocation.
func fetchableTables(rpcClient rpc.IRPCClient) []common.Table {
	if rpcClient.SupportsTraceBlock() {
		return common.AllTables
	}
	log.Warn().Msg("trace_block is unavailable, the trace table is excluded from ingestion")
	tables := make([]common.Table, 0, len(common.AllTables)-1)
	for _, table := range common.AllTables {
		if table != common.TableTrace {
			tables = append(tables, table)
		}
	}
	return tables
}

// Run executes one full invocation. A failed sub-range surfaces as an error
// with the checkpoint untouched, so re-running performs the same work
// idempotently.
func (i *Ingester) Run(ctx context.Context, override planner.Override) error {
	chainHead, err := i.rpc.GetLatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve chain head: %w", err)
	}
	metrics.ChainHead.Set(float64(chainHead))
	log.Debug().Msgf("Node %s reports chain head %d", i.rpc.GetURL(), chainHead)

	checkpoints, err := storage.GetCheckpoints(ctx, i.storage, i.tables)
	if err != nil {
		return err
	}
	for table, checkpoint := range checkpoints {
		log.Debug().Msgf("Table %s resumes from checkpoint %d", table, checkpoint)
	}

	jobs, err := planner.Plan(checkpoints, override, i.tables, chainHead, i.confirmationMargin)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		log.Info().Msgf("Store is caught up with chain head %d, nothing to do", chainHead)
		return nil
	}

	for _, job := range jobs {
		log.Info().Msgf("Ingesting blocks %d-%d into tables %v", job.Range.Start, job.Range.End, job.Tables)
		runStart := time.Now()
		var blocksDone int64
		for _, subRange := range job.Range.Split(i.blocksPerBatch) {
			if err := i.ingestSubRange(ctx, subRange, job.Tables); err != nil {
				return fmt.Errorf("failed to ingest blocks %d-%d: %w", subRange.Start, subRange.End, err)
			}
			blocksDone += subRange.Blocks()
			elapsed := time.Since(runStart).Seconds()
			if elapsed > 0 {
				log.Info().Msgf("Ingested blocks %d-%d (%d of %d blocks, %.1f blocks/s)",
					subRange.Start, subRange.End, blocksDone, job.Range.Blocks(), float64(blocksDone)/elapsed)
			}
		}
	}
	return nil
}

func (i *Ingester) ingestSubRange(ctx context.Context, subRange planner.Range, tables []common.Table) error {
	blockData, err := fetchSubRange(ctx, i.worker, subRange, i.retry, i.maxReorgRefetches)
	if err != nil {
		return err
	}

	rows := transform.Rows(blockData)
	if err := i.commit(ctx, rows, tables); err != nil {
		return err
	}

	checkpoints, err := storage.GetCheckpoints(ctx, i.storage, tables)
	if err != nil {
		return err
	}
	for table, checkpoint := range checkpoints {
		metrics.Checkpoint.WithLabelValues(string(table)).Set(float64(checkpoint))
	}
	metrics.SuccessfulCommits.Inc()
	return nil
}

// commit writes the sub-range into every covered table concurrently. The
// tables share no key space; each table's checkpoint only moves once its own
// commit is durable, so a partial failure leaves diverged checkpoints that
// the next invocation converges again.
func (i *Ingester) commit(ctx context.Context, rows common.RowSet, tables []common.Table) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, table := range tables {
		group.Go(func() error {
			start := time.Now()
			var count int
			err := i.retry.Do(groupCtx, func() error {
				n, insertErr := storage.InsertRows(groupCtx, i.storage, table, rows)
				if insertErr != nil {
					if errors.Is(insertErr, storage.ErrSchemaMismatch) {
						return backoff.Permanent(insertErr)
					}
					metrics.RetryCounter.Inc()
					return insertErr
				}
				count = n
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to commit table %s: %w", table, err)
			}
			metrics.RowsCommitted.WithLabelValues(string(table)).Add(float64(count))
			metrics.CommitDuration.Observe(time.Since(start).Seconds())
			return nil
		})
	}
	return group.Wait()
}
