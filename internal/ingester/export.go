package ingester

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	config "github.com/chainmirror/chainmirror/configs"
	"github.com/chainmirror/chainmirror/internal/common"
	"github.com/chainmirror/chainmirror/internal/metrics"
	"github.com/chainmirror/chainmirror/internal/planner"
	"github.com/chainmirror/chainmirror/internal/rpc"
	"github.com/chainmirror/chainmirror/internal/storage"
	"github.com/chainmirror/chainmirror/internal/transform"
	"github.com/chainmirror/chainmirror/internal/worker"
)

// Exporter runs the file export path: the same fetch and transform pipeline,
// but committed to partitioned compressed files instead of the store. Ranges
// are rounded to whole file batches so every file covers exactly one batch,
// which is what makes resumption from file names possible.
type Exporter struct {
	rpc                rpc.IRPCClient
	files              *storage.FileExporter
	worker             *worker.Worker
	retry              common.RetryPolicy
	blocksPerBatch     int
	fileBatchSize      int64
	confirmationMargin int64
	maxReorgRefetches  int
}

func NewExporter(rpcClient rpc.IRPCClient, files *storage.FileExporter) *Exporter {
	exporter := &Exporter{
		rpc:                rpcClient,
		files:              files,
		worker:             worker.NewWorker(rpcClient),
		retry:              common.NewRetryPolicy(config.Cfg.Retry),
		blocksPerBatch:     defaultBlocksPerBatch,
		fileBatchSize:      storage.DefaultFileBatchSize,
		confirmationMargin: defaultConfirmationMargin,
		maxReorgRefetches:  defaultMaxReorgRefetches,
	}
	if config.Cfg.Ingester.BlocksPerBatch > 0 {
		exporter.blocksPerBatch = config.Cfg.Ingester.BlocksPerBatch
	}
	if config.Cfg.Export.FileBatchSize > 0 {
		exporter.fileBatchSize = int64(config.Cfg.Export.FileBatchSize)
	}
	if config.Cfg.Ingester.ConfirmationMargin > 0 {
		exporter.confirmationMargin = int64(config.Cfg.Ingester.ConfirmationMargin)
	}
	if config.Cfg.Ingester.MaxReorgRefetches > 0 {
		exporter.maxReorgRefetches = config.Cfg.Ingester.MaxReorgRefetches
	}
	return exporter
}

// Run exports [start, end] as complete file batches. Unresolved bounds fall
// back to block 0 and the confirmed chain head; with continueFromFiles the
// start resumes past the last block already covered by existing files.
func (e *Exporter) Run(ctx context.Context, start, end int64, continueFromFiles bool) error {
	chainHead, err := e.rpc.GetLatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve chain head: %w", err)
	}
	metrics.ChainHead.Set(float64(chainHead))
	confirmedHead := chainHead - e.confirmationMargin

	if continueFromFiles {
		last, err := e.files.LastExportedBlock()
		if err != nil {
			return err
		}
		if last != common.NoCheckpoint {
			log.Info().Msgf("Continuing export after block %d", last)
			start = last + 1
		}
	}
	if start == planner.Unresolved {
		start = 0
	}
	if end == planner.Unresolved || end > confirmedHead {
		end = confirmedHead
	}

	// round to whole file batches, partial batches are left for a later run
	start = start - (start % e.fileBatchSize)
	end = ((end+1)/e.fileBatchSize)*e.fileBatchSize - 1

	if start > end {
		log.Info().Msgf("No complete file batch to export before block %d", confirmedHead)
		return nil
	}

	log.Info().Msgf("Exporting blocks %d-%d in file batches of %d", start, end, e.fileBatchSize)
	runStart := time.Now()
	var blocksDone int64
	for batchStart := start; batchStart <= end; batchStart += e.fileBatchSize {
		batchEnd := batchStart + e.fileBatchSize - 1
		if err := e.exportFileBatch(ctx, batchStart, batchEnd); err != nil {
			return fmt.Errorf("failed to export blocks %d-%d: %w", batchStart, batchEnd, err)
		}
		blocksDone += batchEnd - batchStart + 1
		elapsed := time.Since(runStart).Seconds()
		if elapsed > 0 {
			log.Info().Msgf("Exported blocks %d-%d (%d of %d blocks, %.1f blocks/s)",
				batchStart, batchEnd, blocksDone, end-start+1, float64(blocksDone)/elapsed)
		}
	}
	return nil
}

func (e *Exporter) exportFileBatch(ctx context.Context, batchStart, batchEnd int64) error {
	var rows common.RowSet
	for _, subRange := range (planner.Range{Start: batchStart, End: batchEnd}).Split(e.blocksPerBatch) {
		blockData, err := fetchSubRange(ctx, e.worker, subRange, e.retry, e.maxReorgRefetches)
		if err != nil {
			return err
		}
		subRows := transform.Rows(blockData)
		rows.Blocks = append(rows.Blocks, subRows.Blocks...)
		rows.Transactions = append(rows.Transactions, subRows.Transactions...)
		rows.Traces = append(rows.Traces, subRows.Traces...)
		rows.Logs = append(rows.Logs, subRows.Logs...)
	}

	if err := e.files.WriteBatch(rows, batchStart, batchEnd); err != nil {
		return err
	}
	metrics.ExportedFiles.Inc()
	metrics.LastExportedBlock.Set(float64(batchEnd))
	return nil
}
