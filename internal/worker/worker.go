package worker

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/chainmirror/chainmirror/internal/common"
	"github.com/chainmirror/chainmirror/internal/rpc"
)

// ReorgError reports that a fetched sub-range does not chain: a block's parent
// hash does not match the previous block's hash, so the node served blocks
// from two forks. The batch must be discarded and fetched again.
type ReorgError struct {
	BlockNumber       int64
	ParentHash        string
	PreviousBlockHash string
}

func (e *ReorgError) Error() string {
	return fmt.Sprintf("chain reorg at block %d: parent hash %s does not match previous block hash %s", e.BlockNumber, e.ParentHash, e.PreviousBlockHash)
}

// Worker turns one planned sub-range into a complete, validated slice of
// block data, ordered by block number.
type Worker struct {
	rpc rpc.IRPCClient
}

func NewWorker(rpcClient rpc.IRPCClient) *Worker {
	return &Worker{rpc: rpcClient}
}

// FetchRange fetches every block in [start, end] with all its entities. It
// fails if any block is missing or failed, and returns a ReorgError when the
// fetched blocks do not form one contiguous hash chain.
func (w *Worker) FetchRange(ctx context.Context, start, end int64) ([]common.BlockData, error) {
	blockNumbers := common.BlockNumbersForRange(start, end)
	results := w.rpc.GetFullBlocks(ctx, blockNumbers)

	if len(results) != len(blockNumbers) {
		return nil, fmt.Errorf("expected %d blocks for range %d-%d, got %d", len(blockNumbers), start, end, len(results))
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].BlockNumber < results[j].BlockNumber
	})

	blockData := make([]common.BlockData, 0, len(results))
	for i, result := range results {
		if result.Error != nil {
			return nil, fmt.Errorf("failed to fetch block %d: %w", result.BlockNumber, result.Error)
		}
		if result.BlockNumber != blockNumbers[i] {
			return nil, fmt.Errorf("expected block %d in range %d-%d, got %d", blockNumbers[i], start, end, result.BlockNumber)
		}
		blockData = append(blockData, result.Data)
	}

	if err := validateLinkage(blockData); err != nil {
		return nil, err
	}

	log.Debug().Msgf("Fetched blocks %d-%d (%d blocks)", start, end, len(blockData))
	return blockData, nil
}

// validateLinkage checks that consecutive blocks chain hash to parent hash.
// The first block of the range has no predecessor in the batch, so a reorg
// right at the range boundary surfaces one batch later through the upsert.
func validateLinkage(blockData []common.BlockData) error {
	for i := 1; i < len(blockData); i++ {
		prev := blockData[i-1].Block
		curr := blockData[i].Block
		if curr.ParentHash != prev.Hash {
			return &ReorgError{
				BlockNumber:       curr.Number,
				ParentHash:        curr.ParentHash,
				PreviousBlockHash: prev.Hash,
			}
		}
	}
	return nil
}
