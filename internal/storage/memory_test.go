package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainmirror/chainmirror/internal/common"
)

func blockRowFixture(blockId int64, txCount int64) common.BlockRow {
	return common.BlockRow{
		BlockId:          blockId,
		BlockHash:        fmt.Sprintf("0xblock%d", blockId),
		TransactionCount: txCount,
		TraceCount:       txCount,
		LogCount:         txCount,
	}
}

func txRowFixture(blockId int64, index int64) common.TransactionRow {
	return common.TransactionRow{
		TxHash:           fmt.Sprintf("0xtx%d_%d", blockId, index),
		BlockId:          blockId,
		TransactionIndex: index,
	}
}

func TestMemoryCheckpointEmptyTable(t *testing.T) {
	m := NewMemoryConnector(nil)

	checkpoint, err := m.GetCheckpoint(context.Background(), common.TableBlock)

	require.NoError(t, err)
	assert.Equal(t, common.NoCheckpoint, checkpoint)
}

func TestMemoryCheckpointContiguousPrefix(t *testing.T) {
	m := NewMemoryConnector(nil)
	rows := []common.BlockRow{
		blockRowFixture(0, 1),
		blockRowFixture(1, 1),
		blockRowFixture(2, 1),
		// hole at 3
		blockRowFixture(4, 1),
	}
	require.NoError(t, m.InsertBlocks(context.Background(), rows))

	checkpoint, err := m.GetCheckpoint(context.Background(), common.TableBlock)

	require.NoError(t, err)
	assert.Equal(t, int64(2), checkpoint)
}

func TestMemoryInsertIsIdempotent(t *testing.T) {
	m := NewMemoryConnector(nil)
	ctx := context.Background()
	rows := []common.BlockRow{blockRowFixture(0, 1), blockRowFixture(1, 1)}

	require.NoError(t, m.InsertBlocks(ctx, rows))
	require.NoError(t, m.InsertBlocks(ctx, rows))

	assert.Equal(t, 2, m.BlockCount())

	checkpoint, err := m.GetCheckpoint(ctx, common.TableBlock)
	require.NoError(t, err)
	assert.Equal(t, int64(1), checkpoint)
}

func TestMemoryCheckpointSkipsEmptyBlocks(t *testing.T) {
	m := NewMemoryConnector(nil)
	ctx := context.Background()

	require.NoError(t, m.InsertBlocks(ctx, []common.BlockRow{
		blockRowFixture(0, 1),
		blockRowFixture(1, 0), // block with no transactions
		blockRowFixture(2, 1),
	}))
	require.NoError(t, m.InsertTransactions(ctx, []common.TransactionRow{
		txRowFixture(0, 0),
		txRowFixture(2, 0),
	}))

	checkpoint, err := m.GetCheckpoint(ctx, common.TableTransaction)

	require.NoError(t, err)
	assert.Equal(t, int64(2), checkpoint)
}

func TestMemoryCheckpointDivergesPerTable(t *testing.T) {
	m := NewMemoryConnector(nil)
	ctx := context.Background()

	// blocks committed through 2, transactions only through 1
	require.NoError(t, m.InsertBlocks(ctx, []common.BlockRow{
		blockRowFixture(0, 1),
		blockRowFixture(1, 1),
		blockRowFixture(2, 1),
	}))
	require.NoError(t, m.InsertTransactions(ctx, []common.TransactionRow{
		txRowFixture(0, 0),
		txRowFixture(1, 0),
	}))

	blockCp, err := m.GetCheckpoint(ctx, common.TableBlock)
	require.NoError(t, err)
	txCp, err := m.GetCheckpoint(ctx, common.TableTransaction)
	require.NoError(t, err)

	assert.Equal(t, int64(2), blockCp)
	assert.Equal(t, int64(1), txCp)
}

func TestMemoryCheckpointOutOfRangeBackfill(t *testing.T) {
	m := NewMemoryConnector(nil)
	ctx := context.Background()

	// a backfill far ahead of the prefix must not advance the checkpoint
	require.NoError(t, m.InsertTransactions(ctx, []common.TransactionRow{
		txRowFixture(200, 0),
		txRowFixture(201, 0),
	}))

	checkpoint, err := m.GetCheckpoint(ctx, common.TableTransaction)

	require.NoError(t, err)
	assert.Equal(t, common.NoCheckpoint, checkpoint)
}

func TestMemoryCapacityLimit(t *testing.T) {
	m := NewMemoryConnector(nil)
	m.maxItems = 2
	ctx := context.Background()

	err := m.InsertBlocks(ctx, []common.BlockRow{
		blockRowFixture(0, 0),
		blockRowFixture(1, 0),
		blockRowFixture(2, 0),
	})

	assert.Error(t, err)
}
