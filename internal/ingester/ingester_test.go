package ingester

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/chainmirror/chainmirror/configs"
	"github.com/chainmirror/chainmirror/internal/common"
	"github.com/chainmirror/chainmirror/internal/planner"
	"github.com/chainmirror/chainmirror/internal/rpc"
	"github.com/chainmirror/chainmirror/internal/storage"
)

// fakeRPC serves a deterministic chain: block n has hash 0xhash<n> and one
// transaction, trace and log. The first brokenCalls fetches return a batch
// whose last block points at a forked parent. With noTraces set the node
// behaves like one without trace_block: no trace data, capability off.
type fakeRPC struct {
	head        int64
	brokenCalls int
	noTraces    bool
	fetchCalls  int
}

func (f *fakeRPC) GetFullBlocks(_ context.Context, blockNumbers []int64) []rpc.GetFullBlockResult {
	f.fetchCalls++
	broken := f.fetchCalls <= f.brokenCalls

	results := make([]rpc.GetFullBlockResult, 0, len(blockNumbers))
	for i, n := range blockNumbers {
		parentHash := fmt.Sprintf("0xhash%d", n-1)
		if broken && i == len(blockNumbers)-1 {
			parentHash = "0xforked"
		}
		txHash := fmt.Sprintf("0xtx%d", n)
		data := common.BlockData{
			Block: common.Block{
				Number:           n,
				Hash:             fmt.Sprintf("0xhash%d", n),
				ParentHash:       parentHash,
				Timestamp:        n * 12,
				TransactionCount: 1,
			},
			Transactions: []common.Transaction{
				{Hash: txHash, BlockNumber: n, FromAddress: "0xf1"},
			},
			Logs: []common.Log{
				{BlockNumber: n, TransactionHash: txHash, LogIndex: 0},
			},
		}
		if !f.noTraces {
			data.Traces = []common.Trace{
				{BlockNumber: n, TraceIndex: 0, TraceType: "reward"},
			}
		}
		results = append(results, rpc.GetFullBlockResult{BlockNumber: n, Data: data})
	}
	return results
}

func (f *fakeRPC) GetLatestBlockNumber(_ context.Context) (int64, error) {
	return f.head, nil
}

func (f *fakeRPC) GetBlockTimestamp(_ context.Context, blockNumber int64) (int64, error) {
	return blockNumber * 12, nil
}

func (f *fakeRPC) GetURL() string { return "fake" }

func (f *fakeRPC) GetBlocksPerRequest() rpc.BlocksPerRequestConfig {
	return rpc.BlocksPerRequestConfig{}
}

func (f *fakeRPC) SupportsTraceBlock() bool    { return !f.noTraces }
func (f *fakeRPC) SupportsBlockReceipts() bool { return false }
func (f *fakeRPC) Close()                      {}

// failingStore makes one table's commits fail while the flag is set.
type failingStore struct {
	storage.IMainStorage
	failTransactions bool
}

func (s *failingStore) InsertTransactions(ctx context.Context, transactions []common.TransactionRow) error {
	if s.failTransactions {
		return errors.New("write timeout")
	}
	return s.IMainStorage.InsertTransactions(ctx, transactions)
}

func fastTestConfig() {
	config.Cfg.Retry = config.RetryConfig{MaxAttempts: 1, InitialIntervalMs: 1, MaxIntervalMs: 1}
	config.Cfg.Ingester = config.IngesterConfig{BlocksPerBatch: 10, ConfirmationMargin: 6, MaxReorgRefetches: 2}
}

func checkpointOf(t *testing.T, store storage.IMainStorage, table common.Table) int64 {
	t.Helper()
	checkpoint, err := store.GetCheckpoint(context.Background(), table)
	require.NoError(t, err)
	return checkpoint
}

func TestRunIngestsUpToConfirmedHead(t *testing.T) {
	fastTestConfig()
	node := &fakeRPC{head: 20}
	store := storage.NewMemoryConnector(nil)

	err := NewIngester(node, store).Run(context.Background(), planner.NoOverride())

	require.NoError(t, err)
	for _, table := range common.AllTables {
		assert.Equal(t, int64(14), checkpointOf(t, store, table), "table %s", table)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	fastTestConfig()
	node := &fakeRPC{head: 20}
	store := storage.NewMemoryConnector(nil)
	ingester := NewIngester(node, store)

	require.NoError(t, ingester.Run(context.Background(), planner.NoOverride()))
	blocksAfterFirst := store.BlockCount()
	txAfterFirst := store.TransactionCount()

	// a second run over the same range re-upserts the same keys
	require.NoError(t, ingester.Run(context.Background(), planner.Override{Start: 0, End: 14}))

	assert.Equal(t, blocksAfterFirst, store.BlockCount())
	assert.Equal(t, txAfterFirst, store.TransactionCount())
}

func TestRunCaughtUp(t *testing.T) {
	fastTestConfig()
	node := &fakeRPC{head: 20}
	store := storage.NewMemoryConnector(nil)
	ingester := NewIngester(node, store)
	require.NoError(t, ingester.Run(context.Background(), planner.NoOverride()))
	fetchesAfterFirst := node.fetchCalls

	require.NoError(t, ingester.Run(context.Background(), planner.NoOverride()))

	assert.Equal(t, fetchesAfterFirst, node.fetchCalls)
}

func TestRunPartialCommitFailureConverges(t *testing.T) {
	fastTestConfig()
	node := &fakeRPC{head: 20}
	memory := storage.NewMemoryConnector(nil)
	store := &failingStore{IMainStorage: memory, failTransactions: true}
	ingester := NewIngester(node, store)

	err := ingester.Run(context.Background(), planner.NoOverride())
	require.Error(t, err)

	// blocks of the failed sub-range may be committed, transactions are not
	blockCp := checkpointOf(t, store, common.TableBlock)
	txCp := checkpointOf(t, store, common.TableTransaction)
	assert.Greater(t, blockCp, txCp)

	// the next invocation resumes from the minimum checkpoint and converges
	store.failTransactions = false
	require.NoError(t, NewIngester(node, store).Run(context.Background(), planner.NoOverride()))

	for _, table := range common.AllTables {
		assert.Equal(t, int64(14), checkpointOf(t, store, table), "table %s", table)
	}
}

func TestRunRefetchesOnReorg(t *testing.T) {
	fastTestConfig()
	node := &fakeRPC{head: 20, brokenCalls: 1}
	store := storage.NewMemoryConnector(nil)

	err := NewIngester(node, store).Run(context.Background(), planner.NoOverride())

	require.NoError(t, err)
	assert.Equal(t, int64(14), checkpointOf(t, store, common.TableBlock))
}

func TestRunFailsWhenReorgPersists(t *testing.T) {
	fastTestConfig()
	node := &fakeRPC{head: 20, brokenCalls: 100}
	store := storage.NewMemoryConnector(nil)

	err := NewIngester(node, store).Run(context.Background(), planner.NoOverride())

	assert.Error(t, err)
	assert.Equal(t, common.NoCheckpoint, checkpointOf(t, store, common.TableBlock))
}

func TestRunConvergesWithoutTraceSupport(t *testing.T) {
	fastTestConfig()
	node := &fakeRPC{head: 20, noTraces: true}
	store := storage.NewMemoryConnector(nil)
	ingester := NewIngester(node, store)

	require.NoError(t, ingester.Run(context.Background(), planner.NoOverride()))
	fetchesAfterFirst := node.fetchCalls

	// the empty trace table must not drag the resume point back to block 0
	require.NoError(t, ingester.Run(context.Background(), planner.NoOverride()))

	assert.Equal(t, fetchesAfterFirst, node.fetchCalls)
	assert.Equal(t, common.NoCheckpoint, checkpointOf(t, store, common.TableTrace))
	for _, table := range []common.Table{common.TableBlock, common.TableTransaction, common.TableLog} {
		assert.Equal(t, int64(14), checkpointOf(t, store, table), "table %s", table)
	}
}

func TestRunRejectsTraceOverrideWithoutTraceSupport(t *testing.T) {
	fastTestConfig()
	node := &fakeRPC{head: 20, noTraces: true}
	store := storage.NewMemoryConnector(nil)
	override := planner.Override{
		Start:    planner.Unresolved,
		End:      planner.Unresolved,
		PerTable: map[common.Table]planner.Range{common.TableTrace: {Start: 0, End: 10}},
	}

	err := NewIngester(node, store).Run(context.Background(), override)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data source")
}

func TestRunPerTableOverride(t *testing.T) {
	fastTestConfig()
	node := &fakeRPC{head: 306}
	store := storage.NewMemoryConnector(nil)
	override := planner.Override{
		Start: planner.Unresolved,
		End:   planner.Unresolved,
		PerTable: map[common.Table]planner.Range{
			common.TableTransaction: {Start: 200, End: 210},
		},
	}

	err := NewIngester(node, store).Run(context.Background(), override)

	require.NoError(t, err)
	// exactly the overridden table received rows, far from the prefix
	assert.Equal(t, 11, store.TransactionCount())
	assert.Equal(t, 0, store.BlockCount())
	assert.Equal(t, common.NoCheckpoint, checkpointOf(t, store, common.TableTransaction))
}
