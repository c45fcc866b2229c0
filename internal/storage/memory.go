package storage

import (
	"context"
	"fmt"
	"sync"

	config "github.com/chainmirror/chainmirror/configs"
	"github.com/chainmirror/chainmirror/internal/common"
)

const defaultMemoryMaxItems = 1_000_000

// MemoryConnector keeps rows in maps keyed by each table's natural key. It
// backs tests and dry runs and mirrors the upsert semantics of the real
// store: re-inserting a key overwrites the previous row.
type MemoryConnector struct {
	mu           sync.RWMutex
	maxItems     int
	blocks       map[int64]common.BlockRow
	transactions map[string]common.TransactionRow
	traces       map[string]common.TraceRow
	logs         map[string]common.LogRow
}

func NewMemoryConnector(cfg *config.MemoryConfig) *MemoryConnector {
	maxItems := defaultMemoryMaxItems
	if cfg != nil && cfg.MaxItems > 0 {
		maxItems = cfg.MaxItems
	}
	return &MemoryConnector{
		maxItems:     maxItems,
		blocks:       make(map[int64]common.BlockRow),
		transactions: make(map[string]common.TransactionRow),
		traces:       make(map[string]common.TraceRow),
		logs:         make(map[string]common.LogRow),
	}
}

func (m *MemoryConnector) Close() error {
	return nil
}

func (m *MemoryConnector) itemCount() int {
	return len(m.blocks) + len(m.transactions) + len(m.traces) + len(m.logs)
}

func (m *MemoryConnector) checkCapacity(incoming int) error {
	if m.itemCount()+incoming > m.maxItems {
		return fmt.Errorf("memory storage full: %d items, limit %d", m.itemCount(), m.maxItems)
	}
	return nil
}

func (m *MemoryConnector) InsertBlocks(_ context.Context, blocks []common.BlockRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkCapacity(len(blocks)); err != nil {
		return err
	}
	for _, b := range blocks {
		m.blocks[b.BlockId] = b
	}
	return nil
}

func (m *MemoryConnector) InsertTransactions(_ context.Context, transactions []common.TransactionRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkCapacity(len(transactions)); err != nil {
		return err
	}
	for _, t := range transactions {
		m.transactions[t.TxHash] = t
	}
	return nil
}

func (m *MemoryConnector) InsertTraces(_ context.Context, traces []common.TraceRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkCapacity(len(traces)); err != nil {
		return err
	}
	for _, t := range traces {
		m.traces[t.TraceId] = t
	}
	return nil
}

func (m *MemoryConnector) InsertLogs(_ context.Context, logs []common.LogRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkCapacity(len(logs)); err != nil {
		return err
	}
	for _, l := range logs {
		key := fmt.Sprintf("%d_%s_%d", l.BlockId, l.TxHash, l.LogIndex)
		m.logs[key] = l
	}
	return nil
}

func (m *MemoryConnector) GetCheckpoint(_ context.Context, table common.Table) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	present := make(map[int64]bool)
	switch table {
	case common.TableBlock:
		for id := range m.blocks {
			present[id] = true
		}
	case common.TableTransaction:
		for _, t := range m.transactions {
			present[t.BlockId] = true
		}
		m.fillEmptyBlocks(present, func(b common.BlockRow) int64 { return b.TransactionCount })
	case common.TableTrace:
		for _, t := range m.traces {
			present[t.BlockId] = true
		}
		m.fillEmptyBlocks(present, func(b common.BlockRow) int64 { return b.TraceCount })
	case common.TableLog:
		for _, l := range m.logs {
			present[l.BlockId] = true
		}
		m.fillEmptyBlocks(present, func(b common.BlockRow) int64 { return b.LogCount })
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}

	checkpoint := common.NoCheckpoint
	for present[checkpoint+1] {
		checkpoint++
	}
	return checkpoint, nil
}

// fillEmptyBlocks marks blocks that produced no rows of an entity kind as
// present, so empty blocks do not read as holes in the contiguous prefix.
func (m *MemoryConnector) fillEmptyBlocks(present map[int64]bool, count func(common.BlockRow) int64) {
	for id, block := range m.blocks {
		if count(block) == 0 {
			present[id] = true
		}
	}
}

// BlockCount reports how many block rows are stored. Test helper.
func (m *MemoryConnector) BlockCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blocks)
}

// TransactionCount reports how many transaction rows are stored. Test helper.
func (m *MemoryConnector) TransactionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.transactions)
}
