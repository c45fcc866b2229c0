package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTimestamper derives a deterministic timestamp per block: genesis at
// baseTime, one block every 12 seconds.
type fakeTimestamper struct {
	baseTime int64
	probes   int
}

func (f *fakeTimestamper) GetBlockTimestamp(_ context.Context, blockNumber int64) (int64, error) {
	f.probes++
	return f.baseTime + blockNumber*12, nil
}

func TestMidnightUTC(t *testing.T) {
	now := time.Date(2024, 5, 17, 13, 45, 12, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC).Unix(), MidnightUTC(now))
}

func TestLastBlockBefore(t *testing.T) {
	node := &fakeTimestamper{baseTime: 1_000_000}

	// block 100 is the last one mined strictly before base+1212
	cutoff := int64(1_000_000 + 101*12)
	last, err := LastBlockBefore(context.Background(), node, cutoff, 10_000)

	require.NoError(t, err)
	assert.Equal(t, int64(100), last)
}

func TestLastBlockBeforeCutoffOnBlockBoundary(t *testing.T) {
	node := &fakeTimestamper{baseTime: 1_000_000}

	// a block mined exactly at the cutoff is not before it
	cutoff := int64(1_000_000 + 100*12)
	last, err := LastBlockBefore(context.Background(), node, cutoff, 10_000)

	require.NoError(t, err)
	assert.Equal(t, int64(99), last)
}

func TestLastBlockBeforeCutoffPastHead(t *testing.T) {
	node := &fakeTimestamper{baseTime: 1_000_000}

	last, err := LastBlockBefore(context.Background(), node, 1_000_000+20_000*12, 100)

	require.NoError(t, err)
	assert.Equal(t, int64(100), last)
}

func TestLastBlockBeforeCutoffBeforeGenesis(t *testing.T) {
	node := &fakeTimestamper{baseTime: 1_000_000}

	_, err := LastBlockBefore(context.Background(), node, 999_999, 100)

	assert.Error(t, err)
}

func TestLastBlockBeforeProbeCount(t *testing.T) {
	node := &fakeTimestamper{baseTime: 0}

	_, err := LastBlockBefore(context.Background(), node, 50*12, 1_000_000)

	require.NoError(t, err)
	// two boundary probes plus a logarithmic number of bisection probes
	assert.Less(t, node.probes, 25)
}
