package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainmirror/chainmirror/internal/common"
	"github.com/chainmirror/chainmirror/internal/planner"
)

func resetIngestFlags(t *testing.T) {
	t.Helper()
	ingestStartBlock = planner.Unresolved
	ingestEndBlock = planner.Unresolved
	ingestYesterday = false
	ingestTables = nil
	t.Cleanup(func() {
		ingestStartBlock = planner.Unresolved
		ingestEndBlock = planner.Unresolved
		ingestYesterday = false
		ingestTables = nil
	})
}

func TestBuildOverridePropagatesBoundsToTables(t *testing.T) {
	resetIngestFlags(t)
	ingestStartBlock = 200
	ingestEndBlock = 210
	ingestTables = []string{"transaction"}

	override, err := buildOverride(context.Background(), nil)

	require.NoError(t, err)
	require.Len(t, override.PerTable, 1)
	assert.Equal(t, planner.Range{Start: 200, End: 210}, override.PerTable[common.TableTransaction])
}

func TestBuildOverrideExplicitTableRangeWins(t *testing.T) {
	resetIngestFlags(t)
	ingestStartBlock = 0
	ingestEndBlock = 999
	ingestTables = []string{"log:50-60"}

	override, err := buildOverride(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, planner.Range{Start: 50, End: 60}, override.PerTable[common.TableLog])
}

func TestParseTableSpec(t *testing.T) {
	table, tableRange, err := parseTableSpec("trace:100-200")
	require.NoError(t, err)
	assert.Equal(t, common.TableTrace, table)
	assert.Equal(t, planner.Range{Start: 100, End: 200}, tableRange)

	table, tableRange, err = parseTableSpec("block")
	require.NoError(t, err)
	assert.Equal(t, common.TableBlock, table)
	assert.Equal(t, planner.Range{Start: planner.Unresolved, End: planner.Unresolved}, tableRange)

	_, _, err = parseTableSpec("uncle")
	assert.Error(t, err)

	_, _, err = parseTableSpec("block:9-5")
	assert.Error(t, err)
}
