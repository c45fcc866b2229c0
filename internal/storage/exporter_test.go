package storage

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/chainmirror/chainmirror/configs"
	"github.com/chainmirror/chainmirror/internal/common"
)

func newTestExporter(t *testing.T, format string) *FileExporter {
	t.Helper()
	exporter, err := NewFileExporter(&config.ExportConfig{
		Directory:          t.TempDir(),
		Format:             format,
		PartitionBatchSize: 1000,
	})
	require.NoError(t, err)
	return exporter
}

func sampleRowSet() common.RowSet {
	return common.RowSet{
		Blocks: []common.BlockRow{
			{BlockId: 10, BlockHash: "0xaaaa", TransactionCount: 1, TraceCount: 0, LogCount: 1},
			{BlockId: 11, BlockHash: "0xbbbb", TransactionCount: 0, TraceCount: 0, LogCount: 0},
		},
		Transactions: []common.TransactionRow{
			{TxHashPrefix: "dead", TxHash: "0xdeadbeef", BlockId: 10, ToAddress: "0xf2"},
		},
		Logs: []common.LogRow{
			{BlockId: 10, Address: "0xc0", Data: "0x00", Topics: []string{"0xt0", "0xt1"}, Topic0: "0xt0", TxHash: "0xdeadbeef"},
		},
	}
}

func readGzip(t *testing.T, path string) string {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	gz, err := gzip.NewReader(file)
	require.NoError(t, err)
	content, err := io.ReadAll(gz)
	require.NoError(t, err)
	return string(content)
}

func TestWriteBatchCreatesPartitionedFiles(t *testing.T) {
	exporter := newTestExporter(t, FormatCSV)

	require.NoError(t, exporter.WriteBatch(sampleRowSet(), 10, 19))

	dir := filepath.Join(exporter.directory, "00000000-00000999")
	for _, entity := range []string{"block", "transaction", "trace", "log"} {
		assert.FileExists(t, filepath.Join(dir, entity+"_00000010-00000019.csv.gz"))
	}
}

func TestWriteBatchPartitionRounding(t *testing.T) {
	exporter := newTestExporter(t, FormatCSV)

	require.NoError(t, exporter.WriteBatch(sampleRowSet(), 2500, 2509))

	assert.DirExists(t, filepath.Join(exporter.directory, "00002000-00002999"))
}

func TestCSVRoundTrip(t *testing.T) {
	exporter := newTestExporter(t, FormatCSV)
	require.NoError(t, exporter.WriteBatch(sampleRowSet(), 10, 19))

	content := readGzip(t, filepath.Join(exporter.directory, "00000000-00000999", "block_00000010-00000019.csv.gz"))
	lines := strings.Split(strings.TrimSpace(content), "\n")

	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "block_id_group,block_id,block_hash"))
	assert.Contains(t, lines[1], "0xaaaa")
	assert.Contains(t, lines[2], "0xbbbb")
}

func TestLogFileIsPipeDelimited(t *testing.T) {
	exporter := newTestExporter(t, FormatCSV)
	require.NoError(t, exporter.WriteBatch(sampleRowSet(), 10, 19))

	content := readGzip(t, filepath.Join(exporter.directory, "00000000-00000999", "log_00000010-00000019.csv.gz"))
	lines := strings.Split(strings.TrimSpace(content), "\n")

	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(logHeader, "|"), lines[0])
	// topics stay a JSON array inside the unquoted pipe-delimited row
	assert.Contains(t, lines[1], `["0xt0","0xt1"]`)
}

func TestLastExportedBlock(t *testing.T) {
	exporter := newTestExporter(t, FormatCSV)

	last, err := exporter.LastExportedBlock()
	require.NoError(t, err)
	assert.Equal(t, common.NoCheckpoint, last)

	require.NoError(t, exporter.WriteBatch(sampleRowSet(), 0, 999))
	require.NoError(t, exporter.WriteBatch(sampleRowSet(), 1000, 1999))

	last, err = exporter.LastExportedBlock()
	require.NoError(t, err)
	assert.Equal(t, int64(1999), last)
}

func TestWriteBatchParquet(t *testing.T) {
	exporter := newTestExporter(t, FormatParquet)

	require.NoError(t, exporter.WriteBatch(sampleRowSet(), 10, 19))

	path := filepath.Join(exporter.directory, "00000000-00000999", "blockdata_00000010-00000019.parquet")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestNewFileExporterRejectsUnknownFormat(t *testing.T) {
	_, err := NewFileExporter(&config.ExportConfig{Directory: t.TempDir(), Format: "avro"})
	assert.Error(t, err)
}

func TestNewFileExporterRejectsMisalignedPartition(t *testing.T) {
	_, err := NewFileExporter(&config.ExportConfig{
		Directory:          t.TempDir(),
		FileBatchSize:      1000,
		PartitionBatchSize: 2500,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a multiple")

	_, err = NewFileExporter(&config.ExportConfig{
		Directory:          t.TempDir(),
		FileBatchSize:      500,
		PartitionBatchSize: 2500,
	})
	assert.NoError(t, err)
}
