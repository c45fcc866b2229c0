package transform

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainmirror/chainmirror/internal/common"
)

func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }
func bigInt(v int64) *big.Int { return big.NewInt(v) }

func sampleBlockData() common.BlockData {
	return common.BlockData{
		Block: common.Block{
			Number:           15_537_393,
			Hash:             "0xaaaa",
			ParentHash:       "0xbbbb",
			Nonce:            "0x0000000000000000",
			Difficulty:       bigInt(0),
			TotalDifficulty:  new(big.Int).SetInt64(58_750_003),
			Size:             100,
			GasLimit:         30_000_000,
			GasUsed:          12_000_000,
			Timestamp:        1_663_224_162,
			TransactionCount: 2,
			BaseFeePerGas:    int64Ptr(38),
		},
		Transactions: []common.Transaction{
			{
				Hash:             "0xdeadbeefcafe",
				Nonce:            7,
				BlockNumber:      15_537_393,
				BlockHash:        "0xaaaa",
				BlockTimestamp:   1_663_224_162,
				TransactionIndex: 0,
				FromAddress:      "0xf1",
				ToAddress:        strPtr("0xf2"),
				Value:            bigInt(1000),
				Gas:              21000,
				GasPrice:         int64Ptr(40),
				Input:            "0x",
				ReceiptGasUsed:   int64Ptr(21000),
				ReceiptStatus:    int64Ptr(1),
			},
			{
				// contract creation, no to address, no receipt
				Hash:        "0xabcd1234",
				BlockNumber: 15_537_393,
				FromAddress: "0xf1",
				Value:       bigInt(0),
				Input:       "0x6060",
			},
		},
		Traces: []common.Trace{
			{
				BlockNumber:      15_537_393,
				TraceIndex:       0,
				TransactionHash:  strPtr("0xdeadbeefcafe"),
				TransactionIndex: int64Ptr(0),
				FromAddress:      strPtr("0xf1"),
				ToAddress:        strPtr("0xf2"),
				Value:            bigInt(1000),
				TraceType:        "call",
				CallType:         strPtr("call"),
				Gas:              int64Ptr(21000),
				GasUsed:          int64Ptr(21000),
				TraceAddress:     []int64{0, 2, 1},
				Status:           int64Ptr(1),
			},
			{
				BlockNumber: 15_537_393,
				TraceIndex:  1,
				ToAddress:   strPtr("0xminer"),
				Value:       bigInt(2_000_000),
				TraceType:   "reward",
				RewardType:  strPtr("block"),
				Status:      int64Ptr(1),
			},
		},
		Logs: []common.Log{
			{
				BlockNumber:      15_537_393,
				BlockHash:        "0xaaaa",
				TransactionHash:  "0xdeadbeefcafe",
				TransactionIndex: 0,
				LogIndex:         3,
				Address:          "0xc0",
				Data:             "0x00",
				Topics:           []string{"0xt0", "0xt1"},
			},
			{
				BlockNumber:     15_537_393,
				BlockHash:       "0xaaaa",
				TransactionHash: "0xdeadbeefcafe",
				LogIndex:        4,
				Address:         "0xc1",
				Data:            "0x",
			},
		},
	}
}

func TestRowsBlock(t *testing.T) {
	rows := Rows([]common.BlockData{sampleBlockData()})

	require.Len(t, rows.Blocks, 1)
	block := rows.Blocks[0]
	assert.Equal(t, int64(155), block.BlockIdGroup)
	assert.Equal(t, int64(15_537_393), block.BlockId)
	assert.Equal(t, "58750003", block.TotalDifficulty)
	assert.Equal(t, int64(38), block.BaseFeePerGas)
	assert.Equal(t, int64(2), block.TraceCount)
	assert.Equal(t, int64(2), block.LogCount)
}

func TestRowsBlockWithoutTracesFetched(t *testing.T) {
	data := sampleBlockData()
	data.Traces = nil

	rows := Rows([]common.BlockData{data})

	require.Len(t, rows.Blocks, 1)
	assert.Equal(t, common.NotSetInt64, rows.Blocks[0].TraceCount)
}

func TestRowsBlockWithEmptyEntities(t *testing.T) {
	data := sampleBlockData()
	data.Logs = []common.Log{}

	rows := Rows([]common.BlockData{data})

	require.Len(t, rows.Blocks, 1)
	assert.Equal(t, int64(0), rows.Blocks[0].LogCount)
}

func TestRowsTransactions(t *testing.T) {
	rows := Rows([]common.BlockData{sampleBlockData()})

	require.Len(t, rows.Transactions, 2)

	tx := rows.Transactions[0]
	assert.Equal(t, "dead", tx.TxHashPrefix)
	assert.Equal(t, "0xf2", tx.ToAddress)
	assert.Equal(t, int64(40), tx.GasPrice)
	assert.Equal(t, int64(21000), tx.ReceiptGasUsed)
	assert.Equal(t, int64(1), tx.ReceiptStatus)

	creation := rows.Transactions[1]
	assert.Equal(t, "abcd", creation.TxHashPrefix)
	assert.Equal(t, "", creation.ToAddress)
	assert.Equal(t, common.NotSetInt64, creation.GasPrice)
	assert.Equal(t, common.NotSetInt64, creation.ReceiptGasUsed)
	assert.Equal(t, common.NotSetInt64, creation.ReceiptStatus)
}

func TestRowsTraces(t *testing.T) {
	rows := Rows([]common.BlockData{sampleBlockData()})

	require.Len(t, rows.Traces, 2)

	call := rows.Traces[0]
	assert.Equal(t, "call_0xdeadbeefcafe_0_2_1", call.TraceId)
	assert.Equal(t, "0|2|1", call.TraceAddress)
	assert.Equal(t, "1000", call.Value)
	assert.Equal(t, int64(155), call.BlockIdGroup)

	reward := rows.Traces[1]
	assert.Equal(t, "reward_15537393_1", reward.TraceId)
	assert.Equal(t, "", reward.TxHash)
	assert.Equal(t, common.NotSetInt64, reward.TransactionIndex)
	assert.Equal(t, "", reward.FromAddress)
	assert.Equal(t, "block", reward.RewardType)
	assert.Equal(t, "", reward.TraceAddress)
}

func TestRowsLogs(t *testing.T) {
	rows := Rows([]common.BlockData{sampleBlockData()})

	require.Len(t, rows.Logs, 2)

	withTopics := rows.Logs[0]
	assert.Equal(t, "0xt0", withTopics.Topic0)
	assert.Equal(t, []string{"0xt0", "0xt1"}, withTopics.Topics)
	assert.Equal(t, "0xdeadbeefcafe", withTopics.TxHash)

	anonymous := rows.Logs[1]
	assert.Equal(t, "", anonymous.Topic0)
	assert.Empty(t, anonymous.Topics)
	// present-but-empty payload stays distinguishable from not-set
	assert.Equal(t, "0x", anonymous.Data)
}

func TestTxHashPrefixShortHash(t *testing.T) {
	assert.Equal(t, "ab", TxHashPrefix("0xab"))
	assert.Equal(t, "abcd", TxHashPrefix("0xabcdef"))
}

func TestBlockIdGroup(t *testing.T) {
	assert.Equal(t, int64(0), BlockIdGroup(0))
	assert.Equal(t, int64(0), BlockIdGroup(99_999))
	assert.Equal(t, int64(1), BlockIdGroup(100_000))
}
