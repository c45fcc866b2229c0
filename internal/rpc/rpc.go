package rpc

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	gethRpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"

	config "github.com/chainmirror/chainmirror/configs"
	"github.com/chainmirror/chainmirror/internal/common"
)

// Raw JSON-RPC payloads before serialization into chain views.
type (
	RawBlock    = map[string]interface{}
	RawLogs     = []map[string]interface{}
	RawTraces   = []map[string]interface{}
	RawReceipts = []map[string]interface{}
)

type GetFullBlockResult struct {
	BlockNumber int64
	Error       error
	Data        common.BlockData
}

type BlocksPerRequestConfig struct {
	Blocks   int
	Logs     int
	Traces   int
	Receipts int
}

const (
	DefaultBlocksPerRequest   = 100
	DefaultLogsPerRequest     = 20
	DefaultTracesPerRequest   = 20
	DefaultReceiptsPerRequest = 20
)

const defaultRequestTimeout = 30 * time.Second

type transportKind int

const (
	transportHTTP transportKind = iota
	transportWebsocket
	transportIPC
)

type IRPCClient interface {
	GetFullBlocks(ctx context.Context, blockNumbers []int64) []GetFullBlockResult
	GetLatestBlockNumber(ctx context.Context) (int64, error)
	GetBlockTimestamp(ctx context.Context, blockNumber int64) (int64, error)
	GetURL() string
	GetBlocksPerRequest() BlocksPerRequestConfig
	SupportsTraceBlock() bool
	SupportsBlockReceipts() bool
	Close()
}

type Client struct {
	RPCClient             *gethRpc.Client
	supportsTraceBlock    bool
	supportsBlockReceipts bool
	transport             transportKind
	url                   string
	blocksPerRequest      BlocksPerRequestConfig
	timeout               time.Duration
}

// Initialize dials the node configured under rpc.url and probes the optional
// methods once, so every later fetch knows which entity sources are available.
func Initialize() (IRPCClient, error) {
	rpcUrl := config.Cfg.RPC.URL
	if rpcUrl == "" {
		return nil, fmt.Errorf("rpc.url is not set")
	}
	return Dial(rpcUrl)
}

// Dial selects the transport from the URL scheme: http(s) and ws(s) go through
// the standard dialer, file:// URLs and bare .ipc paths open a local socket.
func Dial(rpcUrl string) (IRPCClient, error) {
	log.Debug().Msgf("Connecting to node at %s", rpcUrl)

	transport := transportFor(rpcUrl)
	var rpcClient *gethRpc.Client
	var dialErr error
	if transport == transportIPC {
		rpcClient, dialErr = gethRpc.DialIPC(context.Background(), strings.TrimPrefix(rpcUrl, "file://"))
	} else {
		rpcClient, dialErr = gethRpc.Dial(rpcUrl)
	}
	if dialErr != nil {
		return nil, fmt.Errorf("failed to dial node %s: %w", rpcUrl, dialErr)
	}

	rpc := &Client{
		RPCClient:        rpcClient,
		url:              rpcUrl,
		transport:        transport,
		blocksPerRequest: blocksPerRequestConfig(),
		timeout:          requestTimeout(config.Cfg.RPC.TimeoutSeconds),
	}
	if err := rpc.checkSupportedMethods(); err != nil {
		rpcClient.Close()
		return nil, err
	}
	return IRPCClient(rpc), nil
}

func transportFor(rpcUrl string) transportKind {
	switch {
	case strings.HasPrefix(rpcUrl, "ws://") || strings.HasPrefix(rpcUrl, "wss://"):
		return transportWebsocket
	case strings.HasPrefix(rpcUrl, "file://") || strings.HasSuffix(rpcUrl, ".ipc"):
		return transportIPC
	default:
		return transportHTTP
	}
}

func blocksPerRequestConfig() BlocksPerRequestConfig {
	cfg := BlocksPerRequestConfig{
		Blocks:   DefaultBlocksPerRequest,
		Logs:     DefaultLogsPerRequest,
		Traces:   DefaultTracesPerRequest,
		Receipts: DefaultReceiptsPerRequest,
	}
	if config.Cfg.RPC.BlocksPerRequest.Blocks > 0 {
		cfg.Blocks = config.Cfg.RPC.BlocksPerRequest.Blocks
	}
	if config.Cfg.RPC.BlocksPerRequest.Logs > 0 {
		cfg.Logs = config.Cfg.RPC.BlocksPerRequest.Logs
	}
	if config.Cfg.RPC.BlocksPerRequest.Traces > 0 {
		cfg.Traces = config.Cfg.RPC.BlocksPerRequest.Traces
	}
	if config.Cfg.RPC.BlocksPerRequest.Receipts > 0 {
		cfg.Receipts = config.Cfg.RPC.BlocksPerRequest.Receipts
	}
	return cfg
}

func requestTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(seconds) * time.Second
}

// requestContext bounds one node call. Every JSON-RPC request runs under this
// deadline so a hung connection fails the call instead of stalling the run.
func (rpc *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, rpc.timeout)
}

func (rpc *Client) GetURL() string {
	return rpc.url
}

func (rpc *Client) GetBlocksPerRequest() BlocksPerRequestConfig {
	return rpc.blocksPerRequest
}

func (rpc *Client) SupportsTraceBlock() bool {
	return rpc.supportsTraceBlock
}

func (rpc *Client) SupportsBlockReceipts() bool {
	return rpc.supportsBlockReceipts
}

func (rpc *Client) Close() {
	rpc.RPCClient.Close()
}

func (rpc *Client) checkSupportedMethods() error {
	if err := rpc.checkGetBlockByNumberSupport(); err != nil {
		return err
	}
	if err := rpc.checkGetBlockReceiptsSupport(); err != nil {
		return err
	}
	if err := rpc.checkGetLogsSupport(); err != nil {
		return err
	}
	if err := rpc.checkTraceBlockSupport(); err != nil {
		return err
	}
	return nil
}

func (rpc *Client) checkGetBlockByNumberSupport() error {
	ctx, cancel := rpc.requestContext(context.Background())
	defer cancel()
	var blockByNumberResult interface{}
	err := rpc.RPCClient.CallContext(ctx, &blockByNumberResult, "eth_getBlockByNumber", "latest", true)
	if err != nil {
		return fmt.Errorf("eth_getBlockByNumber method not supported: %v", err)
	}
	log.Debug().Msg("eth_getBlockByNumber method supported")
	return nil
}

func (rpc *Client) checkGetBlockReceiptsSupport() error {
	if !config.Cfg.RPC.BlockReceipts.Enabled {
		rpc.supportsBlockReceipts = false
		log.Debug().Msg("eth_getBlockReceipts method disabled")
		return nil
	}
	ctx, cancel := rpc.requestContext(context.Background())
	defer cancel()
	var getBlockReceiptsResult interface{}
	receiptsErr := rpc.RPCClient.CallContext(ctx, &getBlockReceiptsResult, "eth_getBlockReceipts", "latest")
	if receiptsErr != nil {
		log.Warn().Err(receiptsErr).Msg("eth_getBlockReceipts method not supported, falling back to eth_getLogs")
		rpc.supportsBlockReceipts = false
		return nil
	}
	rpc.supportsBlockReceipts = true
	log.Debug().Msg("eth_getBlockReceipts method supported")
	return nil
}

func (rpc *Client) checkGetLogsSupport() error {
	if rpc.supportsBlockReceipts {
		return nil
	}
	ctx, cancel := rpc.requestContext(context.Background())
	defer cancel()
	var getLogsResult interface{}
	logsErr := rpc.RPCClient.CallContext(ctx, &getLogsResult, "eth_getLogs", map[string]string{"fromBlock": "0x0", "toBlock": "0x0"})
	if logsErr != nil {
		return fmt.Errorf("eth_getLogs method not supported: %v", logsErr)
	}
	log.Debug().Msg("eth_getLogs method supported")
	return nil
}

func (rpc *Client) checkTraceBlockSupport() error {
	if !config.Cfg.RPC.Traces.Enabled {
		rpc.supportsTraceBlock = false
		log.Debug().Msg("trace_block method disabled")
		return nil
	}
	ctx, cancel := rpc.requestContext(context.Background())
	defer cancel()
	var traceBlockResult interface{}
	if traceBlockErr := rpc.RPCClient.CallContext(ctx, &traceBlockResult, "trace_block", "latest"); traceBlockErr != nil {
		log.Warn().Err(traceBlockErr).Msg("Optional method trace_block not supported")
	} else {
		rpc.supportsTraceBlock = true
		log.Debug().Msg("trace_block method supported")
	}
	return nil
}

// GetFullBlocks fetches every entity kind for the given block numbers. The
// independent entity fetches run in parallel; results are joined per block.
func (rpc *Client) GetFullBlocks(ctx context.Context, blockNumbers []int64) []GetFullBlockResult {
	var wg sync.WaitGroup
	var blocks []RPCFetchBatchResult[int64, RawBlock]
	var logs []RPCFetchBatchResult[int64, RawLogs]
	var traces []RPCFetchBatchResult[int64, RawTraces]
	var receipts []RPCFetchBatchResult[int64, RawReceipts]
	wg.Add(2)

	go func() {
		defer wg.Done()
		blocks = RPCFetchInBatches[int64, RawBlock](rpc, ctx, blockNumbers, rpc.blocksPerRequest.Blocks, "eth_getBlockByNumber", GetBlockWithTransactionsParams)
	}()

	if rpc.supportsBlockReceipts {
		go func() {
			defer wg.Done()
			receipts = RPCFetchInBatches[int64, RawReceipts](rpc, ctx, blockNumbers, rpc.blocksPerRequest.Receipts, "eth_getBlockReceipts", GetBlockReceiptsParams)
		}()
	} else {
		go func() {
			defer wg.Done()
			logs = RPCFetchInBatches[int64, RawLogs](rpc, ctx, blockNumbers, rpc.blocksPerRequest.Logs, "eth_getLogs", GetLogsParams)
		}()
	}

	if rpc.supportsTraceBlock {
		wg.Add(1)
		go func() {
			defer wg.Done()
			traces = RPCFetchInBatches[int64, RawTraces](rpc, ctx, blockNumbers, rpc.blocksPerRequest.Traces, "trace_block", TraceBlockParams)
		}()
	}

	wg.Wait()

	return SerializeFullBlocks(blocks, logs, traces, receipts)
}

func (rpc *Client) GetLatestBlockNumber(ctx context.Context) (int64, error) {
	ctx, cancel := rpc.requestContext(ctx)
	defer cancel()
	var result string
	if err := rpc.RPCClient.CallContext(ctx, &result, "eth_blockNumber"); err != nil {
		return 0, fmt.Errorf("failed to get latest block number: %w", err)
	}
	number, err := hexToInt64E(result)
	if err != nil {
		return 0, fmt.Errorf("failed to parse latest block number %q: %w", result, err)
	}
	return number, nil
}

// GetBlockTimestamp fetches only the header of one block. The planner's
// timestamp search calls this many times, so transactions are left out.
func (rpc *Client) GetBlockTimestamp(ctx context.Context, blockNumber int64) (int64, error) {
	ctx, cancel := rpc.requestContext(ctx)
	defer cancel()
	var raw RawBlock
	if err := rpc.RPCClient.CallContext(ctx, &raw, "eth_getBlockByNumber", GetBlockWithoutTransactionsParams(blockNumber)...); err != nil {
		return 0, fmt.Errorf("failed to get block %d: %w", blockNumber, err)
	}
	if raw == nil {
		return 0, fmt.Errorf("block %d not found", blockNumber)
	}
	return hexToInt64(raw["timestamp"]), nil
}
