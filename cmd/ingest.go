package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	config "github.com/chainmirror/chainmirror/configs"
	"github.com/chainmirror/chainmirror/internal/common"
	"github.com/chainmirror/chainmirror/internal/ingester"
	"github.com/chainmirror/chainmirror/internal/planner"
	"github.com/chainmirror/chainmirror/internal/rpc"
	"github.com/chainmirror/chainmirror/internal/storage"
)

var (
	ingestStartBlock int64
	ingestEndBlock   int64
	ingestYesterday  bool
	ingestTables     []string

	ingestCmd = &cobra.Command{
		Use:   "ingest",
		Short: "Stream chain data into the store",
		Long: `Resumes from the store's per-table checkpoints and ingests up to the
confirmed chain head, unless explicit bounds or per-table ranges are given.`,
		Run: func(cmd *cobra.Command, args []string) {
			RunIngest(cmd, args)
		},
	}
)

func init() {
	ingestCmd.Flags().Int64Var(&ingestStartBlock, "start-block", planner.Unresolved, "First block to ingest (default: resume from checkpoints)")
	ingestCmd.Flags().Int64Var(&ingestEndBlock, "end-block", planner.Unresolved, "Last block to ingest (default: chain head minus confirmation margin)")
	ingestCmd.Flags().BoolVar(&ingestYesterday, "yesterday", false, "Ingest up to the last block before today's UTC midnight")
	ingestCmd.Flags().StringArrayVar(&ingestTables, "table", nil, "Restrict to one table, optionally with a range: table[:start-end] (repeatable)")
}

func RunIngest(cmd *cobra.Command, args []string) {
	ctx, stop := signalContext()
	defer stop()

	serveMetrics()

	rpcClient, err := rpc.Initialize()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize node client")
	}
	defer rpcClient.Close()

	store, err := storage.NewConnector(&config.Cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer store.Close()

	override, err := buildOverride(ctx, rpcClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid range override")
	}

	if err := ingester.NewIngester(rpcClient, store).Run(ctx, override); err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}
	log.Info().Msg("Ingestion finished")
}

func buildOverride(ctx context.Context, rpcClient rpc.IRPCClient) (planner.Override, error) {
	override := planner.Override{Start: ingestStartBlock, End: ingestEndBlock}

	if ingestYesterday {
		end, err := resolveYesterday(ctx, rpcClient)
		if err != nil {
			return planner.Override{}, err
		}
		override.End = end
	}

	if len(ingestTables) > 0 {
		override.PerTable = make(map[common.Table]planner.Range, len(ingestTables))
		for _, spec := range ingestTables {
			table, tableRange, err := parseTableSpec(spec)
			if err != nil {
				return planner.Override{}, err
			}
			if tableRange.Start == planner.Unresolved && override.Start != planner.Unresolved {
				tableRange.Start = override.Start
			}
			if tableRange.End == planner.Unresolved && override.End != planner.Unresolved {
				tableRange.End = override.End
			}
			override.PerTable[table] = tableRange
		}
	}
	return override, nil
}

// parseTableSpec parses "table" or "table:start-end".
func parseTableSpec(spec string) (common.Table, planner.Range, error) {
	name, rangePart, hasRange := strings.Cut(spec, ":")
	table, err := common.ParseTable(name)
	if err != nil {
		return "", planner.Range{}, err
	}
	if !hasRange {
		return table, planner.Range{Start: planner.Unresolved, End: planner.Unresolved}, nil
	}

	startPart, endPart, ok := strings.Cut(rangePart, "-")
	if !ok {
		return "", planner.Range{}, fmt.Errorf("invalid range %q, expected start-end", rangePart)
	}
	start, err := strconv.ParseInt(startPart, 10, 64)
	if err != nil {
		return "", planner.Range{}, fmt.Errorf("invalid start block %q: %w", startPart, err)
	}
	end, err := strconv.ParseInt(endPart, 10, 64)
	if err != nil {
		return "", planner.Range{}, fmt.Errorf("invalid end block %q: %w", endPart, err)
	}
	if start > end {
		return "", planner.Range{}, fmt.Errorf("start block %d is past end block %d", start, end)
	}
	return table, planner.Range{Start: start, End: end}, nil
}

func resolveYesterday(ctx context.Context, rpcClient rpc.IRPCClient) (int64, error) {
	head, err := rpcClient.GetLatestBlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve chain head: %w", err)
	}
	end, err := planner.LastBlockBefore(ctx, rpcClient, planner.MidnightUTC(time.Now()), head)
	if err != nil {
		return 0, err
	}
	log.Info().Msgf("Resolved yesterday's end block to %d", end)
	return end, nil
}
